package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds every readiness check.
const DefaultCheckTimeout = 2 * time.Second

// HealthChecker tracks readiness of a sniffing service and serves the
// liveness and readiness endpoints.
type HealthChecker struct {
	mu        sync.RWMutex
	ready     bool
	checks    map[string]HealthCheck
	startedAt time.Time
	version   string
	timeout   time.Duration
}

// HealthCheck returns nil when the dependency it checks is usable.
type HealthCheck func(ctx context.Context) error

// HealthStatus is the JSON body of the liveness and readiness endpoints.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a health checker reporting version. It starts
// not ready.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]HealthCheck),
		startedAt: time.Now(),
		version:   version,
		timeout:   DefaultCheckTimeout,
	}
}

// SetCheckTimeout changes the per-check deadline used by /readyz.
func (h *HealthChecker) SetCheckTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d > 0 {
		h.timeout = d
	}
}

// RegisterCheck registers a named readiness check, replacing any check
// with the same name.
func (h *HealthChecker) RegisterCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetReady marks the service as ready to receive traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns whether the service is ready.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Check runs every registered check and reports whether the service is
// ready, with the outcome of each check by name.
func (h *HealthChecker) Check(ctx context.Context) (bool, map[string]string) {
	h.mu.RLock()
	marked := h.ready
	timeout := h.timeout
	names := make([]string, 0, len(h.checks))
	checks := make(map[string]HealthCheck, len(h.checks))
	for name, check := range h.checks {
		names = append(names, name)
		checks[name] = check
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ready := marked
	results := make(map[string]string, len(names)+1)
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := checks[name](checkCtx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			ready = false
		} else {
			results[name] = "ok"
		}
	}
	if !marked {
		results["ready"] = "not ready"
	}
	return ready, results
}

// LivenessHandler serves /healthz. It answers 200 while the process is up.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, HealthStatus{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
			Version:   h.version,
		})
	})
}

// ReadinessHandler serves /readyz. It answers 200 when the service is
// marked ready and every check passes, 503 otherwise.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ready, checks := h.Check(r.Context())
		status := HealthStatus{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
			Checks:    checks,
		}
		code := http.StatusOK
		if !ready {
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, status)
	})
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// Handler serves /healthz and /readyz.
func (h *HealthChecker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	return mux
}

// CommonChecks provides factory functions for common health checks.
type CommonChecks struct{}

// DatabaseCheck returns a health check for database connectivity.
func (CommonChecks) DatabaseCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}
		return nil
	}
}

// QueueCheck returns a health check that fails once the queue reported
// by depthFunc holds more than limit records.
func (CommonChecks) QueueCheck(depthFunc func() int, limit int) HealthCheck {
	return func(context.Context) error {
		if n := depthFunc(); n > limit {
			return fmt.Errorf("queue depth %d exceeds %d", n, limit)
		}
		return nil
	}
}

// TableCheck returns a health check reporting the result of validate.
// The signature tables are compiled in, so validate runs only once.
func (CommonChecks) TableCheck(validate func() error) HealthCheck {
	var once sync.Once
	var err error
	return func(context.Context) error {
		once.Do(func() { err = validate() })
		return err
	}
}

// NewHealthMux creates an http.ServeMux with health and metrics endpoints.
func NewHealthMux(health *HealthChecker, provider *Provider) *http.ServeMux {
	mux := http.NewServeMux()

	if health != nil {
		mux.Handle("/healthz", health.LivenessHandler())
		mux.Handle("/readyz", health.ReadinessHandler())
	}

	if provider != nil {
		mux.Handle("/metrics", provider.PrometheusHandler())
	}

	return mux
}

// ListenAndServe starts an HTTP server on the given address.
func ListenAndServe(addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
