// Package daemon runs the sniffing proxy as a background process
// controlled over a Unix socket.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/omnisniff/pkg/backend"
)

// Default paths for daemon files.
var (
	DefaultDir        = defaultDir()
	DefaultPIDFile    = filepath.Join(DefaultDir, "omnisniffd.pid")
	DefaultSocketPath = filepath.Join(DefaultDir, "omnisniffd.sock")
	DefaultLogFile    = filepath.Join(DefaultDir, "omnisniffd.log")
)

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".omnisniff"
	}
	return filepath.Join(home, ".omnisniff")
}

// ErrNotRunning is returned when a control operation needs a running daemon.
var ErrNotRunning = errors.New("daemon is not running")

// Status represents the daemon status.
type Status struct {
	Running     bool      `json:"running"`
	PID         int       `json:"pid,omitempty"`
	StartTime   time.Time `json:"startTime,omitempty"`
	Uptime      string    `json:"uptime,omitempty"`
	ProxyAddr   string    `json:"proxyAddr,omitempty"`
	MetricsPort int       `json:"metricsPort,omitempty"`
	Version     string    `json:"version,omitempty"`
	Store       string    `json:"store,omitempty"`
	Sniffs      int64     `json:"sniffs"`
	Unmatched   int64     `json:"unmatched"`
}

// Config holds daemon configuration.
type Config struct {
	PIDFile     string
	SocketPath  string
	ProxyAddr   string
	MetricsPort int
	Store       string
	Version     string
	Logger      *slog.Logger
}

// DefaultConfig returns default daemon configuration.
func DefaultConfig() *Config {
	return &Config{
		PIDFile:    DefaultPIDFile,
		SocketPath: DefaultSocketPath,
		ProxyAddr:  "127.0.0.1:8080",
	}
}

// Daemon serves the control API and tracks what the proxy sniffed.
type Daemon struct {
	config    *Config
	logger    *slog.Logger
	startTime time.Time
	server    *http.Server
	mu        sync.RWMutex
	stopCh    chan struct{}
	running   bool

	sniffs    atomic.Int64
	unmatched atomic.Int64

	onStart func() error
	onStop  func() error

	querier backend.ResultQuerier
}

// New creates a new daemon instance.
func New(cfg *Config) *Daemon {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slogutil.Null()
	}
	return &Daemon{
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// SetCallbacks sets the functions that start and stop the proxy.
func (d *Daemon) SetCallbacks(onStart, onStop func() error) {
	d.onStart = onStart
	d.onStop = onStop
}

// SetQuerier enables the /results and /stats endpoints.
func (d *Daemon) SetQuerier(q backend.ResultQuerier) {
	d.querier = q
}

// Track wraps store so every record written through it is counted in
// the daemon status.
func (d *Daemon) Track(store backend.ResultStore) backend.ResultStore {
	return &trackingStore{ResultStore: store, d: d}
}

type trackingStore struct {
	backend.ResultStore
	d *Daemon
}

func (s *trackingStore) Store(ctx context.Context, rec *backend.Record) error {
	s.d.observe(rec)
	return s.ResultStore.Store(ctx, rec)
}

func (s *trackingStore) StoreBatch(ctx context.Context, recs []*backend.Record) error {
	for _, rec := range recs {
		s.d.observe(rec)
	}
	return s.ResultStore.StoreBatch(ctx, recs)
}

func (d *Daemon) observe(rec *backend.Record) {
	if rec == nil {
		return
	}
	d.sniffs.Add(1)
	if rec.Unmatched() {
		d.unmatched.Add(1)
	}
}

// Handler returns the control API.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", d.handleStatus)
	mux.HandleFunc("POST /stop", d.handleStop)
	mux.HandleFunc("GET /results", d.handleResults)
	mux.HandleFunc("GET /stats", d.handleStats)
	return mux
}

// Start listens on the control socket, writes the PID file and runs the
// start callback.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.config.SocketPath), 0700); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to create daemon directory: %w", err)
	}

	// Remove stale socket
	os.Remove(d.config.SocketPath)

	listener, err := net.Listen("unix", d.config.SocketPath)
	if err != nil {
		d.setStopped()
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Owner only
	if err := os.Chmod(d.config.SocketPath, 0600); err != nil {
		listener.Close()
		d.setStopped()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	if err := d.writePIDFile(); err != nil {
		listener.Close()
		d.setStopped()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.server = &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if d.onStart != nil {
		if err := d.onStart(); err != nil {
			listener.Close()
			d.cleanup()
			d.setStopped()
			return fmt.Errorf("failed to start proxy: %w", err)
		}
	}

	go func() {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("control server error", "error", err)
		}
	}()

	d.logger.Info("daemon started", "socket", d.config.SocketPath, "pid", os.Getpid())
	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop runs the stop callback, shuts the control server down and
// removes the PID file and socket.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	d.running = false
	d.mu.Unlock()

	var errs []error
	if d.onStop != nil {
		if err := d.onStop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop proxy: %w", err))
		}
	}

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("control server shutdown error", "error", err)
		}
	}

	d.cleanup()
	close(d.stopCh)
	d.logger.Info("daemon stopped")

	return errors.Join(errs...)
}

// Done returns a channel that is closed once the daemon stops.
func (d *Daemon) Done() <-chan struct{} {
	return d.stopCh
}

// Wait blocks until the daemon stops.
func (d *Daemon) Wait() {
	<-d.stopCh
}

// Status returns the current daemon status.
func (d *Daemon) Status() *Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := &Status{
		Running:     d.running,
		Version:     d.config.Version,
		ProxyAddr:   d.config.ProxyAddr,
		MetricsPort: d.config.MetricsPort,
		Store:       d.config.Store,
		Sniffs:      d.sniffs.Load(),
		Unmatched:   d.unmatched.Load(),
	}

	if d.running {
		status.PID = os.Getpid()
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime).Round(time.Second).String()
	}

	return status
}

func (d *Daemon) writePIDFile() error {
	if err := os.MkdirAll(filepath.Dir(d.config.PIDFile), 0700); err != nil {
		return err
	}
	return os.WriteFile(d.config.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0600)
}

func (d *Daemon) cleanup() {
	os.Remove(d.config.PIDFile)
	os.Remove(d.config.SocketPath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Status())
}

func (d *Daemon) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})

	go func() {
		time.Sleep(100 * time.Millisecond) // let the response go out
		if err := d.Stop(context.Background()); err != nil {
			d.logger.Error("daemon stop error", "error", err)
		}
	}()
}

// ResultsResponse is the response of the /results endpoint.
type ResultsResponse struct {
	Results []*backend.Record `json:"results"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// resultFilter reads limit (1 to 1000, default 100), offset, origin,
// mediaType and unmatched from q. Invalid values keep their defaults.
func resultFilter(q url.Values) *backend.ResultFilter {
	filter := &backend.ResultFilter{
		Limit:     100,
		Origins:   q["origin"],
		MediaType: q.Get("mediaType"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit <= 1000 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		filter.Offset = offset
	}
	if unmatched, err := strconv.ParseBool(q.Get("unmatched")); err == nil {
		filter.Unmatched = unmatched
	}
	return filter
}

func (d *Daemon) handleResults(w http.ResponseWriter, r *http.Request) {
	if d.querier == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "result querying not available (no memory or db store configured)"})
		return
	}

	filter := resultFilter(r.URL.Query())
	ctx := r.Context()
	records, err := d.querier.Query(ctx, filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to query results: " + err.Error()})
		return
	}
	if records == nil {
		records = []*backend.Record{}
	}

	countFilter := *filter
	countFilter.Limit, countFilter.Offset = 0, 0
	total, err := d.querier.Count(ctx, &countFilter)
	if err != nil {
		d.logger.Warn("failed to count results", "error", err)
	}

	writeJSON(w, http.StatusOK, ResultsResponse{
		Results: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

func (d *Daemon) handleStats(w http.ResponseWriter, r *http.Request) {
	if d.querier == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "result querying not available (no memory or db store configured)"})
		return
	}
	stats, err := d.querier.Stats(r.Context(), nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute stats: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Client talks to a daemon over its control socket.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new daemon client.
func NewClient(socketPath string) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					var dialer net.Dialer
					return dialer.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) getJSON(path string, v any) error {
	resp, err := c.httpClient.Get("http://unix" + path)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetStatus retrieves the daemon status.
func (c *Client) GetStatus() (*Status, error) {
	var status Status
	if err := c.getJSON("/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Results retrieves stored results. query is passed through as the
// URL query string (limit, offset, origin, mediaType, unmatched).
func (c *Client) Results(query url.Values) (*ResultsResponse, error) {
	var resp ResultsResponse
	path := "/results"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	if err := c.getJSON(path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats retrieves aggregate result statistics.
func (c *Client) Stats() (*backend.ResultStats, error) {
	var stats backend.ResultStats
	if err := c.getJSON("/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Stop sends a stop request to the daemon.
func (c *Client) Stop() error {
	resp, err := c.httpClient.Post("http://unix/stop", "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("stop failed: %s", string(body))
	}

	return nil
}

// IsRunning checks the PID file and whether its process is alive. A
// stale PID file is removed.
func IsRunning(pidFile string) (bool, int, error) {
	if pidFile == "" {
		pidFile = DefaultPIDFile
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0, nil
	}

	if !processAlive(pid) {
		os.Remove(pidFile)
		return false, 0, nil
	}

	return true, pid, nil
}

// StartBackground re-runs the current executable with args, detached
// and logging to logFile, and waits until pidFile shows it running.
func StartBackground(args []string, pidFile, logFile string) (int, error) {
	if pidFile == "" {
		pidFile = DefaultPIDFile
	}
	if logFile == "" {
		logFile = DefaultLogFile
	}

	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to find executable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}

	log, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer log.Close()

	cmd := exec.Command(executable, args...)
	cmd.Stdout = log
	cmd.Stderr = log
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}

	for range 20 {
		time.Sleep(100 * time.Millisecond)
		running, pid, err := IsRunning(pidFile)
		if err != nil {
			return 0, fmt.Errorf("failed to check daemon status: %w", err)
		}
		if running {
			return pid, nil
		}
	}

	return 0, fmt.Errorf("daemon failed to start, check %s", logFile)
}

// StopByPID terminates the daemon named by pidFile and waits for it
// to exit.
func StopByPID(pidFile string) (int, error) {
	if pidFile == "" {
		pidFile = DefaultPIDFile
	}

	running, pid, err := IsRunning(pidFile)
	if err != nil {
		return 0, err
	}
	if !running {
		return 0, ErrNotRunning
	}

	if err := terminate(pid); err != nil {
		return 0, fmt.Errorf("failed to send signal: %w", err)
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if running, _, _ := IsRunning(pidFile); !running {
			return pid, nil
		}
	}

	return pid, errors.New("daemon did not stop in time, try SIGKILL")
}
