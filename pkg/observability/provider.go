package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider owns the meter provider of a sniffing process and, when
// Prometheus export is on, the registry served at /metrics.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Metrics       *Metrics

	registry *promclient.Registry
}

// Config configures the observability provider.
type Config struct {
	// ServiceName is exported as the constant "service" label.
	ServiceName string

	// ServiceVersion is exported as the constant "version" label.
	ServiceVersion string

	// EnablePrometheus enables the Prometheus metrics exporter.
	EnablePrometheus bool
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:      "omnisniff",
		ServiceVersion:   "dev",
		EnablePrometheus: true,
	}
}

// NewProvider creates the meter provider, installs it as the global otel
// provider and creates the sniffing instruments. Each provider exports
// to its own registry so several can coexist in one process.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &Provider{}
	var opts []sdkmetric.Option
	if cfg.EnablePrometheus {
		p.registry = promclient.NewRegistry()
		registerer := promclient.WrapRegistererWith(promclient.Labels{
			"service": cfg.ServiceName,
			"version": cfg.ServiceVersion,
		}, p.registry)
		exporter, err := prometheus.New(prometheus.WithRegisterer(registerer))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
	}
	p.MeterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.MeterProvider)

	metrics, err := NewMetrics(p.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	p.Metrics = metrics

	return p, nil
}

// PrometheusHandler serves the provider's registry. Without Prometheus
// export it answers 404.
func (p *Provider) PrometheusHandler() http.Handler {
	if p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.MeterProvider != nil {
		return p.MeterProvider.Shutdown(ctx)
	}
	return nil
}

// BackendMetrics adapts Metrics to the backend.Metrics interface used by
// the result stores.
type BackendMetrics struct {
	m     *Metrics
	ctx   context.Context
	depth atomic.Int64
}

// NewBackendMetrics creates a backend.Metrics adapter.
func NewBackendMetrics(m *Metrics) *BackendMetrics {
	return &BackendMetrics{
		m:   m,
		ctx: context.Background(),
	}
}

// IncStoreSuccess increments successful store counter.
func (b *BackendMetrics) IncStoreSuccess() {
	b.m.RecordResultStored(b.ctx)
}

// IncStoreError increments store error counter.
func (b *BackendMetrics) IncStoreError() {
	b.m.RecordResultStoreError(b.ctx)
}

// ObserveStoreDuration records store operation duration.
func (b *BackendMetrics) ObserveStoreDuration(d time.Duration) {
	b.m.RecordResultStoreDuration(b.ctx, d)
}

// SetQueueDepth remembers the depth last reported by an async store.
// The gauge itself is observed through RegisterQueueDepthCallback; pass
// QueueDepth as its callback when no store is at hand.
func (b *BackendMetrics) SetQueueDepth(n int) {
	b.depth.Store(int64(n))
}

// QueueDepth returns the depth last passed to SetQueueDepth.
func (b *BackendMetrics) QueueDepth() int64 {
	return b.depth.Load()
}
