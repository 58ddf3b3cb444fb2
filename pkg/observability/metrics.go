// Package observability provides OpenTelemetry instrumentation for OmniSniff.
package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/grokify/omnisniff"
)

// Metrics holds all OmniSniff metrics.
type Metrics struct {
	// HTTP request metrics
	RequestsTotal   metric.Int64Counter
	RequestDuration metric.Float64Histogram
	ActiveRequests  metric.Int64UpDownCounter

	// Sniff metrics
	SniffsTotal     metric.Int64Counter
	SniffDuration   metric.Float64Histogram
	WindowSize      metric.Int64Histogram
	MediaTypeHits   metric.Int64Counter
	SniffsUnmatched metric.Int64Counter
	SniffErrors     metric.Int64Counter

	// Result store metrics
	ResultsStored      metric.Int64Counter
	ResultStoreErrors  metric.Int64Counter
	ResultStoreLatency metric.Float64Histogram
	ResultQueueDepth   metric.Int64ObservableGauge

	// For queue depth callback
	queueDepthFunc func() int64
}

// NewMetrics creates a new Metrics instance with all instruments registered.
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}

	meter := meterProvider.Meter(instrumentationName)
	m := &Metrics{}

	var err error

	// HTTP request metrics
	m.RequestsTotal, err = meter.Int64Counter(
		"omnisniff.requests.total",
		metric.WithDescription("Total number of HTTP requests processed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.RequestDuration, err = meter.Float64Histogram(
		"omnisniff.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveRequests, err = meter.Int64UpDownCounter(
		"omnisniff.requests.active",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// Sniff metrics
	m.SniffsTotal, err = meter.Int64Counter(
		"omnisniff.sniffs.total",
		metric.WithDescription("Total number of payloads sniffed"),
		metric.WithUnit("{sniff}"),
	)
	if err != nil {
		return nil, err
	}

	m.SniffDuration, err = meter.Float64Histogram(
		"omnisniff.sniff.duration",
		metric.WithDescription("Time spent reading the window and matching signatures"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100),
	)
	if err != nil {
		return nil, err
	}

	m.WindowSize, err = meter.Int64Histogram(
		"omnisniff.window.size",
		metric.WithDescription("Number of bytes in the sniffed window"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(0, 2, 4, 8, 12, 23, 64, 151),
	)
	if err != nil {
		return nil, err
	}

	m.MediaTypeHits, err = meter.Int64Counter(
		"omnisniff.mediatype.hits",
		metric.WithDescription("Number of sniffs that suggested each media type"),
		metric.WithUnit("{sniff}"),
	)
	if err != nil {
		return nil, err
	}

	m.SniffsUnmatched, err = meter.Int64Counter(
		"omnisniff.sniffs.unmatched",
		metric.WithDescription("Number of sniffs with no magic number match"),
		metric.WithUnit("{sniff}"),
	)
	if err != nil {
		return nil, err
	}

	m.SniffErrors, err = meter.Int64Counter(
		"omnisniff.sniff.errors",
		metric.WithDescription("Number of sniffs that failed to read their input"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	// Result store metrics
	m.ResultsStored, err = meter.Int64Counter(
		"omnisniff.results.stored",
		metric.WithDescription("Total number of sniff results stored"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	m.ResultStoreErrors, err = meter.Int64Counter(
		"omnisniff.results.store.errors",
		metric.WithDescription("Total number of sniff result store errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.ResultStoreLatency, err = meter.Float64Histogram(
		"omnisniff.results.store.duration",
		metric.WithDescription("Result store write duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RegisterQueueDepthCallback registers a callback to observe queue depth.
func (m *Metrics) RegisterQueueDepthCallback(meterProvider metric.MeterProvider, fn func() int64) error {
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}

	meter := meterProvider.Meter(instrumentationName)
	m.queueDepthFunc = fn

	var err error
	m.ResultQueueDepth, err = meter.Int64ObservableGauge(
		"omnisniff.results.queue.depth",
		metric.WithDescription("Current number of results waiting to be stored"),
		metric.WithUnit("{record}"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			if m.queueDepthFunc != nil {
				o.Observe(m.queueDepthFunc())
			}
			return nil
		}),
	)
	return err
}

// RecordSniff records one sniff. origin names the surface that produced
// it (api, proxy, cli); mediaTypes are the magic number matches.
func (m *Metrics) RecordSniff(ctx context.Context, origin string, windowSize int, duration time.Duration, mediaTypes []string) {
	attrs := metric.WithAttributes(attribute.String("origin", origin))

	m.SniffsTotal.Add(ctx, 1, attrs)
	m.SniffDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.WindowSize.Record(ctx, int64(windowSize), attrs)

	if len(mediaTypes) == 0 {
		m.SniffsUnmatched.Add(ctx, 1, attrs)
		return
	}
	for _, mt := range mediaTypes {
		m.MediaTypeHits.Add(ctx, 1, metric.WithAttributes(
			attribute.String("origin", origin),
			attribute.String("media_type", mt),
		))
	}
}

// RecordSniffError records a sniff whose input could not be read.
func (m *Metrics) RecordSniffError(ctx context.Context, origin string) {
	m.SniffErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("origin", origin)))
}

// RecordRequest records metrics for a completed HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status_code", statusCode),
		attribute.String("status_class", statusClass(statusCode)),
	}

	m.RequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RequestStart should be called when a request starts.
func (m *Metrics) RequestStart(ctx context.Context) {
	m.ActiveRequests.Add(ctx, 1)
}

// RequestEnd should be called when a request ends.
func (m *Metrics) RequestEnd(ctx context.Context) {
	m.ActiveRequests.Add(ctx, -1)
}

// RecordResultStored records a successful result store.
func (m *Metrics) RecordResultStored(ctx context.Context) {
	m.ResultsStored.Add(ctx, 1)
}

// RecordResultStoreError records a result store error.
func (m *Metrics) RecordResultStoreError(ctx context.Context) {
	m.ResultStoreErrors.Add(ctx, 1)
}

// RecordResultStoreDuration records how long a store write took.
func (m *Metrics) RecordResultStoreDuration(ctx context.Context, d time.Duration) {
	m.ResultStoreLatency.Record(ctx, float64(d.Microseconds())/1000)
}

// statusClass returns the status class (1xx, 2xx, etc.)
func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}

// MetricsMiddleware wraps an http.Handler with metrics collection.
// The request path is used as the route attribute.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		m.RequestStart(ctx)
		defer m.RequestEnd(ctx)

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.RecordRequest(ctx, r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
