package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/grokify/omnisniff/pkg/backend"
	"github.com/grokify/omnisniff/pkg/config"
	"github.com/grokify/omnisniff/pkg/observability"
)

// telemetry holds the metrics provider and health checker of a
// long-running command. provider is nil when metrics are disabled.
type telemetry struct {
	provider *observability.Provider
	health   *observability.HealthChecker
}

func setupTelemetry(cfg config.MetricsConfig) (*telemetry, error) {
	t := &telemetry{health: observability.NewHealthChecker(version)}
	t.health.RegisterCheck("tables", observability.CommonChecks{}.TableCheck(func() error {
		return validateTables(io.Discard)
	}))
	if !cfg.Enabled && cfg.Port == 0 {
		return t, nil
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	provider, err := observability.NewProvider(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup observability: %w", err)
	}
	t.provider = provider
	return t, nil
}

func (t *telemetry) metrics() *observability.Metrics {
	if t.provider == nil {
		return nil
	}
	return t.provider.Metrics
}

func (t *telemetry) backendMetrics() backend.Metrics {
	if t.provider == nil {
		return nil
	}
	return observability.NewBackendMetrics(t.provider.Metrics)
}

// serve starts the metrics and health server on port in the background.
func (t *telemetry) serve(port int, logger *slog.Logger) {
	if port <= 0 {
		return
	}
	addr := fmt.Sprintf(":%d", port)
	mux := observability.NewHealthMux(t.health, t.provider)
	go func() {
		logger.Info("metrics/health server listening", "addr", addr)
		if err := observability.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()
}

func (t *telemetry) shutdown(ctx context.Context, logger *slog.Logger) {
	t.health.SetReady(false)
	if t.provider == nil {
		return
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		logger.Error("observability shutdown error", "error", err)
	}
}
