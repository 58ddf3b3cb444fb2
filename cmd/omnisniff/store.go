package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grokify/omnisniff/pkg/backend"
	"github.com/grokify/omnisniff/pkg/config"
	"github.com/grokify/omnisniff/pkg/observability"
)

// resultStore is the store chain built from config.StoreConfig.
type resultStore struct {
	// store is the outermost store; sniff surfaces write to it.
	store backend.ResultStore
	// querier reads results back, or nil when the backend cannot.
	querier backend.ResultQuerier
	// async is set when writes go through the async wrapper.
	async *backend.AsyncResultStoreWrapper
	// ping checks the database connection, or nil.
	ping func(ctx context.Context) error
}

// openStore builds the configured result store. The database and file
// backends are wrapped for async writes; a sample rate below 1 adds
// the sampling wrapper on top.
func openStore(ctx context.Context, cfg config.StoreConfig, metrics backend.Metrics) (*resultStore, error) {
	rs := &resultStore{}

	var inner backend.ResultStore
	switch cfg.Type {
	case "", config.StoreNone:
		rs.store = backend.DiscardResultStore{}
		return rs, nil
	case config.StoreMemory:
		mem := backend.NewMemoryResultStore(&backend.MemoryResultStoreConfig{Metrics: metrics})
		inner = mem
		rs.querier = mem
	case config.StoreFile:
		file, err := backend.NewFileResultStore(&backend.FileResultStoreConfig{
			Path:    cfg.Output,
			Format:  backend.Format(cfg.Format),
			Metrics: metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create file store: %w", err)
		}
		inner = file
	case config.StoreDB:
		db, err := backend.NewDatabaseResultStore(ctx, &backend.DatabaseResultStoreConfig{
			DatabaseURL: cfg.DB,
			Metrics:     metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		inner = db
		rs.querier = db
		rs.ping = db.Ping
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}

	rs.store = inner
	if cfg.Type != config.StoreMemory {
		rs.async = backend.NewAsyncResultStore(inner, &backend.AsyncConfig{
			QueueSize: cfg.Async.QueueSize,
			BatchSize: cfg.Async.BatchSize,
			Workers:   cfg.Async.Workers,
			Metrics:   metrics,
		})
		rs.store = rs.async
	}

	if cfg.SampleRate < 1 {
		rs.store = backend.NewSamplingResultStore(rs.store, &backend.SamplingConfig{
			SampleRate: cfg.SampleRate,
		})
	}

	return rs, nil
}

// register wires the store into metrics and health checks.
func (rs *resultStore) register(obs *observability.Provider, health *observability.HealthChecker, logger *slog.Logger) {
	if obs != nil && rs.async != nil {
		if err := obs.Metrics.RegisterQueueDepthCallback(obs.MeterProvider, func() int64 {
			return int64(rs.async.QueueDepth())
		}); err != nil {
			logger.Warn("failed to register queue depth callback", "error", err)
		}
	}
	if health == nil {
		return
	}
	if rs.ping != nil {
		health.RegisterCheck("database", observability.CommonChecks{}.DatabaseCheck(rs.ping))
	}
	if rs.async != nil {
		health.RegisterCheck("queue", observability.CommonChecks{}.QueueCheck(rs.async.QueueDepth, rs.async.QueueCapacity()*9/10))
	}
}

// Close flushes queued records and closes the chain.
func (rs *resultStore) Close(ctx context.Context) error {
	if rs.async != nil {
		if err := rs.async.Flush(ctx); err != nil {
			return fmt.Errorf("failed to flush results: %w", err)
		}
	}
	return rs.store.Close()
}

// applyStoreFlags overrides cfg with command line store flags. A
// database URL or output path selects its store type unless storeType
// is given explicitly.
func applyStoreFlags(cfg *config.StoreConfig, storeType, db, output string) {
	if db != "" {
		cfg.DB = db
		cfg.Type = config.StoreDB
	}
	if output != "" {
		cfg.Output = output
		if db == "" {
			cfg.Type = config.StoreFile
		}
	}
	if storeType != "" {
		cfg.Type = storeType
	}
}
