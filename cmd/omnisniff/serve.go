package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grokify/omnisniff/pkg/server"
)

type serveOptions struct {
	host        string
	port        int
	maxBodySize int64
	store       string
	db          string
	output      string
	metricsPort int
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sniffing HTTP API",
		Long: `Start the OmniSniff HTTP API.

Routes:
  POST /v1/sniff?filename=NAME  sniff the request body
  GET  /v1/types                supported media types
  GET  /v1/coverage             byte ranges read by the magic tables
  GET  /v1/results              stored results (memory and db stores)
  GET  /v1/stats                result statistics (memory and db stores)
  GET  /healthz, /readyz        health checks
  GET  /metrics                 Prometheus metrics (when enabled)

Examples:
  # Serve on the default port (8090) keeping results in memory
  omnisniff serve --store memory

  # Persist results to SQLite
  omnisniff serve --db sqlite://omnisniff.db

  # Upload a file
  curl --data-binary @photo.jpg 'http://127.0.0.1:8090/v1/sniff?filename=photo.jpg'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "Host to bind to (default from config: 127.0.0.1)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on (default from config: 8090)")
	cmd.Flags().Int64Var(&opts.maxBodySize, "max-body", 0, "Largest accepted upload in bytes")
	cmd.Flags().StringVar(&opts.store, "store", "", "Result store: none, memory, file, db")
	cmd.Flags().StringVar(&opts.db, "db", "", "Database URL (sqlite://path or postgres://...); implies --store db")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file for the file store; implies --store file")
	cmd.Flags().IntVar(&opts.metricsPort, "metrics-port", 0, "Separate port for metrics/health endpoints (0 = disabled)")

	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}

	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port > 0 {
		cfg.Server.Port = opts.port
	}
	if opts.maxBodySize > 0 {
		cfg.Server.MaxBodySize = opts.maxBodySize
	}
	applyStoreFlags(&cfg.Store, opts.store, opts.db, opts.output)
	if opts.metricsPort > 0 {
		cfg.Metrics.Port = opts.metricsPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := setupTelemetry(cfg.Metrics)
	if err != nil {
		return err
	}

	rs, err := openStore(ctx, cfg.Store, tel.backendMetrics())
	if err != nil {
		return err
	}
	rs.register(tel.provider, tel.health, logger)

	srv := server.New(&server.Config{
		MaxBodySize: cfg.Server.MaxBodySize,
		Store:       rs.store,
		Querier:     rs.querier,
		Metrics:     tel.metrics(),
		Provider:    tel.provider,
		Health:      tel.health,
		Logger:      logger,
	})

	tel.serve(cfg.Metrics.Port, logger)
	tel.health.SetReady(true)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("omnisniff API starting",
		"addr", addr,
		"store", cfg.Store.Type,
		"maxBodySize", cfg.Server.MaxBodySize)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-errCh:
	case <-sigChan:
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	tel.shutdown(shutdownCtx, logger)
	if cerr := rs.Close(shutdownCtx); cerr != nil {
		logger.Error("failed to close result store", "error", cerr)
	}
	return err
}
