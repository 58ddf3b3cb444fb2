package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grokify/omnisniff/pkg/backend"
	"github.com/grokify/omnisniff/pkg/config"
	"github.com/grokify/omnisniff/pkg/proxy"
)

type proxyOptions struct {
	host        string
	port        int
	verbose     bool
	noHeader    bool
	skipHosts   []string
	upstream    string
	store       string
	db          string
	output      string
	metricsPort int
}

func newProxyCmd(root *rootOptions) *cobra.Command {
	opts := &proxyOptions{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Start the sniffing forward proxy",
		Long: `Start an HTTP forward proxy that sniffs every response body.

Each response gets an X-Sniffed-Media-Types header with the suggested
media types, and X-Sniffed-Mismatch when the declared Content-Type is
contradicted by the magic numbers. HTTPS CONNECT tunnels pass through
without inspection.

Examples:
  # Start on the default port (8080), logging results as NDJSON
  omnisniff proxy --output sniffed.ndjson

  # Team mode with SQLite and metrics
  omnisniff proxy --db sqlite://omnisniff.db --metrics-port 9090

  # Chain through an upstream proxy
  omnisniff proxy --upstream http://corporate-proxy:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxy(cmd, root, opts)
		},
	}

	addProxyFlags(cmd, opts)

	return cmd
}

func runProxy(cmd *cobra.Command, root *rootOptions, opts *proxyOptions) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}

	applyProxyFlags(cfg, opts)
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

	p, err := newSniffProxy(cfg, rs.store, tel, logger)
	if err != nil {
		_ = rs.Close(ctx)
		return err
	}

	tel.serve(cfg.Metrics.Port, logger)
	tel.health.SetReady(true)

	addr := fmt.Sprintf("%s:%d", cfg.Proxy.Host, cfg.Proxy.Port)
	logger.Info("omnisniff proxy starting",
		"addr", addr,
		"store", cfg.Store.Type,
		"upstream", cfg.Proxy.Upstream,
		"skipHosts", cfg.Proxy.SkipHosts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.ListenAndServe(addr)
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

func newSniffProxy(cfg *config.Config, store backend.ResultStore, tel *telemetry, logger *slog.Logger) (*proxy.Proxy, error) {
	p, err := proxy.New(&proxy.Config{
		Port:      cfg.Proxy.Port,
		Verbose:   cfg.Proxy.Verbose,
		SetHeader: cfg.Proxy.SetHeader,
		SkipHosts: cfg.Proxy.SkipHosts,
		Upstream:  cfg.Proxy.Upstream,
		Store:     store,
		Metrics:   tel.metrics(),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}
	return p, nil
}

// applyProxyFlags overrides cfg with the proxy command line flags.
func applyProxyFlags(cfg *config.Config, opts *proxyOptions) {
	if opts.host != "" {
		cfg.Proxy.Host = opts.host
	}
	if opts.port > 0 {
		cfg.Proxy.Port = opts.port
	}
	if opts.verbose {
		cfg.Proxy.Verbose = true
	}
	if opts.noHeader {
		cfg.Proxy.SetHeader = false
	}
	if opts.upstream != "" {
		cfg.Proxy.Upstream = opts.upstream
	}
	cfg.Proxy.SkipHosts = append(cfg.Proxy.SkipHosts, opts.skipHosts...)
	applyStoreFlags(&cfg.Store, opts.store, opts.db, opts.output)
	if opts.metricsPort > 0 {
		cfg.Metrics.Port = opts.metricsPort
	}
}

// addProxyFlags registers the flags shared by proxy and daemon start.
func addProxyFlags(cmd *cobra.Command, opts *proxyOptions) {
	cmd.Flags().StringVar(&opts.host, "host", "", "Host to bind to (default from config: 127.0.0.1)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on (default from config: 8080)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable goproxy request logging")
	cmd.Flags().BoolVar(&opts.noHeader, "no-header", false, "Do not add sniff headers to responses")
	cmd.Flags().StringSliceVar(&opts.skipHosts, "skip-host", nil, "Hosts whose responses are not sniffed (supports wildcards)")
	cmd.Flags().StringVar(&opts.upstream, "upstream", "", "Upstream proxy URL (e.g., http://proxy:8080)")
	cmd.Flags().StringVar(&opts.store, "store", "", "Result store: none, memory, file, db")
	cmd.Flags().StringVar(&opts.db, "db", "", "Database URL (sqlite://path or postgres://...); implies --store db")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file for the file store; implies --store file")
	cmd.Flags().IntVar(&opts.metricsPort, "metrics-port", 0, "Port for metrics/health endpoints (0 = disabled)")
}

// args rebuilds the command line for the flags that are set.
func (opts *proxyOptions) args() []string {
	var args []string
	add := func(name, value string) {
		if value != "" {
			args = append(args, "--"+name, value)
		}
	}
	add("host", opts.host)
	if opts.port > 0 {
		add("port", strconv.Itoa(opts.port))
	}
	if opts.verbose {
		args = append(args, "--verbose")
	}
	if opts.noHeader {
		args = append(args, "--no-header")
	}
	for _, h := range opts.skipHosts {
		add("skip-host", h)
	}
	add("upstream", opts.upstream)
	add("store", opts.store)
	add("db", opts.db)
	add("output", opts.output)
	if opts.metricsPort > 0 {
		add("metrics-port", strconv.Itoa(opts.metricsPort))
	}
	return args
}
