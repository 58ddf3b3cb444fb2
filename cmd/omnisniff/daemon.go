package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grokify/omnisniff/pkg/daemon"
)

type daemonOptions struct {
	proxyOptions

	foreground bool
	pidFile    string
	socketPath string
	logFile    string
}

func newDaemonCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the omnisniffd background proxy",
		Long: `Manage the omnisniffd background daemon.

The daemon runs the sniffing proxy in the background and is controlled
through a Unix socket.

Examples:
  # Start the daemon keeping results in SQLite
  omnisniff daemon start --db sqlite://omnisniff.db

  # Check daemon status
  omnisniff daemon status

  # Show the latest unmatched responses
  omnisniff daemon results --unmatched

  # Stop the daemon
  omnisniff daemon stop`,
	}

	cmd.AddCommand(
		newDaemonStartCmd(root),
		newDaemonStopCmd(),
		newDaemonStatusCmd(),
		newDaemonResultsCmd(),
	)

	return cmd
}

func newDaemonStartCmd(root *rootOptions) *cobra.Command {
	opts := &daemonOptions{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long: `Start the omnisniffd daemon.

By default the daemon starts in the background. Use --foreground to run
in the foreground (useful for debugging or when managed by systemd).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonStart(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	cmd.Flags().StringVar(&opts.pidFile, "pid-file", daemon.DefaultPIDFile, "PID file path")
	cmd.Flags().StringVar(&opts.socketPath, "socket", daemon.DefaultSocketPath, "Unix socket path")
	cmd.Flags().StringVar(&opts.logFile, "log-file", daemon.DefaultLogFile, "Log file path")
	addProxyFlags(cmd, &opts.proxyOptions)

	return cmd
}

func runDaemonStart(cmd *cobra.Command, root *rootOptions, opts *daemonOptions) error {
	running, pid, err := daemon.IsRunning(opts.pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}

	if opts.foreground {
		return runDaemonForeground(root, opts)
	}

	pid, err = daemon.StartBackground(daemonArgs(root, opts), opts.pidFile, opts.logFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Daemon started with PID %d\n", pid)
	return nil
}

// daemonArgs is the command line the background process runs with.
func daemonArgs(root *rootOptions, opts *daemonOptions) []string {
	args := []string{"daemon", "start", "--foreground",
		"--pid-file", opts.pidFile,
		"--socket", opts.socketPath,
		"--log-file", opts.logFile,
	}
	if root.configPath != "" {
		args = append(args, "--config", root.configPath)
	}
	if root.logLevel != "" {
		args = append(args, "--log-level", root.logLevel)
	}
	if root.logFormat != "" {
		args = append(args, "--log-format", root.logFormat)
	}
	return append(args, opts.proxyOptions.args()...)
}

func runDaemonForeground(root *rootOptions, opts *daemonOptions) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}
	applyProxyFlags(cfg, &opts.proxyOptions)
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

	addr := net.JoinHostPort(cfg.Proxy.Host, strconv.Itoa(cfg.Proxy.Port))
	d := daemon.New(&daemon.Config{
		PIDFile:     opts.pidFile,
		SocketPath:  opts.socketPath,
		ProxyAddr:   addr,
		MetricsPort: cfg.Metrics.Port,
		Store:       cfg.Store.Type,
		Version:     version,
		Logger:      logger,
	})
	if rs.querier != nil {
		d.SetQuerier(rs.querier)
	}

	p, err := newSniffProxy(cfg, d.Track(rs.store), tel, logger)
	if err != nil {
		_ = rs.Close(ctx)
		return err
	}

	proxyServer := &http.Server{
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	proxyErrCh := make(chan error, 1)

	d.SetCallbacks(
		func() error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() {
				if err := proxyServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					proxyErrCh <- err
				}
			}()
			return nil
		},
		func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return proxyServer.Shutdown(shutdownCtx)
		},
	)

	if err := d.Start(ctx); err != nil {
		_ = rs.Close(ctx)
		return err
	}

	tel.serve(cfg.Metrics.Port, logger)
	tel.health.SetReady(true)

	logger.Info("omnisniffd started",
		"proxy", addr,
		"socket", opts.socketPath,
		"pidFile", opts.pidFile,
		"store", cfg.Store.Type)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("shutting down daemon")
		if err := d.Stop(ctx); err != nil {
			logger.Error("daemon stop error", "error", err)
		}
	case <-d.Done():
	case runErr = <-proxyErrCh:
		runErr = fmt.Errorf("proxy error: %w", runErr)
		if err := d.Stop(ctx); err != nil {
			logger.Error("daemon stop error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	tel.shutdown(shutdownCtx, logger)
	if err := rs.Close(shutdownCtx); err != nil {
		logger.Error("failed to close result store", "error", err)
	}
	return runErr
}

func newDaemonStopCmd() *cobra.Command {
	var pidFile string
	var socketPath string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			// Try graceful stop via socket first
			client := daemon.NewClient(socketPath)
			if err := client.Stop(); err == nil {
				for range 30 {
					time.Sleep(100 * time.Millisecond)
					if running, _, _ := daemon.IsRunning(pidFile); !running {
						fmt.Fprintln(out, "Daemon stopped")
						return nil
					}
				}
			}

			// Fall back to PID-based stop
			pid, err := daemon.StopByPID(pidFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Daemon (PID %d) stopped\n", pid)
			return nil
		},
	}

	cmd.Flags().StringVar(&pidFile, "pid-file", daemon.DefaultPIDFile, "PID file path")
	cmd.Flags().StringVar(&socketPath, "socket", daemon.DefaultSocketPath, "Unix socket path")

	return cmd
}

func newDaemonStatusCmd() *cobra.Command {
	var pidFile string
	var socketPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			running, pid, err := daemon.IsRunning(pidFile)
			if err != nil {
				return fmt.Errorf("failed to check status: %w", err)
			}

			status := &daemon.Status{Running: running, PID: pid}
			var socketErr error
			if running {
				if s, err := daemon.NewClient(socketPath).GetStatus(); err == nil {
					status = s
				} else {
					socketErr = err
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			switch {
			case !running:
				fmt.Fprintln(out, "Daemon is not running")
			case socketErr != nil:
				fmt.Fprintf(out, "Daemon running (PID %d) but socket not responding: %v\n", pid, socketErr)
			default:
				fmt.Fprintf(out, "Daemon Status:\n")
				fmt.Fprintf(out, "  Running:      yes\n")
				fmt.Fprintf(out, "  PID:          %d\n", status.PID)
				fmt.Fprintf(out, "  Uptime:       %s\n", status.Uptime)
				fmt.Fprintf(out, "  Proxy:        %s\n", status.ProxyAddr)
				if status.MetricsPort > 0 {
					fmt.Fprintf(out, "  Metrics Port: %d\n", status.MetricsPort)
				}
				fmt.Fprintf(out, "  Store:        %s\n", status.Store)
				fmt.Fprintf(out, "  Sniffs:       %d (%d unmatched)\n", status.Sniffs, status.Unmatched)
				if status.Version != "" {
					fmt.Fprintf(out, "  Version:      %s\n", status.Version)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pidFile, "pid-file", daemon.DefaultPIDFile, "PID file path")
	cmd.Flags().StringVar(&socketPath, "socket", daemon.DefaultSocketPath, "Unix socket path")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func newDaemonResultsCmd() *cobra.Command {
	var socketPath string
	var limit int
	var mediaType string
	var unmatched bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show results stored by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"limit": {strconv.Itoa(limit)}}
			if mediaType != "" {
				query.Set("mediaType", mediaType)
			}
			if unmatched {
				query.Set("unmatched", "true")
			}

			resp, err := daemon.NewClient(socketPath).Results(query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			for _, rec := range resp.Results {
				types := "unknown"
				if len(rec.MediaTypes) > 0 {
					types = strings.Join(rec.MediaTypes, ", ")
				}
				fmt.Fprintf(out, "%s  %s  %s\n", rec.CreatedAt.Local().Format(time.DateTime), rec.Source, types)
			}
			fmt.Fprintf(out, "%d of %d results\n", len(resp.Results), resp.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", daemon.DefaultSocketPath, "Unix socket path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of results to show")
	cmd.Flags().StringVar(&mediaType, "media-type", "", "Only results suggesting this media type")
	cmd.Flags().BoolVar(&unmatched, "unmatched", false, "Only results without a magic number match")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
