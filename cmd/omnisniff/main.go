// OmniSniff suggests media types for files, uploads and proxied HTTP
// responses from their names and magic numbers.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/grokify/omnisniff/pkg/config"
	"github.com/grokify/omnisniff/pkg/logging"
)

var version = "0.1.0"

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "omnisniff",
		Short: "Magic number media type sniffer",
		Long: `OmniSniff suggests media types for content from its file extension and
its magic numbers.

It supports:
  - Sniffing files and stdin
  - An HTTP API for uploads
  - A forward proxy that annotates responses with sniffed media types
  - A background daemon running that proxy
  - Result storage in NDJSON files, SQLite or PostgreSQL
  - Inspection and validation of the built-in signature tables`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: ~/.omnisniff/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: text, json")

	rootCmd.AddCommand(
		newSniffCmd(opts),
		newServeCmd(opts),
		newProxyCmd(opts),
		newDaemonCmd(opts),
		newTableCmd(),
		newTypesCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

// load reads the config file and builds the logger. Flags set on the
// command line win over file values.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultConfigPath())
	}
	if err != nil {
		return nil, nil, err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	logger := logging.FromEnv(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return cfg, logger, nil
}
