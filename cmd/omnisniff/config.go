package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grokify/omnisniff/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `Manage OmniSniff configuration files.`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
	)

	return cmd
}

type configInitOptions struct {
	output string
	force  bool
}

func newConfigInitCmd() *cobra.Command {
	opts := &configInitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Create a new configuration file with default settings.

The configuration file uses YAML format and includes all available options
with their default values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output path (default: ~/.omnisniff/config.yaml)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite existing file")

	return cmd
}

func runConfigInit(cmd *cobra.Command, opts *configInitOptions) error {
	path := opts.output
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if !opts.force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}

	cfg := config.DefaultConfig()

	// Add some example values
	cfg.Store.Type = config.StoreFile
	cfg.Store.Output = "sniffed.ndjson"
	cfg.Proxy.SkipHosts = []string{"*.internal.example.com"}

	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created: %s\n", path)
	fmt.Fprintf(out, "\nTo use this configuration:\n")
	fmt.Fprintf(out, "  omnisniff serve --config %s\n", path)

	return nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show example configuration",
		Long:  `Display an example configuration file with all available options.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "# OmniSniff Configuration Example")
			fmt.Fprintln(out, "#")
			fmt.Fprintln(out, "# Save this to ~/.omnisniff/config.yaml or specify with --config flag")
			fmt.Fprintln(out)
			fmt.Fprintln(out, config.ExampleConfig())
			return nil
		},
	}
}
