package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grokify/omnisniff/pkg/backend"
	"github.com/grokify/omnisniff/pkg/contentdetect"
	"github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/suggest"
)

type sniffOptions struct {
	json   bool
	name   string
	store  bool
	detect bool
}

func newSniffCmd(root *rootOptions) *cobra.Command {
	opts := &sniffOptions{}

	cmd := &cobra.Command{
		Use:   "sniff [files...]",
		Short: "Suggest media types for files or stdin",
		Long: `Suggest media types for each file from its extension and magic numbers.
With no files, the leading bytes of stdin are sniffed.

Examples:
  # Sniff files
  omnisniff sniff photo.jpg song.mp3

  # Sniff stdin, using a name for the extension guess
  curl -s https://example.com/logo | omnisniff sniff --name logo.png

  # JSON output with the most specific type
  omnisniff sniff --json --detect *.bin

  # Store results in the configured result store
  omnisniff sniff --store --config omnisniff.yaml downloads/*`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSniff(cmd, root, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Print results as JSON")
	cmd.Flags().StringVar(&opts.name, "name", "", "File name for the extension guess when reading stdin")
	cmd.Flags().BoolVar(&opts.store, "store", false, "Write results to the configured result store")
	cmd.Flags().BoolVar(&opts.detect, "detect", false, "Also report the most specific type and whether content is binary")

	return cmd
}

// sniffResult is one line of sniff output.
type sniffResult struct {
	Name        string        `json:"name"`
	Size        int64         `json:"size"`
	ByExtension mediatype.Set `json:"byExtension"`
	ByMagic     mediatype.Set `json:"byMagic"`
	MediaTypes  mediatype.Set `json:"mediaTypes"`
	Primary     string        `json:"primary,omitempty"`
	Binary      *bool         `json:"binary,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func runSniff(cmd *cobra.Command, root *rootOptions, opts *sniffOptions, args []string) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store := backend.ResultStore(backend.DiscardResultStore{})
	if opts.store {
		rs, err := openStore(ctx, cfg.Store, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := rs.Close(context.Background()); err != nil {
				logger.Error("failed to close result store", "error", err)
			}
		}()
		store = rs.store
	}

	var results []sniffResult
	if len(args) == 0 {
		results = append(results, sniffStdin(ctx, cmd.InOrStdin(), opts, store, logger))
	} else {
		for _, path := range args {
			results = append(results, sniffFile(ctx, path, opts, store, logger))
		}
	}

	if err := printResults(cmd.OutOrStdout(), results, opts.json); err != nil {
		return err
	}
	if n := countErrors(results); n > 0 {
		return fmt.Errorf("failed to sniff %d of %d inputs", n, len(results))
	}
	return nil
}

func sniffFile(ctx context.Context, path string, opts *sniffOptions, store backend.ResultStore, logger *slog.Logger) sniffResult {
	s, err := suggest.File(ctx, path)
	if err != nil {
		logger.Debug("sniff failed", "path", path, "error", err)
		return sniffResult{Name: path, Size: -1, Error: err.Error()}
	}

	var sample []byte
	if opts.detect {
		sample, err = fileSample(path)
		if err != nil {
			return sniffResult{Name: path, Size: -1, Error: err.Error()}
		}
	}
	return finish(ctx, s, sample, opts, store, logger)
}

func sniffStdin(ctx context.Context, r io.Reader, opts *sniffOptions, store backend.ResultStore, logger *slog.Logger) sniffResult {
	s, rest, err := suggest.Reader(ctx, opts.name, r)
	if err != nil {
		return sniffResult{Name: "-", Size: -1, Error: err.Error()}
	}
	if s.Name == "" {
		s.Name = "-"
	}

	var sample []byte
	if opts.detect {
		if sample, err = readSample(rest); err != nil {
			return sniffResult{Name: s.Name, Size: -1, Error: err.Error()}
		}
	}
	return finish(ctx, s, sample, opts, store, logger)
}

// readSample reads the prefix contentdetect needs. It is longer than
// the sniffing window so that signatures such as tar's fit.
func readSample(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, contentdetect.SampleSize))
}

func fileSample(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readSample(f)
}

// finish stores the suggestion and converts it to a result line. sample
// feeds --detect.
func finish(ctx context.Context, s *suggest.Suggestion, sample []byte, opts *sniffOptions, store backend.ResultStore, logger *slog.Logger) sniffResult {
	rec := backend.NewRecord(backend.OriginCLI, s)
	if err := store.Store(ctx, rec); err != nil {
		logger.Warn("failed to store sniff result", "source", rec.Source, "error", err)
	}

	res := sniffResult{
		Name:        s.Name,
		Size:        rec.Size,
		ByExtension: s.ByExtension,
		ByMagic:     s.ByMagic,
		MediaTypes:  s.All,
	}
	if opts.detect {
		info := contentdetect.Detect("", sample)
		res.Primary = info.MIMEType
		res.Binary = &info.IsBinary
	}
	return res
}

func printResults(w io.Writer, results []sniffResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		var line string
		switch {
		case r.Error != "":
			line = "error: " + r.Error
		case r.MediaTypes.Len() == 0:
			line = "unknown"
		default:
			line = strings.Join(r.MediaTypes.Sorted(), ", ")
			if r.ByMagic.Len() == 0 {
				line += " (extension only)"
			}
		}
		if r.Primary != "" {
			line += " [" + r.Primary + "]"
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", r.Name, line); err != nil {
			return err
		}
	}
	return nil
}

func countErrors(results []sniffResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
