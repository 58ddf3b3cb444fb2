package backend

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// FileResultStore writes sniff results to a file in NDJSON format.
// This is the simplest backend, suitable for laptop mode.
type FileResultStore struct {
	mu      sync.Mutex
	writer  io.Writer
	file    *os.File // nil if using stdout or provided writer
	format  Format
	metrics Metrics
}

// Format specifies the output format for file-based storage.
type Format string

const (
	FormatNDJSON Format = "ndjson" // Newline-delimited JSON (default)
	FormatJSON   Format = "json"   // Pretty-printed JSON
)

// FileResultStoreConfig configures a FileResultStore.
type FileResultStoreConfig struct {
	// Path is the file path to append to. Empty means stdout.
	Path string

	// Writer is an alternative to Path for custom output destinations.
	// If set, Path is ignored.
	Writer io.Writer

	// Format specifies the output format (default: ndjson).
	Format Format

	// Metrics for observability (optional).
	Metrics Metrics
}

// NewFileResultStore creates a new file-based result store.
func NewFileResultStore(cfg *FileResultStoreConfig) (*FileResultStore, error) {
	if cfg == nil {
		cfg = &FileResultStoreConfig{}
	}

	store := &FileResultStore{
		format:  cfg.Format,
		metrics: cfg.Metrics,
	}

	if store.format == "" {
		store.format = FormatNDJSON
	}

	if store.metrics == nil {
		store.metrics = NoopMetrics{}
	}

	switch {
	case cfg.Writer != nil:
		store.writer = cfg.Writer
	case cfg.Path != "":
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		store.file = f
		store.writer = f
	default:
		store.writer = os.Stdout
	}

	return store, nil
}

// Store writes a single record followed by a newline.
func (s *FileResultStore) Store(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}

	start := time.Now()
	defer func() { s.metrics.ObserveStoreDuration(time.Since(start)) }()

	var data []byte
	var err error

	switch s.format {
	case FormatJSON:
		data, err = json.MarshalIndent(rec, "", "  ")
	default: // FormatNDJSON
		data, err = json.Marshal(rec)
	}

	if err != nil {
		s.metrics.IncStoreError()
		return err
	}

	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(data); err != nil {
		s.metrics.IncStoreError()
		return err
	}

	s.metrics.IncStoreSuccess()
	return nil
}

// StoreBatch writes multiple records in order.
func (s *FileResultStore) StoreBatch(ctx context.Context, recs []*Record) error {
	for _, rec := range recs {
		if err := s.Store(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the file if one was opened.
func (s *FileResultStore) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// DiscardResultStore is a ResultStore that discards all records.
// Used when result storage is disabled.
type DiscardResultStore struct{}

func (DiscardResultStore) Store(ctx context.Context, rec *Record) error         { return nil }
func (DiscardResultStore) StoreBatch(ctx context.Context, recs []*Record) error { return nil }
func (DiscardResultStore) Close() error                                         { return nil }
