// Package backend provides pluggable storage for OmniSniff sniff results.
//
// OmniSniff can run with different result backends:
//
//   - Laptop Mode: NDJSON file or stdout, or an in-memory ring for the API
//   - Team Mode: SQLite database
//   - Production Mode: PostgreSQL behind the async wrapper, optionally sampled
//
// The same binary works in all modes - just configure which store to use.
package backend

import (
	"context"
	"time"
)

// ResultStore is the interface for storing sniff results.
// Implementations must be safe for concurrent use.
type ResultStore interface {
	// Store saves a single sniff result.
	Store(ctx context.Context, rec *Record) error

	// StoreBatch saves multiple sniff results efficiently.
	StoreBatch(ctx context.Context, recs []*Record) error

	// Close releases any resources held by the store.
	Close() error
}

// ResultQuerier is an optional interface for querying stored results.
// Not every ResultStore supports querying (e.g., file output).
type ResultQuerier interface {
	// Query returns records matching the filter, newest first.
	Query(ctx context.Context, filter *ResultFilter) ([]*Record, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, filter *ResultFilter) (int64, error)

	// Stats returns aggregate statistics.
	Stats(ctx context.Context, filter *ResultFilter) (*ResultStats, error)
}

// ResultFilter specifies criteria for querying sniff results.
type ResultFilter struct {
	// Time range
	StartTime time.Time
	EndTime   time.Time

	// Origins restricts results to the given surfaces (api, proxy, cli).
	Origins []string

	// MediaType keeps only results that suggested this media type.
	MediaType string

	// Unmatched keeps only results with no magic number match.
	Unmatched bool

	// Pagination
	Limit  int
	Offset int
}

// ResultStats contains aggregate sniff statistics.
type ResultStats struct {
	Total         int64            `json:"total"`
	Unmatched     int64            `json:"unmatched"`
	TotalBytes    int64            `json:"totalBytes"`
	ByOrigin      map[string]int64 `json:"byOrigin"`
	ByMagic       map[string]int64 `json:"byMagic"`
	ExtensionOnly int64            `json:"extensionOnly"`
	MagicOnly     int64            `json:"magicOnly"`
	UniqueDigests int64            `json:"uniqueDigests"`
}

// AsyncResultStore wraps a ResultStore with async buffered writes.
// This keeps request handling from blocking on storage.
type AsyncResultStore interface {
	ResultStore

	// QueueDepth returns the current number of records waiting to be stored.
	QueueDepth() int

	// Flush blocks until all queued records are stored.
	Flush(ctx context.Context) error
}

// Metrics provides observability for backend operations.
type Metrics interface {
	// IncStoreSuccess increments successful store counter.
	IncStoreSuccess()

	// IncStoreError increments store error counter.
	IncStoreError()

	// ObserveStoreDuration records store operation duration.
	ObserveStoreDuration(d time.Duration)

	// SetQueueDepth sets the current queue depth gauge.
	SetQueueDepth(n int)
}

// NoopMetrics is a Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) IncStoreSuccess()                   {}
func (NoopMetrics) IncStoreError()                     {}
func (NoopMetrics) ObserveStoreDuration(time.Duration) {}
func (NoopMetrics) SetQueueDepth(int)                  {}
