package backend

import (
	"context"
	"errors"
	"sync"
)

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("store is closed")

// MemoryResultStore keeps the most recent sniff results in a fixed-size
// ring. Suitable for laptop mode and for serving /v1/results from a
// single process.
type MemoryResultStore struct {
	mu      sync.RWMutex
	ring    []*Record
	next    int
	full    bool
	metrics Metrics
	closed  bool
}

// MemoryResultStoreConfig configures a MemoryResultStore.
type MemoryResultStoreConfig struct {
	// Capacity is the maximum number of records kept (default: 10000).
	Capacity int

	// Metrics for observability (optional).
	Metrics Metrics
}

// NewMemoryResultStore creates a new in-memory result store.
func NewMemoryResultStore(cfg *MemoryResultStoreConfig) *MemoryResultStore {
	if cfg == nil {
		cfg = &MemoryResultStoreConfig{}
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 10000
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	return &MemoryResultStore{
		ring:    make([]*Record, capacity),
		metrics: metrics,
	}
}

// Store adds a record, evicting the oldest once the store is full.
func (s *MemoryResultStore) Store(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.metrics.IncStoreError()
		return ErrStoreClosed
	}

	s.ring[s.next] = rec
	s.next++
	if s.next == len(s.ring) {
		s.next = 0
		s.full = true
	}

	s.metrics.IncStoreSuccess()
	return nil
}

// StoreBatch adds multiple records.
func (s *MemoryResultStore) StoreBatch(ctx context.Context, recs []*Record) error {
	for _, rec := range recs {
		if err := s.Store(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the stored records.
func (s *MemoryResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.ring = nil
	s.next = 0
	s.full = false
	return nil
}

// Size returns the number of records held.
func (s *MemoryResultStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.full {
		return len(s.ring)
	}
	return s.next
}

// newest returns the held records that match filter, newest first.
func (s *MemoryResultStore) newest(filter *ResultFilter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	n := s.next
	if s.full {
		n = len(s.ring)
	}

	out := make([]*Record, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		if rec := s.ring[idx]; filter.match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Query returns records matching the filter, newest first.
func (s *MemoryResultStore) Query(ctx context.Context, filter *ResultFilter) ([]*Record, error) {
	recs, err := s.newest(filter)
	if err != nil {
		return nil, err
	}
	return filter.page(recs), nil
}

// Count returns the number of records matching the filter.
func (s *MemoryResultStore) Count(ctx context.Context, filter *ResultFilter) (int64, error) {
	recs, err := s.newest(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

// Stats returns aggregate statistics for records matching the filter.
func (s *MemoryResultStore) Stats(ctx context.Context, filter *ResultFilter) (*ResultStats, error) {
	recs, err := s.newest(filter)
	if err != nil {
		return nil, err
	}
	return statsOf(recs), nil
}

var (
	_ ResultStore   = (*MemoryResultStore)(nil)
	_ ResultQuerier = (*MemoryResultStore)(nil)
)
