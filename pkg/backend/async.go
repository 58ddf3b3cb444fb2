package backend

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// AsyncResultStoreWrapper wraps a ResultStore with async buffered writes.
// This keeps the API and proxy from blocking on storage operations.
type AsyncResultStoreWrapper struct {
	store       ResultStore
	queue       chan *Record
	batchSize   int
	flushPeriod time.Duration
	workers     int
	metrics     Metrics

	// pending counts records accepted but not yet handed to the store.
	pending atomic.Int64

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopped  bool
	mu       sync.RWMutex
}

// AsyncConfig configures the async wrapper.
type AsyncConfig struct {
	// QueueSize is the buffer size for pending records (default: 10000).
	QueueSize int

	// BatchSize is the number of records to batch before writing (default: 100).
	BatchSize int

	// FlushPeriod is how often to flush partial batches (default: 100ms).
	FlushPeriod time.Duration

	// Workers is the number of concurrent workers (default: 2).
	Workers int

	// Metrics for observability (optional).
	Metrics Metrics
}

// DefaultAsyncConfig returns default async configuration.
func DefaultAsyncConfig() *AsyncConfig {
	return &AsyncConfig{
		QueueSize:   10000,
		BatchSize:   100,
		FlushPeriod: 100 * time.Millisecond,
		Workers:     2,
	}
}

// NewAsyncResultStore wraps a ResultStore with async buffered writes.
func NewAsyncResultStore(store ResultStore, cfg *AsyncConfig) *AsyncResultStoreWrapper {
	if cfg == nil {
		cfg = DefaultAsyncConfig()
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushPeriod <= 0 {
		cfg.FlushPeriod = 100 * time.Millisecond
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	wrapper := &AsyncResultStoreWrapper{
		store:       store,
		queue:       make(chan *Record, cfg.QueueSize),
		batchSize:   cfg.BatchSize,
		flushPeriod: cfg.FlushPeriod,
		workers:     cfg.Workers,
		metrics:     metrics,
		stopChan:    make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		wrapper.wg.Add(1)
		go wrapper.worker()
	}

	return wrapper
}

// Store queues a record for async storage.
// This method never blocks; records are dropped when the queue is full.
func (w *AsyncResultStoreWrapper) Store(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return ErrStoreClosed
	}

	w.pending.Add(1)
	select {
	case w.queue <- rec:
		w.metrics.SetQueueDepth(len(w.queue))
		return nil
	default:
		// Queue full - drop the record
		w.pending.Add(-1)
		w.metrics.IncStoreError()
		return nil
	}
}

// StoreBatch queues multiple records for async storage.
func (w *AsyncResultStoreWrapper) StoreBatch(ctx context.Context, recs []*Record) error {
	for _, rec := range recs {
		if err := w.Store(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// QueueDepth returns the current number of records waiting to be stored.
func (w *AsyncResultStoreWrapper) QueueDepth() int {
	return len(w.queue)
}

// QueueCapacity returns the number of records the queue can hold.
func (w *AsyncResultStoreWrapper) QueueCapacity() int {
	return cap(w.queue)
}

// Flush blocks until every accepted record has been written.
func (w *AsyncResultStoreWrapper) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if w.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops all workers, drains remaining records, and closes the
// underlying store.
func (w *AsyncResultStoreWrapper) Close() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	return w.store.Close()
}

// worker processes records from the queue.
func (w *AsyncResultStoreWrapper) worker() {
	defer w.wg.Done()

	batch := make([]*Record, 0, w.batchSize)
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.store.StoreBatch(ctx, batch)
		cancel()

		if err != nil {
			w.metrics.IncStoreError()
		}
		w.metrics.ObserveStoreDuration(time.Since(start))

		w.pending.Add(-int64(len(batch)))
		batch = batch[:0]
		w.metrics.SetQueueDepth(len(w.queue))
	}

	for {
		select {
		case rec := <-w.queue:
			batch = append(batch, rec)
			if len(batch) >= w.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-w.stopChan:
			// Drain remaining records
			for {
				select {
				case rec := <-w.queue:
					batch = append(batch, rec)
					if len(batch) >= w.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// SamplingResultStore wraps a ResultStore with sampling support.
// Used for high-volume proxies where storing every sniff is not feasible.
type SamplingResultStore struct {
	store            ResultStore
	sampleRate       float64
	alwaysMediaTypes []string // Media types to always store
	neverHosts       []string // Hosts to never store
	counter          uint64
	mu               sync.Mutex
}

// SamplingConfig configures result sampling.
type SamplingConfig struct {
	// SampleRate is the fraction of records to store (0.0 to 1.0).
	SampleRate float64

	// AlwaysMediaTypes lists media types whose records are always stored
	// (overrides SampleRate).
	AlwaysMediaTypes []string

	// NeverHosts lists hosts whose records are never stored. A leading
	// "*." matches any subdomain.
	NeverHosts []string
}

// NewSamplingResultStore wraps a ResultStore with sampling.
func NewSamplingResultStore(store ResultStore, cfg *SamplingConfig) *SamplingResultStore {
	if cfg == nil {
		cfg = &SamplingConfig{SampleRate: 1.0}
	}

	return &SamplingResultStore{
		store:            store,
		sampleRate:       cfg.SampleRate,
		alwaysMediaTypes: cfg.AlwaysMediaTypes,
		neverHosts:       cfg.NeverHosts,
	}
}

// Store samples and potentially stores a record.
func (s *SamplingResultStore) Store(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}

	for _, h := range s.neverHosts {
		if matchHost(rec.Host, h) {
			return nil
		}
	}

	for _, mt := range rec.MediaTypes {
		if slices.Contains(s.alwaysMediaTypes, mt) {
			return s.store.Store(ctx, rec)
		}
	}

	if !s.shouldSample() {
		return nil
	}

	return s.store.Store(ctx, rec)
}

// StoreBatch samples and stores multiple records.
func (s *SamplingResultStore) StoreBatch(ctx context.Context, recs []*Record) error {
	for _, rec := range recs {
		if err := s.Store(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying store.
func (s *SamplingResultStore) Close() error {
	return s.store.Close()
}

// shouldSample returns true if the current record should be stored.
func (s *SamplingResultStore) shouldSample() bool {
	if s.sampleRate >= 1.0 {
		return true
	}
	if s.sampleRate <= 0.0 {
		return false
	}

	s.mu.Lock()
	s.counter++
	counter := s.counter
	s.mu.Unlock()

	// Keep every Nth record
	interval := uint64(1.0 / s.sampleRate)
	return counter%interval == 0
}

// matchHost checks if a host matches a pattern. A pattern of the form
// "*.example.com" matches example.com and any of its subdomains.
func matchHost(host, pattern string) bool {
	if pattern == "" || host == "" {
		return false
	}

	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}

	return host == pattern
}

var (
	_ AsyncResultStore = (*AsyncResultStoreWrapper)(nil)
	_ ResultStore      = (*SamplingResultStore)(nil)
)
