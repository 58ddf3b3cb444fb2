// Package server provides the OmniSniff HTTP API.
//
// Routes:
//   - POST /v1/sniff    - sniff the request body (?filename= supplies the extension guess)
//   - GET  /v1/types    - supported media types with their extensions
//   - GET  /v1/coverage - byte ranges the magic tables read
//   - GET  /v1/results  - stored results (when the store supports querying)
//   - GET  /v1/stats    - aggregate statistics (when the store supports querying)
//   - /healthz, /readyz and /metrics when configured
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/omnisniff/pkg/backend"
	"github.com/grokify/omnisniff/pkg/contentdetect"
	"github.com/grokify/omnisniff/pkg/extension"
	"github.com/grokify/omnisniff/pkg/logging"
	"github.com/grokify/omnisniff/pkg/magic"
	"github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/observability"
	"github.com/grokify/omnisniff/pkg/sparse"
	"github.com/grokify/omnisniff/pkg/suggest"
)

// DefaultMaxBodySize is used when Config.MaxBodySize is not positive.
const DefaultMaxBodySize int64 = 32 * 1024 * 1024

// Config holds API server configuration.
type Config struct {
	// MaxBodySize is the largest body accepted by /v1/sniff
	MaxBodySize int64
	// Store receives one record per sniff (optional)
	Store backend.ResultStore
	// Querier serves /v1/results and /v1/stats. When nil, Store is used
	// if it supports queries.
	Querier backend.ResultQuerier
	// Metrics records sniff and request metrics (optional)
	Metrics *observability.Metrics
	// Provider serves /metrics (optional)
	Provider *observability.Provider
	// Health serves /healthz and /readyz (optional)
	Health *observability.HealthChecker
	// Logger for request events (optional)
	Logger *slog.Logger
}

// Server is the OmniSniff HTTP API.
type Server struct {
	config  *Config
	store   backend.ResultStore
	querier backend.ResultQuerier
	logger  *slog.Logger
}

// New creates a server. A nil cfg uses defaults.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slogutil.Null()
	}
	store := cfg.Store
	if store == nil {
		store = backend.DiscardResultStore{}
	}

	querier := cfg.Querier
	if querier == nil {
		querier, _ = store.(backend.ResultQuerier)
	}

	return &Server{config: cfg, store: store, querier: querier, logger: logger}
}

// Handler returns the API routes wrapped with request metrics when
// metrics are configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sniff", s.handleSniff)
	mux.HandleFunc("GET /v1/types", s.handleTypes)
	mux.HandleFunc("GET /v1/coverage", s.handleCoverage)
	mux.HandleFunc("GET /v1/results", s.handleResults)
	mux.HandleFunc("GET /v1/stats", s.handleStats)

	if s.config.Health != nil {
		mux.Handle("GET /healthz", s.config.Health.LivenessHandler())
		mux.Handle("GET /readyz", s.config.Health.ReadinessHandler())
	}
	if s.config.Provider != nil {
		mux.Handle("GET /metrics", s.config.Provider.PrometheusHandler())
	}

	var h http.Handler = mux
	if s.config.Metrics != nil {
		h = s.config.Metrics.MetricsMiddleware(h)
	}
	return s.withLogger(h)
}

// ListenAndServe serves the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

func (s *Server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithLogger(r.Context(), s.logger.With("method", r.Method, "path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SniffResponse is the body of a successful POST /v1/sniff.
type SniffResponse struct {
	ID          string        `json:"id"`
	Filename    string        `json:"filename,omitempty"`
	Size        int64         `json:"size"`
	ByExtension mediatype.Set `json:"byExtension"`
	ByMagic     mediatype.Set `json:"byMagic"`
	MediaTypes  mediatype.Set `json:"mediaTypes"`
	Primary     string        `json:"primary,omitempty"`
	Candidates  []string      `json:"candidates,omitempty"`
	Binary      bool          `json:"binary"`
	Method      string        `json:"method"`
	Confidence  float64       `json:"confidence"`
}

func (s *Server) handleSniff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	start := time.Now()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodySize))
	if err != nil {
		s.recordError(r)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}

	filename := r.URL.Query().Get("filename")
	sug := suggest.Bytes(filename, data)

	info := contentdetect.Detect("", data)

	rec := backend.NewRecord(backend.OriginAPI, sug)
	rec.Host = clientHost(r)
	if err := s.store.Store(ctx, rec); err != nil {
		logger.Warn("failed to store sniff result", "error", err)
	}

	if s.config.Metrics != nil {
		s.config.Metrics.RecordSniff(ctx, backend.OriginAPI, rec.WindowSize, time.Since(start), rec.ByMagic)
	}
	logger.Debug("sniffed upload",
		"filename", filename,
		"size", len(data),
		"mediaTypes", rec.MediaTypes)

	writeJSON(w, http.StatusOK, SniffResponse{
		ID:          rec.ID,
		Filename:    filename,
		Size:        int64(len(data)),
		ByExtension: sug.ByExtension,
		ByMagic:     sug.ByMagic,
		MediaTypes:  sug.All,
		Primary:     info.MIMEType,
		Candidates:  info.Candidates,
		Binary:      info.IsBinary,
		Method:      info.Method,
		Confidence:  info.Confidence,
	})
}

func (s *Server) recordError(r *http.Request) {
	if s.config.Metrics != nil {
		s.config.Metrics.RecordSniffError(r.Context(), backend.OriginAPI)
	}
}

// TypeInfo describes one supported media type.
type TypeInfo struct {
	MediaType  string   `json:"mediaType"`
	Extensions []string `json:"extensions"`
	Magic      bool     `json:"magic"`
	Masked     bool     `json:"masked"`
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	plain := mediatype.New(magic.Signatures().Keys()...)
	masked := mediatype.New(magic.MaskedSignatures().Keys()...)

	types := make([]TypeInfo, 0, len(mediatype.Supported()))
	for _, mt := range mediatype.Supported() {
		exts := extension.Extensions(mt)
		if exts == nil {
			exts = []string{}
		}
		types = append(types, TypeInfo{
			MediaType:  mt,
			Extensions: exts,
			Magic:      plain.Has(mt) || masked.Has(mt),
			Masked:     masked.Has(mt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": types})
}

// CoverageResponse is the body of GET /v1/coverage.
type CoverageResponse struct {
	Plain  []sparse.Range `json:"plain"`
	Masked []sparse.Range `json:"masked"`
	Head   int            `json:"head"`
	Tail   int            `json:"tail"`
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	head, tail := magic.RequiredSpan()
	writeJSON(w, http.StatusOK, CoverageResponse{
		Plain:  magic.Coverage(),
		Masked: magic.MaskedCoverage(),
		Head:   head,
		Tail:   tail,
	})
}

func (s *Server) requireQuerier(w http.ResponseWriter) (backend.ResultQuerier, bool) {
	if s.querier == nil {
		writeError(w, http.StatusNotImplemented, "result store does not support queries")
		return nil, false
	}
	return s.querier, true
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q, ok := s.requireQuerier(w)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	ctx := r.Context()
	recs, err := q.Query(ctx, filter)
	if err != nil {
		logging.FromContext(ctx).Error("failed to query results", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query results")
		return
	}
	total, err := q.Count(ctx, filter)
	if err != nil {
		logging.FromContext(ctx).Error("failed to count results", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count results")
		return
	}
	if recs == nil {
		recs = []*backend.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": recs, "total": total})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q, ok := s.requireQuerier(w)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := q.Stats(r.Context(), filter)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to compute stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// parseFilter reads since, until (RFC 3339), origin (repeatable),
// mediaType, unmatched, limit and offset from the query string.
func parseFilter(r *http.Request) (*backend.ResultFilter, error) {
	query := r.URL.Query()
	filter := &backend.ResultFilter{
		Origins:   query["origin"],
		MediaType: query.Get("mediaType"),
	}

	var err error
	if v := query.Get("since"); v != "" {
		if filter.StartTime, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, fmt.Errorf("invalid since: %w", err)
		}
	}
	if v := query.Get("until"); v != "" {
		if filter.EndTime, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, fmt.Errorf("invalid until: %w", err)
		}
	}
	if v := query.Get("unmatched"); v != "" {
		if filter.Unmatched, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid unmatched: %w", err)
		}
	}
	if filter.Limit, err = intParam(query.Get("limit")); err != nil {
		return nil, fmt.Errorf("invalid limit: %w", err)
	}
	if filter.Offset, err = intParam(query.Get("offset")); err != nil {
		return nil, fmt.Errorf("invalid offset: %w", err)
	}
	return filter, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative: %d", n)
	}
	return n, nil
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
