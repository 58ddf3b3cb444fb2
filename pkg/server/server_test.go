package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/grokify/mogo/log/slogutil"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/grokify/omnisniff/pkg/backend"
	"github.com/grokify/omnisniff/pkg/magic"
	"github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/observability"
)

const pdfBody = "%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n"

func newTestServer(t *testing.T, cfg *Config) (http.Handler, *backend.MemoryResultStore) {
	t.Helper()
	store := backend.NewMemoryResultStore(nil)
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Store == nil {
		cfg.Store = store
	}
	cfg.Logger = slogutil.Null()
	return New(cfg).Handler(), store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSniff(t *testing.T) {
	h, store := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/v1/sniff?filename=report.pdf", pdfBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	got := decode[SniffResponse](t, rec)
	if got.Filename != "report.pdf" {
		t.Errorf("Filename = %q", got.Filename)
	}
	if got.Size != int64(len(pdfBody)) {
		t.Errorf("Size = %d, want %d", got.Size, len(pdfBody))
	}
	want := mediatype.New(mediatype.PDF)
	if !got.ByMagic.Equal(want) {
		t.Errorf("ByMagic = %v, want %v", got.ByMagic.Sorted(), want.Sorted())
	}
	if !got.ByExtension.Equal(want) {
		t.Errorf("ByExtension = %v, want %v", got.ByExtension.Sorted(), want.Sorted())
	}
	if !got.MediaTypes.Equal(want) {
		t.Errorf("MediaTypes = %v, want %v", got.MediaTypes.Sorted(), want.Sorted())
	}
	if got.Primary != mediatype.PDF || !got.Binary || got.Method != "magic" {
		t.Errorf("detect = (%q, binary=%v, %q), want (%q, true, magic)",
			got.Primary, got.Binary, got.Method, mediatype.PDF)
	}

	recs, err := store.Query(context.Background(), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("stored %d records, want 1", len(recs))
	}
	stored := recs[0]
	if stored.ID != got.ID {
		t.Errorf("stored ID = %q, response ID = %q", stored.ID, got.ID)
	}
	if stored.Origin != backend.OriginAPI {
		t.Errorf("Origin = %q, want %q", stored.Origin, backend.OriginAPI)
	}
	if stored.Source != "report.pdf" {
		t.Errorf("Source = %q", stored.Source)
	}
	// httptest.NewRequest uses 192.0.2.1:1234 as the remote address.
	if stored.Host != "192.0.2.1" {
		t.Errorf("Host = %q, want 192.0.2.1", stored.Host)
	}
	if stored.Digest != backend.Digest([]byte(pdfBody)) {
		t.Errorf("Digest = %q, want digest of body", stored.Digest)
	}
}

func TestSniffExtensionOnly(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/v1/sniff?filename=logo.png", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[SniffResponse](t, rec)
	if got.ByMagic.Len() != 0 {
		t.Errorf("ByMagic = %v, want empty", got.ByMagic.Sorted())
	}
	if !got.MediaTypes.Has(mediatype.PNG) {
		t.Errorf("MediaTypes = %v, want %s", got.MediaTypes.Sorted(), mediatype.PNG)
	}
}

func TestSniffBodyTooLarge(t *testing.T) {
	h, store := newTestServer(t, &Config{MaxBodySize: 8})

	rec := do(t, h, http.MethodPost, "/v1/sniff", pdfBody)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if store.Size() != 0 {
		t.Errorf("stored %d records after rejected upload", store.Size())
	}
}

func TestSniffMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(t, nil)
	if rec := do(t, h, http.MethodGet, "/v1/sniff", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/sniff status = %d, want 405", rec.Code)
	}
}

func TestTypes(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/v1/types", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[struct {
		Types []TypeInfo `json:"types"`
	}](t, rec)

	if len(got.Types) != len(mediatype.Supported()) {
		t.Errorf("got %d types, want %d", len(got.Types), len(mediatype.Supported()))
	}
	i := slices.IndexFunc(got.Types, func(ti TypeInfo) bool { return ti.MediaType == mediatype.PDF })
	if i < 0 {
		t.Fatalf("%s missing from /v1/types", mediatype.PDF)
	}
	pdf := got.Types[i]
	if !pdf.Magic || pdf.Masked {
		t.Errorf("pdf magic=%v masked=%v, want true false", pdf.Magic, pdf.Masked)
	}
	if !slices.Contains(pdf.Extensions, "pdf") {
		t.Errorf("pdf extensions = %v", pdf.Extensions)
	}
}

func TestCoverage(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/v1/coverage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[CoverageResponse](t, rec)

	head, tail := magic.RequiredSpan()
	if got.Head != head || got.Tail != tail {
		t.Errorf("span = (%d, %d), want (%d, %d)", got.Head, got.Tail, head, tail)
	}
	if !slices.Equal(got.Plain, magic.Coverage()) {
		t.Errorf("Plain = %v, want %v", got.Plain, magic.Coverage())
	}
	if !slices.Equal(got.Masked, magic.MaskedCoverage()) {
		t.Errorf("Masked = %v, want %v", got.Masked, magic.MaskedCoverage())
	}
}

func TestResultsAndStats(t *testing.T) {
	h, _ := newTestServer(t, nil)

	do(t, h, http.MethodPost, "/v1/sniff?filename=a.pdf", pdfBody)
	do(t, h, http.MethodPost, "/v1/sniff?filename=b.bin", "no magic here")
	do(t, h, http.MethodPost, "/v1/sniff?filename=c.pdf", pdfBody)

	type results struct {
		Results []*backend.Record `json:"results"`
		Total   int64             `json:"total"`
	}

	tests := []struct {
		name      string
		query     string
		wantLen   int
		wantTotal int64
	}{
		{"all", "", 3, 3},
		{"limit", "?limit=2", 2, 3},
		{"offset", "?offset=2", 1, 3},
		{"unmatched", "?unmatched=true", 1, 1},
		{"media type", "?mediaType=application/pdf", 2, 2},
		{"origin", "?origin=proxy", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/v1/results"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			got := decode[results](t, rec)
			if len(got.Results) != tt.wantLen || got.Total != tt.wantTotal {
				t.Errorf("got %d results (total %d), want %d (total %d)",
					len(got.Results), got.Total, tt.wantLen, tt.wantTotal)
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/v1/results", "")
	got := decode[results](t, rec)
	if got.Results[0].Source != "c.pdf" {
		t.Errorf("first result = %q, want newest (c.pdf)", got.Results[0].Source)
	}

	rec = do(t, h, http.MethodGet, "/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	stats := decode[backend.ResultStats](t, rec)
	if stats.Total != 3 || stats.Unmatched != 1 {
		t.Errorf("stats total=%d unmatched=%d, want 3 1", stats.Total, stats.Unmatched)
	}
	if stats.ByMagic[mediatype.PDF] != 2 {
		t.Errorf("ByMagic[pdf] = %d, want 2", stats.ByMagic[mediatype.PDF])
	}
	if stats.ByOrigin[backend.OriginAPI] != 3 {
		t.Errorf("ByOrigin[api] = %d, want 3", stats.ByOrigin[backend.OriginAPI])
	}
}

func TestResultsBadFilter(t *testing.T) {
	h, _ := newTestServer(t, nil)
	for _, q := range []string{"?since=yesterday", "?limit=-1", "?offset=x", "?unmatched=maybe"} {
		if rec := do(t, h, http.MethodGet, "/v1/results"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("GET /v1/results%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestResultsWithoutQuerier(t *testing.T) {
	h, _ := newTestServer(t, &Config{Store: backend.DiscardResultStore{}})
	for _, path := range []string{"/v1/results", "/v1/stats"} {
		if rec := do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusNotImplemented {
			t.Errorf("GET %s status = %d, want 501", path, rec.Code)
		}
	}
}

func TestParseFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/v1/results?since=2026-01-02T03:04:05Z&origin=api&origin=cli&mediaType=image/png&unmatched=1&limit=10&offset=5", nil)
	f, err := parseFilter(req)
	if err != nil {
		t.Fatalf("parseFilter: %v", err)
	}
	wantStart := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !f.StartTime.Equal(wantStart) {
		t.Errorf("StartTime = %v, want %v", f.StartTime, wantStart)
	}
	if !f.EndTime.IsZero() {
		t.Errorf("EndTime = %v, want zero", f.EndTime)
	}
	if !slices.Equal(f.Origins, []string{"api", "cli"}) {
		t.Errorf("Origins = %v", f.Origins)
	}
	if f.MediaType != "image/png" || !f.Unmatched || f.Limit != 10 || f.Offset != 5 {
		t.Errorf("filter = %+v", f)
	}
}

func TestHealthEndpoints(t *testing.T) {
	health := observability.NewHealthChecker("test")
	h, _ := newTestServer(t, &Config{Health: health})

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before ready status = %d, want 503", rec.Code)
	}
	health.SetReady(true)
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without provider status = %d, want 404", rec.Code)
	}
}

func TestRequestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observability.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h, _ := newTestServer(t, &Config{Metrics: m})
	do(t, h, http.MethodPost, "/v1/sniff", pdfBody)
	do(t, h, http.MethodGet, "/v1/types", "")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					counts[metric.Name] += dp.Value
				}
			}
		}
	}
	if counts["omnisniff.requests.total"] != 2 {
		t.Errorf("requests.total = %d, want 2", counts["omnisniff.requests.total"])
	}
	if counts["omnisniff.sniffs.total"] != 1 {
		t.Errorf("sniffs.total = %d, want 1", counts["omnisniff.sniffs.total"])
	}
}

func TestResultsSeparateQuerier(t *testing.T) {
	mem := backend.NewMemoryResultStore(nil)
	if err := mem.Store(context.Background(), &backend.Record{ID: "r1", Origin: backend.OriginCLI}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	h, _ := newTestServer(t, &Config{Store: backend.DiscardResultStore{}, Querier: mem})

	rec := do(t, h, http.MethodGet, "/v1/results", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[struct {
		Results []*backend.Record `json:"results"`
	}](t, rec)
	if len(got.Results) != 1 || got.Results[0].ID != "r1" {
		t.Errorf("results = %+v, want r1", got.Results)
	}
}
