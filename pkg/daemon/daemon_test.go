package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/grokify/mogo/log/slogutil"

	"github.com/grokify/omnisniff/pkg/backend"
	"github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/suggest"
)

// testConfig uses a short temp directory so the socket path stays
// under the Unix socket length limit.
func testConfig(t *testing.T) *Config {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "omnisniffd-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	return &Config{
		PIDFile:    filepath.Join(tmpDir, "test.pid"),
		SocketPath: filepath.Join(tmpDir, "test.sock"),
		ProxyAddr:  "127.0.0.1:18080",
		Store:      "memory",
		Version:    "test",
		Logger:     slogutil.Null(),
	}
}

func TestDaemonConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.PIDFile == "" {
		t.Error("PIDFile should not be empty")
	}
	if cfg.SocketPath == "" {
		t.Error("SocketPath should not be empty")
	}
	if cfg.ProxyAddr != "127.0.0.1:8080" {
		t.Errorf("expected default proxy address 127.0.0.1:8080, got %s", cfg.ProxyAddr)
	}
}

func TestDaemonStatus(t *testing.T) {
	d := New(&Config{
		ProxyAddr: "127.0.0.1:8888",
		Store:     "db",
		Version:   "1.0.0",
	})

	status := d.Status()
	if status.Running {
		t.Error("daemon should not be running initially")
	}
	if status.ProxyAddr != "127.0.0.1:8888" {
		t.Errorf("expected proxy address 127.0.0.1:8888, got %s", status.ProxyAddr)
	}
	if status.Store != "db" {
		t.Errorf("expected store db, got %s", status.Store)
	}
	if status.PID != 0 {
		t.Errorf("PID = %d before start, want 0", status.PID)
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	d := New(cfg)

	started := false
	stopped := false
	d.SetCallbacks(
		func() error { started = true; return nil },
		func() error { stopped = true; return nil },
	)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}

	if !started {
		t.Error("start callback was not called")
	}
	if _, err := os.Stat(cfg.PIDFile); os.IsNotExist(err) {
		t.Error("PID file was not created")
	}
	if _, err := os.Stat(cfg.SocketPath); os.IsNotExist(err) {
		t.Error("socket file was not created")
	}

	status := d.Status()
	if !status.Running || status.PID != os.Getpid() {
		t.Errorf("status = running %v pid %d, want running with pid %d", status.Running, status.PID, os.Getpid())
	}

	client := NewClient(cfg.SocketPath)
	apiStatus, err := client.GetStatus()
	if err != nil {
		t.Fatalf("failed to get status via API: %v", err)
	}
	if !apiStatus.Running {
		t.Error("API should report daemon as running")
	}

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("failed to stop daemon: %v", err)
	}
	if !stopped {
		t.Error("stop callback was not called")
	}
	select {
	case <-d.Done():
	default:
		t.Error("Done channel not closed after Stop")
	}

	if _, err := os.Stat(cfg.PIDFile); !os.IsNotExist(err) {
		t.Error("PID file should be removed after stop")
	}
	if _, err := os.Stat(cfg.SocketPath); !os.IsNotExist(err) {
		t.Error("socket file should be removed after stop")
	}

	if err := d.Stop(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop = %v, want ErrNotRunning", err)
	}
}

func TestDaemonStartCallbackError(t *testing.T) {
	cfg := testConfig(t)
	d := New(cfg)
	d.SetCallbacks(func() error { return errors.New("port in use") }, nil)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded although the proxy failed")
	}
	if d.Status().Running {
		t.Error("daemon reported running after failed start")
	}
	if _, err := os.Stat(cfg.PIDFile); !os.IsNotExist(err) {
		t.Error("PID file left behind after failed start")
	}
}

func TestDaemonDoubleStart(t *testing.T) {
	d := New(testConfig(t))
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	defer func() { _ = d.Stop(ctx) }()

	if err := d.Start(ctx); err == nil {
		t.Error("second start should fail")
	}
}

func TestClientConnectionError(t *testing.T) {
	client := NewClient("/tmp/nonexistent-omnisniffd-12345.sock")

	if _, err := client.GetStatus(); err == nil {
		t.Error("expected error connecting to non-existent socket")
	}
}

func TestIsRunning(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "test.pid")

	running, _, err := IsRunning(pidFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if running {
		t.Error("should not be running with no PID file")
	}

	currentPID := os.Getpid()
	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", currentPID)), 0600); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	running, pid, err := IsRunning(pidFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !running {
		t.Error("current process should be running")
	}
	if pid != currentPID {
		t.Errorf("expected PID %d, got %d", currentPID, pid)
	}

	if err := os.WriteFile(pidFile, []byte("invalid"), 0600); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}
	running, _, err = IsRunning(pidFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if running {
		t.Error("should not be running with invalid PID")
	}
}

func TestStopByPIDNotRunning(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "test.pid")
	if _, err := StopByPID(pidFile); !errors.Is(err, ErrNotRunning) {
		t.Errorf("StopByPID = %v, want ErrNotRunning", err)
	}
}

func TestTrackCountsSniffs(t *testing.T) {
	d := New(nil)
	mem := backend.NewMemoryResultStore(nil)
	store := d.Track(mem)
	ctx := context.Background()

	png := backend.NewRecord(backend.OriginProxy, suggest.Bytes("a.png", []byte("\x89PNG\r\n\x1a\n")))
	plain := backend.NewRecord(backend.OriginProxy, suggest.Bytes("a.txt", []byte("hello")))

	if err := store.Store(ctx, png); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := store.StoreBatch(ctx, []*backend.Record{plain, nil}); err != nil {
		t.Fatalf("StoreBatch: %v", err)
	}

	status := d.Status()
	if status.Sniffs != 2 || status.Unmatched != 1 {
		t.Errorf("status sniffs=%d unmatched=%d, want 2 1", status.Sniffs, status.Unmatched)
	}
	if mem.Size() != 2 {
		t.Errorf("underlying store has %d records, want 2", mem.Size())
	}
}

func TestDaemonControlAPI(t *testing.T) {
	cfg := testConfig(t)
	d := New(cfg)

	mem := backend.NewMemoryResultStore(nil)
	d.SetQuerier(mem)
	store := d.Track(mem)

	ctx := context.Background()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		rec := backend.NewRecord(backend.OriginProxy, suggest.Bytes(name, []byte("\x89PNG\r\n\x1a\n")))
		if err := store.Store(ctx, rec); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}
	defer func() {
		if err := d.Stop(ctx); err != nil {
			logger := slogutil.LoggerFromContext(ctx, slogutil.Null())
			logger.Error("failed to stop daemon", "error", err)
		}
	}()

	client := NewClient(cfg.SocketPath)

	status, err := client.GetStatus()
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	if status.Version != "test" || status.Sniffs != 3 {
		t.Errorf("status version=%q sniffs=%d, want test 3", status.Version, status.Sniffs)
	}

	results, err := client.Results(url.Values{"limit": {"2"}})
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results.Results) != 2 || results.Total != 3 || results.Limit != 2 {
		t.Errorf("results = %d records, total %d, limit %d; want 2, 3, 2",
			len(results.Results), results.Total, results.Limit)
	}
	if results.Results[0].Source != "c.png" {
		t.Errorf("first result = %q, want newest (c.png)", results.Results[0].Source)
	}

	stats, err := client.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.ByMagic[mediatype.PNG] != 3 {
		t.Errorf("stats total=%d png=%d, want 3 3", stats.Total, stats.ByMagic[mediatype.PNG])
	}
}

func TestControlAPIWithoutQuerier(t *testing.T) {
	d := New(nil)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	for _, path := range []string{"/results", "/stats"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/stop")
	if err != nil {
		t.Fatalf("GET /stop: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /stop status = %d, want 405", resp.StatusCode)
	}
}

func TestResultFilter(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantUnm    bool
	}{
		{"", 100, 0, false},
		{"limit=5&offset=10", 5, 10, false},
		{"limit=0", 100, 0, false},
		{"limit=5000", 100, 0, false},
		{"offset=-1&unmatched=true", 100, 0, true},
		{"limit=x&unmatched=maybe", 100, 0, false},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		f := resultFilter(q)
		if f.Limit != tt.wantLimit || f.Offset != tt.wantOffset || f.Unmatched != tt.wantUnm {
			t.Errorf("resultFilter(%q) = limit %d offset %d unmatched %v, want %d %d %v",
				tt.query, f.Limit, f.Offset, f.Unmatched, tt.wantLimit, tt.wantOffset, tt.wantUnm)
		}
	}
}
