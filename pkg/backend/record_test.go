package backend

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/grokify/omnisniff/pkg/suggest"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestNewRecord(t *testing.T) {
	rec := NewRecord(OriginAPI, suggest.Bytes("photo.jpg", pngHeader))

	if rec.ID == "" {
		t.Error("ID is empty")
	}
	if rec.Origin != OriginAPI {
		t.Errorf("Origin = %q, want %q", rec.Origin, OriginAPI)
	}
	if rec.Source != "photo.jpg" {
		t.Errorf("Source = %q, want photo.jpg", rec.Source)
	}
	if rec.Size != int64(len(pngHeader)) || rec.WindowSize != len(pngHeader) {
		t.Errorf("Size, WindowSize = %d, %d, want %d", rec.Size, rec.WindowSize, len(pngHeader))
	}
	if rec.Digest != Digest(pngHeader) {
		t.Errorf("Digest = %q, want %q", rec.Digest, Digest(pngHeader))
	}
	if diff := cmp.Diff([]string{"image/jpeg"}, rec.ByExtension); diff != "" {
		t.Errorf("ByExtension mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"image/apng", "image/png"}, rec.ByMagic); diff != "" {
		t.Errorf("ByMagic mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"image/apng", "image/jpeg", "image/png"}, rec.MediaTypes); diff != "" {
		t.Errorf("MediaTypes mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRecordNameOnly(t *testing.T) {
	rec := NewRecord(OriginCLI, suggest.Name("notes.txt"))
	if rec.Size != -1 || rec.Digest != "" {
		t.Errorf("Size, Digest = %d, %q, want -1 and empty", rec.Size, rec.Digest)
	}
	if !rec.Unmatched() {
		t.Error("Unmatched() = false, want true")
	}
}

func TestDigest(t *testing.T) {
	// BLAKE2b-256 of the empty input.
	const empty = "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"
	if got := Digest(nil); got != empty {
		t.Errorf("Digest(nil) = %q, want %q", got, empty)
	}
	if Digest([]byte("a")) == Digest([]byte("b")) {
		t.Error("Digest collides for distinct inputs")
	}
}

func TestResultFilterMatch(t *testing.T) {
	now := time.Now()
	rec := &Record{
		Origin:     OriginProxy,
		ByMagic:    []string{"image/gif"},
		MediaTypes: []string{"image/gif"},
		CreatedAt:  now,
	}

	tests := []struct {
		name   string
		filter *ResultFilter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &ResultFilter{}, true},
		{"origin match", &ResultFilter{Origins: []string{OriginAPI, OriginProxy}}, true},
		{"origin mismatch", &ResultFilter{Origins: []string{OriginAPI}}, false},
		{"media type match", &ResultFilter{MediaType: "image/gif"}, true},
		{"media type mismatch", &ResultFilter{MediaType: "image/png"}, false},
		{"unmatched only", &ResultFilter{Unmatched: true}, false},
		{"before start", &ResultFilter{StartTime: now.Add(time.Minute)}, false},
		{"after end", &ResultFilter{EndTime: now.Add(-time.Minute)}, false},
		{"inside range", &ResultFilter{StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Minute)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.match(rec); got != tt.want {
				t.Errorf("match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatsOf(t *testing.T) {
	recs := []*Record{
		{Origin: OriginAPI, Size: 10, Digest: "a", ByExtension: []string{"image/png"}, ByMagic: []string{"image/png"}},
		{Origin: OriginAPI, Size: 20, Digest: "a", ByMagic: []string{"image/gif"}},
		{Origin: OriginProxy, Size: -1, Digest: "b", ByExtension: []string{"text/html"}},
		{Origin: OriginCLI, Size: 5},
	}

	got := statsOf(recs)
	want := &ResultStats{
		Total:         4,
		Unmatched:     2,
		TotalBytes:    35,
		ByOrigin:      map[string]int64{OriginAPI: 2, OriginProxy: 1, OriginCLI: 1},
		ByMagic:       map[string]int64{"image/png": 1, "image/gif": 1},
		ExtensionOnly: 1,
		MagicOnly:     1,
		UniqueDigests: 2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statsOf mismatch (-want +got):\n%s", diff)
	}
}
