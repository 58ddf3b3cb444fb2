package magic

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	mt "github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/sparse"
)

func TestTablesWellFormed(t *testing.T) {
	if err := signatures.Validate(); err != nil {
		t.Errorf("signatures: %v", err)
	}
	if err := maskedSignatures.Validate(); err != nil {
		t.Errorf("masked signatures: %v", err)
	}
	if err := sparse.Validate(masks); err != nil {
		t.Errorf("masks: %v", err)
	}
}

func TestTableKeysSupported(t *testing.T) {
	for _, key := range append(signatures.Keys(), maskedSignatures.Keys()...) {
		if !mt.IsSupported(key) {
			t.Errorf("table key %q is not a supported media type", key)
		}
	}
	if got, want := len(signatures.Keys()), len(mt.Supported()); got != want {
		t.Errorf("signature table covers %d media types, want %d", got, want)
	}
}

func TestCoverageConsistent(t *testing.T) {
	if err := sparse.ValidateCoverage(Coverage(), signatures); err != nil {
		t.Errorf("Coverage(): %v (derived: %v)", err, sparse.CoverageOf(signatures))
	}
	if err := sparse.ValidateCoverage(MaskedCoverage(), maskedSignatures); err != nil {
		t.Errorf("MaskedCoverage(): %v (derived: %v)", err, sparse.CoverageOf(maskedSignatures))
	}
}

func TestRequiredSpan(t *testing.T) {
	head, tail := RequiredSpan()
	if head != 23 || tail != 0 {
		t.Errorf("RequiredSpan() = (%d, %d), want (23, 0)", head, tail)
	}
}

func TestTablesReadOnlyFromStart(t *testing.T) {
	for name, c := range map[string]sparse.Collection{"plain": signatures, "masked": maskedSignatures} {
		lo, _, ok := sparse.Bounds(c)
		if !ok || lo < 0 {
			t.Errorf("%s table reads index %d, want every offset counted from the start", name, lo)
		}
	}
}

func TestMatchTextPrefix(t *testing.T) {
	// A prefix of a longer text file that happens to hold "TAG" 128 bytes
	// before the end of the window.
	text := strings.Repeat("x", 72) + "TAG: release notes for the spring build. " +
		strings.Repeat("Nothing in this text is an audio header. ", 4)
	window := []byte(text[:200])

	if got := MatchBytes(window); got.Len() != 0 {
		t.Errorf("MatchBytes(text prefix) = %v, want no match", got.Sorted())
	}
	if got := MatchMaskedBytes(window); got.Len() != 0 {
		t.Errorf("MatchMaskedBytes(text prefix) = %v, want no match", got.Sorted())
	}
	if got := Match(sparse.Head(window)); got.Len() != 0 {
		t.Errorf("Match(text prefix) = %v, want no match", got.Sorted())
	}
}

// windowFor builds a window satisfying every decoded pair of p, with
// zero bytes elsewhere.
func windowFor(p sparse.Pattern, size int) []byte {
	w := make([]byte, size)
	for idx, v := range sparse.Decode(p) {
		if idx < 0 {
			idx += size
		}
		w[idx] = v
	}
	return w
}

func TestEverySignatureMatchesItsWindow(t *testing.T) {
	for i, e := range signatures {
		w := windowFor(e.Pattern, 256)
		if got := MatchBytes(w); !got.Has(e.Key) {
			t.Errorf("entry %d: MatchBytes(window for %s) = %v", i, e.Key, got.Sorted())
		}
		if got := Match(sparse.Bytes(w)); !got.Has(e.Key) {
			t.Errorf("entry %d: Match(window for %s) = %v", i, e.Key, got.Sorted())
		}
	}
	for i, e := range maskedSignatures {
		w := windowFor(e.Pattern, 16)
		if got := MatchMaskedBytes(w); !got.Has(e.Key) {
			t.Errorf("masked entry %d: MatchMaskedBytes(window for %s) = %v", i, e.Key, got.Sorted())
		}
	}
}

func TestMatchBytesScenarios(t *testing.T) {
	tests := []struct {
		name    string
		window  []byte
		want    []string
		exclude []string
	}{
		{
			name:   "gzip",
			window: []byte{0x1f, 0x8b},
			want:   []string{mt.Gzip},
		},
		{
			name:   "icon and wbmp share a prefix",
			window: []byte{0x00, 0x00, 0x01, 0x00},
			want:   []string{mt.Icon, mt.WBMP},
		},
		{
			name:    "window too short",
			window:  []byte{0x25},
			exclude: []string{mt.PDF, mt.Gzip},
		},
		{
			name: "webp ignores bytes 4 to 7",
			window: []byte{
				0x52, 0x49, 0x46, 0x46, 0xde, 0xad, 0xbe, 0xef,
				0x57, 0x45, 0x42, 0x50,
			},
			want: []string{mt.WebP},
		},
		{
			name: "webp with wrong fourcc",
			window: []byte{
				0x52, 0x49, 0x46, 0x46, 0x00, 0x00, 0x00, 0x00,
				0x41, 0x56, 0x49, 0x20,
			},
			exclude: []string{mt.WebP},
		},
		{
			name:   "zip based formats",
			window: []byte{0x50, 0x4b, 0x03, 0x04, 0x14, 0x00},
			want:   []string{mt.Zip, mt.JavaArchive, mt.DOCX, mt.XLSX, mt.PPTX},
		},
		{
			name:   "xml prolog is also svg",
			window: []byte("<?xml version=\"1.0\"?>"),
			want:   []string{mt.XML, mt.SVG},
		},
		{
			name:    "empty window",
			window:  nil,
			exclude: mt.Supported(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchBytes(tt.window)
			for _, w := range tt.want {
				if !got.Has(w) {
					t.Errorf("MatchBytes(%x) = %v, want it to contain %s", tt.window, got.Sorted(), w)
				}
			}
			for _, x := range tt.exclude {
				if got.Has(x) {
					t.Errorf("MatchBytes(%x) = %v, want it to exclude %s", tt.window, got.Sorted(), x)
				}
			}
		})
	}
}

func TestMatchMaskedBytes(t *testing.T) {
	tests := []struct {
		name   string
		window []byte
		want   bool
	}{
		{"frame sync layer 3", []byte{0xff, 0xfb, 0x90, 0x44}, true},
		{"frame sync mpeg 2", []byte{0xff, 0xf3}, true},
		{"no sync bits", []byte{0xff, 0x1f}, false},
		{"wrong first byte", []byte{0xfe, 0xfb}, false},
		{"too short", []byte{0xff}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchMaskedBytes(tt.window).Has(mt.MPEGAudio)
			if got != tt.want {
				t.Errorf("MatchMaskedBytes(%x) has audio/mpeg = %v, want %v", tt.window, got, tt.want)
			}
		})
	}
}

func TestMaskedSingleByte(t *testing.T) {
	mask := sparse.Pattern{0, 1, 0xe0}
	coll := sparse.Collection{{Key: mt.MPEGAudio, Pattern: sparse.Pattern{0, 1, 0xe0}}}

	if got := sparse.MatchBytes(sparse.ApplyMask([]byte{0xfb}, mask), coll); !got.Has(mt.MPEGAudio) {
		t.Errorf("0xfb & 0xe0 should match, got %v", got.Sorted())
	}
	if got := sparse.MatchBytes(sparse.ApplyMask([]byte{0x1f}, mask), coll); got.Has(mt.MPEGAudio) {
		t.Errorf("0x1f & 0xe0 should not match, got %v", got.Sorted())
	}
}

func TestMatchMaskedBytesDoesNotModifyWindow(t *testing.T) {
	window := []byte{0xff, 0xfb, 0x90, 0x44}
	orig := bytes.Clone(window)

	_ = MatchMaskedBytes(window)
	_ = Match(sparse.Bytes(window))

	if !bytes.Equal(window, orig) {
		t.Errorf("window modified: %x, want %x", window, orig)
	}
}

func TestMatchDeterministic(t *testing.T) {
	window := windowFor(signatures[0].Pattern, 32)
	first := MatchBytes(window)
	for range 5 {
		if got := MatchBytes(window); !got.Equal(first) {
			t.Fatalf("MatchBytes not deterministic: %v then %v", first.Sorted(), got.Sorted())
		}
	}
}

func TestMatchDuplicateKeyOnce(t *testing.T) {
	// An MPEG frame header satisfies both the plain and the masked table.
	w := []byte{0xff, 0xfb, 0x90, 0x44}

	got := Match(sparse.Bytes(w))
	n := 0
	for _, k := range got.Sorted() {
		if k == mt.MPEGAudio {
			n++
		}
	}
	if n != 1 {
		t.Errorf("audio/mpeg appears %d times, want 1", n)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	sigs := Signatures()
	sigs[0].Pattern[2] = 0x00
	if signatures[0].Pattern[2] != 0x1f {
		t.Error("Signatures() exposed the package table")
	}

	cov := Coverage()
	cov[0].Begin = 99
	if coverage[0].Begin != 0 {
		t.Error("Coverage() exposed the package ranges")
	}

	m := Masks()
	m[2] = 0
	if masks[2] != 0xff {
		t.Error("Masks() exposed the package mask")
	}
}

func TestMatchConcurrent(t *testing.T) {
	// Run under -race: the tables and maskIndex are shared read-only.
	var wg sync.WaitGroup
	errs := make(chan string, len(samples)*8)
	for range 8 {
		for _, s := range samples {
			wg.Add(1)
			go func() {
				defer wg.Done()
				file := sampleFile(s.header)
				got := Match(sparse.Bytes(file)).Union(MatchBytes(file), MatchMaskedBytes(file))
				if !got.Has(s.wantType) {
					errs <- s.name + ": " + strings.Join(got.Sorted(), ", ")
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("concurrent match lost a type: %s", e)
	}
}
