package sparse

import (
	"bytes"
	"testing"
)

func TestBytesAt(t *testing.T) {
	w := Bytes{0x0a, 0x0b, 0x0c}
	tests := []struct {
		index  int
		want   byte
		wantOK bool
	}{
		{0, 0x0a, true},
		{2, 0x0c, true},
		{3, 0, false},
		{-1, 0x0c, true},
		{-3, 0x0a, true},
		{-4, 0, false},
	}

	for _, tt := range tests {
		got, ok := w.At(tt.index)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Bytes.At(%d) = (%#x, %v), want (%#x, %v)", tt.index, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestHeadAt(t *testing.T) {
	h := Head{0x0a, 0x0b}
	if _, ok := h.At(-1); ok {
		t.Error("Head.At(-1) should not resolve")
	}
	if b, ok := h.At(1); !ok || b != 0x0b {
		t.Errorf("Head.At(1) = (%#x, %v), want (0xb, true)", b, ok)
	}
}

func TestMatch(t *testing.T) {
	coll := Collection{
		{Key: "a", Pattern: Pattern{0, 2, 0x01, 0x02}},
		{Key: "b", Pattern: Pattern{0, 1, 0x01}},
		{Key: "a", Pattern: Pattern{0, 1, 0x01}},
		{Key: "c", Pattern: Pattern{3, 1, 0x04}},
		{Key: "tail", Pattern: Pattern{-1, 1, 0xff}},
	}

	tests := []struct {
		name   string
		window []byte
		want   []string
	}{
		{"empty window", nil, []string{}},
		{"one byte", []byte{0x01}, []string{"a", "b"}},
		{"prefix", []byte{0x01, 0x02}, []string{"a", "b"}},
		{"offset run", []byte{0x00, 0x00, 0x00, 0x04}, []string{"c"}},
		{"from end", []byte{0x01, 0x02, 0x03, 0x04, 0xff}, []string{"a", "b", "c", "tail"}},
		{"short window", []byte{0x00, 0x00}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchBytes(tt.window, coll).Sorted()
			if len(got) != len(tt.want) {
				t.Fatalf("MatchBytes(%x) = %v, want %v", tt.window, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("MatchBytes(%x) = %v, want %v", tt.window, got, tt.want)
				}
			}
		})
	}
}

func TestMatchEmptyPatternMatchesAnything(t *testing.T) {
	coll := Collection{
		{Key: "empty", Pattern: Pattern{}},
		{Key: "zero", Pattern: Pattern{0, 0}},
		{Key: "far-zero", Pattern: Pattern{1000, 0}},
	}

	for _, w := range [][]byte{nil, {}, {0x00}, bytes.Repeat([]byte{0xaa}, 64)} {
		got := MatchBytes(w, coll)
		if got.Len() != 3 {
			t.Errorf("MatchBytes(%x) = %v, want all 3 keys", w, got.Sorted())
		}
	}
}

// countingWindow records how many lookups the matcher performs.
type countingWindow struct {
	Bytes
	lookups map[int]int
}

func (c *countingWindow) At(index int) (byte, bool) {
	c.lookups[index]++
	return c.Bytes.At(index)
}

func TestMatchSkipsMatchedKeys(t *testing.T) {
	coll := Collection{
		{Key: "k", Pattern: Pattern{0, 1, 0x01}},
		{Key: "k", Pattern: Pattern{5, 1, 0x01}},
	}
	w := &countingWindow{Bytes: Bytes{0x01}, lookups: map[int]int{}}

	got := Match(w, coll)
	if got.Len() != 1 || !got.Has("k") {
		t.Fatalf("Match = %v, want [k]", got.Sorted())
	}
	if n := w.lookups[5]; n != 0 {
		t.Errorf("second entry for a matched key was decoded (%d lookups at index 5)", n)
	}
}

func TestMatchShortCircuits(t *testing.T) {
	coll := Collection{
		{Key: "k", Pattern: Pattern{0, 4, 0x00, 0x01, 0x02, 0x03}},
	}
	w := &countingWindow{Bytes: Bytes{0xff, 0x01, 0x02, 0x03}, lookups: map[int]int{}}

	if got := Match(w, coll); got.Len() != 0 {
		t.Fatalf("Match = %v, want empty", got.Sorted())
	}
	if len(w.lookups) != 1 {
		t.Errorf("expected a single lookup before giving up, got %v", w.lookups)
	}
}

func TestApplyMask(t *testing.T) {
	window := []byte{0xff, 0xfb, 0x90, 0x44}
	orig := bytes.Clone(window)

	got := ApplyMask(window, Pattern{0, 2, 0xff, 0xe0, 10, 1, 0x00, -1, 1, 0x0f})
	want := []byte{0xff, 0xe0, 0x90, 0x04}

	if !bytes.Equal(got, want) {
		t.Errorf("ApplyMask = %x, want %x", got, want)
	}
	if !bytes.Equal(window, orig) {
		t.Errorf("ApplyMask modified its input: %x, want %x", window, orig)
	}
}

func TestCollectionValidate(t *testing.T) {
	if err := (Collection{{Key: "ok", Pattern: Pattern{0, 1, 1}}}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (Collection{{Key: "", Pattern: Pattern{0, 1, 1}}}).Validate(); err == nil {
		t.Error("expected error for empty key")
	}
	if err := (Collection{{Key: "bad", Pattern: Pattern{0, -2}}}).Validate(); err == nil {
		t.Error("expected error for negative run length")
	}
}

func TestCollectionKeys(t *testing.T) {
	coll := Collection{{Key: "b"}, {Key: "a"}, {Key: "b"}}
	got := coll.Keys()
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("Keys() = %v, want [b a]", got)
	}
}
