package sparse

import (
	"fmt"
	"slices"

	"github.com/grokify/omnisniff/pkg/mediatype"
)

// Entry associates a media type key with one signature pattern.
type Entry struct {
	Key     string
	Pattern Pattern
}

// Collection is an ordered signature table. A key may appear in several
// entries; a window matches the key when any of them matches.
type Collection []Entry

// Validate reports the first entry with an empty key or a malformed pattern.
func (c Collection) Validate() error {
	for i, e := range c {
		if e.Key == "" {
			return fmt.Errorf("entry %d: empty key", i)
		}
		if err := Validate(e.Pattern); err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, e.Key, err)
		}
	}
	return nil
}

// Keys returns the distinct keys of c in first-seen order.
func (c Collection) Keys() []string {
	var keys []string
	for _, e := range c {
		if !slices.Contains(keys, e.Key) {
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Clone returns a deep copy of c.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for i, e := range c {
		out[i] = Entry{Key: e.Key, Pattern: slices.Clone(e.Pattern)}
	}
	return out
}

// Matches reports whether every decoded pair of p is present in w.
// An empty pattern matches any window.
func Matches(w Window, p Pattern) bool {
	for idx, want := range Decode(p) {
		got, ok := w.At(idx)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Match tests w against every entry of c in order and returns the set of
// keys with at least one matching entry. Entries whose key has already
// matched are not decoded again.
func Match(w Window, c Collection) mediatype.Set {
	result := mediatype.New()
	for _, e := range c {
		if result.Has(e.Key) {
			continue
		}
		if Matches(w, e.Pattern) {
			result.Add(e.Key)
		}
	}
	return result
}

// MatchBytes is Match over a byte slice.
func MatchBytes(b []byte, c Collection) mediatype.Set {
	return Match(Bytes(b), c)
}

// ApplyMask returns a copy of window with each byte addressed by mask
// ANDed with the mask value. Indices outside the window are ignored and
// window itself is never modified.
func ApplyMask(window []byte, mask Pattern) []byte {
	masked := slices.Clone(window)
	for idx, m := range Decode(mask) {
		if idx < 0 {
			idx += len(masked)
		}
		if idx < 0 || idx >= len(masked) {
			continue
		}
		masked[idx] &= m
	}
	return masked
}
