// Package magic holds the built-in magic number tables and matches byte
// windows against them.
//
// Example usage:
//
//	types := magic.MatchBytes(data[:n])
//	for _, t := range types.Sorted() {
//	    fmt.Println(t)
//	}
package magic

import (
	"slices"

	"github.com/grokify/omnisniff/pkg/mediatype"
	"github.com/grokify/omnisniff/pkg/sparse"
)

// MatchBytes returns the media types whose plain signature is satisfied
// by window. Negative signature offsets resolve against len(window).
func MatchBytes(window []byte) mediatype.Set {
	return sparse.MatchBytes(window, signatures)
}

// MatchMaskedBytes masks a copy of window and returns the media types
// whose masked signature is satisfied. window is not modified.
func MatchMaskedBytes(window []byte) mediatype.Set {
	return sparse.MatchBytes(sparse.ApplyMask(window, masks), maskedSignatures)
}

// Match returns the union of the plain and masked matches for w.
func Match(w sparse.Window) mediatype.Set {
	plain := sparse.Match(w, signatures)
	return plain.Union(sparse.Match(maskedWindow{w}, maskedSignatures))
}

// maskedWindow applies masks on read so arbitrary windows can be tested
// against maskedSignatures without copying.
type maskedWindow struct {
	sparse.Window
}

func (m maskedWindow) At(index int) (byte, bool) {
	b, ok := m.Window.At(index)
	if !ok {
		return 0, false
	}
	if v, masked := maskAt(index); masked {
		b &= v
	}
	return b, true
}

var maskIndex = masks.Pairs()

func maskAt(index int) (byte, bool) {
	v, ok := maskIndex[index]
	return v, ok
}

// Coverage returns the index ranges a caller must read from a source
// so that every plain signature can be evaluated.
func Coverage() []sparse.Range {
	return slices.Clone(coverage)
}

// MaskedCoverage returns the index ranges needed by the masked table.
func MaskedCoverage() []sparse.Range {
	return slices.Clone(maskedCoverage)
}

// RequiredSpan returns how many leading and trailing bytes of a source
// satisfy both tables.
func RequiredSpan() (head, tail int) {
	return sparse.Span(append(Coverage(), maskedCoverage...))
}

// Signatures returns a copy of the plain signature table.
func Signatures() sparse.Collection {
	return signatures.Clone()
}

// MaskedSignatures returns a copy of the masked signature table.
func MaskedSignatures() sparse.Collection {
	return maskedSignatures.Clone()
}

// Masks returns a copy of the mask pattern applied before MaskedSignatures.
func Masks() sparse.Pattern {
	return slices.Clone(masks)
}
