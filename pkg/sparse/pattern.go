// Package sparse implements the compact byte-pattern encoding used by the
// signature tables and the matcher that tests a byte window against them.
//
// A Pattern is a flat list of runs. Each run is written as
//
//	start, length, v1, v2, ..., vlength
//
// and expects byte v1 at index start, v2 at start+1, and so on. Runs may
// jump forward or backward, and a negative start is counted from the end
// of the window. A run of length zero expects nothing and always matches.
//
// Example: the WebP signature "RIFF" at 0 followed by "WEBP" at 8:
//
//	sparse.Pattern{0, 4, 0x52, 0x49, 0x46, 0x46, 8, 4, 0x57, 0x45, 0x42, 0x50}
package sparse

import (
	"fmt"
	"iter"
)

// Pattern is a sparse byte pattern in (start, length, values...) form.
type Pattern []int

// Decode returns a lazy sequence of (index, expected byte) pairs described
// by p, in encoding order. Each call starts from the beginning of p.
//
// Decoding stops quietly at the first malformed run: a truncated run, a
// negative length, or a value outside 0..255. Use Validate to report them.
func Decode(p Pattern) iter.Seq2[int, byte] {
	return func(yield func(int, byte) bool) {
		for i := 0; i+1 < len(p); {
			start, n := p[i], p[i+1]
			i += 2
			if n < 0 || n > len(p)-i {
				return
			}
			for k := range n {
				v := p[i+k]
				if v < 0 || v > 0xff {
					return
				}
				if !yield(start+k, byte(v)) {
					return
				}
			}
			i += n
		}
	}
}

// Pairs collects the decoded pairs of p into a map keyed by index.
// Later runs win when two runs address the same index.
func (p Pattern) Pairs() map[int]byte {
	out := make(map[int]byte)
	for idx, v := range Decode(p) {
		out[idx] = v
	}
	return out
}

// Runs returns the number of runs in a well-formed pattern.
func (p Pattern) Runs() int {
	runs := 0
	for i := 0; i+1 < len(p); {
		n := p[i+1]
		if n < 0 {
			break
		}
		i += 2 + n
		runs++
	}
	return runs
}

// PatternError describes a malformed Pattern.
type PatternError struct {
	// Offset is the position in the flat pattern where the defect starts.
	Offset int
	Reason string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("sparse: malformed pattern at offset %d: %s", e.Offset, e.Reason)
}

// Validate checks that p is well formed.
func Validate(p Pattern) error {
	for i := 0; i < len(p); {
		if i+1 >= len(p) {
			return &PatternError{Offset: i, Reason: "run header is missing its length"}
		}
		n := p[i+1]
		if n < 0 {
			return &PatternError{Offset: i + 1, Reason: fmt.Sprintf("negative run length %d", n)}
		}
		values := i + 2
		if n > len(p)-values {
			return &PatternError{Offset: i, Reason: fmt.Sprintf("run declares %d values, %d remain", n, len(p)-values)}
		}
		for k := values; k < values+n; k++ {
			if p[k] < 0 || p[k] > 0xff {
				return &PatternError{Offset: k, Reason: fmt.Sprintf("value %d is not a byte", p[k])}
			}
		}
		i = values + n
	}
	return nil
}
