package sparse

import (
	"fmt"
	"slices"
)

// Range is the half-open index interval [Begin, End). Negative bounds
// count from the end of the source, like Pattern starts.
type Range struct {
	Begin int `json:"begin" yaml:"begin"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the number of indices covered by r.
func (r Range) Len() int {
	return r.End - r.Begin
}

// Contains reports whether index lies within r.
func (r Range) Contains(index int) bool {
	return index >= r.Begin && index < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Begin, r.End)
}

// Indices returns every index referenced by any entry of c.
func Indices(c Collection) map[int]struct{} {
	out := make(map[int]struct{})
	for _, e := range c {
		for idx := range Decode(e.Pattern) {
			out[idx] = struct{}{}
		}
	}
	return out
}

// Bounds returns the smallest and largest index referenced by c. ok is
// false when c references no index at all.
func Bounds(c Collection) (lo, hi int, ok bool) {
	for idx := range Indices(c) {
		if !ok {
			lo, hi, ok = idx, idx, true
			continue
		}
		lo = min(lo, idx)
		hi = max(hi, idx)
	}
	return lo, hi, ok
}

// CoverageOf derives the minimal sorted list of disjoint ranges covering
// every index referenced by c. Ranges never span from a negative index
// to a non-negative one.
func CoverageOf(c Collection) []Range {
	set := Indices(c)
	idxs := make([]int, 0, len(set))
	for idx := range set {
		idxs = append(idxs, idx)
	}
	slices.Sort(idxs)

	var out []Range
	for _, idx := range idxs {
		if n := len(out); n > 0 && out[n-1].End == idx && idx != 0 {
			out[n-1].End++
			continue
		}
		out = append(out, Range{Begin: idx, End: idx + 1})
	}
	return out
}

// CoverageError reports an inconsistency between a hand-maintained range
// list and the table it claims to cover.
type CoverageError struct {
	Range  *Range
	Index  *int
	Reason string
}

func (e *CoverageError) Error() string {
	switch {
	case e.Range != nil:
		return fmt.Sprintf("sparse: coverage range %s: %s", e.Range, e.Reason)
	case e.Index != nil:
		return fmt.Sprintf("sparse: coverage index %d: %s", *e.Index, e.Reason)
	default:
		return "sparse: coverage: " + e.Reason
	}
}

// ValidateCoverage checks that ranges are non-empty, sorted ascending,
// mutually disjoint, and that together they cover exactly the indices
// referenced by c.
func ValidateCoverage(ranges []Range, c Collection) error {
	covered := make(map[int]struct{})
	for i, r := range ranges {
		if r.End <= r.Begin {
			return &CoverageError{Range: &ranges[i], Reason: "empty or inverted"}
		}
		if r.Begin < 0 && r.End > 0 {
			return &CoverageError{Range: &ranges[i], Reason: "spans both ends of the source"}
		}
		if i > 0 && ranges[i-1].End > r.Begin {
			return &CoverageError{Range: &ranges[i], Reason: fmt.Sprintf("overlaps or precedes %s", ranges[i-1])}
		}
		for idx := r.Begin; idx < r.End; idx++ {
			covered[idx] = struct{}{}
		}
	}

	referenced := Indices(c)
	for _, idx := range sortedKeys(referenced) {
		if _, ok := covered[idx]; !ok {
			return &CoverageError{Index: &idx, Reason: "referenced by the table but not covered"}
		}
	}
	for _, idx := range sortedKeys(covered) {
		if _, ok := referenced[idx]; !ok {
			return &CoverageError{Index: &idx, Reason: "covered but never referenced by the table"}
		}
	}
	return nil
}

// Span returns the number of bytes needed from the start of a source and
// from its end to satisfy ranges.
func Span(ranges []Range) (head, tail int) {
	for _, r := range ranges {
		if r.Begin >= 0 {
			head = max(head, r.End)
		} else {
			tail = max(tail, -r.Begin)
		}
	}
	return head, tail
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
