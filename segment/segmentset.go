package segment

import "sort"

// Set is an ordered list of segments plus a cached prefix sum of
// DocCountAll per segment (the "doc offsets"), used to translate a
// global docnum into a (segment index, local docnum) pair.
type Set struct {
	segments []*Segment
	offsets  []int64 // offsets[i] = sum of DocCountAll for segments[0:i]
}

// NewSet builds a Set over segs, computing the doc-offset prefix sum
// once up front.
func NewSet(segs []*Segment) *Set {
	s := &Set{segments: segs}
	s.rebuild()
	return s
}

func (s *Set) rebuild() {
	s.offsets = make([]int64, len(s.segments)+1)
	var total int64
	for i, seg := range s.segments {
		s.offsets[i] = total
		total += int64(seg.DocCountAll)
	}
	s.offsets[len(s.segments)] = total
}

// Segments returns the underlying ordered slice. Callers must not
// mutate it in place; use Append/Remove to change membership.
func (s *Set) Segments() []*Segment { return s.segments }

// Len returns the number of segments in the set.
func (s *Set) Len() int { return len(s.segments) }

// Append adds seg to the end of the set and recomputes offsets.
func (s *Set) Append(seg *Segment) {
	s.segments = append(s.segments, seg)
	s.rebuild()
}

// Remove drops the segment named name from the set, if present, and
// recomputes offsets.
func (s *Set) Remove(name string) {
	out := s.segments[:0]
	for _, seg := range s.segments {
		if seg.Name() != name {
			out = append(out, seg)
		}
	}
	s.segments = out
	s.rebuild()
}

// DocCountAll sums DocCountAll across every segment in the set.
func (s *Set) DocCountAll() int64 {
	return s.offsets[len(s.offsets)-1]
}

// DocCount sums the live (non-deleted) document count across every
// segment in the set.
func (s *Set) DocCount() int64 {
	var total int64
	for _, seg := range s.segments {
		total += int64(seg.DocCount())
	}
	return total
}

// FieldLength sums field f's stored length total across every
// segment.
func (s *Set) FieldLength(f string) int64 {
	var total int64
	for _, seg := range s.segments {
		total += seg.FieldLength(f)
	}
	return total
}

// MaxFieldLength returns the maximum single-document length for field
// f across every segment.
func (s *Set) MaxFieldLength(f string) int {
	var max int
	for _, seg := range s.segments {
		if m := seg.MaxFieldLength(f); m > max {
			max = m
		}
	}
	return max
}

// Locate translates a global docnum into (segment index, local
// docnum) using binary_search_right(offsets, d) - 1, per spec §4.4.
// It returns ok=false if d is out of range for the set.
func (s *Set) Locate(d int64) (segIdx int, local int, ok bool) {
	if d < 0 || d >= s.DocCountAll() {
		return 0, 0, false
	}
	// offsets[1:] holds the cumulative end-of-segment boundaries;
	// binary_search_right finds the first boundary strictly greater
	// than d, and the segment immediately before it owns d.
	i := sort.Search(len(s.offsets), func(i int) bool { return s.offsets[i] > d })
	idx := i - 1
	return idx, int(d - s.offsets[idx]), true
}

// GlobalDocnum is the inverse of Locate: translate a (segment index,
// local docnum) pair back into a global docnum.
func (s *Set) GlobalDocnum(segIdx, local int) int64 {
	return s.offsets[segIdx] + int64(local)
}

// Offset returns the doc-offset of segment i (the global docnum of its
// first document).
func (s *Set) Offset(i int) int64 { return s.offsets[i] }
