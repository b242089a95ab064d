package writing

import "sort"

// MergeKind selects which MergePolicy commit applies when the caller
// doesn't pass one explicitly.
type MergeKind int

const (
	// MergeSmall absorbs small segments into geometric tiers (default).
	MergeSmall MergeKind = iota
	// NoMerge leaves the existing segment set untouched.
	NoMerge
	// Optimize absorbs every existing segment into the new one.
	Optimize
)

// MergePolicy decides which of the writer's current (pre-commit)
// segments to absorb into the new one. It returns the subset to
// absorb; everything else is retained as-is.
type MergePolicy interface {
	SegmentsToAbsorb(candidates []*segmentInfo) []*segmentInfo
}

// segmentInfo is the minimal view a MergePolicy needs: enough to rank
// and select candidates without depending on the segment package's
// concrete type, so merge.go stays testable without storage.
type segmentInfo struct {
	name        string
	docCountAll int
}

type noMergePolicy struct{}

func (noMergePolicy) SegmentsToAbsorb([]*segmentInfo) []*segmentInfo { return nil }

type optimizePolicy struct{}

func (optimizePolicy) SegmentsToAbsorb(candidates []*segmentInfo) []*segmentInfo {
	out := make([]*segmentInfo, len(candidates))
	copy(out, candidates)
	return out
}

// mergeSmallPolicy absorbs segments whose running doc_count_all total
// (sorted ascending, walked left to right) stays strictly under
// fib(i+5), yielding cheap compaction of small segments while leaving
// large ones alone.
type mergeSmallPolicy struct{}

func (mergeSmallPolicy) SegmentsToAbsorb(candidates []*segmentInfo) []*segmentInfo {
	sorted := make([]*segmentInfo, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].docCountAll < sorted[j].docCountAll })

	var out []*segmentInfo
	var running int
	for i, s := range sorted {
		if running < fib(i+5) {
			out = append(out, s)
			running += s.docCountAll
		}
	}
	return out
}

// fib is the Fibonacci sequence with fib(0)=0, fib(1)=1.
func fib(n int) int {
	if n <= 0 {
		return 0
	}
	a, b := 0, 1
	for i := 1; i < n; i++ {
		a, b = b, a+b
	}
	return b
}

// PolicyFor resolves explicit mergetype/optimize/merge flags to a
// MergePolicy exactly per the commit-protocol step 1 precedence:
// explicit kind, else OPTIMIZE if optimize, else NO_MERGE if !merge,
// else MERGE_SMALL.
func PolicyFor(kind *MergeKind, optimize, merge bool) MergePolicy {
	if kind != nil {
		return policyForKind(*kind)
	}
	if optimize {
		return optimizePolicy{}
	}
	if !merge {
		return noMergePolicy{}
	}
	return mergeSmallPolicy{}
}

func policyForKind(k MergeKind) MergePolicy {
	switch k {
	case NoMerge:
		return noMergePolicy{}
	case Optimize:
		return optimizePolicy{}
	default:
		return mergeSmallPolicy{}
	}
}
