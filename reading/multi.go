package reading

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/matching"
	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/segment"
	"github.com/jpl-au/loom/storage"
)

// MultiReader fans a Reader contract out across many segments,
// translating each document-indexed call into the (segment, local
// docnum) pair segment.Set.Locate resolves, and merging per-segment
// lexicons on demand for the term-iteration methods.
type MultiReader struct {
	readers []*SegmentReader
	set     *segment.Set
	sch     *schema.Schema
}

// OpenMulti opens one SegmentReader per seg in segs (in order) and
// returns a MultiReader over all of them; generation -2 marks each
// child reader as MultiReader-owned per spec §4.4.
func OpenMulti(st storage.Storage, sch *schema.Schema, segs []*segment.Segment) (*MultiReader, error) {
	readers := make([]*SegmentReader, 0, len(segs))
	segList := make([]*segment.Segment, 0, len(segs))
	for _, seg := range segs {
		sr, err := OpenSegment(st, sch, seg, -2)
		if err != nil {
			for _, opened := range readers {
				_ = opened.Close()
			}
			return nil, err
		}
		readers = append(readers, sr)
		segList = append(segList, seg)
	}
	return &MultiReader{readers: readers, set: segment.NewSet(segList), sch: sch}, nil
}

func (m *MultiReader) Close() error {
	for _, r := range m.readers {
		_ = r.Close()
	}
	return nil
}

func (m *MultiReader) Schema() *schema.Schema { return m.sch }

func (m *MultiReader) locate(docnum int) (*SegmentReader, int, bool) {
	segIdx, local, ok := m.set.Locate(int64(docnum))
	if !ok {
		return nil, 0, false
	}
	return m.readers[segIdx], local, true
}

func (m *MultiReader) Contains(field, term string) bool {
	for _, r := range m.readers {
		if r.Contains(field, term) {
			return true
		}
	}
	return false
}

func (m *MultiReader) DocCountAll() int { return int(m.set.DocCountAll()) }
func (m *MultiReader) DocCount() int    { return int(m.set.DocCount()) }

func (m *MultiReader) IsDeleted(docnum int) bool {
	r, local, ok := m.locate(docnum)
	if !ok {
		return false
	}
	return r.IsDeleted(local)
}

func (m *MultiReader) HasDeletions() bool {
	for _, r := range m.readers {
		if r.HasDeletions() {
			return true
		}
	}
	return false
}

func (m *MultiReader) FieldLength(field string) int64  { return m.set.FieldLength(field) }
func (m *MultiReader) MaxFieldLength(field string) int { return m.set.MaxFieldLength(field) }

func (m *MultiReader) DocFieldLength(docnum int, field string) (int, error) {
	r, local, ok := m.locate(docnum)
	if !ok {
		return 0, fmt.Errorf("reading: doc field length %d/%s: %w", docnum, field, errs.ErrDocOutOfRange)
	}
	return r.DocFieldLength(local, field)
}

func (m *MultiReader) HasVector(docnum int, field string) bool {
	r, local, ok := m.locate(docnum)
	if !ok {
		return false
	}
	return r.HasVector(local, field)
}

func (m *MultiReader) Vector(docnum int, field string) (matching.Matcher, error) {
	r, local, ok := m.locate(docnum)
	if !ok {
		return nil, fmt.Errorf("reading: vector %d/%s: %w", docnum, field, errs.ErrDocOutOfRange)
	}
	return r.Vector(local, field)
}

func (m *MultiReader) VectorAs(docnum int, field string) ([]VectorTerm, error) {
	r, local, ok := m.locate(docnum)
	if !ok {
		return nil, fmt.Errorf("reading: vector %d/%s: %w", docnum, field, errs.ErrDocOutOfRange)
	}
	return r.VectorAs(local, field)
}

func (m *MultiReader) StoredFields(docnum int) (map[string]any, error) {
	r, local, ok := m.locate(docnum)
	if !ok {
		return nil, fmt.Errorf("reading: stored fields %d: %w", docnum, errs.ErrDocOutOfRange)
	}
	return r.StoredFields(local)
}

func (m *MultiReader) AllStoredFields() (map[int]map[string]any, error) {
	out := make(map[int]map[string]any)
	for i, r := range m.readers {
		base := m.set.Offset(i)
		sf, err := r.AllStoredFields()
		if err != nil {
			return nil, err
		}
		for local, v := range sf {
			out[int(base)+local] = v
		}
	}
	return out, nil
}

func (m *MultiReader) DocFrequency(field, term string) (int, error) {
	total := 0
	found := false
	for _, r := range m.readers {
		n, err := r.DocFrequency(field, term)
		if err != nil {
			continue
		}
		found = true
		total += n
	}
	if !found {
		return 0, fmt.Errorf("reading: doc frequency %s/%s: %w", field, term, errs.TermNotFound)
	}
	return total, nil
}

func (m *MultiReader) Frequency(field, term string) (int, error) {
	total := 0
	found := false
	for _, r := range m.readers {
		n, err := r.Frequency(field, term)
		if err != nil {
			continue
		}
		found = true
		total += n
	}
	if !found {
		return 0, fmt.Errorf("reading: frequency %s/%s: %w", field, term, errs.TermNotFound)
	}
	return total, nil
}

// Postings returns a matching.MultiMatcher over every segment's
// posting list for (field, term), in segment order, translating each
// child's local ids by that segment's global doc offset. Segments
// that lack the term contribute no matcher at all, not an empty one,
// so NewMultiMatcher never has to skip a permanently-inactive child.
func (m *MultiReader) Postings(field, term string, exclude map[int]struct{}) (matching.Matcher, error) {
	var children []matching.Matcher
	var offsets []int
	for i, r := range m.readers {
		mm, err := r.Postings(field, term, exclude)
		if err != nil {
			continue
		}
		children = append(children, mm)
		offsets = append(offsets, int(m.set.Offset(i)))
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("reading: postings %s/%s: %w", field, term, errs.TermNotFound)
	}
	return matching.NewMultiMatcher(children, offsets), nil
}

// --- term iteration: k-way merge of per-segment lexicons ---

type mergeItem struct {
	info TermInfo
	rIdx int
	it   TermIterator
}

type mergeHeap []*mergeItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	a, b := h[i].info, h[j].info
	if a.Field != b.Field {
		return a.Field < b.Field
	}
	return a.Term < b.Term
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*mergeItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeIterators runs a k-way merge over iters, summing DocFreq/
// CollFreq across iterators that agree on (field, term) — distinct
// segments can each contribute postings for the same term.
func mergeIterators(iters []TermIterator) []TermInfo {
	h := &mergeHeap{}
	for i, it := range iters {
		if it.Next() {
			heap.Push(h, &mergeItem{info: it.Info(), rIdx: i, it: it})
		}
	}
	var out []TermInfo
	for h.Len() > 0 {
		top := heap.Pop(h).(*mergeItem)
		merged := top.info
		for h.Len() > 0 && (*h)[0].info.Field == merged.Field && (*h)[0].info.Term == merged.Term {
			next := heap.Pop(h).(*mergeItem)
			merged.DocFreq += next.info.DocFreq
			merged.CollFreq += next.info.CollFreq
			if next.it.Next() {
				next.info = next.it.Info()
				heap.Push(h, next)
			}
		}
		out = append(out, merged)
		if top.it.Next() {
			top.info = top.it.Info()
			heap.Push(h, top)
		}
	}
	return out
}

func (m *MultiReader) Iter() TermIterator {
	iters := make([]TermIterator, len(m.readers))
	for i, r := range m.readers {
		iters[i] = r.Iter()
	}
	return &sliceIterator{items: mergeIterators(iters)}
}

func (m *MultiReader) IterFrom(field, term string) TermIterator {
	iters := make([]TermIterator, len(m.readers))
	for i, r := range m.readers {
		iters[i] = r.IterFrom(field, term)
	}
	return &sliceIterator{items: mergeIterators(iters)}
}

func (m *MultiReader) IterField(field string) TermIterator {
	iters := make([]TermIterator, len(m.readers))
	for i, r := range m.readers {
		iters[i] = r.IterField(field)
	}
	return &sliceIterator{items: mergeIterators(iters)}
}

func (m *MultiReader) IterPrefix(field, prefix string) TermIterator {
	iters := make([]TermIterator, len(m.readers))
	for i, r := range m.readers {
		iters[i] = r.IterPrefix(field, prefix)
	}
	return &sliceIterator{items: mergeIterators(iters)}
}

func (m *MultiReader) Lexicon(field string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range m.readers {
		for _, t := range r.Lexicon(field) {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out
}

func (m *MultiReader) ExpandPrefix(field, prefix string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range m.readers {
		for _, t := range r.ExpandPrefix(field, prefix) {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out
}

func (m *MultiReader) MostFrequentTerms(field string, n int, prefix string) ([]TermInfo, error) {
	return m.topTerms(field, n, prefix, func(ti TermInfo) float64 { return float64(ti.CollFreq) })
}

func (m *MultiReader) MostDistinctiveTerms(field string, n int, prefix string) ([]TermInfo, error) {
	return m.topTerms(field, n, prefix, func(ti TermInfo) float64 {
		if ti.DocFreq == 0 {
			return 0
		}
		return float64(ti.CollFreq) * (1.0 / float64(ti.DocFreq))
	})
}

func (m *MultiReader) topTerms(field string, n int, prefix string, score func(TermInfo) float64) ([]TermInfo, error) {
	var it TermIterator
	if prefix != "" {
		it = m.IterPrefix(field, prefix)
	} else {
		it = m.IterField(field)
	}
	var items []TermInfo
	for it.Next() {
		items = append(items, it.Info())
	}
	sort.Slice(items, func(i, j int) bool { return score(items[i]) > score(items[j]) })
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items, nil
}
