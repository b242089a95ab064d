package searching

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/jpl-au/loom/reading"
)

// Hit is one ranked result: a global docnum, its final score, and the
// document's stored fields.
type Hit struct {
	Docnum int
	Score  float64
	Fields map[string]any
}

// Searcher evaluates query trees against one committed reader
// snapshot under a Weighting.
type Searcher struct {
	reader    reading.Reader
	weighting Weighting
}

// New builds a Searcher over r. A nil weighting selects BM25 with
// default parameters.
func New(r reading.Reader, w Weighting) *Searcher {
	if w == nil {
		w = BM25{}
	}
	return &Searcher{reader: r, weighting: w}
}

// Reader returns the underlying reader snapshot.
func (s *Searcher) Reader() reading.Reader { return s.reader }

// Weighting returns the active weighting.
func (s *Searcher) Weighting() Weighting { return s.weighting }

// candidate is one entry in the bounded top-K min-heap: the lowest
// score sits at the root so a better hit can displace it in O(log K).
type candidate struct {
	docnum int
	score  float64
}

type topK []candidate

func (h topK) Len() int           { return len(h) }
func (h topK) Less(i, j int) bool { return h[i].score < h[j].score }
func (h topK) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *topK) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *topK) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Search evaluates q and returns up to limit hits in descending score
// order (ties broken by ascending docnum). limit <= 0 means no limit.
// When the matcher tree supports quality bounds and the heap is full,
// whole blocks that cannot beat the heap minimum are skipped.
func (s *Searcher) Search(q Query, limit int) ([]Hit, error) {
	m, err := q.Matcher(s)
	if err != nil {
		return nil, err
	}

	final, hasFinal := s.weighting.(Finalizer)
	useQuality := limit > 0 && m.SupportsQuality() && !hasFinal

	h := make(topK, 0, max(limit, 0))
	for m.IsActive() {
		if useQuality && len(h) == limit {
			bq, err := m.BlockQuality()
			if err == nil && bq <= h[0].score {
				n, err := m.SkipToQuality(h[0].score)
				if err != nil {
					break
				}
				// A combinator with an exhausted child may be unable
				// to make block-level progress on its own; Replace
				// collapses it to the surviving subtree, whose skip
				// works again. If nothing was skipped even so, fall
				// through and step one posting.
				m = m.Replace()
				if !m.IsActive() {
					break
				}
				if n > 0 {
					continue
				}
			}
		}

		score := m.Score()
		if hasFinal {
			score = final.Final(s, m.ID(), score)
		}
		if limit > 0 && len(h) == limit {
			if score > h[0].score {
				h[0] = candidate{docnum: m.ID(), score: score}
				heap.Fix(&h, 0)
			}
		} else {
			heap.Push(&h, candidate{docnum: m.ID(), score: score})
		}

		m = m.Replace()
		if !m.IsActive() {
			break
		}
		if err := m.Next(); err != nil {
			break
		}
	}

	sort.Slice(h, func(i, j int) bool {
		if h[i].score != h[j].score {
			return h[i].score > h[j].score
		}
		return h[i].docnum < h[j].docnum
	})
	return s.materialize(h)
}

// SortKey extracts a comparable sort key for one matched document;
// nil keys sort last.
type SortKey func(docnum int) (any, error)

// StoredFieldKey returns a SortKey reading the named stored field.
func (s *Searcher) StoredFieldKey(field string) SortKey {
	return func(docnum int) (any, error) {
		sf, err := s.reader.StoredFields(docnum)
		if err != nil {
			return nil, err
		}
		return sf[field], nil
	}
}

// SearchSorted evaluates q and returns up to limit hits ordered by
// the extracted key (ascending, or descending when reverse is set)
// instead of by score. This replaces the score heap entirely: every
// match is collected, keyed, and sorted.
func (s *Searcher) SearchSorted(q Query, key SortKey, reverse bool, limit int) ([]Hit, error) {
	m, err := q.Matcher(s)
	if err != nil {
		return nil, err
	}

	type keyed struct {
		cand candidate
		key  any
	}
	var all []keyed
	for m.IsActive() {
		k, err := key(m.ID())
		if err != nil {
			return nil, fmt.Errorf("searching: sort key for doc %d: %w", m.ID(), err)
		}
		all = append(all, keyed{cand: candidate{docnum: m.ID(), score: m.Score()}, key: k})
		if err := m.Next(); err != nil {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		less := lessKey(all[i].key, all[j].key)
		if reverse {
			return lessKey(all[j].key, all[i].key)
		}
		return less
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	cands := make([]candidate, len(all))
	for i, k := range all {
		cands[i] = k.cand
	}
	return s.materialize(cands)
}

// lessKey orders sort keys: nils last, then numerics, then strings,
// then everything else by formatted representation.
func lessKey(a, b any) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af < bf
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return as < bs
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Docs evaluates q and returns every matching docnum in ascending
// order, unscored. Useful for filters and tests.
func (s *Searcher) Docs(q Query) ([]int, error) {
	m, err := q.Matcher(s)
	if err != nil {
		return nil, err
	}
	var out []int
	for m.IsActive() {
		out = append(out, m.ID())
		if err := m.Next(); err != nil {
			break
		}
	}
	return out, nil
}

func (s *Searcher) materialize(cands []candidate) ([]Hit, error) {
	hits := make([]Hit, len(cands))
	for i, c := range cands {
		sf, err := s.reader.StoredFields(c.docnum)
		if err != nil {
			return nil, fmt.Errorf("searching: stored fields for doc %d: %w", c.docnum, err)
		}
		hits[i] = Hit{Docnum: c.docnum, Score: c.score, Fields: sf}
	}
	return hits, nil
}
