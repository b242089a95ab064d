package matching

import (
	"sort"

	"github.com/jpl-au/loom/spans"
)

// BuildBalancedIntersection combines matchers into a single
// IntersectionMatcher-shaped tree by recursive divide-and-conquer, so
// the tree's depth grows as O(log k) rather than O(k) the way a
// left-leaning fold would.
func BuildBalancedIntersection(matchers []Matcher) (Matcher, error) {
	switch len(matchers) {
	case 0:
		return NullMatcher{}, nil
	case 1:
		return matchers[0], nil
	}
	mid := len(matchers) / 2
	left, err := BuildBalancedIntersection(matchers[:mid])
	if err != nil {
		return nil, err
	}
	right, err := BuildBalancedIntersection(matchers[mid:])
	if err != nil {
		return nil, err
	}
	return NewIntersectionMatcher(left, right)
}

// PhraseMatcher matches documents where k word matchers' positions
// form a phrase within slop. slop is the maximum allowed gap between
// consecutive terms minus one; the conventional default of 1 means
// "adjacent" (delta <= 1 between consecutive term positions), not
// "one extra word of slack" as the name might suggest elsewhere — the
// convention is preserved deliberately, not treated as a bug.
type PhraseMatcher struct {
	words   []Matcher
	inter   Matcher
	slop    int
	boost   float64
	current []int
}

// NewPhraseMatcher builds a phrase matcher over words (one matcher
// per term, in phrase order) with the given slop and boost. It
// advances to the first matching docid, if any.
func NewPhraseMatcher(words []Matcher, slop int, boost float64) (*PhraseMatcher, error) {
	inter, err := BuildBalancedIntersection(words)
	if err != nil {
		return nil, err
	}
	m := &PhraseMatcher{words: words, inter: inter, slop: slop, boost: boost}
	if err := m.findNext(); err != nil {
		return nil, err
	}
	return m, nil
}

// findNext advances m.inter until its current docid's position lists
// contain a valid phrase alignment, or m.inter is exhausted.
func (m *PhraseMatcher) findNext() error {
	for m.inter.IsActive() {
		ok, err := m.matchAt()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := m.inter.Next(); err != nil {
			return err
		}
	}
	m.current = nil
	return nil
}

// matchAt computes the surviving position chain at the intersection's
// current docid, per the spec's incremental narrowing algorithm.
func (m *PhraseMatcher) matchAt() (bool, error) {
	current, err := m.words[0].Positions()
	if err != nil {
		return false, err
	}
	for i := 1; i < len(m.words); i++ {
		pos, err := m.words[i].Positions()
		if err != nil {
			return false, err
		}
		current = narrow(current, pos, m.slop)
		if len(current) == 0 {
			m.current = nil
			return false, nil
		}
	}
	m.current = current
	return true, nil
}

// narrow keeps only positions p in next for which some c in current
// satisfies 0 < p - c <= slop, via binary search over current.
func narrow(current, next []int, slop int) []int {
	var out []int
	for _, p := range next {
		// Find the first c in current with c >= p - slop.
		idx := sort.SearchInts(current, p-slop)
		for _, c := range current[idx:] {
			gap := p - c
			if gap <= 0 {
				break
			}
			if gap <= slop {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func (m *PhraseMatcher) IsActive() bool { return m.inter.IsActive() && len(m.current) > 0 }
func (m *PhraseMatcher) ID() int        { return m.inter.ID() }

func (m *PhraseMatcher) Next() error {
	if !m.IsActive() {
		return readTooFar("phrase.Next")
	}
	if err := m.inter.Next(); err != nil {
		return err
	}
	return m.findNext()
}

func (m *PhraseMatcher) SkipTo(target int) error {
	if !m.IsActive() {
		return readTooFar("phrase.SkipTo")
	}
	if err := m.inter.SkipTo(target); err != nil {
		return err
	}
	return m.findNext()
}

func (m *PhraseMatcher) Value() []byte   { return m.inter.Value() }
func (m *PhraseMatcher) Weight() float64 { return m.inter.Weight() * m.boost }
func (m *PhraseMatcher) Score() float64  { return m.inter.Score() * m.boost }

// Positions returns the surviving phrase-aligned position chain (the
// last word's matched positions) computed at the current docid.
func (m *PhraseMatcher) Positions() ([]int, error) { return m.current, nil }

// Spans derives phrase spans from the surviving position chain: one
// span per surviving end position, covering from end-(len(words)-1)
// to end (an approximation consistent with adjacent-slop phrases;
// wider slop widens the true span but this is the cheapest faithful
// bound without re-walking every word's position list per span).
func (m *PhraseMatcher) Spans() []spans.Span {
	if len(m.current) == 0 {
		return nil
	}
	width := len(m.words) - 1
	out := make([]spans.Span, 0, len(m.current))
	for _, end := range m.current {
		start := end - width
		if start < 0 {
			start = 0
		}
		out = append(out, spans.Span{Start: start, End: end})
	}
	return out
}

func (m *PhraseMatcher) Copy() Matcher {
	words := make([]Matcher, len(m.words))
	for i, w := range m.words {
		words[i] = w.Copy()
	}
	cp := &PhraseMatcher{words: words, inter: m.inter.Copy(), slop: m.slop, boost: m.boost}
	cp.current = append([]int(nil), m.current...)
	return cp
}

func (m *PhraseMatcher) Replace() Matcher {
	if !m.IsActive() {
		return NullMatcher{}
	}
	return m
}

func (m *PhraseMatcher) SupportsQuality() bool { return false }

func (m *PhraseMatcher) Quality() (float64, error)      { return 0, noQuality("phrase") }
func (m *PhraseMatcher) BlockQuality() (float64, error) { return 0, noQuality("phrase") }

func (m *PhraseMatcher) SkipToQuality(float64) (int, error) {
	return 0, noQuality("phrase")
}
