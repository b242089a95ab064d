package searching

import (
	"github.com/jpl-au/loom/matching"
)

// scoredMatcher binds one term's leaf matcher to the searcher's
// weighting: Score (and the quality bounds) go through the Weighting
// instead of reporting the raw stored weight. Traversal is a straight
// passthrough to the child.
type scoredMatcher struct {
	child matching.Matcher
	s     *Searcher
	field string
	term  string
	boost float64
}

func newScoredMatcher(child matching.Matcher, s *Searcher, field, term string, boost float64) *scoredMatcher {
	if boost == 0 {
		boost = 1
	}
	return &scoredMatcher{child: child, s: s, field: field, term: term, boost: boost}
}

func (m *scoredMatcher) IsActive() bool            { return m.child.IsActive() }
func (m *scoredMatcher) ID() int                   { return m.child.ID() }
func (m *scoredMatcher) Next() error               { return m.child.Next() }
func (m *scoredMatcher) SkipTo(target int) error   { return m.child.SkipTo(target) }
func (m *scoredMatcher) Value() []byte             { return m.child.Value() }
func (m *scoredMatcher) Weight() float64           { return m.child.Weight() * m.boost }
func (m *scoredMatcher) Positions() ([]int, error) { return m.child.Positions() }

func (m *scoredMatcher) Score() float64 {
	return m.boost * m.s.weighting.Score(m.s, m.field, m.term, m.child.ID(), m.child.Weight())
}

func (m *scoredMatcher) Copy() matching.Matcher {
	cp := *m
	cp.child = m.child.Copy()
	return &cp
}

func (m *scoredMatcher) Replace() matching.Matcher {
	if !m.child.IsActive() {
		return matching.NullMatcher{}
	}
	m.child = m.child.Replace()
	return m
}

func (m *scoredMatcher) SupportsQuality() bool { return m.child.SupportsQuality() }

func (m *scoredMatcher) Quality() (float64, error) {
	q, err := m.child.Quality()
	if err != nil {
		return 0, err
	}
	return m.boost * m.s.weighting.MaxScore(m.s, m.field, m.term, q), nil
}

func (m *scoredMatcher) BlockQuality() (float64, error) {
	q, err := m.child.BlockQuality()
	if err != nil {
		return 0, err
	}
	return m.boost * m.s.weighting.MaxScore(m.s, m.field, m.term, q), nil
}

// SkipToQuality advances past postings whose scored bound cannot
// exceed min. The score threshold cannot be translated back into the
// child's raw-weight domain in general (MaxScore need not be
// invertible), so the bound is re-evaluated per posting.
func (m *scoredMatcher) SkipToQuality(min float64) (int, error) {
	skipped := 0
	for m.child.IsActive() {
		q, err := m.Quality()
		if err != nil {
			return skipped, err
		}
		if q > min {
			break
		}
		if err := m.child.Next(); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}
