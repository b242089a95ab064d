package reading

import (
	"fmt"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/matching"
)

// postingMatcher is the backend leaf matcher over one term's
// materialized posting list: parallel id/weight/payload slices in
// ascending id order, plus the term's maxWeight as a constant
// quality upper bound (the term-level bound the terms index already
// stores, reused here rather than tracked per block since postings
// are read in full rather than in separately-scored blocks).
type postingMatcher struct {
	ids       []int
	weights   []float64
	payloads  [][]byte
	maxWeight float64
	pos       int
}

func newPostingMatcher(ids []int, weights []float64, payloads [][]byte, maxWeight float64) *postingMatcher {
	return &postingMatcher{ids: ids, weights: weights, payloads: payloads, maxWeight: maxWeight}
}

func (m *postingMatcher) IsActive() bool { return m.pos < len(m.ids) }
func (m *postingMatcher) ID() int        { return m.ids[m.pos] }

func (m *postingMatcher) Next() error {
	if !m.IsActive() {
		return fmt.Errorf("reading: posting.Next: %w", errs.ReadTooFar)
	}
	m.pos++
	return nil
}

func (m *postingMatcher) SkipTo(target int) error {
	if !m.IsActive() {
		return fmt.Errorf("reading: posting.SkipTo: %w", errs.ReadTooFar)
	}
	for m.pos < len(m.ids) && m.ids[m.pos] < target {
		m.pos++
	}
	return nil
}

func (m *postingMatcher) Value() []byte {
	if !m.IsActive() {
		return nil
	}
	return m.payloads[m.pos]
}

func (m *postingMatcher) Weight() float64 {
	if !m.IsActive() {
		return 0
	}
	return m.weights[m.pos]
}

func (m *postingMatcher) Score() float64 { return m.Weight() }

func (m *postingMatcher) Positions() ([]int, error) { return matching.DecodePositions(m.Value()) }

func (m *postingMatcher) Copy() matching.Matcher {
	cp := *m
	return &cp
}

func (m *postingMatcher) Replace() matching.Matcher {
	if !m.IsActive() {
		return matching.NullMatcher{}
	}
	return m
}

func (m *postingMatcher) SupportsQuality() bool { return true }

func (m *postingMatcher) Quality() (float64, error) {
	if !m.IsActive() {
		return 0, fmt.Errorf("reading: posting: %w", errs.NoQualityAvailable)
	}
	return m.Weight(), nil
}

func (m *postingMatcher) BlockQuality() (float64, error) {
	if !m.IsActive() {
		return 0, fmt.Errorf("reading: posting: %w", errs.NoQualityAvailable)
	}
	return m.maxWeight, nil
}

func (m *postingMatcher) SkipToQuality(min float64) (int, error) {
	skipped := 0
	for m.IsActive() && m.Weight() <= min {
		if err := m.Next(); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}
