package searching

import (
	"fmt"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/matching"
	"github.com/jpl-au/loom/spans"
)

func errSpanQuality() error {
	return fmt.Errorf("searching: span matcher: %w", errs.NoQualityAvailable)
}

// Span queries refine ordinary queries by the token-position
// intervals their matches cover. Each wrapper builds the underlying
// boolean matcher, then filters docids by a predicate over the
// documents' spans.
//
// matcherSpans derives a document's spans from its matcher: a
// PhraseMatcher reports its surviving phrase chain directly, any
// other matcher contributes one single-position span per token
// position.
func matcherSpans(m matching.Matcher) ([]spans.Span, error) {
	if pm, ok := m.(*matching.PhraseMatcher); ok {
		return pm.Spans(), nil
	}
	positions, err := m.Positions()
	if err != nil {
		return nil, err
	}
	out := make([]spans.Span, len(positions))
	for i, p := range positions {
		out[i] = spans.New(p, p)
	}
	return out, nil
}

// spanFilterMatcher walks child, surfacing only docids the predicate
// accepts. pred is evaluated with child positioned on the candidate.
type spanFilterMatcher struct {
	child matching.Matcher
	pred  func() (bool, error)
}

func newSpanFilter(child matching.Matcher, pred func() (bool, error)) (*spanFilterMatcher, error) {
	m := &spanFilterMatcher{child: child, pred: pred}
	if err := m.findNext(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *spanFilterMatcher) findNext() error {
	for m.child.IsActive() {
		ok, err := m.pred()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := m.child.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (m *spanFilterMatcher) IsActive() bool { return m.child.IsActive() }
func (m *spanFilterMatcher) ID() int        { return m.child.ID() }

func (m *spanFilterMatcher) Next() error {
	if err := m.child.Next(); err != nil {
		return err
	}
	return m.findNext()
}

func (m *spanFilterMatcher) SkipTo(target int) error {
	if err := m.child.SkipTo(target); err != nil {
		return err
	}
	return m.findNext()
}

func (m *spanFilterMatcher) Value() []byte             { return m.child.Value() }
func (m *spanFilterMatcher) Weight() float64           { return m.child.Weight() }
func (m *spanFilterMatcher) Score() float64            { return m.child.Score() }
func (m *spanFilterMatcher) Positions() ([]int, error) { return m.child.Positions() }

func (m *spanFilterMatcher) Copy() matching.Matcher {
	return &spanFilterMatcher{child: m.child.Copy(), pred: m.pred}
}

func (m *spanFilterMatcher) Replace() matching.Matcher {
	if !m.child.IsActive() {
		return matching.NullMatcher{}
	}
	return m
}

// Position filtering cannot bound scores ahead of the filter, so span
// matchers never support quality.
func (m *spanFilterMatcher) SupportsQuality() bool              { return false }
func (m *spanFilterMatcher) Quality() (float64, error)          { return 0, errSpanQuality() }
func (m *spanFilterMatcher) BlockQuality() (float64, error)     { return 0, errSpanQuality() }
func (m *spanFilterMatcher) SkipToQuality(float64) (int, error) { return 0, errSpanQuality() }

// SpanFirst matches documents where a span of Child ends at or before
// token position Limit (span end <= Limit). Positions count from 0, so
// Limit 0 accepts only spans that end on the first token.
type SpanFirst struct {
	Child Query
	Limit int
}

func (q SpanFirst) Matcher(s *Searcher) (matching.Matcher, error) {
	child, err := q.Child.Matcher(s)
	if err != nil {
		return nil, err
	}
	return newSpanFilter(child, func() (bool, error) {
		ss, err := matcherSpans(child)
		if err != nil {
			return false, err
		}
		for _, sp := range ss {
			if sp.End <= q.Limit {
				return true, nil
			}
		}
		return false, nil
	})
}

// spanPair intersects A and B, keeping the pair's matchers reachable
// so predicates can inspect both sides' spans at the shared docid.
func spanPair(s *Searcher, qa, qb Query, pred func(a, b []spans.Span) bool) (matching.Matcher, error) {
	a, b, err := pair(s, qa, qb)
	if err != nil {
		return nil, err
	}
	inter, err := matching.NewIntersectionMatcher(a, b)
	if err != nil {
		return nil, err
	}
	return newSpanFilter(inter, func() (bool, error) {
		as, err := matcherSpans(a)
		if err != nil {
			return false, err
		}
		bs, err := matcherSpans(b)
		if err != nil {
			return false, err
		}
		return pred(as, bs), nil
	})
}

// SpanNear matches documents where a span of A and a span of B lie
// within MaxDist positions of each other; Ordered additionally
// requires the A span to start no later than the B span.
type SpanNear struct {
	A       Query
	B       Query
	MaxDist int
	Ordered bool
}

func (q SpanNear) Matcher(s *Searcher) (matching.Matcher, error) {
	maxDist := q.MaxDist
	if maxDist <= 0 {
		maxDist = 1
	}
	return spanPair(s, q.A, q.B, func(as, bs []spans.Span) bool {
		for _, sa := range as {
			for _, sb := range bs {
				if q.Ordered && sa.Start > sb.Start {
					continue
				}
				if sa.DistanceTo(sb) <= maxDist {
					return true
				}
			}
		}
		return false
	})
}

// SpanContains matches documents where some span of A surrounds a
// span of B.
type SpanContains struct {
	A Query
	B Query
}

func (q SpanContains) Matcher(s *Searcher) (matching.Matcher, error) {
	return spanPair(s, q.A, q.B, func(as, bs []spans.Span) bool {
		for _, sa := range as {
			for _, sb := range bs {
				if sa.Surrounds(sb) {
					return true
				}
			}
		}
		return false
	})
}

// SpanBefore matches documents where some span of A ends before every
// overlap with B begins (A strictly precedes some span of B).
type SpanBefore struct {
	A Query
	B Query
}

func (q SpanBefore) Matcher(s *Searcher) (matching.Matcher, error) {
	return spanPair(s, q.A, q.B, func(as, bs []spans.Span) bool {
		for _, sa := range as {
			for _, sb := range bs {
				if sa.End < sb.Start {
					return true
				}
			}
		}
		return false
	})
}

// SpanNot matches documents matching A where no span of A overlaps a
// span of B. Documents not matching B at all pass through unfiltered.
type SpanNot struct {
	A Query
	B Query
}

func (q SpanNot) Matcher(s *Searcher) (matching.Matcher, error) {
	a, err := q.A.Matcher(s)
	if err != nil {
		return nil, err
	}
	b, err := q.B.Matcher(s)
	if err != nil {
		return nil, err
	}
	return newSpanFilter(a, func() (bool, error) {
		if b.IsActive() && b.ID() < a.ID() {
			if err := b.SkipTo(a.ID()); err != nil {
				return false, err
			}
		}
		if !b.IsActive() || b.ID() != a.ID() {
			return true, nil
		}
		as, err := matcherSpans(a)
		if err != nil {
			return false, err
		}
		bs, err := matcherSpans(b)
		if err != nil {
			return false, err
		}
		for _, sa := range as {
			for _, sb := range bs {
				if sa.Overlaps(sb) {
					return false, nil
				}
			}
		}
		return true, nil
	})
}

// SpanOr matches documents matched by any of Subs; it is Or with the
// span-bearing children preserved, provided for symmetry with the
// other span wrappers.
type SpanOr struct {
	Subs []Query
}

func (q SpanOr) Matcher(s *Searcher) (matching.Matcher, error) {
	return Or{Subs: q.Subs}.Matcher(s)
}
