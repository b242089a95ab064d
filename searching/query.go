// Package searching evaluates structured queries against a committed
// reader: a query tree whose leaves produce matchers, a Weighting
// that turns posting weights into scores, and a Searcher that
// collects ranked hits with a bounded heap, skipping whole posting
// blocks when the matcher tree supports quality bounds.
package searching

import (
	"errors"
	"fmt"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/matching"
)

// Query is one node of a query tree. Matcher produces this node's
// posting cursor against the searcher's reader; leaves look terms up
// in the lexicon, inner nodes combine their children's matchers.
type Query interface {
	Matcher(s *Searcher) (matching.Matcher, error)
}

// Term matches documents containing an exact (field, term) pair.
type Term struct {
	Field string
	Text  string
	Boost float64
}

func (q Term) Matcher(s *Searcher) (matching.Matcher, error) {
	m, err := s.reader.Postings(q.Field, q.Text, nil)
	if err != nil {
		if errors.Is(err, errs.TermNotFound) {
			return matching.NullMatcher{}, nil
		}
		return nil, err
	}
	return newScoredMatcher(m, s, q.Field, q.Text, q.Boost), nil
}

// Prefix matches documents containing any term starting with Text in
// Field, as a union over the expanded terms.
type Prefix struct {
	Field string
	Text  string
	Boost float64
}

func (q Prefix) Matcher(s *Searcher) (matching.Matcher, error) {
	terms := s.reader.ExpandPrefix(q.Field, q.Text)
	subs := make([]Query, len(terms))
	for i, t := range terms {
		subs[i] = Term{Field: q.Field, Text: t, Boost: q.Boost}
	}
	return Or{Subs: subs}.Matcher(s)
}

// Every matches every non-deleted document in the reader with a
// constant score; the "match all" leaf NOT-queries complement against.
type Every struct{}

func (Every) Matcher(s *Searcher) (matching.Matcher, error) {
	n := s.reader.DocCountAll()
	return matching.NewInverseMatcher(matching.NullMatcher{}, n, func(id int) bool {
		return s.reader.IsDeleted(id)
	}), nil
}

// And matches documents matching all of Subs, scored as the sum of
// the children's scores.
type And struct {
	Subs []Query
}

func (q And) Matcher(s *Searcher) (matching.Matcher, error) {
	ms, err := subMatchers(s, q.Subs)
	if err != nil {
		return nil, err
	}
	return matching.BuildBalancedIntersection(ms)
}

// Or matches documents matching any of Subs, scored as the sum of the
// active children's scores.
type Or struct {
	Subs []Query
}

func (q Or) Matcher(s *Searcher) (matching.Matcher, error) {
	ms, err := subMatchers(s, q.Subs)
	if err != nil {
		return nil, err
	}
	switch len(ms) {
	case 0:
		return matching.NullMatcher{}, nil
	case 1:
		return ms[0], nil
	}
	m := ms[0]
	for _, next := range ms[1:] {
		m = matching.NewUnionMatcher(m, next)
	}
	return m, nil
}

// DisjunctionMax matches like Or but scores each document as the best
// single child's score plus TieBreak times the others'.
type DisjunctionMax struct {
	Subs     []Query
	TieBreak float64
}

func (q DisjunctionMax) Matcher(s *Searcher) (matching.Matcher, error) {
	ms, err := subMatchers(s, q.Subs)
	if err != nil {
		return nil, err
	}
	switch len(ms) {
	case 0:
		return matching.NullMatcher{}, nil
	case 1:
		return ms[0], nil
	}
	m := ms[0]
	for _, next := range ms[1:] {
		m = matching.NewDisjunctionMaxMatcher(m, next, q.TieBreak)
	}
	return m, nil
}

// Not matches every document NOT matched by Child. Scores are
// constant; a bare Not is usually composed under And/AndNot.
type Not struct {
	Child Query
}

func (q Not) Matcher(s *Searcher) (matching.Matcher, error) {
	child, err := q.Child.Matcher(s)
	if err != nil {
		return nil, err
	}
	n := s.reader.DocCountAll()
	return matching.NewInverseMatcher(child, n, func(id int) bool {
		return s.reader.IsDeleted(id)
	}), nil
}

// AndNot matches documents matching Positive but not Negative, scored
// solely from Positive.
type AndNot struct {
	Positive Query
	Negative Query
}

func (q AndNot) Matcher(s *Searcher) (matching.Matcher, error) {
	a, b, err := pair(s, q.Positive, q.Negative)
	if err != nil {
		return nil, err
	}
	return matching.NewAndNotMatcher(a, b)
}

// Require matches documents matching both Scored and Required, but
// only Scored contributes to the score.
type Require struct {
	Scored   Query
	Required Query
}

func (q Require) Matcher(s *Searcher) (matching.Matcher, error) {
	a, b, err := pair(s, q.Scored, q.Required)
	if err != nil {
		return nil, err
	}
	return matching.NewRequireMatcher(a, b)
}

// AndMaybe matches documents matching Required; documents also
// matching Optional score the sum of both.
type AndMaybe struct {
	Required Query
	Optional Query
}

func (q AndMaybe) Matcher(s *Searcher) (matching.Matcher, error) {
	a, b, err := pair(s, q.Required, q.Optional)
	if err != nil {
		return nil, err
	}
	return matching.NewAndMaybeMatcher(a, b)
}

// Phrase matches documents where Words occur as a phrase in Field.
// Slop is the maximum allowed positional delta between consecutive
// words; the default 0 is normalized to 1, meaning adjacent.
type Phrase struct {
	Field string
	Words []string
	Slop  int
	Boost float64
}

func (q Phrase) Matcher(s *Searcher) (matching.Matcher, error) {
	slop := q.Slop
	if slop <= 0 {
		slop = 1
	}
	boost := q.Boost
	if boost == 0 {
		boost = 1
	}
	words := make([]matching.Matcher, len(q.Words))
	for i, w := range q.Words {
		m, err := s.reader.Postings(q.Field, w, nil)
		if err != nil {
			if errors.Is(err, errs.TermNotFound) {
				return matching.NullMatcher{}, nil
			}
			return nil, fmt.Errorf("searching: phrase word %q: %w", w, err)
		}
		words[i] = m
	}
	pm, err := matching.NewPhraseMatcher(words, slop, boost)
	if err != nil {
		return nil, err
	}
	return pm, nil
}

func subMatchers(s *Searcher, subs []Query) ([]matching.Matcher, error) {
	ms := make([]matching.Matcher, 0, len(subs))
	for _, sub := range subs {
		m, err := sub.Matcher(s)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func pair(s *Searcher, qa, qb Query) (matching.Matcher, matching.Matcher, error) {
	a, err := qa.Matcher(s)
	if err != nil {
		return nil, nil, err
	}
	b, err := qb.Matcher(s)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}
