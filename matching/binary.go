package matching

import "sort"

// binary is the shared state every two-child combinator holds: the
// children themselves and a depth used by callers (the phrase matcher
// in particular) to balance trees of intersections.
type binary struct {
	a, b  Matcher
	depth int
}

func newBinary(a, b Matcher) binary {
	da, db := childDepth(a), childDepth(b)
	d := da
	if db > d {
		d = db
	}
	return binary{a: a, b: b, depth: 1 + d}
}

// Depth reports the combinator's tree depth, used to keep phrase
// intersection trees roughly balanced.
func Depth(m Matcher) int { return childDepth(m) }

func childDepth(m Matcher) int {
	if d, ok := m.(interface{ depth() int }); ok {
		return d.depth()
	}
	return 0
}

// --- UnionMatcher (OR) ---

// UnionMatcher is active while either child is active. Its id is the
// minimum of the active children's ids; Next advances every child
// whose id equals that minimum.
type UnionMatcher struct {
	binary
}

// NewUnionMatcher builds the union (OR) of a and b.
func NewUnionMatcher(a, b Matcher) *UnionMatcher {
	return &UnionMatcher{binary: newBinary(a, b)}
}

func (m *UnionMatcher) depth() int { return m.binary.depth }

func (m *UnionMatcher) IsActive() bool { return m.a.IsActive() || m.b.IsActive() }

func (m *UnionMatcher) ID() int {
	switch {
	case m.a.IsActive() && m.b.IsActive():
		if m.a.ID() < m.b.ID() {
			return m.a.ID()
		}
		return m.b.ID()
	case m.a.IsActive():
		return m.a.ID()
	default:
		return m.b.ID()
	}
}

func (m *UnionMatcher) Next() error {
	if !m.IsActive() {
		return readTooFar("union.Next")
	}
	id := m.ID()
	moved := false
	if m.a.IsActive() && m.a.ID() == id {
		if err := m.a.Next(); err != nil {
			return err
		}
		moved = true
	}
	if m.b.IsActive() && m.b.ID() == id {
		if err := m.b.Next(); err != nil {
			return err
		}
		moved = true
	}
	if !moved {
		return readTooFar("union.Next")
	}
	return nil
}

func (m *UnionMatcher) SkipTo(target int) error {
	if !m.IsActive() {
		return readTooFar("union.SkipTo")
	}
	if m.a.IsActive() && m.a.ID() < target {
		if err := m.a.SkipTo(target); err != nil {
			return err
		}
	}
	if m.b.IsActive() && m.b.ID() < target {
		if err := m.b.SkipTo(target); err != nil {
			return err
		}
	}
	return nil
}

func (m *UnionMatcher) Value() []byte {
	id := m.ID()
	if m.a.IsActive() && m.a.ID() == id {
		return m.a.Value()
	}
	return m.b.Value()
}

func (m *UnionMatcher) Weight() float64 { return m.Score() }

func (m *UnionMatcher) Score() float64 {
	id := m.ID()
	var s float64
	if m.a.IsActive() && m.a.ID() == id {
		s += m.a.Score()
	}
	if m.b.IsActive() && m.b.ID() == id {
		s += m.b.Score()
	}
	return s
}

func (m *UnionMatcher) Positions() ([]int, error) {
	id := m.ID()
	aAt := m.a.IsActive() && m.a.ID() == id
	bAt := m.b.IsActive() && m.b.ID() == id
	switch {
	case aAt && bAt:
		pa, err := m.a.Positions()
		if err != nil {
			return nil, err
		}
		pb, err := m.b.Positions()
		if err != nil {
			return nil, err
		}
		return mergeSortedUnique(pa, pb), nil
	case aAt:
		return m.a.Positions()
	default:
		return m.b.Positions()
	}
}

func mergeSortedUnique(a, b []int) []int {
	set := make(map[int]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func (m *UnionMatcher) Copy() Matcher {
	return &UnionMatcher{binary: binary{a: m.a.Copy(), b: m.b.Copy(), depth: m.binary.depth}}
}

func (m *UnionMatcher) Replace() Matcher {
	ra, rb := m.a.Replace(), m.b.Replace()
	switch {
	case !ra.IsActive() && !rb.IsActive():
		return NullMatcher{}
	case !ra.IsActive():
		return rb
	case !rb.IsActive():
		return ra
	default:
		return &UnionMatcher{binary: binary{a: ra, b: rb, depth: m.binary.depth}}
	}
}

func (m *UnionMatcher) SupportsQuality() bool {
	return m.a.SupportsQuality() && m.b.SupportsQuality()
}

func (m *UnionMatcher) Quality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("union")
	}
	var total float64
	if m.a.IsActive() {
		q, err := m.a.Quality()
		if err != nil {
			return 0, err
		}
		total += q
	}
	if m.b.IsActive() {
		q, err := m.b.Quality()
		if err != nil {
			return 0, err
		}
		total += q
	}
	return total, nil
}

func (m *UnionMatcher) BlockQuality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("union")
	}
	var total float64
	if m.a.IsActive() {
		q, err := m.a.BlockQuality()
		if err != nil {
			return 0, err
		}
		total += q
	}
	if m.b.IsActive() {
		q, err := m.b.BlockQuality()
		if err != nil {
			return 0, err
		}
		total += q
	}
	return total, nil
}

func (m *UnionMatcher) SkipToQuality(min float64) (int, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("union")
	}
	skipped := 0
	for m.a.IsActive() && m.b.IsActive() {
		aq, err := m.a.BlockQuality()
		if err != nil {
			return skipped, err
		}
		bq, err := m.b.BlockQuality()
		if err != nil {
			return skipped, err
		}
		if aq+bq > min {
			break
		}
		var n int
		if aq < bq {
			n, err = m.a.SkipToQuality(min - bq)
		} else {
			n, err = m.b.SkipToQuality(min - aq)
		}
		if err != nil {
			return skipped, err
		}
		skipped += n
		if n == 0 {
			break
		}
	}
	return skipped, nil
}

// --- DisjunctionMaxMatcher ---

// DisjunctionMaxMatcher is a UnionMatcher whose score at a coincident
// docid is the max of its children's scores, plus a tiebreak fraction
// of the other child's score.
type DisjunctionMaxMatcher struct {
	*UnionMatcher
	tiebreak float64
}

// NewDisjunctionMaxMatcher builds a disjunction-max combinator over a
// and b with the given tiebreak multiplier.
func NewDisjunctionMaxMatcher(a, b Matcher, tiebreak float64) *DisjunctionMaxMatcher {
	return &DisjunctionMaxMatcher{UnionMatcher: NewUnionMatcher(a, b), tiebreak: tiebreak}
}

func (m *DisjunctionMaxMatcher) Weight() float64 { return m.Score() }

func (m *DisjunctionMaxMatcher) Score() float64 {
	id := m.ID()
	aAt := m.a.IsActive() && m.a.ID() == id
	bAt := m.b.IsActive() && m.b.ID() == id
	switch {
	case aAt && bAt:
		as, bs := m.a.Score(), m.b.Score()
		if as >= bs {
			return as + m.tiebreak*bs
		}
		return bs + m.tiebreak*as
	case aAt:
		return m.a.Score()
	case bAt:
		return m.b.Score()
	default:
		return 0
	}
}

func (m *DisjunctionMaxMatcher) Quality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("dismax")
	}
	var q float64
	if m.a.IsActive() {
		aq, err := m.a.Quality()
		if err != nil {
			return 0, err
		}
		q = aq
	}
	if m.b.IsActive() {
		bq, err := m.b.Quality()
		if err != nil {
			return 0, err
		}
		if bq > q {
			q = bq
		}
	}
	return q, nil
}

func (m *DisjunctionMaxMatcher) BlockQuality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("dismax")
	}
	var q float64
	if m.a.IsActive() {
		aq, err := m.a.BlockQuality()
		if err != nil {
			return 0, err
		}
		q = aq
	}
	if m.b.IsActive() {
		bq, err := m.b.BlockQuality()
		if err != nil {
			return 0, err
		}
		if bq > q {
			q = bq
		}
	}
	return q, nil
}

func (m *DisjunctionMaxMatcher) SkipToQuality(min float64) (int, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("dismax")
	}
	skipped := 0
	for m.a.IsActive() && m.b.IsActive() {
		aq, err := m.a.BlockQuality()
		if err != nil {
			return skipped, err
		}
		bq, err := m.b.BlockQuality()
		if err != nil {
			return skipped, err
		}
		mx := aq
		if bq > mx {
			mx = bq
		}
		if mx > min {
			break
		}
		var n int
		if aq < bq {
			n, err = m.a.SkipToQuality(min)
		} else {
			n, err = m.b.SkipToQuality(min)
		}
		if err != nil {
			return skipped, err
		}
		skipped += n
		if n == 0 {
			break
		}
	}
	return skipped, nil
}

func (m *DisjunctionMaxMatcher) Copy() Matcher {
	return &DisjunctionMaxMatcher{
		UnionMatcher: &UnionMatcher{binary: binary{a: m.a.Copy(), b: m.b.Copy(), depth: m.binary.depth}},
		tiebreak:     m.tiebreak,
	}
}

func (m *DisjunctionMaxMatcher) Replace() Matcher {
	ra, rb := m.a.Replace(), m.b.Replace()
	switch {
	case !ra.IsActive() && !rb.IsActive():
		return NullMatcher{}
	case !ra.IsActive():
		return rb
	case !rb.IsActive():
		return ra
	default:
		return &DisjunctionMaxMatcher{
			UnionMatcher: &UnionMatcher{binary: binary{a: ra, b: rb, depth: m.binary.depth}},
			tiebreak:     m.tiebreak,
		}
	}
}

// --- IntersectionMatcher (AND) ---

// IntersectionMatcher is active only while both children are active
// and aligned on the same docid. Construction and every Next call
// converge the pair by alternately skipping whichever child lags.
type IntersectionMatcher struct {
	binary
}

// NewIntersectionMatcher builds the intersection (AND) of a and b.
func NewIntersectionMatcher(a, b Matcher) (*IntersectionMatcher, error) {
	m := &IntersectionMatcher{binary: newBinary(a, b)}
	if err := m.align(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IntersectionMatcher) depth() int { return m.binary.depth }

// align advances a and b alternately until they share a docid or one
// runs out.
func (m *IntersectionMatcher) align() error {
	for m.a.IsActive() && m.b.IsActive() && m.a.ID() != m.b.ID() {
		if m.a.ID() < m.b.ID() {
			if err := m.a.SkipTo(m.b.ID()); err != nil {
				return err
			}
		} else {
			if err := m.b.SkipTo(m.a.ID()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *IntersectionMatcher) IsActive() bool {
	return m.a.IsActive() && m.b.IsActive() && m.a.ID() == m.b.ID()
}

func (m *IntersectionMatcher) ID() int { return m.a.ID() }

func (m *IntersectionMatcher) Next() error {
	if !m.IsActive() {
		return readTooFar("intersection.Next")
	}
	if err := m.a.Next(); err != nil {
		return err
	}
	return m.align()
}

func (m *IntersectionMatcher) SkipTo(target int) error {
	if !m.IsActive() {
		return readTooFar("intersection.SkipTo")
	}
	if err := m.a.SkipTo(target); err != nil {
		return err
	}
	if err := m.b.SkipTo(target); err != nil {
		return err
	}
	return m.align()
}

func (m *IntersectionMatcher) Value() []byte   { return m.a.Value() }
func (m *IntersectionMatcher) Weight() float64 { return m.a.Weight() + m.b.Weight() }
func (m *IntersectionMatcher) Score() float64  { return m.a.Score() + m.b.Score() }

func (m *IntersectionMatcher) Positions() ([]int, error) { return m.a.Positions() }

func (m *IntersectionMatcher) Copy() Matcher {
	return &IntersectionMatcher{binary: binary{a: m.a.Copy(), b: m.b.Copy(), depth: m.binary.depth}}
}

func (m *IntersectionMatcher) Replace() Matcher {
	if !m.IsActive() {
		return NullMatcher{}
	}
	return m
}

func (m *IntersectionMatcher) SupportsQuality() bool {
	return m.a.SupportsQuality() && m.b.SupportsQuality()
}

func (m *IntersectionMatcher) Quality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("intersection")
	}
	aq, err := m.a.Quality()
	if err != nil {
		return 0, err
	}
	bq, err := m.b.Quality()
	if err != nil {
		return 0, err
	}
	return aq + bq, nil
}

func (m *IntersectionMatcher) BlockQuality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("intersection")
	}
	aq, err := m.a.BlockQuality()
	if err != nil {
		return 0, err
	}
	bq, err := m.b.BlockQuality()
	if err != nil {
		return 0, err
	}
	return aq + bq, nil
}

func (m *IntersectionMatcher) SkipToQuality(min float64) (int, error) {
	if !m.a.IsActive() || !m.b.IsActive() {
		return 0, nil
	}
	if !m.SupportsQuality() {
		return 0, noQuality("intersection")
	}
	skipped := 0
	for m.a.IsActive() && m.b.IsActive() {
		aq, err := m.a.BlockQuality()
		if err != nil {
			return skipped, err
		}
		bq, err := m.b.BlockQuality()
		if err != nil {
			return skipped, err
		}
		if aq+bq > min {
			break
		}
		var n int
		if aq < bq {
			n, err = m.a.SkipToQuality(min - bq)
		} else {
			n, err = m.b.SkipToQuality(min - aq)
		}
		if err != nil {
			return skipped, err
		}
		skipped += n
		if err := m.align(); err != nil {
			return skipped, err
		}
		if n == 0 {
			break
		}
	}
	return skipped, nil
}

// --- AndNotMatcher ---

// AndNotMatcher is active iff a is active; it suppresses any docid
// also present in b.
type AndNotMatcher struct {
	binary
}

// NewAndNotMatcher builds a AND NOT b.
func NewAndNotMatcher(a, b Matcher) (*AndNotMatcher, error) {
	m := &AndNotMatcher{binary: newBinary(a, b)}
	if err := m.align(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AndNotMatcher) depth() int { return m.binary.depth }

// align re-aligns b forward to a's id, then advances a past any docid
// b also holds, repeating until a sits on an id b lacks (or either
// side runs out).
func (m *AndNotMatcher) align() error {
	for m.a.IsActive() && m.b.IsActive() {
		if m.b.ID() < m.a.ID() {
			if err := m.b.SkipTo(m.a.ID()); err != nil {
				return err
			}
			continue
		}
		if m.b.ID() != m.a.ID() {
			return nil
		}
		if err := m.a.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (m *AndNotMatcher) IsActive() bool { return m.a.IsActive() }
func (m *AndNotMatcher) ID() int        { return m.a.ID() }

func (m *AndNotMatcher) Next() error {
	if !m.IsActive() {
		return readTooFar("andnot.Next")
	}
	if err := m.a.Next(); err != nil {
		return err
	}
	return m.align()
}

func (m *AndNotMatcher) SkipTo(target int) error {
	if !m.IsActive() {
		return readTooFar("andnot.SkipTo")
	}
	if err := m.a.SkipTo(target); err != nil {
		return err
	}
	if m.b.IsActive() && m.b.ID() < target {
		if err := m.b.SkipTo(target); err != nil {
			return err
		}
	}
	return m.align()
}

func (m *AndNotMatcher) Value() []byte             { return m.a.Value() }
func (m *AndNotMatcher) Weight() float64           { return m.a.Weight() }
func (m *AndNotMatcher) Score() float64            { return m.a.Score() }
func (m *AndNotMatcher) Positions() ([]int, error) { return m.a.Positions() }

func (m *AndNotMatcher) Copy() Matcher {
	return &AndNotMatcher{binary: binary{a: m.a.Copy(), b: m.b.Copy(), depth: m.binary.depth}}
}

func (m *AndNotMatcher) Replace() Matcher {
	if !m.IsActive() {
		return NullMatcher{}
	}
	return m
}

func (m *AndNotMatcher) SupportsQuality() bool          { return m.a.SupportsQuality() }
func (m *AndNotMatcher) Quality() (float64, error)      { return m.a.Quality() }
func (m *AndNotMatcher) BlockQuality() (float64, error) { return m.a.BlockQuality() }

func (m *AndNotMatcher) SkipToQuality(min float64) (int, error) {
	n, err := m.a.SkipToQuality(min)
	if err != nil {
		return n, err
	}
	if err := m.align(); err != nil {
		return n, err
	}
	return n, nil
}

// --- RequireMatcher ---

// RequireMatcher delegates traversal to an intersection of a and b
// but reports only a's weight/score/quality.
type RequireMatcher struct {
	inter *IntersectionMatcher
}

// NewRequireMatcher builds a matcher over docs present in both a and
// b, scored solely by a.
func NewRequireMatcher(a, b Matcher) (*RequireMatcher, error) {
	inter, err := NewIntersectionMatcher(a, b)
	if err != nil {
		return nil, err
	}
	return &RequireMatcher{inter: inter}, nil
}

func (m *RequireMatcher) depth() int { return m.inter.binary.depth }

func (m *RequireMatcher) IsActive() bool            { return m.inter.IsActive() }
func (m *RequireMatcher) ID() int                   { return m.inter.ID() }
func (m *RequireMatcher) Next() error               { return m.inter.Next() }
func (m *RequireMatcher) SkipTo(target int) error   { return m.inter.SkipTo(target) }
func (m *RequireMatcher) Value() []byte             { return m.inter.a.Value() }
func (m *RequireMatcher) Weight() float64           { return m.inter.a.Weight() }
func (m *RequireMatcher) Score() float64            { return m.inter.a.Score() }
func (m *RequireMatcher) Positions() ([]int, error) { return m.inter.a.Positions() }

func (m *RequireMatcher) Copy() Matcher {
	return &RequireMatcher{inter: m.inter.Copy().(*IntersectionMatcher)}
}

func (m *RequireMatcher) Replace() Matcher {
	if !m.IsActive() {
		return NullMatcher{}
	}
	return m
}

func (m *RequireMatcher) SupportsQuality() bool { return m.inter.a.SupportsQuality() }

func (m *RequireMatcher) Quality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("require")
	}
	return m.inter.a.Quality()
}

func (m *RequireMatcher) BlockQuality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("require")
	}
	return m.inter.a.BlockQuality()
}

func (m *RequireMatcher) SkipToQuality(min float64) (int, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("require")
	}
	n, err := m.inter.a.SkipToQuality(min)
	if err != nil {
		return n, err
	}
	if err := m.inter.align(); err != nil {
		return n, err
	}
	return n, nil
}

// --- AndMaybeMatcher ---

// AndMaybeMatcher is driven entirely by a; after each move, if b is
// active it is aligned to a.ID() and its score is added when the two
// coincide.
type AndMaybeMatcher struct {
	binary
}

// NewAndMaybeMatcher builds a matcher over a's docs, adding b's score
// wherever b also matches.
func NewAndMaybeMatcher(a, b Matcher) (*AndMaybeMatcher, error) {
	m := &AndMaybeMatcher{binary: newBinary(a, b)}
	if err := m.align(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AndMaybeMatcher) depth() int { return m.binary.depth }

func (m *AndMaybeMatcher) align() error {
	if m.a.IsActive() && m.b.IsActive() && m.b.ID() < m.a.ID() {
		return m.b.SkipTo(m.a.ID())
	}
	return nil
}

func (m *AndMaybeMatcher) IsActive() bool { return m.a.IsActive() }
func (m *AndMaybeMatcher) ID() int        { return m.a.ID() }

func (m *AndMaybeMatcher) Next() error {
	if !m.IsActive() {
		return readTooFar("andmaybe.Next")
	}
	if err := m.a.Next(); err != nil {
		return err
	}
	return m.align()
}

func (m *AndMaybeMatcher) SkipTo(target int) error {
	if !m.IsActive() {
		return readTooFar("andmaybe.SkipTo")
	}
	if err := m.a.SkipTo(target); err != nil {
		return err
	}
	return m.align()
}

func (m *AndMaybeMatcher) Value() []byte   { return m.a.Value() }
func (m *AndMaybeMatcher) Weight() float64 { return m.a.Weight() }

func (m *AndMaybeMatcher) Score() float64 {
	if m.b.IsActive() && m.b.ID() == m.a.ID() {
		return m.a.Score() + m.b.Score()
	}
	return m.a.Score()
}

func (m *AndMaybeMatcher) Positions() ([]int, error) { return m.a.Positions() }

func (m *AndMaybeMatcher) Copy() Matcher {
	return &AndMaybeMatcher{binary: binary{a: m.a.Copy(), b: m.b.Copy(), depth: m.binary.depth}}
}

func (m *AndMaybeMatcher) Replace() Matcher {
	if !m.IsActive() {
		return NullMatcher{}
	}
	return m
}

func (m *AndMaybeMatcher) SupportsQuality() bool { return m.a.SupportsQuality() }

func (m *AndMaybeMatcher) Quality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("andmaybe")
	}
	return m.a.Quality()
}

func (m *AndMaybeMatcher) BlockQuality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("andmaybe")
	}
	return m.a.BlockQuality()
}

func (m *AndMaybeMatcher) SkipToQuality(min float64) (int, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("andmaybe")
	}
	n, err := m.a.SkipToQuality(min)
	if err != nil {
		return n, err
	}
	if err := m.align(); err != nil {
		return n, err
	}
	return n, nil
}
