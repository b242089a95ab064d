package matching

// WrappingMatcher scales a child's weight/score/quality by boost.
type WrappingMatcher struct {
	child Matcher
	boost float64
}

// NewWrappingMatcher wraps child, scaling its score contribution by boost.
func NewWrappingMatcher(child Matcher, boost float64) *WrappingMatcher {
	return &WrappingMatcher{child: child, boost: boost}
}

func (m *WrappingMatcher) IsActive() bool            { return m.child.IsActive() }
func (m *WrappingMatcher) ID() int                   { return m.child.ID() }
func (m *WrappingMatcher) Next() error               { return m.child.Next() }
func (m *WrappingMatcher) SkipTo(t int) error        { return m.child.SkipTo(t) }
func (m *WrappingMatcher) Value() []byte             { return m.child.Value() }
func (m *WrappingMatcher) Weight() float64           { return m.child.Weight() * m.boost }
func (m *WrappingMatcher) Score() float64            { return m.child.Score() * m.boost }
func (m *WrappingMatcher) Positions() ([]int, error) { return m.child.Positions() }

func (m *WrappingMatcher) Copy() Matcher {
	return &WrappingMatcher{child: m.child.Copy(), boost: m.boost}
}

func (m *WrappingMatcher) Replace() Matcher {
	r := m.child.Replace()
	if !r.IsActive() {
		return NullMatcher{}
	}
	return &WrappingMatcher{child: r, boost: m.boost}
}

func (m *WrappingMatcher) SupportsQuality() bool { return m.child.SupportsQuality() }

func (m *WrappingMatcher) Quality() (float64, error) {
	q, err := m.child.Quality()
	return q * m.boost, err
}

func (m *WrappingMatcher) BlockQuality() (float64, error) {
	q, err := m.child.BlockQuality()
	return q * m.boost, err
}

func (m *WrappingMatcher) SkipToQuality(min float64) (int, error) {
	return m.child.SkipToQuality(min / m.boost)
}

// ExcludeMatcher skips over any docid present in excluded after every
// move. excluded is passed by reference; callers must not mutate it
// while the matcher is in use.
type ExcludeMatcher struct {
	child    Matcher
	excluded map[int]struct{}
	boost    float64
}

// NewExcludeMatcher wraps child, hiding any docid in excluded.
func NewExcludeMatcher(child Matcher, excluded map[int]struct{}, boost float64) *ExcludeMatcher {
	m := &ExcludeMatcher{child: child, excluded: excluded, boost: boost}
	m.skipExcluded()
	return m
}

func (m *ExcludeMatcher) skipExcluded() {
	for m.child.IsActive() {
		if _, hidden := m.excluded[m.child.ID()]; !hidden {
			return
		}
		if err := m.child.Next(); err != nil {
			return
		}
	}
}

func (m *ExcludeMatcher) IsActive() bool { return m.child.IsActive() }
func (m *ExcludeMatcher) ID() int        { return m.child.ID() }

func (m *ExcludeMatcher) Next() error {
	if err := m.child.Next(); err != nil {
		return err
	}
	m.skipExcluded()
	return nil
}

func (m *ExcludeMatcher) SkipTo(target int) error {
	if err := m.child.SkipTo(target); err != nil {
		return err
	}
	m.skipExcluded()
	return nil
}

func (m *ExcludeMatcher) Value() []byte             { return m.child.Value() }
func (m *ExcludeMatcher) Weight() float64           { return m.child.Weight() * m.boost }
func (m *ExcludeMatcher) Score() float64            { return m.child.Score() * m.boost }
func (m *ExcludeMatcher) Positions() ([]int, error) { return m.child.Positions() }

func (m *ExcludeMatcher) Copy() Matcher {
	return &ExcludeMatcher{child: m.child.Copy(), excluded: m.excluded, boost: m.boost}
}

func (m *ExcludeMatcher) Replace() Matcher {
	if !m.IsActive() {
		return NullMatcher{}
	}
	return m
}

func (m *ExcludeMatcher) SupportsQuality() bool { return m.child.SupportsQuality() }

func (m *ExcludeMatcher) Quality() (float64, error) {
	q, err := m.child.Quality()
	return q * m.boost, err
}

func (m *ExcludeMatcher) BlockQuality() (float64, error) {
	q, err := m.child.BlockQuality()
	return q * m.boost, err
}

func (m *ExcludeMatcher) SkipToQuality(min float64) (int, error) {
	n, err := m.child.SkipToQuality(min / m.boost)
	if err != nil {
		return n, err
	}
	m.skipExcluded()
	return n, nil
}

// InverseMatcher emits every docid in [0, limit) not emitted by child
// and not reported missing, for NOT-against-the-corpus queries. It
// does not support quality: it must walk densely.
type InverseMatcher struct {
	child   Matcher
	limit   int
	missing func(id int) bool
	id      int
}

// NewInverseMatcher builds the complement of child over [0, limit).
// missing, if non-nil, additionally excludes ids it reports true for
// (documents absent from the corpus rather than merely unmatched).
func NewInverseMatcher(child Matcher, limit int, missing func(id int) bool) *InverseMatcher {
	m := &InverseMatcher{child: child, limit: limit, missing: missing, id: -1}
	m.findNext()
	return m
}

// findNext advances m.id to the next candidate not covered by child
// and not reported missing, starting just after the current m.id.
func (m *InverseMatcher) findNext() {
	for {
		m.id++
		if m.id >= m.limit {
			m.id = m.limit
			return
		}
		if m.child.IsActive() && m.child.ID() < m.id {
			_ = m.child.SkipTo(m.id)
		}
		if m.child.IsActive() && m.child.ID() == m.id {
			continue
		}
		if m.missing != nil && m.missing(m.id) {
			continue
		}
		return
	}
}

func (m *InverseMatcher) IsActive() bool { return m.id < m.limit }
func (m *InverseMatcher) ID() int        { return m.id }

func (m *InverseMatcher) Next() error {
	if !m.IsActive() {
		return readTooFar("inverse.Next")
	}
	m.findNext()
	return nil
}

func (m *InverseMatcher) SkipTo(target int) error {
	if !m.IsActive() {
		return readTooFar("inverse.SkipTo")
	}
	for m.IsActive() && m.id < target {
		m.findNext()
	}
	return nil
}

func (m *InverseMatcher) Value() []byte             { return nil }
func (m *InverseMatcher) Weight() float64           { return 1 }
func (m *InverseMatcher) Score() float64            { return 1 }
func (m *InverseMatcher) Positions() ([]int, error) { return nil, nil }

func (m *InverseMatcher) Copy() Matcher {
	return &InverseMatcher{child: m.child.Copy(), limit: m.limit, missing: m.missing, id: m.id}
}

func (m *InverseMatcher) Replace() Matcher {
	if !m.IsActive() {
		return NullMatcher{}
	}
	return m
}

func (m *InverseMatcher) SupportsQuality() bool              { return false }
func (m *InverseMatcher) Quality() (float64, error)          { return 0, noQuality("inverse") }
func (m *InverseMatcher) BlockQuality() (float64, error)     { return 0, noQuality("inverse") }
func (m *InverseMatcher) SkipToQuality(float64) (int, error) { return 0, noQuality("inverse") }
