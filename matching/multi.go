package matching

// MultiMatcher concatenates an ordered list of per-segment matchers,
// translating each child's local docid by a parallel list of docnum
// offsets so ids are global across the whole matcher.
type MultiMatcher struct {
	children []Matcher
	offsets  []int
	current  int
}

// NewMultiMatcher builds a matcher over children, one per segment, in
// segment order, with offsets[i] added to children[i]'s local ids.
func NewMultiMatcher(children []Matcher, offsets []int) *MultiMatcher {
	m := &MultiMatcher{children: children, offsets: offsets}
	m.advanceToActive()
	return m
}

// advanceToActive moves m.current forward to the first child that is
// still active, if any.
func (m *MultiMatcher) advanceToActive() {
	for m.current < len(m.children) && !m.children[m.current].IsActive() {
		m.current++
	}
}

func (m *MultiMatcher) IsActive() bool { return m.current < len(m.children) }

func (m *MultiMatcher) ID() int {
	return m.children[m.current].ID() + m.offsets[m.current]
}

func (m *MultiMatcher) Next() error {
	if !m.IsActive() {
		return readTooFar("multi.Next")
	}
	if err := m.children[m.current].Next(); err != nil {
		return err
	}
	m.advanceToActive()
	return nil
}

// SkipTo translates target into the local docnum space of whichever
// child segment contains it, skipping entirely over any child segment
// that lies wholly before target.
func (m *MultiMatcher) SkipTo(target int) error {
	if !m.IsActive() {
		return readTooFar("multi.SkipTo")
	}
	for m.current < len(m.children) {
		childEnd := m.offsets[m.current]
		if m.current+1 < len(m.offsets) {
			childEnd = m.offsets[m.current+1]
		} else {
			childEnd = 1<<62 - 1
		}
		if target < childEnd {
			local := target - m.offsets[m.current]
			if local > 0 {
				if err := m.children[m.current].SkipTo(local); err != nil {
					return err
				}
			}
			if m.children[m.current].IsActive() {
				return nil
			}
		}
		m.current++
		m.advanceToActive()
		if m.current >= len(m.children) || m.ID() >= target {
			return nil
		}
	}
	return nil
}

func (m *MultiMatcher) Value() []byte   { return m.children[m.current].Value() }
func (m *MultiMatcher) Weight() float64 { return m.children[m.current].Weight() }
func (m *MultiMatcher) Score() float64  { return m.children[m.current].Score() }

func (m *MultiMatcher) Positions() ([]int, error) { return m.children[m.current].Positions() }

func (m *MultiMatcher) Copy() Matcher {
	children := make([]Matcher, len(m.children))
	for i, c := range m.children {
		children[i] = c.Copy()
	}
	offsets := append([]int(nil), m.offsets...)
	return &MultiMatcher{children: children, offsets: offsets, current: m.current}
}

func (m *MultiMatcher) Replace() Matcher {
	if !m.IsActive() {
		return NullMatcher{}
	}
	return m
}

func (m *MultiMatcher) SupportsQuality() bool {
	return m.IsActive() && m.children[m.current].SupportsQuality()
}

func (m *MultiMatcher) Quality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("multi")
	}
	return m.children[m.current].Quality()
}

func (m *MultiMatcher) BlockQuality() (float64, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("multi")
	}
	return m.children[m.current].BlockQuality()
}

func (m *MultiMatcher) SkipToQuality(min float64) (int, error) {
	if !m.SupportsQuality() {
		return 0, noQuality("multi")
	}
	n, err := m.children[m.current].SkipToQuality(min)
	if err != nil {
		return n, err
	}
	if !m.children[m.current].IsActive() {
		m.current++
		m.advanceToActive()
	}
	return n, nil
}
