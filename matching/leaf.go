package matching

// NullMatcher is never active; used as the empty-result leaf and as
// the outcome of Replace() when a subtree provably matches nothing.
type NullMatcher struct{}

func (NullMatcher) IsActive() bool                     { return false }
func (NullMatcher) ID() int                            { return 0 }
func (NullMatcher) Next() error                        { return readTooFar("null.Next") }
func (NullMatcher) SkipTo(int) error                   { return readTooFar("null.SkipTo") }
func (NullMatcher) Value() []byte                      { return nil }
func (NullMatcher) Weight() float64                    { return 0 }
func (NullMatcher) Score() float64                     { return 0 }
func (NullMatcher) Positions() ([]int, error)          { return nil, nil }
func (NullMatcher) Copy() Matcher                      { return NullMatcher{} }
func (NullMatcher) Replace() Matcher                   { return NullMatcher{} }
func (NullMatcher) SupportsQuality() bool              { return false }
func (NullMatcher) Quality() (float64, error)          { return 0, noQuality("null") }
func (NullMatcher) BlockQuality() (float64, error)     { return 0, noQuality("null") }
func (NullMatcher) SkipToQuality(float64) (int, error) { return 0, noQuality("null") }

// ListMatcher is a canned in-memory posting list: a sorted id slice
// plus a uniform weight, used for tests and for synthetic postings
// that don't come from an on-disk posting reader.
type ListMatcher struct {
	ids      []int
	payloads [][]byte
	weight   float64
	pos      int
}

// NewListMatcher builds a ListMatcher over ids (must be strictly
// ascending) with a uniform weight. payloads, if non-nil, must be the
// same length as ids.
func NewListMatcher(ids []int, weight float64, payloads [][]byte) *ListMatcher {
	return &ListMatcher{ids: ids, weight: weight, payloads: payloads}
}

func (m *ListMatcher) IsActive() bool { return m.pos < len(m.ids) }

func (m *ListMatcher) ID() int { return m.ids[m.pos] }

func (m *ListMatcher) Next() error {
	if !m.IsActive() {
		return readTooFar("list.Next")
	}
	m.pos++
	return nil
}

func (m *ListMatcher) SkipTo(target int) error {
	if !m.IsActive() {
		return readTooFar("list.SkipTo")
	}
	for m.pos < len(m.ids) && m.ids[m.pos] < target {
		m.pos++
	}
	return nil
}

func (m *ListMatcher) Value() []byte {
	if m.payloads == nil || !m.IsActive() {
		return nil
	}
	return m.payloads[m.pos]
}

func (m *ListMatcher) Weight() float64 { return m.weight }
func (m *ListMatcher) Score() float64  { return m.weight }

func (m *ListMatcher) Positions() ([]int, error) { return DecodePositions(m.Value()) }

func (m *ListMatcher) Copy() Matcher {
	cp := *m
	return &cp
}

func (m *ListMatcher) Replace() Matcher {
	if !m.IsActive() {
		return NullMatcher{}
	}
	return m
}

func (m *ListMatcher) SupportsQuality() bool { return true }

func (m *ListMatcher) Quality() (float64, error) {
	if !m.IsActive() {
		return 0, noQuality("list")
	}
	return m.weight, nil
}

func (m *ListMatcher) BlockQuality() (float64, error) { return m.Quality() }

func (m *ListMatcher) SkipToQuality(min float64) (int, error) {
	skipped := 0
	for m.IsActive() && m.weight <= min {
		if err := m.Next(); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}
