package pool

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/jpl-au/loom/storage"
	"github.com/jpl-au/loom/structio"
)

// cursor streams one ordered posting source (a flushed run file, or
// the still-in-memory tail buffer) one record at a time.
type cursor interface {
	current() posting
	advance() (bool, error)
	close() error
}

// runCursor streams a run file written by writeRun.
type runCursor struct {
	f    storage.File
	r    *structio.Reader
	n    int
	i    int
	curr posting
}

func openRunCursor(st storage.Storage, name string) (*runCursor, error) {
	f, err := st.OpenFile(name, false)
	if err != nil {
		return nil, err
	}
	sr := structio.NewReader(f)
	n, err := sr.ReadVarint()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &runCursor{f: f, r: sr, n: int(n)}, nil
}

func (rc *runCursor) current() posting { return rc.curr }

func (rc *runCursor) advance() (bool, error) {
	if rc.i >= rc.n {
		return false, nil
	}
	field, err := rc.r.ReadString()
	if err != nil {
		return false, err
	}
	term, err := rc.r.ReadString()
	if err != nil {
		return false, err
	}
	docnum, err := rc.r.ReadInt32()
	if err != nil {
		return false, err
	}
	weight, err := rc.r.ReadFloat64()
	if err != nil {
		return false, err
	}
	payload, err := rc.r.ReadBytes()
	if err != nil {
		return false, err
	}
	rc.curr = posting{field: field, term: term, docnum: int(docnum), weight: weight, payload: payload}
	rc.i++
	return true, nil
}

func (rc *runCursor) close() error { return rc.f.Close() }

// memCursor streams the pool's still-unflushed in-memory buffer.
type memCursor struct {
	buf  []posting
	i    int
	curr posting
}

func (m *memCursor) current() posting { return m.curr }

func (m *memCursor) advance() (bool, error) {
	if m.i >= len(m.buf) {
		return false, nil
	}
	m.curr = m.buf[m.i]
	m.i++
	return true, nil
}

func (m *memCursor) close() error { return nil }

// mergeHeap is a min-heap of active cursors ordered by (field, term, docnum).
type mergeHeap []cursor

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	a, b := h[i].current(), h[j].current()
	if a.field != b.field {
		return a.field < b.field
	}
	if a.term != b.term {
		return a.term < b.term
	}
	return a.docnum < b.docnum
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(cursor)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Finish performs the k-way merge across flushed runs and the
// remaining in-memory buffer, emitting postings in (field, term,
// docid) order to terms/posts, and concurrently drains accumulated
// field lengths to lengthSink.
func (p *Pool) Finish(st storage.Storage, terms TermsWriter, posts PostingsWriter, lengthSink func(docnum int, field string, length int) error) error {
	if p.cancelled {
		return fmt.Errorf("pool: finish after cancel")
	}
	if len(p.buf) > 0 {
		sortPostings(p.buf)
	}

	var lenErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lenErr = p.flushFieldLengths(lengthSink)
	}()

	mergeErr := p.mergePostings(st, terms, posts)
	wg.Wait()
	if mergeErr != nil {
		return mergeErr
	}
	return lenErr
}

// flushFieldLengths writes every accumulated (docnum, field, length)
// triple via lengthSink. Docnums are bucketed by an xxh3 hash purely
// to decouple iteration order from Go's randomized map order, so
// runs are reproducible across otherwise-identical commits.
func (p *Pool) flushFieldLengths(lengthSink func(docnum int, field string, length int) error) error {
	const shards = 8
	buckets := make([][]int, shards)
	for docnum := range p.fieldLengths {
		b := int(xxh3.HashString(fmt.Sprintf("%d", docnum)) % uint64(shards))
		buckets[b] = append(buckets[b], docnum)
	}
	for _, docs := range buckets {
		sort.Ints(docs)
		for _, docnum := range docs {
			lens := p.fieldLengths[docnum]
			fields := make([]string, 0, len(lens))
			for field := range lens {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			for _, field := range fields {
				if err := lengthSink(docnum, field, lens[field]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// FieldTotals returns the accumulated per-field length totals, used to
// build the Segment descriptor after Finish.
func (p *Pool) FieldTotals() map[string]int64 { return p.fieldTotals }

// FieldMaxes returns the accumulated per-field max lengths.
func (p *Pool) FieldMaxes() map[string]int { return p.fieldMaxes }

func (p *Pool) mergePostings(st storage.Storage, terms TermsWriter, posts PostingsWriter) error {
	h := &mergeHeap{}
	heap.Init(h)

	var opened []cursor
	// pushIfLive advances c once and, if it yielded a record, pushes it
	// onto the heap. Exhausted cursors are left for the deferred close
	// pass below rather than closed eagerly, so every opened cursor is
	// closed exactly once regardless of when it ran dry.
	pushIfLive := func(c cursor) error {
		ok, err := c.advance()
		if err != nil {
			return err
		}
		if ok {
			heap.Push(h, c)
		}
		return nil
	}

	for _, name := range p.runFiles {
		rc, err := openRunCursor(st, name)
		if err != nil {
			for _, c := range opened {
				c.close()
			}
			return fmt.Errorf("pool: open run: %w", err)
		}
		opened = append(opened, rc)
		if err := pushIfLive(rc); err != nil {
			for _, c := range opened {
				c.close()
			}
			return err
		}
	}

	mc := &memCursor{buf: p.buf}
	if err := pushIfLive(mc); err != nil {
		for _, c := range opened {
			c.close()
		}
		return err
	}

	defer func() {
		for _, c := range opened {
			c.close()
		}
	}()

	var group *groupState
	for h.Len() > 0 {
		top := heap.Pop(h).(cursor)
		rec := top.current()

		if group == nil || group.field != rec.field || group.term != rec.term {
			if group != nil {
				if err := group.close(terms); err != nil {
					return err
				}
			}
			group = newGroupState(rec.field, rec.term, posts.Offset())
		}
		if err := posts.WritePosting(rec.docnum, rec.weight, rec.payload); err != nil {
			return err
		}
		group.docFreq++
		if rec.weight > group.maxWeight {
			group.maxWeight = rec.weight
		}

		if err := pushIfLive(top); err != nil {
			return err
		}
	}
	if group != nil {
		if err := group.close(terms); err != nil {
			return err
		}
	}
	return nil
}

type groupState struct {
	field, term string
	offset      int64
	docFreq     int
	maxWeight   float64
}

func newGroupState(field, term string, offset int64) *groupState {
	return &groupState{field: field, term: term, offset: offset}
}

func (g *groupState) close(terms TermsWriter) error {
	return terms.WriteTerm(g.field, g.term, g.docFreq, g.maxWeight, g.offset, g.docFreq)
}
