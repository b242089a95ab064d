// Package pool implements the external sorter a SegmentWriter drives
// during a commit: postings and field-length records arrive in
// whatever order add_document/add_reader produce them, and Finish
// emits them merge-sorted by (field, term, docid) into a terms index
// and a postings stream.
package pool

import (
	"fmt"
	"sort"

	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/storage"
	"github.com/jpl-au/loom/structio"
)

// DocLengthLimit caps the length recorded for any one (docnum, field)
// pair; tokens beyond it are still indexed but do not count toward
// the stored length used for length-normalized scoring.
const DocLengthLimit = 65535

// posting is one accumulated (field, term, docnum, weight, payload)
// tuple, held in RAM until a run is flushed or Finish runs.
type posting struct {
	field   string
	term    string
	docnum  int
	weight  float64
	payload []byte
}

// TermsWriter receives one terms-index entry per (field, term) group,
// in sorted order, as the pool streams postings to PostingsWriter.
type TermsWriter interface {
	WriteTerm(field, term string, docFreq int, maxWeight float64, postingOffset int64, postingCount int) error
}

// PostingsWriter receives raw posting bytes for the group currently
// being written. The pool reads Offset before a (field, term) group's
// first posting and records it in that group's terms-index entry.
type PostingsWriter interface {
	Offset() int64
	WritePosting(docnum int, weight float64, payload []byte) error
}

// Pool accumulates postings and field lengths for one segment under
// construction.
type Pool struct {
	st        storage.Storage
	budget    int
	memUsed   int
	buf       []posting
	runFiles  []string
	runSeq    int
	tmpPrefix string

	fieldLengths map[int]map[string]int // docnum -> field -> length, capped at DocLengthLimit
	fieldMaxes   map[string]int
	fieldTotals  map[string]int64

	cancelled bool
}

// New returns a Pool that spills to st's temp namespace once its
// in-RAM buffer exceeds budget bytes (a rough accounting: each
// posting is charged the length of its term plus its payload plus a
// fixed per-record overhead).
func New(st storage.Storage, budget int, tmpPrefix string) *Pool {
	if budget <= 0 {
		budget = 8 << 20
	}
	return &Pool{
		st:           st,
		budget:       budget,
		tmpPrefix:    tmpPrefix,
		fieldLengths: make(map[int]map[string]int),
		fieldMaxes:   make(map[string]int),
		fieldTotals:  make(map[string]int64),
	}
}

// AddPosting records one posting. docid ordering is not required;
// the pool sorts on flush/finish.
func (p *Pool) AddPosting(field, term string, docnum int, weight float64, payload []byte) error {
	p.buf = append(p.buf, posting{field: field, term: term, docnum: docnum, weight: weight, payload: payload})
	p.memUsed += len(term) + len(payload) + 48
	if p.memUsed >= p.budget {
		return p.dumpRun()
	}
	return nil
}

// AddFieldLength records docnum's token count for field, capped at
// DocLengthLimit and tracked into running per-field totals/maxes.
func (p *Pool) AddFieldLength(docnum int, field string, length int) {
	if length > DocLengthLimit {
		length = DocLengthLimit
	}
	m := p.fieldLengths[docnum]
	if m == nil {
		m = make(map[string]int)
		p.fieldLengths[docnum] = m
	}
	m[field] = length
	p.fieldTotals[field] += int64(length)
	if length > p.fieldMaxes[field] {
		p.fieldMaxes[field] = length
	}
}

// AddContent is the convenience wrapper spec §4.5 describes: given an
// already-analyzed stream of word values for (docnum, field), it feeds
// postings and the field length in one call. The actual analysis
// (text -> WordValue stream) is an external collaborator; callers
// already hold the WordValue slice by the time they reach the pool.
func (p *Pool) AddContent(docnum int, field string, format schema.FormatKind, values []schema.WordValue) error {
	total := 0
	for _, wv := range values {
		payload, err := encodePayload(format, wv)
		if err != nil {
			return err
		}
		if err := p.AddPosting(field, wv.Term, docnum, wv.Weight, payload); err != nil {
			return err
		}
		total += wv.Freq
	}
	p.AddFieldLength(docnum, field, total)
	return nil
}

// encodePayload renders a WordValue into the wire payload its
// format prescribes: Existence carries nothing, Frequency a varint
// count, Positions a varint count plus a varint-delta position list.
func encodePayload(format schema.FormatKind, wv schema.WordValue) ([]byte, error) {
	switch format {
	case schema.FormatExistence:
		return nil, nil
	case schema.FormatFrequency:
		var buf []byte
		buf = appendVarint(buf, uint64(wv.Freq))
		return buf, nil
	case schema.FormatPositions:
		return wv.Payload, nil
	default:
		return nil, fmt.Errorf("pool: unknown format %v", format)
	}
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// Cancel discards the pool's state and removes any run files already
// flushed to storage.
func (p *Pool) Cancel() {
	p.cancelled = true
	for _, name := range p.runFiles {
		_ = p.st.DeleteFile(name)
	}
	p.buf = nil
	p.runFiles = nil
}

// dumpRun sorts the current in-RAM batch by (field, term, docid) and
// writes it to a new temp run file, then clears the buffer.
func (p *Pool) dumpRun() error {
	if len(p.buf) == 0 {
		return nil
	}
	sortPostings(p.buf)

	p.runSeq++
	name := fmt.Sprintf("%s.run%d", p.tmpPrefix, p.runSeq)
	wc, err := p.st.CreateFile(name)
	if err != nil {
		return fmt.Errorf("pool: create run: %w", err)
	}
	sw := structio.NewWriter(wc)
	if err := writeRun(sw, p.buf); err != nil {
		wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("pool: close run: %w", err)
	}

	p.runFiles = append(p.runFiles, name)
	p.buf = p.buf[:0]
	p.memUsed = 0
	return nil
}

func sortPostings(buf []posting) {
	sort.Slice(buf, func(i, j int) bool {
		a, b := buf[i], buf[j]
		if a.field != b.field {
			return a.field < b.field
		}
		if a.term != b.term {
			return a.term < b.term
		}
		return a.docnum < b.docnum
	})
}

func writeRun(sw *structio.Writer, buf []posting) error {
	return sw.WriteArray(len(buf), func(i int) error {
		p := buf[i]
		if err := sw.WriteString(p.field); err != nil {
			return err
		}
		if err := sw.WriteString(p.term); err != nil {
			return err
		}
		if err := sw.WriteInt32(int32(p.docnum)); err != nil {
			return err
		}
		if err := sw.WriteFloat64(p.weight); err != nil {
			return err
		}
		return sw.WriteBytes(p.payload)
	})
}
