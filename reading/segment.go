package reading

import (
	"fmt"
	"sort"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/matching"
	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/segment"
	"github.com/jpl-au/loom/storage"
	"github.com/jpl-au/loom/structio"
)

// On-disk record shapes (mirrored, encoder-side, in package writing):
//
//   .trm (terms index): sequential records until EOF, sorted by
//     (field, term) because the pool already emits groups in that
//     order:
//       field string, term string, docFreq varint,
//       maxWeight float64, postingOffset varint, postingCount varint
//
//   .pst (term postings): postingCount records per term, starting at
//     postingOffset, in ascending docnum order:
//       docnum varint, weight float64, payload bytes
//
//   .sto (stored fields): docCount varint, then one length-prefixed
//     zstd-compressed JSON object per docnum in order.
//
//   .fln (field lengths): numFields varint, numFields field-name
//     strings, docCount varint, then docCount*numFields fixed uint32
//     cells (row-major by docnum) for O(1) positional lookup.
//
//   .vec (vector index): sequential records until EOF:
//       docnum varint, field string, count varint, offset varint (into .vps)
//
//   .vps (vector postings): count records per vector, in the order
//     the writer received them: term string, weight float64, payload bytes

type termEntry struct {
	field      string
	term       string
	docFreq    int
	maxWeight  float64
	postOffset int64
	postCount  int
}

func lessTerm(a, b termEntry) bool {
	if a.field != b.field {
		return a.field < b.field
	}
	return a.term < b.term
}

type vecKey struct {
	docnum int
	field  string
}

type vecEntry struct {
	offset int64
	count  int
}

// SegmentReader is a read-only view over one committed segment: term
// iteration, posting lists, stored fields, field lengths, and
// per-document vectors. It snapshots the segment's deleted set at
// open time so a concurrent writer's later deletions never leak into
// an already-open reader.
type SegmentReader struct {
	st         storage.Storage
	sch        *schema.Schema
	seg        *segment.Segment
	generation int

	trmFile storage.File
	pstFile storage.File
	stoFile storage.File
	flnFile storage.File
	vecFile storage.File
	vpsFile storage.File

	pstR *structio.Reader
	vpsR *structio.Reader

	terms []termEntry

	storedOffsets []int64
	stoR          *structio.Reader

	flnR      *structio.Reader
	flnBase   int64
	flnCols   map[string]int
	flnStride int

	vectors map[vecKey]vecEntry

	deleted map[int]struct{}
}

// OpenSegment opens every file of seg under st, decoding the terms
// and vector indexes and the stored-fields offset table into memory;
// generation is -2 for a segment opened as a child of a MultiReader
// (spec's "not the top-level reader" convention) and the TOC's
// generation otherwise.
func OpenSegment(st storage.Storage, sch *schema.Schema, seg *segment.Segment, generation int) (*SegmentReader, error) {
	r := &SegmentReader{st: st, sch: sch, seg: seg, generation: generation, deleted: seg.CloneDeleted()}

	var err error
	if r.trmFile, err = st.OpenFile(seg.FileName(segment.ExtTermsIndex), true); err != nil {
		return nil, fmt.Errorf("reading: open terms index: %w", err)
	}
	if r.pstFile, err = st.OpenFile(seg.FileName(segment.ExtTermPostings), true); err != nil {
		r.Close()
		return nil, fmt.Errorf("reading: open postings: %w", err)
	}
	if r.stoFile, err = st.OpenFile(seg.FileName(segment.ExtStoredFields), true); err != nil {
		r.Close()
		return nil, fmt.Errorf("reading: open stored fields: %w", err)
	}
	if r.flnFile, err = st.OpenFile(seg.FileName(segment.ExtFieldLengths), true); err != nil {
		r.Close()
		return nil, fmt.Errorf("reading: open field lengths: %w", err)
	}
	if r.vecFile, err = st.OpenFile(seg.FileName(segment.ExtVectorIndex), true); err != nil {
		r.Close()
		return nil, fmt.Errorf("reading: open vector index: %w", err)
	}
	if r.vpsFile, err = st.OpenFile(seg.FileName(segment.ExtVectorPosts), true); err != nil {
		r.Close()
		return nil, fmt.Errorf("reading: open vector postings: %w", err)
	}

	r.pstR = structio.NewReader(r.pstFile)
	r.vpsR = structio.NewReader(r.vpsFile)

	if err := r.loadTerms(); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.loadStoredOffsets(); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.loadFieldLengths(); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.loadVectors(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *SegmentReader) loadTerms() error {
	sr := structio.NewReader(r.trmFile)
	size := r.trmFile.Size()
	for sr.Pos() < size {
		field, err := sr.ReadString()
		if err != nil {
			return fmt.Errorf("reading: terms index: %w", err)
		}
		term, err := sr.ReadString()
		if err != nil {
			return fmt.Errorf("reading: terms index: %w", err)
		}
		df, err := sr.ReadVarint()
		if err != nil {
			return fmt.Errorf("reading: terms index: %w", err)
		}
		maxW, err := sr.ReadFloat64()
		if err != nil {
			return fmt.Errorf("reading: terms index: %w", err)
		}
		off, err := sr.ReadVarint()
		if err != nil {
			return fmt.Errorf("reading: terms index: %w", err)
		}
		cnt, err := sr.ReadVarint()
		if err != nil {
			return fmt.Errorf("reading: terms index: %w", err)
		}
		r.terms = append(r.terms, termEntry{
			field: field, term: term, docFreq: int(df),
			maxWeight: maxW, postOffset: int64(off), postCount: int(cnt),
		})
	}
	return nil
}

func (r *SegmentReader) loadStoredOffsets() error {
	r.stoR = structio.NewReader(r.stoFile)
	if r.stoFile.Size() == 0 {
		return nil
	}
	n, err := r.stoR.ReadVarint()
	if err != nil {
		return fmt.Errorf("reading: stored fields: %w", err)
	}
	r.storedOffsets = make([]int64, n)
	for i := uint64(0); i < n; i++ {
		r.storedOffsets[i] = r.stoR.Pos()
		if _, err := r.stoR.ReadBytes(); err != nil {
			return fmt.Errorf("reading: stored fields: %w", err)
		}
	}
	return nil
}

func (r *SegmentReader) loadFieldLengths() error {
	r.flnR = structio.NewReader(r.flnFile)
	if r.flnFile.Size() == 0 {
		r.flnCols = map[string]int{}
		return nil
	}
	sr := r.flnR
	nFields, err := sr.ReadVarint()
	if err != nil {
		return fmt.Errorf("reading: field lengths: %w", err)
	}
	r.flnCols = make(map[string]int, nFields)
	for i := uint64(0); i < nFields; i++ {
		name, err := sr.ReadString()
		if err != nil {
			return fmt.Errorf("reading: field lengths: %w", err)
		}
		r.flnCols[name] = int(i)
	}
	if _, err := sr.ReadVarint(); err != nil { // docCount, unused beyond bounds checks
		return fmt.Errorf("reading: field lengths: %w", err)
	}
	r.flnStride = int(nFields)
	r.flnBase = sr.Pos()
	return nil
}

func (r *SegmentReader) loadVectors() error {
	r.vectors = make(map[vecKey]vecEntry)
	sr := structio.NewReader(r.vecFile)
	size := r.vecFile.Size()
	for sr.Pos() < size {
		docnum, err := sr.ReadVarint()
		if err != nil {
			return fmt.Errorf("reading: vector index: %w", err)
		}
		field, err := sr.ReadString()
		if err != nil {
			return fmt.Errorf("reading: vector index: %w", err)
		}
		cnt, err := sr.ReadVarint()
		if err != nil {
			return fmt.Errorf("reading: vector index: %w", err)
		}
		off, err := sr.ReadVarint()
		if err != nil {
			return fmt.Errorf("reading: vector index: %w", err)
		}
		r.vectors[vecKey{docnum: int(docnum), field: field}] = vecEntry{offset: int64(off), count: int(cnt)}
	}
	return nil
}

// Close releases every file handle (and mapping) this reader opened.
func (r *SegmentReader) Close() error {
	for _, f := range []storage.File{r.trmFile, r.pstFile, r.stoFile, r.flnFile, r.vecFile, r.vpsFile} {
		if f != nil {
			_ = f.Close()
		}
	}
	return nil
}

func (r *SegmentReader) Schema() *schema.Schema { return r.sch }

// Generation reports the reader's open-time generation tag, or -2 if
// this reader is a MultiReader's child (spec §4.4).
func (r *SegmentReader) Generation() int { return r.generation }

func (r *SegmentReader) findRange(field string) (lo, hi int) {
	lo = sort.Search(len(r.terms), func(i int) bool { return r.terms[i].field >= field })
	hi = sort.Search(len(r.terms), func(i int) bool { return r.terms[i].field > field })
	return
}

func (r *SegmentReader) findTerm(field, term string) (int, bool) {
	lo, hi := r.findRange(field)
	i := sort.Search(hi-lo, func(i int) bool { return r.terms[lo+i].term >= term }) + lo
	if i < hi && r.terms[i].term == term {
		return i, true
	}
	return i, false
}

func (r *SegmentReader) Contains(field, term string) bool {
	_, ok := r.findTerm(field, term)
	return ok
}

func (r *SegmentReader) termInfo(e termEntry) (TermInfo, error) {
	coll, err := r.collFreq(e)
	if err != nil {
		return TermInfo{}, err
	}
	return TermInfo{Field: e.field, Term: e.term, DocFreq: e.docFreq, CollFreq: coll}, nil
}

func (r *SegmentReader) collFreq(e termEntry) (int, error) {
	f, ok := r.sch.Field(e.field)
	if !ok {
		return e.docFreq, nil
	}
	if f.Format == schema.FormatExistence {
		return e.docFreq, nil
	}
	_, _, payloads, err := r.readPostings(e)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, payload := range payloads {
		switch f.Format {
		case schema.FormatFrequency:
			n, err := matching.DecodeFrequency(payload)
			if err != nil {
				return 0, err
			}
			total += n
		case schema.FormatPositions:
			pos, err := matching.DecodePositions(payload)
			if err != nil {
				return 0, err
			}
			total += len(pos)
		}
	}
	return total, nil
}

func (r *SegmentReader) infoSlice(lo, hi int) ([]TermInfo, error) {
	out := make([]TermInfo, 0, hi-lo)
	for i := lo; i < hi; i++ {
		ti, err := r.termInfo(r.terms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, ti)
	}
	return out, nil
}

func (r *SegmentReader) Iter() TermIterator {
	items, _ := r.infoSlice(0, len(r.terms))
	return &sliceIterator{items: items}
}

func (r *SegmentReader) IterFrom(field, term string) TermIterator {
	start := sort.Search(len(r.terms), func(i int) bool { return !lessTerm(r.terms[i], termEntry{field: field, term: term}) })
	items, _ := r.infoSlice(start, len(r.terms))
	return &sliceIterator{items: items}
}

func (r *SegmentReader) IterField(field string) TermIterator {
	lo, hi := r.findRange(field)
	items, _ := r.infoSlice(lo, hi)
	return &sliceIterator{items: items}
}

func (r *SegmentReader) IterPrefix(field, prefix string) TermIterator {
	lo, hi := r.findRange(field)
	plo := sort.Search(hi-lo, func(i int) bool { return r.terms[lo+i].term >= prefix }) + lo
	phi := plo
	for phi < hi && len(r.terms[phi].term) >= len(prefix) && r.terms[phi].term[:len(prefix)] == prefix {
		phi++
	}
	items, _ := r.infoSlice(plo, phi)
	return &sliceIterator{items: items}
}

func (r *SegmentReader) ExpandPrefix(field, prefix string) []string {
	lo, hi := r.findRange(field)
	var out []string
	for i := lo; i < hi; i++ {
		t := r.terms[i].term
		if len(t) >= len(prefix) && t[:len(prefix)] == prefix {
			out = append(out, t)
		}
	}
	return out
}

func (r *SegmentReader) Lexicon(field string) []string {
	lo, hi := r.findRange(field)
	out := make([]string, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, r.terms[i].term)
	}
	return out
}

// readPostings materializes every (docnum, weight, payload) triple of
// one term's posting list in order.
func (r *SegmentReader) readPostings(e termEntry) ([]int, []float64, [][]byte, error) {
	ids := make([]int, 0, e.postCount)
	weights := make([]float64, 0, e.postCount)
	payloads := make([][]byte, 0, e.postCount)

	r.pstR.Seek(e.postOffset)
	for i := 0; i < e.postCount; i++ {
		docnum, err := r.pstR.ReadVarint()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reading: postings: %w", err)
		}
		weight, err := r.pstR.ReadFloat64()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reading: postings: %w", err)
		}
		payload, err := r.pstR.ReadBytes()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reading: postings: %w", err)
		}
		ids = append(ids, int(docnum))
		weights = append(weights, weight)
		payloads = append(payloads, payload)
	}
	return ids, weights, payloads, nil
}

func (r *SegmentReader) Postings(field, term string, exclude map[int]struct{}) (matching.Matcher, error) {
	idx, ok := r.findTerm(field, term)
	if !ok {
		return nil, fmt.Errorf("reading: postings %s/%s: %w", field, term, errs.TermNotFound)
	}
	ids, weights, payloads, err := r.readPostings(r.terms[idx])
	if err != nil {
		return nil, err
	}
	var m matching.Matcher = newPostingMatcher(ids, weights, payloads, r.terms[idx].maxWeight)
	merged := mergeExclude(r.deleted, exclude)
	if len(merged) > 0 {
		m = matching.NewExcludeMatcher(m, merged, 1.0)
	}
	return m, nil
}

func mergeExclude(a, b map[int]struct{}) map[int]struct{} {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make(map[int]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func (r *SegmentReader) StoredFields(docnum int) (map[string]any, error) {
	if docnum < 0 || docnum >= len(r.storedOffsets) {
		return nil, fmt.Errorf("reading: stored fields %d: %w", docnum, errs.ErrDocOutOfRange)
	}
	r.stoR.Seek(r.storedOffsets[docnum])
	out := make(map[string]any)
	if err := r.stoR.ReadCompressedObject(&out); err != nil {
		return nil, fmt.Errorf("reading: stored fields %d: %w", docnum, err)
	}
	return out, nil
}

func (r *SegmentReader) AllStoredFields() (map[int]map[string]any, error) {
	out := make(map[int]map[string]any, len(r.storedOffsets))
	for d := range r.storedOffsets {
		if r.IsDeleted(d) {
			continue
		}
		sf, err := r.StoredFields(d)
		if err != nil {
			return nil, err
		}
		out[d] = sf
	}
	return out, nil
}

func (r *SegmentReader) DocCountAll() int { return r.seg.DocCountAllN() }
func (r *SegmentReader) DocCount() int    { return r.seg.DocCountAllN() - len(r.deleted) }

func (r *SegmentReader) IsDeleted(docnum int) bool {
	_, ok := r.deleted[docnum]
	return ok
}

func (r *SegmentReader) HasDeletions() bool { return len(r.deleted) > 0 }

func (r *SegmentReader) DocFrequency(field, term string) (int, error) {
	idx, ok := r.findTerm(field, term)
	if !ok {
		return 0, fmt.Errorf("reading: doc frequency %s/%s: %w", field, term, errs.TermNotFound)
	}
	return r.terms[idx].docFreq, nil
}

func (r *SegmentReader) Frequency(field, term string) (int, error) {
	idx, ok := r.findTerm(field, term)
	if !ok {
		return 0, fmt.Errorf("reading: frequency %s/%s: %w", field, term, errs.TermNotFound)
	}
	return r.collFreq(r.terms[idx])
}

func (r *SegmentReader) FieldLength(field string) int64  { return r.seg.FieldLength(field) }
func (r *SegmentReader) MaxFieldLength(field string) int { return r.seg.MaxFieldLength(field) }

func (r *SegmentReader) DocFieldLength(docnum int, field string) (int, error) {
	col, ok := r.flnCols[field]
	if !ok {
		return 0, nil
	}
	if docnum < 0 || docnum >= r.seg.DocCountAllN() {
		return 0, fmt.Errorf("reading: doc field length %d/%s: %w", docnum, field, errs.ErrDocOutOfRange)
	}
	off := r.flnBase + int64(docnum*r.flnStride+col)*4
	v, err := r.flnR.GetUint32At(off)
	if err != nil {
		return 0, fmt.Errorf("reading: doc field length %d/%s: %w", docnum, field, err)
	}
	return int(v), nil
}

func (r *SegmentReader) HasVector(docnum int, field string) bool {
	_, ok := r.vectors[vecKey{docnum: docnum, field: field}]
	return ok
}

func (r *SegmentReader) vectorTerms(docnum int, field string) ([]VectorTerm, error) {
	e, ok := r.vectors[vecKey{docnum: docnum, field: field}]
	if !ok {
		return nil, nil
	}
	r.vpsR.Seek(e.offset)
	out := make([]VectorTerm, 0, e.count)
	for i := 0; i < e.count; i++ {
		term, err := r.vpsR.ReadString()
		if err != nil {
			return nil, fmt.Errorf("reading: vector postings: %w", err)
		}
		weight, err := r.vpsR.ReadFloat64()
		if err != nil {
			return nil, fmt.Errorf("reading: vector postings: %w", err)
		}
		payload, err := r.vpsR.ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("reading: vector postings: %w", err)
		}
		out = append(out, VectorTerm{Term: term, Weight: weight, Payload: payload})
	}
	return out, nil
}

func (r *SegmentReader) Vector(docnum int, field string) (matching.Matcher, error) {
	terms, err := r.vectorTerms(docnum, field)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(terms))
	weights := make([]float64, len(terms))
	payloads := make([][]byte, len(terms))
	var maxW float64
	for i, t := range terms {
		ids[i] = i
		weights[i] = t.Weight
		payloads[i] = t.Payload
		if t.Weight > maxW {
			maxW = t.Weight
		}
	}
	return newPostingMatcher(ids, weights, payloads, maxW), nil
}

func (r *SegmentReader) VectorAs(docnum int, field string) ([]VectorTerm, error) {
	return r.vectorTerms(docnum, field)
}

func (r *SegmentReader) MostFrequentTerms(field string, n int, prefix string) ([]TermInfo, error) {
	return r.topTerms(field, n, prefix, func(ti TermInfo) float64 { return float64(ti.CollFreq) })
}

func (r *SegmentReader) MostDistinctiveTerms(field string, n int, prefix string) ([]TermInfo, error) {
	return r.topTerms(field, n, prefix, func(ti TermInfo) float64 {
		if ti.DocFreq == 0 {
			return 0
		}
		return float64(ti.CollFreq) * (1.0 / float64(ti.DocFreq))
	})
}

func (r *SegmentReader) topTerms(field string, n int, prefix string, score func(TermInfo) float64) ([]TermInfo, error) {
	lo, hi := r.findRange(field)
	if prefix != "" {
		lo = sort.Search(hi-lo, func(i int) bool { return r.terms[lo+i].term >= prefix }) + lo
	}
	var items []TermInfo
	for i := lo; i < hi; i++ {
		if prefix != "" && (len(r.terms[i].term) < len(prefix) || r.terms[i].term[:len(prefix)] != prefix) {
			break
		}
		ti, err := r.termInfo(r.terms[i])
		if err != nil {
			return nil, err
		}
		items = append(items, ti)
	}
	sort.Slice(items, func(i, j int) bool { return score(items[i]) > score(items[j]) })
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items, nil
}
