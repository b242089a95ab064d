// Package writing implements SegmentWriter, the sole mutator of an
// index: it acquires WRITELOCK, builds one new segment per commit via
// a pool.Pool, optionally absorbs existing segments per a MergePolicy,
// and publishes the result as a new TOC generation.
package writing

import (
	"context"
	"fmt"
	"time"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/pool"
	"github.com/jpl-au/loom/reading"
	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/segment"
	"github.com/jpl-au/loom/storage"
	"github.com/jpl-au/loom/structio"
	"github.com/jpl-au/loom/toc"
)

func writeLockName(index string) string { return fmt.Sprintf("_%s.writelock", index) }
func readLockName(index string) string  { return fmt.Sprintf("_%s.readlock", index) }

// SegmentWriter drives the creation of exactly one new segment and,
// on Commit, one new TOC generation. It holds WRITELOCK for its
// entire lifetime.
type SegmentWriter struct {
	st        storage.Storage
	indexName string
	lock      storage.Lock

	oldGen  int
	oldSegs []*segment.Segment
	sch     *schema.Schema

	newSeg *segment.Segment
	pool   *pool.Pool

	analyzer Analyzer

	nextDocnum int
	stored     []map[string]any
	vectors    []vectorEntry

	closed bool
}

// Open acquires WRITELOCK (failing with errs.LockError on ctx
// expiry), snapshots the current TOC, and prepares a new segment
// under new_gen = old_gen + 1, new_seg_name = _<index>_<counter+1>.
// Opening against an index with no TOC yet starts generation 0 with
// an empty segment set, using sch as the initial schema.
func Open(ctx context.Context, st storage.Storage, indexName string, sch *schema.Schema, budget int) (*SegmentWriter, error) {
	lock, err := st.Lock(writeLockName(indexName))
	if err != nil {
		return nil, fmt.Errorf("writing: lock: %w", err)
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, fmt.Errorf("writing: acquire WRITELOCK: %w", errs.LockError)
	}

	gen, err := toc.LatestGeneration(st, indexName)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	var oldSegs []*segment.Segment
	counter := 0
	if gen >= 0 {
		t, err := toc.Read(st, indexName, gen)
		if err != nil {
			_ = lock.Unlock()
			return nil, err
		}
		sch = t.Schema
		oldSegs = t.Segments
		counter = t.SegmentCounter
	}

	newSeg := segment.New(indexName, counter+1)
	p := pool.New(st, budget, newSeg.Name())

	w := &SegmentWriter{
		st:        st,
		indexName: indexName,
		lock:      lock,
		oldGen:    gen,
		oldSegs:   oldSegs,
		sch:       sch,
		newSeg:    newSeg,
		pool:      p,
		analyzer:  DefaultAnalyzer{},
	}
	return w, nil
}

// SetAnalyzer overrides the analyzer used for string field values.
// Must be called before the first AddDocument/UpdateDocument.
func (w *SegmentWriter) SetAnalyzer(a Analyzer) { w.analyzer = a }

// AddDocument indexes one document, assigning it the next monotonic
// docnum. fields maps field name to either a string (run through the
// configured Analyzer), a []schema.WordValue (already analyzed), or
// any JSON-marshalable value for a stored-only field. Unknown field
// names return errs.UnknownFieldError.
func (w *SegmentWriter) AddDocument(fields map[string]any) (int, error) {
	docnum := w.nextDocnum
	w.nextDocnum++

	storedRec := make(map[string]any)
	for name, value := range fields {
		f, ok := w.sch.Field(name)
		if !ok {
			if override, isStored := stripStoredOverride(name); isStored {
				storedRec[override] = value
				continue
			}
			return 0, fmt.Errorf("writing: field %q: %w", name, errs.UnknownFieldError)
		}

		if f.Indexed {
			values, err := w.toWordValues(value)
			if err != nil {
				return 0, err
			}
			values = analyzeFor(f, values)
			if err := w.pool.AddContent(docnum, name, f.Format, values); err != nil {
				return 0, fmt.Errorf("writing: add content %q: %w", name, err)
			}
			if f.HasVector {
				w.vectors = append(w.vectors, vectorEntry{
					docnum: docnum,
					field:  name,
					terms:  toVectorTerms(values),
				})
			}
		}
		if f.Stored {
			if _, overridden := storedRec[name]; !overridden {
				storedRec[name] = value
			}
		}
	}

	for len(w.stored) <= docnum {
		w.stored = append(w.stored, nil)
	}
	w.stored[docnum] = storedRec
	return docnum, nil
}

// stripStoredOverride recognizes the "_stored_<field>" sideband
// convention: a value meant to override what's recorded in the
// stored-fields record without affecting indexing.
func stripStoredOverride(name string) (string, bool) {
	const prefix = "_stored_"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):], true
	}
	return "", false
}

func (w *SegmentWriter) toWordValues(value any) ([]schema.WordValue, error) {
	switch v := value.(type) {
	case []schema.WordValue:
		return v, nil
	case string:
		return w.analyzer.Analyze(v), nil
	default:
		return nil, fmt.Errorf("writing: indexed field value must be string or []schema.WordValue: %w", errs.FieldConfigurationError)
	}
}

func toVectorTerms(values []schema.WordValue) []vectorTerm {
	out := make([]vectorTerm, len(values))
	for i, wv := range values {
		out[i] = vectorTerm{term: wv.Term, weight: wv.Weight, payload: wv.Payload}
	}
	return out
}

// UpdateDocument adds fields as a new document, then marks deleted
// every prior document (across the writer's snapshotted segment set)
// whose value for any field marked Unique matches the new document's
// value for that field. Re-running with the same unique keys is
// idempotent: already-deleted matches are silently skipped.
func (w *SegmentWriter) UpdateDocument(fields map[string]any) (int, error) {
	docnum, err := w.AddDocument(fields)
	if err != nil {
		return 0, err
	}

	for _, name := range w.sch.UniqueFields() {
		value, present := fields[name]
		if !present {
			continue
		}
		term, ok := value.(string)
		if !ok {
			continue
		}
		if err := w.deleteMatching(name, term); err != nil {
			return docnum, err
		}
	}
	return docnum, nil
}

// deleteMatching soft-deletes every document in the writer's
// snapshotted (pre-commit) segment set whose (field, term) posting
// matches, across every segment, ignoring segments where the term is
// absent and ignoring documents already deleted.
func (w *SegmentWriter) deleteMatching(field, term string) error {
	for _, seg := range w.oldSegs {
		sr, err := reading.OpenSegment(w.st, w.sch, seg, -2)
		if err != nil {
			return err
		}
		m, err := sr.Postings(field, term, nil)
		if err == nil {
			for m.IsActive() {
				_ = seg.DeleteDocument(m.ID(), true) // ErrRedeletion ignored: idempotent re-update
				if nerr := m.Next(); nerr != nil {
					break
				}
			}
		}
		_ = sr.Close()
	}
	return nil
}

// DeleteDocument soft-deletes docnum in whichever of the writer's
// snapshotted segments owns it.
func (w *SegmentWriter) DeleteDocument(globalDocnum int) error {
	set := segment.NewSet(w.oldSegs)
	segIdx, local, ok := set.Locate(int64(globalDocnum))
	if !ok {
		return fmt.Errorf("writing: delete %d: %w", globalDocnum, errs.ErrDocOutOfRange)
	}
	return w.oldSegs[segIdx].DeleteDocument(local, true)
}

func (w *SegmentWriter) IsDeleted(globalDocnum int) bool {
	set := segment.NewSet(w.oldSegs)
	segIdx, local, ok := set.Locate(int64(globalDocnum))
	if !ok {
		return false
	}
	return w.oldSegs[segIdx].IsDeleted(local)
}

func (w *SegmentWriter) HasDeletions() bool {
	for _, seg := range w.oldSegs {
		if seg.HasDeletions() {
			return true
		}
	}
	return false
}

func (w *SegmentWriter) DeletedCount() int {
	total := 0
	for _, seg := range w.oldSegs {
		total += seg.DeletedCount()
	}
	return total
}

// AddReader absorbs every non-deleted document from r into the
// current pool, remapping docnums and preserving stored fields,
// vectors, and postings. Used by merge policies during commit.
func (w *SegmentWriter) AddReader(r reading.Reader) error {
	n := r.DocCountAll()
	remap := make(map[int]int, n)
	for old := 0; old < n; old++ {
		if r.IsDeleted(old) {
			continue
		}
		remap[old] = w.nextDocnum
		w.nextDocnum++

		sf, err := r.StoredFields(old)
		if err != nil {
			return fmt.Errorf("writing: add_reader stored fields: %w", err)
		}
		for len(w.stored) <= remap[old] {
			w.stored = append(w.stored, nil)
		}
		w.stored[remap[old]] = sf

		for _, name := range w.sch.Names() {
			f, _ := w.sch.Field(name)
			if !f.HasVector || !r.HasVector(old, name) {
				continue
			}
			terms, err := r.VectorAs(old, name)
			if err != nil {
				return fmt.Errorf("writing: add_reader vector: %w", err)
			}
			vts := make([]vectorTerm, len(terms))
			for i, t := range terms {
				vts[i] = vectorTerm{term: t.Term, weight: t.Weight, payload: t.Payload}
			}
			w.vectors = append(w.vectors, vectorEntry{docnum: remap[old], field: name, terms: vts})
		}

		for _, name := range w.sch.ScorableFields() {
			length, err := r.DocFieldLength(old, name)
			if err != nil {
				continue
			}
			w.pool.AddFieldLength(remap[old], name, length)
		}
	}

	it := r.Iter()
	for it.Next() {
		info := it.Info()
		m, err := r.Postings(info.Field, info.Term, nil)
		if err != nil {
			continue
		}
		for m.IsActive() {
			newID, ok := remap[m.ID()]
			if ok {
				if err := w.pool.AddPosting(info.Field, info.Term, newID, m.Weight(), m.Value()); err != nil {
					return fmt.Errorf("writing: add_reader posting: %w", err)
				}
			}
			if err := m.Next(); err != nil {
				break
			}
		}
	}
	return nil
}

// Cancel aborts the pool, discards buffered state, and releases
// WRITELOCK. Partially written segment files are left orphaned for a
// later commit's stale-file cleanup.
func (w *SegmentWriter) Cancel() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.pool.Cancel()
	return w.lock.Unlock()
}

// CommitOptions selects the merge policy for Commit, per the
// commit-protocol step 1 precedence: MergeType if non-nil, else
// Optimize, else Merge (false selects NO_MERGE), else MERGE_SMALL.
type CommitOptions struct {
	MergeType *MergeKind
	Optimize  bool
	Merge     bool
}

// Commit runs the 8-step commit protocol: select a merge policy,
// absorb the segments it selects via AddReader, finish the pool if
// any document was added (directly or via merge), build the new
// segment's descriptor, close streams, write the new TOC generation,
// then best-effort clean up stale files under a brief READLOCK, and
// finally release WRITELOCK.
func (w *SegmentWriter) Commit(opts CommitOptions) error {
	if w.closed {
		return fmt.Errorf("writing: commit: %w", errs.ErrClosed)
	}
	defer func() {
		w.closed = true
		_ = w.lock.Unlock()
	}()

	policy := PolicyFor(opts.MergeType, opts.Optimize, opts.Merge)
	candidates := make([]*segmentInfo, len(w.oldSegs))
	bySeg := make(map[string]*segment.Segment, len(w.oldSegs))
	for i, seg := range w.oldSegs {
		candidates[i] = &segmentInfo{name: seg.Name(), docCountAll: seg.DocCountAllN()}
		bySeg[seg.Name()] = seg
	}
	absorb := policy.SegmentsToAbsorb(candidates)
	// Rewriting one deletion-free segment with nothing new added would
	// only republish it under a new name, so that absorb is skipped.
	if w.nextDocnum == 0 && len(absorb) == 1 && !bySeg[absorb[0].name].HasDeletions() {
		absorb = nil
	}
	absorbed := make(map[string]bool, len(absorb))
	for _, a := range absorb {
		absorbed[a.name] = true
	}

	var surviving []*segment.Segment
	for _, seg := range w.oldSegs {
		if absorbed[seg.Name()] {
			continue
		}
		surviving = append(surviving, seg)
	}

	for _, a := range absorb {
		seg := bySeg[a.name]
		sr, err := reading.OpenSegment(w.st, w.sch, seg, -2)
		if err != nil {
			return fmt.Errorf("writing: commit: open absorbed segment: %w", err)
		}
		err = w.AddReader(sr)
		_ = sr.Close()
		if err != nil {
			return fmt.Errorf("writing: commit: absorb %s: %w", seg.Name(), err)
		}
	}

	wroteAny := w.nextDocnum > 0
	if wroteAny {
		if err := w.finalizeSegment(); err != nil {
			w.pool.Cancel()
			return err
		}
		surviving = append(surviving, w.newSeg)
	}

	newGen := w.oldGen + 1
	newCounter := w.newSeg.Counter
	t := &toc.TOC{Generation: newGen, SegmentCounter: newCounter, Schema: w.sch, Segments: surviving}
	if err := toc.Write(w.st, w.indexName, t, time.Now()); err != nil {
		return fmt.Errorf("writing: commit: write toc: %w", err)
	}

	w.cleanupStale(newGen, surviving)
	return nil
}

// finalizeSegment runs the pool's external merge, writing the new
// segment's six files, then folds the pool's accumulated totals into
// the segment descriptor.
func (w *SegmentWriter) finalizeSegment() error {
	trmWC, err := w.st.CreateFile(w.newSeg.FileName(segment.ExtTermsIndex))
	if err != nil {
		return fmt.Errorf("writing: create terms index: %w", err)
	}
	defer trmWC.Close()
	pstWC, err := w.st.CreateFile(w.newSeg.FileName(segment.ExtTermPostings))
	if err != nil {
		return fmt.Errorf("writing: create postings: %w", err)
	}
	defer pstWC.Close()

	terms := &termsEncoder{w: structio.NewWriter(trmWC)}
	posts := &postingsEncoder{w: structio.NewWriter(pstWC)}

	cols := w.sch.ScorableFields()
	colIdx := make(map[string]int, len(cols))
	for i, c := range cols {
		colIdx[c] = i
	}
	grid := make([]uint32, w.nextDocnum*len(cols))

	lengthSink := func(docnum int, field string, length int) error {
		col, ok := colIdx[field]
		if !ok {
			return nil
		}
		grid[docnum*len(cols)+col] = uint32(length)
		return nil
	}

	if err := w.pool.Finish(w.st, terms, posts, lengthSink); err != nil {
		return fmt.Errorf("writing: pool finish: %w", err)
	}

	stoWC, err := w.st.CreateFile(w.newSeg.FileName(segment.ExtStoredFields))
	if err != nil {
		return fmt.Errorf("writing: create stored fields: %w", err)
	}
	defer stoWC.Close()
	if err := writeStoredFields(structio.NewWriter(stoWC), w.stored); err != nil {
		return err
	}

	flnWC, err := w.st.CreateFile(w.newSeg.FileName(segment.ExtFieldLengths))
	if err != nil {
		return fmt.Errorf("writing: create field lengths: %w", err)
	}
	defer flnWC.Close()
	if err := writeFieldLengths(structio.NewWriter(flnWC), cols, grid, w.nextDocnum); err != nil {
		return err
	}

	vecWC, err := w.st.CreateFile(w.newSeg.FileName(segment.ExtVectorIndex))
	if err != nil {
		return fmt.Errorf("writing: create vector index: %w", err)
	}
	defer vecWC.Close()
	vpsWC, err := w.st.CreateFile(w.newSeg.FileName(segment.ExtVectorPosts))
	if err != nil {
		return fmt.Errorf("writing: create vector postings: %w", err)
	}
	defer vpsWC.Close()
	if err := writeVectors(structio.NewWriter(vecWC), structio.NewWriter(vpsWC), w.vectors); err != nil {
		return err
	}

	w.newSeg.DocCountAll = w.nextDocnum
	w.newSeg.FieldLengthTotals = make(map[string]int64, len(cols))
	for field, total := range w.pool.FieldTotals() {
		w.newSeg.FieldLengthTotals[field] = total
	}
	w.newSeg.FieldLengthMaxes = make(map[string]int, len(cols))
	for field, max := range w.pool.FieldMaxes() {
		w.newSeg.FieldLengthMaxes[field] = max
	}
	return nil
}

// cleanupStale briefly holds READLOCK while deleting any TOC not at
// newGen and any segment file whose segment isn't in the surviving
// set; failures are best-effort (a reader may still hold the file
// open, especially on Windows) and are simply ignored.
func (w *SegmentWriter) cleanupStale(newGen int, surviving []*segment.Segment) {
	rlock, err := w.st.Lock(readLockName(w.indexName))
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rlock.Lock(ctx); err != nil {
		return
	}
	defer rlock.Unlock()

	live := make(map[string]bool, len(surviving))
	for _, seg := range surviving {
		live[seg.Name()] = true
	}

	names, err := w.st.ListFiles()
	if err != nil {
		return
	}
	for _, name := range names {
		if isStaleTOC(name, w.indexName, newGen) || isStaleSegmentFile(name, live) {
			_ = w.st.DeleteFile(name) // best-effort; ignore "file busy"
		}
	}
}

func isStaleTOC(name, index string, newGen int) bool {
	return name != toc.FileName(index, newGen) && looksLikeTOC(name, index)
}

func looksLikeTOC(name, index string) bool {
	prefix := fmt.Sprintf("_%s_", index)
	const suffix = ".toc"
	return len(name) > len(prefix)+len(suffix) && name[:len(prefix)] == prefix && name[len(name)-len(suffix):] == suffix
}

func isStaleSegmentFile(name string, live map[string]bool) bool {
	for _, ext := range []segment.Extension{
		segment.ExtTermsIndex, segment.ExtTermPostings, segment.ExtStoredFields,
		segment.ExtFieldLengths, segment.ExtVectorIndex, segment.ExtVectorPosts,
	} {
		suffix := "." + string(ext)
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			segName := name[:len(name)-len(suffix)]
			return !live[segName]
		}
	}
	return false
}
