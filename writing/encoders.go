package writing

import (
	"fmt"

	"github.com/jpl-au/loom/structio"
)

// termsEncoder implements pool.TermsWriter, appending one record per
// (field, term) group to the .trm file in the shape reading.SegmentReader
// expects: field, term, docFreq, maxWeight, postingOffset, postingCount.
type termsEncoder struct {
	w *structio.Writer
}

func (e *termsEncoder) WriteTerm(field, term string, docFreq int, maxWeight float64, postingOffset int64, postingCount int) error {
	if err := e.w.WriteString(field); err != nil {
		return fmt.Errorf("writing: terms index: %w", err)
	}
	if err := e.w.WriteString(term); err != nil {
		return fmt.Errorf("writing: terms index: %w", err)
	}
	if err := e.w.WriteVarint(uint64(docFreq)); err != nil {
		return fmt.Errorf("writing: terms index: %w", err)
	}
	if err := e.w.WriteFloat64(maxWeight); err != nil {
		return fmt.Errorf("writing: terms index: %w", err)
	}
	if err := e.w.WriteVarint(uint64(postingOffset)); err != nil {
		return fmt.Errorf("writing: terms index: %w", err)
	}
	if err := e.w.WriteVarint(uint64(postingCount)); err != nil {
		return fmt.Errorf("writing: terms index: %w", err)
	}
	return nil
}

// postingsEncoder implements pool.PostingsWriter, appending raw
// posting records to the .pst file: docnum, weight, payload.
type postingsEncoder struct {
	w *structio.Writer
}

func (e *postingsEncoder) Offset() int64 { return e.w.Offset() }

func (e *postingsEncoder) WritePosting(docnum int, weight float64, payload []byte) error {
	if err := e.w.WriteVarint(uint64(docnum)); err != nil {
		return fmt.Errorf("writing: postings: %w", err)
	}
	if err := e.w.WriteFloat64(weight); err != nil {
		return fmt.Errorf("writing: postings: %w", err)
	}
	if err := e.w.WriteBytes(payload); err != nil {
		return fmt.Errorf("writing: postings: %w", err)
	}
	return nil
}

// writeStoredFields serializes the new segment's per-doc stored-field
// records in the shape reading.SegmentReader expects: a docCount
// header, then one length-prefixed zstd-compressed JSON object per
// docnum.
func writeStoredFields(w *structio.Writer, stored []map[string]any) error {
	if err := w.WriteVarint(uint64(len(stored))); err != nil {
		return fmt.Errorf("writing: stored fields: %w", err)
	}
	for _, rec := range stored {
		if rec == nil {
			rec = map[string]any{}
		}
		if err := w.WriteCompressedObject(rec); err != nil {
			return fmt.Errorf("writing: stored fields: %w", err)
		}
	}
	return nil
}

// writeFieldLengths serializes the field-length grid: numFields,
// field names (in cols order), docCount, then docCount*numFields
// fixed uint32 cells, row-major by docnum.
func writeFieldLengths(w *structio.Writer, cols []string, grid []uint32, docCount int) error {
	if err := w.WriteVarint(uint64(len(cols))); err != nil {
		return fmt.Errorf("writing: field lengths: %w", err)
	}
	for _, name := range cols {
		if err := w.WriteString(name); err != nil {
			return fmt.Errorf("writing: field lengths: %w", err)
		}
	}
	if err := w.WriteVarint(uint64(docCount)); err != nil {
		return fmt.Errorf("writing: field lengths: %w", err)
	}
	for _, v := range grid {
		if err := w.WriteUint32(v); err != nil {
			return fmt.Errorf("writing: field lengths: %w", err)
		}
	}
	return nil
}

// vectorEntry is one per-doc forward vector pending serialization.
type vectorEntry struct {
	docnum int
	field  string
	terms  []vectorTerm
}

type vectorTerm struct {
	term    string
	weight  float64
	payload []byte
}

// writeVectors serializes the vector index (.vec) and vector postings
// (.vps) files together, since each .vec record's offset points into
// the .vps stream being built alongside it.
func writeVectors(vecW, vpsW *structio.Writer, entries []vectorEntry) error {
	for _, e := range entries {
		offset := vpsW.Offset()
		for _, t := range e.terms {
			if err := vpsW.WriteString(t.term); err != nil {
				return fmt.Errorf("writing: vector postings: %w", err)
			}
			if err := vpsW.WriteFloat64(t.weight); err != nil {
				return fmt.Errorf("writing: vector postings: %w", err)
			}
			if err := vpsW.WriteBytes(t.payload); err != nil {
				return fmt.Errorf("writing: vector postings: %w", err)
			}
		}
		if err := vecW.WriteVarint(uint64(e.docnum)); err != nil {
			return fmt.Errorf("writing: vector index: %w", err)
		}
		if err := vecW.WriteString(e.field); err != nil {
			return fmt.Errorf("writing: vector index: %w", err)
		}
		if err := vecW.WriteVarint(uint64(len(e.terms))); err != nil {
			return fmt.Errorf("writing: vector index: %w", err)
		}
		if err := vecW.WriteVarint(uint64(offset)); err != nil {
			return fmt.Errorf("writing: vector index: %w", err)
		}
	}
	return nil
}
