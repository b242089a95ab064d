// Package segment defines the immutable-after-commit unit of index
// data (six named files plus a mutable in-memory soft-delete set) and
// SegmentSet, the ordered collection of segments a TOC generation
// references.
package segment

import (
	"fmt"

	"github.com/jpl-au/loom/errs"
)

// Extension is one of the six file kinds a segment is made of.
type Extension string

const (
	ExtTermsIndex   Extension = "trm" // terms index
	ExtTermPostings Extension = "pst" // term postings
	ExtStoredFields Extension = "sto" // stored fields
	ExtFieldLengths Extension = "fln" // field lengths
	ExtVectorIndex  Extension = "vec" // vector index
	ExtVectorPosts  Extension = "vps" // vector postings
)

var allExtensions = [...]Extension{
	ExtTermsIndex, ExtTermPostings, ExtStoredFields,
	ExtFieldLengths, ExtVectorIndex, ExtVectorPosts,
}

// Segment is the generational descriptor persisted in the TOC. Deleted
// is cloned at reader-open time so a committed reader's snapshot is
// never mutated by a concurrent writer (spec §5, "shared mutable
// state").
type Segment struct {
	IndexName   string `json:"index_name"`
	Counter     int    `json:"counter"` // monotonic suffix, derives Name
	DocCountAll int    `json:"doc_count_all"`

	FieldLengthTotals map[string]int64 `json:"field_length_totals,omitempty"`
	FieldLengthMaxes  map[string]int   `json:"field_length_maxes,omitempty"`

	Deleted map[int]struct{} `json:"deleted,omitempty"`
}

// New returns a fresh, deletion-free descriptor for counter n of index.
func New(indexName string, counter int) *Segment {
	return &Segment{
		IndexName:         indexName,
		Counter:           counter,
		FieldLengthTotals: make(map[string]int64),
		FieldLengthMaxes:  make(map[string]int),
	}
}

// Name is the segment's unique name within its index: "_<index>_<n>".
func (s *Segment) Name() string {
	return fmt.Sprintf("_%s_%d", s.IndexName, s.Counter)
}

// FileName returns the on-disk name of one of this segment's six
// files: "_<index>_<n>.<ext>".
func (s *Segment) FileName(ext Extension) string {
	return fmt.Sprintf("%s.%s", s.Name(), ext)
}

// FileNames returns all six file names for this segment.
func (s *Segment) FileNames() []string {
	names := make([]string, 0, len(allExtensions))
	for _, ext := range allExtensions {
		names = append(names, s.FileName(ext))
	}
	return names
}

// DocCountAllN is the high-water docnum: 0-based, monotonically
// increasing, including deleted documents.
func (s *Segment) DocCountAllN() int { return s.DocCountAll }

// DocCount subtracts deleted cardinality from the high-water docnum.
func (s *Segment) DocCount() int {
	return s.DocCountAll - len(s.Deleted)
}

// FieldLength sums the stored per-document lengths for field f across
// this segment.
func (s *Segment) FieldLength(f string) int64 {
	return s.FieldLengthTotals[f]
}

// MaxFieldLength returns the longest single document's length for
// field f in this segment.
func (s *Segment) MaxFieldLength(f string) int {
	return s.FieldLengthMaxes[f]
}

// IsDeleted reports whether docnum has been soft-deleted.
func (s *Segment) IsDeleted(docnum int) bool {
	if s.Deleted == nil {
		return false
	}
	_, ok := s.Deleted[docnum]
	return ok
}

// HasDeletions reports whether any document in this segment is
// soft-deleted.
func (s *Segment) HasDeletions() bool { return len(s.Deleted) > 0 }

// DeletedCount returns the number of soft-deleted documents.
func (s *Segment) DeletedCount() int { return len(s.Deleted) }

// DeleteDocument toggles docnum's membership in the deleted set.
// markDeleted=true marks it deleted (ErrRedeletion if already
// deleted); markDeleted=false removes it from the set, returning
// ErrUnknownUndelete if docnum was never marked deleted in the first
// place.
func (s *Segment) DeleteDocument(docnum int, markDeleted bool) error {
	if docnum < 0 || docnum >= s.DocCountAll {
		return fmt.Errorf("segment: delete %d: %w", docnum, errs.ErrDocOutOfRange)
	}
	if s.Deleted == nil {
		s.Deleted = make(map[int]struct{})
	}
	if markDeleted {
		if _, already := s.Deleted[docnum]; already {
			return fmt.Errorf("segment: delete %d: %w", docnum, errs.ErrRedeletion)
		}
		s.Deleted[docnum] = struct{}{}
		return nil
	}
	if _, present := s.Deleted[docnum]; !present {
		return fmt.Errorf("segment: undelete %d: %w", docnum, errs.ErrUnknownUndelete)
	}
	delete(s.Deleted, docnum)
	return nil
}

// CloneDeleted returns an independent copy of the deleted set, used
// when a reader snapshots a segment at open time.
func (s *Segment) CloneDeleted() map[int]struct{} {
	if len(s.Deleted) == 0 {
		return nil
	}
	out := make(map[int]struct{}, len(s.Deleted))
	for k := range s.Deleted {
		out[k] = struct{}{}
	}
	return out
}
