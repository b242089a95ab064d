// Package reading implements the read-only views over committed index
// state: SegmentReader over one segment's six files, and MultiReader,
// a fan-out over many segments that presents the same contract with
// docnums translated to a single global space.
package reading

import (
	"github.com/jpl-au/loom/matching"
	"github.com/jpl-au/loom/schema"
)

// TermInfo summarizes one (field, term) lexicon entry: how many
// documents contain it (DocFreq) and how many times it occurs in
// total (CollFreq, the "collection frequency").
type TermInfo struct {
	Field    string
	Term     string
	DocFreq  int
	CollFreq int
}

// TermIterator walks a lexicon in lexicographic (field, term) order.
// Callers call Next before the first Info, in the style of bufio.Scanner.
type TermIterator interface {
	Next() bool
	Info() TermInfo
	Err() error
}

// VectorTerm is one decoded entry of a document's forward vector: the
// term plus its payload-decoded weight and raw payload, shape
// dependent on the field's vector format.
type VectorTerm struct {
	Term    string
	Weight  float64
	Payload []byte
}

// Reader is the read-only contract SegmentReader and MultiReader both
// satisfy, so searching and the root package can work against either
// a single segment or a fan-out over many.
type Reader interface {
	Contains(field, term string) bool
	Iter() TermIterator
	IterFrom(field, term string) TermIterator
	ExpandPrefix(field, prefix string) []string
	IterField(field string) TermIterator
	IterPrefix(field, prefix string) TermIterator
	Lexicon(field string) []string

	Postings(field, term string, exclude map[int]struct{}) (matching.Matcher, error)

	StoredFields(docnum int) (map[string]any, error)
	AllStoredFields() (map[int]map[string]any, error)

	DocCountAll() int
	DocCount() int
	IsDeleted(docnum int) bool
	HasDeletions() bool

	DocFrequency(field, term string) (int, error)
	Frequency(field, term string) (int, error)
	FieldLength(field string) int64
	DocFieldLength(docnum int, field string) (int, error)
	MaxFieldLength(field string) int

	HasVector(docnum int, field string) bool
	Vector(docnum int, field string) (matching.Matcher, error)
	VectorAs(docnum int, field string) ([]VectorTerm, error)

	MostFrequentTerms(field string, n int, prefix string) ([]TermInfo, error)
	MostDistinctiveTerms(field string, n int, prefix string) ([]TermInfo, error)

	Schema() *schema.Schema
	Close() error
}

// sliceIterator adapts a pre-filtered, pre-sorted []TermInfo to the
// TermIterator contract; used by every lexicon-walking method below
// since both SegmentReader and the MultiReader heap-merge ultimately
// produce a materialized, ordered slice at this scope.
type sliceIterator struct {
	items []TermInfo
	pos   int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Info() TermInfo { return it.items[it.pos-1] }
func (it *sliceIterator) Err() error     { return nil }
