// Package schema holds the abstract Field contract and the ordered
// Schema container the rest of loom is built against. Concrete field
// types (textual, numeric, datetime, boolean, keyword, n-gram) and the
// analyzer that turns text into tokens are external collaborators —
// out of scope here, per the core spec — so this package only defines
// the shape a Field must have and the posting-payload formats the core
// already needs to interpret.
package schema

import (
	"fmt"
	"strings"

	"github.com/jpl-au/loom/errs"
)

// FormatKind describes what a posting's payload encodes.
type FormatKind int

const (
	// FormatExistence postings carry no payload; the term either
	// occurs in the document or it doesn't.
	FormatExistence FormatKind = iota
	// FormatFrequency postings carry a varint occurrence count.
	FormatFrequency
	// FormatPositions postings carry a varint count followed by a
	// varint-delta-encoded list of token positions.
	FormatPositions
)

func (k FormatKind) String() string {
	switch k {
	case FormatExistence:
		return "existence"
	case FormatFrequency:
		return "frequency"
	case FormatPositions:
		return "positions"
	default:
		return fmt.Sprintf("FormatKind(%d)", int(k))
	}
}

// WordValue is one analyzed token as the external analyzer/field
// contract yields it: a term, its frequency and weight within the
// document, and its format-encoded payload.
type WordValue struct {
	Term    string
	Freq    int
	Weight  float64
	Payload []byte
}

// Field describes one column of the schema: what a posting's payload
// encodes (Format), whether a per-document forward posting list is
// also kept (Vector/HasVector), and the indexed/scorable/stored/unique
// flags from the data model.
type Field struct {
	Name string

	Format FormatKind

	HasVector bool
	Vector    FormatKind

	Indexed  bool
	Scorable bool
	Stored   bool
	Unique   bool
}

// Schema is an ordered mapping from field name to Field. Order is
// declaration order and is preserved by Names(); lexicon and
// stored-field iteration elsewhere in loom depend on this being
// stable.
type Schema struct {
	order  []string
	fields map[string]Field
}

// New returns an empty Schema.
func New() *Schema {
	return &Schema{fields: make(map[string]Field)}
}

// Add registers a field. Field names must not begin with an
// underscore (reserved for the "_stored_<field>" sideband) and must
// not contain spaces.
func (s *Schema) Add(name string, f Field) error {
	if name == "" || strings.HasPrefix(name, "_") || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("schema: field %q: %w", name, errs.FieldConfigurationError)
	}
	if _, exists := s.fields[name]; exists {
		return fmt.Errorf("schema: field %q already registered: %w", name, errs.FieldConfigurationError)
	}
	if f.HasVector && !f.Indexed {
		return fmt.Errorf("schema: field %q: vector format requires indexed: %w", name, errs.FieldConfigurationError)
	}
	f.Name = name
	s.fields[name] = f
	s.order = append(s.order, name)
	return nil
}

// Field returns the named field and whether it exists.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Has reports whether name is a registered field.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Names returns every field name in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ScorableFields returns the names of fields with Scorable set, in
// declaration order.
func (s *Schema) ScorableFields() []string {
	var out []string
	for _, n := range s.order {
		if s.fields[n].Scorable {
			out = append(out, n)
		}
	}
	return out
}

// UniqueFields returns the names of fields with Unique set, in
// declaration order.
func (s *Schema) UniqueFields() []string {
	var out []string
	for _, n := range s.order {
		if s.fields[n].Unique {
			out = append(out, n)
		}
	}
	return out
}

// Clean drops any cached analyzer state before the schema is
// serialized into a TOC. Concrete field types with analyzers attach
// state by embedding it behind the Field contract's external
// collaborators; the abstract Field here carries none, so Clean is a
// no-op hook kept for symmetry with the write path's step 1 (spec
// §4.3) and for field types layered on top of this package to
// override via composition.
func (s *Schema) Clean() {}

// snapshot is the JSON-serializable shape of a Schema, in the
// tagged-struct form the design notes (§9) ask for in place of an
// opaque interpreter-level object graph.
type snapshot struct {
	Order  []string         `json:"order"`
	Fields map[string]Field `json:"fields"`
}

// MarshalJSON encodes the schema deterministically: field order is
// explicit so a round trip through the TOC preserves Names() order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return marshalSnapshot(snapshot{Order: s.order, Fields: s.fields})
}

// UnmarshalJSON restores a Schema from its snapshot form.
func (s *Schema) UnmarshalJSON(data []byte) error {
	snap, err := unmarshalSnapshot(data)
	if err != nil {
		return err
	}
	s.order = snap.Order
	s.fields = snap.Fields
	return nil
}
