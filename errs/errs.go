// Package errs collects the sentinel errors shared across loom's
// packages. Each package wraps these with its own operation context
// via fmt.Errorf("op: %w", err) rather than inventing new sentinels.
package errs

import "errors"

var (
	// EmptyIndexError is returned when opening an index that has no TOC yet.
	EmptyIndexError = errors.New("loom: no table of contents present")

	// IndexVersionError is returned when a TOC's format tag is not
	// supported by the running code.
	IndexVersionError = errors.New("loom: unsupported index format version")

	// ErrCorruptHeader is returned when a TOC header fails its sentinel,
	// size, or checksum checks.
	ErrCorruptHeader = errors.New("loom: corrupt table of contents header")

	// LockError is returned when acquiring WRITELOCK or READLOCK times out.
	LockError = errors.New("loom: lock acquisition timed out")

	// TermNotFound is returned by lexicon lookups for a missing term.
	TermNotFound = errors.New("loom: term not found")

	// UnknownFieldError is returned when a document or query references
	// a field absent from the schema.
	UnknownFieldError = errors.New("loom: unknown field")

	// FieldConfigurationError is returned for contradictory or invalid
	// field options (e.g. vector format on a non-indexed field).
	FieldConfigurationError = errors.New("loom: invalid field configuration")

	// ReadTooFar is returned when Next/SkipTo is called on an exhausted matcher.
	ReadTooFar = errors.New("loom: matcher read past exhaustion")

	// NoQualityAvailable is returned when Quality/BlockQuality/SkipToQuality
	// is called on a matcher that does not support the quality-skip optimization.
	NoQualityAvailable = errors.New("loom: matcher does not support quality")

	// ErrClosed is returned when operating on a closed index, writer, or reader.
	ErrClosed = errors.New("loom: index is closed")

	// ErrSchemaLocked is returned when mutating a schema after the first
	// add/update/delete call on a SegmentWriter.
	ErrSchemaLocked = errors.New("loom: schema cannot change after writes begin")

	// ErrNotMapped is returned by File.Map when the file was not opened
	// with mapped=true.
	ErrNotMapped = errors.New("loom: file not opened for memory mapping")

	// ErrFileNotFound is returned by Storage operations on missing files.
	ErrFileNotFound = errors.New("loom: file not found")

	// ErrAlreadyExists is returned by CreateFile/RenameFile(overwrite=false)
	// when the destination name is already in use.
	ErrAlreadyExists = errors.New("loom: file already exists")

	// ErrRedeletion is returned by Segment.DeleteDocument(docnum, true)
	// when docnum is already marked deleted.
	ErrRedeletion = errors.New("loom: document already deleted")

	// ErrUnknownUndelete is returned by Segment.DeleteDocument(docnum, false)
	// when docnum was never deleted in the first place.
	ErrUnknownUndelete = errors.New("loom: document was not deleted")

	// ErrDocOutOfRange is returned for a docnum outside [0, doc_count_all).
	ErrDocOutOfRange = errors.New("loom: document number out of range")
)
