// Package matching implements the matcher algebra: a lazy cursor over
// a sorted stream of (docid, weight, payload) postings, with
// combinators for boolean composition, exclusion, phrase matching,
// and quality-gated skipping. Every matcher preserves a monotonically
// non-decreasing id() while active, and transitions to exhausted
// exactly once.
package matching

import (
	binpkg "encoding/binary"
	"fmt"

	"github.com/jpl-au/loom/errs"
)

// Matcher is a cursor over postings for one term (or a combination of
// terms). Movement methods (Next, SkipTo) return errs.ReadTooFar when
// called on an exhausted matcher.
type Matcher interface {
	// IsActive reports whether the matcher currently sits on a valid
	// posting.
	IsActive() bool

	// ID returns the current docid. Only valid while IsActive.
	ID() int

	// Next advances to the next posting.
	Next() error

	// SkipTo advances to the first posting with ID() >= target. A
	// target <= the current ID is a no-op.
	SkipTo(target int) error

	// Value returns the raw payload at the current position.
	Value() []byte

	// Weight returns the stored weight at the current position.
	Weight() float64

	// Score returns the scored contribution at the current position;
	// for leaf matchers this defaults to Weight, combinators combine
	// children's Score per their algebra.
	Score() float64

	// Positions decodes the current payload as a token-position list.
	// Returns errs.NoQualityAvailable-unrelated decode errors for
	// payloads that are not position-encoded.
	Positions() ([]int, error)

	// Copy returns an independent cursor starting from the current
	// position; underlying posting readers over mapped memory may be
	// shared between the original and the copy.
	Copy() Matcher

	// Replace returns a simplified equivalent matcher (e.g. folding a
	// union with an exhausted child down to its surviving sibling),
	// or the matcher itself if no simplification applies.
	Replace() Matcher

	// SupportsQuality reports whether Quality/BlockQuality/
	// SkipToQuality are meaningful for this matcher.
	SupportsQuality() bool

	// Quality returns an upper bound on Score() at the current
	// position. Returns errs.NoQualityAvailable if !SupportsQuality.
	Quality() (float64, error)

	// BlockQuality returns an upper bound on Score() across the
	// remainder of the current block. Returns errs.NoQualityAvailable
	// if !SupportsQuality.
	BlockQuality() (float64, error)

	// SkipToQuality advances past postings that cannot possibly score
	// above min, stopping at the first that might. Returns the number
	// of postings skipped.
	SkipToQuality(min float64) (int, error)
}

func readTooFar(op string) error {
	return fmt.Errorf("matching: %s: %w", op, errs.ReadTooFar)
}

func noQuality(kind string) error {
	return fmt.Errorf("matching: %s: %w", kind, errs.NoQualityAvailable)
}

// DecodePositions reads the fixed Positions payload encoding: a
// varint count followed by that many varint-delta-encoded positions.
// Exported for the reading package's PostingReader, which decodes the
// same payload shape when materializing a term's position list.
func DecodePositions(payload []byte) ([]int, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	count, n := binpkg.Uvarint(payload)
	if n <= 0 {
		return nil, fmt.Errorf("matching: decode positions: malformed count")
	}
	rest := payload[n:]
	out := make([]int, 0, count)
	prev := 0
	for i := uint64(0); i < count; i++ {
		delta, dn := binpkg.Uvarint(rest)
		if dn <= 0 {
			return nil, fmt.Errorf("matching: decode positions: malformed delta")
		}
		rest = rest[dn:]
		prev += int(delta)
		out = append(out, prev)
	}
	return out, nil
}

// DecodeFrequency reads the fixed Frequency payload encoding: a
// single varint occurrence count.
func DecodeFrequency(payload []byte) (int, error) {
	if len(payload) == 0 {
		return 0, nil
	}
	v, n := binpkg.Uvarint(payload)
	if n <= 0 {
		return 0, fmt.Errorf("matching: decode frequency: malformed")
	}
	return int(v), nil
}

// EncodePositions is the inverse of DecodePositions: a varint count
// followed by varint-delta-encoded positions, in ascending order.
// Exported for the writing package's analyzer, which builds this
// payload for Positions-format fields before handing postings to the
// pool.
func EncodePositions(positions []int) []byte {
	if len(positions) == 0 {
		return nil
	}
	buf := binpkg.AppendUvarint(nil, uint64(len(positions)))
	prev := 0
	for _, p := range positions {
		buf = binpkg.AppendUvarint(buf, uint64(p-prev))
		prev = p
	}
	return buf
}

// EncodeFrequency is the inverse of DecodeFrequency.
func EncodeFrequency(freq int) []byte {
	return binpkg.AppendUvarint(nil, uint64(freq))
}
