// Package toc implements the table-of-contents file: the generation
// record naming a schema snapshot, a segment counter, and the ordered
// list of live segments. A commit publishes a new generation by
// writing a temp file and atomically renaming it into place, so a
// crash mid-write leaves the prior generation fully intact.
package toc

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/segment"
	"github.com/jpl-au/loom/storage"
	"github.com/jpl-au/loom/structio"
)

// FormatVersion is the on-disk TOC layout tag this package writes and
// accepts on read.
const FormatVersion = 1

// sentinel detects a byte-order mismatch between writer and reader.
const sentinel = int32(-12345)

// Version numbers stamped into every TOC, independent of FormatVersion.
const (
	LibMajor = 1
	LibMinor = 0
	LibPatch = 0
)

const checksumSize = 16 // blake2b-128

// TOC is one generation's published state: the schema at the time of
// commit, the segment-name counter (always >= the highest segment
// suffix referenced), and the ordered segment list.
type TOC struct {
	Generation     int
	SegmentCounter int
	Schema         *schema.Schema
	Segments       []*segment.Segment
}

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// FileName returns the on-disk name for generation gen of index.
func FileName(index string, gen int) string {
	return fmt.Sprintf("_%s_%d.toc", index, gen)
}

var tocNameRE = func(index string) *regexp.Regexp {
	return regexp.MustCompile(`^_` + regexp.QuoteMeta(index) + `_(\d+)\.toc$`)
}

// LatestGeneration enumerates st for index's TOC files and returns the
// highest generation present, or -1 if none exist.
func LatestGeneration(st storage.Storage, index string) (int, error) {
	names, err := st.ListFiles()
	if err != nil {
		return -1, fmt.Errorf("toc: list: %w", err)
	}
	re := tocNameRE(index)
	best := -1
	for _, n := range names {
		m := re.FindStringSubmatch(n)
		if m == nil {
			continue
		}
		gen, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if gen > best {
			best = gen
		}
	}
	return best, nil
}

// Write persists t to st as a new generation, via temp file + atomic
// rename. The write path, in order:
//  1. t.Schema.Clean() drops any cached analyzer state;
//  2. open a temp file named "<toc name>.<timestamp>";
//  3. emit the architecture header (sizeof int/long/float as varints,
//     the sentinel, the format version, then three library version
//     numbers as varints);
//  4. emit a blake2b-128 checksum of the schema blob, then the schema
//     blob itself, length-prefixed;
//  5. emit generation and segment_counter as fixed int32s;
//  6. emit the segment list, length-prefixed;
//  7. close;
//  8. atomically rename into place.
func Write(st storage.Storage, index string, t *TOC, now time.Time) error {
	t.Schema.Clean()

	tmpName := fmt.Sprintf("%s.%d", FileName(index, t.Generation), now.UnixNano())
	wc, err := st.CreateFile(tmpName)
	if err != nil {
		return fmt.Errorf("toc: create temp: %w", err)
	}

	sw := structio.NewWriter(wc)
	if err := writeHeader(sw); err != nil {
		wc.Close()
		return err
	}

	schemaBlob, err := t.Schema.MarshalJSON()
	if err != nil {
		wc.Close()
		return fmt.Errorf("toc: marshal schema: %w", err)
	}
	if err := sw.WriteBytes(schemaChecksum(schemaBlob)); err != nil {
		wc.Close()
		return err
	}
	if err := sw.WriteBytes(schemaBlob); err != nil {
		wc.Close()
		return err
	}

	if err := sw.WriteInt32(int32(t.Generation)); err != nil {
		wc.Close()
		return err
	}
	if err := sw.WriteInt32(int32(t.SegmentCounter)); err != nil {
		wc.Close()
		return err
	}

	segBlob, err := marshalSegments(t.Segments)
	if err != nil {
		wc.Close()
		return fmt.Errorf("toc: marshal segments: %w", err)
	}
	if err := sw.WriteBytes(segBlob); err != nil {
		wc.Close()
		return err
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("toc: close temp: %w", err)
	}

	final := FileName(index, t.Generation)
	if err := st.RenameFile(tmpName, final, true); err != nil {
		return fmt.Errorf("toc: rename: %w", err)
	}
	return nil
}

func writeHeader(sw *structio.Writer) error {
	var sizeofInt, sizeofLong, sizeofFloat uint64 = 4, 8, 8
	if err := sw.WriteVarint(sizeofInt); err != nil {
		return err
	}
	if err := sw.WriteVarint(sizeofLong); err != nil {
		return err
	}
	if err := sw.WriteVarint(sizeofFloat); err != nil {
		return err
	}
	if err := sw.WriteInt32(sentinel); err != nil {
		return err
	}
	if err := sw.WriteInt32(int32(FormatVersion)); err != nil {
		return err
	}
	if err := sw.WriteVarint(uint64(LibMajor)); err != nil {
		return err
	}
	if err := sw.WriteVarint(uint64(LibMinor)); err != nil {
		return err
	}
	return sw.WriteVarint(uint64(LibPatch))
}

// Read opens generation gen of index's TOC from st and decodes it.
func Read(st storage.Storage, index string, gen int) (*TOC, error) {
	if gen < 0 {
		return nil, fmt.Errorf("toc: %w", errs.EmptyIndexError)
	}
	f, err := st.OpenFile(FileName(index, gen), false)
	if err != nil {
		return nil, fmt.Errorf("toc: open: %w", errs.EmptyIndexError)
	}
	defer f.Close()

	sr := structio.NewReader(f)
	if err := readHeader(sr); err != nil {
		return nil, err
	}

	sum, err := sr.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("toc: read checksum: %w", err)
	}
	schemaBlob, err := sr.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("toc: read schema: %w", err)
	}
	if len(sum) == checksumSize && !bytes.Equal(schemaChecksum(schemaBlob), sum) {
		return nil, fmt.Errorf("toc: schema checksum mismatch: %w", errs.ErrCorruptHeader)
	}

	sch := schema.New()
	if err := sch.UnmarshalJSON(schemaBlob); err != nil {
		return nil, fmt.Errorf("toc: unmarshal schema: %w", err)
	}

	genN, err := sr.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("toc: read generation: %w", err)
	}
	counter, err := sr.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("toc: read counter: %w", err)
	}

	segBlob, err := sr.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("toc: read segments: %w", err)
	}
	segs, err := unmarshalSegments(segBlob)
	if err != nil {
		return nil, fmt.Errorf("toc: unmarshal segments: %w", err)
	}

	return &TOC{
		Generation:     int(genN),
		SegmentCounter: int(counter),
		Schema:         sch,
		Segments:       segs,
	}, nil
}

func readHeader(sr *structio.Reader) error {
	sizeofInt, err := sr.ReadVarint()
	if err != nil {
		return fmt.Errorf("toc: read header: %w", err)
	}
	sizeofLong, err := sr.ReadVarint()
	if err != nil {
		return fmt.Errorf("toc: read header: %w", err)
	}
	sizeofFloat, err := sr.ReadVarint()
	if err != nil {
		return fmt.Errorf("toc: read header: %w", err)
	}
	if sizeofInt != 4 || sizeofLong != 8 || sizeofFloat != 8 {
		return fmt.Errorf("toc: architecture mismatch: %w", errs.ErrCorruptHeader)
	}

	sent, err := sr.ReadInt32()
	if err != nil {
		return fmt.Errorf("toc: read sentinel: %w", err)
	}
	if sent != sentinel {
		return fmt.Errorf("toc: byte-order mismatch: %w", errs.ErrCorruptHeader)
	}

	ver, err := sr.ReadInt32()
	if err != nil {
		return fmt.Errorf("toc: read version: %w", err)
	}
	if ver != FormatVersion {
		return fmt.Errorf("toc: format %d: %w", ver, errs.IndexVersionError)
	}

	// Library version numbers are informational; read and discard.
	if _, err := sr.ReadVarint(); err != nil {
		return err
	}
	if _, err := sr.ReadVarint(); err != nil {
		return err
	}
	if _, err := sr.ReadVarint(); err != nil {
		return err
	}
	return nil
}

// CleanupGenerations deletes stale prior-generation TOC files older
// than keep, once the caller has confirmed no reader still references
// them. It never touches segment files directly.
func CleanupGenerations(st storage.Storage, index string, keep int) {
	names, err := st.ListFiles()
	if err != nil {
		return
	}
	re := tocNameRE(index)
	var gens []int
	for _, n := range names {
		m := re.FindStringSubmatch(n)
		if m == nil {
			continue
		}
		if g, err := strconv.Atoi(m[1]); err == nil {
			gens = append(gens, g)
		}
	}
	sort.Ints(gens)
	for _, g := range gens {
		if g < keep {
			_ = st.DeleteFile(FileName(index, g))
		}
	}
}

// schemaChecksum returns a 128-bit blake2b digest of blob, catching a
// truncated or corrupted schema section before goccy/go-json ever
// sees it.
func schemaChecksum(blob []byte) []byte {
	h, _ := blake2b.New(checksumSize, nil)
	h.Write(blob)
	return h.Sum(nil)
}

// ValidIndexName reports whether name is safe to embed in a TOC/segment
// file name (no path separators, no reserved characters).
func ValidIndexName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/\\") && indexNamePattern.MatchString(name)
}
