package toc

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/segment"
	"github.com/jpl-au/loom/storage"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New()
	if err := s.Add("body", schema.Field{Format: schema.FormatPositions, Indexed: true, Scorable: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("id", schema.Field{Indexed: true, Unique: true}); err != nil {
		t.Fatal(err)
	}
	return s
}

func testTOC(t *testing.T, gen int) *TOC {
	t.Helper()
	seg := segment.New("ix", 1)
	seg.DocCountAll = 3
	seg.FieldLengthTotals["body"] = 12
	seg.FieldLengthMaxes["body"] = 7
	seg.Deleted = map[int]struct{}{1: {}}
	return &TOC{
		Generation:     gen,
		SegmentCounter: 1,
		Schema:         testSchema(t),
		Segments:       []*segment.Segment{seg},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	st := storage.NewRAM()
	if err := Write(st, "ix", testTOC(t, 0), time.Now()); err != nil {
		t.Fatal(err)
	}

	got, err := Read(st, "ix", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Generation != 0 || got.SegmentCounter != 1 {
		t.Errorf("gen/counter = %d/%d", got.Generation, got.SegmentCounter)
	}
	if len(got.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(got.Segments))
	}
	seg := got.Segments[0]
	if seg.Name() != "_ix_1" || seg.DocCountAll != 3 {
		t.Errorf("segment = %s count %d", seg.Name(), seg.DocCountAll)
	}
	if !seg.IsDeleted(1) || seg.DocCount() != 2 {
		t.Error("deleted set lost in round trip")
	}
	if seg.FieldLength("body") != 12 || seg.MaxFieldLength("body") != 7 {
		t.Error("field length summaries lost in round trip")
	}
	names := got.Schema.Names()
	if len(names) != 2 || names[0] != "body" || names[1] != "id" {
		t.Errorf("schema order = %v", names)
	}
}

func TestLatestGeneration(t *testing.T) {
	st := storage.NewRAM()
	if gen, err := LatestGeneration(st, "ix"); err != nil || gen != -1 {
		t.Fatalf("empty storage gen = %d (%v), want -1", gen, err)
	}
	for gen := 0; gen < 3; gen++ {
		if err := Write(st, "ix", testTOC(t, gen), time.Now()); err != nil {
			t.Fatal(err)
		}
		got, err := LatestGeneration(st, "ix")
		if err != nil || got != gen {
			t.Fatalf("after writing gen %d: latest = %d (%v)", gen, got, err)
		}
	}
	// Another index's generations don't leak in.
	if err := Write(st, "other", testTOC(t, 9), time.Now()); err != nil {
		t.Fatal(err)
	}
	if got, _ := LatestGeneration(st, "ix"); got != 2 {
		t.Errorf("latest = %d after foreign index write, want 2", got)
	}
}

func TestReadMissingIsEmptyIndex(t *testing.T) {
	st := storage.NewRAM()
	if _, err := Read(st, "ix", 0); !errors.Is(err, errs.EmptyIndexError) {
		t.Errorf("read missing = %v, want EmptyIndexError", err)
	}
	if _, err := Read(st, "ix", -1); !errors.Is(err, errs.EmptyIndexError) {
		t.Errorf("read gen -1 = %v, want EmptyIndexError", err)
	}
}

// corrupt writes a TOC, then flips one byte at off in the stored file.
func corrupt(t *testing.T, st *storage.RAMStorage, name string, off int64) {
	t.Helper()
	f, err := st.OpenFile(name, false)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, f.Size())
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	f.Close()
	buf[off] ^= 0xFF
	wc, err := st.CreateFile(name)
	if err != nil {
		t.Fatal(err)
	}
	wc.Write(buf)
	wc.Close()
}

func TestSentinelMismatchRefused(t *testing.T) {
	st := storage.NewRAM()
	if err := Write(st, "ix", testTOC(t, 0), time.Now()); err != nil {
		t.Fatal(err)
	}
	// Header layout: three one-byte varints (4, 8, 8), then the
	// sentinel int32 at offset 3.
	corrupt(t, st, FileName("ix", 0), 3)
	if _, err := Read(st, "ix", 0); !errors.Is(err, errs.ErrCorruptHeader) {
		t.Errorf("corrupted sentinel = %v, want ErrCorruptHeader", err)
	}
}

func TestVersionMismatchRefused(t *testing.T) {
	st := storage.NewRAM()
	if err := Write(st, "ix", testTOC(t, 0), time.Now()); err != nil {
		t.Fatal(err)
	}
	// Format version int32 sits right after the sentinel, at offset 7.
	corrupt(t, st, FileName("ix", 0), 7)
	if _, err := Read(st, "ix", 0); !errors.Is(err, errs.IndexVersionError) {
		t.Errorf("bumped version = %v, want IndexVersionError", err)
	}
}

func TestSchemaChecksumDetectsCorruption(t *testing.T) {
	st := storage.NewRAM()
	if err := Write(st, "ix", testTOC(t, 0), time.Now()); err != nil {
		t.Fatal(err)
	}
	// Past the 14-byte header and the checksum: flip a byte inside the
	// schema blob itself.
	corrupt(t, st, FileName("ix", 0), 40)
	if _, err := Read(st, "ix", 0); !errors.Is(err, errs.ErrCorruptHeader) {
		t.Errorf("corrupted schema blob = %v, want ErrCorruptHeader", err)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	st := storage.NewRAM()
	if err := Write(st, "ix", testTOC(t, 0), time.Now()); err != nil {
		t.Fatal(err)
	}
	names, err := st.ListFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != FileName("ix", 0) {
		t.Errorf("files after write = %v, want just the TOC", names)
	}
}

func TestCleanupGenerations(t *testing.T) {
	st := storage.NewRAM()
	for gen := 0; gen < 4; gen++ {
		if err := Write(st, "ix", testTOC(t, gen), time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	CleanupGenerations(st, "ix", 3)
	for gen := 0; gen < 3; gen++ {
		if _, err := Read(st, "ix", gen); err == nil {
			t.Errorf("generation %d survived cleanup", gen)
		}
	}
	if _, err := Read(st, "ix", 3); err != nil {
		t.Errorf("kept generation unreadable: %v", err)
	}
}

func TestValidIndexName(t *testing.T) {
	for _, ok := range []string{"main", "idx-2", "a.b_c"} {
		if !ValidIndexName(ok) {
			t.Errorf("ValidIndexName(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", "a/b", `a\b`, "sp ace"} {
		if ValidIndexName(bad) {
			t.Errorf("ValidIndexName(%q) = true", bad)
		}
	}
}
