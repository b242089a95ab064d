package pool

import (
	"strings"
	"testing"

	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/storage"
)

// collectors capture the ordered stream Finish produces.
type termRec struct {
	field, term string
	docFreq     int
	maxWeight   float64
	offset      int64
	count       int
}

type termCollector struct{ recs []termRec }

func (c *termCollector) WriteTerm(field, term string, docFreq int, maxWeight float64, postingOffset int64, postingCount int) error {
	c.recs = append(c.recs, termRec{field, term, docFreq, maxWeight, postingOffset, postingCount})
	return nil
}

type postRec struct {
	docnum int
	weight float64
}

type postCollector struct {
	recs []postRec
	off  int64
}

func (c *postCollector) Offset() int64 { return c.off }

func (c *postCollector) WritePosting(docnum int, weight float64, payload []byte) error {
	c.recs = append(c.recs, postRec{docnum, weight})
	c.off += int64(8 + len(payload))
	return nil
}

func finish(t *testing.T, p *Pool, st storage.Storage) (*termCollector, *postCollector, map[int]map[string]int) {
	t.Helper()
	terms := &termCollector{}
	posts := &postCollector{}
	lengths := make(map[int]map[string]int)
	sink := func(docnum int, field string, length int) error {
		if lengths[docnum] == nil {
			lengths[docnum] = make(map[string]int)
		}
		lengths[docnum][field] = length
		return nil
	}
	if err := p.Finish(st, terms, posts, sink); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return terms, posts, lengths
}

func TestFinishEmitsSortedGroups(t *testing.T) {
	st := storage.NewRAM()
	p := New(st, 0, "_t_1")

	// Insert out of order on every axis.
	p.AddPosting("b", "zz", 3, 1, nil)
	p.AddPosting("a", "m", 9, 1, nil)
	p.AddPosting("b", "aa", 0, 1, nil)
	p.AddPosting("a", "m", 2, 1, nil)
	p.AddPosting("a", "b", 5, 1, nil)

	terms, posts, _ := finish(t, p, st)

	wantOrder := []struct{ field, term string }{
		{"a", "b"}, {"a", "m"}, {"b", "aa"}, {"b", "zz"},
	}
	if len(terms.recs) != len(wantOrder) {
		t.Fatalf("groups = %d, want %d", len(terms.recs), len(wantOrder))
	}
	for i, want := range wantOrder {
		got := terms.recs[i]
		if got.field != want.field || got.term != want.term {
			t.Errorf("group[%d] = %s/%s, want %s/%s", i, got.field, got.term, want.field, want.term)
		}
	}

	// Within (a, m): docids ascending.
	if posts.recs[1].docnum != 2 || posts.recs[2].docnum != 9 {
		t.Errorf("(a,m) docids = %d, %d, want 2, 9", posts.recs[1].docnum, posts.recs[2].docnum)
	}
}

func TestGroupMetadata(t *testing.T) {
	st := storage.NewRAM()
	p := New(st, 0, "_t_1")
	p.AddPosting("f", "x", 0, 1.0, nil)
	p.AddPosting("f", "x", 1, 3.5, nil)
	p.AddPosting("f", "x", 2, 2.0, nil)
	p.AddPosting("f", "y", 0, 9.0, nil)

	terms, _, _ := finish(t, p, st)
	if len(terms.recs) != 2 {
		t.Fatalf("groups = %d, want 2", len(terms.recs))
	}
	x := terms.recs[0]
	if x.docFreq != 3 || x.count != 3 || x.maxWeight != 3.5 {
		t.Errorf("x group = %+v", x)
	}
	y := terms.recs[1]
	if y.docFreq != 1 || y.maxWeight != 9.0 {
		t.Errorf("y group = %+v", y)
	}
	if y.offset == 0 {
		t.Error("second group's offset did not advance")
	}
}

func TestSpillAndMergeAcrossRuns(t *testing.T) {
	st := storage.NewRAM()
	// A tiny budget forces a spill after nearly every posting.
	p := New(st, 1, "_t_1")

	const docs = 50
	for d := 0; d < docs; d++ {
		if err := p.AddPosting("f", "common", d, 1, nil); err != nil {
			t.Fatal(err)
		}
	}
	if len(p.runFiles) == 0 {
		t.Fatal("no runs spilled under a 1-byte budget")
	}

	terms, posts, _ := finish(t, p, st)
	if len(terms.recs) != 1 || terms.recs[0].docFreq != docs {
		t.Fatalf("merged group = %+v, want docFreq %d", terms.recs, docs)
	}
	for i, rec := range posts.recs {
		if rec.docnum != i {
			t.Fatalf("posting[%d].docnum = %d; merge broke docid order", i, rec.docnum)
		}
	}
}

func TestAddContentFeedsPostingsAndLength(t *testing.T) {
	st := storage.NewRAM()
	p := New(st, 0, "_t_1")

	values := []schema.WordValue{
		{Term: "b", Freq: 4, Weight: 4},
		{Term: "c", Freq: 1, Weight: 1},
		{Term: "d", Freq: 2, Weight: 2},
	}
	if err := p.AddContent(0, "content", schema.FormatFrequency, values); err != nil {
		t.Fatal(err)
	}

	terms, _, lengths := finish(t, p, st)
	if len(terms.recs) != 3 {
		t.Fatalf("groups = %d, want 3", len(terms.recs))
	}
	if lengths[0]["content"] != 7 {
		t.Errorf("field length = %d, want 7 (sum of freqs)", lengths[0]["content"])
	}
	if got := p.FieldTotals()["content"]; got != 7 {
		t.Errorf("FieldTotals = %d, want 7", got)
	}
	if got := p.FieldMaxes()["content"]; got != 7 {
		t.Errorf("FieldMaxes = %d, want 7", got)
	}
}

func TestDocLengthLimitCapsStoredLength(t *testing.T) {
	st := storage.NewRAM()
	p := New(st, 0, "_t_1")
	p.AddFieldLength(0, "f", DocLengthLimit+100)
	_, _, lengths := finish(t, p, st)
	if lengths[0]["f"] != DocLengthLimit {
		t.Errorf("stored length = %d, want capped %d", lengths[0]["f"], DocLengthLimit)
	}
}

func TestCancelRemovesRunFiles(t *testing.T) {
	st := storage.NewRAM()
	p := New(st, 1, "_t_1")
	for d := 0; d < 10; d++ {
		p.AddPosting("f", "t", d, 1, nil)
	}
	if len(p.runFiles) == 0 {
		t.Fatal("expected spilled runs")
	}
	p.Cancel()
	names, _ := st.ListFiles()
	for _, n := range names {
		if strings.Contains(n, ".run") {
			t.Errorf("run file %s survived Cancel", n)
		}
	}
	if err := p.Finish(st, &termCollector{}, &postCollector{}, func(int, string, int) error { return nil }); err == nil {
		t.Error("Finish after Cancel succeeded")
	}
}
