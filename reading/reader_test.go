// Reader tests build real segments through the writing package, then
// exercise the read-side contract: lexicon iteration and prefix
// expansion, posting matchers, docnum translation across segments,
// and the top-terms helpers.
package reading_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/reading"
	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/storage"
	"github.com/jpl-au/loom/toc"
	"github.com/jpl-au/loom/writing"
)

func buildIndex(t *testing.T, batches [][]map[string]any) (storage.Storage, reading.Reader) {
	t.Helper()
	st := storage.NewRAM()
	sch := schema.New()
	for _, name := range []string{"content", "tag"} {
		if err := sch.Add(name, schema.Field{Format: schema.FormatFrequency, Indexed: true, Scorable: true, Stored: true}); err != nil {
			t.Fatal(err)
		}
	}
	for i, batch := range batches {
		var s *schema.Schema
		if i == 0 {
			s = sch
		}
		w, err := writing.Open(context.Background(), st, "ix", s, 0)
		if err != nil {
			t.Fatal(err)
		}
		for _, doc := range batch {
			if _, err := w.AddDocument(doc); err != nil {
				t.Fatal(err)
			}
		}
		if err := w.Commit(writing.CommitOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	gen, err := toc.LatestGeneration(st, "ix")
	if err != nil {
		t.Fatal(err)
	}
	tc, err := toc.Read(st, "ix", gen)
	if err != nil {
		t.Fatal(err)
	}
	var r reading.Reader
	if len(tc.Segments) == 1 {
		r, err = reading.OpenSegment(st, tc.Schema, tc.Segments[0], gen)
	} else {
		r, err = reading.OpenMulti(st, tc.Schema, tc.Segments)
	}
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return st, r
}

func singleSegment(t *testing.T) reading.Reader {
	_, r := buildIndex(t, [][]map[string]any{{
		{"content": "apple banana cherry", "tag": "fruit"},
		{"content": "banana date", "tag": "fruit"},
		{"content": "cherry cherry elderberry", "tag": "berry"},
	}})
	return r
}

func TestContainsAndLexicon(t *testing.T) {
	r := singleSegment(t)
	if !r.Contains("content", "banana") {
		t.Error("Contains(banana) = false")
	}
	if r.Contains("content", "zucchini") {
		t.Error("Contains(zucchini) = true")
	}
	lex := r.Lexicon("content")
	want := []string{"apple", "banana", "cherry", "date", "elderberry"}
	if len(lex) != len(want) {
		t.Fatalf("lexicon = %v, want %v", lex, want)
	}
	for i := range want {
		if lex[i] != want[i] {
			t.Fatalf("lexicon = %v, want %v", lex, want)
		}
	}
}

func TestIterIsSortedByFieldThenTerm(t *testing.T) {
	r := singleSegment(t)
	it := r.Iter()
	var prevField, prevTerm string
	first := true
	for it.Next() {
		info := it.Info()
		if !first {
			if info.Field < prevField || (info.Field == prevField && info.Term <= prevTerm) {
				t.Fatalf("iteration not strictly increasing: (%s,%s) after (%s,%s)",
					info.Field, info.Term, prevField, prevTerm)
			}
		}
		prevField, prevTerm = info.Field, info.Term
		first = false
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestExpandPrefix(t *testing.T) {
	r := singleSegment(t)
	got := r.ExpandPrefix("content", "ch")
	if len(got) != 1 || got[0] != "cherry" {
		t.Errorf("ExpandPrefix(ch) = %v", got)
	}
	if got := r.ExpandPrefix("content", "zz"); len(got) != 0 {
		t.Errorf("ExpandPrefix(zz) = %v", got)
	}
}

func TestIterPrefix(t *testing.T) {
	r := singleSegment(t)
	it := r.IterPrefix("content", "b")
	if !it.Next() {
		t.Fatal("no terms under prefix b")
	}
	if info := it.Info(); info.Term != "banana" {
		t.Errorf("prefix term = %s", info.Term)
	}
	if it.Next() {
		t.Error("extra term under prefix b")
	}
}

func TestPostingsMatcher(t *testing.T) {
	r := singleSegment(t)
	m, err := r.Postings("content", "cherry", nil)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int
	var weights []float64
	for m.IsActive() {
		ids = append(ids, m.ID())
		weights = append(weights, m.Weight())
		if err := m.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Fatalf("cherry ids = %v, want [0 2]", ids)
	}
	// Doc 2 has cherry twice: analyzed weight equals frequency.
	if weights[1] != 2 {
		t.Errorf("cherry weight in doc 2 = %v, want 2", weights[1])
	}
}

func TestPostingsMissingTerm(t *testing.T) {
	r := singleSegment(t)
	if _, err := r.Postings("content", "nope", nil); !errors.Is(err, errs.TermNotFound) {
		t.Errorf("missing term = %v, want TermNotFound", err)
	}
}

func TestPostingsExcludeSet(t *testing.T) {
	r := singleSegment(t)
	m, err := r.Postings("content", "cherry", map[int]struct{}{0: {}})
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsActive() || m.ID() != 2 {
		t.Errorf("excluded posting still visible: active=%v", m.IsActive())
	}
}

func TestStoredFieldsRoundTrip(t *testing.T) {
	r := singleSegment(t)
	sf, err := r.StoredFields(1)
	if err != nil {
		t.Fatal(err)
	}
	if sf["content"] != "banana date" || sf["tag"] != "fruit" {
		t.Errorf("StoredFields(1) = %v", sf)
	}
	all, err := r.AllStoredFields()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("AllStoredFields = %d docs, want 3", len(all))
	}
	if _, err := r.StoredFields(99); !errors.Is(err, errs.ErrDocOutOfRange) {
		t.Errorf("out-of-range stored fields = %v", err)
	}
}

func TestMostFrequentAndDistinctiveTerms(t *testing.T) {
	r := singleSegment(t)
	top, err := r.MostFrequentTerms("content", 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].Term != "cherry" {
		t.Errorf("MostFrequentTerms = %+v, want cherry first (collFreq 3)", top)
	}

	dist, err := r.MostDistinctiveTerms("content", 1, "")
	if err != nil {
		t.Fatal(err)
	}
	// cherry: 3 occurrences / 2 docs = 1.5 beats every 1/1 singleton.
	if len(dist) != 1 || dist[0].Term != "cherry" {
		t.Errorf("MostDistinctiveTerms = %+v", dist)
	}
}

func multiSegment(t *testing.T) reading.Reader {
	_, r := buildIndex(t, [][]map[string]any{
		{
			{"content": "alpha beta", "tag": "one"},
			{"content": "beta gamma", "tag": "one"},
		},
		{
			{"content": "alpha delta", "tag": "two"},
		},
		{
			{"content": "gamma gamma", "tag": "three"},
		},
	})
	return r
}

func TestMultiReaderDocnumTranslation(t *testing.T) {
	r := multiSegment(t)
	if got := r.DocCountAll(); got != 4 {
		t.Fatalf("DocCountAll = %d, want 4", got)
	}
	// Doc 2 is the first doc of the second segment.
	sf, err := r.StoredFields(2)
	if err != nil {
		t.Fatal(err)
	}
	if sf["content"] != "alpha delta" {
		t.Errorf("StoredFields(2) = %v", sf)
	}
	if l, err := r.DocFieldLength(3, "content"); err != nil || l != 2 {
		t.Errorf("DocFieldLength(3, content) = %d (%v), want 2", l, err)
	}
}

func TestMultiReaderMergesTermCounts(t *testing.T) {
	r := multiSegment(t)
	// alpha appears in segments 1 and 2; the heap merge must sum.
	df, err := r.DocFrequency("content", "alpha")
	if err != nil || df != 2 {
		t.Errorf("DocFrequency(alpha) = %d (%v), want 2", df, err)
	}
	cf, err := r.Frequency("content", "gamma")
	if err != nil || cf != 3 {
		t.Errorf("Frequency(gamma) = %d (%v), want 3", cf, err)
	}

	// The merged iterator emits each (field, term) exactly once.
	seen := make(map[string]int)
	it := r.Iter()
	for it.Next() {
		info := it.Info()
		seen[info.Field+"/"+info.Term]++
	}
	for key, n := range seen {
		if n != 1 {
			t.Errorf("term %s emitted %d times", key, n)
		}
	}
	if seen["content/alpha"] != 1 || seen["content/gamma"] != 1 {
		t.Errorf("merged terms missing: %v", seen)
	}
}

func TestMultiReaderPostingsOffsets(t *testing.T) {
	r := multiSegment(t)
	m, err := r.Postings("content", "gamma", nil)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int
	for m.IsActive() {
		ids = append(ids, m.ID())
		if err := m.Next(); err != nil {
			t.Fatal(err)
		}
	}
	// gamma: local doc 1 of segment 1 (global 1) and local doc 0 of
	// segment 3 (global 3).
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("gamma global ids = %v, want [1 3]", ids)
	}
}

func TestMultiReaderFieldLengthTotals(t *testing.T) {
	r := multiSegment(t)
	// content lengths: 2+2 (seg 1) + 2 (seg 2) + 2 (seg 3) = 8.
	if got := r.FieldLength("content"); got != 8 {
		t.Errorf("FieldLength(content) = %d, want 8", got)
	}
}
