// Searcher tests run real queries end to end: documents go in through
// the writing package, and queries come back out as ranked hits. The
// Frequency weighting is used where exact scores matter; BM25 where
// only the ranking is asserted.
package searching_test

import (
	"context"
	"testing"

	"github.com/jpl-au/loom/reading"
	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/searching"
	"github.com/jpl-au/loom/storage"
	"github.com/jpl-au/loom/toc"
	"github.com/jpl-au/loom/writing"
)

func positionsSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New()
	if err := s.Add("body", schema.Field{Format: schema.FormatPositions, Indexed: true, Scorable: true, Stored: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("name", schema.Field{Format: schema.FormatExistence, Indexed: true, Stored: true}); err != nil {
		t.Fatal(err)
	}
	return s
}

func buildSearcher(t *testing.T, w searching.Weighting, docs []map[string]any) *searching.Searcher {
	t.Helper()
	st := storage.NewRAM()
	sw, err := writing.Open(context.Background(), st, "ix", positionsSchema(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range docs {
		if _, err := sw.AddDocument(d); err != nil {
			t.Fatal(err)
		}
	}
	if err := sw.Commit(writing.CommitOptions{}); err != nil {
		t.Fatal(err)
	}

	gen, _ := toc.LatestGeneration(st, "ix")
	tc, err := toc.Read(st, "ix", gen)
	if err != nil {
		t.Fatal(err)
	}
	r, err := reading.OpenSegment(st, tc.Schema, tc.Segments[0], gen)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return searching.New(r, w)
}

var phraseDocs = []map[string]any{
	{"name": "a", "body": "little miss muffet sat tuffet"},
	{"name": "d", "body": "gibberish blonk falunk miss muffet sat tuffet garbonzo"},
	{"name": "e", "body": "blah blah blah pancakes"},
}

func hitNames(hits []searching.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i], _ = h.Fields["name"].(string)
	}
	return out
}

func TestTermQueryScoresByFrequency(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, []map[string]any{
		{"name": "once", "body": "cat dog"},
		{"name": "thrice", "body": "cat cat cat"},
		{"name": "none", "body": "dog"},
	})
	hits, err := s.Search(searching.Term{Field: "body", Text: "cat"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got := hitNames(hits); len(got) != 2 || got[0] != "thrice" || got[1] != "once" {
		t.Fatalf("hits = %v, want [thrice once]", got)
	}
	if hits[0].Score != 3 || hits[1].Score != 1 {
		t.Errorf("scores = %v, %v, want 3, 1", hits[0].Score, hits[1].Score)
	}
}

func TestMissingTermMatchesNothing(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, phraseDocs)
	hits, err := s.Search(searching.Term{Field: "body", Text: "absent"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits for missing term = %v", hits)
	}
}

func TestBooleanComposition(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, phraseDocs)
	term := func(text string) searching.Query { return searching.Term{Field: "body", Text: text} }

	cases := []struct {
		name  string
		query searching.Query
		want  []int
	}{
		{"and", searching.And{Subs: []searching.Query{term("miss"), term("sat")}}, []int{0, 1}},
		{"and-empty", searching.And{Subs: []searching.Query{term("miss"), term("pancakes")}}, nil},
		{"or", searching.Or{Subs: []searching.Query{term("little"), term("blah")}}, []int{0, 2}},
		{"andnot", searching.AndNot{Positive: term("miss"), Negative: term("gibberish")}, []int{0}},
		{"not", searching.Not{Child: term("miss")}, []int{2}},
		{"require", searching.Require{Scored: term("miss"), Required: term("garbonzo")}, []int{1}},
		{"andmaybe", searching.AndMaybe{Required: term("miss"), Optional: term("garbonzo")}, []int{0, 1}},
		{"every", searching.Every{}, []int{0, 1, 2}},
	}
	for _, tc := range cases {
		got, err := s.Docs(tc.query)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != len(tc.want) {
			t.Errorf("%s: docs = %v, want %v", tc.name, got, tc.want)
			continue
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("%s: docs = %v, want %v", tc.name, got, tc.want)
				break
			}
		}
	}
}

func TestPhraseQuery(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, phraseDocs)
	cases := []struct {
		words []string
		slop  int
		want  []string
	}{
		{[]string{"little", "miss", "muffet", "sat", "tuffet"}, 1, []string{"a"}},
		{[]string{"miss", "muffet", "sat", "tuffet"}, 1, []string{"a", "d"}},
		{[]string{"gibberish", "falunk"}, 1, nil},
		{[]string{"gibberish", "falunk"}, 2, []string{"d"}},
		{[]string{"blah", "blah", "blah"}, 1, []string{"e"}},
	}
	for _, tc := range cases {
		hits, err := s.Search(searching.Phrase{Field: "body", Words: tc.words, Slop: tc.slop}, 10)
		if err != nil {
			t.Fatalf("phrase %v: %v", tc.words, err)
		}
		got := hitNames(hits)
		if len(got) != len(tc.want) {
			t.Errorf("phrase %v slop=%d: %v, want %v", tc.words, tc.slop, got, tc.want)
			continue
		}
		seen := make(map[string]bool)
		for _, n := range got {
			seen[n] = true
		}
		for _, n := range tc.want {
			if !seen[n] {
				t.Errorf("phrase %v slop=%d: %v, want %v", tc.words, tc.slop, got, tc.want)
			}
		}
	}
}

func TestPrefixQuery(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, phraseDocs)
	docs, err := s.Docs(searching.Prefix{Field: "body", Text: "muf"})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0] != 0 || docs[1] != 1 {
		t.Errorf("prefix muf docs = %v, want [0 1]", docs)
	}
}

func TestBM25PrefersHigherTermFrequency(t *testing.T) {
	s := buildSearcher(t, searching.BM25{}, []map[string]any{
		{"name": "light", "body": "term filler filler filler"},
		{"name": "heavy", "body": "term term term filler"},
	})
	hits, err := s.Search(searching.Term{Field: "body", Text: "term"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := hitNames(hits)
	if len(got) != 2 || got[0] != "heavy" {
		t.Fatalf("BM25 order = %v, want heavy first", got)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v", hits)
	}
	for _, h := range hits {
		if h.Score < 0 {
			t.Errorf("negative BM25 score: %v", h.Score)
		}
	}
}

func TestTopKLimitAndQualitySkipAgree(t *testing.T) {
	// 26 docs with distinct frequencies of "common"; the top-3 search
	// uses the quality skip (Frequency supports it end to end) and
	// must agree with an unlimited search's head.
	docs := make([]map[string]any, 26)
	for i := range docs {
		body := "common"
		for j := 0; j < i; j++ {
			body += " common"
		}
		docs[i] = map[string]any{"name": string(rune('a' + i)), "body": body}
	}
	s := buildSearcher(t, searching.Frequency{}, docs)

	full, err := s.Search(searching.Term{Field: "body", Text: "common"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	top, err := s.Search(searching.Term{Field: "body", Text: "common"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 3 {
		t.Fatalf("top-3 returned %d hits", len(top))
	}
	for i := range top {
		if top[i].Docnum != full[i].Docnum || top[i].Score != full[i].Score {
			t.Errorf("top[%d] = %+v, full[%d] = %+v", i, top[i], i, full[i])
		}
	}
}

func TestDisjunctionMaxQuery(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, []map[string]any{
		{"name": "both", "body": "alpha beta"},
		{"name": "justalpha", "body": "alpha alpha alpha"},
	})
	q := searching.DisjunctionMax{
		Subs:     []searching.Query{searching.Term{Field: "body", Text: "alpha"}, searching.Term{Field: "body", Text: "beta"}},
		TieBreak: 0.5,
	}
	hits, err := s.Search(q, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d", len(hits))
	}
	// justalpha: max(3, -) = 3. both: max(1, 1) + 0.5*1 = 1.5.
	if hitNames(hits)[0] != "justalpha" {
		t.Errorf("order = %v", hitNames(hits))
	}
	var both searching.Hit
	for _, h := range hits {
		if h.Fields["name"] == "both" {
			both = h
		}
	}
	if both.Score != 1.5 {
		t.Errorf("dismax score = %v, want 1.5", both.Score)
	}
}

func TestSearchSortedByStoredField(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, []map[string]any{
		{"name": "c", "body": "common"},
		{"name": "a", "body": "common common common"},
		{"name": "b", "body": "common common"},
	})
	q := searching.Term{Field: "body", Text: "common"}

	hits, err := s.SearchSorted(q, s.StoredFieldKey("name"), false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := hitNames(hits); got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("sorted = %v, want [a b c]", got)
	}

	rev, err := s.SearchSorted(q, s.StoredFieldKey("name"), true, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := hitNames(rev); len(got) != 2 || got[0] != "c" || got[1] != "b" {
		t.Errorf("reverse limit 2 = %v, want [c b]", got)
	}
}

func TestSpanFirst(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, phraseDocs)
	// miss sits at position 1 in doc a but position 3 in doc d.
	docs, err := s.Docs(searching.SpanFirst{Child: searching.Term{Field: "body", Text: "miss"}, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0] != 0 {
		t.Errorf("SpanFirst docs = %v, want [0]", docs)
	}
}

func TestSpanNear(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, phraseDocs)
	term := func(text string) searching.Query { return searching.Term{Field: "body", Text: text} }

	// gibberish(0) and falunk(2) have one position between them.
	docs, err := s.Docs(searching.SpanNear{A: term("gibberish"), B: term("falunk"), MaxDist: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0] != 1 {
		t.Errorf("SpanNear(gibberish, falunk, 1) = %v, want [1]", docs)
	}

	// gibberish(0) and garbonzo(7) have six positions between them.
	docs, err = s.Docs(searching.SpanNear{A: term("gibberish"), B: term("garbonzo"), MaxDist: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("SpanNear(gibberish, garbonzo, 1) = %v, want none", docs)
	}
	docs, err = s.Docs(searching.SpanNear{A: term("gibberish"), B: term("garbonzo"), MaxDist: 6})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0] != 1 {
		t.Errorf("SpanNear(gibberish, garbonzo, 6) = %v, want [1]", docs)
	}
}

func TestSpanBeforeAndContains(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, phraseDocs)
	term := func(text string) searching.Query { return searching.Term{Field: "body", Text: text} }

	docs, err := s.Docs(searching.SpanBefore{A: term("miss"), B: term("tuffet")})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Errorf("SpanBefore = %v, want both phrase docs", docs)
	}

	docs, err = s.Docs(searching.SpanBefore{A: term("tuffet"), B: term("miss")})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("reversed SpanBefore = %v, want none", docs)
	}
}

func TestSpanNot(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, phraseDocs)
	term := func(text string) searching.Query { return searching.Term{Field: "body", Text: text} }

	// Both phrase docs contain miss; no span of miss overlaps a span
	// of garbonzo anywhere, so doc d survives too — but a SpanNot of
	// miss against itself removes every doc.
	docs, err := s.Docs(searching.SpanNot{A: term("miss"), B: term("garbonzo")})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Errorf("SpanNot(miss, garbonzo) = %v, want [0 1]", docs)
	}
	docs, err = s.Docs(searching.SpanNot{A: term("miss"), B: term("miss")})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("SpanNot(miss, miss) = %v, want none", docs)
	}
}

// The wrapped boost flows through a query's matcher.
func TestBoostScalesScore(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, []map[string]any{
		{"name": "x", "body": "solo"},
	})
	plain, err := s.Search(searching.Term{Field: "body", Text: "solo"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	boosted, err := s.Search(searching.Term{Field: "body", Text: "solo", Boost: 4}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if boosted[0].Score != 4*plain[0].Score {
		t.Errorf("boosted = %v, plain = %v", boosted[0].Score, plain[0].Score)
	}
}

// Heap ordering is by descending score with ascending-docnum tiebreak,
// independent of match order.
func TestHeapOrdering(t *testing.T) {
	s := buildSearcher(t, searching.Frequency{}, []map[string]any{
		{"name": "n0", "body": "tie"},
		{"name": "n1", "body": "tie"},
		{"name": "n2", "body": "tie tie"},
	})
	hits, err := s.Search(searching.Term{Field: "body", Text: "tie"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	got := hitNames(hits)
	if got[0] != "n2" || got[1] != "n0" || got[2] != "n1" {
		t.Errorf("order = %v, want [n2 n0 n1]", got)
	}
}
