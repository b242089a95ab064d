package searching

import "math"

// Weighting turns a posting's stored weight into a score
// contribution. Score must be non-negative and deterministic for the
// same inputs; MaxScore must be an upper bound on Score for any
// posting of the term whose weight is at most maxWeight, so the
// quality-skip optimization can prune blocks safely.
type Weighting interface {
	Score(s *Searcher, field, term string, docnum int, weight float64) float64
	MaxScore(s *Searcher, field, term string, maxWeight float64) float64
}

// Finalizer is an optional Weighting extension: Final is called once
// per candidate with the accumulated score and may rerank.
type Finalizer interface {
	Final(s *Searcher, docnum int, score float64) float64
}

// Frequency scores a posting as its stored weight, unmodified. The
// cheapest weighting, and the one the matcher-algebra arithmetic is
// easiest to reason about under.
type Frequency struct{}

func (Frequency) Score(_ *Searcher, _, _ string, _ int, weight float64) float64 {
	return weight
}

func (Frequency) MaxScore(_ *Searcher, _, _ string, maxWeight float64) float64 {
	return maxWeight
}

// TFIDF scores a posting as weight * idf.
type TFIDF struct{}

func (TFIDF) Score(s *Searcher, field, term string, _ int, weight float64) float64 {
	return weight * s.idf(field, term)
}

func (TFIDF) MaxScore(s *Searcher, field, term string, maxWeight float64) float64 {
	return maxWeight * s.idf(field, term)
}

// BM25 is the default weighting: Okapi BM25 with the usual k1/b free
// parameters. Zero-value fields select the conventional defaults.
type BM25 struct {
	K1 float64 // term-frequency saturation; 0 means 1.2
	B  float64 // length normalization strength; 0 means 0.75
}

func (w BM25) params() (k1, b float64) {
	k1, b = w.K1, w.B
	if k1 == 0 {
		k1 = 1.2
	}
	if b == 0 {
		b = 0.75
	}
	return k1, b
}

func (w BM25) Score(s *Searcher, field, term string, docnum int, weight float64) float64 {
	k1, b := w.params()
	idf := s.idf(field, term)
	avg := s.avgFieldLength(field)
	dl := float64(1)
	if n, err := s.reader.DocFieldLength(docnum, field); err == nil && n > 0 {
		dl = float64(n)
	}
	norm := 1 - b + b*(dl/avg)
	return idf * (weight * (k1 + 1)) / (weight + k1*norm)
}

// MaxScore bounds Score by taking the length-normalization term at
// its minimum (1 - b, the shortest possible document), which
// maximizes the fraction for any weight <= maxWeight.
func (w BM25) MaxScore(s *Searcher, field, term string, maxWeight float64) float64 {
	k1, b := w.params()
	idf := s.idf(field, term)
	return idf * (maxWeight * (k1 + 1)) / (maxWeight + k1*(1-b))
}

// idf is the BM25-shaped inverse document frequency, shared by TFIDF
// and BM25; always positive, even for terms in most documents.
func (s *Searcher) idf(field, term string) float64 {
	n := float64(s.reader.DocCount())
	df, err := s.reader.DocFrequency(field, term)
	if err != nil || df == 0 {
		return 1
	}
	return math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
}

func (s *Searcher) avgFieldLength(field string) float64 {
	n := s.reader.DocCount()
	if n == 0 {
		return 1
	}
	avg := float64(s.reader.FieldLength(field)) / float64(n)
	if avg <= 0 {
		return 1
	}
	return avg
}
