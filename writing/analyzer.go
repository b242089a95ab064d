package writing

import (
	"strings"
	"unicode"

	"github.com/jpl-au/loom/matching"
	"github.com/jpl-au/loom/schema"
)

// Analyzer turns a raw field value into the analyzed token stream
// AddDocument feeds to the pool. Callers that already hold analyzed
// tokens bypass it entirely by passing []schema.WordValue directly.
type Analyzer interface {
	Analyze(text string) []schema.WordValue
}

// DefaultAnalyzer lowercases and splits on runs of non-letter,
// non-digit characters, the "standard analyzer" the design notes
// describe as living behind the same pluggable interface as the merge
// policies and the weighting function.
type DefaultAnalyzer struct{}

func (DefaultAnalyzer) Analyze(text string) []schema.WordValue {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	type accum struct {
		freq      int
		positions []int
	}
	order := make([]string, 0, len(fields))
	byTerm := make(map[string]*accum, len(fields))
	for pos, tok := range fields {
		term := strings.ToLower(tok)
		a, ok := byTerm[term]
		if !ok {
			a = &accum{}
			byTerm[term] = a
			order = append(order, term)
		}
		a.freq++
		a.positions = append(a.positions, pos)
	}

	out := make([]schema.WordValue, 0, len(order))
	for _, term := range order {
		a := byTerm[term]
		out = append(out, schema.WordValue{
			Term:    term,
			Freq:    a.freq,
			Weight:  float64(a.freq),
			Payload: matching.EncodePositions(a.positions),
		})
	}
	return out
}

// analyzeFor renders values into the WordValue shape pool.AddContent
// expects for field's Format: Existence needs no payload, Frequency
// needs a frequency payload, Positions keeps the analyzer's position
// payload.
func analyzeFor(f schema.Field, values []schema.WordValue) []schema.WordValue {
	if f.Format == schema.FormatPositions {
		return values
	}
	out := make([]schema.WordValue, len(values))
	for i, wv := range values {
		cp := wv
		if f.Format == schema.FormatFrequency {
			cp.Payload = matching.EncodeFrequency(wv.Freq)
		} else {
			cp.Payload = nil
		}
		out[i] = cp
	}
	return out
}
