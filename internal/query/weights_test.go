package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/korpuslab/zapytaj/internal/nlp"
)

func TestChooseWeightsAcronym(t *testing.T) {
	w := ChooseWeights(Analyze("PAN", nil))
	assert.Equal(t, Weights{Lexical: 0.8, Dense: 0.2}, w)
}

func TestChooseWeightsID(t *testing.T) {
	w := ChooseWeights(Analyze("norma ISO-9001", nil))
	assert.Equal(t, Weights{Lexical: 0.8, Dense: 0.2}, w)
}

func TestChooseWeightsSpecificEntityLong(t *testing.T) {
	analysis := &nlp.Analysis{Entities: []nlp.Entity{{Text: "Adam Mickiewicz", Label: "persName"}}}
	w := ChooseWeights(Analyze("gdzie mieszkał Adam Mickiewicz przez ostatnie lata", analysis))
	assert.Equal(t, Weights{Lexical: 0.7, Dense: 0.3}, w)
}

func TestChooseWeightsSpecificEntityShort(t *testing.T) {
	analysis := &nlp.Analysis{Entities: []nlp.Entity{{Text: "Adam Mickiewicz", Label: "persName"}}}
	w := ChooseWeights(Analyze("Adam Mickiewicz", analysis))
	assert.Equal(t, Weights{Lexical: 0.6, Dense: 0.4}, w)
}

func TestChooseWeightsYear(t *testing.T) {
	w := ChooseWeights(Analyze("inflacja w 2023 roku", nil))
	assert.Equal(t, Weights{Lexical: 0.65, Dense: 0.35}, w)
}

func TestChooseWeightsAbstract(t *testing.T) {
	w := ChooseWeights(Analyze("czym jest wolność", nil))
	assert.Equal(t, Weights{Lexical: 0.3, Dense: 0.7}, w)
}

func TestChooseWeightsShortNonEntity(t *testing.T) {
	w := ChooseWeights(Analyze("dobre pieczywo", nil))
	assert.Equal(t, Weights{Lexical: 0.3, Dense: 0.7}, w)
}

func TestChooseWeightsDefault(t *testing.T) {
	w := ChooseWeights(Analyze("gdzie można kupić dobre pieczywo wieczorem", nil))
	assert.Equal(t, Weights{Lexical: 0.45, Dense: 0.55}, w)
}

func TestChooseWeightsAlwaysNormalized(t *testing.T) {
	queries := []string{
		"PAN", "norma ISO-9001", "inflacja w 2023 roku", "czym jest wolność",
		"kot", "gdzie można kupić dobre pieczywo wieczorem", "dokumenty po 2020",
	}
	for _, q := range queries {
		w := ChooseWeights(Analyze(q, nil))
		assert.InDelta(t, 1.0, w.Lexical+w.Dense, 1e-9, "query %q", q)
		assert.Greater(t, w.Lexical, 0.0)
		assert.Greater(t, w.Dense, 0.0)
	}
}
