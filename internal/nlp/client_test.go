package nlp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/analyze", r.URL.Path)
		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Ala ma kota. Kot śpi.", req.Text)
		assert.Equal(t, "pl_core_news_sm", req.Model)

		json.NewEncoder(w).Encode(Analysis{
			Tokens: []Token{
				{Text: "ala", Lemma: "ala", IsStop: false, IsAlpha: true},
				{Text: "ma", Lemma: "mieć", IsStop: true, IsAlpha: true},
				{Text: "kota", Lemma: "kot", IsStop: false, IsAlpha: true},
			},
			Sentences: []string{"Ala ma kota.", "Kot śpi."},
			Entities:  []Entity{{Text: "Ala", Label: "persName"}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, zaptest.NewLogger(t))
	analysis, err := c.Analyze(context.Background(), "Ala ma kota. Kot śpi.")
	require.NoError(t, err)
	require.Len(t, analysis.Tokens, 3)
	assert.Equal(t, "kot", analysis.Tokens[2].Lemma)
	assert.Equal(t, []string{"Ala ma kota.", "Kot śpi."}, analysis.Sentences)
	require.Len(t, analysis.Entities, 1)
	assert.Equal(t, "persName", analysis.Entities[0].Label)
}

func TestAnalyzeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, zaptest.NewLogger(t))
	_, err := c.Analyze(context.Background(), "tekst")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
