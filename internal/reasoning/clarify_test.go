package reasoning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/korpuslab/zapytaj/internal/config"
	"github.com/korpuslab/zapytaj/internal/llm"
)

func testLexicon(t *testing.T) *config.LexiconStore {
	t.Helper()
	return config.NewLexiconStore("", zaptest.NewLogger(t))
}

func TestClarifyAbstractQuery(t *testing.T) {
	chat := chatFunc(func(_ context.Context, purpose, prompt string, _ llm.Options) (string, error) {
		assert.Equal(t, "clarify", purpose)
		assert.Contains(t, prompt, "jaki jest sens odpowiedzialności")
		return "pytanie dotyczy odpowiedzialności w kontekście moralnym\n" +
			"pytanie dotyczy odpowiedzialności w kontekście prawnym\n" +
			"pytanie dotyczy odpowiedzialności w kontekście zawodowym", nil
	})
	c := NewClarifier(chat, testLexicon(t), zaptest.NewLogger(t))

	got := c.Clarify(context.Background(), "jaki jest sens odpowiedzialności")
	assert.True(t, got.NeedsClarification)
	require.GreaterOrEqual(t, len(got.Interpretations), 2)
	require.LessOrEqual(t, len(got.Interpretations), 3)
	assert.Equal(t, "pytanie dotyczy odpowiedzialności w kontekście moralnym",
		got.Interpretations[0].Clarification)
	assert.Equal(t, "Interpretacja 1", got.Interpretations[0].Label)
}

func TestClarifySynthesizesWhenModelFails(t *testing.T) {
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		return "", errors.New("model down")
	})
	c := NewClarifier(chat, testLexicon(t), zaptest.NewLogger(t))

	got := c.Clarify(context.Background(), "jaki jest sens odpowiedzialności")
	assert.True(t, got.NeedsClarification)
	require.GreaterOrEqual(t, len(got.Interpretations), 2)
	for _, interp := range got.Interpretations {
		assert.True(t, strings.HasPrefix(interp.Clarification, "pytanie dotyczy"), interp.Clarification)
	}
}

func TestClarifyStripsNumbering(t *testing.T) {
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		return "1. pytanie dotyczy Polskiej Akademii Nauk\n- pytanie dotyczy osoby mówiącej", nil
	})
	c := NewClarifier(chat, testLexicon(t), zaptest.NewLogger(t))

	got := c.Clarify(context.Background(), "co mówi pan o kryzysie gospodarczym")
	require.True(t, got.NeedsClarification)
	require.GreaterOrEqual(t, len(got.Interpretations), 2)
	assert.Equal(t, "pytanie dotyczy Polskiej Akademii Nauk", got.Interpretations[0].Clarification)
	assert.Equal(t, "pytanie dotyczy osoby mówiącej", got.Interpretations[1].Clarification)
}

func TestClarifySkipsSpecificQueries(t *testing.T) {
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		t.Fatal("model must not be called for specific queries")
		return "", nil
	})
	c := NewClarifier(chat, testLexicon(t), zaptest.NewLogger(t))

	for _, q := range []string{
		"norma ISO-9001",
		"PAN",
		"inflacja w 2023 roku",
	} {
		got := c.Clarify(context.Background(), q)
		assert.False(t, got.NeedsClarification, "query %q", q)
		assert.Empty(t, got.Interpretations)
	}
}

func TestClarifyQualifiedEntityIsNotAmbiguous(t *testing.T) {
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		t.Fatal("model must not be called when the entity is qualified")
		return "", nil
	})
	c := NewClarifier(chat, testLexicon(t), zaptest.NewLogger(t))

	got := c.Clarify(context.Background(), "która rada zebrała się wczoraj wieczorem")
	assert.False(t, got.NeedsClarification)
}

func TestClarifyPadsToTwoInterpretations(t *testing.T) {
	// The model returns garbage and the only signal synthesizes a
	// single reading, so the clarifier pads with a generic one.
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		return "za krótkie", nil
	})
	c := NewClarifier(chat, testLexicon(t), zaptest.NewLogger(t))

	got := c.Clarify(context.Background(), "opowiedz mi o tym instytucie badawczym")
	require.True(t, got.NeedsClarification)
	assert.GreaterOrEqual(t, len(got.Interpretations), 2)
}
