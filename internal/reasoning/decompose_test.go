package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/korpuslab/zapytaj/internal/llm"
	"github.com/korpuslab/zapytaj/internal/query"
)

type chatFunc func(ctx context.Context, purpose, prompt string, opts llm.Options) (string, error)

func (f chatFunc) Chat(ctx context.Context, purpose, prompt string, opts llm.Options) (string, error) {
	return f(ctx, purpose, prompt, opts)
}

func TestDecomposeParsesModelOutput(t *testing.T) {
	chat := chatFunc(func(_ context.Context, purpose, prompt string, opts llm.Options) (string, error) {
		assert.Equal(t, "decompose", purpose)
		assert.Contains(t, prompt, "jak poprawić pracę zespołową w firmie produkcyjnej")
		assert.InDelta(t, 0.2, opts.Temperature, 1e-9)
		return `{"main_question": "jak poprawić pracę zespołową w firmie produkcyjnej", "sub_questions": ["jak mierzyć pracę zespołową", "co obniża pracę zespołową"]}`, nil
	})
	d := NewDecomposer(chat, zaptest.NewLogger(t))

	q := "jak poprawić pracę zespołową w firmie produkcyjnej"
	got := d.Decompose(context.Background(), q, query.Analyze(q, nil))
	assert.Equal(t, q, got.Main)
	require.Len(t, got.Subs, 2)
	assert.Equal(t, "jak mierzyć pracę zespołową", got.Subs[0])
}

func TestDecomposeStripsCodeFences(t *testing.T) {
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		return "```json\n{\"main_question\": \"pytanie\", \"sub_questions\": [\"pod\"]}\n```", nil
	})
	d := NewDecomposer(chat, zaptest.NewLogger(t))

	got := d.Decompose(context.Background(), "pytanie", query.Features{})
	assert.Equal(t, "pytanie", got.Main)
	assert.Equal(t, []string{"pod"}, got.Subs)
}

func TestDecomposeSkipsLookupQueries(t *testing.T) {
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		t.Fatal("model must not be called for id queries")
		return "", nil
	})
	d := NewDecomposer(chat, zaptest.NewLogger(t))

	q := "norma ISO-9001"
	got := d.Decompose(context.Background(), q, query.Analyze(q, nil))
	assert.Equal(t, q, got.Main)
	assert.Empty(t, got.Subs)
}

func TestDecomposeFallsBackOnError(t *testing.T) {
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		return "", errors.New("model down")
	})
	d := NewDecomposer(chat, zaptest.NewLogger(t))

	got := d.Decompose(context.Background(), "pytanie otwarte", query.Features{})
	assert.Equal(t, "pytanie otwarte", got.Main)
	assert.Empty(t, got.Subs)
}

func TestDecomposeFallsBackOnGarbage(t *testing.T) {
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		return "to nie jest json", nil
	})
	d := NewDecomposer(chat, zaptest.NewLogger(t))

	got := d.Decompose(context.Background(), "pytanie otwarte", query.Features{})
	assert.Equal(t, "pytanie otwarte", got.Main)
	assert.Empty(t, got.Subs)
}

func TestDecomposeFillsMissingMain(t *testing.T) {
	chat := chatFunc(func(context.Context, string, string, llm.Options) (string, error) {
		return `{"sub_questions": ["a b c"]}`, nil
	})
	d := NewDecomposer(chat, zaptest.NewLogger(t))

	got := d.Decompose(context.Background(), "pytanie otwarte", query.Features{})
	assert.Equal(t, "pytanie otwarte", got.Main)
	assert.Equal(t, []string{"a b c"}, got.Subs)
}
