package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/vectordb"
)

type fakeLexical struct {
	count  uint64
	docs   []models.Document
	batchs int
}

func (f *fakeLexical) EnsureIndex(context.Context) error { return nil }
func (f *fakeLexical) Count(context.Context) (uint64, error) {
	return f.count, nil
}
func (f *fakeLexical) Bulk(_ context.Context, docs []models.Document) error {
	f.docs = append(f.docs, docs...)
	f.batchs++
	return nil
}

type fakeVector struct {
	count  uint64
	points []vectordb.Point
	batchs int
}

func (f *fakeVector) EnsureCollection(context.Context) error { return nil }
func (f *fakeVector) PointsCount(context.Context) (uint64, error) {
	return f.count, nil
}
func (f *fakeVector) Upsert(_ context.Context, points []vectordb.Point) (*vectordb.UpsertResponse, error) {
	f.points = append(f.points, points...)
	f.batchs++
	return &vectordb.UpsertResponse{}, nil
}

func writeCorpus(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.ndjson")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunLoadsBothBackends(t *testing.T) {
	path := writeCorpus(t,
		`{"index": {"_id": "1"}}`,
		`{"id": 1, "text": "pierwszy dokument", "vector": [0.1, 0.2], "domain": "news", "years": [2023]}`,
		``,
		`{"id": 2, "text": "drugi dokument", "vector": [0.3, 0.4]}`,
	)
	lex := &fakeLexical{}
	vec := &fakeVector{}
	l := New(lex, vec, nil, 0, zaptest.NewLogger(t))

	require.NoError(t, l.Run(context.Background(), path))
	require.Len(t, lex.docs, 2)
	require.Len(t, vec.points, 2)
	assert.Equal(t, uint64(1), lex.docs[0].ID)
	assert.Equal(t, "news", lex.docs[0].Domain)

	// The vector payload carries metadata but never the vector itself.
	assert.Equal(t, []float32{0.1, 0.2}, vec.points[0].Vector)
	_, hasVector := vec.points[0].Payload["vector"]
	assert.False(t, hasVector)
	assert.Equal(t, "pierwszy dokument", vec.points[0].Payload["text"])
}

func TestRunRejectsIncompleteRecords(t *testing.T) {
	path := writeCorpus(t,
		`{"text": "bez id", "vector": [0.1]}`,
		`{"id": 1, "vector": [0.1]}`,
		`{"id": 2, "text": "bez wektora"}`,
		`nie-json`,
		`{"id": 3, "text": "kompletny", "vector": [0.1]}`,
	)
	lex := &fakeLexical{}
	vec := &fakeVector{}
	l := New(lex, vec, nil, 0, zaptest.NewLogger(t))

	require.NoError(t, l.Run(context.Background(), path))
	require.Len(t, lex.docs, 1)
	assert.Equal(t, uint64(3), lex.docs[0].ID)
}

func TestRunSkipsPopulatedBackends(t *testing.T) {
	path := writeCorpus(t, `{"id": 1, "text": "dokument", "vector": [0.1]}`)

	lex := &fakeLexical{count: 10}
	vec := &fakeVector{count: 10}
	l := New(lex, vec, nil, 0, zaptest.NewLogger(t))

	require.NoError(t, l.Run(context.Background(), path))
	assert.Empty(t, lex.docs)
	assert.Empty(t, vec.points)
}

func TestRunLoadsOnlyEmptyBackend(t *testing.T) {
	path := writeCorpus(t, `{"id": 1, "text": "dokument", "vector": [0.1]}`)

	lex := &fakeLexical{count: 10}
	vec := &fakeVector{}
	l := New(lex, vec, nil, 0, zaptest.NewLogger(t))

	require.NoError(t, l.Run(context.Background(), path))
	assert.Empty(t, lex.docs)
	assert.Len(t, vec.points, 1)
}

func TestRunBatches(t *testing.T) {
	var lines []string
	for i := 1; i <= 7; i++ {
		lines = append(lines, `{"id": `+string(rune('0'+i))+`, "text": "dokument", "vector": [0.1]}`)
	}
	path := writeCorpus(t, lines...)

	lex := &fakeLexical{}
	vec := &fakeVector{}
	l := New(lex, vec, nil, 3, zaptest.NewLogger(t))

	require.NoError(t, l.Run(context.Background(), path))
	assert.Equal(t, 3, lex.batchs)
	assert.Equal(t, 3, vec.batchs)
	assert.Len(t, lex.docs, 7)
}

func TestRunMissingCorpusFile(t *testing.T) {
	l := New(&fakeLexical{}, &fakeVector{}, nil, 0, zaptest.NewLogger(t))
	err := l.Run(context.Background(), filepath.Join(t.TempDir(), "missing.ndjson"))
	assert.Error(t, err)
}
