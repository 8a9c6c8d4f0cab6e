package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korpuslab/zapytaj/internal/models"
)

func hits(ids ...uint64) []models.Hit {
	out := make([]models.Hit, len(ids))
	for i, id := range ids {
		out[i] = models.Hit{ID: id, Text: "doc"}
	}
	return out
}

func TestRRFScores(t *testing.T) {
	lexical := []models.Hit{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}}
	dense := []models.Hit{{ID: 2, Text: "b-dense"}, {ID: 3, Text: "c"}}

	fused := RRF(lexical, dense, 0.6, 0.4, 15)
	require.Len(t, fused, 3)

	// 2: 0.6/2 + 0.4/1 = 0.7; 1: 0.6/1 = 0.6; 3: 0.4/2 = 0.2
	assert.Equal(t, uint64(2), fused[0].ID)
	assert.InDelta(t, 0.7, fused[0].Score, 1e-9)
	assert.Equal(t, uint64(1), fused[1].ID)
	assert.InDelta(t, 0.6, fused[1].Score, 1e-9)
	assert.Equal(t, uint64(3), fused[2].ID)
	assert.InDelta(t, 0.2, fused[2].Score, 1e-9)
}

func TestRRFTextResolvesLexicalFirst(t *testing.T) {
	lexical := []models.Hit{{ID: 7, Text: "lexical text"}}
	dense := []models.Hit{{ID: 7, Text: "dense text"}}

	fused := RRF(lexical, dense, 0.5, 0.5, 15)
	require.Len(t, fused, 1)
	assert.Equal(t, "lexical text", fused[0].Text)
}

func TestRRFDenseOnlyWeightZero(t *testing.T) {
	// Degenerate lexical weight: dense ordering survives untouched.
	dense := []models.Hit{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}, {ID: 3, Text: "c"}}
	fused := RRF(nil, dense, 0.0, 1.0, 15)
	require.Len(t, fused, 3)
	assert.Equal(t, uint64(1), fused[0].ID)
	assert.Equal(t, uint64(2), fused[1].ID)
	assert.Equal(t, uint64(3), fused[2].ID)
}

func TestRRFTieBreakPrefersLexicalRank(t *testing.T) {
	// 1 and 2 both score w/1 on one side only.
	lexical := []models.Hit{{ID: 1, Text: "a"}}
	dense := []models.Hit{{ID: 2, Text: "b"}}
	fused := RRF(lexical, dense, 0.5, 0.5, 15)
	require.Len(t, fused, 2)
	assert.Equal(t, uint64(1), fused[0].ID)
	assert.Equal(t, uint64(2), fused[1].ID)
}

func TestRRFTopK(t *testing.T) {
	fused := RRF(hits(1, 2, 3, 4, 5), nil, 1.0, 0.0, 3)
	assert.Len(t, fused, 3)
}

func TestRRFDuplicateIDsKeepFirstRank(t *testing.T) {
	lexical := []models.Hit{{ID: 1, Text: "first"}, {ID: 1, Text: "second"}, {ID: 2, Text: "b"}}
	fused := RRF(lexical, nil, 1.0, 0.0, 15)
	require.Len(t, fused, 2)
	assert.Equal(t, uint64(1), fused[0].ID)
	assert.Equal(t, "first", fused[0].Text)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-9)
}

func TestRRFEmpty(t *testing.T) {
	assert.Nil(t, RRF(nil, nil, 0.5, 0.5, 15))
}
