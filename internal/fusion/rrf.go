// Package fusion merges lexical and dense retrieval rankings with
// weighted Reciprocal Rank Fusion.
package fusion

import (
	"sort"

	"github.com/korpuslab/zapytaj/internal/models"
)

// Scored is one fused result: the document text with its RRF score.
type Scored struct {
	ID    uint64
	Text  string
	Score float64
}

// RRF fuses two ranked hit lists. score(x) = wLex/rankLex(x) +
// wDense/rankDense(x) with 1-based ranks; an id missing from a list
// contributes 0 for that side. The top k results are returned with
// texts resolved lexical-first. Ties are stable: the document that
// appears earlier in the lexical list wins, then the one earlier in
// the dense list.
func RRF(lexical, dense []models.Hit, wLex, wDense float64, k int) []Scored {
	if len(lexical) == 0 && len(dense) == 0 {
		return nil
	}

	lexRank := make(map[uint64]int, len(lexical))
	for i, h := range lexical {
		if _, ok := lexRank[h.ID]; !ok {
			lexRank[h.ID] = i + 1
		}
	}
	denseRank := make(map[uint64]int, len(dense))
	for i, h := range dense {
		if _, ok := denseRank[h.ID]; !ok {
			denseRank[h.ID] = i + 1
		}
	}

	scores := make(map[uint64]float64, len(lexRank)+len(denseRank))
	var order []uint64
	appendID := func(id uint64) {
		if _, ok := scores[id]; !ok {
			order = append(order, id)
			scores[id] = 0
		}
	}
	// Lexical ids first keeps the tie-break stable.
	for _, h := range lexical {
		appendID(h.ID)
	}
	for _, h := range dense {
		appendID(h.ID)
	}
	for id, rank := range lexRank {
		scores[id] += wLex / float64(rank)
	}
	for id, rank := range denseRank {
		scores[id] += wDense / float64(rank)
	}

	rankOf := func(m map[uint64]int, id uint64) int {
		if r, ok := m[id]; ok {
			return r
		}
		return int(^uint(0) >> 1)
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		if ra, rb := rankOf(lexRank, ia), rankOf(lexRank, ib); ra != rb {
			return ra < rb
		}
		return rankOf(denseRank, ia) < rankOf(denseRank, ib)
	})

	if k > 0 && len(order) > k {
		order = order[:k]
	}

	texts := make(map[uint64]string, len(order))
	for _, h := range lexical {
		if _, ok := texts[h.ID]; !ok {
			texts[h.ID] = h.Text
		}
	}
	for _, h := range dense {
		if _, ok := texts[h.ID]; !ok {
			texts[h.ID] = h.Text
		}
	}

	out := make([]Scored, 0, len(order))
	for _, id := range order {
		out = append(out, Scored{ID: id, Text: texts[id], Score: scores[id]})
	}
	return out
}
