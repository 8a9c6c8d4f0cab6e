// Package filtering drops short and low-overlap chunks before they
// reach the prompt.
package filtering

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/query"
)

// Embedder supplies chunk vectors for the fallback cosine check.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Stats counts what the filter did to one chunk list.
type Stats struct {
	InputDocs       int   `json:"input_docs"`
	KeptDocs        int   `json:"kept_docs"`
	RejectedShort   int   `json:"rejected_short"`
	RejectedOverlap int   `json:"rejected_overlap"`
	Overlaps        []int `json:"overlaps"`
}

// Filter applies the short/overlap/cosine rules to chunk lists.
type Filter struct {
	embedder  Embedder
	minTokens int
	maxDocs   int
	threshold float64
	log       *zap.Logger
}

// New builds a filter. minTokens and maxDocs of 0 take the defaults
// (15 and 10); threshold 0 takes 0.55.
func New(embedder Embedder, minTokens, maxDocs int, threshold float64, logger *zap.Logger) *Filter {
	if minTokens == 0 {
		minTokens = 15
	}
	if maxDocs == 0 {
		maxDocs = 10
	}
	if threshold == 0 {
		threshold = 0.55
	}
	return &Filter{embedder: embedder, minTokens: minTokens, maxDocs: maxDocs, threshold: threshold, log: logger}
}

// Apply filters chunks against the original query. For factual
// queries a chunk with zero token overlap survives only when its
// embedding is cosine-similar enough to the query vector. Chunk
// embeddings are cached by text for the duration of the call; the
// cache is never shared between requests. At most maxDocs chunks are
// kept, in their incoming order.
func (f *Filter) Apply(ctx context.Context, chunks []models.Chunk, q string, queryVec []float32, feats query.Features) ([]models.Chunk, Stats) {
	queryTokens := tokenSet(q)

	stats := Stats{InputDocs: len(chunks)}
	vecCache := make(map[string][]float32)

	var kept []models.Chunk
	for _, chunk := range chunks {
		tokens := tokenSet(chunk.Text)
		if len(tokens) < f.minTokens {
			stats.RejectedShort++
			continue
		}

		overlap := 0
		for t := range tokens {
			if _, ok := queryTokens[t]; ok {
				overlap++
			}
		}
		stats.Overlaps = append(stats.Overlaps, overlap)

		if feats.Factual() && overlap == 0 {
			vec, ok := vecCache[chunk.Text]
			if !ok {
				var err error
				vec, err = f.embedder.Embed(ctx, chunk.Text)
				if err != nil {
					f.log.Warn("Chunk embedding failed, dropping chunk",
						zap.Error(err))
					stats.RejectedOverlap++
					continue
				}
				vecCache[chunk.Text] = vec
			}
			if Cosine(queryVec, vec) < f.threshold {
				stats.RejectedOverlap++
				continue
			}
		}

		kept = append(kept, chunk)
		stats.KeptDocs++
	}

	if len(kept) > f.maxDocs {
		kept = kept[:f.maxDocs]
	}
	return kept, stats
}

// tokenSet collects the lowercased tokens longer than two characters.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range query.TokenizeWithPunct(text) {
		if len([]rune(t)) > 2 {
			set[strings.ToLower(t)] = struct{}{}
		}
	}
	return set
}

// Cosine computes cosine similarity; zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
