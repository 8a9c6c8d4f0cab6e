// Package embedding talks to the sentence-embedding service. Query
// texts must be prefixed with "query: " by the caller; outputs are
// L2-normalized 384-dim vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/circuitbreaker"
	"github.com/korpuslab/zapytaj/internal/metrics"
	"github.com/korpuslab/zapytaj/internal/tracing"
)

// Config controls the embedding client.
type Config struct {
	URL       string
	Model     string
	Dimension int
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Client generates embeddings with a small in-process LRU in front of
// the HTTP service.
type Client struct {
	cfg   Config
	httpw *circuitbreaker.HTTPWrapper
	lru   *localLRU
	log   *zap.Logger
}

// NewClient builds an embedding client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 384
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 2048
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper("embedder", httpClient, circuitbreaker.DefaultConfig(), logger)
	return &Client{cfg: cfg, httpw: httpw, lru: newLocalLRU(cfg.CacheSize), log: logger}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the L2-normalized vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns L2-normalized vectors for texts, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var uncached []string
	var uncachedIdx []int
	for i, text := range texts {
		key := makeKey(c.cfg.Model, text)
		if v, ok := c.lru.Get(key); ok {
			results[i] = v
			continue
		}
		uncached = append(uncached, text)
		uncachedIdx = append(uncachedIdx, i)
	}
	if len(uncached) == 0 {
		return results, nil
	}

	start := time.Now()
	url := fmt.Sprintf("%s/embeddings", c.cfg.URL)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	buf, _ := json.Marshal(embedRequest{Texts: uncached, Model: c.cfg.Model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(er.Embeddings) != len(uncached) {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(er.Embeddings), len(uncached))
	}

	for i, embedding := range er.Embeddings {
		if len(embedding) != c.cfg.Dimension {
			metrics.EmbeddingRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("embedding dimension %d, want %d", len(embedding), c.cfg.Dimension)
		}
		out := normalize(embedding)
		idx := uncachedIdx[i]
		results[idx] = out
		c.lru.Set(makeKey(c.cfg.Model, uncached[i]), out, c.cfg.CacheTTL)
	}

	metrics.EmbeddingRequests.WithLabelValues("ok").Inc()
	metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())
	return results, nil
}

// normalize converts to float32 and scales to unit length. Zero
// vectors are returned unscaled.
func normalize(v []float64) []float32 {
	var sum float64
	for _, f := range v {
		sum += f * f
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		for i, f := range v {
			out[i] = float32(f)
		}
		return out
	}
	for i, f := range v {
		out[i] = float32(f / norm)
	}
	return out
}
