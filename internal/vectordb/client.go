package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/circuitbreaker"
	"github.com/korpuslab/zapytaj/internal/metrics"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/tracing"
)

// Client is a minimal Qdrant HTTP client scoped to one collection.
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient builds a Qdrant client for cfg.Collection.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 384
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper("qdrant", httpClient, circuitbreaker.DefaultConfig(), logger)
	return &Client{cfg: cfg, base: cfg.URL, httpw: httpw, log: logger}
}

// qdrant search request/response (simplified)
type queryRequest struct {
	Query       []float32 `json:"query"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type point struct {
	ID      json.Number            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type searchResponse struct {
	Result []point `json:"result"`
	Status string  `json:"status"`
}

// queryResponse for the /points/query endpoint which nests the points.
type queryResponse struct {
	Result struct {
		Points []point `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search returns up to limit hits ordered by descending cosine similarity.
func (c *Client) Search(ctx context.Context, vec []float32, limit int) ([]models.Hit, error) {
	start := time.Now()

	urlQuery := fmt.Sprintf("%s/collections/%s/points/query", c.base, c.cfg.Collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", urlQuery)
	defer span.End()

	call := func(url string, body []byte) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		tracing.InjectTraceparent(ctx, req)
		return c.httpw.Do(req)
	}

	buf, _ := json.Marshal(queryRequest{Query: vec, Limit: limit, WithPayload: true})
	resp, err := call(urlQuery, buf)
	if err != nil {
		metrics.RetrievalRequests.WithLabelValues("qdrant", "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Older Qdrant versions only expose /points/search.
		urlSearch := fmt.Sprintf("%s/collections/%s/points/search", c.base, c.cfg.Collection)
		legacy := map[string]interface{}{"vector": vec, "limit": limit, "with_payload": true}
		buf2, _ := json.Marshal(legacy)
		resp2, err2 := call(urlSearch, buf2)
		if err2 != nil {
			metrics.RetrievalRequests.WithLabelValues("qdrant", "error").Inc()
			return nil, fmt.Errorf("qdrant query/search failed: %w", err2)
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			metrics.RetrievalRequests.WithLabelValues("qdrant", "error").Inc()
			return nil, fmt.Errorf("qdrant status %d", resp2.StatusCode)
		}
		var sr searchResponse
		if err := json.NewDecoder(resp2.Body).Decode(&sr); err != nil {
			metrics.RetrievalRequests.WithLabelValues("qdrant", "error").Inc()
			return nil, err
		}
		metrics.RetrievalRequests.WithLabelValues("qdrant", "ok").Inc()
		metrics.RetrievalDuration.WithLabelValues("qdrant").Observe(time.Since(start).Seconds())
		return pointsToHits(sr.Result), nil
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		metrics.RetrievalRequests.WithLabelValues("qdrant", "error").Inc()
		return nil, err
	}
	metrics.RetrievalRequests.WithLabelValues("qdrant", "ok").Inc()
	metrics.RetrievalDuration.WithLabelValues("qdrant").Observe(time.Since(start).Seconds())
	return pointsToHits(qr.Result.Points), nil
}

func pointsToHits(points []point) []models.Hit {
	hits := make([]models.Hit, 0, len(points))
	for _, p := range points {
		id, err := parsePointID(p.ID)
		if err != nil {
			continue
		}
		text, _ := p.Payload["text"].(string)
		hits = append(hits, models.Hit{ID: id, Text: text})
	}
	return hits
}

func parsePointID(n json.Number) (uint64, error) {
	v, err := n.Int64()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative point id %d", v)
	}
	return uint64(v), nil
}

// Upsert inserts or updates points in the collection.
func (c *Client) Upsert(ctx context.Context, points []Point) (*UpsertResponse, error) {
	for _, p := range points {
		if len(p.Vector) != c.cfg.Dimension {
			return nil, fmt.Errorf("point %d: vector dimension %d, want %d", p.ID, len(p.Vector), c.cfg.Dimension)
		}
	}

	url := fmt.Sprintf("%s/collections/%s/points", c.base, c.cfg.Collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "PUT", url)
	defer span.End()

	body := map[string]interface{}{"points": points}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}
	var r UpsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

type collectionInfoResponse struct {
	Result struct {
		PointsCount uint64 `json:"points_count"`
	} `json:"result"`
	Status string `json:"status"`
}

// PointsCount returns the number of points in the collection, or an
// error when the collection does not exist.
func (c *Client) PointsCount(ctx context.Context) (uint64, error) {
	url := fmt.Sprintf("%s/collections/%s", c.base, c.cfg.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpw.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("qdrant collection %q not found", c.cfg.Collection)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("qdrant status %d", resp.StatusCode)
	}
	var info collectionInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return 0, err
	}
	return info.Result.PointsCount, nil
}

// EnsureCollection creates the collection with cosine distance when missing.
func (c *Client) EnsureCollection(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", c.base, c.cfg.Collection)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpw.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant status %d", resp.StatusCode)
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     c.cfg.Dimension,
			"distance": "Cosine",
		},
	}
	buf, _ := json.Marshal(body)
	createReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	createReq.Header.Set("Content-Type", "application/json")
	createResp, err := c.httpw.Do(createReq)
	if err != nil {
		return err
	}
	defer createResp.Body.Close()
	if createResp.StatusCode < 200 || createResp.StatusCode >= 300 {
		return fmt.Errorf("qdrant create collection status %d", createResp.StatusCode)
	}
	c.log.Info("Created vector collection",
		zap.String("collection", c.cfg.Collection),
		zap.Int("dimension", c.cfg.Dimension),
	)
	return nil
}
