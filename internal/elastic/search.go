package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/metrics"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/tracing"
)

type searchHit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type docSource struct {
	Text     string   `json:"text"`
	Domain   string   `json:"domain"`
	Date     string   `json:"date"`
	Entities []string `json:"entities"`
	Places   []string `json:"places"`
	Years    []int    `json:"years"`
}

// Search runs a query_string search, boosting documents whose metadata
// matches the query's entities (2.0), places (1.5), and years (3.0).
// Results are capped at size and ordered by relevance.
func (c *Client) Search(ctx context.Context, query string, meta *models.Metadata, size int) ([]models.Hit, error) {
	start := time.Now()

	url := fmt.Sprintf("%s/%s/_search", c.base, c.cfg.Index)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	var should []map[string]interface{}
	if meta != nil {
		for _, entity := range meta.Entities {
			should = append(should, termBoost("entities", entity, 2.0))
		}
		for _, place := range meta.Places {
			should = append(should, termBoost("places", place, 1.5))
		}
		for _, year := range meta.Years {
			should = append(should, termBoost("years", year, 3.0))
		}
	}

	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   []map[string]interface{}{{"query_string": map[string]interface{}{"query": query}}},
				"should": should,
			},
		},
	}
	buf, _ := json.Marshal(body)

	resp, err := c.do(ctx, http.MethodPost, url, buf, "application/json")
	if err != nil {
		metrics.RetrievalRequests.WithLabelValues("es", "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RetrievalRequests.WithLabelValues("es", "error").Inc()
		return nil, fmt.Errorf("elasticsearch search status %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.RetrievalRequests.WithLabelValues("es", "error").Inc()
		return nil, err
	}

	hits := make([]models.Hit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		id, err := strconv.ParseUint(h.ID, 10, 64)
		if err != nil {
			c.log.Warn("Skipping hit with non-numeric id", zap.String("id", h.ID))
			continue
		}
		var src docSource
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		hits = append(hits, models.Hit{ID: id, Text: src.Text})
	}

	metrics.RetrievalRequests.WithLabelValues("es", "ok").Inc()
	metrics.RetrievalDuration.WithLabelValues("es").Observe(time.Since(start).Seconds())
	return hits, nil
}

func termBoost(field string, value interface{}, boost float64) map[string]interface{} {
	return map[string]interface{}{
		"term": map[string]interface{}{
			field: map[string]interface{}{"value": value, "boost": boost},
		},
	}
}

// Get fetches one document by id. Returns models.ErrNotFound for
// unknown ids.
func (c *Client) Get(ctx context.Context, id uint64) (*models.Document, error) {
	url := fmt.Sprintf("%s/%s/_doc/%d", c.base, c.cfg.Index, id)
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elasticsearch get status %d", resp.StatusCode)
	}

	var out struct {
		Found  bool      `json:"found"`
		Source docSource `json:"_source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if !out.Found {
		return nil, models.ErrNotFound
	}
	return &models.Document{
		ID:       id,
		Text:     out.Source.Text,
		Domain:   out.Source.Domain,
		Date:     out.Source.Date,
		Entities: out.Source.Entities,
		Places:   out.Source.Places,
		Years:    out.Source.Years,
	}, nil
}

// ScrollIDs walks the whole index with the scroll API and returns the
// set of document ids.
func (c *Client) ScrollIDs(ctx context.Context) (map[uint64]struct{}, error) {
	ids := make(map[uint64]struct{})

	body := map[string]interface{}{
		"size":    c.cfg.ScrollSize,
		"query":   map[string]interface{}{"match_all": map[string]interface{}{}},
		"_source": false,
	}
	buf, _ := json.Marshal(body)

	url := fmt.Sprintf("%s/%s/_search?scroll=%s", c.base, c.cfg.Index, c.cfg.ScrollKeep)
	resp, err := c.do(ctx, http.MethodPost, url, buf, "application/json")
	if err != nil {
		return nil, err
	}
	out, err := decodeScrollPage(resp)
	if err != nil {
		return nil, err
	}

	scrollID := out.ScrollID
	for len(out.Hits.Hits) > 0 {
		for _, h := range out.Hits.Hits {
			id, err := strconv.ParseUint(h.ID, 10, 64)
			if err != nil {
				continue
			}
			ids[id] = struct{}{}
		}

		next := map[string]interface{}{"scroll": c.cfg.ScrollKeep, "scroll_id": scrollID}
		nextBuf, _ := json.Marshal(next)
		resp, err = c.do(ctx, http.MethodPost, fmt.Sprintf("%s/_search/scroll", c.base), nextBuf, "application/json")
		if err != nil {
			return nil, err
		}
		out, err = decodeScrollPage(resp)
		if err != nil {
			return nil, err
		}
		scrollID = out.ScrollID
	}

	if scrollID != "" {
		clear := map[string]interface{}{"scroll_id": scrollID}
		clearBuf, _ := json.Marshal(clear)
		if resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/_search/scroll", c.base), clearBuf, "application/json"); err == nil {
			resp.Body.Close()
		}
	}
	return ids, nil
}

func decodeScrollPage(resp *http.Response) (*searchResponse, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elasticsearch scroll status %d", resp.StatusCode)
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
