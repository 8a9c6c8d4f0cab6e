package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/circuitbreaker"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/tracing"
)

// Config controls the Elasticsearch client.
type Config struct {
	URL     string
	Index   string
	Timeout time.Duration
	// ScrollSize and ScrollKeep tune the full-index ID scans.
	ScrollSize int
	ScrollKeep string
}

// Client is a minimal Elasticsearch HTTP client scoped to one index.
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient builds an Elasticsearch client for cfg.Index.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ScrollSize == 0 {
		cfg.ScrollSize = 1000
	}
	if cfg.ScrollKeep == "" {
		cfg.ScrollKeep = "2m"
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper("elasticsearch", httpClient, circuitbreaker.DefaultConfig(), logger)
	return &Client{cfg: cfg, base: cfg.URL, httpw: httpw, log: logger}
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, contentType string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	tracing.InjectTraceparent(ctx, req)
	return c.httpw.Do(req)
}

// indexBody is the index definition: a lowercase standard-tokenizer
// analyzer for Polish text, a 384-dim cosine vector, and the keyword
// metadata fields the retry matcher filters on.
const indexBody = `{
  "settings": {
    "analysis": {
      "analyzer": {
        "pl_lemma": {
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id": {"type": "keyword"},
      "domain": {"type": "keyword"},
      "date": {"type": "date"},
      "text": {"type": "text", "analyzer": "pl_lemma"},
      "vector": {"type": "dense_vector", "dims": 384, "index": true, "similarity": "cosine"},
      "entities": {"type": "keyword"},
      "places": {"type": "keyword"},
      "years": {"type": "integer"}
    }
  }
}`

// EnsureIndex creates the index with its mapping when missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s", c.base, c.cfg.Index)

	resp, err := c.do(ctx, http.MethodHead, url, nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch status %d", resp.StatusCode)
	}

	createResp, err := c.do(ctx, http.MethodPut, url, []byte(indexBody), "application/json")
	if err != nil {
		return err
	}
	defer createResp.Body.Close()
	if createResp.StatusCode < 200 || createResp.StatusCode >= 300 {
		body, _ := io.ReadAll(createResp.Body)
		return fmt.Errorf("elasticsearch create index status %d: %s", createResp.StatusCode, string(body))
	}
	c.log.Info("Created lexical index", zap.String("index", c.cfg.Index))
	return nil
}

// Count returns the number of documents in the index.
func (c *Client) Count(ctx context.Context) (uint64, error) {
	url := fmt.Sprintf("%s/%s/_count", c.base, c.cfg.Index)
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("elasticsearch count status %d", resp.StatusCode)
	}
	var out struct {
		Count uint64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Bulk indexes documents through the _bulk API. Returns an error when
// any item is rejected.
func (c *Client) Bulk(ctx context.Context, docs []models.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": c.cfg.Index,
				"_id":    fmt.Sprintf("%d", doc.ID),
			},
		}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	url := fmt.Sprintf("%s/_bulk", c.base)
	resp, err := c.do(ctx, http.MethodPost, url, buf.Bytes(), "application/x-ndjson")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("elasticsearch bulk status %d", resp.StatusCode)
	}

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if out.Errors {
		failed := 0
		reason := ""
		for _, item := range out.Items {
			for _, op := range item {
				if op.Status >= 300 {
					failed++
					if reason == "" {
						reason = op.Error.Reason
					}
				}
			}
		}
		return fmt.Errorf("elasticsearch bulk: %d items failed: %s", failed, reason)
	}
	return nil
}
