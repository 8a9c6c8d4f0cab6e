// Package nlp talks to the Polish NLP pipeline service, which wraps a
// spaCy-style model and returns tokens with lemmas, sentence
// boundaries, and named entities in one call.
package nlp

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
	"github.com/korpuslab/zapytaj/internal/metrics"
	"github.com/korpuslab/zapytaj/internal/tracing"
)

// Config controls the NLP client.
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
}

// Token is a single analyzed token.
type Token struct {
	Text    string `json:"text"`
	Lemma   string `json:"lemma"`
	IsStop  bool   `json:"is_stop"`
	IsAlpha bool   `json:"is_alpha"`
}

// Entity is a named entity with its label, one of persName, orgName,
// placeName, geogName, date.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Analysis is the full pipeline output for one text.
type Analysis struct {
	Tokens    []Token  `json:"tokens"`
	Sentences []string `json:"sentences"`
	Entities  []Entity `json:"entities"`
}

// Client calls the NLP pipeline service.
type Client struct {
	cfg   Config
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient builds an NLP client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "pl_core_news_sm"
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper("nlp", httpClient, circuitbreaker.DefaultConfig(), logger)
	return &Client{cfg: cfg, httpw: httpw, log: logger}
}

type analyzeRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// Analyze runs the pipeline on text.
func (c *Client) Analyze(ctx context.Context, text string) (*Analysis, error) {
	url := fmt.Sprintf("%s/analyze", c.cfg.URL)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	buf, _ := json.Marshal(analyzeRequest{Text: text, Model: c.cfg.Model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		metrics.NLPRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.NLPRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("nlp service returned %d: %s", resp.StatusCode, string(body))
	}

	var out Analysis
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.NLPRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.NLPRequests.WithLabelValues("ok").Inc()
	return &out, nil
}

// Sentences returns just the sentence split for text.
func (c *Client) Sentences(ctx context.Context, text string) ([]string, error) {
	analysis, err := c.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	return analysis.Sentences, nil
}
