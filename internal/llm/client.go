// Package llm talks to the Ollama chat host.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/korpuslab/zapytaj/internal/circuitbreaker"
	"github.com/korpuslab/zapytaj/internal/metrics"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/tracing"
)

// Config controls the chat client.
type Config struct {
	Host    string
	Model   string
	Timeout time.Duration
	// RateLimit is the maximum request rate per second against the host.
	RateLimit float64
}

// Options tune a single chat call.
type Options struct {
	Temperature float64
	TopP        float64
	// Format, when set, is a JSON schema the model must follow.
	Format json.RawMessage
}

// Client is an Ollama chat client with request rate limiting.
type Client struct {
	cfg     Config
	httpw   *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient builds a chat client for cfg.Model on cfg.Host.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 4.0
	}
	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper("ollama", httpClient, circuitbreaker.DefaultConfig(), logger)
	return &Client{
		cfg:     cfg,
		httpw:   httpw,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		log:     logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []chatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
	Format   json.RawMessage        `json:"format,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Chat sends a single user message and returns the model's reply.
// The purpose label distinguishes answer, decomposition, clarification,
// and date-extraction calls in metrics.
func (c *Client) Chat(ctx context.Context, purpose, prompt string, opts Options) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	url := fmt.Sprintf("%s/api/chat", c.cfg.Host)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	options := map[string]interface{}{"temperature": opts.Temperature}
	if opts.TopP > 0 {
		options["top_p"] = opts.TopP
	}
	body := chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Options:  options,
		Format:   opts.Format,
	}
	buf, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		metrics.LLMCalls.WithLabelValues(purpose, "error").Inc()
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		metrics.LLMCalls.WithLabelValues(purpose, "error").Inc()
		return "", fmt.Errorf("chat model %q: %w", c.cfg.Model, models.ErrModelMissing)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.LLMCalls.WithLabelValues(purpose, "error").Inc()
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(payload))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.LLMCalls.WithLabelValues(purpose, "error").Inc()
		return "", err
	}

	metrics.LLMCalls.WithLabelValues(purpose, "ok").Inc()
	metrics.LLMCallDuration.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
	return out.Message.Content, nil
}

type tagsResponse struct {
	Models []struct {
		Model string `json:"model"`
	} `json:"models"`
}

// Ping verifies the host answers its tags endpoint.
func (c *Client) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/tags", c.cfg.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags status %d", resp.StatusCode)
	}
	return nil
}

// EnsureModel pulls the configured model when the host does not have it.
func (c *Client) EnsureModel(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/tags", c.cfg.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return err
	}
	for _, m := range tags.Models {
		if strings.HasPrefix(m.Model, c.cfg.Model) {
			return nil
		}
	}

	c.log.Info("Pulling chat model, this may take a while", zap.String("model", c.cfg.Model))
	pullBody, _ := json.Marshal(map[string]interface{}{"model": c.cfg.Model, "stream": false})
	pullReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/pull", c.cfg.Host), bytes.NewReader(pullBody))
	if err != nil {
		return err
	}
	pullReq.Header.Set("Content-Type", "application/json")
	pullResp, err := c.httpw.Do(pullReq)
	if err != nil {
		return err
	}
	defer pullResp.Body.Close()
	if pullResp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama pull status %d: %w", pullResp.StatusCode, models.ErrModelMissing)
	}
	return nil
}
