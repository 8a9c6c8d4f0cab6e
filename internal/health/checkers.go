package health

import (
	"context"
	"time"
)

// pingChecker wraps a probe function as a Checker.
type pingChecker struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

// NewChecker builds a checker from a probe function.
func NewChecker(name string, critical bool, ping func(ctx context.Context) error) Checker {
	return &pingChecker{name: name, critical: critical, ping: ping}
}

func (c *pingChecker) Name() string   { return c.name }
func (c *pingChecker) Critical() bool { return c.critical }

func (c *pingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Component: c.name,
		Status:    StatusHealthy,
		Critical:  c.critical,
		Timestamp: start,
	}
	if err := c.ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}

// NewElasticChecker probes the lexical index with a document count.
func NewElasticChecker(es interface {
	Count(ctx context.Context) (uint64, error)
}) Checker {
	return NewChecker("elasticsearch", true, func(ctx context.Context) error {
		_, err := es.Count(ctx)
		return err
	})
}

// NewQdrantChecker probes the vector index with a point count.
func NewQdrantChecker(q interface {
	PointsCount(ctx context.Context) (uint64, error)
}) Checker {
	return NewChecker("qdrant", true, func(ctx context.Context) error {
		_, err := q.PointsCount(ctx)
		return err
	})
}

// NewOllamaChecker probes the chat host's tags endpoint.
func NewOllamaChecker(o interface {
	Ping(ctx context.Context) error
}) Checker {
	return NewChecker("ollama", true, o.Ping)
}

// NewNLPChecker probes the language pipeline with a trivial sentence
// split. The pipeline is non-critical: retrieval degrades without it.
func NewNLPChecker(n interface {
	Sentences(ctx context.Context, text string) ([]string, error)
}) Checker {
	return NewChecker("nlp", false, func(ctx context.Context) error {
		_, err := n.Sentences(ctx, "ok")
		return err
	})
}

// NewEmbedderChecker probes the embedding service. Non-critical: the
// lexical side still answers without dense retrieval.
func NewEmbedderChecker(e interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}) Checker {
	return NewChecker("embedder", false, func(ctx context.Context) error {
		_, err := e.Embed(ctx, "ok")
		return err
	})
}
