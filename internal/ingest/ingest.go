// Package ingest seeds both indexes from the NDJSON corpus file.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/metrics"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/vectordb"
)

// Lexical is the slice of the Elasticsearch client the loader needs.
type Lexical interface {
	EnsureIndex(ctx context.Context) error
	Count(ctx context.Context) (uint64, error)
	Bulk(ctx context.Context, docs []models.Document) error
}

// Vector is the slice of the Qdrant client the loader needs.
type Vector interface {
	EnsureCollection(ctx context.Context) error
	PointsCount(ctx context.Context) (uint64, error)
	Upsert(ctx context.Context, points []vectordb.Point) (*vectordb.UpsertResponse, error)
}

// Enricher optionally fills entities/places/years on records that
// arrive without them. Nil disables enrichment.
type Enricher interface {
	FromQuery(ctx context.Context, text string) models.Metadata
}

// Loader populates the two indexes from a corpus file, skipping
// backends that already hold documents.
type Loader struct {
	lexical  Lexical
	vector   Vector
	enricher Enricher
	batch    int
	log      *zap.Logger
}

// New builds a loader; batch 0 takes the default 5.
func New(lexical Lexical, vector Vector, enricher Enricher, batch int, logger *zap.Logger) *Loader {
	if batch < 1 {
		batch = 5
	}
	return &Loader{lexical: lexical, vector: vector, enricher: enricher, batch: batch, log: logger}
}

// Run ensures both indexes exist and loads the corpus into whichever
// is still empty.
func (l *Loader) Run(ctx context.Context, dataPath string) error {
	if err := l.lexical.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure lexical index: %w", err)
	}
	if err := l.vector.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}

	esCount, err := l.lexical.Count(ctx)
	if err != nil {
		return fmt.Errorf("count lexical index: %w", err)
	}
	qdrantCount, err := l.vector.PointsCount(ctx)
	if err != nil {
		return fmt.Errorf("count vector collection: %w", err)
	}
	if esCount > 0 && qdrantCount > 0 {
		l.log.Info("Both indexes populated, skipping ingest",
			zap.Uint64("lexical_docs", esCount),
			zap.Uint64("vector_points", qdrantCount))
		return nil
	}

	docs, rejected, err := l.readCorpus(ctx, dataPath)
	if err != nil {
		return err
	}
	l.log.Info("Corpus read",
		zap.String("path", dataPath),
		zap.Int("documents", len(docs)),
		zap.Int("rejected", rejected))

	if esCount == 0 {
		if err := l.loadLexical(ctx, docs); err != nil {
			return err
		}
	}
	if qdrantCount == 0 {
		if err := l.loadVector(ctx, docs); err != nil {
			return err
		}
	}
	return nil
}

// readCorpus parses the NDJSON file. Bulk-metadata lines (starting
// {"index") are skipped; records missing id, text, or vector are
// rejected and counted.
func (l *Loader) readCorpus(ctx context.Context, path string) ([]models.Document, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var docs []models.Document
	rejected := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, `{"index"`) {
			continue
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			l.log.Warn("Corpus line unparseable", zap.Int("line", lineNo), zap.Error(err))
			rejected++
			metrics.DocumentsRejected.Inc()
			continue
		}
		if _, ok := raw["id"]; !ok {
			rejected++
			metrics.DocumentsRejected.Inc()
			continue
		}
		if _, ok := raw["text"]; !ok {
			rejected++
			metrics.DocumentsRejected.Inc()
			continue
		}
		if _, ok := raw["vector"]; !ok {
			rejected++
			metrics.DocumentsRejected.Inc()
			continue
		}

		var doc models.Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			l.log.Warn("Corpus record invalid", zap.Int("line", lineNo), zap.Error(err))
			rejected++
			metrics.DocumentsRejected.Inc()
			continue
		}

		if l.enricher != nil && len(doc.Entities) == 0 && len(doc.Places) == 0 && len(doc.Years) == 0 {
			meta := l.enricher.FromQuery(ctx, doc.Text)
			doc.Entities = meta.Entities
			doc.Places = meta.Places
			doc.Years = meta.Years
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, rejected, fmt.Errorf("scan corpus: %w", err)
	}
	return docs, rejected, nil
}

func (l *Loader) loadLexical(ctx context.Context, docs []models.Document) error {
	for start := 0; start < len(docs); start += l.batch {
		end := start + l.batch
		if end > len(docs) {
			end = len(docs)
		}
		if err := l.lexical.Bulk(ctx, docs[start:end]); err != nil {
			return fmt.Errorf("bulk index batch at %d: %w", start, err)
		}
		metrics.DocumentsIngested.WithLabelValues("es").Add(float64(end - start))
	}
	l.log.Info("Lexical index populated", zap.Int("documents", len(docs)))
	return nil
}

func (l *Loader) loadVector(ctx context.Context, docs []models.Document) error {
	for start := 0; start < len(docs); start += l.batch {
		end := start + l.batch
		if end > len(docs) {
			end = len(docs)
		}
		points := make([]vectordb.Point, 0, end-start)
		for _, doc := range docs[start:end] {
			payload := map[string]interface{}{
				"id":   doc.ID,
				"text": doc.Text,
			}
			if doc.Domain != "" {
				payload["domain"] = doc.Domain
			}
			if doc.Date != "" {
				payload["date"] = doc.Date
			}
			if len(doc.Entities) > 0 {
				payload["entities"] = doc.Entities
			}
			if len(doc.Places) > 0 {
				payload["places"] = doc.Places
			}
			if len(doc.Years) > 0 {
				payload["years"] = doc.Years
			}
			points = append(points, vectordb.Point{ID: doc.ID, Vector: doc.Vector, Payload: payload})
		}
		if _, err := l.vector.Upsert(ctx, points); err != nil {
			return fmt.Errorf("upsert batch at %d: %w", start, err)
		}
		metrics.DocumentsIngested.WithLabelValues("qdrant").Add(float64(len(points)))
	}
	l.log.Info("Vector collection populated", zap.Int("documents", len(docs)))
	return nil
}
