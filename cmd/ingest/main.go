// Command ingest seeds the Elasticsearch index and the Qdrant
// collection from the NDJSON corpus file, without starting the
// service. Useful for pre-warming indexes before a deploy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/config"
	"github.com/korpuslab/zapytaj/internal/elastic"
	"github.com/korpuslab/zapytaj/internal/enrichment"
	"github.com/korpuslab/zapytaj/internal/ingest"
	"github.com/korpuslab/zapytaj/internal/llm"
	"github.com/korpuslab/zapytaj/internal/nlp"
	"github.com/korpuslab/zapytaj/internal/vectordb"
)

func main() {
	dataPath := flag.String("data", "", "corpus file path (default: configured corpus path)")
	enrich := flag.Bool("enrich", false, "fill missing entities/places/years via NLP and the chat model")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, *dataPath, *enrich); err != nil {
		logger.Fatal("Ingest failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, dataPath string, enrich bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dataPath == "" {
		dataPath = cfg.Corpus.DataPath()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	esClient := elastic.NewClient(elastic.Config{
		URL:        cfg.Elastic.URL,
		Index:      cfg.Elastic.Index,
		Timeout:    cfg.Elastic.Timeout,
		ScrollSize: cfg.Elastic.ScrollPage,
		ScrollKeep: cfg.Elastic.ScrollKeepAlive,
	}, logger)
	qdrantClient := vectordb.NewClient(vectordb.Config{
		URL:        cfg.Qdrant.URL,
		Collection: cfg.Qdrant.Collection,
		Timeout:    cfg.Qdrant.Timeout,
		Dimension:  cfg.Embedder.Dimension,
	}, logger)

	var enricher ingest.Enricher
	if enrich {
		nlpClient := nlp.NewClient(nlp.Config{
			URL:     cfg.NLP.URL,
			Model:   cfg.NLP.Model,
			Timeout: cfg.NLP.Timeout,
		}, logger)
		llmClient := llm.NewClient(llm.Config{
			Host:      cfg.Ollama.Host,
			Model:     cfg.Ollama.Model,
			Timeout:   cfg.Ollama.Timeout,
			RateLimit: cfg.Ollama.RateLimit,
		}, logger)
		enricher = enrichment.New(nlpClient, llmClient, logger)
	}

	loader := ingest.New(esClient, qdrantClient, enricher, cfg.Corpus.IngestBatch, logger)
	if err := loader.Run(ctx, dataPath); err != nil {
		return err
	}
	logger.Info("Ingest finished", zap.String("data", dataPath))
	return nil
}
