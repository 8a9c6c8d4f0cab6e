// Command zapytaj runs the Polish question-answering service: hybrid
// retrieval over Elasticsearch and Qdrant, grounded answers from a
// local chat model, and a durable memory of queries it could not
// answer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/config"
	"github.com/korpuslab/zapytaj/internal/detector"
	"github.com/korpuslab/zapytaj/internal/elastic"
	"github.com/korpuslab/zapytaj/internal/embedding"
	"github.com/korpuslab/zapytaj/internal/enrichment"
	"github.com/korpuslab/zapytaj/internal/filtering"
	"github.com/korpuslab/zapytaj/internal/health"
	"github.com/korpuslab/zapytaj/internal/ingest"
	"github.com/korpuslab/zapytaj/internal/llm"
	"github.com/korpuslab/zapytaj/internal/memory"
	"github.com/korpuslab/zapytaj/internal/nlp"
	"github.com/korpuslab/zapytaj/internal/orchestrator"
	"github.com/korpuslab/zapytaj/internal/reasoning"
	"github.com/korpuslab/zapytaj/internal/server"
	"github.com/korpuslab/zapytaj/internal/tracing"
	"github.com/korpuslab/zapytaj/internal/vectordb"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("Service failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.Endpoint,
	}, logger); err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}()

	lexicon := config.NewLexiconStore(cfg.Lexicon.Path, logger)
	if err := lexicon.Watch(); err != nil {
		logger.Warn("Lexicon hot reload unavailable", zap.Error(err))
	}
	defer lexicon.Close()

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
	llmClient := llm.NewClient(llm.Config{
		Host:      cfg.Ollama.Host,
		Model:     cfg.Ollama.Model,
		Timeout:   cfg.Ollama.Timeout,
		RateLimit: cfg.Ollama.RateLimit,
	}, logger)
	nlpClient := nlp.NewClient(nlp.Config{
		URL:     cfg.NLP.URL,
		Model:   cfg.NLP.Model,
		Timeout: cfg.NLP.Timeout,
	}, logger)
	embedClient := embedding.NewClient(embedding.Config{
		URL:       cfg.Embedder.URL,
		Model:     cfg.Embedder.Model,
		Dimension: cfg.Embedder.Dimension,
		Timeout:   cfg.Embedder.Timeout,
	}, logger)

	if err := llmClient.EnsureModel(ctx); err != nil {
		// The model may arrive later; asks degrade until it does.
		logger.Warn("Chat model not ready",
			zap.String("model", llmClient.Model()), zap.Error(err))
	}

	enricher := enrichment.New(nlpClient, llmClient, logger)

	loader := ingest.New(esClient, qdrantClient, enricher, cfg.Corpus.IngestBatch, logger)
	if err := loader.Run(ctx, cfg.Corpus.DataPath()); err != nil {
		return fmt.Errorf("corpus bootstrap: %w", err)
	}

	mem, err := memory.Open(cfg.Storage.UnresolvedPath, logger)
	if err != nil {
		return fmt.Errorf("open unresolved memory: %w", err)
	}
	det, err := detector.New(ctx, esClient, cfg.Storage.SnapshotPath, logger)
	if err != nil {
		return fmt.Errorf("init change detector: %w", err)
	}

	orch := orchestrator.New(
		orchestrator.Config{
			SearchSize:     cfg.Pipeline.SearchSize,
			FusionTopK:     cfg.Pipeline.FusionTopK,
			ChunkMaxTokens: cfg.Pipeline.ChunkMaxTokens,
			ChunkOverlap:   cfg.Pipeline.ChunkOverlap,
			ContextTokens:  cfg.Pipeline.ContextTokens,
		},
		nlpClient,
		embedClient,
		llmClient,
		esClient,
		qdrantClient,
		mem,
		det,
		enricher,
		filtering.New(embedClient, cfg.Pipeline.FilterMinTokens, cfg.Pipeline.FilterMaxDocs, cfg.Pipeline.CosineThreshold, logger),
		reasoning.NewDecomposer(llmClient, logger),
		reasoning.NewClarifier(llmClient, lexicon, logger),
		reasoning.NewValidator(0),
		logger,
	)

	healthMgr := health.NewManager(5*time.Second, logger)
	healthMgr.Register(health.NewElasticChecker(esClient))
	healthMgr.Register(health.NewQdrantChecker(qdrantClient))
	healthMgr.Register(health.NewOllamaChecker(llmClient))
	healthMgr.Register(health.NewNLPChecker(nlpClient))
	healthMgr.Register(health.NewEmbedderChecker(embedClient))

	srv := server.New(orch, mem, det, healthMgr, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Service.ReadTimeout,
		WriteTimeout: cfg.Service.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			zap.Int("port", cfg.Service.Port),
			zap.String("model", llmClient.Model()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
