package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the root service configuration. Values come from
// environment variables with defaults, optionally overridden by a
// YAML file named in CONFIG_PATH.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Elastic  ElasticConfig  `mapstructure:"elastic"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	NLP      NLPConfig      `mapstructure:"nlp"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Corpus   CorpusConfig   `mapstructure:"corpus"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Lexicon  LexiconConfig  `mapstructure:"lexicon"`
}

// ServiceConfig contains the HTTP server settings.
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// ElasticConfig points at the lexical index.
type ElasticConfig struct {
	URL             string        `mapstructure:"url"`
	Index           string        `mapstructure:"index"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ScrollPage      int           `mapstructure:"scroll_page"`
	ScrollKeepAlive string        `mapstructure:"scroll_keep_alive"`
}

// QdrantConfig points at the vector index.
type QdrantConfig struct {
	URL        string        `mapstructure:"url"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// OllamaConfig points at the chat model.
type OllamaConfig struct {
	Host      string        `mapstructure:"host"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// NLPConfig points at the language pipeline service (lemmas,
// sentences, named entities).
type NLPConfig struct {
	URL     string        `mapstructure:"url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmbedderConfig points at the sentence embedding service.
type EmbedderConfig struct {
	URL       string        `mapstructure:"url"`
	Model     string        `mapstructure:"model"`
	Dimension int           `mapstructure:"dimension"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CorpusConfig names the NDJSON corpus file used to seed both indexes.
type CorpusConfig struct {
	Dir         string `mapstructure:"dir"`
	DataFile    string `mapstructure:"data_file"`
	IngestBatch int    `mapstructure:"ingest_batch"`
}

// DataPath returns the full path of the corpus file.
func (c CorpusConfig) DataPath() string {
	return filepath.Join(c.Dir, c.DataFile)
}

// StorageConfig names the two files the service owns.
type StorageConfig struct {
	UnresolvedPath string `mapstructure:"unresolved_path"`
	SnapshotPath   string `mapstructure:"snapshot_path"`
}

// PipelineConfig carries the retrieval and filtering knobs.
type PipelineConfig struct {
	SearchSize      int     `mapstructure:"search_size"`
	FusionTopK      int     `mapstructure:"fusion_top_k"`
	ChunkMaxTokens  int     `mapstructure:"chunk_max_tokens"`
	ChunkOverlap    int     `mapstructure:"chunk_overlap"`
	FilterMinTokens int     `mapstructure:"filter_min_tokens"`
	FilterMaxDocs   int     `mapstructure:"filter_max_docs"`
	CosineThreshold float64 `mapstructure:"cosine_threshold"`
	ContextTokens   int     `mapstructure:"context_tokens"`
}

// TracingConfig controls the OTLP exporter.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LexiconConfig names the ambiguity lexicon file. When the file is
// missing the built-in Polish lexicon is used.
type LexiconConfig struct {
	Path string `mapstructure:"path"`
}

// Load builds the configuration from the environment, merging the
// optional CONFIG_PATH file on top of defaults, and validates it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", 8000)
	v.SetDefault("service.graceful_timeout", 15*time.Second)
	v.SetDefault("service.read_timeout", 30*time.Second)
	v.SetDefault("service.write_timeout", 10*time.Minute)

	v.SetDefault("elastic.url", "http://elasticsearch:9200")
	v.SetDefault("elastic.index", "culturax")
	v.SetDefault("elastic.timeout", 10*time.Second)
	v.SetDefault("elastic.scroll_page", 1000)
	v.SetDefault("elastic.scroll_keep_alive", "2m")

	v.SetDefault("qdrant.url", "http://qdrant:6333")
	v.SetDefault("qdrant.collection", "culturax")
	v.SetDefault("qdrant.timeout", 10*time.Second)

	v.SetDefault("ollama.host", "http://ollama:11434")
	v.SetDefault("ollama.model", "gemma2:2b")
	v.SetDefault("ollama.timeout", 120*time.Second)
	v.SetDefault("ollama.rate_limit", 4.0)

	v.SetDefault("nlp.url", "http://nlp:8090")
	v.SetDefault("nlp.model", "pl_core_news_sm")
	v.SetDefault("nlp.timeout", 10*time.Second)

	v.SetDefault("embedder.url", "http://embedder:8080")
	v.SetDefault("embedder.model", "intfloat/multilingual-e5-small")
	v.SetDefault("embedder.dimension", 384)
	v.SetDefault("embedder.timeout", 10*time.Second)

	v.SetDefault("corpus.dir", "data")
	v.SetDefault("corpus.data_file", "culturax_vectors.ndjson")
	v.SetDefault("corpus.ingest_batch", 5)

	v.SetDefault("storage.unresolved_path", "memory/unresolved_queries.json")
	v.SetDefault("storage.snapshot_path", "snapshots/initial_state.json")

	v.SetDefault("pipeline.search_size", 35)
	v.SetDefault("pipeline.fusion_top_k", 15)
	v.SetDefault("pipeline.chunk_max_tokens", 200)
	v.SetDefault("pipeline.chunk_overlap", 30)
	v.SetDefault("pipeline.filter_min_tokens", 15)
	v.SetDefault("pipeline.filter_max_docs", 10)
	v.SetDefault("pipeline.cosine_threshold", 0.55)
	v.SetDefault("pipeline.context_tokens", 250)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")

	v.SetDefault("lexicon.path", "config/lexicon.yaml")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("service.port", "PORT")
	_ = v.BindEnv("elastic.url", "ES_URL")
	_ = v.BindEnv("elastic.index", "ES_INDEX_NAME")
	_ = v.BindEnv("qdrant.url", "QDRANT_URL")
	_ = v.BindEnv("qdrant.collection", "QDRANT_INDEX_NAME")
	_ = v.BindEnv("ollama.host", "OLLAMA_HOST")
	_ = v.BindEnv("ollama.model", "OLLAMA_MODEL_NAME")
	_ = v.BindEnv("ollama.timeout", "LLM_TIMEOUT")
	_ = v.BindEnv("ollama.rate_limit", "LLM_RATE_LIMIT")
	_ = v.BindEnv("nlp.url", "NLP_URL")
	_ = v.BindEnv("nlp.model", "SPACY_MODEL_NAME")
	_ = v.BindEnv("embedder.url", "EMBEDDER_URL")
	_ = v.BindEnv("embedder.model", "TRANSFORMER_MODEL_NAME")
	_ = v.BindEnv("corpus.data_file", "DATA_FILE_NAME")
	_ = v.BindEnv("storage.unresolved_path", "UNRESOLVED_STORAGE_PATH")
	_ = v.BindEnv("storage.snapshot_path", "SNAPSHOT_PATH")
	_ = v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	_ = v.BindEnv("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("lexicon.path", "LEXICON_PATH")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid service port %d", c.Service.Port)
	}
	for name, url := range map[string]string{
		"ES_URL":       c.Elastic.URL,
		"QDRANT_URL":   c.Qdrant.URL,
		"OLLAMA_HOST":  c.Ollama.Host,
		"NLP_URL":      c.NLP.URL,
		"EMBEDDER_URL": c.Embedder.URL,
	} {
		if url == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	if c.Elastic.Index == "" || c.Qdrant.Collection == "" {
		return fmt.Errorf("index names must not be empty")
	}
	if c.Ollama.Model == "" {
		return fmt.Errorf("OLLAMA_MODEL_NAME must not be empty")
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedder dimension must be positive, got %d", c.Embedder.Dimension)
	}
	if c.Corpus.IngestBatch < 1 {
		return fmt.Errorf("ingest batch must be at least 1, got %d", c.Corpus.IngestBatch)
	}
	if c.Storage.UnresolvedPath == "" || c.Storage.SnapshotPath == "" {
		return fmt.Errorf("storage paths must not be empty")
	}
	if c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkMaxTokens {
		return fmt.Errorf("chunk overlap %d must be below chunk size %d",
			c.Pipeline.ChunkOverlap, c.Pipeline.ChunkMaxTokens)
	}
	if c.Pipeline.FusionTopK < 1 || c.Pipeline.SearchSize < 1 {
		return fmt.Errorf("retrieval sizes must be positive")
	}
	if c.Ollama.RateLimit <= 0 {
		return fmt.Errorf("LLM rate limit must be positive, got %f", c.Ollama.RateLimit)
	}
	return nil
}

// EnsureDirs creates the parent directories of the persisted state
// files so that first writes do not fail.
func (c *Config) EnsureDirs() error {
	for _, p := range []string{c.Storage.UnresolvedPath, c.Storage.SnapshotPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create state directory %s: %w", dir, err)
			}
		}
	}
	return nil
}
