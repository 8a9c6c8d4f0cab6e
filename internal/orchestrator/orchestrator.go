// Package orchestrator runs the end-to-end retrieval and reasoning
// pipeline: analyze, clarify, decompose, retrieve, ask, validate, and
// retry under named strategies.
package orchestrator

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/korpuslab/zapytaj/internal/chunking"
	"github.com/korpuslab/zapytaj/internal/detector"
	"github.com/korpuslab/zapytaj/internal/filtering"
	"github.com/korpuslab/zapytaj/internal/fusion"
	"github.com/korpuslab/zapytaj/internal/llm"
	"github.com/korpuslab/zapytaj/internal/memory"
	"github.com/korpuslab/zapytaj/internal/metrics"
	"github.com/korpuslab/zapytaj/internal/models"
	"github.com/korpuslab/zapytaj/internal/nlp"
	"github.com/korpuslab/zapytaj/internal/query"
	"github.com/korpuslab/zapytaj/internal/reasoning"
)

// Retry strategy names accepted from callers.
const (
	StrategyModifyPrompt         = "modify_prompt"
	StrategyChangeInterpretation = "change_interpretation"
	StrategySaveToMemory         = "save_to_memory"
)

// DefaultStrategies is the retry order used when the caller sends
// none.
var DefaultStrategies = []string{
	StrategyChangeInterpretation,
	StrategyModifyPrompt,
	StrategySaveToMemory,
}

// NLP is the language pipeline handle.
type NLP interface {
	Analyze(ctx context.Context, text string) (*nlp.Analysis, error)
	Sentences(ctx context.Context, text string) ([]string, error)
}

// Embedder produces L2-normalized query vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chat is the LLM handle.
type Chat interface {
	Chat(ctx context.Context, purpose, prompt string, opts llm.Options) (string, error)
}

// Lexical is the keyword index handle.
type Lexical interface {
	Search(ctx context.Context, q string, meta *models.Metadata, size int) ([]models.Hit, error)
}

// Vector is the dense index handle.
type Vector interface {
	Search(ctx context.Context, vec []float32, limit int) ([]models.Hit, error)
}

// Memory is the unresolved-query store handle.
type Memory interface {
	Add(q string, meta models.Metadata) (uint64, error)
	ByID(id uint64) (memory.Entry, error)
	Pending() []memory.Entry
	IncrementRetry(id uint64) error
	MarkResolved(id uint64) error
	ShouldSaveAsUnresolved(answer string, usedChunks, citations int) bool
}

// Detector finds documents that arrived after the corpus snapshot.
type Detector interface {
	NewDocuments(ctx context.Context) ([]detector.DocPreview, error)
}

// Enricher extracts the metadata hints persisted with unresolved
// queries.
type Enricher interface {
	FromQuery(ctx context.Context, text string) models.Metadata
}

// Config carries the pipeline knobs.
type Config struct {
	SearchSize     int // per-backend result cap
	FusionTopK     int
	ChunkMaxTokens int
	ChunkOverlap   int
	ContextTokens  int // prompt context budget
	PromptCores    []string
}

func (c *Config) applyDefaults() {
	if c.SearchSize == 0 {
		c.SearchSize = 35
	}
	if c.FusionTopK == 0 {
		c.FusionTopK = 15
	}
	if c.ChunkMaxTokens == 0 {
		c.ChunkMaxTokens = 200
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 30
	}
	if c.ContextTokens == 0 {
		c.ContextTokens = 250
	}
	if len(c.PromptCores) == 0 {
		c.PromptCores = reasoning.PromptCores
	}
}

// Orchestrator wires the pipeline stages together. All handles are
// set at construction and safe for concurrent requests.
type Orchestrator struct {
	cfg      Config
	nlp      NLP
	embedder Embedder
	chat     Chat
	lexical  Lexical
	vector   Vector
	mem      Memory
	det      Detector
	enricher Enricher

	filter     *filtering.Filter
	decomposer *reasoning.Decomposer
	clarifier  *reasoning.Clarifier
	validator  *reasoning.Validator

	log *zap.Logger
}

// New builds the orchestrator.
func New(
	cfg Config,
	nlpClient NLP,
	embedder Embedder,
	chat Chat,
	lexical Lexical,
	vector Vector,
	mem Memory,
	det Detector,
	enricher Enricher,
	filter *filtering.Filter,
	decomposer *reasoning.Decomposer,
	clarifier *reasoning.Clarifier,
	validator *reasoning.Validator,
	logger *zap.Logger,
) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:        cfg,
		nlp:        nlpClient,
		embedder:   embedder,
		chat:       chat,
		lexical:    lexical,
		vector:     vector,
		mem:        mem,
		det:        det,
		enricher:   enricher,
		filter:     filter,
		decomposer: decomposer,
		clarifier:  clarifier,
		validator:  validator,
		log:        logger,
	}
}

// Ask answers one query, retrying under the given strategies. The
// caller's strategy slice is never mutated. A nil strategy list takes
// the defaults.
func (o *Orchestrator) Ask(ctx context.Context, userQuery string, strategies []string) (*models.Result, error) {
	start := time.Now()
	if strategies == nil {
		strategies = DefaultStrategies
	}
	result, valid, err := o.process(ctx, userQuery, strategies, true)
	metrics.AskDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.AskRequests.WithLabelValues("error").Inc()
	case valid:
		metrics.AskRequests.WithLabelValues("valid").Inc()
	default:
		metrics.AskRequests.WithLabelValues("unresolved").Inc()
	}
	return result, err
}

// Retry re-runs the pipeline for a stored unresolved query, without
// re-persisting it. On a valid answer the entry is marked resolved.
func (o *Orchestrator) Retry(ctx context.Context, id uint64) (*models.Result, bool, error) {
	entry, err := o.mem.ByID(id)
	if err != nil {
		return nil, false, err
	}
	if err := o.mem.IncrementRetry(id); err != nil {
		return nil, false, err
	}

	result, valid, err := o.process(ctx, entry.Query, replayStrategies(), false)
	if err != nil {
		return result, false, err
	}
	if valid {
		if err := o.mem.MarkResolved(id); err != nil {
			return result, valid, err
		}
		o.log.Info("Unresolved query answered on retry", zap.Uint64("id", id))
	}
	return result, valid, nil
}

// RetryOutcome is one replayed entry from RetryAll.
type RetryOutcome struct {
	ID          uint64         `json:"id"`
	Query       string         `json:"query"`
	MatchedDocs []uint64       `json:"matched_docs"`
	Resolved    bool           `json:"resolved"`
	Result      *models.Result `json:"result"`
}

// RetryAll replays every pending query that matches at least one new
// document, returning the accumulated outcomes.
func (o *Orchestrator) RetryAll(ctx context.Context) ([]RetryOutcome, error) {
	newDocs, err := o.det.NewDocuments(ctx)
	if err != nil {
		return nil, err
	}

	var outcomes []RetryOutcome
	for _, entry := range o.mem.Pending() {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		match, matchedIDs := detector.MatchQuery(entry, newDocs)
		if !match {
			continue
		}
		if err := o.mem.IncrementRetry(entry.ID); err != nil {
			o.log.Warn("Retry count update failed", zap.Uint64("id", entry.ID), zap.Error(err))
		}

		result, valid, err := o.process(ctx, entry.Query, replayStrategies(), false)
		if err != nil {
			o.log.Warn("Replay failed", zap.Uint64("id", entry.ID), zap.Error(err))
			continue
		}
		if valid {
			if err := o.mem.MarkResolved(entry.ID); err != nil {
				o.log.Warn("Marking resolved failed", zap.Uint64("id", entry.ID), zap.Error(err))
			}
		}
		outcomes = append(outcomes, RetryOutcome{
			ID:          entry.ID,
			Query:       entry.Query,
			MatchedDocs: matchedIDs,
			Resolved:    valid,
			Result:      result,
		})
	}
	return outcomes, nil
}

// replayStrategies is the default order minus save_to_memory, so a
// replay never duplicates the entry it came from.
func replayStrategies() []string {
	return []string{StrategyChangeInterpretation, StrategyModifyPrompt}
}

// process runs the full state machine for one request. It returns
// the result, whether the final answer passed validation, and an
// error only on cancellation.
func (o *Orchestrator) process(ctx context.Context, userQuery string, strategies []string, persist bool) (*models.Result, bool, error) {
	result := &models.Result{OriginalQuery: userQuery}

	analysis, err := o.nlp.Analyze(ctx, userQuery)
	if err != nil {
		o.log.Warn("Query analysis degraded, continuing without NER", zap.Error(err))
		analysis = nil
	}
	features := query.Analyze(userQuery, analysis)
	weights := query.ChooseWeights(features)
	boostMeta := metaFromFeatures(userQuery, features)

	clarification := o.clarifier.Clarify(ctx, userQuery)
	var interpretations []string
	if clarification.NeedsClarification {
		result.Clarification = &clarification
		for _, interp := range clarification.Interpretations {
			interpretations = append(interpretations, interp.Clarification)
		}
		o.log.Info("Ambiguity detected",
			zap.String("query", userQuery),
			zap.Int("interpretations", len(interpretations)))
	}

	interpIdx := 0
	finalQuery := userQuery
	if len(interpretations) > 0 {
		finalQuery = userQuery + " " + interpretations[interpIdx]
	}

	coreIdx := 0
	o.runPipeline(ctx, result, finalQuery, features, weights, boostMeta)
	o.askModel(ctx, result, finalQuery, coreIdx)
	valid := o.evaluate(result)

	// Strategies are consumed from a local copy, front to back, each
	// advancing through its own bounded list before being dropped.
	strats := append([]string(nil), strategies...)
	for !valid {
		if ctx.Err() != nil {
			return result, false, ctx.Err()
		}
		if len(strats) == 0 {
			return result, false, o.persistUnresolved(ctx, userQuery, persist)
		}

		switch strats[0] {
		case StrategyModifyPrompt:
			coreIdx++
			if coreIdx >= len(o.cfg.PromptCores) {
				strats = strats[1:]
				continue
			}
			metrics.RetryStrategyActivations.WithLabelValues(StrategyModifyPrompt).Inc()
			o.log.Info("Retrying with next prompt core", zap.Int("core", coreIdx))
			o.askModel(ctx, result, finalQuery, coreIdx)
			valid = o.evaluate(result)

		case StrategyChangeInterpretation:
			interpIdx++
			if interpIdx >= len(interpretations) {
				strats = strats[1:]
				continue
			}
			metrics.RetryStrategyActivations.WithLabelValues(StrategyChangeInterpretation).Inc()
			finalQuery = userQuery + " " + interpretations[interpIdx]
			o.log.Info("Retrying with next interpretation",
				zap.Int("interpretation", interpIdx),
				zap.String("query", finalQuery))
			o.runPipeline(ctx, result, finalQuery, features, weights, boostMeta)
			o.askModel(ctx, result, finalQuery, coreIdx)
			valid = o.evaluate(result)

		case StrategySaveToMemory:
			metrics.RetryStrategyActivations.WithLabelValues(StrategySaveToMemory).Inc()
			return result, false, o.persistUnresolved(ctx, userQuery, persist)

		default:
			o.log.Warn("Unknown retry strategy, saving to memory",
				zap.String("strategy", strats[0]))
			return result, false, o.persistUnresolved(ctx, userQuery, persist)
		}
	}
	return result, true, nil
}

// runPipeline fills result with the retrieved, fused, chunked, and
// filtered context for finalQuery: decompose, retrieve both backends
// per sub-query in parallel, fuse, chunk, dedupe by max score, sort,
// filter, and pack the token budget.
func (o *Orchestrator) runPipeline(ctx context.Context, result *models.Result, finalQuery string, features query.Features, weights query.Weights, boostMeta *models.Metadata) {
	decomposition := o.decomposer.Decompose(ctx, finalQuery, features)
	result.Decomposition = &decomposition

	queries := append([]string{finalQuery}, decomposition.Subs...)

	// Parallel per sub-query; slot indices keep the fusion order
	// deterministic (0 = the main query, then decomposition order).
	chunkSlots := make([][]models.Chunk, len(queries))
	vecSlots := make([][]float32, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			chunkSlots[i], vecSlots[i] = o.retrieveOne(gctx, q, weights, boostMeta)
			return nil
		})
	}
	_ = g.Wait()

	queryVec := vecSlots[0]

	// Dedupe identical chunk texts keeping the best fused score.
	best := make(map[string]float64)
	var order []string
	for _, slot := range chunkSlots {
		for _, chunk := range slot {
			if prev, ok := best[chunk.Text]; !ok {
				best[chunk.Text] = chunk.Score
				order = append(order, chunk.Text)
			} else if chunk.Score > prev {
				best[chunk.Text] = chunk.Score
			}
		}
	}
	merged := make([]models.Chunk, 0, len(order))
	for _, text := range order {
		merged = append(merged, models.Chunk{Text: text, Score: best[text]})
	}
	sortChunksByScore(merged)

	filtered, fstats := o.filter.Apply(ctx, merged, finalQuery, queryVec, features)

	var used []models.Chunk
	usedTokens := 0
	for _, chunk := range filtered {
		n := len(query.TokenizeWithPunct(chunk.Text))
		if usedTokens+n > o.cfg.ContextTokens {
			break
		}
		used = append(used, chunk)
		usedTokens += n
	}

	result.Chunks = used
	result.Stats.InputDocs = fstats.InputDocs
	result.Stats.KeptDocs = fstats.KeptDocs
	result.Stats.RejectedShort = fstats.RejectedShort
	result.Stats.RejectedOverlap = fstats.RejectedOverlap
	result.Stats.Overlaps = fstats.Overlaps
	result.Stats.TokensUsed = usedTokens
	metrics.ContextTokensUsed.Observe(float64(usedTokens))

	o.log.Debug("Context assembled",
		zap.Int("sub_queries", len(queries)),
		zap.Int("input_chunks", fstats.InputDocs),
		zap.Int("used_chunks", len(used)),
		zap.Int("tokens", usedTokens),
		zap.Float64("lexical_weight", weights.Lexical),
		zap.Float64("dense_weight", weights.Dense))
}

// retrieveOne runs both backends for one sub-query and chunks the
// fused documents. Either backend failing degrades to its empty list.
func (o *Orchestrator) retrieveOne(ctx context.Context, q string, weights query.Weights, boostMeta *models.Metadata) ([]models.Chunk, []float32) {
	analysis, err := o.nlp.Analyze(ctx, q)
	if err != nil {
		o.log.Warn("Keyword extraction degraded to raw tokens", zap.Error(err))
		analysis = nil
	}
	keywordQuery := query.KeywordQuery(q, analysis)

	vec, err := o.embedder.Embed(ctx, query.EmbedQuery(q))
	if err != nil {
		o.log.Warn("Query embedding failed, dense side skipped", zap.Error(err))
		vec = nil
	}

	var lexHits, denseHits []models.Hit
	if keywordQuery != "" {
		lexHits, err = o.lexical.Search(ctx, keywordQuery, boostMeta, o.cfg.SearchSize)
		if err != nil {
			o.log.Warn("Lexical search failed, continuing with dense side", zap.Error(err))
			lexHits = nil
		}
	}
	if vec != nil {
		denseHits, err = o.vector.Search(ctx, vec, o.cfg.SearchSize)
		if err != nil {
			o.log.Warn("Vector search failed, continuing with lexical side", zap.Error(err))
			denseHits = nil
		}
	}

	fused := fusion.RRF(lexHits, denseHits, weights.Lexical, weights.Dense, o.cfg.FusionTopK)

	var chunks []models.Chunk
	for _, doc := range fused {
		sentences := o.sentences(ctx, doc.Text)
		for _, text := range chunking.BySentences(sentences, o.cfg.ChunkMaxTokens, o.cfg.ChunkOverlap) {
			chunks = append(chunks, models.Chunk{Text: text, Score: doc.Score})
		}
	}
	return chunks, vec
}

// sentences asks the NLP pipeline for the sentence split, degrading
// to a punctuation split when the pipeline is down.
func (o *Orchestrator) sentences(ctx context.Context, text string) []string {
	split, err := o.nlp.Sentences(ctx, text)
	if err == nil && len(split) > 0 {
		return split
	}
	if err != nil {
		o.log.Warn("Sentence split degraded", zap.Error(err))
	}
	return fallbackSentences(text)
}

var sentenceBoundaryRE = regexp.MustCompile(`(?s)(.*?[.?!])\s+`)

// fallbackSentences splits on sentence-ending punctuation.
func fallbackSentences(text string) []string {
	var out []string
	rest := text
	for {
		loc := sentenceBoundaryRE.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		out = append(out, strings.TrimSpace(rest[loc[2]:loc[3]]))
		rest = rest[loc[1]:]
	}
	if trimmed := strings.TrimSpace(rest); trimmed != "" {
		out = append(out, trimmed)
	}
	return out
}

// askModel sends the prompt under the given core and records the
// answer. A failed or timed-out call leaves an empty answer, which
// validation rejects.
func (o *Orchestrator) askModel(ctx context.Context, result *models.Result, finalQuery string, coreIdx int) {
	texts := chunkTexts(result.Chunks)
	prompt := reasoning.BuildPrompt(texts, o.cfg.PromptCores[coreIdx], finalQuery)

	answer, err := o.chat.Chat(ctx, "answer", prompt, llm.Options{Temperature: reasoning.AnswerTemperature})
	if err != nil {
		o.log.Warn("Answer call failed", zap.Error(err), zap.Int("core", coreIdx))
		answer = ""
	}
	result.Answer = answer
	result.Stats.Citations = query.CountCitations(answer)
}

// evaluate applies the unresolved predicate and citation grounding.
func (o *Orchestrator) evaluate(result *models.Result) bool {
	if o.mem.ShouldSaveAsUnresolved(result.Answer, len(result.Chunks), result.Stats.Citations) {
		o.log.Warn("Model could not answer from the given fragments")
		metrics.AnswerValidations.WithLabelValues("no_answer").Inc()
		return false
	}
	if !o.validator.ValidateAnswer(result.Answer, chunkTexts(result.Chunks)) {
		o.log.Warn("Answer cited text not grounded in its fragments")
		metrics.AnswerValidations.WithLabelValues("ungrounded").Inc()
		return false
	}
	metrics.AnswerValidations.WithLabelValues("valid").Inc()
	return true
}

// persistUnresolved saves the original query with its enriched hints.
// Replays pass persist=false so a failed replay never duplicates the
// stored entry.
func (o *Orchestrator) persistUnresolved(ctx context.Context, userQuery string, persist bool) error {
	if !persist {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	meta := o.enricher.FromQuery(ctx, userQuery)
	if _, err := o.mem.Add(userQuery, meta); err != nil {
		o.log.Error("Persisting unresolved query failed", zap.Error(err))
		return err
	}
	return nil
}

var queryYearRE = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// metaFromFeatures builds the lexical boost terms from the query's
// named entities and literal years.
func metaFromFeatures(q string, f query.Features) *models.Metadata {
	meta := &models.Metadata{}
	for _, ent := range f.Entities {
		switch ent.Label {
		case "persName", "orgName":
			meta.Entities = append(meta.Entities, ent.Text)
		case "placeName", "geogName":
			meta.Places = append(meta.Places, ent.Text)
		}
	}
	for _, m := range queryYearRE.FindAllString(q, -1) {
		if y, err := strconv.Atoi(m); err == nil {
			meta.Years = append(meta.Years, y)
		}
	}
	return meta
}

func chunkTexts(chunks []models.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

// sortChunksByScore orders descending, stable.
func sortChunksByScore(chunks []models.Chunk) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j].Score > chunks[j-1].Score; j-- {
			chunks[j], chunks[j-1] = chunks[j-1], chunks[j]
		}
	}
}
