package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/telemetry"
	"go.uber.org/zap"
)

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Generator produces an answer from a system and a user message.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
	ModelName() string
}

// QueryStage is a step of the query state machine.
type QueryStage string

const (
	StageReceived         QueryStage = "received"
	StageEmbedded         QueryStage = "embedded"
	StageRetrieved        QueryStage = "retrieved"
	StageFiltered         QueryStage = "filtered"
	StageContextAssembled QueryStage = "context_assembled"
	StageAnswered         QueryStage = "answered"
)

// QueryError reports the stage a query failed in. The wrapped error keeps
// its domain kind.
type QueryError struct {
	Stage QueryStage
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed at %s: %v", e.Stage, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// AnswerState is the terminal state of a query that did not fail.
type AnswerState string

const (
	// AnswerStateAnswered is a grounded answer built from retrieved passages.
	AnswerStateAnswered AnswerState = "answered"
	// AnswerStateNoContext means nothing passed the threshold and no model was called.
	AnswerStateNoContext AnswerState = "no_context"
	// AnswerStateUngrounded is a model answer without retrieved evidence.
	AnswerStateUngrounded AnswerState = "ungrounded"
	// AnswerStateFailed only appears in query logs.
	AnswerStateFailed AnswerState = "failed"
)

// Passage is a retrieved chunk that was placed in the prompt.
type Passage struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Position   int     `json:"position"`
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// QueryTiming breaks down where a query spent its time.
type QueryTiming struct {
	Embed    time.Duration `json:"embed_ns"`
	Retrieve time.Duration `json:"retrieve_ns"`
	Generate time.Duration `json:"generate_ns"`
	Total    time.Duration `json:"total_ns"`
}

// Answer is the result of one query.
type Answer struct {
	Query     string      `json:"query"`
	State     AnswerState `json:"state"`
	Text      string      `json:"answer"`
	Grounded  bool        `json:"grounded"`
	Citations []string    `json:"citations"`
	Passages  []Passage   `json:"passages"`
	// Retrieved counts the passages that passed the threshold, used or not.
	Retrieved int         `json:"retrieved"`
	Model     string      `json:"model,omitempty"`
	Timing    QueryTiming `json:"timing"`
}

// QueryConfig holds retrieval and prompt settings.
type QueryConfig struct {
	Collection          string
	TopK                int
	SimilarityThreshold float64
	MaxContextChars     int
	AllowUngrounded     bool
	Language            PromptLanguage
	Timeout             time.Duration
}

// DefaultQueryConfig provides sane defaults for querying.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Collection:          "rag_chunks",
		TopK:                5,
		SimilarityThreshold: 0.7,
		MaxContextChars:     12000,
		Language:            PromptEnglish,
		Timeout:             60 * time.Second,
	}
}

// QueryOptions override retrieval settings for one query. Zero values keep the configured ones.
type QueryOptions struct {
	TopK      int
	Threshold *float64
}

// QueryEngine answers questions from the indexed documents, one pass per
// question with no state kept between questions.
type QueryEngine struct {
	embedder  QueryEmbedder
	index     IndexSearcher
	generator Generator
	queryLogs QueryLogRepository
	cfg       QueryConfig
	logger    *zap.Logger
}

// NewQueryEngine creates a new QueryEngine instance
func NewQueryEngine(embedder QueryEmbedder, index IndexSearcher, generator Generator, cfg QueryConfig, logger *zap.Logger) *QueryEngine {
	defaults := DefaultQueryConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.Language == "" {
		cfg.Language = defaults.Language
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryEngine{
		embedder:  embedder,
		index:     index,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// WithQueryLog records every query through repo. Logging failures are only logged.
func (e *QueryEngine) WithQueryLog(repo QueryLogRepository) *QueryEngine {
	e.queryLogs = repo
	return e
}

// Config returns the engine's configuration.
func (e *QueryEngine) Config() QueryConfig {
	return e.cfg
}

// Query runs the question through embed, retrieve, filter, assemble and
// generate. Failures are *QueryError values wrapping a domain error kind.
func (e *QueryEngine) Query(ctx context.Context, question string, opts QueryOptions) (*Answer, error) {
	started := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &QueryError{Stage: StageReceived, Err: domain.ErrInvalidQuery}
	}

	topK := e.cfg.TopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	threshold := e.cfg.SimilarityThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	ctx, span := telemetry.StartSpan(ctx, "QueryEngine.Query", telemetry.SpanAttributes{
		Collection: e.cfg.Collection,
		Operation:  "query",
	})
	defer span.End()

	answer, results, err := e.run(ctx, question, topK, threshold, started)
	e.logQuery(ctx, question, topK, threshold, answer, results, err, time.Since(started))
	if err != nil {
		span.SetError(err)
		e.logger.Warn("query failed", zap.Error(err), zap.Duration("duration", time.Since(started)))
		return nil, err
	}

	span.SetData("state", string(answer.State))
	e.logger.Info("query answered",
		zap.String("state", string(answer.State)),
		zap.Int("retrieved", answer.Retrieved),
		zap.Int("passages", len(answer.Passages)),
		zap.Duration("duration", answer.Timing.Total))
	return answer, nil
}

func (e *QueryEngine) run(ctx context.Context, question string, topK int, threshold float64, started time.Time) (*Answer, []domain.RetrievalResult, error) {
	tmpl := templateFor(e.cfg.Language)
	answer := &Answer{Query: question, Citations: []string{}, Passages: []Passage{}}

	// EMBEDDED
	t := time.Now()
	vector, err := e.embedder.EmbedQuery(ctx, question)
	answer.Timing.Embed = time.Since(t)
	if err != nil {
		return nil, nil, &QueryError{Stage: StageEmbedded, Err: err}
	}

	// RETRIEVED
	t = time.Now()
	results, err := e.index.Search(ctx, e.cfg.Collection, vector, topK, threshold)
	answer.Timing.Retrieve = time.Since(t)
	if err != nil {
		return nil, nil, &QueryError{Stage: StageRetrieved, Err: err}
	}

	// FILTERED
	results = filterByThreshold(results, threshold, topK)
	answer.Retrieved = len(results)
	if len(results) == 0 {
		if !e.cfg.AllowUngrounded {
			answer.State = AnswerStateNoContext
			answer.Text = tmpl.noContext
			answer.Timing.Total = time.Since(started)
			return answer, results, nil
		}
		return e.generate(ctx, answer, tmpl.ungroundedSystem, question, AnswerStateUngrounded, started, results)
	}

	// CONTEXT_ASSEMBLED
	contextText, used := assembleContext(results, e.cfg.MaxContextChars)
	if dropped := len(results) - len(used); dropped > 0 {
		e.logger.Debug("context limit reached, dropped lowest-ranked passages", zap.Int("dropped", dropped))
	}
	for _, r := range used {
		answer.Passages = append(answer.Passages, Passage{
			DocumentID: r.Chunk.DocumentID,
			ChunkID:    r.Chunk.ID,
			Position:   r.Chunk.Position,
			Rank:       r.Rank,
			Score:      r.Score,
			Text:       r.Chunk.Text,
		})
	}
	answer.Citations = citations(used)
	answer.Grounded = true

	// ANSWERED
	return e.generate(ctx, answer, tmpl.system, fmt.Sprintf(tmpl.user, contextText, question), AnswerStateAnswered, started, results)
}

func (e *QueryEngine) generate(ctx context.Context, answer *Answer, system, user string, state AnswerState, started time.Time, results []domain.RetrievalResult) (*Answer, []domain.RetrievalResult, error) {
	t := time.Now()
	text, err := e.generator.Generate(ctx, system, user)
	answer.Timing.Generate = time.Since(t)
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = domain.Wrap(domain.ErrGeneration, err)
		}
		return nil, results, &QueryError{Stage: StageAnswered, Err: err}
	}
	answer.State = state
	answer.Text = text
	answer.Model = e.generator.ModelName()
	answer.Timing.Total = time.Since(started)
	return answer, results, nil
}

// filterByThreshold drops anything below threshold and caps at topK.
func filterByThreshold(results []domain.RetrievalResult, threshold float64, topK int) []domain.RetrievalResult {
	kept := make([]domain.RetrievalResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}

func (e *QueryEngine) logQuery(ctx context.Context, question string, topK int, threshold float64, answer *Answer, results []domain.RetrievalResult, queryErr error, took time.Duration) {
	if e.queryLogs == nil {
		return
	}
	entry := QueryLogEntry{
		Collection: e.cfg.Collection,
		Query:      question,
		State:      AnswerStateFailed,
		TopK:       topK,
		Threshold:  threshold,
		DurationMs: int(took.Milliseconds()),
	}
	if queryErr == nil && answer != nil {
		entry.State = answer.State
	}
	for _, r := range results {
		entry.Results = append(entry.Results, QueryLogResult{
			ChunkID:    r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Score:      r.Score,
			Rank:       r.Rank,
		})
	}

	// the query context may already be past its deadline
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := e.queryLogs.CreateQueryLog(logCtx, entry); err != nil {
		e.logger.Warn("failed to record query log", zap.Error(err))
	}
}
