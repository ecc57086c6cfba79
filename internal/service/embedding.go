package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/docrag/internal/domain"
	"go.uber.org/zap"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// OversizePolicy decides what happens to inputs above the model's token limit.
type OversizePolicy string

const (
	// OversizeTruncate keeps the leading words that fit and records a warning.
	OversizeTruncate OversizePolicy = "truncate"
	// OversizeReject fails only the offending item.
	OversizeReject OversizePolicy = "reject"
)

// EmbeddingConfig controls batching and oversize handling.
type EmbeddingConfig struct {
	BatchSize      int
	MaxInputTokens int
	Oversize       OversizePolicy
}

// DefaultEmbeddingConfig provides sane defaults for embedding.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BatchSize:      32,
		MaxInputTokens: 512,
		Oversize:       OversizeTruncate,
	}
}

// EmbeddingFailure is one input that could not be embedded.
type EmbeddingFailure struct {
	Index int
	Err   error
}

// EmbeddingResult holds per-item outcomes. Vectors[i] is nil when item i failed.
type EmbeddingResult struct {
	Vectors   [][]float32
	Failures  []EmbeddingFailure
	Warnings  []string
	Truncated int
}

// Succeeded counts the items that have a vector.
func (r *EmbeddingResult) Succeeded() int {
	n := 0
	for _, v := range r.Vectors {
		if v != nil {
			n++
		}
	}
	return n
}

// EmbeddingService turns texts into vectors in bounded batches. A failing
// item never fails its neighbours; only an unavailable model or an expired
// context stops the remaining batches.
type EmbeddingService struct {
	client EmbeddingClient
	cfg    EmbeddingConfig
	logger *zap.Logger
}

// NewEmbeddingService creates a new EmbeddingService instance
func NewEmbeddingService(client EmbeddingClient, cfg EmbeddingConfig, logger *zap.Logger) *EmbeddingService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbeddingConfig().BatchSize
	}
	if cfg.Oversize == "" {
		cfg.Oversize = OversizeTruncate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingService{client: client, cfg: cfg, logger: logger}
}

// Dimensions is the vector size of the underlying model.
func (s *EmbeddingService) Dimensions() int {
	return s.client.Dimensions()
}

// ModelName is the underlying model name.
func (s *EmbeddingService) ModelName() string {
	return s.client.ModelName()
}

// EmbedTexts embeds texts preserving order. The returned error is non-nil only
// when embedding stopped early; the result still carries everything embedded
// before that point, and unprocessed items are listed as failures.
func (s *EmbeddingService) EmbedTexts(ctx context.Context, texts []string) (*EmbeddingResult, error) {
	res := &EmbeddingResult{Vectors: make([][]float32, len(texts))}
	inputs := make([]string, len(texts))
	pending := make([]int, 0, len(texts))

	for i, t := range texts {
		input, warning, err := s.prepare(t)
		if err != nil {
			res.Failures = append(res.Failures, EmbeddingFailure{Index: i, Err: err})
			continue
		}
		if warning != "" {
			res.Truncated++
			res.Warnings = append(res.Warnings, fmt.Sprintf("input %d: %s", i, warning))
			s.logger.Warn("embedding input truncated", zap.Int("index", i), zap.String("detail", warning))
		}
		inputs[i] = input
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(pending))
		batch := pending[start:end]

		if err := ctx.Err(); err != nil {
			fatal := domain.Wrap(domain.ErrEmbeddingUnavailable, err)
			failAll(res, pending[start:], fatal)
			return res, fatal
		}

		batchTexts := make([]string, len(batch))
		for j, idx := range batch {
			batchTexts[j] = inputs[idx]
		}

		vectors, err := s.client.Embed(ctx, batchTexts)
		if err == nil {
			for j, idx := range batch {
				res.Vectors[idx] = vectors[j]
			}
			continue
		}

		if isFatalEmbeddingError(ctx, err) {
			failAll(res, pending[start:], err)
			return res, err
		}

		s.logger.Warn("embedding batch rejected, retrying items individually",
			zap.Int("batch_start", start), zap.Int("batch_size", len(batch)), zap.Error(err))

		for j, idx := range batch {
			if err := s.embedOne(ctx, res, idx, inputs[idx]); err != nil {
				failAll(res, batch[j:], err)
				failAll(res, pending[end:], err)
				return res, err
			}
		}
	}

	return res, nil
}

// EmbedQuery embeds a single query string. Any failure is returned as an embedding error.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	input, warning, err := s.prepare(query)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		s.logger.Warn("query truncated for embedding", zap.String("detail", warning))
	}

	vectors, err := s.client.Embed(ctx, []string{input})
	if err != nil {
		if !errors.Is(err, domain.ErrEmbedding) {
			err = domain.Wrap(domain.ErrEmbeddingUnavailable, err)
		}
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(vectors) != 1 || vectors[0] == nil {
		return nil, domain.Wrapf(domain.ErrEmbedding, "expected one query vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

// embedOne retries a single item. It returns an error only when embedding must stop.
func (s *EmbeddingService) embedOne(ctx context.Context, res *EmbeddingResult, idx int, input string) error {
	vectors, err := s.client.Embed(ctx, []string{input})
	if err == nil {
		res.Vectors[idx] = vectors[0]
		return nil
	}
	if isFatalEmbeddingError(ctx, err) {
		return err
	}

	if errors.Is(err, domain.ErrInputTooLong) && s.cfg.Oversize == OversizeTruncate {
		// the token estimate was optimistic for this input; halve it once
		if words := strings.Fields(input); len(words) > 1 {
			half := len(words) / 2
			retry, retryErr := s.client.Embed(ctx, []string{strings.Join(words[:half], " ")})
			if retryErr == nil {
				res.Vectors[idx] = retry[0]
				res.Truncated++
				res.Warnings = append(res.Warnings, fmt.Sprintf("input %d: truncated to %d words after model rejection", idx, half))
				return nil
			}
			if isFatalEmbeddingError(ctx, retryErr) {
				return retryErr
			}
			err = retryErr
		}
	}

	s.logger.Warn("embedding item failed", zap.Int("index", idx), zap.Error(err))
	res.Failures = append(res.Failures, EmbeddingFailure{Index: idx, Err: err})
	return nil
}

// prepare applies the oversize policy to one input.
func (s *EmbeddingService) prepare(text string) (string, string, error) {
	if strings.TrimSpace(text) == "" {
		return "", "", domain.Wrap(domain.ErrEmbedding, errors.New("empty input"))
	}
	if s.cfg.MaxInputTokens <= 0 {
		return text, "", nil
	}

	words := strings.Fields(text)
	estimated := estimateTokens(len(words))
	if estimated <= s.cfg.MaxInputTokens {
		return text, "", nil
	}

	if s.cfg.Oversize == OversizeReject {
		return "", "", domain.Wrapf(domain.ErrInputTooLong, "estimated %d tokens, limit %d", estimated, s.cfg.MaxInputTokens)
	}

	keep := maxWordsForTokens(s.cfg.MaxInputTokens)
	warning := fmt.Sprintf("truncated from %d to %d words (estimated %d tokens, limit %d)", len(words), keep, estimated, s.cfg.MaxInputTokens)
	return strings.Join(words[:keep], " "), warning, nil
}

func isFatalEmbeddingError(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, domain.ErrEmbeddingUnavailable) || !errors.Is(err, domain.ErrEmbedding)
}

func failAll(res *EmbeddingResult, indices []int, err error) {
	for _, idx := range indices {
		if res.Vectors[idx] != nil || hasFailure(res, idx) {
			continue
		}
		res.Failures = append(res.Failures, EmbeddingFailure{Index: idx, Err: err})
	}
}

func hasFailure(res *EmbeddingResult, idx int) bool {
	for _, f := range res.Failures {
		if f.Index == idx {
			return true
		}
	}
	return false
}

// estimateTokens approximates subword tokens as four per three words.
func estimateTokens(words int) int {
	return (words*4 + 2) / 3
}

func maxWordsForTokens(tokens int) int {
	return max(1, tokens*3/4)
}
