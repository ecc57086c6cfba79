package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/cloo-solutions/docrag/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel matches the sentence-transformers model most local servers ship with
	DefaultEmbeddingModel = "all-MiniLM-L6-v2"
	// DefaultEmbeddingDimensions is the vector size of DefaultEmbeddingModel
	DefaultEmbeddingDimensions = 384
	// DefaultBaseURL points at a local OpenAI-compatible server
	DefaultBaseURL = "http://localhost:1234/v1"
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrCountMismatch is returned when the server returns a different number of vectors than inputs
	ErrCountMismatch = errors.New("embedding count does not match input count")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client wraps an embedding API with dimension checks and error classification.
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
}

type OpenAIAdapter struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	chatModel      string
}

// NewOpenAIAdapter creates an adapter for an OpenAI-compatible endpoint.
func NewOpenAIAdapter(baseURL, apiKey, embeddingModel, chatModel string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIAdapter{
		client:         openai.NewClientWithConfig(cfg),
		embeddingModel: openai.EmbeddingModel(embeddingModel),
		chatModel:      chatModel,
	}
}

// CreateEmbeddings calls the embeddings endpoint and returns vectors in input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.embeddingModel,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

type Config struct {
	BaseURL             string
	APIKey              string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
}

// NewClientWithConfig creates an embedding client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	return NewClientWithAPI(NewOpenAIAdapter(baseURLOrDefault(cfg.BaseURL), cfg.APIKey, modelOrDefault(cfg.EmbeddingModel), cfg.ChatModel), cfg.EmbeddingModel, cfg.EmbeddingDimensions)
}

// NewClientWithAPI creates an embedding client around any EmbeddingAPI.
func NewClientWithAPI(api EmbeddingAPI, model string, dimensions int) *Client {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:        api,
		model:      modelOrDefault(model),
		dimensions: dimensions,
	}
}

// Dimensions is the vector size this client produces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// ModelName is the embedding model requested from the server.
func (c *Client) ModelName() string {
	return c.model
}

// Embed embeds texts in one request. Vectors are returned in input order.
// Errors are *domain.DomainError kinds: ErrEmbeddingUnavailable when the
// server cannot serve any request, ErrInputTooLong or ErrEmbedding when the
// request itself was rejected.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, domain.Wrap(domain.ErrEmbedding, ErrEmptyText)
		}
	}

	vectors, err := c.api.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, ClassifyEmbeddingError(err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.Wrap(domain.ErrEmbedding, ErrCountMismatch)
	}
	for i, v := range vectors {
		if len(v) != c.dimensions {
			return nil, domain.Wrapf(domain.ErrEmbedding, "%w: item %d has %d, expected %d", ErrWrongDimensions, i, len(v), c.dimensions)
		}
	}

	return vectors, nil
}

// ClassifyEmbeddingError maps transport and API errors to embedding error kinds.
func ClassifyEmbeddingError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Wrap(domain.ErrEmbeddingUnavailable, err)
	}

	status, message := httpStatus(err)
	switch {
	case status == 0:
		if errors.Is(err, ErrCountMismatch) {
			return domain.Wrap(domain.ErrEmbedding, err)
		}
		// no HTTP response at all: connection refused, DNS, TLS
		return domain.Wrap(domain.ErrEmbeddingUnavailable, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.Wrap(domain.ErrEmbeddingUnavailable, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
		return domain.Wrap(domain.ErrEmbeddingUnavailable, err)
	case status == http.StatusRequestEntityTooLarge || looksTooLong(message):
		return domain.Wrap(domain.ErrInputTooLong, err)
	default:
		return domain.Wrap(domain.ErrEmbedding, err)
	}
}

func httpStatus(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, reqErr.Error()
	}
	return 0, err.Error()
}

func looksTooLong(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "too long") ||
		strings.Contains(m, "maximum context length") ||
		strings.Contains(m, "token limit") ||
		strings.Contains(m, "too many tokens")
}

func baseURLOrDefault(u string) string {
	if u == "" {
		return DefaultBaseURL
	}
	return u
}

func modelOrDefault(m string) string {
	if m == "" {
		return DefaultEmbeddingModel
	}
	return m
}
