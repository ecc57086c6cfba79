package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingClient mocks the embedding model client
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbeddingClient) Dimensions() int   { return 2 }
func (m *MockEmbeddingClient) ModelName() string { return "mock-embed" }

func vectorsFor(texts ...string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out
}

func TestEmbeddingService_EmbedTexts_Batches(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	svc := NewEmbeddingService(mockClient, EmbeddingConfig{BatchSize: 2}, nil)
	ctx := context.Background()

	mockClient.On("Embed", ctx, []string{"a", "bb"}).Return(vectorsFor("a", "bb"), nil).Once()
	mockClient.On("Embed", ctx, []string{"ccc"}).Return(vectorsFor("ccc"), nil).Once()

	res, err := svc.EmbedTexts(ctx, []string{"a", "bb", "ccc"})

	require.NoError(t, err)
	assert.Equal(t, vectorsFor("a", "bb", "ccc"), res.Vectors)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 3, res.Succeeded())
	mockClient.AssertExpectations(t)
}

func TestEmbeddingService_EmbedTexts_IsolatesRejectedItem(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	svc := NewEmbeddingService(mockClient, EmbeddingConfig{BatchSize: 3, Oversize: OversizeReject}, nil)
	ctx := context.Background()
	rejected := domain.Wrap(domain.ErrEmbedding, errors.New("invalid input"))

	mockClient.On("Embed", ctx, []string{"good", "bad", "fine"}).Return(nil, rejected).Once()
	mockClient.On("Embed", ctx, []string{"good"}).Return(vectorsFor("good"), nil).Once()
	mockClient.On("Embed", ctx, []string{"bad"}).Return(nil, rejected).Once()
	mockClient.On("Embed", ctx, []string{"fine"}).Return(vectorsFor("fine"), nil).Once()

	res, err := svc.EmbedTexts(ctx, []string{"good", "bad", "fine"})

	require.NoError(t, err)
	assert.NotNil(t, res.Vectors[0])
	assert.Nil(t, res.Vectors[1])
	assert.NotNil(t, res.Vectors[2])
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.True(t, errors.Is(res.Failures[0].Err, domain.ErrEmbedding))
	mockClient.AssertExpectations(t)
}

func TestEmbeddingService_EmbedTexts_UnavailableStopsRemainingBatches(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	svc := NewEmbeddingService(mockClient, EmbeddingConfig{BatchSize: 1}, nil)
	ctx := context.Background()
	down := domain.Wrap(domain.ErrEmbeddingUnavailable, errors.New("connection refused"))

	mockClient.On("Embed", ctx, []string{"one"}).Return(vectorsFor("one"), nil).Once()
	mockClient.On("Embed", ctx, []string{"two"}).Return(nil, down).Once()

	res, err := svc.EmbedTexts(ctx, []string{"one", "two", "three"})

	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
	assert.NotNil(t, res.Vectors[0])
	assert.Len(t, res.Failures, 2)
	mockClient.AssertNotCalled(t, "Embed", ctx, []string{"three"})
}

func TestEmbeddingService_EmbedTexts_TruncatePolicy(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	svc := NewEmbeddingService(mockClient, EmbeddingConfig{BatchSize: 8, MaxInputTokens: 8, Oversize: OversizeTruncate}, nil)
	ctx := context.Background()
	long := strings.Repeat("word ", 20)

	mockClient.On("Embed", ctx, []string{"short text", "word word word word word word"}).
		Return(vectorsFor("short text", "truncated"), nil).Once()

	res, err := svc.EmbedTexts(ctx, []string{"short text", long})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded())
	assert.Equal(t, 1, res.Truncated)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "truncated from 20 to 6 words")
	mockClient.AssertExpectations(t)
}

func TestEmbeddingService_EmbedTexts_RejectPolicy(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	svc := NewEmbeddingService(mockClient, EmbeddingConfig{BatchSize: 8, MaxInputTokens: 8, Oversize: OversizeReject}, nil)
	ctx := context.Background()
	long := strings.Repeat("word ", 20)

	mockClient.On("Embed", ctx, []string{"ok"}).Return(vectorsFor("ok"), nil).Once()

	res, err := svc.EmbedTexts(ctx, []string{long, "ok"})

	require.NoError(t, err)
	assert.Nil(t, res.Vectors[0])
	assert.NotNil(t, res.Vectors[1])
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 0, res.Failures[0].Index)
	assert.True(t, errors.Is(res.Failures[0].Err, domain.ErrInputTooLong))
	mockClient.AssertExpectations(t)
}

func TestEmbeddingService_EmbedTexts_TruncatesAfterModelRejection(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	svc := NewEmbeddingService(mockClient, EmbeddingConfig{BatchSize: 4, Oversize: OversizeTruncate}, nil)
	ctx := context.Background()
	tooLong := domain.Wrap(domain.ErrInputTooLong, errors.New("maximum context length"))

	mockClient.On("Embed", ctx, []string{"a b c d"}).Return(nil, tooLong).Twice()
	mockClient.On("Embed", ctx, []string{"a b"}).Return(vectorsFor("a b"), nil).Once()

	res, err := svc.EmbedTexts(ctx, []string{"a b c d"})

	require.NoError(t, err)
	assert.NotNil(t, res.Vectors[0])
	assert.Equal(t, 1, res.Truncated)
	mockClient.AssertExpectations(t)
}

func TestEmbeddingService_EmbedTexts_CancelledContext(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	svc := NewEmbeddingService(mockClient, EmbeddingConfig{BatchSize: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.EmbedTexts(ctx, []string{"a", "b"})

	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, res.Failures, 2)
	mockClient.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestEmbeddingService_EmbedQuery(t *testing.T) {
	mockClient := new(MockEmbeddingClient)
	svc := NewEmbeddingService(mockClient, DefaultEmbeddingConfig(), nil)
	ctx := context.Background()

	mockClient.On("Embed", ctx, []string{"what is rag?"}).Return([][]float32{{0.1, 0.2}}, nil).Once()
	mockClient.On("Embed", ctx, []string{"down"}).Return(nil, errors.New("dial tcp: refused")).Once()

	v, err := svc.EmbedQuery(ctx, "what is rag?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, v)

	_, err = svc.EmbedQuery(ctx, "down")
	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
	assert.Contains(t, err.Error(), "failed to generate embedding")

	assert.Equal(t, 2, svc.Dimensions())
	assert.Equal(t, "mock-embed", svc.ModelName())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(0))
	assert.Equal(t, 2, estimateTokens(1))
	assert.Equal(t, 4, estimateTokens(3))
	assert.Equal(t, 6, maxWordsForTokens(8))
	assert.Equal(t, 1, maxWordsForTokens(1))
}
