package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/docrag/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingAPI is a mock for the embeddings endpoint
type MockEmbeddingAPI struct {
	mock.Mock
}

func (m *MockEmbeddingAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func vec(dims int, seed float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestClient_Embed_Success(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, "mini", 4)

	ctx := context.Background()
	texts := []string{"first passage", "second passage"}
	expected := [][]float32{vec(4, 0.1), vec(4, 0.2)}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(expected, nil)

	vectors, err := client.Embed(ctx, texts)

	require.NoError(t, err)
	assert.Equal(t, expected, vectors)
	assert.Equal(t, 4, client.Dimensions())
	assert.Equal(t, "mini", client.ModelName())
	mockAPI.AssertExpectations(t)
}

func TestClient_Embed_EmptyInput(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, "", 4)

	vectors, err := client.Embed(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)

	_, err = client.Embed(context.Background(), []string{"ok", "   "})
	assert.True(t, errors.Is(err, domain.ErrEmbedding))
	assert.True(t, errors.Is(err, ErrEmptyText))
	mockAPI.AssertNotCalled(t, "CreateEmbeddings", mock.Anything, mock.Anything)
}

func TestClient_Embed_WrongDimensions(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, "", 4)

	mockAPI.On("CreateEmbeddings", mock.Anything, []string{"text"}).Return([][]float32{vec(3, 0)}, nil)

	vectors, err := client.Embed(context.Background(), []string{"text"})

	assert.Nil(t, vectors)
	assert.True(t, errors.Is(err, domain.ErrEmbedding))
	assert.True(t, errors.Is(err, ErrWrongDimensions))
	assert.False(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
}

func TestClient_Embed_CountMismatch(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := NewClientWithAPI(mockAPI, "", 2)

	mockAPI.On("CreateEmbeddings", mock.Anything, mock.Anything).Return([][]float32{vec(2, 0)}, nil)

	_, err := client.Embed(context.Background(), []string{"a", "b"})
	assert.True(t, errors.Is(err, ErrCountMismatch))
}

func TestClassifyEmbeddingError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind *domain.DomainError
	}{
		{"network", errors.New("connection refused"), domain.ErrEmbeddingUnavailable},
		{"deadline", context.DeadlineExceeded, domain.ErrEmbeddingUnavailable},
		{"server error", &openai.APIError{HTTPStatusCode: 500, Message: "boom"}, domain.ErrEmbeddingUnavailable},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, domain.ErrEmbeddingUnavailable},
		{"unauthorized", &openai.RequestError{HTTPStatusCode: 401, Err: errors.New("bad key")}, domain.ErrEmbeddingUnavailable},
		{"payload too large", &openai.RequestError{HTTPStatusCode: 413, Err: errors.New("too big")}, domain.ErrInputTooLong},
		{"context length", &openai.APIError{HTTPStatusCode: 400, Message: "This model's maximum context length is 512 tokens"}, domain.ErrInputTooLong},
		{"bad request", &openai.APIError{HTTPStatusCode: 400, Message: "invalid input"}, domain.ErrEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyEmbeddingError(tt.err)
			var de *domain.DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.kind, de.Kind())
		})
	}

	assert.Nil(t, ClassifyEmbeddingError(nil))
}

func TestOpenAIAdapter_CreateEmbeddings_OrdersByIndex(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-local", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel, _ = body["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"mini","data":[
			{"object":"embedding","index":1,"embedding":[0.3,0.4]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}
		]}`))
	}))
	defer srv.Close()

	adapter := NewOpenAIAdapter(srv.URL+"/v1/", "sk-local", "mini", "")
	vectors, err := adapter.CreateEmbeddings(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, "mini", gotModel)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vectors)
}

func TestOpenAIAdapter_CreateEmbeddings_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"model is loading","type":"server_error"}}`))
	}))
	defer srv.Close()

	client := NewClientWithConfig(Config{BaseURL: srv.URL + "/v1", APIKey: "k", EmbeddingDimensions: 2})
	_, err := client.Embed(context.Background(), []string{"a"})

	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: "test-api-key"})

	assert.NotNil(t, client)
	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
	assert.Equal(t, DefaultEmbeddingModel, client.ModelName())
}
