package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/cloo-solutions/docrag/internal/pagination"
	"github.com/cloo-solutions/docrag/internal/service"
	"github.com/cloo-solutions/docrag/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Query(ctx context.Context, question string, opts service.QueryOptions) (*service.Answer, error) {
	args := m.Called(ctx, question, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Answer), args.Error(1)
}

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Run(ctx context.Context, src source.Source, opts service.IngestOptions) (*service.IngestSummary, error) {
	args := m.Called(ctx, src, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestSummary), args.Error(1)
}

type MockSourceOpener struct {
	mock.Mock
}

func (m *MockSourceOpener) Open(ctx context.Context, folder string) (source.Source, error) {
	args := m.Called(ctx, folder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(source.Source), args.Error(1)
}

type MockStatsService struct {
	mock.Mock
}

func (m *MockStatsService) Stats(ctx context.Context) (*service.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Stats), args.Error(1)
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func TestQueryHandler_Query_Success(t *testing.T) {
	mockSvc := new(MockQueryService)
	threshold := 0.5
	mockSvc.On("Query", mock.Anything, "what is pgvector?", service.QueryOptions{TopK: 3, Threshold: &threshold}).
		Return(&service.Answer{
			Query:     "what is pgvector?",
			State:     service.AnswerStateAnswered,
			Text:      "A Postgres extension.",
			Grounded:  true,
			Citations: []string{"docs/pgvector.md"},
		}, nil)

	handler := NewQueryHandler(mockSvc)
	body := `{"query":"what is pgvector?","top_k":3,"threshold":0.5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "answered", data["state"])
	assert.Equal(t, "A Postgres extension.", data["answer"])
	assert.Equal(t, []interface{}{"docs/pgvector.md"}, data["citations"])
	mockSvc.AssertExpectations(t)
}

func TestQueryHandler_Query_InvalidBody(t *testing.T) {
	handler := NewQueryHandler(new(MockQueryService))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryHandler_Query_ThresholdOutOfRange(t *testing.T) {
	handler := NewQueryHandler(new(MockQueryService))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString(`{"query":"x","threshold":1.5}`))
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "threshold")
}

func TestQueryHandler_Query_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"empty query", &service.QueryError{Stage: service.StageReceived, Err: domain.ErrInvalidQuery}, http.StatusBadRequest},
		{"index down", &service.QueryError{Stage: service.StageRetrieved, Err: domain.Wrap(domain.ErrIndexUnavailable, errors.New("dial"))}, http.StatusServiceUnavailable},
		{"embedding down", &service.QueryError{Stage: service.StageEmbedded, Err: domain.Wrap(domain.ErrEmbeddingUnavailable, errors.New("refused"))}, http.StatusBadGateway},
		{"generation", &service.QueryError{Stage: service.StageAnswered, Err: domain.Wrap(domain.ErrGeneration, errors.New("500"))}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockQueryService)
			mockSvc.On("Query", mock.Anything, "q", service.QueryOptions{}).Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString(`{"query":"q"}`))
			w := httptest.NewRecorder()
			NewQueryHandler(mockSvc).Query(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestIngestHandler_Ingest_Success(t *testing.T) {
	src := source.NewLocal(t.TempDir())
	opener := new(MockSourceOpener)
	opener.On("Open", mock.Anything, "docs").Return(src, nil)

	mockSvc := new(MockIngestService)
	mockSvc.On("Run", mock.Anything, src, service.IngestOptions{Recreate: true}).Return(&service.IngestSummary{
		Collection: "rag_chunks",
		Recreated:  true,
		TotalFiles: 4,
		Processed:  3,
		Skipped:    1,
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewBufferString(`{"folder":"docs","recreate":true}`))
	w := httptest.NewRecorder()
	NewIngestHandler(mockSvc, opener).Ingest(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(4), data["total_files"])
	assert.Equal(t, float64(75), data["success_rate"])
	assert.Equal(t, true, data["recreated"])
	mockSvc.AssertExpectations(t)
	opener.AssertExpectations(t)
}

func TestIngestHandler_Ingest_EmptyBodyUsesDefault(t *testing.T) {
	src := source.NewLocal(t.TempDir())
	opener := new(MockSourceOpener)
	opener.On("Open", mock.Anything, "").Return(src, nil)
	mockSvc := new(MockIngestService)
	mockSvc.On("Run", mock.Anything, src, service.IngestOptions{}).Return(&service.IngestSummary{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", http.NoBody)
	w := httptest.NewRecorder()
	NewIngestHandler(mockSvc, opener).Ingest(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestIngestHandler_Ingest_SchemaMismatch(t *testing.T) {
	src := source.NewLocal(t.TempDir())
	opener := new(MockSourceOpener)
	opener.On("Open", mock.Anything, "").Return(src, nil)
	mockSvc := new(MockIngestService)
	mockSvc.On("Run", mock.Anything, src, service.IngestOptions{}).
		Return(nil, domain.Wrapf(domain.ErrSchemaMismatch, "dimension 384 != 768"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	NewIngestHandler(mockSvc, opener).Ingest(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")
}

func TestIngestHandler_Ingest_BadFolder(t *testing.T) {
	opener := new(MockSourceOpener)
	opener.On("Open", mock.Anything, "s3://").Return(nil, domain.Wrapf(domain.ErrInvalidConfig, "missing bucket"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewBufferString(`{"folder":"s3://"}`))
	w := httptest.NewRecorder()
	NewIngestHandler(new(MockIngestService), opener).Ingest(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHandler_Ingest_RecreateDenied(t *testing.T) {
	opener := new(MockSourceOpener)
	mockSvc := new(MockIngestService)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewBufferString(`{"recreate":true}`))
	w := httptest.NewRecorder()
	NewIngestHandler(mockSvc, opener).DenyRecreate().Ingest(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "RAG_API_TOKEN")
	opener.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
	mockSvc.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestHandler_Ingest_FolderDenied(t *testing.T) {
	opener := new(MockSourceOpener)
	opener.On("Open", mock.Anything, "/etc").Return(nil, domain.Wrapf(domain.ErrFolderDenied, "folder %q", "/etc"))
	mockSvc := new(MockIngestService)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", bytes.NewBufferString(`{"folder":"/etc"}`))
	w := httptest.NewRecorder()
	NewIngestHandler(mockSvc, opener).DenyRecreate().Ingest(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "outside the data directory")
	mockSvc.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatsHandler_Stats(t *testing.T) {
	mockSvc := new(MockStatsService)
	mockSvc.On("Stats", mock.Anything).Return(&service.Stats{
		Collection: "rag_chunks",
		Exists:     true,
		Records:    42,
		Dimension:  384,
		Distance:   domain.DistanceCosine,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	NewStatsHandler(mockSvc).Stats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(42), data["records"])
	assert.Equal(t, "cosine", data["distance"])
}

func TestStatsHandler_Stats_IndexDown(t *testing.T) {
	mockSvc := new(MockStatsService)
	mockSvc.On("Stats", mock.Anything).Return(nil, domain.Wrap(domain.ErrIndexUnavailable, errors.New("refused")))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	NewStatsHandler(mockSvc).Stats(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type MockQueryLogService struct {
	mock.Mock
}

func (m *MockQueryLogService) List(ctx context.Context, cursor string, limit int) (*pagination.Page[service.QueryLog], error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[service.QueryLog]), args.Error(1)
}

func TestQueryLogHandler_List(t *testing.T) {
	mockSvc := new(MockQueryLogService)
	mockSvc.On("List", mock.Anything, "abc", 5).Return(&pagination.Page[service.QueryLog]{
		Items:      []service.QueryLog{{ID: "l1", Query: "what is docrag?", State: service.AnswerStateAnswered}},
		NextCursor: "next",
		HasMore:    true,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query-logs?cursor=abc&limit=5", nil)
	w := httptest.NewRecorder()
	NewQueryLogHandler(mockSvc).List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "next", data["next_cursor"])
	assert.Equal(t, true, data["has_more"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "what is docrag?", items[0].(map[string]interface{})["query"])
	mockSvc.AssertExpectations(t)
}

func TestQueryLogHandler_InvalidLimit(t *testing.T) {
	mockSvc := new(MockQueryLogService)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query-logs?limit=lots", nil)
	w := httptest.NewRecorder()
	NewQueryLogHandler(mockSvc).List(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryLogHandler_InvalidCursor(t *testing.T) {
	mockSvc := new(MockQueryLogService)
	mockSvc.On("List", mock.Anything, "bad", 0).Return(nil, pagination.ErrInvalidCursor)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/query-logs?cursor=bad", nil)
	w := httptest.NewRecorder()
	NewQueryLogHandler(mockSvc).List(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
