package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/docrag/internal/pagination"
)

// QueryLogResult captures a single retrieved passage for logging.
type QueryLogResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// QueryLogEntry captures a question, its outcome and its retrieval.
type QueryLogEntry struct {
	Collection string
	Query      string
	State      AnswerState
	TopK       int
	Threshold  float64
	DurationMs int
	Results    []QueryLogResult
}

// QueryLog is a stored query log.
type QueryLog struct {
	ID          string           `json:"id"`
	Collection  string           `json:"collection"`
	Query       string           `json:"query"`
	State       AnswerState      `json:"state"`
	TopK        int              `json:"top_k"`
	Threshold   float64          `json:"threshold"`
	ResultCount int              `json:"result_count"`
	DurationMs  int              `json:"duration_ms"`
	Results     []QueryLogResult `json:"results"`
	CreatedAt   time.Time        `json:"created_at"`
}

// QueryLogRepository persists query logs for retrieval evaluation.
type QueryLogRepository interface {
	CreateQueryLog(ctx context.Context, entry QueryLogEntry) (string, error)
}

// QueryLogReader lists stored query logs newest first.
type QueryLogReader interface {
	ListQueryLogs(ctx context.Context, collection string, cursor *pagination.Cursor, limit int) ([]QueryLog, error)
}

// QueryLogService pages through the query logs of one collection.
type QueryLogService struct {
	repo       QueryLogReader
	collection string
}

func NewQueryLogService(repo QueryLogReader, collection string) *QueryLogService {
	return &QueryLogService{repo: repo, collection: collection}
}

// List returns the page after cursor. An empty cursor starts at the newest log.
func (s *QueryLogService) List(ctx context.Context, cursor string, limit int) (*pagination.Page[QueryLog], error) {
	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = pagination.ClampLimit(limit)

	logs, err := s.repo.ListQueryLogs(ctx, s.collection, decoded, limit+1)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(logs, limit, func(l QueryLog) (string, time.Time) {
		return l.ID, l.CreatedAt
	}), nil
}
