package repository

import (
	"context"
	"encoding/json"

	"github.com/cloo-solutions/docrag/internal/pagination"
	"github.com/cloo-solutions/docrag/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryLogRepository stores query logs for retrieval evaluation.
type QueryLogRepository struct {
	pool *pgxpool.Pool
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{pool: pool}
}

func (r *QueryLogRepository) CreateQueryLog(ctx context.Context, entry service.QueryLogEntry) (string, error) {
	results := entry.Results
	if results == nil {
		results = []service.QueryLogResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return "", err
	}

	var id string
	err = r.pool.QueryRow(ctx,
		`INSERT INTO query_logs (collection, query, state, top_k, threshold, results, result_count, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id::text`,
		entry.Collection,
		entry.Query,
		string(entry.State),
		entry.TopK,
		entry.Threshold,
		resultsJSON,
		len(entry.Results),
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", classifyError("create query log", err)
	}
	return id, nil
}

// ListQueryLogs returns up to limit logs for collection, newest first,
// starting after cursor.
func (r *QueryLogRepository) ListQueryLogs(ctx context.Context, collection string, cursor *pagination.Cursor, limit int) ([]service.QueryLog, error) {
	const columns = `id::text, collection, query, state, top_k, threshold, result_count, duration_ms, results, created_at`

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.pool.Query(ctx,
			`SELECT `+columns+`
			 FROM query_logs
			 WHERE collection = $1 AND (created_at, id) < ($2, $3::uuid)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			collection, cursor.Timestamp, cursor.LastID, limit,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+columns+`
			 FROM query_logs
			 WHERE collection = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			collection, limit,
		)
	}
	if err != nil {
		return nil, classifyError("list query logs", err)
	}
	defer rows.Close()

	var logs []service.QueryLog
	for rows.Next() {
		var (
			l       service.QueryLog
			state   string
			results []byte
		)
		if err := rows.Scan(&l.ID, &l.Collection, &l.Query, &state, &l.TopK, &l.Threshold,
			&l.ResultCount, &l.DurationMs, &results, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.State = service.AnswerState(state)
		if err := json.Unmarshal(results, &l.Results); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
