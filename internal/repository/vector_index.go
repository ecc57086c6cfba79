package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PgVectorIndex stores each collection in its own table with a pgvector column.
// The collections table records every collection's dimension and metric.
type PgVectorIndex struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPgVectorIndex(pool *pgxpool.Pool, logger *zap.Logger) *PgVectorIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgVectorIndex{pool: pool, logger: logger}
}

type collectionRow struct {
	spec  domain.CollectionSpec
	table string
}

func (c collectionRow) ident() string {
	return pgx.Identifier{c.table}.Sanitize()
}

// maxTablePrefix keeps "rag_" + prefix + "_" + hash + "_embedding_idx"
// within the 63 byte identifier limit.
const maxTablePrefix = 32

// tableName derives a safe table name for a collection. The readable part is
// lossy, so a hash of the exact name keeps distinct collections apart.
func tableName(collection string) string {
	var b strings.Builder
	b.WriteString("rag_")
	for _, r := range strings.ToLower(collection) {
		if b.Len() >= len("rag_")+maxTablePrefix {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	sum := sha256.Sum256([]byte(collection))
	b.WriteByte('_')
	b.WriteString(hex.EncodeToString(sum[:4]))
	return b.String()
}

// candidateLimit is how many rows Search reads for a topK request.
func candidateLimit(topK int) int {
	return topK + max(topK/2, 4)
}

// efSearch sizes the HNSW candidate list for limit rows, within pgvector's bounds.
func efSearch(limit int) int {
	return min(max(limit*2, 40), 1000)
}

func operatorClass(d domain.Distance) (op string, opclass string) {
	switch d {
	case domain.DistanceDot:
		return "<#>", "vector_ip_ops"
	case domain.DistanceEuclid:
		return "<->", "vector_l2_ops"
	default:
		return "<=>", "vector_cosine_ops"
	}
}

func lockCollection(ctx context.Context, tx pgx.Tx, name string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "collection:"+name)
	return err
}

func getCollection(ctx context.Context, db dbtx, name string) (*collectionRow, error) {
	var (
		row      collectionRow
		distance string
	)
	err := db.QueryRow(ctx,
		`SELECT name, table_name, dimension, distance FROM collections WHERE name = $1`, name,
	).Scan(&row.spec.Name, &row.table, &row.spec.Dimension, &distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Wrapf(domain.ErrCollectionNotFound, "collection %q", name)
	}
	if err != nil {
		return nil, classifyError("load collection", err)
	}
	row.spec.Distance = domain.Distance(distance)
	return &row, nil
}

func createCollection(ctx context.Context, tx pgx.Tx, spec domain.CollectionSpec) error {
	row := collectionRow{spec: spec, table: tableName(spec.Name)}
	_, opclass := operatorClass(spec.Distance)

	_, err := tx.Exec(ctx,
		`INSERT INTO collections (name, table_name, dimension, distance) VALUES ($1, $2, $3, $4)`,
		spec.Name, row.table, spec.Dimension, string(spec.Distance),
	)
	if err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			chunk_id      UUID PRIMARY KEY,
			document_id   TEXT NOT NULL,
			document_type TEXT NOT NULL,
			position      INTEGER NOT NULL,
			content       TEXT NOT NULL,
			word_count    INTEGER NOT NULL,
			start_offset  INTEGER NOT NULL,
			end_offset    INTEGER NOT NULL,
			embedding     vector(%[2]d) NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, row.ident(), spec.Dimension)
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id, position)`,
		pgx.Identifier{row.table + "_doc_idx"}.Sanitize(), row.ident())); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)`,
		pgx.Identifier{row.table + "_embedding_idx"}.Sanitize(), row.ident(), opclass))
	return err
}

func dropCollection(ctx context.Context, tx pgx.Tx, name string) error {
	row, err := getCollection(ctx, tx, name)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, row.ident())); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM collections WHERE name = $1`, name)
	return err
}

// EnsureCollection creates the collection if absent. An existing collection
// with a different dimension or metric is a schema mismatch.
func (r *PgVectorIndex) EnsureCollection(ctx context.Context, spec domain.CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockCollection(ctx, tx, spec.Name); err != nil {
			return err
		}

		existing, err := getCollection(ctx, tx, spec.Name)
		if errors.Is(err, domain.ErrCollectionNotFound) {
			r.logger.Info("creating collection",
				zap.String("collection", spec.Name),
				zap.Int("dimension", spec.Dimension),
				zap.String("distance", string(spec.Distance)))
			return createCollection(ctx, tx, spec)
		}
		if err != nil {
			return err
		}

		if existing.spec.Dimension != spec.Dimension {
			return domain.Wrapf(domain.ErrSchemaMismatch,
				"collection %q has dimension %d, embedding model produces %d", spec.Name, existing.spec.Dimension, spec.Dimension)
		}
		if existing.spec.Distance != spec.Distance {
			return domain.Wrapf(domain.ErrSchemaMismatch,
				"collection %q uses %s distance, configured %s", spec.Name, existing.spec.Distance, spec.Distance)
		}
		return nil
	})
	return classifyError("ensure collection", err)
}

// Recreate drops the collection and creates it empty.
func (r *PgVectorIndex) Recreate(ctx context.Context, spec domain.CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockCollection(ctx, tx, spec.Name); err != nil {
			return err
		}
		if err := dropCollection(ctx, tx, spec.Name); err != nil {
			return err
		}
		return createCollection(ctx, tx, spec)
	})
	if err == nil {
		r.logger.Info("collection recreated", zap.String("collection", spec.Name))
	}
	return classifyError("recreate collection", err)
}

// Drop removes the collection and all its records.
func (r *PgVectorIndex) Drop(ctx context.Context, name string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockCollection(ctx, tx, name); err != nil {
			return err
		}
		return dropCollection(ctx, tx, name)
	})
	return classifyError("drop collection", err)
}

// Upsert writes records in one transaction. Records are keyed by chunk id, so
// writing the same chunk twice keeps only the latest content.
func (r *PgVectorIndex) Upsert(ctx context.Context, collection string, records []domain.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}

	row, err := getCollection(ctx, r.pool, collection)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := rec.Validate(row.spec.Dimension); err != nil {
			return err
		}
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s
			(chunk_id, document_id, document_type, position, content, word_count, start_offset, end_offset, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			document_type = EXCLUDED.document_type,
			position = EXCLUDED.position,
			content = EXCLUDED.content,
			word_count = EXCLUDED.word_count,
			start_offset = EXCLUDED.start_offset,
			end_offset = EXCLUDED.end_offset,
			embedding = EXCLUDED.embedding,
			updated_at = now()`, row.ident())

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			c := rec.Chunk
			batch.Queue(stmt,
				c.ID,
				c.DocumentID,
				string(c.DocumentType),
				c.Position,
				c.Text,
				c.WordCount,
				c.StartOffset,
				c.EndOffset,
				pgvector.NewVector(rec.Vector),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return classifyError("upsert records", err)
}

// DeleteDocumentTail removes a document's records at or after fromPosition.
// Re-ingesting a shorter document uses it to drop chunks that no longer exist.
func (r *PgVectorIndex) DeleteDocumentTail(ctx context.Context, collection, documentID string, fromPosition int) error {
	row, err := getCollection(ctx, r.pool, collection)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1 AND position >= $2`, row.ident()),
		documentID, fromPosition)
	return classifyError("delete stale records", err)
}

// DeleteChunks removes records by chunk id. Unknown ids are ignored.
func (r *PgVectorIndex) DeleteChunks(ctx context.Context, collection string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	row, err := getCollection(ctx, r.pool, collection)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ANY($1::uuid[])`, row.ident()),
		chunkIDs)
	return classifyError("delete chunks", err)
}

// Search returns at most topK records whose similarity is at least threshold,
// ordered by similarity descending and chunk id ascending on ties.
func (r *PgVectorIndex) Search(ctx context.Context, collection string, vector []float32, topK int, threshold float64) ([]domain.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	row, err := getCollection(ctx, r.pool, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != row.spec.Dimension {
		return nil, domain.Wrapf(domain.ErrSchemaMismatch,
			"query vector has %d dimensions, collection %q expects %d", len(vector), collection, row.spec.Dimension)
	}

	// ORDER BY the bare operator expression so the HNSW index applies.
	// rankResults settles ties, hence the spare candidates.
	op, _ := operatorClass(row.spec.Distance)
	limit := candidateLimit(topK)
	query := fmt.Sprintf(`
		SELECT chunk_id::text, document_id, document_type, position, content, word_count, start_offset, end_offset,
		       embedding %[2]s $1 AS distance
		FROM %[1]s
		WHERE embedding %[2]s $1 <= $2
		ORDER BY embedding %[2]s $1
		LIMIT $3`, row.ident(), op)

	var results []domain.RetrievalResult
	err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, efSearch(limit))); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, query, pgvector.NewVector(vector), distanceBound(row.spec.Distance, threshold), limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				c        domain.Chunk
				docType  string
				distance float64
			)
			if err := rows.Scan(&c.ID, &c.DocumentID, &docType, &c.Position, &c.Text, &c.WordCount, &c.StartOffset, &c.EndOffset, &distance); err != nil {
				return err
			}
			c.DocumentType = domain.DocumentType(docType)
			results = append(results, domain.RetrievalResult{
				Chunk: c,
				Score: similarityFromDistance(row.spec.Distance, distance),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classifyError("search", err)
	}

	return rankResults(results, topK, threshold), nil
}

// Count returns the number of records in the collection.
func (r *PgVectorIndex) Count(ctx context.Context, collection string) (int64, error) {
	row, err := getCollection(ctx, r.pool, collection)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, row.ident())).Scan(&n); err != nil {
		return 0, classifyError("count", err)
	}
	return n, nil
}

// DeleteAll removes every record but keeps the collection.
func (r *PgVectorIndex) DeleteAll(ctx context.Context, collection string) error {
	row, err := getCollection(ctx, r.pool, collection)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s`, row.ident()))
	return classifyError("delete all", err)
}

// Info returns the collection schema and record count.
func (r *PgVectorIndex) Info(ctx context.Context, collection string) (*domain.CollectionInfo, error) {
	row, err := getCollection(ctx, r.pool, collection)
	if err != nil {
		return nil, err
	}
	n, err := r.Count(ctx, collection)
	if err != nil {
		return nil, err
	}
	return &domain.CollectionInfo{CollectionSpec: row.spec, Count: n}, nil
}

// Ping checks the database is reachable.
func (r *PgVectorIndex) Ping(ctx context.Context) error {
	return classifyError("ping", r.pool.Ping(ctx))
}
