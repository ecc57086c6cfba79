package service

import (
	"context"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// IndexWriter is the part of the vector index ingestion writes through.
type IndexWriter interface {
	EnsureCollection(ctx context.Context, spec domain.CollectionSpec) error
	Recreate(ctx context.Context, spec domain.CollectionSpec) error
	Upsert(ctx context.Context, collection string, records []domain.IndexedRecord) error
	DeleteDocumentTail(ctx context.Context, collection, documentID string, fromPosition int) error
	DeleteChunks(ctx context.Context, collection string, chunkIDs []string) error
}

// IndexSearcher is the part of the vector index queries read from.
type IndexSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, topK int, threshold float64) ([]domain.RetrievalResult, error)
}

// IndexAdmin covers inspection and reset.
type IndexAdmin interface {
	Info(ctx context.Context, collection string) (*domain.CollectionInfo, error)
	Count(ctx context.Context, collection string) (int64, error)
	DeleteAll(ctx context.Context, collection string) error
	Drop(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// VectorIndex is implemented by every index backend.
type VectorIndex interface {
	IndexWriter
	IndexSearcher
	IndexAdmin
}
