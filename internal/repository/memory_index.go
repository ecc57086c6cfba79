package repository

import (
	"context"
	"sync"

	"github.com/cloo-solutions/docrag/internal/domain"
)

// MemoryIndex is an in-process vector index with the same semantics as
// PgVectorIndex. Search is a brute-force scan.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	spec    domain.CollectionSpec
	records map[string]domain.IndexedRecord
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memoryCollection)}
}

func (m *MemoryIndex) collection(name string) (*memoryCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, domain.Wrapf(domain.ErrCollectionNotFound, "collection %q", name)
	}
	return c, nil
}

func (m *MemoryIndex) EnsureCollection(ctx context.Context, spec domain.CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.collections[spec.Name]
	if !ok {
		m.collections[spec.Name] = &memoryCollection{spec: spec, records: make(map[string]domain.IndexedRecord)}
		return nil
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
}

func (m *MemoryIndex) Recreate(ctx context.Context, spec domain.CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.collections[spec.Name] = &memoryCollection{spec: spec, records: make(map[string]domain.IndexedRecord)}
	return nil
}

func (m *MemoryIndex) Drop(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections, name)
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, collection string, records []domain.IndexedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := rec.Validate(c.spec.Dimension); err != nil {
			return err
		}
	}
	for _, rec := range records {
		vec := make([]float32, len(rec.Vector))
		copy(vec, rec.Vector)
		c.records[rec.Chunk.ID] = domain.IndexedRecord{Chunk: rec.Chunk, Vector: vec}
	}
	return nil
}

func (m *MemoryIndex) DeleteDocumentTail(ctx context.Context, collection, documentID string, fromPosition int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	for id, rec := range c.records {
		if rec.Chunk.DocumentID == documentID && rec.Chunk.Position >= fromPosition {
			delete(c.records, id)
		}
	}
	return nil
}

func (m *MemoryIndex) DeleteChunks(ctx context.Context, collection string, chunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, id := range chunkIDs {
		delete(c.records, id)
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, collection string, vector []float32, topK int, threshold float64) ([]domain.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrIndexUnavailable, err)
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.spec.Dimension {
		return nil, domain.Wrapf(domain.ErrSchemaMismatch,
			"query vector has %d dimensions, collection %q expects %d", len(vector), collection, c.spec.Dimension)
	}

	results := make([]domain.RetrievalResult, 0, len(c.records))
	for _, rec := range c.records {
		results = append(results, domain.RetrievalResult{
			Chunk: rec.Chunk,
			Score: similarity(c.spec.Distance, vector, rec.Vector),
		})
	}
	return rankResults(results, topK, threshold), nil
}

func (m *MemoryIndex) Count(ctx context.Context, collection string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(collection)
	if err != nil {
		return 0, err
	}
	return int64(len(c.records)), nil
}

func (m *MemoryIndex) DeleteAll(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	c.records = make(map[string]domain.IndexedRecord)
	return nil
}

func (m *MemoryIndex) Info(ctx context.Context, collection string) (*domain.CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	return &domain.CollectionInfo{CollectionSpec: c.spec, Count: int64(len(c.records))}, nil
}

func (m *MemoryIndex) Ping(ctx context.Context) error {
	return nil
}
