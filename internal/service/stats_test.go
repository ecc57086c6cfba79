package service

import (
	"context"
	"testing"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdmin(index IndexAdmin) *AdminService {
	spec := domain.CollectionSpec{Name: "rag_chunks", Dimension: 2, Distance: domain.DistanceCosine}
	return NewAdminService(index, spec, DefaultChunkConfig(), "all-MiniLM-L6-v2", "qwen/qwen3-8b", nil)
}

func TestAdminService_Stats_MissingCollection(t *testing.T) {
	svc := newTestAdmin(newFakeIndex())

	stats, err := svc.Stats(context.Background())

	require.NoError(t, err)
	assert.False(t, stats.Exists)
	assert.Equal(t, int64(0), stats.Records)
	assert.Equal(t, "rag_chunks", stats.Collection)
	assert.Equal(t, 300, stats.ChunkSize)
	assert.Equal(t, "qwen/qwen3-8b", stats.GenerationModel)
}

func TestAdminService_Stats_ReportsCount(t *testing.T) {
	ctx := context.Background()
	index := newFakeIndex()
	spec := domain.CollectionSpec{Name: "rag_chunks", Dimension: 2, Distance: domain.DistanceCosine}
	require.NoError(t, index.EnsureCollection(ctx, spec))
	require.NoError(t, index.Upsert(ctx, "rag_chunks", []domain.IndexedRecord{
		{Chunk: domain.Chunk{ID: "a", DocumentID: "a.txt"}, Vector: []float32{1, 0}},
		{Chunk: domain.Chunk{ID: "b", DocumentID: "a.txt", Position: 1}, Vector: []float32{0, 1}},
	}))

	stats, err := newTestAdmin(index).Stats(ctx)

	require.NoError(t, err)
	assert.True(t, stats.Exists)
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, domain.DistanceCosine, stats.Distance)
}

func TestAdminService_Reset(t *testing.T) {
	ctx := context.Background()
	index := newFakeIndex()
	spec := domain.CollectionSpec{Name: "rag_chunks", Dimension: 2, Distance: domain.DistanceCosine}
	require.NoError(t, index.EnsureCollection(ctx, spec))
	require.NoError(t, index.Upsert(ctx, "rag_chunks", []domain.IndexedRecord{
		{Chunk: domain.Chunk{ID: "a", DocumentID: "a.txt"}, Vector: []float32{1, 0}},
	}))
	svc := newTestAdmin(index)

	require.NoError(t, svc.Reset(ctx, false))
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Exists)
	assert.Equal(t, int64(0), stats.Records)

	require.NoError(t, svc.Reset(ctx, true))
	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.Exists)
}
