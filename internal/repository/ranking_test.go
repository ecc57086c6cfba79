package repository

import (
	"math"
	"strings"
	"testing"

	"github.com/cloo-solutions/docrag/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSimilarityFromDistance(t *testing.T) {
	assert.InDelta(t, 0.8, similarityFromDistance(domain.DistanceCosine, 0.2), 1e-9)
	assert.InDelta(t, 3.0, similarityFromDistance(domain.DistanceDot, -3.0), 1e-9)
	assert.InDelta(t, 0.5, similarityFromDistance(domain.DistanceEuclid, 1.0), 1e-9)
}

func TestDistanceBound_RoundTrips(t *testing.T) {
	for _, metric := range []domain.Distance{domain.DistanceCosine, domain.DistanceDot, domain.DistanceEuclid} {
		threshold := 0.7
		bound := distanceBound(metric, threshold)
		assert.GreaterOrEqual(t, similarityFromDistance(metric, bound)+1e-6, threshold, string(metric))
	}
	assert.Equal(t, math.MaxFloat64, distanceBound(domain.DistanceEuclid, 0))
}

func TestRankResults(t *testing.T) {
	in := []domain.RetrievalResult{
		{Chunk: domain.Chunk{ID: "c"}, Score: 0.8},
		{Chunk: domain.Chunk{ID: "a"}, Score: 0.9},
		{Chunk: domain.Chunk{ID: "b"}, Score: 0.8},
		{Chunk: domain.Chunk{ID: "d"}, Score: 0.1},
	}

	out := rankResults(in, 3, 0.5)

	assert.Len(t, out, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].Chunk.ID, out[1].Chunk.ID, out[2].Chunk.ID})
	assert.Equal(t, []int{1, 2, 3}, []int{out[0].Rank, out[1].Rank, out[2].Rank})
}

func TestTableName(t *testing.T) {
	assert.Regexp(t, `^rag_rag_chunks_[0-9a-f]{8}$`, tableName("rag_chunks"))
	assert.Regexp(t, `^rag_my_docs_v2_[0-9a-f]{8}$`, tableName("My-Docs.v2"))
	assert.Equal(t, tableName("rag_chunks"), tableName("rag_chunks"))
}

func TestTableName_DistinctForCollidingNames(t *testing.T) {
	assert.NotEqual(t, tableName("a-b"), tableName("a_b"))
	assert.NotEqual(t, tableName("Docs"), tableName("docs"))

	long := strings.Repeat("x", 80)
	assert.NotEqual(t, tableName(long+"1"), tableName(long+"2"))
	for _, name := range []string{long, strings.Repeat("ö", 70)} {
		assert.LessOrEqual(t, len(tableName(name)+"_embedding_idx"), 63)
	}
}

func TestCandidateLimit(t *testing.T) {
	assert.Equal(t, 5, candidateLimit(1))
	assert.Equal(t, 9, candidateLimit(5))
	assert.Equal(t, 30, candidateLimit(20))
	assert.Equal(t, 40, efSearch(9))
	assert.Equal(t, 1000, efSearch(900))
}

func TestSimilarity_ZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, similarity(domain.DistanceCosine, []float32{0, 0}, []float32{1, 0}))
	assert.InDelta(t, 1.0, similarity(domain.DistanceEuclid, []float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 2.0, similarity(domain.DistanceDot, []float32{1, 1}, []float32{1, 1}), 1e-9)
}
