//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_Embed_LocalServer(t *testing.T) {
	baseURL := os.Getenv("RAG_EMBEDDING_BASE_URL")
	if baseURL == "" {
		t.Skip("RAG_EMBEDDING_BASE_URL not set, skipping integration test")
	}

	client := NewClientWithConfig(Config{
		BaseURL:        baseURL,
		APIKey:         os.Getenv("RAG_EMBEDDING_API_KEY"),
		EmbeddingModel: os.Getenv("RAG_EMBEDDING_MODEL"),
	})

	vectors, err := client.Embed(context.Background(), []string{"first passage", "second passage"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], client.Dimensions())
}
