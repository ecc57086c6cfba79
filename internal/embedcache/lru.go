// Package embedcache memoizes embedding vectors in an expiring LRU.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// Embedder is the embedding client being cached.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// WrapLRU returns e unchanged when size or ttl disable caching.
func WrapLRU(e Embedder, size int, ttl time.Duration, logger *zap.Logger) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &lruEmbedder{
		next:   e,
		cache:  expirable.NewLRU[string, []float32](size, nil, ttl),
		logger: logger,
	}
}

type lruEmbedder struct {
	next   Embedder
	cache  *expirable.LRU[string, []float32]
	logger *zap.Logger
}

// Embed serves cached vectors and sends only the misses to the wrapped client.
func (l *lruEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
		missKeys  []string
	)
	for i, t := range texts {
		key := cacheKey(l.next.ModelName(), t)
		if cached, ok := l.cache.Get(key); ok {
			out[i] = cloneEmbedding(cached)
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
		missKeys = append(missKeys, key)
	}

	if len(missTexts) == 0 {
		l.logger.Debug("embedding cache hit", zap.Int("items", len(texts)))
		return out, nil
	}

	vectors, err := l.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, v := range vectors {
		l.cache.Add(missKeys[j], cloneEmbedding(v))
		out[missIdx[j]] = v
	}
	return out, nil
}

func (l *lruEmbedder) Dimensions() int {
	return l.next.Dimensions()
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
