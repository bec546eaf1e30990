// Package embedcache caches query embeddings in front of the embedding
// provider, so repeated questions skip the embed round-trip.
package embedcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mkorchagin/docqa/internal/core/ports"
)

// Wrap decorates next with an expiring LRU keyed by query text. A zero size
// or TTL disables caching and returns next unchanged.
func Wrap(next ports.EmbeddingProvider, size int, ttl time.Duration) ports.EmbeddingProvider {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &cachingEmbedder{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachingEmbedder struct {
	next  ports.EmbeddingProvider
	cache *expirable.LRU[string, []float32]
}

func (c *cachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := c.cache.Get(text); ok {
		slog.Debug("embedding_cache_hit", "chars", len(text))
		return cloneVector(cached), nil
	}

	vector, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) > 0 {
		c.cache.Add(text, cloneVector(vector))
	}
	return vector, nil
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
