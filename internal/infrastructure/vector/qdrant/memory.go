package qdrant

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

// MemoryIndex is a brute-force in-process vector index used when no Qdrant
// URL is configured. Bootstrap seeds it from the chunk store at startup, so
// small corpora keep semantic search without running a vector database.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string][]float32)}
}

// Upsert stores or replaces the vector for one chunk.
func (m *MemoryIndex) Upsert(chunkID string, vector []float32) {
	if chunkID == "" || len(vector) == 0 {
		return
	}
	stored := make([]float32, len(vector))
	copy(stored, vector)

	m.mu.Lock()
	m.entries[chunkID] = stored
	m.mu.Unlock()
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Query scans every stored vector and returns the topK by cosine similarity
// descending, chunk id ascending for equal scores.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int) ([]domain.IndexHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	m.mu.RLock()
	hits := make([]domain.IndexHit, 0, len(m.entries))
	for id, stored := range m.entries {
		hits = append(hits, domain.IndexHit{ChunkID: id, RawScore: cosine(vector, stored)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].RawScore != hits[j].RawScore {
			return hits[i].RawScore > hits[j].RawScore
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
