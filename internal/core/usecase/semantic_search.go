package usecase

import (
	"context"
	"errors"
	"sort"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/core/ports"
)

var errEmptyVector = errors.New("empty embedding vector")

// SemanticSearchService embeds the query and asks the vector index for
// nearest neighbors under cosine similarity.
type SemanticSearchService struct {
	embedder ports.EmbeddingProvider
	index    ports.VectorIndex
}

func NewSemanticSearchService(embedder ports.EmbeddingProvider, index ports.VectorIndex) *SemanticSearchService {
	return &SemanticSearchService{embedder: embedder, index: index}
}

// Search returns at most topK candidates ordered by similarity descending.
// Provider failures come back wrapped as temporary; the retrieval pipeline
// downgrades them to an empty candidate set instead of failing the request.
func (s *SemanticSearchService) Search(ctx context.Context, query string, topK int) ([]domain.SearchCandidate, error) {
	if topK <= 0 {
		topK = 20
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "embed query", err)
	}
	if len(vector) == 0 {
		return nil, domain.WrapError(domain.ErrTemporary, "embed query", errEmptyVector)
	}

	hits, err := s.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "vector search", err)
	}

	candidates := make([]domain.SearchCandidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, domain.SearchCandidate{
			ChunkID:         hit.ChunkID,
			Source:          domain.SourceSemantic,
			RawScore:        hit.RawScore,
			NormalizedScore: clamp01(hit.RawScore),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].NormalizedScore > candidates[j].NormalizedScore
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
