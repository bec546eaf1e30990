package usecase

import (
	"sort"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

// FusionWeights are the fixed per-source weights. They are read once at
// startup and never renormalized per query.
type FusionWeights struct {
	Semantic float64
	Lexical  float64
}

// FusionEngine merges the lexical and semantic candidate sets into one
// deterministically ordered list.
type FusionEngine struct {
	weights FusionWeights
	size    int
}

func NewFusionEngine(weights FusionWeights, size int) *FusionEngine {
	if weights.Semantic <= 0 && weights.Lexical <= 0 {
		weights = FusionWeights{Semantic: 0.6, Lexical: 0.4}
	}
	if size <= 0 {
		size = 10
	}
	return &FusionEngine{weights: weights, size: size}
}

// Fuse scores every chunk id present in either list as
// w_sem*semantic + w_lex*lexical, using 0 for a missing side. A size of 0
// falls back to the configured fused return size. Truncation happens only
// after the full sort.
func (e *FusionEngine) Fuse(lexical, semantic []domain.SearchCandidate, size int) []domain.FusedResult {
	if size <= 0 {
		size = e.size
	}

	acc := make(map[string]*domain.FusedResult, len(lexical)+len(semantic))
	entry := func(chunkID string) *domain.FusedResult {
		if existing, ok := acc[chunkID]; ok {
			return existing
		}
		created := &domain.FusedResult{ChunkID: chunkID}
		acc[chunkID] = created
		return created
	}

	for _, c := range lexical {
		fr := entry(c.ChunkID)
		if c.NormalizedScore > fr.LexicalScore {
			fr.LexicalScore = c.NormalizedScore
		}
		if !fr.HasSource(domain.SourceLexical) {
			fr.Sources = append(fr.Sources, domain.SourceLexical)
		}
	}
	for _, c := range semantic {
		fr := entry(c.ChunkID)
		if c.NormalizedScore > fr.SemanticScore {
			fr.SemanticScore = c.NormalizedScore
		}
		if !fr.HasSource(domain.SourceSemantic) {
			fr.Sources = append(fr.Sources, domain.SourceSemantic)
		}
	}

	out := make([]domain.FusedResult, 0, len(acc))
	for _, fr := range acc {
		fr.FusedScore = e.weights.Semantic*fr.SemanticScore + e.weights.Lexical*fr.LexicalScore
		sort.Slice(fr.Sources, func(i, j int) bool { return fr.Sources[i] < fr.Sources[j] })
		out = append(out, *fr)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		iDual := len(out[i].Sources) > 1
		jDual := len(out[j].Sources) > 1
		if iDual != jDual {
			return iDual
		}
		if out[i].SemanticScore != out[j].SemanticScore {
			return out[i].SemanticScore > out[j].SemanticScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	if len(out) > size {
		out = out[:size]
	}
	return out
}
