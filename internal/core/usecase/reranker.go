package usecase

import (
	"context"
	"sort"
	"unicode/utf8"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/core/ports"
)

// RerankerService runs the second-pass relevance scoring over the fused
// shortlist. The scorer instance is created once at process start and shared
// across requests; per-request work is batched and bounded.
type RerankerService struct {
	scorer    ports.RelevanceScorer
	batchSize int
	maxChars  int
}

func NewRerankerService(scorer ports.RelevanceScorer, batchSize, maxChars int) *RerankerService {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &RerankerService{scorer: scorer, batchSize: batchSize, maxChars: maxChars}
}

// Rerank returns the top topR candidates by rerank score descending, ties
// kept in incoming fused order. Any scorer failure degrades to the fused
// order with rerank_score = fused_score, never an error: fellBack reports
// that the pass was a no-op.
func (s *RerankerService) Rerank(ctx context.Context, query string, candidates []domain.FusedResult, topR int) (results []domain.RerankedResult, fellBack bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	if topR <= 0 || topR > len(candidates) {
		topR = len(candidates)
	}
	if s.scorer == nil {
		return passThrough(candidates, topR), true
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = truncateRunes(c.Text, s.maxChars)
	}

	scores := make([]float64, len(candidates))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.scorer.ScoreBatch(ctx, query, texts[start:end])
		if err != nil || len(batch) != end-start {
			return passThrough(candidates, topR), true
		}
		copy(scores[start:end], batch)
	}

	results = make([]domain.RerankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.RerankedResult{FusedResult: c, RerankScore: scores[i]}
	}
	// Stable sort keeps the incoming fused order for equal scores, and the
	// final order depends only on scores, not on batch boundaries.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RerankScore > results[j].RerankScore
	})
	return results[:topR], false
}

func passThrough(candidates []domain.FusedResult, topR int) []domain.RerankedResult {
	out := make([]domain.RerankedResult, 0, topR)
	for _, c := range candidates[:topR] {
		out = append(out, domain.RerankedResult{FusedResult: c, RerankScore: c.FusedScore})
	}
	return out
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
