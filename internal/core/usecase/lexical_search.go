package usecase

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/core/ports"
	"github.com/mkorchagin/docqa/internal/lexicon"
)

// LexicalSearchService turns a natural-language query into a term query
// against the lexical index. Raw substring matching under-matches, so the
// query is reduced to meaningful terms and every term is expanded through
// the synonym table before hitting the index.
type LexicalSearchService struct {
	index ports.LexicalIndex
	lex   *lexicon.Lexicon
}

func NewLexicalSearchService(index ports.LexicalIndex, lex *lexicon.Lexicon) *LexicalSearchService {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &LexicalSearchService{index: index, lex: lex}
}

// Search returns at most topK candidates ordered by normalized score
// descending. Index failures come back wrapped as temporary.
func (s *LexicalSearchService) Search(ctx context.Context, query string, topK int) ([]domain.SearchCandidate, error) {
	if topK <= 0 {
		topK = 20
	}

	terms := s.ExpandTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	hits, err := s.index.Query(ctx, terms, topK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "lexical search", err)
	}

	candidates := make([]domain.SearchCandidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, domain.SearchCandidate{
			ChunkID:         hit.ChunkID,
			Source:          domain.SourceLexical,
			RawScore:        hit.RawScore,
			NormalizedScore: saturate(hit.RawScore),
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

// ExtractTerms reduces the query to lowercase alphanumeric terms with
// stopwords and single-character fragments removed, preserving order.
func (s *LexicalSearchService) ExtractTerms(query string) []string {
	tokens := splitAlphaNumLower(query)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) < 2 || s.lex.IsStopword(token) {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		terms = append(terms, token)
	}
	return terms
}

// ExpandTerms runs ExtractTerms and expands every term through the synonym
// table. All variants of all matched terms feed the index query.
func (s *LexicalSearchService) ExpandTerms(query string) []string {
	base := s.ExtractTerms(query)
	seen := make(map[string]struct{}, len(base)*2)
	expanded := make([]string, 0, len(base)*2)
	for _, term := range base {
		for _, variant := range s.lex.Expand(term) {
			if _, ok := seen[variant]; ok {
				continue
			}
			seen[variant] = struct{}{}
			expanded = append(expanded, variant)
		}
	}
	return expanded
}

// saturate maps a native non-negative relevance score onto [0,1). The
// function is fixed and monotonic so fused rankings stay deterministic
// across calls and index backends.
func saturate(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return raw / (raw + 1)
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
