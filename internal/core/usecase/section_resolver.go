package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/core/ports"
)

// sectionTokenPattern matches dot-separated integer groups such as "5.22.3".
// A bare integer is not treated as a section identifier: it would capture
// ordinary numbers ("list 3 steps") and divert them from the hybrid path.
var sectionTokenPattern = regexp.MustCompile(`\b\d+(?:\.\d+)+\b`)

// SectionResolver answers queries that name a structural section identifier
// by direct chunk lookup, bypassing ranking entirely.
type SectionResolver struct {
	chunks ports.ChunkStore
}

func NewSectionResolver(chunks ports.ChunkStore) *SectionResolver {
	return &SectionResolver{chunks: chunks}
}

// Resolve returns the chunks for the first section identifier found in the
// query. token is empty when the query names no identifier; a non-empty
// token with no chunks means the identifier resolved to nothing even after
// one parent fallback. Pure read, no side effects.
func (r *SectionResolver) Resolve(ctx context.Context, query string) (matched []domain.Chunk, token string, err error) {
	token = sectionTokenPattern.FindString(query)
	if token == "" {
		return nil, "", nil
	}

	matched, err = r.lookup(ctx, token)
	if err != nil {
		return nil, token, err
	}
	if len(matched) > 0 {
		return matched, token, nil
	}

	// One parent fallback level: 5.22.3 -> 5.22, never further.
	if idx := strings.LastIndex(token, "."); idx > 0 {
		matched, err = r.lookup(ctx, token[:idx])
		if err != nil {
			return nil, token, err
		}
	}
	return matched, token, nil
}

func (r *SectionResolver) lookup(ctx context.Context, id string) ([]domain.Chunk, error) {
	bySection, err := r.chunks.GetBySectionID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("chunks by section id: %w", err)
	}
	byAlias, err := r.chunks.GetByAliasID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("chunks by alias id: %w", err)
	}
	if len(byAlias) == 0 {
		return bySection, nil
	}

	seen := make(map[string]struct{}, len(bySection))
	merged := make([]domain.Chunk, 0, len(bySection)+len(byAlias))
	for _, c := range bySection {
		seen[c.ID] = struct{}{}
		merged = append(merged, c)
	}
	for _, c := range byAlias {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		merged = append(merged, c)
	}
	return merged, nil
}
