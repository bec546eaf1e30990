package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/core/ports"
)

const (
	searchQueryMaxChars = 500
	searchLimitDefault  = 10
	searchLimitMax      = 50
)

// SearchUseCase exposes the retrieval pipeline without the conversational
// wrapper: no session, no generation, just ranked passages.
type SearchUseCase struct {
	retriever Retriever
	events    ports.QueryEventQueue
}

func NewSearchUseCase(retriever Retriever, events ports.QueryEventQueue) *SearchUseCase {
	return &SearchUseCase{retriever: retriever, events: events}
}

func (uc *SearchUseCase) Search(ctx context.Context, query string, limit int) (*domain.SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	if len(query) > searchQueryMaxChars {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search",
			fmt.Errorf("query exceeds %d characters", searchQueryMaxChars))
	}
	if limit == 0 {
		limit = searchLimitDefault
	}
	if limit < 0 || limit > searchLimitMax {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search",
			fmt.Errorf("limit must be between 1 and %d", searchLimitMax))
	}

	outcome := uc.retriever.Retrieve(ctx, query, limit)
	if outcome.SectionNotFound {
		return nil, domain.WrapError(domain.ErrNotFound, "search",
			fmt.Errorf("section %s not found in the indexed documents", outcome.SectionToken))
	}

	latency := time.Since(start).Milliseconds()
	if uc.events != nil {
		_ = uc.events.PublishQueryEvent(context.WithoutCancel(ctx), domain.QueryEvent{
			ID:          uuid.NewString(),
			Kind:        domain.QueryKindSearch,
			Query:       query,
			ResultCount: len(outcome.Results),
			LatencyMS:   latency,
			Degraded:    outcome.IsDegraded(),
			CreatedAt:   time.Now().UTC(),
		})
	}

	results := outcome.Results
	if results == nil {
		results = []domain.RerankedResult{}
	}
	return &domain.SearchResult{
		Results:   results,
		Mode:      outcome.Mode,
		LatencyMS: latency,
		Degraded:  outcome.IsDegraded(),
	}, nil
}
