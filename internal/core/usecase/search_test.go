package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

func TestSearchRejectsEmptyQuery(t *testing.T) {
	uc := NewSearchUseCase(&stubRetriever{}, nil)

	_, err := uc.Search(context.Background(), "  ", 10)
	if err == nil || !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSearchRejectsOverlongQuery(t *testing.T) {
	uc := NewSearchUseCase(&stubRetriever{}, nil)

	_, err := uc.Search(context.Background(), strings.Repeat("q", 501), 10)
	if err == nil || !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for overlong query, got %v", err)
	}
}

func TestSearchRejectsExcessiveLimit(t *testing.T) {
	retriever := &stubRetriever{}
	uc := NewSearchUseCase(retriever, nil)

	_, err := uc.Search(context.Background(), "vendor audits", 51)
	if err == nil || !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for limit 51, got %v", err)
	}
	if retriever.calls != 0 {
		t.Fatalf("expected no retrieval for rejected input")
	}
}

func TestSearchDefaultsLimit(t *testing.T) {
	retriever := &stubRetriever{outcome: domain.RetrievalOutcome{Mode: domain.RetrievalModeHybrid}}
	uc := NewSearchUseCase(retriever, nil)

	result, err := uc.Search(context.Background(), "vendor audits", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if retriever.gotLimit != 10 {
		t.Fatalf("expected default limit 10, got %d", retriever.gotLimit)
	}
	if result.Results == nil {
		t.Fatalf("expected empty result slice, got nil")
	}
}

func TestSearchSectionNotFoundIsNotFoundError(t *testing.T) {
	retriever := &stubRetriever{outcome: domain.RetrievalOutcome{
		Mode:            domain.RetrievalModeSection,
		SectionToken:    "7.7.7",
		SectionNotFound: true,
	}}
	uc := NewSearchUseCase(retriever, nil)

	_, err := uc.Search(context.Background(), "show 7.7.7", 10)
	if err == nil || !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !strings.Contains(err.Error(), "7.7.7") {
		t.Fatalf("expected the section token in the message, got %v", err)
	}
}

func TestSearchReturnsRankedResultsAndPublishes(t *testing.T) {
	outcome := sampleOutcome()
	outcome.Degraded = []string{"rerank_fallback"}
	events := &stubEventQueue{}
	uc := NewSearchUseCase(&stubRetriever{outcome: outcome}, events)

	result, err := uc.Search(context.Background(), "vendor audits", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].ChunkID != "ch-1" {
		t.Fatalf("expected retriever results passed through, got %#v", result.Results)
	}
	if result.Mode != domain.RetrievalModeHybrid {
		t.Fatalf("expected hybrid mode carried over, got %q", result.Mode)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded flag carried over")
	}
	if len(events.events) != 1 || events.events[0].Kind != domain.QueryKindSearch {
		t.Fatalf("expected search query event, got %#v", events.events)
	}
	if events.events[0].ResultCount != 1 || !events.events[0].Degraded {
		t.Fatalf("unexpected event payload %#v", events.events[0])
	}
}
