package ports

import (
	"context"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

// SearchService is the inbound contract for the non-conversational path.
type SearchService interface {
	Search(ctx context.Context, query string, limit int) (*domain.SearchResult, error)
}

// ChatService is the inbound contract for conversational turns. An empty
// sessionID starts a new session.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (*domain.ChatResult, error)
}

// SessionReader is the inbound read model for stored conversations.
type SessionReader interface {
	ListSessionMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}
