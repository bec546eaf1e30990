package ports

import (
	"context"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

// ChunkStore reads ingested chunks. Retrieval never writes chunks.
type ChunkStore interface {
	GetBySectionID(ctx context.Context, sectionID string) ([]domain.Chunk, error)
	GetByAliasID(ctx context.Context, aliasID string) ([]domain.Chunk, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error)
}

// LexicalIndex answers keyword queries with native-scale relevance scores.
type LexicalIndex interface {
	Query(ctx context.Context, terms []string, topK int) ([]domain.IndexHit, error)
}

// VectorIndex answers nearest-neighbor queries under cosine similarity.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]domain.IndexHit, error)
}

// EmbeddingProvider turns query text into a vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LLMProvider generates a completion from role-tagged messages.
type LLMProvider interface {
	Complete(ctx context.Context, messages []domain.PromptMessage, temperature float64, maxTokens int) (string, error)
}

// RelevanceScorer scores query/text pairs for the reranking pass. One
// instance is created at process start and shared across requests.
type RelevanceScorer interface {
	ScoreBatch(ctx context.Context, query string, texts []string) ([]float64, error)
}

// SessionStore persists chat sessions and their messages.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.ChatSession) error
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)
	TouchSession(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, message *domain.ChatMessage) error
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}

// QueryLogStore persists query analytics records.
type QueryLogStore interface {
	InsertQueryEvent(ctx context.Context, event domain.QueryEvent) error
}

// QueryEventQueue publishes/consumes query analytics events.
type QueryEventQueue interface {
	PublishQueryEvent(ctx context.Context, event domain.QueryEvent) error
	SubscribeQueryEvents(ctx context.Context, handler func(context.Context, domain.QueryEvent) error) error
}
