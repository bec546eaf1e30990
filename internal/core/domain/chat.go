package domain

import "time"

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatSession groups the turns of one conversation. Sessions are created
// implicitly on the first turn without a session id and are never deleted
// automatically; starting a new conversation just stops reusing the id.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one stored message. Messages within a session are strictly
// ordered by CreatedAt; a successful turn appends exactly one user and one
// assistant message.
type ChatMessage struct {
	ID        int64       `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// PromptMessage is a role-tagged message sent to the language model. Prompt
// messages are assembled per turn and never persisted.
type PromptMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// QueryKind labels the origin of a logged query.
type QueryKind string

const (
	QueryKindSearch QueryKind = "search"
	QueryKindChat   QueryKind = "chat"
)

// QueryEvent is the analytics record emitted after every search and chat
// turn. Events travel through the queue and land in the query log; losing one
// must never fail the request that produced it.
type QueryEvent struct {
	ID          string    `json:"id"`
	Kind        QueryKind `json:"kind"`
	Query       string    `json:"query"`
	SessionID   string    `json:"session_id,omitempty"`
	ResultCount int       `json:"result_count"`
	LatencyMS   int64     `json:"latency_ms"`
	Degraded    bool      `json:"degraded"`
	CreatedAt   time.Time `json:"created_at"`
}
