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

// turnState tracks a chat turn through its lifecycle. The states advance
// strictly forward; failed is reachable only for rejected input, every other
// problem degrades inside its phase.
type turnState string

const (
	turnStateNew           turnState = "new"
	turnStateHistoryLoaded turnState = "history_loaded"
	turnStateRetrieving    turnState = "retrieving"
	turnStateContextBuilt  turnState = "context_built"
	turnStateGenerating    turnState = "generating"
	turnStateDone          turnState = "done"
	turnStateFailed        turnState = "failed"
)

// ChatConfig bounds one conversational turn. Values are read once at
// startup.
type ChatConfig struct {
	HistoryWindow   int
	MaxMessageChars int
	MaxAnswerChars  int
	Temperature     float64
	MaxTokens       int
	LLMTimeout      time.Duration
}

func (c ChatConfig) normalize() ChatConfig {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	if c.MaxMessageChars <= 0 {
		c.MaxMessageChars = 1000
	}
	if c.MaxAnswerChars <= 0 {
		c.MaxAnswerChars = 8000
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.65
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 700
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 60 * time.Second
	}
	return c
}

// ChatOrchestrator drives one conversational turn: bounded history,
// retrieval over the latest message only, grounded generation with a
// degraded fallback, then persistence of exactly one user and one assistant
// message.
type ChatOrchestrator struct {
	retriever Retriever
	llm       ports.LLMProvider
	sessions  ports.SessionStore
	events    ports.QueryEventQueue
	cfg       ChatConfig
}

func NewChatOrchestrator(
	retriever Retriever,
	llm ports.LLMProvider,
	sessions ports.SessionStore,
	events ports.QueryEventQueue,
	cfg ChatConfig,
) *ChatOrchestrator {
	return &ChatOrchestrator{
		retriever: retriever,
		llm:       llm,
		sessions:  sessions,
		events:    events,
		cfg:       cfg.normalize(),
	}
}

// Chat runs one turn. An empty sessionID starts a new session and never
// errors; an unknown sessionID is adopted as-is so callers can hold on to
// ids across restarts.
func (uc *ChatOrchestrator) Chat(ctx context.Context, sessionID, message string) (*domain.ChatResult, error) {
	start := time.Now()
	state := turnStateNew

	message = strings.TrimSpace(message)
	if message == "" {
		state = turnStateFailed
		return nil, domain.WrapError(domain.ErrInvalidInput, turnOp(state), fmt.Errorf("message is required"))
	}
	if len(message) > uc.cfg.MaxMessageChars {
		state = turnStateFailed
		return nil, domain.WrapError(domain.ErrInvalidInput, turnOp(state),
			fmt.Errorf("message exceeds %d characters", uc.cfg.MaxMessageChars))
	}

	session, err := uc.ensureSession(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, turnOp(state), err)
	}
	history, err := uc.sessions.ListRecentMessages(ctx, session.ID, uc.cfg.HistoryWindow)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, turnOp(state), err)
	}
	state = turnStateHistoryLoaded

	// Retrieval sees only the latest user message. History shapes the
	// prompt below, never the search query.
	state = turnStateRetrieving
	outcome := uc.retriever.Retrieve(ctx, message, 0)

	state = turnStateContextBuilt
	prompt := buildPromptMessages(history, outcome, message)

	state = turnStateGenerating
	answer, degraded := uc.generate(ctx, prompt, outcome)

	// Persistence runs even if the caller has gone away: an answered turn
	// that silently vanishes is worse than a response nobody read.
	persistCtx := context.WithoutCancel(ctx)
	if err := uc.persistTurn(persistCtx, session.ID, message, answer); err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, turnOp(state), err)
	}
	state = turnStateDone

	latency := time.Since(start).Milliseconds()
	uc.publishEvent(persistCtx, domain.QueryEvent{
		ID:          uuid.NewString(),
		Kind:        domain.QueryKindChat,
		Query:       message,
		SessionID:   session.ID,
		ResultCount: len(outcome.Results),
		LatencyMS:   latency,
		Degraded:    degraded,
		CreatedAt:   time.Now().UTC(),
	})

	return &domain.ChatResult{
		Answer:        answer,
		Citations:     toCitations(outcome.Results),
		SessionID:     session.ID,
		LatencyMS:     latency,
		Degraded:      degraded,
		RetrievalMode: outcome.Mode,
	}, nil
}

// ListSessionMessages returns the full stored history of a session, oldest
// first.
func (uc *ChatOrchestrator) ListSessionMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list session messages", fmt.Errorf("session id is required"))
	}
	if _, err := uc.sessions.GetSession(ctx, sessionID); err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrUnavailable, "list session messages", err)
	}
	messages, err := uc.sessions.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "list session messages", err)
	}
	return messages, nil
}

func (uc *ChatOrchestrator) ensureSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	now := time.Now().UTC()

	if sessionID == "" {
		session := &domain.ChatSession{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
		if err := uc.sessions.CreateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return session, nil
	}

	session, err := uc.sessions.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load session: %w", err)
	}

	session = &domain.ChatSession{ID: sessionID, CreatedAt: now, UpdatedAt: now}
	if err := uc.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("adopt session: %w", err)
	}
	return session, nil
}

func (uc *ChatOrchestrator) generate(ctx context.Context, prompt []domain.PromptMessage, outcome domain.RetrievalOutcome) (answer string, degraded bool) {
	degraded = outcome.IsDegraded()

	genCtx, cancel := context.WithTimeout(ctx, uc.cfg.LLMTimeout)
	defer cancel()

	answer, err := uc.llm.Complete(genCtx, prompt, uc.cfg.Temperature, uc.cfg.MaxTokens)
	if err != nil || !answerPassesQualityCheck(answer, uc.cfg.MaxAnswerChars) {
		return fallbackAnswer(outcome), true
	}
	return strings.TrimSpace(answer), degraded
}

// persistTurn appends the user and assistant messages and touches the
// session, as one final explicit step after generation.
func (uc *ChatOrchestrator) persistTurn(ctx context.Context, sessionID, userText, assistantText string) error {
	if err := uc.sessions.AppendMessage(ctx, &domain.ChatMessage{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   userText,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	if err := uc.sessions.AppendMessage(ctx, &domain.ChatMessage{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   assistantText,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	if err := uc.sessions.TouchSession(ctx, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (uc *ChatOrchestrator) publishEvent(ctx context.Context, event domain.QueryEvent) {
	if uc.events == nil {
		return
	}
	// Analytics must never fail a served turn.
	_ = uc.events.PublishQueryEvent(ctx, event)
}

func turnOp(state turnState) string {
	return "chat turn [" + string(state) + "]"
}
