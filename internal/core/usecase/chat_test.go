package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

type stubRetriever struct {
	outcome domain.RetrievalOutcome

	calls    int
	gotQuery string
	gotLimit int
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, limit int) domain.RetrievalOutcome {
	s.calls++
	s.gotQuery = query
	s.gotLimit = limit
	return s.outcome
}

type stubLLM struct {
	answer string
	err    error

	calls          int
	gotMessages    []domain.PromptMessage
	gotTemperature float64
	gotMaxTokens   int
}

func (s *stubLLM) Complete(_ context.Context, messages []domain.PromptMessage, temperature float64, maxTokens int) (string, error) {
	s.calls++
	s.gotMessages = messages
	s.gotTemperature = temperature
	s.gotMaxTokens = maxTokens
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type memorySessionStore struct {
	sessions map[string]*domain.ChatSession
	messages map[string][]domain.ChatMessage

	created      []string
	touched      []string
	gotListLimit int
	appendErr    error
	nextID       int64
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{
		sessions: map[string]*domain.ChatSession{},
		messages: map[string][]domain.ChatMessage{},
	}
}

func (s *memorySessionStore) CreateSession(_ context.Context, session *domain.ChatSession) error {
	s.created = append(s.created, session.ID)
	s.sessions[session.ID] = session
	return nil
}

func (s *memorySessionStore) GetSession(_ context.Context, id string) (*domain.ChatSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get session", fmt.Errorf("session %s", id))
	}
	return session, nil
}

func (s *memorySessionStore) TouchSession(_ context.Context, id string) error {
	s.touched = append(s.touched, id)
	return nil
}

func (s *memorySessionStore) AppendMessage(_ context.Context, message *domain.ChatMessage) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.nextID++
	message.ID = s.nextID
	s.messages[message.SessionID] = append(s.messages[message.SessionID], *message)
	return nil
}

func (s *memorySessionStore) ListRecentMessages(_ context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	s.gotListLimit = limit
	all := s.messages[sessionID]
	if len(all) <= limit {
		return append([]domain.ChatMessage(nil), all...), nil
	}
	return append([]domain.ChatMessage(nil), all[len(all)-limit:]...), nil
}

func (s *memorySessionStore) ListMessages(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	return append([]domain.ChatMessage(nil), s.messages[sessionID]...), nil
}

type stubEventQueue struct {
	events []domain.QueryEvent
}

func (q *stubEventQueue) PublishQueryEvent(_ context.Context, event domain.QueryEvent) error {
	q.events = append(q.events, event)
	return nil
}

func (q *stubEventQueue) SubscribeQueryEvents(context.Context, func(context.Context, domain.QueryEvent) error) error {
	return nil
}

func sampleOutcome() domain.RetrievalOutcome {
	return domain.RetrievalOutcome{
		Mode: domain.RetrievalModeHybrid,
		Results: []domain.RerankedResult{{
			FusedResult: domain.FusedResult{
				ChunkID:    "ch-1",
				FusedScore: 0.8,
				Sources:    []domain.CandidateSource{domain.SourceSemantic},
				DocID:      "doc-1",
				Snippet:    "alpha snippet",
				Text:       "alpha passage",
			},
			RerankScore: 0.9,
		}},
	}
}

func TestChatAssignsNewSessionID(t *testing.T) {
	store := newMemorySessionStore()
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()},
		&stubLLM{answer: "Grounded answer [1]."}, store, nil, ChatConfig{})

	result, err := uc.Chat(context.Background(), "", "What are the vendor audit requirements?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if result.SessionID == "" {
		t.Fatalf("expected generated session id")
	}
	if len(store.created) != 1 || store.created[0] != result.SessionID {
		t.Fatalf("expected session created once, got %v", store.created)
	}
}

func TestChatAdoptsUnknownSessionID(t *testing.T) {
	store := newMemorySessionStore()
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()},
		&stubLLM{answer: "Grounded answer [1]."}, store, nil, ChatConfig{})

	result, err := uc.Chat(context.Background(), "sess-legacy", "What are the vendor audit requirements?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if result.SessionID != "sess-legacy" {
		t.Fatalf("expected supplied session id preserved, got %q", result.SessionID)
	}
	if len(store.created) != 1 || store.created[0] != "sess-legacy" {
		t.Fatalf("expected unknown session adopted, got %v", store.created)
	}
}

func TestChatReusesExistingSession(t *testing.T) {
	store := newMemorySessionStore()
	store.sessions["s1"] = &domain.ChatSession{ID: "s1", CreatedAt: time.Now().UTC()}
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()},
		&stubLLM{answer: "Grounded answer [1]."}, store, nil, ChatConfig{})

	result, err := uc.Chat(context.Background(), "s1", "What are the vendor audit requirements?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if result.SessionID != "s1" {
		t.Fatalf("expected existing session reused, got %q", result.SessionID)
	}
	if len(store.created) != 0 {
		t.Fatalf("expected no session creation, got %v", store.created)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	store := newMemorySessionStore()
	retriever := &stubRetriever{outcome: sampleOutcome()}
	llm := &stubLLM{answer: "unused"}
	uc := NewChatOrchestrator(retriever, llm, store, nil, ChatConfig{})

	_, err := uc.Chat(context.Background(), "", "   ")
	if err == nil || !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if retriever.calls != 0 || llm.calls != 0 {
		t.Fatalf("expected no retrieval or generation for rejected input")
	}
	if len(store.created) != 0 || len(store.messages) != 0 {
		t.Fatalf("expected nothing persisted for rejected input")
	}
}

func TestChatRejectsOverlongMessage(t *testing.T) {
	store := newMemorySessionStore()
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()},
		&stubLLM{answer: "unused"}, store, nil, ChatConfig{})

	_, err := uc.Chat(context.Background(), "", strings.Repeat("a", 1001))
	if err == nil || !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for overlong message, got %v", err)
	}
	if len(store.messages) != 0 {
		t.Fatalf("expected nothing persisted for rejected input")
	}
}

func TestChatPersistsExactlyOneTurn(t *testing.T) {
	store := newMemorySessionStore()
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()},
		&stubLLM{answer: "Grounded answer [1]."}, store, nil, ChatConfig{})

	result, err := uc.Chat(context.Background(), "", "What are the vendor audit requirements?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	persisted := store.messages[result.SessionID]
	if len(persisted) != 2 {
		t.Fatalf("expected exactly user+assistant persisted, got %d", len(persisted))
	}
	if persisted[0].Role != domain.RoleUser || persisted[0].Content != "What are the vendor audit requirements?" {
		t.Fatalf("expected user message first, got %#v", persisted[0])
	}
	if persisted[1].Role != domain.RoleAssistant || persisted[1].Content != result.Answer {
		t.Fatalf("expected assistant message second, got %#v", persisted[1])
	}
	if len(store.touched) != 1 || store.touched[0] != result.SessionID {
		t.Fatalf("expected session touched once, got %v", store.touched)
	}
}

func TestChatHistoryWindowBounded(t *testing.T) {
	store := newMemorySessionStore()
	store.sessions["s1"] = &domain.ChatSession{ID: "s1"}
	for i := 1; i <= 15; i++ {
		role := domain.RoleUser
		if i%2 == 0 {
			role = domain.RoleAssistant
		}
		store.messages["s1"] = append(store.messages["s1"], domain.ChatMessage{
			SessionID: "s1",
			Role:      role,
			Content:   fmt.Sprintf("m%d", i),
		})
	}
	llm := &stubLLM{answer: "Grounded answer [1]."}
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()}, llm, store, nil, ChatConfig{})

	if _, err := uc.Chat(context.Background(), "s1", "follow-up question about audits"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if store.gotListLimit != 10 {
		t.Fatalf("expected history window 10 requested, got %d", store.gotListLimit)
	}
	// system + 10 history + current user message
	if len(llm.gotMessages) != 12 {
		t.Fatalf("expected 12 prompt messages, got %d", len(llm.gotMessages))
	}
	if llm.gotMessages[1].Content != "m6" {
		t.Fatalf("expected history to start at m6, got %q", llm.gotMessages[1].Content)
	}
	if llm.gotMessages[10].Content != "m15" {
		t.Fatalf("expected history to end at m15, got %q", llm.gotMessages[10].Content)
	}
}

func TestChatRetrievalSeesOnlyLatestMessage(t *testing.T) {
	store := newMemorySessionStore()
	store.sessions["s1"] = &domain.ChatSession{ID: "s1"}
	store.messages["s1"] = []domain.ChatMessage{
		{SessionID: "s1", Role: domain.RoleUser, Content: "earlier question about invoices"},
		{SessionID: "s1", Role: domain.RoleAssistant, Content: "earlier answer"},
	}
	retriever := &stubRetriever{outcome: sampleOutcome()}
	uc := NewChatOrchestrator(retriever, &stubLLM{answer: "Grounded answer [1]."}, store, nil, ChatConfig{})

	if _, err := uc.Chat(context.Background(), "s1", "and what about audits?"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if retriever.calls != 1 {
		t.Fatalf("expected a single retrieval, got %d", retriever.calls)
	}
	if retriever.gotQuery != "and what about audits?" {
		t.Fatalf("expected only the latest message retrieved, got %q", retriever.gotQuery)
	}
	if retriever.gotLimit != 0 {
		t.Fatalf("expected configured sizes for chat retrieval, got limit %d", retriever.gotLimit)
	}
}

func TestChatZeroResultsStillGenerates(t *testing.T) {
	store := newMemorySessionStore()
	llm := &stubLLM{answer: "I couldn't find relevant information in the provided documents."}
	uc := NewChatOrchestrator(&stubRetriever{outcome: domain.RetrievalOutcome{Mode: domain.RetrievalModeHybrid}},
		llm, store, nil, ChatConfig{})

	result, err := uc.Chat(context.Background(), "", "completely unrelated question")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if llm.calls != 1 {
		t.Fatalf("expected generation to run with empty context, got %d calls", llm.calls)
	}
	last := llm.gotMessages[len(llm.gotMessages)-1]
	if !strings.Contains(last.Content, "No matching content was found") {
		t.Fatalf("expected explicit empty-context note in prompt, got %q", last.Content)
	}
	if len(result.Citations) != 0 {
		t.Fatalf("expected no citations, got %d", len(result.Citations))
	}
	if len(store.messages[result.SessionID]) != 2 {
		t.Fatalf("expected the turn persisted, got %d messages", len(store.messages[result.SessionID]))
	}
}

func TestChatDegradedRetrievalStillAnswers(t *testing.T) {
	outcome := sampleOutcome()
	outcome.Degraded = []string{"semantic_unavailable"}
	llm := &stubLLM{answer: "Partial but grounded answer [1]."}
	uc := NewChatOrchestrator(&stubRetriever{outcome: outcome}, llm, newMemorySessionStore(), nil, ChatConfig{})

	result, err := uc.Chat(context.Background(), "", "vendor audits?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded flag carried into the result")
	}
	if result.Answer != "Partial but grounded answer [1]." {
		t.Fatalf("expected generated answer, got %q", result.Answer)
	}
}

func TestChatGenerationFailureFallsBack(t *testing.T) {
	store := newMemorySessionStore()
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()},
		&stubLLM{err: errors.New("provider 503")}, store, nil, ChatConfig{})

	result, err := uc.Chat(context.Background(), "", "vendor audits?")
	if err != nil {
		t.Fatalf("expected degraded answer instead of error, got %v", err)
	}
	if !strings.HasPrefix(result.Answer, "I couldn't generate a complete answer right now.") {
		t.Fatalf("expected snippet fallback answer, got %q", result.Answer)
	}
	if !strings.Contains(result.Answer, "alpha snippet") {
		t.Fatalf("expected top snippet listed, got %q", result.Answer)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded flag after generation failure")
	}
	persisted := store.messages[result.SessionID]
	if len(persisted) != 2 || persisted[1].Content != result.Answer {
		t.Fatalf("expected fallback answer persisted, got %#v", persisted)
	}
}

func TestChatRefusalAnswerFallsBack(t *testing.T) {
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()},
		&stubLLM{answer: "As an AI language model, I cannot answer that."},
		newMemorySessionStore(), nil, ChatConfig{})

	result, err := uc.Chat(context.Background(), "", "vendor audits?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if strings.HasPrefix(strings.ToLower(result.Answer), "as an ai") {
		t.Fatalf("expected refusal boilerplate replaced, got %q", result.Answer)
	}
	if !result.Degraded {
		t.Fatalf("expected degraded flag after quality rejection")
	}
}

func TestChatPersistFailureReturnsUnavailable(t *testing.T) {
	store := newMemorySessionStore()
	store.appendErr = errors.New("db down")
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()},
		&stubLLM{answer: "Grounded answer [1]."}, store, nil, ChatConfig{})

	_, err := uc.Chat(context.Background(), "", "vendor audits?")
	if err == nil || !domain.IsKind(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable error when the turn cannot be stored, got %v", err)
	}
}

func TestChatPublishesQueryEvent(t *testing.T) {
	events := &stubEventQueue{}
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()},
		&stubLLM{answer: "Grounded answer [1]."}, newMemorySessionStore(), events, ChatConfig{})

	result, err := uc.Chat(context.Background(), "", "vendor audits?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one query event, got %d", len(events.events))
	}
	event := events.events[0]
	if event.Kind != domain.QueryKindChat || event.SessionID != result.SessionID {
		t.Fatalf("unexpected event %#v", event)
	}
	if event.Query != "vendor audits?" || event.ResultCount != 1 {
		t.Fatalf("unexpected event payload %#v", event)
	}
}

func TestChatForwardsGenerationSettings(t *testing.T) {
	llm := &stubLLM{answer: "Grounded answer [1]."}
	uc := NewChatOrchestrator(&stubRetriever{outcome: sampleOutcome()}, llm, newMemorySessionStore(), nil, ChatConfig{})

	if _, err := uc.Chat(context.Background(), "", "vendor audits?"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if llm.gotTemperature != 0.65 {
		t.Fatalf("expected temperature 0.65, got %f", llm.gotTemperature)
	}
	if llm.gotMaxTokens != 700 {
		t.Fatalf("expected max tokens 700, got %d", llm.gotMaxTokens)
	}
}

func TestListSessionMessagesUnknownSession(t *testing.T) {
	uc := NewChatOrchestrator(&stubRetriever{}, &stubLLM{}, newMemorySessionStore(), nil, ChatConfig{})

	_, err := uc.ListSessionMessages(context.Background(), "missing")
	if err == nil || !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListSessionMessagesReturnsFullHistory(t *testing.T) {
	store := newMemorySessionStore()
	store.sessions["s1"] = &domain.ChatSession{ID: "s1"}
	store.messages["s1"] = []domain.ChatMessage{
		{SessionID: "s1", Role: domain.RoleUser, Content: "q1"},
		{SessionID: "s1", Role: domain.RoleAssistant, Content: "a1"},
		{SessionID: "s1", Role: domain.RoleUser, Content: "q2"},
	}
	uc := NewChatOrchestrator(&stubRetriever{}, &stubLLM{}, store, nil, ChatConfig{})

	messages, err := uc.ListSessionMessages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ListSessionMessages() error = %v", err)
	}
	if len(messages) != 3 || messages[0].Content != "q1" {
		t.Fatalf("expected full ordered history, got %#v", messages)
	}
}

func TestChatSectionLookupEndToEnd(t *testing.T) {
	f := newPipelineFixture(nil, RetrievalConfig{})
	f.store.bySection["3.1"] = []domain.Chunk{{
		ID:        "ch-00031",
		DocID:     "vendor-handbook.pdf",
		SectionID: "3.1",
		PageFrom:  intPtr(12),
		PageTo:    intPtr(12),
		Text:      "Section 3.1: vendors must undergo annual compliance audits.",
	}}
	store := newMemorySessionStore()
	llm := &stubLLM{answer: "Vendors must undergo annual compliance audits [1]."}
	uc := NewChatOrchestrator(f.pipeline, llm, store, nil, ChatConfig{})

	result, err := uc.Chat(context.Background(), "", "What does section 3.1 require for vendor audits?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if result.RetrievalMode != domain.RetrievalModeSection {
		t.Fatalf("expected section retrieval mode, got %s", result.RetrievalMode)
	}
	if len(result.Citations) != 1 || result.Citations[0].ChunkID != "ch-00031" {
		t.Fatalf("expected exactly the section chunk cited, got %#v", result.Citations)
	}
	if result.Citations[0].Score != 1 {
		t.Fatalf("expected maximal section confidence, got %f", result.Citations[0].Score)
	}
	last := llm.gotMessages[len(llm.gotMessages)-1]
	if !strings.Contains(last.Content, "[1] Document: vendor-handbook.pdf (Page 12)") {
		t.Fatalf("expected labeled context block, got %q", last.Content)
	}
	if f.lexIndex.calls != 0 || f.vecIndex.calls != 0 {
		t.Fatalf("expected hybrid indexes untouched for a section query")
	}
}
