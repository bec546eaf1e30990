package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/observability/metrics"
)

type stubSearchService struct {
	gotQuery string
	gotLimit int
	result   *domain.SearchResult
	err      error
}

func (s *stubSearchService) Search(_ context.Context, query string, limit int) (*domain.SearchResult, error) {
	s.gotQuery, s.gotLimit = query, limit
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &domain.SearchResult{Results: []domain.RerankedResult{}}, nil
}

type stubChatService struct {
	gotSessionID string
	gotMessage   string
	result       *domain.ChatResult
	err          error
}

func (s *stubChatService) Chat(_ context.Context, sessionID, message string) (*domain.ChatResult, error) {
	s.gotSessionID, s.gotMessage = sessionID, message
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &domain.ChatResult{Answer: "ok", SessionID: sessionID, Citations: []domain.Citation{}}, nil
}

type stubSessionReader struct {
	gotSessionID string
	messages     []domain.ChatMessage
	err          error
}

func (s *stubSessionReader) ListSessionMessages(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	s.gotSessionID = sessionID
	if s.err != nil {
		return nil, s.err
	}
	return s.messages, nil
}

type stubPinger struct {
	err error
}

func (p stubPinger) PingContext(context.Context) error { return p.err }

func newTestRouter(search *stubSearchService, chat *stubChatService, sessions *stubSessionReader) *Router {
	if search == nil {
		search = &stubSearchService{}
	}
	if chat == nil {
		chat = &stubChatService{}
	}
	if sessions == nil {
		sessions = &stubSessionReader{}
	}
	return NewRouter(search, chat, sessions, stubPinger{}, metrics.NewHTTPServerMetrics("api"), RouterConfig{
		ServiceName:    "api",
		RateLimitQPS:   1000,
		RateLimitBurst: 1000,
		MaxInFlight:    8,
	})
}

func newTestHandler(t *testing.T, rt *Router) http.Handler {
	t.Helper()
	handler, err := rt.Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	return handler
}

func decodeErrorEnvelope(t *testing.T, res *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var envelope errorEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error
}

func TestSearchEndpointReturnsRankedResults(t *testing.T) {
	search := &stubSearchService{result: &domain.SearchResult{
		Results: []domain.RerankedResult{{
			FusedResult: domain.FusedResult{ChunkID: "ch-1", DocID: "doc-1", Snippet: "vendor audit cadence"},
			RerankScore: 0.9,
		}},
		Mode:      domain.RetrievalModeHybrid,
		LatencyMS: 12,
	}}
	handler := newTestHandler(t, newTestRouter(search, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=vendor+audits&limit=5", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	if search.gotQuery != "vendor audits" || search.gotLimit != 5 {
		t.Fatalf("unexpected use case args: q=%q limit=%d", search.gotQuery, search.gotLimit)
	}

	var body struct {
		Results []struct {
			ChunkID string `json:"chunk_id"`
		} `json:"results"`
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].ChunkID != "ch-1" {
		t.Fatalf("unexpected results payload: %+v", body.Results)
	}
	if body.Mode != "hybrid" {
		t.Fatalf("expected hybrid mode in payload, got %q", body.Mode)
	}
}

func TestSearchEndpointRequiresQueryParameter(t *testing.T) {
	search := &stubSearchService{}
	handler := newTestHandler(t, newTestRouter(search, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing q, got %d", res.Code)
	}
	if payload := decodeErrorEnvelope(t, res); payload.Code != codeValidation {
		t.Fatalf("expected %s, got %q", codeValidation, payload.Code)
	}
	if search.gotQuery != "" {
		t.Fatalf("expected request rejected before the use case")
	}
}

func TestSearchEndpointRejectsNonIntegerLimit(t *testing.T) {
	handler := newTestHandler(t, newTestRouter(nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=audit&limit=many", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-integer limit, got %d", res.Code)
	}
	if payload := decodeErrorEnvelope(t, res); payload.Code != codeValidation {
		t.Fatalf("expected %s, got %q", codeValidation, payload.Code)
	}
}

func TestSearchSectionNotFoundMapsTo404(t *testing.T) {
	search := &stubSearchService{err: domain.WrapError(domain.ErrNotFound, "search",
		fmt.Errorf("section 9.9.9 not found in the indexed documents"))}
	handler := newTestHandler(t, newTestRouter(search, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=see+9.9.9", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	payload := decodeErrorEnvelope(t, res)
	if payload.Code != codeNotFound {
		t.Fatalf("expected %s, got %q", codeNotFound, payload.Code)
	}
	if !strings.Contains(payload.Message, "9.9.9") {
		t.Fatalf("expected section token in message, got %q", payload.Message)
	}
}

func TestSearchTemporaryFailureKeepsDetailOutOfBody(t *testing.T) {
	search := &stubSearchService{err: domain.WrapError(domain.ErrTemporary, "search",
		fmt.Errorf("qdrant at 10.0.0.5 refused connection"))}
	handler := newTestHandler(t, newTestRouter(search, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=audit", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	payload := decodeErrorEnvelope(t, res)
	if payload.Code != codeSearch {
		t.Fatalf("expected %s, got %q", codeSearch, payload.Code)
	}
	if strings.Contains(payload.Message, "10.0.0.5") {
		t.Fatalf("expected provider detail hidden from the client, got %q", payload.Message)
	}
}

func TestChatEndpointRoundTrip(t *testing.T) {
	chat := &stubChatService{result: &domain.ChatResult{
		Answer:        "Audits run quarterly [1].",
		SessionID:     "sess-1",
		Citations:     []domain.Citation{{ChunkID: "ch-1", DocID: "doc-1", Score: 0.9}},
		RetrievalMode: domain.RetrievalModeHybrid,
	}}
	handler := newTestHandler(t, newTestRouter(nil, chat, nil))

	body := strings.NewReader(`{"session_id":"sess-1","message":"how often are audits?"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	if chat.gotSessionID != "sess-1" || chat.gotMessage != "how often are audits?" {
		t.Fatalf("unexpected use case args: session=%q message=%q", chat.gotSessionID, chat.gotMessage)
	}

	var payload struct {
		Answer    string `json:"answer"`
		SessionID string `json:"session_id"`
		Citations []struct {
			ChunkID string `json:"chunk_id"`
		} `json:"citations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Answer != "Audits run quarterly [1]." || payload.SessionID != "sess-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if len(payload.Citations) != 1 || payload.Citations[0].ChunkID != "ch-1" {
		t.Fatalf("unexpected citations: %+v", payload.Citations)
	}
}

func TestChatEndpointRequiresMessageField(t *testing.T) {
	chat := &stubChatService{}
	handler := newTestHandler(t, newTestRouter(nil, chat, nil))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"session_id":"sess-1"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing message, got %d", res.Code)
	}
	if payload := decodeErrorEnvelope(t, res); payload.Code != codeValidation {
		t.Fatalf("expected %s, got %q", codeValidation, payload.Code)
	}
	if chat.gotMessage != "" {
		t.Fatalf("expected request rejected before the use case")
	}
}

func TestSessionMessagesEndpointListsTranscript(t *testing.T) {
	sessions := &stubSessionReader{messages: []domain.ChatMessage{
		{ID: 1, SessionID: "sess-1", Role: domain.RoleUser, Content: "first"},
		{ID: 2, SessionID: "sess-1", Role: domain.RoleAssistant, Content: "second"},
	}}
	handler := newTestHandler(t, newTestRouter(nil, nil, sessions))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1/messages", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", res.Code, res.Body.String())
	}
	if sessions.gotSessionID != "sess-1" {
		t.Fatalf("expected session id forwarded, got %q", sessions.gotSessionID)
	}

	var payload struct {
		SessionID string `json:"session_id"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.SessionID != "sess-1" || len(payload.Messages) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Messages[0].Content != "first" || payload.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected transcript order: %+v", payload.Messages)
	}
}

func TestSessionMessagesUnknownSessionIs404(t *testing.T) {
	sessions := &stubSessionReader{err: domain.WrapError(domain.ErrNotFound, "get session",
		fmt.Errorf("no rows"))}
	handler := newTestHandler(t, newTestRouter(nil, nil, sessions))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing/messages", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if payload := decodeErrorEnvelope(t, res); payload.Code != codeNotFound {
		t.Fatalf("expected %s, got %q", codeNotFound, payload.Code)
	}
}

func TestHealthzReflectsPostgresReachability(t *testing.T) {
	rt := newTestRouter(nil, nil, nil)
	rt.db = stubPinger{err: fmt.Errorf("connection refused")}
	handler := newTestHandler(t, rt)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with unreachable postgres, got %d", res.Code)
	}

	rt.db = stubPinger{}
	handler = newTestHandler(t, rt)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	handler := newTestHandler(t, newTestRouter(nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}

func TestOpenAPIDocumentServed(t *testing.T) {
	handler := newTestHandler(t, newTestRouter(nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "openapi: 3.0.3") {
		t.Fatalf("expected openapi document body, got %q", res.Body.String()[:min(80, res.Body.Len())])
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	handler := newTestHandler(t, newTestRouter(nil, nil, nil))

	warmup := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), warmup)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "docqa_http_in_flight_requests") {
		t.Fatalf("expected docqa http metrics in scrape output")
	}
}
