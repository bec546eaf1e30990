package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mkorchagin/docqa/internal/core/domain"
	"github.com/mkorchagin/docqa/internal/core/ports"
	"github.com/mkorchagin/docqa/internal/observability/metrics"
)

// Pinger is the health-check slice of *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type RouterConfig struct {
	ServiceName    string
	RateLimitQPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

type Router struct {
	search   ports.SearchService
	chat     ports.ChatService
	sessions ports.SessionReader
	db       Pinger
	metrics  *metrics.HTTPServerMetrics
	limiters *clientLimiters
	cfg      RouterConfig
}

func NewRouter(
	search ports.SearchService,
	chat ports.ChatService,
	sessions ports.SessionReader,
	db Pinger,
	m *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "api"
	}
	rt := &Router{
		search:   search,
		chat:     chat,
		sessions: sessions,
		db:       db,
		metrics:  m,
		cfg:      cfg,
	}
	if cfg.RateLimitQPS > 0 {
		rt.limiters = newClientLimiters(cfg.RateLimitQPS, cfg.RateLimitBurst)
	}
	return rt
}

// Handler assembles the route table and the middleware chain. Traffic
// control and schema validation apply to /v1/* only, so health probes and
// scrapes never compete with query traffic.
func (rt *Router) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/openapi.yaml", rt.openAPIDocument)
	mux.HandleFunc("/v1/search", rt.searchDocuments)
	mux.HandleFunc("/v1/chat", rt.chatTurn)
	mux.HandleFunc("/v1/sessions/", rt.sessionMessages)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	validate, err := newOpenAPIMiddleware()
	if err != nil {
		return nil, err
	}

	var handler http.Handler = validate(mux)
	handler = rt.rateLimitMiddleware(handler)
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, backpressureWait)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler, nil
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.db.PingContext(ctx); err != nil {
			slog.Warn("healthz_postgres_unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"postgres": "unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
		return
	}

	query := r.URL.Query().Get("q")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "limit must be an integer")
			return
		}
		limit = parsed
	}

	start := time.Now()
	result, err := rt.search.Search(r.Context(), query, limit)
	if err != nil {
		rt.writeUseCaseError(w, r, err, codeSearch)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordQuery(rt.cfg.ServiceName, "search", string(result.Mode),
			len(result.Results), result.Degraded, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) chatTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid json body")
		return
	}

	start := time.Now()
	result, err := rt.chat.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		rt.writeUseCaseError(w, r, err, codeChat)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordQuery(rt.cfg.ServiceName, "chat", string(result.RetrievalMode),
			len(result.Citations), result.Degraded, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) sessionMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	sessionID, tail, found := strings.Cut(rest, "/")
	if !found || tail != "messages" || sessionID == "" {
		writeError(w, http.StatusNotFound, codeNotFound, "unknown path")
		return
	}

	messages, err := rt.sessions.ListSessionMessages(r.Context(), sessionID)
	if err != nil {
		rt.writeUseCaseError(w, r, err, codeChat)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
	})
}

// writeUseCaseError translates a use-case error into the response envelope.
// Client mistakes keep their message; everything else gets a generic body and
// the detail goes to the log with the request id.
func (rt *Router) writeUseCaseError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	status := errorStatus(err)
	code := errorCode(err, fallbackCode)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "request failed, please retry"
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, code, message)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
