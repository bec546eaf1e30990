package httpadapter

import (
	"net/http"

	"github.com/mkorchagin/docqa/internal/core/domain"
)

// Stable error codes carried in the response envelope. Clients branch on
// these, not on the message text.
const (
	codeValidation  = "VALIDATION_ERROR"
	codeNotFound    = "NOT_FOUND"
	codeSearch      = "SEARCH_ERROR"
	codeChat        = "CHAT_ERROR"
	codeRateLimited = "RATE_LIMITED"
	codeInternal    = "INTERNAL_ERROR"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func errorStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode picks the envelope code: client mistakes map to their own codes,
// server-side failures keep the per-endpoint fallback.
func errorCode(err error, fallback string) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return codeValidation
	case domain.IsKind(err, domain.ErrNotFound):
		return codeNotFound
	default:
		if fallback == "" {
			return codeInternal
		}
		return fallback
	}
}
