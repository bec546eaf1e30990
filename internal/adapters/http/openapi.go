package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
)

const maxRequestBodyBytes = 1 << 20

// openAPIDocumentYAML is the served and enforced contract for /v1/*. Limits
// that are configurable at runtime (message length, history window) are
// deliberately not encoded here; the use cases enforce those.
const openAPIDocumentYAML = `openapi: 3.0.3
info:
  title: docqa API
  description: Hybrid retrieval and grounded question answering over indexed documents.
  version: "1.0"
paths:
  /v1/search:
    get:
      operationId: searchDocuments
      summary: Rank document passages for a query.
      parameters:
        - name: q
          in: query
          required: true
          schema:
            type: string
            minLength: 1
            maxLength: 500
        - name: limit
          in: query
          required: false
          schema:
            type: integer
            minimum: 1
            maximum: 50
      responses:
        "200":
          description: Ranked passages with scores and snippets.
        "404":
          description: A requested section number is not present in any document.
  /v1/chat:
    post:
      operationId: chatWithDocuments
      summary: One grounded conversational turn.
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required:
                - message
              properties:
                message:
                  type: string
                  minLength: 1
                session_id:
                  type: string
      responses:
        "200":
          description: Generated answer with citations and the session id.
  /v1/sessions/{session_id}/messages:
    get:
      operationId: listSessionMessages
      summary: Stored messages of a session, oldest first.
      parameters:
        - name: session_id
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: The session transcript.
        "404":
          description: Unknown session.
`

// openAPIDocument serves the embedded contract.
func (rt *Router) openAPIDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(openAPIDocumentYAML))
}

// newOpenAPIMiddleware parses the embedded document once and returns a
// middleware that validates /v1/* requests against it before they reach a
// handler. Paths the document does not describe fall through to the mux.
func newOpenAPIMiddleware() (func(http.Handler) http.Handler, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData([]byte(openAPIDocumentYAML))
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	apiRouter, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/v1/") {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := apiRouter.FindRoute(r)
			if err != nil {
				// Unknown path or method. The mux answers 404/405 itself.
				next.ServeHTTP(w, r)
				return
			}

			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
			}
			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				writeError(w, http.StatusBadRequest, codeValidation, requestValidationMessage(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// requestValidationMessage flattens a validator error into one line for the
// envelope. The raw errors can span the whole schema and are not client
// material.
func requestValidationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil && reqErr.Reason != "":
			return fmt.Sprintf("parameter %q %s", reqErr.Parameter.Name, reqErr.Reason)
		case reqErr.Parameter != nil:
			return fmt.Sprintf("parameter %q is invalid", reqErr.Parameter.Name)
		case reqErr.Reason != "":
			return reqErr.Reason
		}
	}
	return "request does not match the API schema"
}
