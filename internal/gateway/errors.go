// ABOUTME: Cross-cutting error boundary mapping the error taxonomy to HTTP statuses
// ABOUTME: One place for status mapping plus a recover middleware so a response is always sent

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finflow/finflow-gateway/internal/auth"
	"github.com/finflow/finflow-gateway/internal/proxy"
	"github.com/finflow/finflow-gateway/internal/store"
)

// Handler-level errors not covered by the auth/proxy/store packages
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// errorResponse is the structured body for every gateway-originated error.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// handlerFunc is a handler that reports failures instead of writing
// them. The error boundary turns the returned error into a response, so
// no individual handler duplicates status mapping.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts a handlerFunc into the single error boundary.
func (g *Gateway) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			g.writeError(w, r, err)
		}
	}
}

// writeError maps an error from the taxonomy to its HTTP status and
// structured body. Backend and internal causes are logged, never echoed.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classifyError(err)

	if status == http.StatusInternalServerError {
		g.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	} else {
		g.logger.Debug("request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}

	writeJSON(w, status, body)
}

// classifyError is the one mapping from the error taxonomy to status
// codes. A valid session touching someone else's resource is 403, never
// 401; backend failures collapse to a generic 500.
func classifyError(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "forbidden"}
	case errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, errorResponse{Error: "missing token"}
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, errorResponse{Error: "invalid token"}
	case errors.Is(err, auth.ErrExpiredSession):
		return http.StatusUnauthorized, errorResponse{Error: "session expired"}
	case errors.Is(err, auth.ErrInvalidSession):
		return http.StatusUnauthorized, errorResponse{Error: "invalid session"}
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, errorResponse{Error: "invalid input", Details: detailOf(err, ErrInvalidInput)}
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found"}
	case errors.Is(err, proxy.ErrBackendUnavailable),
		errors.Is(err, proxy.ErrMalformedBackendResponse):
		return http.StatusInternalServerError, errorResponse{Error: "Internal server error"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "Internal server error"}
	}
}

// detailOf extracts the wrapped detail beyond the sentinel's own text,
// so "invalid input: email is required" surfaces as details without
// repeating the sentinel.
func detailOf(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return ""
}

// recoverer guarantees every request gets a response: a panicking
// handler becomes a logged 500 instead of a dropped connection.
func (g *Gateway) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				g.logger.Error("panic in handler",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
