// ABOUTME: Authorization Guard middleware intercepting every inbound request
// ABOUTME: Classifies the route, validates the session cookie, attaches RequestContext

package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/finflow/finflow-gateway/internal/store"
)

const (
	// SessionCookieName is the name of the session cookie
	SessionCookieName = "token"

	// LoginPath is the fixed redirect target for unauthenticated browser
	// requests. Never derived from the request, so there is no open
	// redirect to preserve.
	LoginPath = "/auth/login"
)

// Guard creates the authorization middleware. Every request passes
// through it: public routes go straight through, protected routes must
// carry a valid session cookie. On success the request proceeds with a
// fully populated RequestContext; there is no third state.
func Guard(table *RouteTable, issuer *SessionIssuer, identities store.Store) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "guard")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if table.Classify(r.URL.Path) == RoutePublic {
				next.ServeHTTP(w, r)
				return
			}

			// A missing Cookie header is NoCredential, not a fault.
			raw := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				raw = cookie.Value
			}
			if raw == "" {
				reject(w, r, "authentication required")
				return
			}

			subjectID, tokenID, err := issuer.Validate(raw)
			if err != nil {
				msg := "invalid session"
				if errors.Is(err, ErrExpiredSession) {
					msg = "session expired"
				}
				logger.Debug("rejected session", "path", r.URL.Path, "error", err)
				reject(w, r, msg)
				return
			}

			rc := &RequestContext{
				SubjectID:     subjectID,
				TokenID:       tokenID,
				BackendBearer: raw,
			}

			// Best effort: identity fields enrich the context but the
			// session signature alone decides authentication.
			if identity, err := identities.GetIdentity(r.Context(), subjectID); err == nil {
				rc.Email = identity.Email
				rc.DisplayName = identity.DisplayName
			} else if !errors.Is(err, store.ErrNotFound) {
				logger.Warn("identity lookup failed", "subject_id", subjectID, "error", err)
			}

			next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
		})
	}
}

// reject ends an unauthenticated request: structured 401 for API
// routes, redirect to the login page for browser routes.
func reject(w http.ResponseWriter, r *http.Request, msg string) {
	if IsAPIPath(r.URL.Path) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"` + msg + `"}`))
		return
	}

	http.Redirect(w, r, LoginPath, http.StatusFound)
}
