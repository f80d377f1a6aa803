// ABOUTME: HTTP API handlers for the auth, user, and subscription surfaces
// ABOUTME: Validates input, applies ownership policy, and relays backend responses

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/finflow/finflow-gateway/internal/auth"
	"github.com/finflow/finflow-gateway/internal/proxy"
	"github.com/finflow/finflow-gateway/internal/store"
)

// Cookie names cleared together at logout. The session cookie is
// HTTP-only; the id/email cookies exist for the UI to read.
const (
	userIDCookieName    = "user_id"
	userEmailCookieName = "user_email"
)

// maxRequestBytes caps buffered request bodies on auth endpoints.
const maxRequestBytes = 1 << 20

// LoginRequest is the JSON request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the login payload before it is forwarded anywhere.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// RegisterRequest is the JSON request body for POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Validate checks the registration payload.
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 0)),
		validation.Field(&r.Name, validation.Required),
	)
}

// backendUser is the user object the backend-of-record returns on
// successful authentication.
type backendUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl"`
}

// backendAuthResponse is the backend's {token, user} login payload.
type backendAuthResponse struct {
	Token string      `json:"token"`
	User  backendUser `json:"user"`
}

// VerifiedUserResponse is the JSON response for POST /api/auth/verify-token.
type VerifiedUserResponse struct {
	Token string      `json:"token"`
	User  backendUser `json:"user"`
}

// QuickCheckData carries the subscription flag for quick-check responses.
type QuickCheckData struct {
	HasSubscription bool `json:"hasSubscription"`
}

// QuickCheckResponse is the JSON envelope for GET /api/subscription/quick-check/{userId}.
type QuickCheckResponse struct {
	Success bool            `json:"success"`
	Data    *QuickCheckData `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// handleHealth handles GET /healthz requests.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

// handleLogin handles POST /api/auth/login. Credentials are validated,
// forwarded to the backend, and on success a session is minted and the
// backend's {token, user} body is echoed verbatim.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) error {
	body, req, err := decodeBody[LoginRequest](r)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	resp, err := g.backend.Do(r.Context(), http.MethodPost, "/auth/login", nil, "application/json", bytes.NewReader(body), "")
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		// Wrong password and friends: the backend's verdict is relayed
		// untouched, no session is minted
		g.backend.Relay(w, resp)
		return nil
	}

	return g.completeAuth(r.Context(), w, resp)
}

// handleRegister handles POST /api/auth/register. Mirrors login but the
// backend answers 201 on success.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) error {
	body, req, err := decodeBody[RegisterRequest](r)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	resp, err := g.backend.Do(r.Context(), http.MethodPost, "/auth/register", nil, "application/json", bytes.NewReader(body), "")
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		g.backend.Relay(w, resp)
		return nil
	}

	return g.completeAuth(r.Context(), w, resp)
}

// completeAuth finishes a successful backend authentication: upsert the
// identity, mint a session, set the auth cookies, and echo the
// backend's body and status verbatim.
func (g *Gateway) completeAuth(ctx context.Context, w http.ResponseWriter, resp *proxy.BackendResponse) error {
	var parsed backendAuthResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.User.ID == "" {
		return fmt.Errorf("%w: auth response missing user", proxy.ErrMalformedBackendResponse)
	}

	if err := g.store.UpsertIdentity(ctx, &store.Identity{
		SubjectID:   parsed.User.ID,
		Email:       parsed.User.Email,
		DisplayName: parsed.User.Name,
		PhotoURL:    parsed.User.PhotoURL,
	}); err != nil {
		return fmt.Errorf("upserting identity: %w", err)
	}

	issued, err := g.issuer.Issue(ctx, parsed.User.ID)
	if err != nil {
		return fmt.Errorf("issuing session: %w", err)
	}

	g.setAuthCookies(w, issued, parsed.User.Email)
	g.backend.Relay(w, resp)
	return nil
}

// handleLogout handles POST /api/auth/logout. Always 200: the session
// row is revoked when a valid cookie is present, and every auth cookie
// is cleared regardless.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		if subjectID, tokenID, err := g.issuer.Validate(cookie.Value); err == nil {
			if err := g.issuer.Revoke(r.Context(), subjectID, tokenID); err != nil {
				// Logout still succeeds; the reaper collects the row later
				g.logger.Warn("revoking session at logout failed", "error", err)
			}
		}
	}

	g.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

// handleVerifyToken handles POST /api/auth/verify-token. The bearer is
// a raw identity-provider token: it is verified locally and never
// forwarded to the backend. On success the identity is upserted and a
// session minted, exactly like a credential login.
func (g *Gateway) handleVerifyToken(w http.ResponseWriter, r *http.Request) error {
	raw := bearerToken(r)
	if raw == "" {
		return auth.ErrMissingToken
	}

	claims, err := g.verifier.Verify(r.Context(), raw)
	if err != nil {
		return err
	}

	if err := g.store.UpsertIdentity(r.Context(), &store.Identity{
		SubjectID:   claims.SubjectID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		PhotoURL:    claims.PhotoURL,
	}); err != nil {
		return fmt.Errorf("upserting identity: %w", err)
	}

	issued, err := g.issuer.Issue(r.Context(), claims.SubjectID)
	if err != nil {
		return fmt.Errorf("issuing session: %w", err)
	}

	g.setAuthCookies(w, issued, claims.Email)
	writeJSON(w, http.StatusOK, VerifiedUserResponse{
		Token: issued.Token,
		User: backendUser{
			ID:       claims.SubjectID,
			Email:    claims.Email,
			Name:     claims.DisplayName,
			PhotoURL: claims.PhotoURL,
		},
	})
	return nil
}

// handleUserByID handles GET and PUT /api/users/{id}. Self-only: a
// session may read or update its own user record, nobody else's.
func (g *Gateway) handleUserByID(w http.ResponseWriter, r *http.Request) error {
	rc := auth.MustRequestContextFrom(r.Context())

	id := r.PathValue("id")
	if err := auth.PolicySelfOnly.Authorize(id, rc.SubjectID); err != nil {
		return err
	}

	g.backend.Forward(w, r, "/users/"+id, rc.BackendBearer)
	return nil
}

// handleUpdateSettings handles POST /api/users/settings. Self-scoped by
// construction: the backend resolves the subject from the bearer.
func (g *Gateway) handleUpdateSettings(w http.ResponseWriter, r *http.Request) error {
	rc := auth.MustRequestContextFrom(r.Context())

	g.backend.Forward(w, r, "/users/settings", rc.BackendBearer)
	return nil
}

// handleSubscriptionManage handles GET and POST /api/subscription/manage.
func (g *Gateway) handleSubscriptionManage(w http.ResponseWriter, r *http.Request) error {
	rc := auth.MustRequestContextFrom(r.Context())

	g.backend.Forward(w, r, "/subscription/manage", rc.BackendBearer)
	return nil
}

// handleSubscriptionByUser handles GET /api/subscription/user/{userId}.
// Any authenticated caller may query: subscription status is served to
// authorized backend-to-backend callers as well as the subject itself.
func (g *Gateway) handleSubscriptionByUser(w http.ResponseWriter, r *http.Request) error {
	rc := auth.MustRequestContextFrom(r.Context())

	userID := r.PathValue("userId")
	if err := auth.PolicyAuthenticated.Authorize(userID, rc.SubjectID); err != nil {
		return err
	}

	g.backend.Forward(w, r, "/subscription/user/"+userID, rc.BackendBearer)
	return nil
}

// handleSubscriptionActive handles GET /api/subscription/active/{userId}.
func (g *Gateway) handleSubscriptionActive(w http.ResponseWriter, r *http.Request) error {
	rc := auth.MustRequestContextFrom(r.Context())

	g.backend.Forward(w, r, "/subscription/active/"+r.PathValue("userId"), rc.BackendBearer)
	return nil
}

// handleSubscriptionQuickCheck handles GET /api/subscription/quick-check/{userId}.
// Unlike the plain relays, this endpoint owns its response envelope.
// No caching: each check hits the backend.
func (g *Gateway) handleSubscriptionQuickCheck(w http.ResponseWriter, r *http.Request) error {
	rc := auth.MustRequestContextFrom(r.Context())

	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, QuickCheckResponse{Success: false, Error: "Invalid user ID"})
		return nil
	}

	resp, err := g.backend.Do(r.Context(), http.MethodGet, "/subscription/active/"+userID, nil, "", nil, rc.BackendBearer)
	if err != nil {
		g.logger.Error("quick-check backend call failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, QuickCheckResponse{Success: false, Error: "Internal server error"})
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		writeJSON(w, resp.StatusCode, QuickCheckResponse{Success: false, Error: "Unable to verify subscription"})
		return nil
	}

	var status struct {
		Active bool `json:"active"`
	}
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		g.logger.Error("quick-check backend response malformed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, QuickCheckResponse{Success: false, Error: "Internal server error"})
		return nil
	}

	writeJSON(w, http.StatusOK, QuickCheckResponse{
		Success: true,
		Data:    &QuickCheckData{HasSubscription: status.Active},
	})
	return nil
}

// handleSubscriptionQuickCheckEmpty covers quick-check requests with no
// user id segment at all.
func (g *Gateway) handleSubscriptionQuickCheckEmpty(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusBadRequest, QuickCheckResponse{Success: false, Error: "Invalid user ID"})
	return nil
}

// handleCreateTestSubscription handles POST /api/subscription/test.
func (g *Gateway) handleCreateTestSubscription(w http.ResponseWriter, r *http.Request) error {
	rc := auth.MustRequestContextFrom(r.Context())

	g.backend.Forward(w, r, "/subscription/test", rc.BackendBearer)
	return nil
}

// handlePage is the catch-all for browser traffic that passed the
// Guard. With a configured UI upstream the request is proxied there;
// otherwise the gateway has nothing to render.
func (g *Gateway) handlePage(w http.ResponseWriter, r *http.Request) error {
	if g.frontend != nil {
		g.frontend.ServeHTTP(w, r)
		return nil
	}

	if r.URL.Path == "/" {
		writeJSON(w, http.StatusOK, map[string]string{"service": "finflow-gateway"})
		return nil
	}

	return store.ErrNotFound
}

// decodeBody buffers and decodes a JSON request body, returning both
// the raw bytes (for verbatim forwarding) and the decoded value.
func decodeBody[T any](r *http.Request) ([]byte, T, error) {
	var req T

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return nil, req, fmt.Errorf("%w: reading body", ErrInvalidInput)
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, req, fmt.Errorf("%w: malformed JSON", ErrInvalidInput)
	}

	return body, req, nil
}

// bearerToken extracts a bearer token from the Authorization header,
// returning "" when absent or malformed.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// setAuthCookies sets the session cookie plus the UI-readable id and
// email cookies, all scoped to the site with the session's lifetime.
func (g *Gateway) setAuthCookies(w http.ResponseWriter, issued *auth.IssuedSession, email string) {
	maxAge := int(issued.ExpiresAt.Sub(issued.IssuedAt).Seconds())

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    issued.Token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     userIDCookieName,
		Value:    issued.SubjectID,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     userEmailCookieName,
		Value:    email,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearAuthCookies expires all three auth cookies, whether or not a
// session existed.
func (g *Gateway) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{auth.SessionCookieName, userIDCookieName, userEmailCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: name == auth.SessionCookieName,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
