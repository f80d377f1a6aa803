// ABOUTME: End-to-end handler tests through the full middleware stack
// ABOUTME: Exercises login, verify-token, ownership checks, and backend relays

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finflow/finflow-gateway/internal/auth"
	"github.com/finflow/finflow-gateway/internal/config"
	"github.com/finflow/finflow-gateway/internal/store"
)

const (
	testSessionSecret = "test-session-secret-0123456789"
	testIDPSecret     = "test-idp-secret-0123456789"
)

func newTestGateway(t *testing.T, backendURL string) (*Gateway, *store.MockStore) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Auth.SessionSecret = testSessionSecret
	cfg.Auth.DevIDPSecret = testIDPSecret
	cfg.Backend.BaseURL = backendURL
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Database.Path = ":memory:"

	st := store.NewMockStore()
	g, err := New(cfg, st, auth.NewStaticVerifier([]byte(testIDPSecret)))
	require.NoError(t, err)
	return g, st
}

// sessionCookie issues a session for the subject and returns it as a
// request cookie.
func sessionCookie(t *testing.T, g *Gateway, subjectID string) *http.Cookie {
	t.Helper()

	issued, err := g.issuer.Issue(t.Context(), subjectID)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.SessionCookieName, Value: issued.Token}
}

func doRequest(g *Gateway, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginSuccess(t *testing.T) {
	backendBody := `{"token":"backend-token","user":{"id":"u123","email":"alice@example.com","name":"Alice"}}`

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Cookie"), "inbound cookies must not reach the backend")

		var creds LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "alice@example.com", creds.Email)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, backendBody)
	}))
	defer backend.Close()

	g, st := newTestGateway(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"hunter22"}`))
	rec := doRequest(g, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, backendBody, rec.Body.String(), "backend body relayed verbatim")

	cookies := rec.Result().Cookies()
	session := cookieByName(cookies, auth.SessionCookieName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)
	assert.Equal(t, 86400, session.MaxAge)
	assert.NotEqual(t, "backend-token", session.Value, "session cookie is gateway-minted, not the backend token")

	idCookie := cookieByName(cookies, userIDCookieName)
	require.NotNil(t, idCookie)
	assert.Equal(t, "u123", idCookie.Value)
	assert.False(t, idCookie.HttpOnly)

	emailCookie := cookieByName(cookies, userEmailCookieName)
	require.NotNil(t, emailCookie)
	assert.Equal(t, "alice@example.com", emailCookie.Value)

	// Session cookie validates against the gateway's own secret
	subjectID, tokenID, err := g.issuer.Validate(session.Value)
	require.NoError(t, err)
	assert.Equal(t, "u123", subjectID)

	// Identity upserted and token row recorded
	identity, err := st.GetIdentity(t.Context(), "u123")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, "Alice", identity.DisplayName)

	_, err = st.GetSessionToken(t.Context(), tokenID)
	require.NoError(t, err)
}

func TestLoginBadCredentialsRelayed(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid credentials"}`)
	}))
	defer backend.Close()

	g, st := newTestGateway(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
	rec := doRequest(g, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
	assert.Empty(t, rec.Result().Cookies(), "no session on failed login")

	tokens, err := st.ListSessionTokens(t.Context(), "u123")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestLoginInvalidInput(t *testing.T) {
	var backendHits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHits.Add(1)
	}))
	defer backend.Close()

	g, _ := newTestGateway(t, backend.URL)

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"email":`},
		{"missing email", `{"password":"hunter22"}`},
		{"missing password", `{"email":"alice@example.com"}`},
		{"bad email format", `{"email":"not-an-email","password":"hunter22"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body))
			rec := doRequest(g, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "invalid input", body.Error)
		})
	}

	assert.Equal(t, int64(0), backendHits.Load(), "invalid input never reaches the backend")
}

func TestRegisterSuccess(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/register", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"token":"backend-token","user":{"id":"u900","email":"bob@example.com","name":"Bob"}}`)
	}))
	defer backend.Close()

	g, st := newTestGateway(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"bob@example.com","password":"longenough","name":"Bob"}`))
	rec := doRequest(g, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, cookieByName(rec.Result().Cookies(), auth.SessionCookieName))

	identity, err := st.GetIdentity(t.Context(), "u900")
	require.NoError(t, err)
	assert.Equal(t, "Bob", identity.DisplayName)
}

func TestVerifyToken(t *testing.T) {
	var backendHits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHits.Add(1)
	}))
	defer backend.Close()

	g, st := newTestGateway(t, backend.URL)

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     "google-oauth2|12345",
		"email":   "carol@example.com",
		"name":    "Carol",
		"picture": "https://example.com/carol.png",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testIDPSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/verify-token", nil)
	req.Header.Set("Authorization", "Bearer "+idToken)
	rec := doRequest(g, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp VerifiedUserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "google-oauth2|12345", resp.User.ID)
	assert.Equal(t, "carol@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)
	assert.NotEqual(t, idToken, resp.Token, "identity token is never echoed back")

	session := cookieByName(rec.Result().Cookies(), auth.SessionCookieName)
	require.NotNil(t, session)
	assert.NotEqual(t, idToken, session.Value, "identity token never becomes the session cookie")

	identity, err := st.GetIdentity(t.Context(), "google-oauth2|12345")
	require.NoError(t, err)
	assert.Equal(t, "Carol", identity.DisplayName)
	assert.Equal(t, "https://example.com/carol.png", identity.PhotoURL)

	assert.Equal(t, int64(0), backendHits.Load(), "identity token verification is local")
}

func TestVerifyTokenRejections(t *testing.T) {
	g, _ := newTestGateway(t, "http://backend.invalid")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not a bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/verify-token", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := doRequest(g, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestLogout(t *testing.T) {
	g, st := newTestGateway(t, "http://backend.invalid")

	issued, err := g.issuer.Issue(t.Context(), "u123")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: issued.Token})
	rec := doRequest(g, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	for _, name := range []string{auth.SessionCookieName, userIDCookieName, userEmailCookieName} {
		c := cookieByName(rec.Result().Cookies(), name)
		require.NotNil(t, c, "cookie %s must be cleared", name)
		assert.Less(t, c.MaxAge, 0)
		assert.Empty(t, c.Value)
	}

	_, err = st.GetSessionToken(t.Context(), issued.TokenID)
	assert.ErrorIs(t, err, store.ErrNotFound, "session row revoked at logout")
}

func TestLogoutWithoutSession(t *testing.T) {
	g, _ := newTestGateway(t, "http://backend.invalid")

	rec := doRequest(g, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rec.Code, "logout is always a success")
	assert.NotNil(t, cookieByName(rec.Result().Cookies(), auth.SessionCookieName))
}

func TestUserByIDSelfOnly(t *testing.T) {
	var backendHits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHits.Add(1)
	}))
	defer backend.Close()

	g, _ := newTestGateway(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/users/u123", nil)
	req.AddCookie(sessionCookie(t, g, "u456"))
	rec := doRequest(g, req)

	assert.Equal(t, http.StatusForbidden, rec.Code, "valid session, wrong subject")
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
	assert.Equal(t, int64(0), backendHits.Load())
}

func TestUserByIDSelfAccess(t *testing.T) {
	g, _ := newTestGateway(t, "")
	cookie := sessionCookie(t, g, "u456")

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/u456", r.URL.Path)
		assert.Equal(t, "Bearer "+cookie.Value, r.Header.Get("Authorization"),
			"backend bearer derived from the validated session")
		assert.Empty(t, r.Header.Get("Cookie"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"u456","email":"dave@example.com"}`)
	}))
	defer backend.Close()

	// Re-point at the live backend; the session survives since the
	// secret is unchanged
	g2, _ := newTestGateway(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/users/u456", nil)
	req.AddCookie(cookie)
	rec := doRequest(g2, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"u456","email":"dave@example.com"}`, rec.Body.String())
}

func TestProtectedWithoutSession(t *testing.T) {
	g, _ := newTestGateway(t, "http://backend.invalid")

	t.Run("API path gets 401 JSON", func(t *testing.T) {
		rec := doRequest(g, httptest.NewRequest(http.MethodGet, "/api/subscription/manage", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	})

	t.Run("browser path redirects to login", func(t *testing.T) {
		rec := doRequest(g, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))
	})
}

func TestExpiredSessionRejected(t *testing.T) {
	g, _ := newTestGateway(t, "http://backend.invalid")

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u123",
		"jti": "old-token",
		"iat": time.Now().Add(-48 * time.Hour).Unix(),
		"exp": time.Now().Add(-24 * time.Hour).Unix(),
	}).SignedString([]byte(testSessionSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/users/u123", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: expired})
	rec := doRequest(g, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubscriptionQuickCheck(t *testing.T) {
	tests := []struct {
		name          string
		backendStatus int
		backendBody   string
		wantStatus    int
		wantBody      string
	}{
		{
			name:          "active subscription",
			backendStatus: http.StatusOK,
			backendBody:   `{"active":true}`,
			wantStatus:    http.StatusOK,
			wantBody:      `{"success":true,"data":{"hasSubscription":true}}`,
		},
		{
			name:          "no subscription",
			backendStatus: http.StatusOK,
			backendBody:   `{"active":false}`,
			wantStatus:    http.StatusOK,
			wantBody:      `{"success":true,"data":{"hasSubscription":false}}`,
		},
		{
			name:          "backend rejects",
			backendStatus: http.StatusNotFound,
			backendBody:   `{"error":"no such user"}`,
			wantStatus:    http.StatusNotFound,
			wantBody:      `{"success":false,"error":"Unable to verify subscription"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/subscription/active/u123", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.backendStatus)
				fmt.Fprint(w, tt.backendBody)
			}))
			defer backend.Close()

			g, _ := newTestGateway(t, backend.URL)

			req := httptest.NewRequest(http.MethodGet, "/api/subscription/quick-check/u123", nil)
			req.AddCookie(sessionCookie(t, g, "u123"))
			rec := doRequest(g, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestSubscriptionQuickCheckEmptyID(t *testing.T) {
	var backendHits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHits.Add(1)
	}))
	defer backend.Close()

	g, _ := newTestGateway(t, backend.URL)

	for _, path := range []string{"/api/subscription/quick-check", "/api/subscription/quick-check/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(sessionCookie(t, g, "u123"))
		rec := doRequest(g, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "path %s", path)
		assert.JSONEq(t, `{"success":false,"error":"Invalid user ID"}`, rec.Body.String())
	}

	assert.Equal(t, int64(0), backendHits.Load())
}

func TestSubscriptionRelays(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		backendPath string
	}{
		{"manage GET", http.MethodGet, "/api/subscription/manage", "/subscription/manage"},
		{"manage POST", http.MethodPost, "/api/subscription/manage", "/subscription/manage"},
		{"by user", http.MethodGet, "/api/subscription/user/u777", "/subscription/user/u777"},
		{"active", http.MethodGet, "/api/subscription/active/u777", "/subscription/active/u777"},
		{"test subscription", http.MethodPost, "/api/subscription/test", "/subscription/test"},
		{"settings", http.MethodPost, "/api/users/settings", "/users/settings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.method, r.Method)
				assert.Equal(t, tt.backendPath, r.URL.Path)
				assert.NotEmpty(t, r.Header.Get("Authorization"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusAccepted)
				fmt.Fprint(w, `{"ok":true}`)
			}))
			defer backend.Close()

			g, _ := newTestGateway(t, backend.URL)

			var body *bytes.Reader
			if tt.method == http.MethodPost {
				body = bytes.NewReader([]byte(`{}`))
			} else {
				body = bytes.NewReader(nil)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			req.AddCookie(sessionCookie(t, g, "u123"))
			rec := doRequest(g, req)

			assert.Equal(t, http.StatusAccepted, rec.Code, "backend status relayed as-is")
			assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
		})
	}
}

func TestBackendUnreachable(t *testing.T) {
	g, _ := newTestGateway(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"hunter22"}`))
	rec := doRequest(g, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String(),
		"backend failures collapse to a generic error")
	assert.NotContains(t, rec.Body.String(), "127.0.0.1:1", "backend address never leaks")
}

func TestHealthz(t *testing.T) {
	g, _ := newTestGateway(t, "http://backend.invalid")

	rec := doRequest(g, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestFrontendProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>pricing page</html>")
	}))
	defer upstream.Close()

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Auth.SessionSecret = testSessionSecret
	cfg.Auth.DevIDPSecret = testIDPSecret
	cfg.Backend.BaseURL = "http://backend.invalid"
	cfg.Backend.Timeout = time.Second
	cfg.Frontend.UpstreamURL = upstream.URL
	cfg.Database.Path = ":memory:"

	g, err := New(cfg, store.NewMockStore(), auth.NewStaticVerifier([]byte(testIDPSecret)))
	require.NoError(t, err)

	rec := doRequest(g, httptest.NewRequest(http.MethodGet, "/pricing", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pricing page")
}

func TestRootWithoutFrontend(t *testing.T) {
	g, _ := newTestGateway(t, "http://backend.invalid")

	rec := doRequest(g, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"service":"finflow-gateway"}`, rec.Body.String())
}
