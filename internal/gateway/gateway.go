// ABOUTME: Gateway wiring: route registration, middleware stack, server lifecycle
// ABOUTME: Stateless request handler in front of the backend-of-record

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/finflow/finflow-gateway/internal/auth"
	"github.com/finflow/finflow-gateway/internal/config"
	"github.com/finflow/finflow-gateway/internal/proxy"
	"github.com/finflow/finflow-gateway/internal/store"
)

// Gateway is the session/authorization front door for the finflow
// backend. It holds only read-only configuration and injected
// collaborators; per-request state lives on the request context.
type Gateway struct {
	config     *config.Config
	store      store.Store
	issuer     *auth.SessionIssuer
	verifier   auth.IDTokenVerifier
	backend    *proxy.Forwarder
	routes     *auth.RouteTable
	frontend   *httputil.ReverseProxy // nil when no UI upstream is configured
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a Gateway from validated configuration and injected
// collaborators. The identity-token verifier is constructed by the
// caller (it may need OIDC discovery at process start) and passed in
// rather than built here.
func New(cfg *config.Config, st store.Store, verifier auth.IDTokenVerifier) (*Gateway, error) {
	g := &Gateway{
		config:   cfg,
		store:    st,
		issuer:   auth.NewSessionIssuer([]byte(cfg.Auth.SessionSecret), cfg.Auth.SessionTTL, st),
		verifier: verifier,
		backend:  proxy.NewForwarder(cfg.Backend.BaseURL, cfg.Backend.Timeout),
		routes:   auth.DefaultRouteTable(),
		logger:   slog.Default().With("component", "gateway"),
	}

	if cfg.Frontend.UpstreamURL != "" {
		upstream, err := url.Parse(cfg.Frontend.UpstreamURL)
		if err != nil {
			return nil, fmt.Errorf("parsing frontend upstream URL: %w", err)
		}
		g.frontend = httputil.NewSingleHostReverseProxy(upstream)
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Handler assembles the full middleware stack: recover boundary on the
// outside, then the authorization Guard, then the route mux. Every
// request passes the Guard; handlers below it either serve a public
// path or see a populated RequestContext.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health - public
	mux.HandleFunc("GET /healthz", g.handle(g.handleHealth))

	// Auth endpoints - public, session issued on success
	mux.HandleFunc("POST /api/auth/login", g.handle(g.handleLogin))
	mux.HandleFunc("POST /api/auth/register", g.handle(g.handleRegister))
	mux.HandleFunc("POST /api/auth/logout", g.handle(g.handleLogout))
	mux.HandleFunc("POST /api/auth/verify-token", g.handle(g.handleVerifyToken))

	// User endpoints - protected, self-only
	mux.HandleFunc("GET /api/users/{id}", g.handle(g.handleUserByID))
	mux.HandleFunc("PUT /api/users/{id}", g.handle(g.handleUserByID))
	mux.HandleFunc("POST /api/users/settings", g.handle(g.handleUpdateSettings))

	// Subscription endpoints - protected, queryable on behalf of a subject
	mux.HandleFunc("GET /api/subscription/manage", g.handle(g.handleSubscriptionManage))
	mux.HandleFunc("POST /api/subscription/manage", g.handle(g.handleSubscriptionManage))
	mux.HandleFunc("GET /api/subscription/user/{userId}", g.handle(g.handleSubscriptionByUser))
	mux.HandleFunc("GET /api/subscription/active/{userId}", g.handle(g.handleSubscriptionActive))
	mux.HandleFunc("GET /api/subscription/quick-check/{userId}", g.handle(g.handleSubscriptionQuickCheck))
	mux.HandleFunc("GET /api/subscription/quick-check/", g.handle(g.handleSubscriptionQuickCheckEmpty))
	mux.HandleFunc("GET /api/subscription/quick-check", g.handle(g.handleSubscriptionQuickCheckEmpty))
	mux.HandleFunc("POST /api/subscription/test", g.handle(g.handleCreateTestSubscription))

	// Everything else is browser traffic: the Guard has already
	// classified it, so what reaches here is public or authorized
	mux.HandleFunc("/", g.handle(g.handlePage))

	guard := auth.Guard(g.routes, g.issuer, g.store)

	return g.recoverer(guard(mux))
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.httpServer.Shutdown(ctx)
}
