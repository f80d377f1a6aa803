// ABOUTME: Authorized request context for tracking identity through request handlers
// ABOUTME: Provides WithRequestContext/RequestContextFrom for propagating identity via context

package auth

import (
	"context"
)

// RequestContext holds the authenticated identity information for one
// request. It is populated by the Guard after session validation and
// discarded with the response; nothing request-scoped is shared.
type RequestContext struct {
	SubjectID   string // canonical provider-independent subject id
	Email       string
	DisplayName string
	TokenID     string // jti of the session token backing this request
	// BackendBearer is the credential the proxy injects toward the
	// backend-of-record. Derived from the validated session, never the
	// raw identity-provider token.
	BackendBearer string
}

// requestContextKey is the key type for storing RequestContext in context.Context.
type requestContextKey struct{}

// WithRequestContext returns a new context with the RequestContext attached.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom retrieves the RequestContext from the context, returning nil if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	val := ctx.Value(requestContextKey{})
	if val == nil {
		return nil
	}
	rc, ok := val.(*RequestContext)
	if !ok {
		return nil
	}
	return rc
}

// MustRequestContextFrom retrieves the RequestContext from the context, panicking if not present.
// Only for handlers that are unreachable without passing the Guard.
func MustRequestContextFrom(ctx context.Context) *RequestContext {
	rc := RequestContextFrom(ctx)
	if rc == nil {
		panic("auth: RequestContext not found in context")
	}
	return rc
}
