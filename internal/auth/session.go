// ABOUTME: Session token issuance, validation, and revocation
// ABOUTME: HS256 JWTs with uuid jti, recorded in the identity store per device

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/finflow/finflow-gateway/internal/store"
)

// DefaultSessionTTL is the validity window for issued sessions,
// matching the 24h max-age of the session cookie.
const DefaultSessionTTL = 24 * time.Hour

// IssuedSession is the result of minting a session token.
type IssuedSession struct {
	Token     string // signed JWT, goes into the session cookie
	TokenID   string // jti, keys the token row in the store
	SubjectID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionIssuer mints and validates self-issued session tokens bound to
// a subject id. Validation is stateless: the signature and expiry are
// checked without a store round trip. Issuance and revocation mutate the
// identity's token collection so logout and the reaper can account for
// every live credential.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	store  store.Store
}

// NewSessionIssuer creates a SessionIssuer signing with the given secret.
// A zero ttl falls back to DefaultSessionTTL.
func NewSessionIssuer(secret []byte, ttl time.Duration, st store.Store) *SessionIssuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{secret: secret, ttl: ttl, store: st}
}

// TTL returns the configured session validity window.
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Issue mints a session token for the subject and records it in the
// identity's token collection.
func (s *SessionIssuer) Issue(ctx context.Context, subjectID string) (*IssuedSession, error) {
	now := time.Now().UTC()
	tokenID := uuid.NewString()
	expiresAt := now.Add(s.ttl)

	claims := jwt.MapClaims{
		"sub": subjectID,
		"jti": tokenID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}

	if err := s.store.AddSessionToken(ctx, &store.SessionToken{
		ID:        tokenID,
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("recording session token: %w", err)
	}

	return &IssuedSession{
		Token:     signed,
		TokenID:   tokenID,
		SubjectID: subjectID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate checks the raw session token and returns the subject id and
// token id it is bound to. Fails with ErrExpiredSession or
// ErrInvalidSession; no store access on this path.
func (s *SessionIssuer) Validate(rawToken string) (subjectID, tokenID string, err error) {
	if rawToken == "" {
		return "", "", ErrInvalidSession
	}

	token, err := jwt.Parse(rawToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrExpiredSession
		}
		return "", "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidSession
	}

	subjectID, _ = claims["sub"].(string)
	tokenID, _ = claims["jti"].(string)
	if subjectID == "" || tokenID == "" {
		return "", "", fmt.Errorf("%w: missing sub or jti claim", ErrInvalidSession)
	}

	return subjectID, tokenID, nil
}

// Revoke removes one token from the subject's token collection. Used at
// logout; revoking an unknown token is a no-op.
func (s *SessionIssuer) Revoke(ctx context.Context, subjectID, tokenID string) error {
	if err := s.store.DeleteSessionToken(ctx, subjectID, tokenID); err != nil {
		return fmt.Errorf("revoking session token: %w", err)
	}
	return nil
}
