// ABOUTME: Store interface and data types for finflow-gateway persistence
// ABOUTME: Defines Identity, SessionToken structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Identity represents an authenticated user known to the gateway.
// Created on first successful identity-provider verification and merged
// on every subsequent login. The gateway never deletes identities.
type Identity struct {
	SubjectID   string
	Email       string
	DisplayName string
	PhotoURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionToken represents one self-issued session credential bound to an
// identity. Multiple tokens per identity may coexist (multi-device); each
// expires independently and is removed at logout or by the reaper.
type SessionToken struct {
	ID        string // JWT jti
	SubjectID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store defines the interface for identity and session-token persistence
type Store interface {
	// Identities
	//
	// UpsertIdentity merges: empty incoming fields never overwrite
	// existing values, non-empty fields win (last-write-wins).
	UpsertIdentity(ctx context.Context, identity *Identity) error
	GetIdentity(ctx context.Context, subjectID string) (*Identity, error)

	// Session tokens (the identity's token collection)
	AddSessionToken(ctx context.Context, token *SessionToken) error
	GetSessionToken(ctx context.Context, tokenID string) (*SessionToken, error)
	ListSessionTokens(ctx context.Context, subjectID string) ([]*SessionToken, error)
	DeleteSessionToken(ctx context.Context, subjectID, tokenID string) error

	// DeleteExpiredSessionTokens removes every token whose ExpiresAt is
	// before now and reports how many rows were removed. Identities and
	// unexpired tokens are untouched.
	DeleteExpiredSessionTokens(ctx context.Context, now time.Time) (int64, error)

	// Close releases any resources held by the store
	Close() error
}
