// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity     // keyed by subject ID
	tokens     map[string]*SessionToken // keyed by token ID

	// Optional error injection for failure-path tests
	FailDeleteExpired error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		identities: make(map[string]*Identity),
		tokens:     make(map[string]*SessionToken),
	}
}

// UpsertIdentity inserts or merges an identity.
func (m *MockStore) UpsertIdentity(ctx context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := m.identities[identity.SubjectID]
	if !ok {
		// Make a copy to avoid external modification
		id := *identity
		id.CreatedAt = now
		id.UpdatedAt = now
		m.identities[id.SubjectID] = &id
		return nil
	}

	if identity.Email != "" {
		existing.Email = identity.Email
	}
	if identity.DisplayName != "" {
		existing.DisplayName = identity.DisplayName
	}
	if identity.PhotoURL != "" {
		existing.PhotoURL = identity.PhotoURL
	}
	existing.UpdatedAt = now

	return nil
}

// GetIdentity retrieves an identity by subject ID.
func (m *MockStore) GetIdentity(ctx context.Context, subjectID string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, ok := m.identities[subjectID]
	if !ok {
		return nil, ErrNotFound
	}

	id := *identity
	return &id, nil
}

// AddSessionToken stores a session token.
func (m *MockStore) AddSessionToken(ctx context.Context, token *SessionToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := *token
	m.tokens[t.ID] = &t

	return nil
}

// GetSessionToken retrieves a session token by ID.
func (m *MockStore) GetSessionToken(ctx context.Context, tokenID string) (*SessionToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	token, ok := m.tokens[tokenID]
	if !ok {
		return nil, ErrNotFound
	}

	t := *token
	return &t, nil
}

// ListSessionTokens returns all tokens for a subject, newest first.
func (m *MockStore) ListSessionTokens(ctx context.Context, subjectID string) ([]*SessionToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tokens []*SessionToken
	for _, token := range m.tokens {
		if token.SubjectID == subjectID {
			t := *token
			tokens = append(tokens, &t)
		}
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].IssuedAt.After(tokens[j].IssuedAt)
	})

	return tokens, nil
}

// DeleteSessionToken removes one token.
func (m *MockStore) DeleteSessionToken(ctx context.Context, subjectID, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenID]
	if ok && token.SubjectID == subjectID {
		delete(m.tokens, tokenID)
	}

	return nil
}

// DeleteExpiredSessionTokens removes tokens that expired before now.
func (m *MockStore) DeleteExpiredSessionTokens(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailDeleteExpired != nil {
		return 0, m.FailDeleteExpired
	}

	var deleted int64
	for id, token := range m.tokens {
		if token.ExpiresAt.Before(now) {
			delete(m.tokens, id)
			deleted++
		}
	}

	return deleted, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
