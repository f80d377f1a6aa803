// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides identity/session-token persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			subject_id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			photo_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS session_tokens (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			issued_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY (subject_id) REFERENCES identities(subject_id)
		);

		CREATE INDEX IF NOT EXISTS idx_session_tokens_subject
			ON session_tokens(subject_id);

		CREATE INDEX IF NOT EXISTS idx_session_tokens_expires
			ON session_tokens(expires_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// UpsertIdentity inserts the identity or merges it into an existing row.
// Empty incoming fields preserve the stored values; non-empty fields
// overwrite them (last-write-wins on merge fields).
func (s *SQLiteStore) UpsertIdentity(ctx context.Context, identity *Identity) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (subject_id, email, display_name, photo_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			email = CASE WHEN excluded.email != '' THEN excluded.email ELSE identities.email END,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE identities.display_name END,
			photo_url = CASE WHEN excluded.photo_url != '' THEN excluded.photo_url ELSE identities.photo_url END,
			updated_at = excluded.updated_at
	`, identity.SubjectID, identity.Email, identity.DisplayName, identity.PhotoURL, now, now)
	if err != nil {
		return fmt.Errorf("upserting identity: %w", err)
	}

	return nil
}

// GetIdentity retrieves an identity by subject ID.
func (s *SQLiteStore) GetIdentity(ctx context.Context, subjectID string) (*Identity, error) {
	var identity Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT subject_id, email, display_name, photo_url, created_at, updated_at
		FROM identities WHERE subject_id = ?
	`, subjectID).Scan(
		&identity.SubjectID,
		&identity.Email,
		&identity.DisplayName,
		&identity.PhotoURL,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting identity: %w", err)
	}

	return &identity, nil
}

// AddSessionToken appends a token to the identity's token collection.
func (s *SQLiteStore) AddSessionToken(ctx context.Context, token *SessionToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_tokens (id, subject_id, issued_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, token.ID, token.SubjectID, token.IssuedAt.UTC(), token.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("adding session token: %w", err)
	}

	return nil
}

// GetSessionToken retrieves a single session token by its ID.
func (s *SQLiteStore) GetSessionToken(ctx context.Context, tokenID string) (*SessionToken, error) {
	var token SessionToken
	err := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, issued_at, expires_at
		FROM session_tokens WHERE id = ?
	`, tokenID).Scan(&token.ID, &token.SubjectID, &token.IssuedAt, &token.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session token: %w", err)
	}

	return &token, nil
}

// ListSessionTokens returns all tokens for a subject, newest first.
func (s *SQLiteStore) ListSessionTokens(ctx context.Context, subjectID string) ([]*SessionToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, issued_at, expires_at
		FROM session_tokens
		WHERE subject_id = ?
		ORDER BY issued_at DESC
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("listing session tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*SessionToken
	for rows.Next() {
		var token SessionToken
		if err := rows.Scan(&token.ID, &token.SubjectID, &token.IssuedAt, &token.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scanning session token: %w", err)
		}
		tokens = append(tokens, &token)
	}

	return tokens, rows.Err()
}

// DeleteSessionToken removes one token from the identity's collection.
// Removing a token that is already gone is not an error.
func (s *SQLiteStore) DeleteSessionToken(ctx context.Context, subjectID, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM session_tokens WHERE id = ? AND subject_id = ?
	`, tokenID, subjectID)
	if err != nil {
		return fmt.Errorf("deleting session token: %w", err)
	}

	return nil
}

// DeleteExpiredSessionTokens removes every token that expired before now.
func (s *SQLiteStore) DeleteExpiredSessionTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM session_tokens WHERE expires_at < ?
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired session tokens: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted tokens: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("purged expired session tokens", "count", deleted)
	}

	return deleted, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
