// Package store provides persistent storage for the gateway using SQLite.
//
// The store holds the two records the gateway is allowed to own: identity
// records created on first login (merge-upserted on every subsequent one)
// and each identity's collection of session tokens. Session tokens are
// appended at login, removed one at a time at logout, and removed in bulk
// by the reaper once expired.
//
// SQLiteStore implements the Store interface on a single SQLite database
// in WAL mode. MockStore provides an in-memory implementation for tests.
// The gateway is otherwise stateless: nothing else it serves is persisted
// here, and identity records are never deleted by this package.
package store
