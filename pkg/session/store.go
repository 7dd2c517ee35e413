// Package session defines the durable session store: the single source of
// truth for token validity. Two backends implement the Store interface, a
// PostgreSQL table (default) and a Redis keyspace with a per-user
// revocation watermark. All mutation flows through the token service in
// pkg/auth; no other component writes sessions.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no session exists for a token hash.
// Callers outside the trust boundary must not distinguish it from a
// revoked session; the token service collapses both into one failure.
var ErrNotFound = errors.New("session not found")

// Session is the durable record of one issued token. TokenHash is the
// SHA-256 of the bearer token; the plaintext never reaches the store.
type Session struct {
	TokenHash string    `json:"token_hash"`
	UserID    int64     `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// Expired reports whether the session has passed its expiry at the given
// instant. Expiry is evaluated on every validation, never by a sweep.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Active reports whether the session is neither revoked nor expired.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && !s.Expired(now)
}

// Store persists sessions. Implementations must serialize conflicting
// writes to the same token or user scope so that concurrent revocations
// are idempotent and RevokeUser forms a consistency point: a session
// created mid-sweep is either swept or strictly newer than the sweep.
type Store interface {
	// Create persists a new session. Token hashes are unique per issue,
	// so Create never conflicts with an existing row.
	Create(ctx context.Context, s *Session) error

	// Get returns the session for a token hash, or ErrNotFound.
	// The returned session reflects any user-scope revocation sweep.
	Get(ctx context.Context, tokenHash string) (*Session, error)

	// Revoke marks the session revoked. Idempotent: revoking an
	// already-revoked or unknown token hash is not an error.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeUser revokes every active session owned by the user and
	// returns the number swept.
	RevokeUser(ctx context.Context, userID int64) (int64, error)

	// PurgeExpired removes sessions that expired before the cutoff.
	// Storage hygiene only; correctness never depends on it.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
