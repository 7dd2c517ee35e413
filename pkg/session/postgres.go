package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore implements Store on a sessions table. Revocation is a
// conditional UPDATE and the user-scope sweep is a single statement, so
// row-level locking gives the required atomicity without transactions.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a session store over an existing connection pool
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	query := `
		INSERT INTO sessions (token_hash, user_id, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, FALSE)
	`

	_, err := s.db.ExecContext(ctx, query,
		sess.TokenHash,
		sess.UserID,
		sess.IssuedAt,
		sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tokenHash string) (*Session, error) {
	query := `
		SELECT token_hash, user_id, issued_at, expires_at, revoked
		FROM sessions
		WHERE token_hash = $1
	`

	var sess Session
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&sess.TokenHash,
		&sess.UserID,
		&sess.IssuedAt,
		&sess.ExpiresAt,
		&sess.Revoked,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &sess, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, tokenHash string) error {
	// Conditional update keeps the revoke idempotent under concurrency:
	// whichever writer wins, the row ends up revoked and both succeed.
	query := `
		UPDATE sessions
		SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE
	`

	if _, err := s.db.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeUser(ctx context.Context, userID int64) (int64, error) {
	// Single statement: any session created concurrently is either
	// visible to the sweep or committed after it, never half-swept.
	query := `
		UPDATE sessions
		SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	swept, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count revoked sessions: %w", err)
	}
	return swept, nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}

	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged sessions: %w", err)
	}
	return purged, nil
}
