package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/loomworks/loom/pkg/apperr"
	"github.com/loomworks/loom/pkg/auth"
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, tier, COALESCE(avatar_key, ''), created_at, updated_at`

// Store persists user accounts in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a user store over an existing connection pool
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Tier, &u.AvatarKey, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user")
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// Create inserts a new account. The email is stored normalized; a
// duplicate address (case-insensitive) yields a Conflict error.
func (s *Store) Create(ctx context.Context, email, passwordHash string, tier auth.Tier) (*User, error) {
	query := `
		INSERT INTO users (email, password_hash, tier)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	row := s.db.QueryRowContext(ctx, query, NormalizeEmail(email), passwordHash, tier)
	u, err := scanUser(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, apperr.Conflict("an account with this email already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetByID returns the account with the given id, or a NotFound error
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail returns the account for a normalized email address
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, NormalizeEmail(email)))
}

// List returns accounts ordered by creation time
func (s *Store) List(ctx context.Context, limit, offset int) ([]*User, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Tier, &u.AvatarKey, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// UpdateTier sets the account's tier and returns the updated record.
// Callers are responsible for revoking the user's sessions afterwards so
// the change takes effect immediately.
func (s *Store) UpdateTier(ctx context.Context, id int64, tier auth.Tier) (*User, error) {
	query := `
		UPDATE users
		SET tier = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUser(s.db.QueryRowContext(ctx, query, id, tier))
}

// UpdateAvatar records the object-storage key of the user's avatar. It
// touches only the avatar column, so it cannot clobber a concurrent tier
// or email change.
func (s *Store) UpdateAvatar(ctx context.Context, id int64, avatarKey string) (*User, error) {
	query := `
		UPDATE users
		SET avatar_key = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUser(s.db.QueryRowContext(ctx, query, id, avatarKey))
}

// UpdateEmail changes the account's address, normalized, with the same
// conflict semantics as Create.
func (s *Store) UpdateEmail(ctx context.Context, id int64, email string) (*User, error) {
	query := `
		UPDATE users
		SET email = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRowContext(ctx, query, id, NormalizeEmail(email)))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, apperr.Conflict("an account with this email already exists")
		}
		return nil, err
	}
	return u, nil
}

// UpdatePassword replaces the stored password hash
func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check password update: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// Delete removes the account
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check user deletion: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

// Count returns the number of accounts, for the dashboard
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ResolveTier reads the user's current tier. Token validation calls this
// on every request, so a tier change is visible immediately.
func (s *Store) ResolveTier(ctx context.Context, userID int64) (auth.Tier, error) {
	var tier auth.Tier
	err := s.db.QueryRowContext(ctx, `SELECT tier FROM users WHERE id = $1`, userID).Scan(&tier)
	if err == sql.ErrNoRows {
		return "", apperr.NotFound("user")
	} else if err != nil {
		return "", fmt.Errorf("failed to resolve tier: %w", err)
	}
	return tier, nil
}
