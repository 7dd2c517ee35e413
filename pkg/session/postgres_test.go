package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	now := time.Now().UTC()
	sess := &Session{
		TokenHash: "abc123",
		UserID:    42,
		IssuedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sess.TokenHash, sess.UserID, sess.IssuedAt, sess.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Create(context.Background(), sess)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"token_hash", "user_id", "issued_at", "expires_at", "revoked"}).
		AddRow("abc123", int64(42), now, now.Add(24*time.Hour), false)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("abc123").
		WillReturnRows(rows)

	sess, err := store.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sess.TokenHash)
	assert.Equal(t, int64(42), sess.UserID)
	assert.False(t, sess.Revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("abc123").
		WillReturnError(errors.New("connection refused"))

	_, err = store.Get(context.Background(), "abc123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Revoke(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectExec("UPDATE sessions").
		WithArgs("abc123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Revoke(context.Background(), "abc123")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Revoke_AlreadyRevoked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	// Zero rows affected is still success
	mock.ExpectExec("UPDATE sessions").
		WithArgs("abc123").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.Revoke(context.Background(), "abc123")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RevokeUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectExec("UPDATE sessions").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	swept, err := store.RevokeUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), swept)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RevokeUser_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectExec("UPDATE sessions").
		WithArgs(int64(42)).
		WillReturnError(errors.New("database error"))

	_, err = store.RevokeUser(context.Background(), 42)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PurgeExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	cutoff := time.Now().UTC().Add(-time.Hour)
	mock.ExpectExec("DELETE FROM sessions").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	purged, err := store.PurgeExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
