package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/auth"
)

func authUserRows(id int64, email, passwordHash string, tier auth.Tier) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "tier", "avatar_key", "created_at", "updated_at"}).
		AddRow(id, email, passwordHash, string(tier), "", now, now)
}

func TestRegister_Success(t *testing.T) {
	ts := newTestServer(t, staticTiers{})

	ts.mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(authUserRows(1, "alice@example.com", "$2a$10$hash", auth.TierStandard))

	req := newJSONRequest(t, "POST", "/api/auth/register", `{"email":"alice@example.com","password":"hunter2hunter2"}`)
	rec := ts.do(req, "")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"alice@example.com"`)
	assert.NotContains(t, rec.Body.String(), "password", "hash must never serialize")
	assert.NoError(t, ts.mock.ExpectationsWereMet())
}

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t, staticTiers{})

	tests := []struct {
		name, body string
	}{
		{"bad email", `{"email":"nope","password":"hunter2hunter2"}`},
		{"missing email", `{"password":"hunter2hunter2"}`},
		{"short password", `{"email":"alice@example.com","password":"short"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newJSONRequest(t, "POST", "/api/auth/register", tt.body)
			rec := ts.do(req, "")
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
}

func TestRegister_DuplicateEmailIsConflict(t *testing.T) {
	ts := newTestServer(t, staticTiers{})

	ts.mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_users_email"})

	req := newJSONRequest(t, "POST", "/api/auth/register", `{"email":"alice@example.com","password":"hunter2hunter2"}`)
	rec := ts.do(req, "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin_Success(t *testing.T) {
	ts := newTestServer(t, staticTiers{1: auth.TierStandard})

	hash, err := auth.HashPassword("hunter2hunter2")
	require.NoError(t, err)

	ts.mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(authUserRows(1, "alice@example.com", hash, auth.TierStandard))

	req := newJSONRequest(t, "POST", "/api/auth/login", `{"email":"alice@example.com","password":"hunter2hunter2"}`)
	rec := ts.do(req, "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	// The issued token authenticates follow-up requests
	ts.mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(authUserRows(1, "alice@example.com", hash, auth.TierStandard))

	rec = ts.do(newJSONRequest(t, "GET", "/api/auth/me", ""), resp.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_FailuresIndistinguishable(t *testing.T) {
	ts := newTestServer(t, staticTiers{})

	hash, err := auth.HashPassword("correct-password")
	require.NoError(t, err)

	// Unknown address
	ts.mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WillReturnError(sql.ErrNoRows)
	req := newJSONRequest(t, "POST", "/api/auth/login", `{"email":"ghost@example.com","password":"whatever-pass"}`)
	recUnknown := ts.do(req, "")

	// Known address, wrong password
	ts.mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WillReturnRows(authUserRows(1, "alice@example.com", hash, auth.TierStandard))
	req = newJSONRequest(t, "POST", "/api/auth/login", `{"email":"alice@example.com","password":"wrong-password"}`)
	recWrong := ts.do(req, "")

	assert.Equal(t, http.StatusUnauthorized, recUnknown.Code)
	assert.Equal(t, http.StatusUnauthorized, recWrong.Code)
	assert.Equal(t, recUnknown.Body.String(), recWrong.Body.String(), "responses must not reveal which part failed")
}

func TestLogout_RevokesPresentedTokenOnly(t *testing.T) {
	ts := newTestServer(t, staticTiers{1: auth.TierStandard})

	t1 := ts.loginAs(t, 1)
	t2 := ts.loginAs(t, 1)

	rec := ts.do(newJSONRequest(t, "POST", "/api/auth/logout", ""), t1)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// t1 is dead immediately
	rec = ts.do(newJSONRequest(t, "POST", "/api/auth/logout", ""), t1)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// t2 still works
	rec = ts.do(newJSONRequest(t, "POST", "/api/auth/logout", ""), t2)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
