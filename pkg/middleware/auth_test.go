package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/auth"
	"github.com/loomworks/loom/pkg/contextkeys"
	"github.com/loomworks/loom/pkg/observability"
)

type stubValidator struct {
	identities map[string]auth.Identity
	err        error
}

func (s stubValidator) Validate(ctx context.Context, token string) (auth.Identity, error) {
	if s.err != nil {
		return auth.Identity{}, s.err
	}
	identity, ok := s.identities[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return identity, nil
}

func echoIdentity(t *testing.T, want auth.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromRequest(r)
		require.True(t, ok)
		assert.Equal(t, want, identity)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticator_ValidToken(t *testing.T) {
	validator := stubValidator{identities: map[string]auth.Identity{
		"good-token": {UserID: 1, Tier: auth.TierStandard},
	}}
	handler := NewAuthenticator(validator, nil).Handler(echoIdentity(t, auth.Identity{UserID: 1, Tier: auth.TierStandard}))

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticator_Rejections(t *testing.T) {
	validator := stubValidator{identities: map[string]auth.Identity{}}
	handler := NewAuthenticator(validator, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"unknown token", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthenticator_BackendFailureIs503(t *testing.T) {
	validator := stubValidator{err: errors.New("connection refused")}
	handler := NewAuthenticator(validator, nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "retryable")
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer loom_abc")

	token, ok := BearerToken(req)
	assert.True(t, ok, "scheme comparison is case-insensitive")
	assert.Equal(t, "loom_abc", token)
}

func policyRequest(t *testing.T, identity *auth.Identity, pathID string) *http.Request {
	req := httptest.NewRequest("PUT", "/api/users/"+pathID, nil)
	req = mux.SetURLVars(req, map[string]string{"id": pathID})
	if identity != nil {
		req = req.WithContext(contextkeys.WithIdentity(req.Context(), *identity))
	}
	return req
}

func TestPolicy_MinTier(t *testing.T) {
	handler := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, policyRequest(t, &auth.Identity{UserID: 1, Tier: auth.TierStandard}, "1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, policyRequest(t, &auth.Identity{UserID: 2, Tier: auth.TierAdmin}, "1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPolicy_MissingIdentityIs401(t *testing.T) {
	handler := RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, policyRequest(t, nil, "1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPolicy_SelfOrAdmin(t *testing.T) {
	handler := RequireSelfOrAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		identity auth.Identity
		pathID   string
		want     int
	}{
		{"owner allowed", auth.Identity{UserID: 7, Tier: auth.TierStandard}, "7", http.StatusOK},
		{"other user forbidden", auth.Identity{UserID: 7, Tier: auth.TierStandard}, "8", http.StatusForbidden},
		{"admin allowed on anyone", auth.Identity{UserID: 1, Tier: auth.TierAdmin}, "8", http.StatusOK},
		{"bad path id forbidden", auth.Identity{UserID: 7, Tier: auth.TierStandard}, "abc", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, policyRequest(t, &tt.identity, tt.pathID))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPolicy_PublicSkipsChecks(t *testing.T) {
	handler := Policy{Public: true}.Enforce(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/auth/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticator_CountsValidationOutcomes(t *testing.T) {
	metrics := observability.NewMetrics(nil)
	validator := stubValidator{identities: map[string]auth.Identity{
		"good-token": {UserID: 1, Tier: auth.TierStandard},
	}}
	handler := NewAuthenticator(validator, metrics).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(token string) {
		req := httptest.NewRequest("GET", "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	send("good-token")
	send("good-token")
	send("bad-token")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TokenValidationsTotal.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenValidationsTotal.WithLabelValues("invalid")))
}
