package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/loomworks/loom/pkg/apperr"
	"github.com/loomworks/loom/pkg/auth"
	"github.com/loomworks/loom/pkg/contextkeys"
	"github.com/loomworks/loom/pkg/httputil"
	"github.com/loomworks/loom/pkg/observability"
)

// TokenValidator resolves a bearer token to an identity. Satisfied by
// the token service.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (auth.Identity, error)
}

// Authenticator resolves bearer tokens to identities
type Authenticator struct {
	tokens  TokenValidator
	metrics *observability.Metrics
}

// NewAuthenticator creates an authenticator over the token service.
// metrics may be nil.
func NewAuthenticator(tokens TokenValidator, metrics *observability.Metrics) *Authenticator {
	return &Authenticator{tokens: tokens, metrics: metrics}
}

func (a *Authenticator) countValidation(outcome string) {
	if a.metrics != nil {
		a.metrics.TokenValidationsTotal.WithLabelValues(outcome).Inc()
	}
}

// Handler wraps an HTTP handler with token authentication. Requests
// without a valid bearer token are rejected 401 with a generic body;
// missing, malformed, unknown, expired, and revoked tokens all read the
// same from outside. A session-store outage is a 503, never a 401.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w)
			return
		}

		identity, err := a.tokens.Validate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				a.countValidation("invalid")
				httputil.WriteUnauthorized(w)
				return
			}
			a.countValidation("error")
			observability.FromContext(r.Context()).WithError(err).Error("token validation backend failure")
			httputil.WriteAppError(w, apperr.Dependency("authentication backend unavailable", err))
			return
		}

		a.countValidation("valid")
		ctx := contextkeys.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an Authorization header.
// Format: "Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// IdentityFromRequest returns the authenticated identity injected by
// Authenticator, or false when the request never passed through it.
func IdentityFromRequest(r *http.Request) (auth.Identity, bool) {
	identity, ok := r.Context().Value(contextkeys.IdentityKey).(auth.Identity)
	return identity, ok
}
