package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindAuthentication, http.StatusUnauthorized},
		{KindAuthorization, http.StatusForbidden},
		{KindValidation, http.StatusUnprocessableEntity},
		{KindConflict, http.StatusConflict},
		{KindDependency, http.StatusServiceUnavailable},
		{KindNotFound, http.StatusNotFound},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.kind.HTTPStatus())
		})
	}
}

func TestAuthenticationIsGeneric(t *testing.T) {
	// The message must not reveal whether the token was unknown, expired,
	// or revoked.
	err := Authentication()
	assert.Equal(t, "invalid or expired credentials", err.Message)
	assert.Equal(t, KindAuthentication, err.Kind)
}

func TestAuthorizationDistinctFromAuthentication(t *testing.T) {
	authn := Authentication()
	authz := Authorization()
	assert.NotEqual(t, authn.Kind, authz.Kind)
	assert.NotEqual(t, authn.Kind.HTTPStatus(), authz.Kind.HTTPStatus())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("database unavailable", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, err.Retryable())
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(Conflict("email already registered")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain error")))

	wrapped := fmt.Errorf("handler: %w", NotFound("user"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Validationf("file too large: %d bytes", 999))
	assert.True(t, IsKind(err, KindValidation))
	assert.False(t, IsKind(err, KindConflict))
	assert.False(t, IsKind(nil, KindValidation))
}

func TestValidationfMessage(t *testing.T) {
	err := Validationf("unsupported content type %q", "text/html")
	assert.Equal(t, `unsupported content type "text/html"`, err.Message)
	assert.False(t, err.Retryable())
}
