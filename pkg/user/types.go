// Package user owns account records: registration, lookup, tier changes,
// and the avatar reference. The store is also the tier authority that
// token validation consults on every request.
package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/loomworks/loom/pkg/apperr"
	"github.com/loomworks/loom/pkg/auth"
)

// User is an account record. PasswordHash never serializes; AvatarKey is
// the object-storage key of the current avatar, empty when none is set.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Tier         auth.Tier `json:"tier"`
	AvatarKey    string    `json:"avatar_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address. Uniqueness is
// enforced on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that an address is well-formed
func ValidateEmail(email string) error {
	if email == "" {
		return apperr.Validationf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Validationf("invalid email address")
	}
	return nil
}
