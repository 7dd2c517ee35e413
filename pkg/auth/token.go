package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// TokenPrefix identifies Loom session tokens
	TokenPrefix = "loom_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// TokenGenerator generates and validates opaque session tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new session token.
// Format: loom_<base64url(32 random bytes)>
// The plaintext token is returned to the client exactly once; only the
// SHA-256 hash is ever persisted.
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullToken := TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)

	hash := sha256.Sum256([]byte(fullToken))
	return fullToken, hex.EncodeToString(hash[:]), nil
}

// HashToken computes the SHA-256 hash of a token for session-store lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct shape before any
// store lookup is attempted
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}
