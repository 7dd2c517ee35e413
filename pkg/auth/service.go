package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loomworks/loom/pkg/observability"
	"github.com/loomworks/loom/pkg/session"
)

// ErrInvalidToken is the single validation failure returned for malformed,
// unknown, expired, and revoked tokens alike. Collapsing the causes
// prevents token enumeration; internal logs keep the distinction.
var ErrInvalidToken = errors.New("invalid token")

// DefaultTokenTTL is the session lifetime when none is configured
const DefaultTokenTTL = 24 * time.Hour

// TierResolver resolves the current tier for a user id. Implemented by the
// user store; validation reads the tier fresh on every call so a tier
// change is never served from a stale credential.
type TierResolver interface {
	ResolveTier(ctx context.Context, userID int64) (Tier, error)
}

// Service owns the token lifecycle. All session-store mutation passes
// through it.
type Service struct {
	sessions  session.Store
	tiers     TierResolver
	generator *TokenGenerator
	ttl       time.Duration
	logger    *observability.Logger
}

// NewService creates a token service over the given session store.
// ttl <= 0 falls back to DefaultTokenTTL.
func NewService(sessions session.Store, tiers TierResolver, ttl time.Duration, logger *observability.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		sessions:  sessions,
		tiers:     tiers,
		generator: NewTokenGenerator(),
		ttl:       ttl,
		logger:    logger,
	}
}

// TTL returns the configured session lifetime
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue creates a fresh token bound to userID and persists its session.
// Every login produces a new token, independent of prior sessions for the
// same user. The plaintext token is returned exactly once.
func (s *Service) Issue(ctx context.Context, userID int64) (string, *session.Session, error) {
	token, tokenHash, err := s.generator.GenerateToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now().UTC()
	sess := &session.Session{
		TokenHash: tokenHash,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"expires_at": sess.ExpiresAt,
	}).Debug("session issued")

	return token, sess, nil
}

// Validate resolves a bearer token to an identity. It fails with
// ErrInvalidToken when the token is malformed, unknown, expired, or
// revoked; callers cannot tell which. Expiry is checked here on every
// call, so a passed deadline takes effect without any sweep.
func (s *Service) Validate(ctx context.Context, token string) (Identity, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		s.logger.WithError(err).Debug("token rejected: malformed")
		return Identity{}, ErrInvalidToken
	}

	sess, err := s.sessions.Get(ctx, s.generator.HashToken(token))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.logger.Debug("token rejected: unknown")
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("session lookup failed: %w", err)
	}

	now := time.Now().UTC()
	if sess.Revoked {
		s.logger.WithField("user_id", sess.UserID).Debug("token rejected: revoked")
		return Identity{}, ErrInvalidToken
	}
	if sess.Expired(now) {
		s.logger.WithField("user_id", sess.UserID).Debug("token rejected: expired")
		return Identity{}, ErrInvalidToken
	}

	tier, err := s.tiers.ResolveTier(ctx, sess.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("tier resolution failed: %w", err)
	}

	return Identity{UserID: sess.UserID, Tier: tier}, nil
}

// Revoke marks the presented token's session revoked. Idempotent: revoking
// an already-revoked or unknown token is not an error, and a malformed
// token is simply ignored.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil
	}

	if err := s.sessions.Revoke(ctx, s.generator.HashToken(token)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAll invalidates every active session for a user. Used for
// account-wide logout and on tier changes so the privilege change takes
// effect immediately rather than at token expiry.
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	swept, err := s.sessions.RevokeUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"swept":   swept,
	}).Info("revoked all sessions for user")
	return nil
}
