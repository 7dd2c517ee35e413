package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	sessionKeyPrefix = "session:"
	userSetKeyPrefix = "user-sessions:"
	sweepKeyPrefix   = "user-sweep:"
)

// RedisStore implements Store on a Redis keyspace. Session values expire
// natively via TTL, so PurgeExpired only prunes index entries. The
// user-scope sweep writes a revocation watermark: any session issued at
// or before the watermark reads as revoked, which makes RevokeUser a
// single atomic write even while new sessions are being created.
type RedisStore struct {
	client *redis.Client
	maxTTL time.Duration
}

// NewRedisStore creates a session store over an existing Redis client.
// maxTTL must be at least the longest session lifetime; it bounds how
// long revocation watermarks are retained.
func NewRedisStore(client *redis.Client, maxTTL time.Duration) *RedisStore {
	if maxTTL <= 0 {
		maxTTL = 24 * time.Hour
	}
	return &RedisStore{client: client, maxTTL: maxTTL}
}

func sessionKey(tokenHash string) string {
	return sessionKeyPrefix + tokenHash
}

func userSetKey(userID int64) string {
	return fmt.Sprintf("%s%d", userSetKeyPrefix, userID)
}

func sweepKey(userID int64) string {
	return fmt.Sprintf("%s%d", sweepKeyPrefix, userID)
}

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.TokenHash), data, ttl)
	pipe.SAdd(ctx, userSetKey(sess.UserID), sess.TokenHash)
	pipe.Expire(ctx, userSetKey(sess.UserID), s.maxTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, tokenHash string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(tokenHash)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		// Corrupt value; drop it rather than serve garbage
		s.client.Del(ctx, sessionKey(tokenHash))
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if !sess.Revoked {
		swept, err := s.sweptBefore(ctx, sess.UserID)
		if err != nil {
			return nil, err
		}
		if swept != nil && !sess.IssuedAt.After(*swept) {
			sess.Revoked = true
		}
	}

	return &sess, nil
}

// sweptBefore returns the user's revocation watermark, or nil if no
// user-scope sweep is in effect.
func (s *RedisStore) sweptBefore(ctx context.Context, userID int64) (*time.Time, error) {
	raw, err := s.client.Get(ctx, sweepKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt sweep watermark for user %d: %w", userID, err)
	}

	at := time.Unix(0, nanos).UTC()
	return &at, nil
}

func (s *RedisStore) Revoke(ctx context.Context, tokenHash string) error {
	data, err := s.client.Get(ctx, sessionKey(tokenHash)).Result()
	if err == redis.Nil {
		return nil // unknown token, idempotent
	} else if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Revoked {
		return nil
	}

	sess.Revoked = true
	updated, err := json.Marshal(&sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// KeepTTL preserves the natural expiry; XX never resurrects a
	// session that expired between the read and the write.
	if err := s.client.SetArgs(ctx, sessionKey(tokenHash), updated, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) RevokeUser(ctx context.Context, userID int64) (int64, error) {
	now := time.Now().UTC()

	// The watermark alone makes the sweep effective; the per-key pass
	// below is bookkeeping so the swept count is accurate.
	watermark := strconv.FormatInt(now.UnixNano(), 10)
	if err := s.client.Set(ctx, sweepKey(userID), watermark, s.maxTTL).Err(); err != nil {
		return 0, fmt.Errorf("failed to set sweep watermark: %w", err)
	}

	hashes, err := s.client.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to list user sessions: %w", err)
	}

	var swept int64
	for _, hash := range hashes {
		// Read the raw value rather than Get: the watermark just written
		// would make every session report revoked, hiding which ones
		// this sweep actually caught.
		data, err := s.client.Get(ctx, sessionKey(hash)).Result()
		if err == redis.Nil {
			// Expired; drop the stale index entry
			s.client.SRem(ctx, userSetKey(userID), hash)
			continue
		} else if err != nil {
			return swept, fmt.Errorf("redis get failed: %w", err)
		}

		var sess Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			return swept, fmt.Errorf("failed to unmarshal session: %w", err)
		}

		if sess.Active(now) && !sess.IssuedAt.After(now) {
			if err := s.Revoke(ctx, hash); err != nil {
				return swept, err
			}
			swept++
		}
	}
	return swept, nil
}

func (s *RedisStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	// Session values expire natively; this prunes index entries whose
	// session key is already gone.
	var pruned int64

	iter := s.client.Scan(ctx, 0, userSetKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		hashes, err := s.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return pruned, fmt.Errorf("failed to list user sessions: %w", err)
		}
		for _, hash := range hashes {
			exists, err := s.client.Exists(ctx, sessionKey(hash)).Result()
			if err != nil {
				return pruned, fmt.Errorf("redis exists failed: %w", err)
			}
			if exists == 0 {
				if err := s.client.SRem(ctx, setKey, hash).Err(); err != nil {
					return pruned, fmt.Errorf("failed to prune session index: %w", err)
				}
				pruned++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("scan failed: %w", err)
	}
	return pruned, nil
}
