package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, 24*time.Hour), mr
}

func testSession(tokenHash string, userID int64, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		TokenHash: tokenHash,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestRedisStore_CreateAndGet(t *testing.T) {
	store, _ := setupRedisStoreTest(t)
	ctx := context.Background()

	sess := testSession("hash1", 42, time.Hour)
	require.NoError(t, store.Create(ctx, sess))

	got, err := store.Get(ctx, "hash1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
	assert.False(t, got.Revoked)
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestRedisStore_Get_NotFound(t *testing.T) {
	store, _ := setupRedisStoreTest(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Get_AfterTTLExpiry(t *testing.T) {
	store, mr := setupRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("hash1", 42, time.Minute)))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "hash1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Revoke(t *testing.T) {
	store, _ := setupRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("hash1", 42, time.Hour)))
	require.NoError(t, store.Revoke(ctx, "hash1"))

	got, err := store.Get(ctx, "hash1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
}

func TestRedisStore_Revoke_Idempotent(t *testing.T) {
	store, _ := setupRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("hash1", 42, time.Hour)))

	assert.NoError(t, store.Revoke(ctx, "hash1"))
	assert.NoError(t, store.Revoke(ctx, "hash1"))
	assert.NoError(t, store.Revoke(ctx, "unknown"))
}

func TestRedisStore_Revoke_PreservesTTL(t *testing.T) {
	store, mr := setupRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("hash1", 42, time.Hour)))
	require.NoError(t, store.Revoke(ctx, "hash1"))

	// The revoked record still expires on schedule
	ttl := mr.TTL(sessionKey("hash1"))
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestRedisStore_RevokeUser(t *testing.T) {
	store, _ := setupRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("hash1", 42, time.Hour)))
	require.NoError(t, store.Create(ctx, testSession("hash2", 42, time.Hour)))
	require.NoError(t, store.Create(ctx, testSession("hash3", 7, time.Hour)))

	swept, err := store.RevokeUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)

	for _, hash := range []string{"hash1", "hash2"} {
		got, err := store.Get(ctx, hash)
		require.NoError(t, err)
		assert.True(t, got.Revoked, "session %s should be revoked", hash)
	}

	// Other users are untouched
	got, err := store.Get(ctx, "hash3")
	require.NoError(t, err)
	assert.False(t, got.Revoked)
}

func TestRedisStore_RevokeUser_CountsOnlyActive(t *testing.T) {
	store, _ := setupRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("hash1", 42, time.Hour)))
	require.NoError(t, store.Create(ctx, testSession("hash2", 42, time.Hour)))
	require.NoError(t, store.Revoke(ctx, "hash1"))

	swept, err := store.RevokeUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)
}

func TestRedisStore_WatermarkRevokesWithoutPerKeyWrite(t *testing.T) {
	store, mr := setupRedisStoreTest(t)
	ctx := context.Background()

	sess := testSession("hash1", 42, time.Hour)
	require.NoError(t, store.Create(ctx, sess))

	// Simulate a sweep whose per-key pass never ran: the watermark alone
	// must make the session read as revoked.
	swept, err := store.RevokeUser(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, int64(1), swept)

	// Restore the raw value to unrevoked, as if the per-key write was lost
	unrevoked, err := json.Marshal(sess)
	require.NoError(t, err)
	require.NoError(t, mr.Set(sessionKey("hash1"), string(unrevoked)))

	got, err := store.Get(ctx, "hash1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
}

func TestRedisStore_SessionIssuedAfterSweepStaysActive(t *testing.T) {
	store, _ := setupRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("hash1", 42, time.Hour)))

	_, err := store.RevokeUser(ctx, 42)
	require.NoError(t, err)

	// A login after the sweep carries a later IssuedAt and is unaffected
	later := testSession("hash2", 42, time.Hour)
	later.IssuedAt = time.Now().UTC().Add(time.Millisecond)
	require.NoError(t, store.Create(ctx, later))

	got, err := store.Get(ctx, "hash2")
	require.NoError(t, err)
	assert.False(t, got.Revoked)
}

func TestRedisStore_PurgeExpired(t *testing.T) {
	store, mr := setupRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("hash1", 42, time.Minute)))
	require.NoError(t, store.Create(ctx, testSession("hash2", 42, time.Hour)))

	mr.FastForward(2 * time.Minute)

	pruned, err := store.PurgeExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	// The surviving session is intact
	_, err = store.Get(ctx, "hash2")
	assert.NoError(t, err)
}
