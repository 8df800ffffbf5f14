package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/adapters/redis"
	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/ports"
)

func newClient(t *testing.T) *backend.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return backend.NewClient(&backend.Options{Addr: mr.Addr()})
}

func TestSessionStore_Contract(t *testing.T) {
	client := newClient(t)
	ports.RunSessionStoreContract(t, redis.NewSessionStore(client))
}

func TestMessageStore_Contract(t *testing.T) {
	client := newClient(t)
	ports.RunMessageStoreContract(t, redis.NewMessageStore(client))
}

func TestSessionStore_TTLExpiration(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewSessionStore(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	sess := domain.NewSession("session-ttl")
	sess.CurrentRouteID = "research"
	require.NoError(t, store.Create(ctx, sess))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "session-ttl")

	mr.FastForward(2 * time.Second)

	_, err = store.FindByID(ctx, "session-ttl")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// Index sweeping relies on wall-clock scores, so wait out the TTL.
	time.Sleep(1200 * time.Millisecond)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSessionStore_Prefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewSessionStore(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, domain.NewSession("my-session")))

	assert.True(t, mr.Exists("custom:app:session:my-session"))
	assert.True(t, mr.Exists("custom:app:index"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "my-session")
}

func TestLocker_MutualExclusion(t *testing.T) {
	client := newClient(t)
	locker := redis.NewLocker(client, "")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "session-1", time.Minute)
	require.NoError(t, err)

	// A second acquisition gives up when its context expires.
	shortCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(shortCtx, "session-1", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A different key is unaffected.
	unlockOther, err := locker.Lock(ctx, "session-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlockOther(ctx))

	// After release the key is free again.
	require.NoError(t, unlock(ctx))
	unlock, err = locker.Lock(ctx, "session-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}
