package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/adapters/memory"
	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/ports"
	"github.com/parleyhq/parley/pkg/session"
)

func newManager(opts ...session.Option) *session.Manager {
	return session.NewManager(memory.NewSessionStore(), memory.NewMessageStore(), opts...)
}

func TestLoadOrStart_CreatesAndReloads(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	created, err := m.LoadOrStart(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, "visitor-1", created.ID)
	assert.Equal(t, domain.SessionActive, created.Status)

	// A second call loads the same session instead of recreating it.
	created.Data["topic"] = "databases"
	require.NoError(t, m.Checkpoint(ctx, created, nil))

	loaded, err := m.LoadOrStart(ctx, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, "databases", loaded.Data["topic"])
}

func TestLoadOrStart_GeneratesID(t *testing.T) {
	m := newManager()

	sess, err := m.LoadOrStart(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
}

func TestCheckpoint_PersistsSessionAndMessages(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	sess, err := m.LoadOrStart(ctx, "visitor-2")
	require.NoError(t, err)

	appended := []domain.Message{
		{Role: domain.RoleUser, Content: "hello", CreatedAt: time.Now().UTC()},
		{Role: domain.RoleAssistant, Content: "hi", CreatedAt: time.Now().UTC()},
	}
	sess.CurrentRouteID = "research"
	sess.CurrentStepID = "ask_topic"
	require.NoError(t, m.Checkpoint(ctx, sess, appended))

	loaded, err := m.Load(ctx, "visitor-2")
	require.NoError(t, err)
	assert.Equal(t, "research", loaded.CurrentRouteID)
	assert.Equal(t, "ask_topic", loaded.CurrentStepID)
	require.Len(t, loaded.History, 2)
	assert.Equal(t, "hello", loaded.History[0].Content)
	assert.Equal(t, "hi", loaded.History[1].Content)
}

func TestLoad_UnknownSession(t *testing.T) {
	m := newManager()
	_, err := m.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestDelete_RemovesSessionAndHistory(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	sess, err := m.LoadOrStart(ctx, "visitor-3")
	require.NoError(t, err)
	require.NoError(t, m.Checkpoint(ctx, sess, []domain.Message{
		{Role: domain.RoleUser, Content: "hello"},
	}))

	require.NoError(t, m.Delete(ctx, "visitor-3"))
	_, err = m.Load(ctx, "visitor-3")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	history, err := m.Messages().FindBySessionID(ctx, "visitor-3")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestApplyTransforms_RunsPipelineInOrder(t *testing.T) {
	m := newManager(session.WithTransforms(
		func(data map[string]any) map[string]any {
			data["a"] = 1
			return data
		},
		nil, // nil stages are skipped
		func(data map[string]any) map[string]any {
			data["b"] = data["a"].(int) + 1
			return nil // nil result keeps the input
		},
	))

	out := m.ApplyTransforms(map[string]any{})
	assert.Equal(t, 1, out["a"])
	assert.Equal(t, 2, out["b"])
}

func TestWithLock_SerializesAccess(t *testing.T) {
	m := newManager()
	ctx := context.Background()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock(ctx, "shared", func(context.Context) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, counter)
}

// recordingLocker captures distributed lock traffic.
type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked int
	err      error
}

func (l *recordingLocker) Lock(_ context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked = append(l.locked, key)
	return func(context.Context) error {
		l.mu.Lock()
		l.unlocked++
		l.mu.Unlock()
		return nil
	}, nil
}

func TestWithLock_UsesDistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	m := newManager(session.WithLocker(locker), session.WithLockTTL(time.Second))

	err := m.WithLock(context.Background(), "visitor-4", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"visitor-4"}, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
}

func TestWithLock_LockerFailure(t *testing.T) {
	locker := &recordingLocker{err: errors.New("redis down")}
	m := newManager(session.WithLocker(locker))

	var ran bool
	err := m.WithLock(context.Background(), "visitor-5", func(context.Context) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, ran, "critical section must not run without the lock")
}
