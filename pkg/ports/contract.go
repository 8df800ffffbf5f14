package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/domain"
)

// RunSessionStoreContract runs a suite of tests to verify that a
// SessionStore implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Create and FindByID", func(t *testing.T) {
		session := domain.NewSession(sessionID)
		session.CurrentRouteID = "onboarding"
		session.CurrentStepID = "ask_name"
		session.Data["name"] = "Ada"
		session.Data["count"] = 42

		err := store.Create(ctx, session)
		require.NoError(t, err, "Create should not return error")

		loaded, err := store.FindByID(ctx, sessionID)
		require.NoError(t, err, "FindByID should not return error")
		assert.Equal(t, session.CurrentRouteID, loaded.CurrentRouteID)
		assert.Equal(t, session.CurrentStepID, loaded.CurrentStepID)
		assert.Equal(t, "Ada", loaded.Data["name"])
		// JSON persistence often converts int to float; just check presence.
		assert.NotNil(t, loaded.Data["count"])
	})

	t.Run("FindByID Non-Existent", func(t *testing.T) {
		_, err := store.FindByID(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		session := domain.NewSession(sessionID)
		_ = store.Create(ctx, session)

		session.Status = domain.SessionCompleted
		session.Pending = &domain.PendingTransition{TargetRoute: "followup", Reason: "route_complete"}
		err := store.Update(ctx, session)
		require.NoError(t, err)

		loaded, err := store.FindByID(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionCompleted, loaded.Status)
		require.NotNil(t, loaded.Pending)
		assert.Equal(t, "followup", loaded.Pending.TargetRoute)
	})

	t.Run("UpdateData", func(t *testing.T) {
		err := store.UpdateData(ctx, sessionID, map[string]any{"topic": "databases"})
		require.NoError(t, err)

		loaded, err := store.FindByID(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "databases", loaded.Data["topic"])
	})

	t.Run("UpdateRouteStep", func(t *testing.T) {
		err := store.UpdateRouteStep(ctx, sessionID, "research", "ask_depth")
		require.NoError(t, err)

		loaded, err := store.FindByID(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "research", loaded.CurrentRouteID)
		assert.Equal(t, "ask_depth", loaded.CurrentStepID)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.FindByID(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "FindByID after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Create(ctx, domain.NewSession(id1))
		_ = store.Create(ctx, domain.NewSession(id2))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunMessageStoreContract verifies a MessageStore implementation against
// the interface contract.
func RunMessageStoreContract(t *testing.T, store MessageStore) {
	ctx := context.Background()
	sessionID := "contract-test-messages-" + time.Now().Format("20060102150405")

	t.Run("Append preserves order", func(t *testing.T) {
		msgs := []domain.Message{
			{Role: domain.RoleUser, Content: "hello", CreatedAt: time.Now().UTC()},
			{Role: domain.RoleAssistant, Content: "hi there", CreatedAt: time.Now().UTC()},
			{Role: domain.RoleUser, Content: "help me plan a trip", CreatedAt: time.Now().UTC()},
		}
		for _, msg := range msgs {
			require.NoError(t, store.Append(ctx, sessionID, msg))
		}

		history, err := store.FindBySessionID(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, history, len(msgs))
		for i := range msgs {
			assert.Equal(t, msgs[i].Role, history[i].Role)
			assert.Equal(t, msgs[i].Content, history[i].Content)
		}
	})

	t.Run("FindBySessionID Empty", func(t *testing.T) {
		history, err := store.FindBySessionID(ctx, "non-existent-"+sessionID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("DeleteBySessionID", func(t *testing.T) {
		require.NoError(t, store.DeleteBySessionID(ctx, sessionID))

		history, err := store.FindBySessionID(ctx, sessionID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}
