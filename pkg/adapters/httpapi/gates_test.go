package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley"
	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model/modeltest"
)

func TestDeleteSession_RetiresGate(t *testing.T) {
	agent, err := parley.New(modeltest.New(), parley.WithName("test"))
	require.NoError(t, err)
	err = agent.AddRoute(&domain.Route{
		ID:    "booking",
		Title: "Book a table",
		Steps: []domain.Step{
			{ID: "ask_date", Prompt: "Ask for the reservation date.",
				Collect: []string{"date"}, Next: []string{domain.StepEnd}},
		},
	}, nil)
	require.NoError(t, err)
	manager, err := agent.Sessions()
	require.NoError(t, err)
	_, err = manager.LoadOrStart(context.Background(), "guest-1")
	require.NoError(t, err)

	s := &Server{agent: agent, logger: logging.NewNop()}
	s.gate("guest-1")
	s.gate("guest-2")

	r := chi.NewRouter()
	r.Delete("/sessions/{id}", s.deleteSession)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("DELETE", "/sessions/guest-1", nil))
	require.Equal(t, 204, rec.Code)

	_, kept := s.gates.Load("guest-1")
	assert.False(t, kept, "deleted session's gate should be retired")
	_, kept = s.gates.Load("guest-2")
	assert.True(t, kept, "other sessions' gates must survive")
}
