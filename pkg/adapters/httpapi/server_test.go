package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley"
	"github.com/parleyhq/parley/pkg/adapters/httpapi"
	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model/modeltest"
	"github.com/parleyhq/parley/pkg/schema"
)

func newTestHandler(t *testing.T, turns ...modeltest.Turn) http.Handler {
	t.Helper()
	agent, err := parley.New(modeltest.New(turns...), parley.WithName("test"))
	require.NoError(t, err)
	err = agent.AddRoute(&domain.Route{
		ID:    "booking",
		Title: "Book a table",
		Steps: []domain.Step{
			{ID: "ask_date", Prompt: "Ask for the reservation date.",
				Collect: []string{"date"}, Next: []string{domain.StepEnd}},
		},
	}, schema.Schema{"date": {Type: schema.String(), Required: true}})
	require.NoError(t, err)
	return httpapi.NewHandler(agent)
}

func TestProcessTurn_Endpoint(t *testing.T) {
	handler := newTestHandler(t, modeltest.Turn{Text: "When would you like to come in?"})

	req := httptest.NewRequest(http.MethodPost, "/sessions/guest-1/turns",
		strings.NewReader(`{"input": "I'd like a table"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Message       string          `json:"message"`
		Session       *domain.Session `json:"session"`
		RouteComplete bool            `json:"route_complete"`
		Error         string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "When would you like to come in?", resp.Message)
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "guest-1", resp.Session.ID)
	assert.Equal(t, "booking", resp.Session.CurrentRouteID)
	assert.False(t, resp.RouteComplete)
}

func TestProcessTurn_InvalidBody(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions/guest-1/turns",
		strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessStream_Endpoint(t *testing.T) {
	handler := newTestHandler(t, modeltest.Turn{
		Text:   "Sure thing.",
		Deltas: []string{"Sure ", "thing."},
	})

	req := httptest.NewRequest(http.MethodPost, "/sessions/guest-2/stream",
		strings.NewReader(`{"input": "hello"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: delta")
	assert.Contains(t, body, `"delta":"Sure "`)
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, `"message":"Sure thing."`)
}

func TestSessionEndpoints(t *testing.T) {
	handler := newTestHandler(t, modeltest.Turn{Text: "Hi."})

	// Seed a session by processing a turn.
	req := httptest.NewRequest(http.MethodPost, "/sessions/guest-3/turns",
		strings.NewReader(`{"input": "hello"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// List includes it.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Sessions []string `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Contains(t, listing.Sessions, "guest-3")

	// Get returns the snapshot.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/guest-3", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var sess domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "guest-3", sess.ID)
	assert.Len(t, sess.History, 2)

	// Delete removes it.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sessions/guest-3", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/guest-3", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutesEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/routes", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var routes []struct {
		ID    string   `json:"id"`
		Title string   `json:"title"`
		Steps []string `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &routes))
	require.Len(t, routes, 1)
	assert.Equal(t, "booking", routes[0].ID)
	assert.Equal(t, []string{"ask_date"}, routes[0].Steps)
}

func TestHealthAndMetrics(t *testing.T) {
	handler := newTestHandler(t)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "parley_http_requests_total")
}
