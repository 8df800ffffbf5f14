package declarative_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/adapters/declarative"
	"github.com/parleyhq/parley/pkg/domain"
)

const bookingAgent = `
name: booking-desk
defaultRoute: smalltalk
observation: Something else may be going on. Ask a clarifying question.
fallbackMessage: Sorry, something went wrong. Please try again.

routes:
  - id: book_flight
    title: Book Flight
    description: Book a flight for the user.
    when:
      - the user wants to fly somewhere
    skipIf:
      - the user already holds a confirmed booking
    required: [destination, travel_date]
    onComplete: smalltalk
    guidelines:
      - Confirm the destination before asking anything else.
    terms:
      red-eye: an overnight flight departing late in the evening
    schema:
      destination:
        type: string
        required: true
      travel_date:
        type: string
        required: true
      seats:
        type: number
        min: 1
        max: 9
        default: 1
      cabin:
        type: enum
        values: [economy, business, first]
      newsletter:
        type: bool
      notes:
        type: array
    steps:
      - id: prepare
        tools:
          - name: load_profile
            args: {source: crm}
          - name: load_miles
            requires: [profile]
        next: [ask_destination]
      - id: ask_destination
        prompt: Ask where the user wants to go.
        collect: [destination]
        next: [ask_date]
      - id: ask_date
        prompt: Ask when the user wants to travel.
        collect: [travel_date]
        requires: [destination]
        next: [END]

  - title: Smalltalk
    id: smalltalk
    description: Chat when nothing else applies.
    steps:
      - id: chat
        prompt: Respond conversationally.
        next: [END]
`

func TestLoad_ParsesAgentFile(t *testing.T) {
	cfg, err := declarative.Load(strings.NewReader(bookingAgent))
	require.NoError(t, err)

	assert.Equal(t, "booking-desk", cfg.Name)
	assert.Equal(t, "smalltalk", cfg.DefaultRoute)
	assert.Contains(t, cfg.Observation, "clarifying question")
	assert.Contains(t, cfg.FallbackMessage, "try again")
	require.Len(t, cfg.Routes, 2)

	flight := cfg.Routes[0]
	assert.Equal(t, "book_flight", flight.ID)
	assert.Equal(t, []string{"destination", "travel_date"}, flight.Required)
	assert.Equal(t, "smalltalk", flight.OnComplete)
	assert.Equal(t, "an overnight flight departing late in the evening", flight.Terms["red-eye"])
	require.Len(t, flight.Steps, 3)
	assert.Equal(t, "load_profile", flight.Steps[0].Tools[0].Name)
	assert.Equal(t, map[string]any{"source": "crm"}, flight.Steps[0].Tools[0].Args)
	assert.Equal(t, []string{"profile"}, flight.Steps[0].Tools[1].Requires)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := declarative.Load(strings.NewReader(`
name: typo-agent
routez:
  - title: Oops
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routez")
}

func TestRoutes_ConvertsToDomain(t *testing.T) {
	cfg, err := declarative.Load(strings.NewReader(bookingAgent))
	require.NoError(t, err)

	routes, schemas, err := cfg.Build()
	require.NoError(t, err)
	require.Len(t, routes, 2)

	flight := routes[0]
	assert.Equal(t, "book_flight", flight.ID)
	assert.Equal(t, "Book Flight", flight.Title)

	// Advisory strings become literal conditions.
	when, ok := flight.When.(domain.Group)
	require.True(t, ok)
	require.Len(t, when, 1)
	assert.Equal(t, domain.Lit("the user wants to fly somewhere"), when[0])
	skip, ok := flight.SkipIf.(domain.Group)
	require.True(t, ok)
	assert.Equal(t, domain.Lit("the user already holds a confirmed booking"), skip[0])

	entry := flight.InitialStep()
	require.NotNil(t, entry)
	assert.Equal(t, "prepare", entry.ID)
	assert.True(t, entry.IsTool())
	last, ok := flight.Step("ask_date")
	require.True(t, ok)
	assert.Equal(t, []string{domain.StepEnd}, last.Next)

	sc, ok := schemas["book_flight"]
	require.True(t, ok)
	assert.True(t, sc["destination"].Required)
	assert.Equal(t, 1, sc["seats"].Default)

	// The seat count respects its declared bounds.
	assert.NoError(t, sc["seats"].Type.Validate(4))
	assert.Error(t, sc["seats"].Type.Validate(12))
	assert.NoError(t, sc["cabin"].Type.Validate("business"))
	assert.Error(t, sc["cabin"].Type.Validate("cargo"))
	assert.NoError(t, sc["newsletter"].Type.Validate(true))
	assert.NoError(t, sc["notes"].Type.Validate([]any{"window seat"}))

	// The smalltalk route declares no schema.
	_, ok = schemas["smalltalk"]
	assert.False(t, ok)
}

func TestRoutes_DerivesMissingRouteID(t *testing.T) {
	cfg, err := declarative.Load(strings.NewReader(`
routes:
  - title: Give Feedback
    steps:
      - id: ask
        prompt: Ask for feedback.
        next: [END]
`))
	require.NoError(t, err)

	routes, _, err := cfg.Build()
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, domain.DefaultRouteID("Give Feedback", 0), routes[0].ID)
}

func TestRoutes_EnumWithoutValues(t *testing.T) {
	cfg, err := declarative.Load(strings.NewReader(`
routes:
  - id: broken
    title: Broken
    schema:
      cabin:
        type: enum
    steps:
      - id: ask
        prompt: Ask something.
        next: [END]
`))
	require.NoError(t, err)

	_, _, err = cfg.Build()
	require.Error(t, err)
	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Detail, "cabin")
}

func TestRoutes_UnknownFieldType(t *testing.T) {
	cfg, err := declarative.Load(strings.NewReader(`
routes:
  - id: broken
    title: Broken
    schema:
      when:
        type: timestamp
    steps:
      - id: ask
        prompt: Ask something.
        next: [END]
`))
	require.NoError(t, err)

	_, _, err = cfg.Build()
	require.Error(t, err)
	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Detail, "timestamp")
}

func TestRoutes_InvalidTopology(t *testing.T) {
	cfg, err := declarative.Load(strings.NewReader(`
routes:
  - id: broken
    title: Broken
    steps:
      - id: ask
        prompt: Ask something.
        next: [nowhere]
`))
	require.NoError(t, err)

	_, _, err = cfg.Build()
	require.Error(t, err)
	var cerr *domain.ConfigError
	require.ErrorAs(t, err, &cerr)
}
