/*
Package parley is a route/step dialogue engine for building conversational
agents on top of pluggable large-language-model providers.

An agent is a library of routes. Each route is a named conversational
capability with an eligibility gate (when/skipIf conditions), a data schema
and a graph of steps. Steps either run tools deterministically or prompt
the model for a user-facing message with schema-constrained extraction. The
engine decides, turn by turn, which route a session is in, which step
executes, and how collected data accumulates.

# Turn pipeline

Every turn runs three strictly ordered phases:

  - PREPARATION executes eligible tool-only steps, enriching the collected
    data and the external context before the model is consulted.
  - ROUTING confirms or selects the active route: a recorded hand-off takes
    precedence, then deterministic gates, sticky continuity, and a
    model-assisted choice when several routes qualify.
  - RESPONSE invokes the model, constrained to extract only the active
    step's collect fields, and emits the user-facing message, whole or as
    an incremental stream.

# Usage

	client := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"))
	agent, err := parley.New(client, parley.WithName("concierge"))
	if err != nil {
		log.Fatal(err)
	}

	err = agent.AddRoute(&domain.Route{
		Title: "Book a table",
		Steps: []domain.Step{
			{ID: "ask_date", Prompt: "Ask for the reservation date.",
				Collect: []string{"date"}, Next: []string{"ask_party"}},
			{ID: "ask_party", Prompt: "Ask how many guests.",
				Collect: []string{"party_size"}, Next: []string{domain.StepEnd}},
		},
	}, schema.Schema{
		"date":       {Type: schema.String(), Required: true},
		"party_size": {Type: schema.Int(), Required: true},
	})
	if err != nil {
		log.Fatal(err)
	}

	res := agent.Process(ctx, "session-123", "I'd like a table tomorrow")
	fmt.Println(res.Message)

Routes can also be declared in YAML and loaded with the declarative
adapter, or assembled fluently with the dsl package. Sessions persist
through pluggable stores; the redis adapter ships alongside the in-memory
default.
*/
package parley
