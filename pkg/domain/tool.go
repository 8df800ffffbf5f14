package domain

import "context"

// ToolContext is the read view a tool handler receives. Handlers must be
// idempotent-safe: a failed step is retried on the next turn and the engine
// does not deduplicate invocations.
type ToolContext struct {
	// Args are the static arguments from the step's ToolRef.
	Args map[string]any

	// Context is the external context at call time.
	Context map[string]any

	// Data is the collected record at call time.
	Data map[string]any

	// History is the session history including the current user message.
	History []Message

	// Session identifies the session being processed.
	Session *Session
}

// ToolResult carries a handler's output back into the turn.
type ToolResult struct {
	// Data is the raw result, surfaced to hooks and logs.
	Data any

	// DataUpdate is merged into the collected record through the schema
	// gate.
	DataUpdate map[string]any

	// ContextUpdate is merged into the external context.
	ContextUpdate map[string]any
}

// ToolHandler is a named, user-supplied side effect. A returned error is
// caught at the step boundary and surfaced as a turn-level error; it never
// crashes the pipeline.
type ToolHandler func(ctx context.Context, tc *ToolContext) (*ToolResult, error)
