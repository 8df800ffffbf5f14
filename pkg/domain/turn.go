package domain

// Usage records token counts reported by the model provider. All fields are
// zero when the provider does not report usage.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// TurnResult is the outcome of one processed turn. The pipeline always
// returns a well-formed result; callers inspect Err instead of wrapping
// every call in error handling.
type TurnResult struct {
	// Message is the user-facing text. Empty on tool/provider errors
	// unless a fallback message is configured.
	Message string `json:"message"`

	// Session is the post-turn snapshot.
	Session *Session `json:"session"`

	// RouteComplete is true when the active route reached its terminal
	// marker this turn. The completing route is still reported as current;
	// any onComplete hand-off resolves at the start of the next turn.
	RouteComplete bool `json:"route_complete"`

	// Usage aggregates provider token usage for the turn.
	Usage Usage `json:"usage"`

	// Err is the turn-level error, if any. Recoverable by retrying the
	// turn; the state machine stays at the failed step.
	Err error `json:"-"`
}

// StreamFragment is one element of a streamed RESPONSE. The terminal
// fragment has Done set and carries the fully accumulated text, usage and
// session snapshot. A consumed stream cannot be replayed; issue a fresh
// turn to regenerate.
type StreamFragment struct {
	Delta       string `json:"delta,omitempty"`
	Accumulated string `json:"accumulated,omitempty"`

	Done          bool     `json:"done"`
	Session       *Session `json:"session,omitempty"`
	RouteComplete bool     `json:"route_complete,omitempty"`
	Usage         Usage    `json:"usage"`
	Err           error    `json:"-"`
}
