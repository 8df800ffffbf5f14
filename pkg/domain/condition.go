package domain

import "context"

// Condition is a when/skipIf specification. It is a closed union of three
// shapes: a Literal (advisory text forwarded to the model), a Predicate
// (programmatic gate) and a Group (nested combination of the two).
//
// A nil Condition means "absent": unconditionally eligible for when,
// never skip for skipIf.
type Condition interface {
	condition()
}

// Literal is an advisory condition string. Literals are collected verbatim
// as AI context and never evaluated programmatically.
type Literal string

func (Literal) condition() {}

// Predicate is a programmatic condition evaluated against the template
// context. A returned error (or a panic) counts as false.
type Predicate func(ctx context.Context, tc *TemplateContext) (bool, error)

func (Predicate) condition() {}

// Group nests conditions. Nil entries are ignored.
type Group []Condition

func (Group) condition() {}

// All groups conditions; it mirrors the nested-array shape of declarative
// definitions.
func All(conds ...Condition) Group { return Group(conds) }

// Lit wraps an advisory string.
func Lit(s string) Literal { return Literal(s) }

// Pred wraps a context-free boolean function as a Predicate.
func Pred(fn func(tc *TemplateContext) bool) Predicate {
	return func(_ context.Context, tc *TemplateContext) (bool, error) {
		return fn(tc), nil
	}
}

// TemplateContext is the read view handed to predicates, prompt functions
// and tool handlers for one turn.
type TemplateContext struct {
	// Context is the external, caller-owned context (user profile,
	// feature flags, tool-produced context updates).
	Context map[string]any

	// Data is the collected record for the active route.
	Data map[string]any

	// Session is the session being processed. Read-only for predicates.
	Session *Session

	// History is the message history including the current user message.
	History []Message
}
