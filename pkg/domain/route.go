package domain

import (
	"fmt"
	"hash/fnv"
)

// StepEnd is the distinguished terminal marker. A step whose successor list
// contains StepEnd completes the route when the machine advances past it.
const StepEnd = "__end__"

// ToolRef names a registered tool to run during a step, with static
// arguments merged into the handler's call context.
type ToolRef struct {
	Name string         `json:"name" yaml:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty"`

	// Requires declares data fields this tool depends on. When an earlier
	// tool in the same batch fails and leaves a dependency unmet, the
	// dependent tool is skipped rather than retried.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// Step is one immutable node in a route's state machine. The session's
// pointer into the graph is what changes, never the step itself.
type Step struct {
	ID string `json:"id" yaml:"id"`

	// Prompt is the instruction shown to the model when this step drives
	// the RESPONSE phase. PromptFunc, when set, wins over Prompt.
	Prompt     string                           `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	PromptFunc func(tc *TemplateContext) string `json:"-" yaml:"-"`

	// Collect lists the schema fields this step may populate.
	Collect []string `json:"collect,omitempty" yaml:"collect,omitempty"`

	// Requires lists fields that must already be present for this step to
	// be eligible. Unmet requirements hold the machine at the predecessor.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`

	// SkipIf bypasses the step without consuming a user-facing action.
	SkipIf Condition `json:"-" yaml:"-"`

	// Tools, when non-empty, makes this a PREPARATION-phase step: the
	// handlers run deterministically, in declaration order, with no model
	// call and no user-visible message.
	Tools []ToolRef `json:"tools,omitempty" yaml:"tools,omitempty"`

	// Next lists successor step ids, evaluated in order. StepEnd marks the
	// route-complete edge.
	Next []string `json:"next,omitempty" yaml:"next,omitempty"`
}

// IsTool reports whether the step executes during PREPARATION.
func (s *Step) IsTool() bool { return len(s.Tools) > 0 }

// Route is a named conversational capability: an eligibility gate, a data
// schema and a graph of steps. Topology is immutable after agent build;
// only guidelines and terms may be appended.
type Route struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	When   Condition `json:"-" yaml:"-"`
	SkipIf Condition `json:"-" yaml:"-"`

	// Required lists the schema fields that drive route completion. They
	// never cause rejection of a partial record.
	Required []string `json:"required,omitempty" yaml:"required,omitempty"`

	Steps []Step `json:"steps" yaml:"steps"`

	// OnComplete names the route (by id or title) to hand off to once the
	// terminal marker is reached. Empty ends the conversation here.
	OnComplete string `json:"on_complete,omitempty" yaml:"on_complete,omitempty"`

	// Guidelines and Terms are narrative hints forwarded to the model.
	Guidelines []string          `json:"guidelines,omitempty" yaml:"guidelines,omitempty"`
	Terms      map[string]string `json:"terms,omitempty" yaml:"terms,omitempty"`

	steps map[string]*Step
}

// DefaultRouteID derives a stable id from a route title and its position,
// so persisted sessions survive restarts when no explicit id is given.
func DefaultRouteID(title string, index int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d", title, index)
	return fmt.Sprintf("route_%x", h.Sum64())
}

// Step resolves a step id through the route's lookup table. Edges store ids
// only; resolving through the owning route avoids cyclic ownership.
func (r *Route) Step(id string) (*Step, bool) {
	if r.steps == nil {
		r.steps = make(map[string]*Step, len(r.Steps))
		for i := range r.Steps {
			r.steps[r.Steps[i].ID] = &r.Steps[i]
		}
	}
	s, ok := r.steps[id]
	return s, ok
}

// InitialStep returns the entry step of the route graph.
func (r *Route) InitialStep() *Step {
	if len(r.Steps) == 0 {
		return nil
	}
	return &r.Steps[0]
}

// Validate checks the route's internal consistency: step ids must be unique
// and every successor edge must resolve to a step or to StepEnd.
func (r *Route) Validate() error {
	if r.Title == "" && r.ID == "" {
		return &ConfigError{Scope: "route", Detail: "route needs a title or an id"}
	}
	if len(r.Steps) == 0 {
		return &ConfigError{Scope: r.Name(), Detail: "route has no steps"}
	}
	seen := make(map[string]bool, len(r.Steps))
	for i := range r.Steps {
		step := &r.Steps[i]
		if step.ID == "" {
			return &ConfigError{Scope: r.Name(), Detail: fmt.Sprintf("step %d has no id", i)}
		}
		if seen[step.ID] {
			return &ConfigError{Scope: r.Name(), Detail: fmt.Sprintf("duplicate step id %q", step.ID)}
		}
		seen[step.ID] = true
	}
	for i := range r.Steps {
		for _, next := range r.Steps[i].Next {
			if next == StepEnd {
				continue
			}
			if !seen[next] {
				return &ConfigError{
					Scope:  r.Name(),
					Detail: fmt.Sprintf("step %q references unknown successor %q", r.Steps[i].ID, next),
				}
			}
		}
	}
	return nil
}

// Name returns the route title, falling back to the id.
func (r *Route) Name() string {
	if r.Title != "" {
		return r.Title
	}
	return r.ID
}

// Matches reports whether ref names this route by id or title.
func (r *Route) Matches(ref string) bool {
	return ref != "" && (ref == r.ID || ref == r.Title)
}
