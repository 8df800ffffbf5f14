package dsl

import (
	"github.com/parleyhq/parley/pkg/domain"
)

// StepBuilder configures one step of a route.
type StepBuilder struct {
	step  domain.Step
	route *RouteBuilder
}

// Prompt sets the instruction shown to the model when this step drives the
// response.
func (b *StepBuilder) Prompt(text string) *StepBuilder {
	b.step.Prompt = text
	return b
}

// PromptFunc sets a dynamic prompt rendered against the turn's template
// context. It wins over Prompt when both are set.
func (b *StepBuilder) PromptFunc(fn func(tc *domain.TemplateContext) string) *StepBuilder {
	b.step.PromptFunc = fn
	return b
}

// Collect lists the schema fields this step may populate.
func (b *StepBuilder) Collect(fields ...string) *StepBuilder {
	b.step.Collect = append(b.step.Collect, fields...)
	return b
}

// Requires lists fields that must already be present for this step to be
// eligible.
func (b *StepBuilder) Requires(fields ...string) *StepBuilder {
	b.step.Requires = append(b.step.Requires, fields...)
	return b
}

// SkipWhen bypasses the step when the condition holds.
func (b *StepBuilder) SkipWhen(cond domain.Condition) *StepBuilder {
	b.step.SkipIf = cond
	return b
}

// Tool adds a tool reference executed during PREPARATION.
func (b *StepBuilder) Tool(name string, args map[string]any) *StepBuilder {
	b.step.Tools = append(b.step.Tools, domain.ToolRef{Name: name, Args: args})
	return b
}

// ToolDependingOn adds a tool reference that is skipped, not retried, when
// an earlier failure in the same batch left its field dependencies unmet.
func (b *StepBuilder) ToolDependingOn(name string, args map[string]any, fields ...string) *StepBuilder {
	b.step.Tools = append(b.step.Tools, domain.ToolRef{Name: name, Args: args, Requires: fields})
	return b
}

// Go appends successor step ids, evaluated in order.
func (b *StepBuilder) Go(ids ...string) *StepBuilder {
	b.step.Next = append(b.step.Next, ids...)
	return b
}

// End marks this step as completing the route.
func (b *StepBuilder) End() *StepBuilder {
	b.step.Next = append(b.step.Next, domain.StepEnd)
	return b
}

// Step returns to the route builder to declare another step.
func (b *StepBuilder) Step(id string) *StepBuilder {
	return b.route.Step(id)
}

// Build compiles the owning route.
func (b *StepBuilder) Build() (*domain.Route, error) {
	return b.route.Build()
}
