package dsl

import (
	"github.com/parleyhq/parley/pkg/domain"
)

// RouteBuilder manages the construction of one route.
type RouteBuilder struct {
	route domain.Route
	steps []*StepBuilder
	byID  map[string]*StepBuilder
}

// Route starts building a route with the given title.
func Route(title string) *RouteBuilder {
	return &RouteBuilder{
		route: domain.Route{Title: title},
		byID:  make(map[string]*StepBuilder),
	}
}

// ID sets an explicit route id. Without one the agent derives a stable id
// from the title and registration position.
func (b *RouteBuilder) ID(id string) *RouteBuilder {
	b.route.ID = id
	return b
}

// Describe sets the route description used during disambiguation.
func (b *RouteBuilder) Describe(text string) *RouteBuilder {
	b.route.Description = text
	return b
}

// When sets the route's eligibility condition.
func (b *RouteBuilder) When(cond domain.Condition) *RouteBuilder {
	b.route.When = cond
	return b
}

// SkipWhen sets the route's skip condition.
func (b *RouteBuilder) SkipWhen(cond domain.Condition) *RouteBuilder {
	b.route.SkipIf = cond
	return b
}

// Require declares the schema fields that drive route completion.
func (b *RouteBuilder) Require(fields ...string) *RouteBuilder {
	b.route.Required = append(b.route.Required, fields...)
	return b
}

// OnComplete names the route to hand off to once the terminal marker is
// reached.
func (b *RouteBuilder) OnComplete(ref string) *RouteBuilder {
	b.route.OnComplete = ref
	return b
}

// Guideline appends a narrative hint forwarded to the model.
func (b *RouteBuilder) Guideline(text string) *RouteBuilder {
	b.route.Guidelines = append(b.route.Guidelines, text)
	return b
}

// Term defines domain vocabulary forwarded to the model.
func (b *RouteBuilder) Term(name, meaning string) *RouteBuilder {
	if b.route.Terms == nil {
		b.route.Terms = make(map[string]string)
	}
	b.route.Terms[name] = meaning
	return b
}

// Step creates a new step in the route. Steps keep their declaration
// order; the first one is the route's entry step. Calling Step with an
// existing id returns the existing builder.
func (b *RouteBuilder) Step(id string) *StepBuilder {
	if sb, ok := b.byID[id]; ok {
		return sb
	}
	sb := &StepBuilder{step: domain.Step{ID: id}, route: b}
	b.steps = append(b.steps, sb)
	b.byID[id] = sb
	return sb
}

// Build compiles the route and validates its topology.
func (b *RouteBuilder) Build() (*domain.Route, error) {
	route := b.route
	route.Steps = make([]domain.Step, 0, len(b.steps))
	for _, sb := range b.steps {
		route.Steps = append(route.Steps, sb.step)
	}
	if err := route.Validate(); err != nil {
		return nil, err
	}
	return &route, nil
}
