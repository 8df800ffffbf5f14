package runtime

import (
	"context"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/schema"
)

// missingFields lists the required fields absent from data, for logging.
func missingFields(data map[string]any, required []string) []string {
	var out []string
	for _, name := range required {
		if v, ok := data[name]; !ok || v == nil {
			out = append(out, name)
		}
	}
	return out
}

// runResponse drives the single-completion RESPONSE phase: pick the asking
// step, call the model constrained to that step's collect fields, merge the
// extraction, and settle the step pointer.
func (e *Engine) runResponse(ctx context.Context, route *domain.Route, turn *turnState, result *domain.TurnResult) error {
	if route == nil {
		return e.respondUngoverned(ctx, turn, result)
	}

	asking, outcome := e.askingStep(ctx, route, turn)

	req := e.newRequest(
		systemPrompt(route, asking, turn.tc, turn.aiContext),
		turn.tc.History,
		e.extractionSchema(route, asking),
	)
	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		return &domain.ProviderError{Op: "complete", Cause: err}
	}
	turn.addUsage(resp.Usage)

	e.commitAsking(ctx, route, asking, turn)
	if len(resp.Extracted) > 0 {
		e.applyPatch(ctx, route, turn, resp.Extracted)
	}
	e.settleStep(ctx, route, asking, outcome, turn, result)

	result.Message = resp.Text
	if resp.Text != "" {
		turn.addMessage(domain.RoleAssistant, resp.Text)
	}
	return nil
}

// askingStep picks the step whose prompt drives this turn's model call. A
// hold keeps the machine at the current prompt step, which re-asks; a
// terminal outcome yields no asking step and the route closes this turn.
func (e *Engine) askingStep(ctx context.Context, route *domain.Route, turn *turnState) (*domain.Step, advanceOutcome) {
	step, outcome := e.advance(ctx, route, turn.session.CurrentStepID, turn.tc)
	switch outcome {
	case advanceStep:
		return step, outcome
	case advanceHold:
		if cur, ok := route.Step(turn.session.CurrentStepID); ok && !cur.IsTool() {
			return cur, outcome
		}
		return nil, outcome
	default:
		return nil, advanceComplete
	}
}

// extractionSchema restricts the model's extraction surface to the asking
// step's collect list. No collect list, or no schema, means no extraction.
func (e *Engine) extractionSchema(route *domain.Route, asking *domain.Step) map[string]any {
	if asking == nil || len(asking.Collect) == 0 {
		return nil
	}
	sc := e.schemas[route.ID]
	if len(sc) == 0 {
		return nil
	}
	return sc.JSONSchema(asking.Collect...)
}

// commitAsking moves the step pointer to the asking step once the model
// call has succeeded, so a provider failure leaves the pointer untouched.
func (e *Engine) commitAsking(ctx context.Context, route *domain.Route, asking *domain.Step, turn *turnState) {
	if asking == nil || turn.session.CurrentStepID == asking.ID {
		return
	}
	turn.session.CurrentStepID = asking.ID
	e.emitStepEnter(ctx, turn.session, route, asking)
}

// settleStep re-advances with the merged data: a tool step reached now is
// scheduled by parking the pointer on it for the next turn's PREPARATION, a
// terminal outcome completes the route, and a prompt step leaves the
// pointer where it is so the next turn recomputes from the asking step.
func (e *Engine) settleStep(ctx context.Context, route *domain.Route, asking *domain.Step, outcome advanceOutcome, turn *turnState, result *domain.TurnResult) {
	if outcome == advanceComplete {
		e.completeRoute(ctx, route, turn, result)
		return
	}

	next, nextOutcome := e.advance(ctx, route, turn.session.CurrentStepID, turn.tc)
	switch {
	case nextOutcome == advanceComplete:
		e.completeRoute(ctx, route, turn, result)
	case nextOutcome == advanceStep && next.IsTool():
		turn.session.CurrentStepID = next.ID
	}
}

// completeRoute marks the turn's route terminal. The route's required
// fields gate completion: an exhausted step graph with required data still
// missing holds the route open, and the machine re-asks on the next turn.
// With an onComplete target the hand-off is only recorded: the same turn
// still reports the completing route as current, and the next turn resolves
// the transition.
func (e *Engine) completeRoute(ctx context.Context, route *domain.Route, turn *turnState, result *domain.TurnResult) {
	if !schema.IsComplete(turn.session.Data, route.Required) {
		e.logger.Debug("route held open", "route", route.ID, "missing", missingFields(turn.session.Data, route.Required))
		return
	}
	result.RouteComplete = true
	if route.OnComplete != "" {
		turn.session.Pending = &domain.PendingTransition{
			TargetRoute: route.OnComplete,
			Reason:      "route_complete",
		}
		e.emitTransition(ctx, turn.session, route.ID, route.OnComplete, "route_complete")
		return
	}
	turn.session.Status = domain.SessionCompleted
}

// respondUngoverned answers without an active route: either the observation
// path chosen during disambiguation, or a plain conversational reply when
// no candidate qualified and no default route exists.
func (e *Engine) respondUngoverned(ctx context.Context, turn *turnState, result *domain.TurnResult) error {
	system := systemPrompt(nil, nil, turn.tc, turn.aiContext)
	if turn.observe && e.observationPrompt != "" {
		if system != "" {
			system = e.observationPrompt + "\n\n" + system
		} else {
			system = e.observationPrompt
		}
	}

	resp, err := e.client.Complete(ctx, e.newRequest(system, turn.tc.History, nil))
	if err != nil {
		return &domain.ProviderError{Op: "complete", Cause: err}
	}
	turn.addUsage(resp.Usage)

	result.Message = resp.Text
	if resp.Text != "" {
		turn.addMessage(domain.RoleAssistant, resp.Text)
	}
	return nil
}
