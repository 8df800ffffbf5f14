package runtime

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/pkg/condition"
	"github.com/parleyhq/parley/pkg/domain"
)

// Selection reasons recorded on route events.
const (
	reasonPending = "pending"
	reasonOnly    = "only"
	reasonSticky  = "sticky"
	reasonModel   = "model"
	reasonDefault = "default"
)

// observeToken is the disambiguation answer that defers route commitment in
// favor of a clarifying question to the user.
const observeToken = "OBSERVE"

// consumePending resolves a recorded hand-off at the start of a turn. The
// target is trusted as-is: eligibility is not re-evaluated, the flag is
// cleared whether or not resolution succeeds. A nil route with a nil error
// means there was nothing pending.
func (e *Engine) consumePending(ctx context.Context, turn *turnState) (*domain.Route, error) {
	pending := turn.session.Pending
	if pending == nil {
		return nil, nil
	}
	turn.session.Pending = nil
	target := e.findRoute(pending.TargetRoute)
	if target == nil {
		return nil, &domain.ConfigError{
			Scope:  "transition",
			Detail: fmt.Sprintf("pending transition targets unknown route %q", pending.TargetRoute),
		}
	}
	e.emitTransition(ctx, turn.session, turn.session.CurrentRouteID, target.ID, pending.Reason)
	e.emitRouteSelected(ctx, turn.session, target, reasonPending)
	return target, nil
}

// runRouting confirms or selects the active route for this turn. Selection
// re-runs every turn; nothing is locked in permanently. A nil route with a
// nil error means no route governs the turn: either the selector chose to
// observe, or no candidate qualified and no default is configured.
func (e *Engine) runRouting(ctx context.Context, turn *turnState) (*domain.Route, error) {
	candidates, aiContext := e.eligibleRoutes(ctx, turn.tc)
	turn.aiContext = append(turn.aiContext, aiContext...)

	switch len(candidates) {
	case 0:
		if e.defaultRoute != "" {
			def := e.findRoute(e.defaultRoute)
			e.emitRouteSelected(ctx, turn.session, def, reasonDefault)
			return def, nil
		}
		e.logger.Debug("no eligible route", "session", turn.session.ID)
		return nil, nil
	case 1:
		e.emitRouteSelected(ctx, turn.session, candidates[0], reasonOnly)
		return candidates[0], nil
	}

	current := candidateByID(candidates, turn.session.CurrentRouteID)
	if len(aiContext) == 0 && current != nil {
		// Nothing for the model to weigh against continuity.
		e.emitRouteSelected(ctx, turn.session, current, reasonSticky)
		return current, nil
	}

	chosen, observe := e.disambiguate(ctx, turn, candidates, current)
	if observe {
		turn.observe = true
		e.logger.Debug("routing deferred to observation", "session", turn.session.ID)
		return nil, nil
	}
	reason := reasonModel
	if chosen == current {
		reason = reasonSticky
	}
	e.emitRouteSelected(ctx, turn.session, chosen, reason)
	return chosen, nil
}

// eligibleRoutes applies the deterministic gate to every route: when must
// evaluate true and skipIf false, or the route is out for this turn, model
// consideration included. Advisory strings from both conditions are
// collected for the disambiguation and response prompts.
func (e *Engine) eligibleRoutes(ctx context.Context, tc *domain.TemplateContext) ([]*domain.Route, []string) {
	var (
		candidates []*domain.Route
		aiContext  []string
	)
	for _, route := range e.routes {
		when := e.eval.Evaluate(ctx, condition.KindWhen, route.When, tc)
		skip := e.eval.Evaluate(ctx, condition.KindSkipIf, route.SkipIf, tc)
		if !when.Programmatic || skip.Programmatic {
			continue
		}
		candidates = append(candidates, route)
		aiContext = append(aiContext, when.AIContext...)
		aiContext = append(aiContext, skip.AIContext...)
	}
	return candidates, aiContext
}

// disambiguate asks the model to pick among the candidates, feeding it the
// route descriptions and the advisory strings the gate produced. The model
// may answer with the observation token to ask a clarifying question
// instead. On provider failure or an unparseable answer the selection falls
// back to continuity, then to declaration order.
func (e *Engine) disambiguate(ctx context.Context, turn *turnState, candidates []*domain.Route, current *domain.Route) (*domain.Route, bool) {
	req := e.newRequest(disambiguationPrompt(candidates, turn.aiContext, e.observationPrompt != ""), turn.tc.History, nil)
	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		e.logger.Warn("route disambiguation failed", "err", err)
		return fallbackCandidate(candidates, current), false
	}
	turn.addUsage(resp.Usage)

	choice, observe := parseRouteChoice(resp.Text, candidates, e.observationPrompt != "")
	if observe {
		return nil, true
	}
	if choice == nil {
		e.logger.Warn("unparseable route choice", "text", resp.Text)
		return fallbackCandidate(candidates, current), false
	}
	// Prefer continuity unless the model actively switched away.
	if current != nil && choice != current {
		e.logger.Debug("model switched route",
			"from", current.Name(), "to", choice.Name(), "session", turn.session.ID)
	}
	return choice, false
}

func fallbackCandidate(candidates []*domain.Route, current *domain.Route) *domain.Route {
	if current != nil {
		return current
	}
	return candidates[0]
}

func candidateByID(candidates []*domain.Route, id string) *domain.Route {
	for _, r := range candidates {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (e *Engine) emitRouteSelected(ctx context.Context, s *domain.Session, route *domain.Route, reason string) {
	if e.hooks.OnRouteSelected == nil {
		return
	}
	e.hooks.OnRouteSelected(ctx, &domain.RouteEvent{
		EventBase:  eventBase(domain.EventRouteSelected, s.ID),
		RouteID:    route.ID,
		RouteTitle: route.Title,
		Reason:     reason,
	})
}

func (e *Engine) emitTransition(ctx context.Context, s *domain.Session, from, to, reason string) {
	if e.hooks.OnTransition == nil {
		return
	}
	e.hooks.OnTransition(ctx, &domain.TransitionEvent{
		EventBase: eventBase(domain.EventTransition, s.ID),
		FromRoute: from,
		ToRoute:   to,
		Reason:    reason,
	})
}
