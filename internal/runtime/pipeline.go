package runtime

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/schema"
)

// turnState is the scratchpad for one turn. It owns the session exclusively
// while the turn executes; nothing here survives the turn except through
// the checkpoint.
type turnState struct {
	session *domain.Session
	tc      *domain.TemplateContext

	// appended collects messages added this turn for the checkpoint.
	appended []domain.Message

	// aiContext accumulates advisory strings produced by condition
	// evaluation; they are forwarded verbatim to the model.
	aiContext []string

	usage   domain.Usage
	observe bool
}

func (t *turnState) addUsage(u domain.Usage) {
	t.usage.InputTokens += u.InputTokens
	t.usage.OutputTokens += u.OutputTokens
	t.usage.TotalTokens += u.TotalTokens
}

func (t *turnState) addMessage(role domain.Role, content string) {
	before := len(t.session.History)
	t.session.AddMessage(domain.Message{Role: role, Content: content})
	if len(t.session.History) > before {
		t.appended = append(t.appended, t.session.History[len(t.session.History)-1])
	}
	t.tc.History = t.session.History
}

// ProcessTurn runs one complete turn: PREPARATION, then ROUTING, then
// RESPONSE as a single completion. It never panics and never returns a bare
// error; failures land in the result's Err field next to whatever state was
// committed before the failure.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, input string) *domain.TurnResult {
	sess, err := e.sessions.LoadOrStart(ctx, sessionID)
	if err != nil {
		return &domain.TurnResult{Err: err}
	}

	// Turns against one session are submitted sequentially by the caller;
	// the engine does not serialize them itself.
	result := &domain.TurnResult{Session: sess}
	turn := e.beginTurn(sess, input)
	e.executeTurn(ctx, turn, result)
	result.Usage = turn.usage

	// The checkpoint outlives the request context: whatever the turn
	// committed is persisted even when the caller cancelled mid-flight.
	if err := e.sessions.Checkpoint(context.WithoutCancel(ctx), sess, turn.appended); err != nil {
		e.logger.Error("checkpoint failed", "session", sess.ID, "err", err)
		if result.Err == nil {
			result.Err = err
		}
	}
	if result.Err != nil && result.Message == "" {
		result.Message = e.fallbackMessage
	}
	return result
}

func (e *Engine) beginTurn(sess *domain.Session, input string) *turnState {
	turn := &turnState{
		session: sess,
		tc: &domain.TemplateContext{
			Context: e.turnContext(),
			Data:    sess.Data,
			Session: sess,
			History: sess.History,
		},
	}
	if input != "" {
		turn.addMessage(domain.RoleUser, input)
	}
	return turn
}

// executeTurn drives the three phases and fills the result in place. A tool
// or routing failure aborts the turn after PREPARATION's commits; a panic
// anywhere is converted to an error on the result.
func (e *Engine) executeTurn(ctx context.Context, turn *turnState, result *domain.TurnResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("turn panicked", "session", turn.session.ID, "panic", r)
			result.Err = fmt.Errorf("turn panicked: %v", r)
		}
	}()

	route, err := e.runUpToResponse(ctx, turn)
	if err != nil {
		result.Err = err
		return
	}
	if err := e.runResponse(ctx, route, turn, result); err != nil {
		result.Err = err
	}
}

// runUpToResponse executes everything that precedes the model response:
// pending-transition resolution, PREPARATION on the active route, ROUTING,
// and PREPARATION again when routing activated a different route.
func (e *Engine) runUpToResponse(ctx context.Context, turn *turnState) (*domain.Route, error) {
	// A hand-off recorded by a completed route resolves before anything
	// else this turn.
	route, err := e.consumePending(ctx, turn)
	if err != nil {
		return nil, err
	}
	if route != nil {
		e.activateRoute(turn, route)
	}

	if active := e.findRoute(turn.session.CurrentRouteID); active != nil {
		if err := e.runPreparation(ctx, active, turn); err != nil {
			return nil, err
		}
	}

	if route == nil {
		route, err = e.runRouting(ctx, turn)
		if err != nil {
			return nil, err
		}
		if route != nil && route.ID != turn.session.CurrentRouteID {
			e.activateRoute(turn, route)
			if err := e.runPreparation(ctx, route, turn); err != nil {
				return nil, err
			}
		}
	}
	return route, nil
}

// activateRoute makes a different route current: the step pointer resets,
// the collected record is rebuilt from the new schema's defaults, and
// values for fields the new schema also declares carry over when they still
// validate. Everything else is dropped.
func (e *Engine) activateRoute(turn *turnState, route *domain.Route) {
	if turn.session.CurrentRouteID == route.ID {
		return
	}
	sc := e.schemas[route.ID]
	data := schema.ApplyDefaults(nil, sc)
	for name, field := range sc {
		v, ok := turn.session.Data[name]
		if !ok || v == nil {
			continue
		}
		if field.Type == nil || field.Type.Validate(v) == nil {
			data[name] = v
		}
	}
	data = e.sessions.ApplyTransforms(data)

	turn.session.CurrentRouteID = route.ID
	turn.session.CurrentStepID = ""
	turn.session.Data = data
	turn.session.Status = domain.SessionActive
	turn.tc.Data = data
}
