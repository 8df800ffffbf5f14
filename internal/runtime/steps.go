package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/parleyhq/parley/pkg/condition"
	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/schema"
)

// advanceOutcome is the result of walking the step graph.
type advanceOutcome int

const (
	// advanceHold means no successor is eligible yet; the machine stays at
	// the predecessor and the step that asked keeps re-prompting.
	advanceHold advanceOutcome = iota
	// advanceStep means a concrete step was reached.
	advanceStep
	// advanceComplete means the terminal marker was reached.
	advanceComplete
)

// advance walks from the session's current step (or the route's entry step)
// to the next eligible step. Successors are evaluated in declaration order:
// unmet requires make a successor ineligible, a true skipIf bypasses the
// step and its own successors are evaluated immediately without consuming a
// user-facing action.
func (e *Engine) advance(ctx context.Context, route *domain.Route, current string, tc *domain.TemplateContext) (*domain.Step, advanceOutcome) {
	if current == "" {
		entry := route.InitialStep()
		if entry == nil {
			return nil, advanceComplete
		}
		return e.resolve(ctx, route, entry.ID, tc, make(map[string]bool))
	}

	step, ok := route.Step(current)
	if !ok {
		// Stale pointer (e.g. topology changed across restarts): restart
		// the route from its entry step.
		return e.advance(ctx, route, "", tc)
	}
	// A prompt step is left only once everything it collects has arrived;
	// until then it keeps re-asking.
	if !step.IsTool() && !requiresMetFields(step.Collect, tc.Data) {
		return nil, advanceHold
	}
	return e.resolveSuccessors(ctx, route, step, tc, make(map[string]bool))
}

// resolve decides whether the step identified by id is the landing step,
// must be bypassed, or ends the route.
func (e *Engine) resolve(ctx context.Context, route *domain.Route, id string, tc *domain.TemplateContext, visited map[string]bool) (*domain.Step, advanceOutcome) {
	if id == domain.StepEnd {
		return nil, advanceComplete
	}
	if visited[id] {
		// Cycle through skipped steps; hold rather than loop.
		return nil, advanceHold
	}
	visited[id] = true

	step, ok := route.Step(id)
	if !ok {
		return nil, advanceHold
	}
	if !requiresMet(step, tc.Data) {
		return nil, advanceHold
	}
	skip := e.eval.Evaluate(ctx, condition.KindSkipIf, step.SkipIf, tc)
	if skip.Programmatic {
		return e.resolveSuccessors(ctx, route, step, tc, visited)
	}
	return step, advanceStep
}

// resolveSuccessors tries a step's successors in declaration order and
// returns the first eligible landing. No successor at all means the step is
// a de facto terminal.
func (e *Engine) resolveSuccessors(ctx context.Context, route *domain.Route, step *domain.Step, tc *domain.TemplateContext, visited map[string]bool) (*domain.Step, advanceOutcome) {
	if len(step.Next) == 0 {
		return nil, advanceComplete
	}
	for _, next := range step.Next {
		if landed, outcome := e.resolve(ctx, route, next, tc, visited); outcome != advanceHold {
			return landed, outcome
		}
	}
	return nil, advanceHold
}

func requiresMet(step *domain.Step, data map[string]any) bool {
	for _, field := range step.Requires {
		if v, ok := data[field]; !ok || v == nil {
			return false
		}
	}
	return true
}

// runPreparation executes eligible tool-only steps until the machine
// reaches a step requiring user input or model generation, or the terminal
// marker. Each executed tool step commits the session's step pointer; a
// tool failure leaves the pointer at the failing step for retry on the next
// turn.
func (e *Engine) runPreparation(ctx context.Context, route *domain.Route, turn *turnState) error {
	// A pointer resting on a tool step means its batch failed last turn:
	// successful tool steps always advance past themselves within one
	// preparation pass. Retry it before walking on.
	if current, ok := route.Step(turn.session.CurrentStepID); ok && current.IsTool() {
		if err := e.runToolBatch(ctx, route, current, turn); err != nil {
			return err
		}
	}

	for {
		step, outcome := e.advance(ctx, route, turn.session.CurrentStepID, turn.tc)
		if outcome != advanceStep || !step.IsTool() {
			return nil
		}

		turn.session.CurrentStepID = step.ID
		e.emitStepEnter(ctx, turn.session, route, step)

		if err := e.runToolBatch(ctx, route, step, turn); err != nil {
			return err
		}
	}
}

// runToolBatch runs a step's tools sequentially in declaration order. A
// failed tool aborts the batch, except that later tools whose declared
// field dependencies are still satisfied continue to run: one failure does
// not block independent work, while dependents of the missing output are
// skipped rather than retried.
func (e *Engine) runToolBatch(ctx context.Context, route *domain.Route, step *domain.Step, turn *turnState) error {
	var failure error
	for _, ref := range step.Tools {
		if failure != nil && !requiresMetFields(ref.Requires, turn.tc.Data) {
			e.logger.Debug("skipping dependent tool after failure",
				"tool", ref.Name, "step", step.ID)
			continue
		}
		if err := e.runTool(ctx, route, step, ref, turn); err != nil && failure == nil {
			failure = err
		}
	}
	return failure
}

func requiresMetFields(fields []string, data map[string]any) bool {
	for _, f := range fields {
		if v, ok := data[f]; !ok || v == nil {
			return false
		}
	}
	return true
}

// runTool invokes one handler, converting errors and panics into a
// recoverable ToolError and merging any updates through the schema gate.
func (e *Engine) runTool(ctx context.Context, route *domain.Route, step *domain.Step, ref domain.ToolRef, turn *turnState) error {
	handler, ok := e.tools[ref.Name]
	if !ok {
		return &domain.ToolError{
			RouteID: route.ID, StepID: step.ID, Tool: ref.Name,
			Cause: fmt.Errorf("tool not registered"),
		}
	}

	tcCall := &domain.ToolContext{
		Args:    ref.Args,
		Context: turn.tc.Context,
		Data:    turn.tc.Data,
		History: turn.tc.History,
		Session: turn.session,
	}
	e.emitToolCall(ctx, turn.session, step, ref)

	result, err := invokeTool(ctx, handler, tcCall)
	if err != nil {
		e.emitToolReturn(ctx, turn.session, step, ref, nil, true)
		e.logger.Warn("tool execution failed", "tool", ref.Name, "step", step.ID, "err", err)
		return &domain.ToolError{RouteID: route.ID, StepID: step.ID, Tool: ref.Name, Cause: err}
	}
	e.emitToolReturn(ctx, turn.session, step, ref, result.Data, false)

	if len(result.ContextUpdate) > 0 {
		for k, v := range result.ContextUpdate {
			turn.tc.Context[k] = v
		}
	}
	if len(result.DataUpdate) > 0 {
		e.applyPatch(ctx, route, turn, result.DataUpdate)
	}
	return nil
}

// invokeTool shields the pipeline from panicking handlers.
func invokeTool(ctx context.Context, handler domain.ToolHandler, tc *domain.ToolContext) (result *domain.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	result, err = handler(ctx, tc)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &domain.ToolResult{}
	}
	return result, nil
}

// applyPatch merges a patch into the collected record: schema gate first,
// then the ordered transform pipeline, then the data-update hook. Rejected
// fields are dropped individually; the rest of the patch lands.
func (e *Engine) applyPatch(ctx context.Context, route *domain.Route, turn *turnState, patch map[string]any) {
	next, rejected := schema.Apply(turn.tc.Data, patch, e.schemas[route.ID])
	for _, rej := range rejected {
		e.logger.Warn("field rejected by schema", "route", route.Name(), "err", rej)
	}
	next = e.sessions.ApplyTransforms(next)

	turn.tc.Data = next
	turn.session.Data = next

	if e.hooks.OnDataUpdate != nil {
		e.hooks.OnDataUpdate(ctx, &domain.DataEvent{
			EventBase: eventBase(domain.EventDataUpdate, turn.session.ID),
			RouteID:   route.ID,
			Patch:     patch,
			Rejected:  schema.RejectedKeys(rejected),
		})
	}
}

func eventBase(t domain.EventType, sessionID string) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now().UTC(), Type: t, SessionID: sessionID}
}

func (e *Engine) emitStepEnter(ctx context.Context, s *domain.Session, route *domain.Route, step *domain.Step) {
	if e.hooks.OnStepEnter == nil {
		return
	}
	e.hooks.OnStepEnter(ctx, &domain.StepEvent{
		EventBase: eventBase(domain.EventStepEnter, s.ID),
		RouteID:   route.ID,
		StepID:    step.ID,
	})
}

func (e *Engine) emitToolCall(ctx context.Context, s *domain.Session, step *domain.Step, ref domain.ToolRef) {
	if e.hooks.OnToolCall == nil {
		return
	}
	e.hooks.OnToolCall(ctx, &domain.ToolEvent{
		EventBase: eventBase(domain.EventToolCall, s.ID),
		StepID:    step.ID,
		ToolName:  ref.Name,
		Args:      ref.Args,
	})
}

func (e *Engine) emitToolReturn(ctx context.Context, s *domain.Session, step *domain.Step, ref domain.ToolRef, output any, isErr bool) {
	if e.hooks.OnToolReturn == nil {
		return
	}
	e.hooks.OnToolReturn(ctx, &domain.ToolEvent{
		EventBase: eventBase(domain.EventToolReturn, s.ID),
		StepID:    step.ID,
		ToolName:  ref.Name,
		Output:    output,
		IsError:   isErr,
	})
}
