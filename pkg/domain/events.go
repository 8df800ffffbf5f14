package domain

import (
	"context"
	"time"
)

// EventType categorizes lifecycle events.
type EventType string

const (
	EventRouteSelected EventType = "route_selected"
	EventStepEnter     EventType = "step_enter"
	EventToolCall      EventType = "tool_call"
	EventToolReturn    EventType = "tool_return"
	EventDataUpdate    EventType = "data_update"
	EventTransition    EventType = "transition"
)

// EventBase carries fields common to all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// RouteEvent is emitted when the selector commits to a route for the turn.
type RouteEvent struct {
	EventBase
	RouteID    string `json:"route_id"`
	RouteTitle string `json:"route_title"`
	Reason     string `json:"reason,omitempty"` // "pending", "sticky", "model", "default"
}

// StepEvent is emitted when the machine lands on a step.
type StepEvent struct {
	EventBase
	RouteID string `json:"route_id"`
	StepID  string `json:"step_id"`
}

// ToolEvent is emitted around tool executions during PREPARATION.
type ToolEvent struct {
	EventBase
	StepID   string         `json:"step_id"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args,omitempty"`
	Output   any            `json:"output,omitempty"`
	IsError  bool           `json:"is_error,omitempty"`
}

// DataEvent is emitted after a patch is applied to the collected record.
type DataEvent struct {
	EventBase
	RouteID  string         `json:"route_id"`
	Patch    map[string]any `json:"patch"`
	Rejected []string       `json:"rejected,omitempty"`
}

// TransitionEvent is emitted when a pending cross-route transition is
// recorded or consumed.
type TransitionEvent struct {
	EventBase
	FromRoute string `json:"from_route"`
	ToRoute   string `json:"to_route"`
	Reason    string `json:"reason,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability. All fields are
// optional; nil hooks are skipped.
type LifecycleHooks struct {
	OnRouteSelected func(context.Context, *RouteEvent)
	OnStepEnter     func(context.Context, *StepEvent)
	OnToolCall      func(context.Context, *ToolEvent)
	OnToolReturn    func(context.Context, *ToolEvent)
	OnDataUpdate    func(context.Context, *DataEvent)
	OnTransition    func(context.Context, *TransitionEvent)
}

// DataTransform is one stage of the ordered transform pipeline applied
// after every update to the collected record. Each stage takes and returns
// the record; returning nil keeps the input.
type DataTransform func(data map[string]any) map[string]any
