package domain

import "time"

// Role identifies the author of a message in the conversation history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// SessionStatus describes the lifecycle stage of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Message is one entry in a session's ordered history.
type Message struct {
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// PendingTransition records a queued route hand-off. It is written when a
// route reaches its terminal step with an onComplete target and consumed at
// the start of the next turn, never mid-turn.
type PendingTransition struct {
	TargetRoute string `json:"target_route"`
	Reason      string `json:"reason,omitempty"`
}

// Session is the unit of conversational state. It is owned by the session
// manager; the runtime receives a handle scoped to one turn.
type Session struct {
	ID string `json:"id"`

	// CurrentRouteID and CurrentStepID point into the route graph.
	// CurrentStepID, when set, always belongs to CurrentRouteID.
	CurrentRouteID string `json:"current_route_id,omitempty"`
	CurrentStepID  string `json:"current_step_id,omitempty"`

	// Data is the partially collected record for the active route,
	// validated field by field against the route schema on every write.
	Data map[string]any `json:"data"`

	// Pending holds a queued cross-route transition, if any.
	Pending *PendingTransition `json:"pending,omitempty"`

	Status  SessionStatus `json:"status"`
	History []Message     `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an active session with empty data and history.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Data:      make(map[string]any),
		Status:    SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy safe for mutation by the current turn. Data and
// history are copied; values stored inside Data are shared (patches replace
// nested values wholesale rather than mutating them).
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	next := *s
	next.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		next.Data[k] = v
	}
	next.History = make([]Message, len(s.History))
	copy(next.History, s.History)
	if s.Pending != nil {
		p := *s.Pending
		next.Pending = &p
	}
	return &next
}

// AddMessage appends to the history and bumps UpdatedAt. Appending the same
// role/content as the last entry is a no-op, which makes retried turns safe.
func (s *Session) AddMessage(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if n := len(s.History); n > 0 {
		last := s.History[n-1]
		if last.Role == msg.Role && last.Content == msg.Content {
			return
		}
	}
	s.History = append(s.History, msg)
	s.UpdatedAt = msg.CreatedAt
}
