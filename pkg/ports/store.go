package ports

import (
	"context"

	"github.com/parleyhq/parley/pkg/domain"
)

// SessionStore persists sessions. Implementations receive read-mostly
// snapshots at post-turn checkpoints; no cross-turn locking protocol is
// required of them beyond serializing individual calls.
type SessionStore interface {
	// Create persists a new session.
	Create(ctx context.Context, session *domain.Session) error

	// FindByID retrieves a session. Returns domain.ErrSessionNotFound if
	// the session does not exist.
	FindByID(ctx context.Context, id string) (*domain.Session, error)

	// Update replaces the stored session snapshot.
	Update(ctx context.Context, session *domain.Session) error

	// UpdateData replaces only the collected data record.
	UpdateData(ctx context.Context, id string, data map[string]any) error

	// UpdateRouteStep replaces only the route/step pointers.
	UpdateRouteStep(ctx context.Context, id, routeID, stepID string) error

	// Delete removes the session. Deletion is an adapter concern; the
	// core never deletes sessions itself.
	Delete(ctx context.Context, id string) error

	// List returns the ids of known sessions.
	List(ctx context.Context) ([]string, error)
}

// MessageStore persists per-session message history.
type MessageStore interface {
	// Append stores one message at the end of the session's history.
	Append(ctx context.Context, sessionID string, msg domain.Message) error

	// FindBySessionID returns the ordered history for a session.
	FindBySessionID(ctx context.Context, sessionID string) ([]domain.Message, error)

	// DeleteBySessionID removes the session's history.
	DeleteBySessionID(ctx context.Context, sessionID string) error
}
