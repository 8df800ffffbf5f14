// Package memory provides in-memory session and message stores, suitable
// for tests and single-process agents that do not need persistence.
package memory

import (
	"context"
	"sync"

	"github.com/parleyhq/parley/pkg/domain"
)

// SessionStore implements ports.SessionStore in memory.
// Safe for concurrent use.
type SessionStore struct {
	data map[string]*domain.Session
	mu   sync.RWMutex
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		data: make(map[string]*domain.Session),
	}
}

// Create persists a new session.
func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Clone to ensure isolation, similar to serialization.
	s.data[session.ID] = session.Clone()
	return nil
}

// FindByID retrieves a session.
func (s *SessionStore) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	// Copy on read so the caller can't mutate store state by pointer.
	return session.Clone(), nil
}

// Update replaces the stored session snapshot.
func (s *SessionStore) Update(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.data[session.ID] = session.Clone()
	return nil
}

// UpdateData replaces only the collected data record.
func (s *SessionStore) UpdateData(ctx context.Context, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.data[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Data = make(map[string]any, len(data))
	for k, v := range data {
		session.Data[k] = v
	}
	return nil
}

// UpdateRouteStep replaces only the route/step pointers.
func (s *SessionStore) UpdateRouteStep(ctx context.Context, id, routeID, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.data[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.CurrentRouteID = routeID
	session.CurrentStepID = stepID
	return nil
}

// Delete removes the session.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the ids of known sessions.
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// MessageStore implements ports.MessageStore in memory.
// Safe for concurrent use.
type MessageStore struct {
	data map[string][]domain.Message
	mu   sync.RWMutex
}

// NewMessageStore creates a new in-memory message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		data: make(map[string][]domain.Message),
	}
}

// Append stores one message at the end of the session's history.
func (s *MessageStore) Append(ctx context.Context, sessionID string, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append(s.data[sessionID], msg)
	return nil
}

// FindBySessionID returns the ordered history for a session.
func (s *MessageStore) FindBySessionID(ctx context.Context, sessionID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[sessionID]
	out := make([]domain.Message, len(history))
	copy(out, history)
	return out, nil
}

// DeleteBySessionID removes the session's history.
func (s *MessageStore) DeleteBySessionID(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}
