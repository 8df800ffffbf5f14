// Package session owns session lifecycle and turn-boundary persistence.
// The manager is the only writer of session state; the runtime receives a
// handle scoped to one turn and hands the result back for checkpointing.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu     sync.Mutex
	refs   int
	unlock ports.UnlockFunc
}

// Manager orchestrates session access, ensuring safe concurrent operations
// across sessions. It uses reference counting to garbage collect unused
// locks. Turns against one session id must still be submitted sequentially
// by the caller; the manager serializes storage access, not whole turns.
type Manager struct {
	sessions ports.SessionStore
	messages ports.MessageStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker     ports.DistributedLocker
	logger     *slog.Logger
	transforms []domain.DataTransform
	lockTTL    time.Duration
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTransforms registers the ordered data-transform pipeline applied
// after every update to a session's collected record.
func WithTransforms(transforms ...domain.DataTransform) Option {
	return func(m *Manager) {
		m.transforms = append(m.transforms, transforms...)
	}
}

// WithLockTTL overrides the distributed lock TTL (default 30s).
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// NewManager creates a session manager over the given stores.
func NewManager(sessions ports.SessionStore, messages ports.MessageStore, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		messages: messages,
		locks:    make(map[string]*lockEntry),
		logger:   logging.NewNop(),
		lockTTL:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry when unused.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// LoadOrStart loads a session, creating and persisting a fresh one when the
// id is unknown. An empty id creates a session with a generated id.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var session *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		found, err := m.sessions.FindByID(ctx, sessionID)
		if err == nil {
			history, herr := m.messages.FindBySessionID(ctx, sessionID)
			if herr != nil {
				return fmt.Errorf("failed to load session history: %w", herr)
			}
			found.History = history
			session = found
			return nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		session = domain.NewSession(sessionID)
		if err := m.sessions.Create(ctx, session); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		return nil
	})
	return session, err
}

// Load retrieves an existing session with its history.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		found, err := m.sessions.FindByID(ctx, sessionID)
		if err != nil {
			return err
		}
		history, err := m.messages.FindBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}
		found.History = history
		session = found
		return nil
	})
	return session, err
}

// Checkpoint persists the post-turn snapshot and the messages the turn
// appended. Stores are only ever touched here and in LoadOrStart, never
// mid-turn.
func (m *Manager) Checkpoint(ctx context.Context, session *domain.Session, appended []domain.Message) error {
	return m.WithLock(ctx, session.ID, func(ctx context.Context) error {
		if err := m.sessions.Update(ctx, session); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
		for _, msg := range appended {
			if err := m.messages.Append(ctx, session.ID, msg); err != nil {
				return fmt.Errorf("failed to persist message: %w", err)
			}
		}
		return nil
	})
}

// Delete removes the session and its history.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if err := m.messages.DeleteBySessionID(ctx, sessionID); err != nil {
			return err
		}
		return m.sessions.Delete(ctx, sessionID)
	})
}

// List delegates to the session store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.sessions.List(ctx)
}

// ApplyTransforms runs the ordered transform pipeline over a collected
// record. A stage returning nil keeps its input.
func (m *Manager) ApplyTransforms(data map[string]any) map[string]any {
	for _, transform := range m.transforms {
		if transform == nil {
			continue
		}
		if next := transform(data); next != nil {
			data = next
		}
	}
	return data
}

// Sessions exposes the underlying session store.
func (m *Manager) Sessions() ports.SessionStore { return m.sessions }

// Messages exposes the underlying message store.
func (m *Manager) Messages() ports.MessageStore { return m.messages }
