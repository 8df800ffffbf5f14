// Package redis provides Redis-backed session and history persistence plus
// a distributed lock, for running the engine across multiple replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/pkg/domain"
)

const defaultPrefix = "parley:"

type options struct {
	prefix string
	ttl    time.Duration
}

// Option configures the Redis adapters.
type Option func(*options)

// WithPrefix sets the key prefix. Defaults to "parley:".
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithTTL sets an expiration on stored sessions and histories. Zero (the
// default) keeps them until deleted.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

func buildOptions(opts []Option) options {
	o := options{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SessionStore implements ports.SessionStore on Redis. Sessions are stored
// as JSON blobs; a sorted-set index scored by expiration time backs List so
// expired entries can be swept lazily.
type SessionStore struct {
	client *backend.Client
	opts   options
}

// NewSessionStore creates a session store on an existing Redis client.
func NewSessionStore(client *backend.Client, opts ...Option) *SessionStore {
	return &SessionStore{client: client, opts: buildOptions(opts)}
}

func (s *SessionStore) key(id string) string {
	return s.opts.prefix + "session:" + id
}

func (s *SessionStore) indexKey() string {
	return s.opts.prefix + "index"
}

func (s *SessionStore) save(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	score := float64(0)
	if s.opts.ttl > 0 {
		score = float64(time.Now().Add(s.opts.ttl).Unix())
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(session.ID), raw, s.opts.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: session.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session %s: %w", session.ID, err)
	}
	return nil
}

// Create persists a new session.
func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	return s.save(ctx, session)
}

// Update replaces the stored session snapshot.
func (s *SessionStore) Update(ctx context.Context, session *domain.Session) error {
	return s.save(ctx, session)
}

// FindByID retrieves a session by id.
func (s *SessionStore) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if session.Data == nil {
		session.Data = make(map[string]any)
	}
	return &session, nil
}

// UpdateData replaces only the collected data record.
func (s *SessionStore) UpdateData(ctx context.Context, id string, data map[string]any) error {
	session, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	session.Data = data
	session.UpdatedAt = time.Now().UTC()
	return s.save(ctx, session)
}

// UpdateRouteStep replaces only the route/step pointers.
func (s *SessionStore) UpdateRouteStep(ctx context.Context, id, routeID, stepID string) error {
	session, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	session.CurrentRouteID = routeID
	session.CurrentStepID = stepID
	session.UpdatedAt = time.Now().UTC()
	return s.save(ctx, session)
}

// Delete removes the session and its index entry.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// List returns the ids of live sessions. Entries whose TTL has lapsed are
// removed from the index on the way.
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	if s.opts.ttl > 0 {
		now := strconv.FormatInt(time.Now().Unix(), 10)
		// Score 0 marks entries written without a TTL; keep those.
		if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "(0", now).Err(); err != nil {
			return nil, fmt.Errorf("failed to sweep session index: %w", err)
		}
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// MessageStore implements ports.MessageStore on Redis. Each session's
// history is a list of JSON-encoded messages.
type MessageStore struct {
	client *backend.Client
	opts   options
}

// NewMessageStore creates a message store on an existing Redis client.
func NewMessageStore(client *backend.Client, opts ...Option) *MessageStore {
	return &MessageStore{client: client, opts: buildOptions(opts)}
}

func (s *MessageStore) key(sessionID string) string {
	return s.opts.prefix + "messages:" + sessionID
}

// Append stores one message at the end of the session's history.
func (s *MessageStore) Append(ctx context.Context, sessionID string, msg domain.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	key := s.key(sessionID)
	if err := s.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("failed to append message for session %s: %w", sessionID, err)
	}
	if s.opts.ttl > 0 {
		// History expires alongside the session.
		if err := s.client.Expire(ctx, key, s.opts.ttl).Err(); err != nil {
			return fmt.Errorf("failed to refresh history ttl for session %s: %w", sessionID, err)
		}
	}
	return nil
}

// FindBySessionID returns the ordered history for a session. A missing
// history is an empty one.
func (s *MessageStore) FindBySessionID(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history for session %s: %w", sessionID, err)
	}
	msgs := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		var msg domain.Message
		if err := json.Unmarshal([]byte(row), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message for session %s: %w", sessionID, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// DeleteBySessionID removes the session's history.
func (s *MessageStore) DeleteBySessionID(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete history for session %s: %w", sessionID, err)
	}
	return nil
}
