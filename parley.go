package parley

import (
	"context"
	"log/slog"
	"sync"

	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/internal/runtime"
	"github.com/parleyhq/parley/pkg/adapters/memory"
	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
	"github.com/parleyhq/parley/pkg/ports"
	"github.com/parleyhq/parley/pkg/schema"
	"github.com/parleyhq/parley/pkg/session"
)

// Version is the library version, reported by the CLI and the MCP server.
const Version = "0.1.0"

// Agent is the high-level entry point for the library. It wraps the
// internal runtime and provides a simplified API for consumers: declare
// routes and tools, then process turns against sessions.
type Agent struct {
	name   string
	client model.Client
	logger *slog.Logger
	hooks  domain.LifecycleHooks

	sessionStore ports.SessionStore
	messageStore ports.MessageStore
	sessionOpts  []session.Option
	runtimeOpts  []runtime.EngineOption

	mu      sync.Mutex
	routes  []*domain.Route
	schemas map[string]schema.Schema
	tools   map[string]domain.ToolHandler

	engine   *runtime.Engine
	sessions *session.Manager
	dirty    bool
}

// Option configures the Agent.
type Option func(*Agent)

// WithName labels the agent in logs.
func WithName(name string) Option {
	return func(a *Agent) { a.name = name }
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Agent) { a.hooks = hooks }
}

// WithStores injects custom persistence adapters. The default keeps
// sessions and messages in memory.
func WithStores(sessions ports.SessionStore, messages ports.MessageStore) Option {
	return func(a *Agent) {
		a.sessionStore = sessions
		a.messageStore = messages
	}
}

// WithLocker enables distributed locking around session checkpoints, for
// hosts running multiple replicas against a shared store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(a *Agent) {
		a.sessionOpts = append(a.sessionOpts, session.WithLocker(locker))
	}
}

// WithTransforms installs the ordered transform pipeline run after every
// update to the collected record.
func WithTransforms(transforms ...domain.DataTransform) Option {
	return func(a *Agent) {
		a.sessionOpts = append(a.sessionOpts, session.WithTransforms(transforms...))
	}
}

// WithContext sets the external context shared by all turns.
func WithContext(base map[string]any) Option {
	return func(a *Agent) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithContext(base))
	}
}

// WithDefaultRoute names the route used when no candidate qualifies.
func WithDefaultRoute(ref string) Option {
	return func(a *Agent) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithDefaultRoute(ref))
	}
}

// WithObservation lets route disambiguation defer to a clarifying question
// instead of committing to a route.
func WithObservation(prompt string) Option {
	return func(a *Agent) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithObservation(prompt))
	}
}

// WithFallbackMessage substitutes a user-facing message when a tool or
// provider failure leaves the turn without one.
func WithFallbackMessage(msg string) Option {
	return func(a *Agent) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithFallbackMessage(msg))
	}
}

// WithSampling sets the temperature and completion cap forwarded to the
// model provider.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(a *Agent) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithSampling(temperature, maxTokens))
	}
}

// New creates an Agent backed by the given model client. Routes and tools
// are registered afterwards with AddRoute and RegisterTool; the
// configuration is validated on first use (or explicitly via Validate).
func New(client model.Client, opts ...Option) (*Agent, error) {
	if client == nil {
		return nil, &domain.ConfigError{Scope: "agent", Detail: "a model client is required"}
	}
	a := &Agent{
		client:  client,
		logger:  logging.NewNop(),
		schemas: make(map[string]schema.Schema),
		tools:   make(map[string]domain.ToolHandler),
		dirty:   true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.name != "" {
		a.logger = a.logger.With("agent", a.name)
	}
	if a.sessionStore == nil {
		a.sessionStore = memory.NewSessionStore()
	}
	if a.messageStore == nil {
		a.messageStore = memory.NewMessageStore()
	}
	return a, nil
}

// AddRoute registers a route and its data schema. A route without an id
// gets a deterministic one derived from its title and position, so
// persisted sessions survive restarts.
func (a *Agent) AddRoute(route *domain.Route, sc schema.Schema) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if route.ID == "" {
		route.ID = domain.DefaultRouteID(route.Title, len(a.routes))
	}
	if err := route.Validate(); err != nil {
		return err
	}
	for _, existing := range a.routes {
		if existing.ID == route.ID {
			return &domain.ConfigError{Scope: route.Name(), Detail: "duplicate route id"}
		}
	}
	a.routes = append(a.routes, route)
	if sc != nil {
		a.schemas[route.ID] = sc
	}
	a.dirty = true
	return nil
}

// RegisterTool makes a named handler available to tool steps.
func (a *Agent) RegisterTool(name string, handler domain.ToolHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools[name] = handler
	a.dirty = true
}

// Validate checks the full configuration without processing a turn.
func (a *Agent) Validate() error {
	_, err := a.ensure()
	return err
}

// Process runs one turn against the session, creating it when the id is
// empty or unknown. The result is always well formed; inspect its Err field
// instead of wrapping the call in error handling.
func (a *Agent) Process(ctx context.Context, sessionID, input string) *domain.TurnResult {
	eng, err := a.ensure()
	if err != nil {
		return &domain.TurnResult{Err: err}
	}
	return eng.ProcessTurn(ctx, sessionID, input)
}

// ProcessStream runs one turn with a streamed response. The channel yields
// one fragment per delta and closes after a terminal fragment with Done
// set. A consumed stream cannot be replayed.
func (a *Agent) ProcessStream(ctx context.Context, sessionID, input string) <-chan domain.StreamFragment {
	eng, err := a.ensure()
	if err != nil {
		out := make(chan domain.StreamFragment, 1)
		out <- domain.StreamFragment{Done: true, Err: err}
		close(out)
		return out
	}
	return eng.ProcessStream(ctx, sessionID, input)
}

// Routes returns the registered routes, for introspection surfaces.
func (a *Agent) Routes() []*domain.Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*domain.Route, len(a.routes))
	copy(out, a.routes)
	return out
}

// Schema returns the data schema registered for a route.
func (a *Agent) Schema(routeID string) schema.Schema {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.schemas[routeID]
}

// Sessions exposes the session manager for hosts that need to list, load
// or delete sessions out of band.
func (a *Agent) Sessions() (*session.Manager, error) {
	if _, err := a.ensure(); err != nil {
		return nil, err
	}
	return a.sessions, nil
}

// ensure (re)builds and validates the runtime when the configuration
// changed since the last turn.
func (a *Agent) ensure() (*runtime.Engine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.dirty {
		return a.engine, nil
	}
	if a.sessions == nil {
		opts := append([]session.Option{session.WithLogger(a.logger)}, a.sessionOpts...)
		a.sessions = session.NewManager(a.sessionStore, a.messageStore, opts...)
	}

	opts := append([]runtime.EngineOption{
		runtime.WithLifecycleHooks(a.hooks),
		runtime.WithLogger(a.logger),
	}, a.runtimeOpts...)

	eng := runtime.NewEngine(a.routes, a.schemas, a.tools, a.client, a.sessions, opts...)
	if err := eng.Validate(); err != nil {
		return nil, err
	}
	a.engine = eng
	a.dirty = false
	return eng, nil
}
