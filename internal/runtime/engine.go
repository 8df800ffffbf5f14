// Package runtime implements the dialogue engine core: the step state
// machine, the route selector and the three-phase turn pipeline
// (PREPARATION, ROUTING, RESPONSE).
package runtime

import (
	"fmt"
	"log/slog"

	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/pkg/condition"
	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
	"github.com/parleyhq/parley/pkg/schema"
	"github.com/parleyhq/parley/pkg/session"
)

// Engine drives turns for a fixed library of routes. It is safe to share
// across sessions; per-session state lives in the session values it is
// handed by the session manager.
type Engine struct {
	routes   []*domain.Route
	schemas  map[string]schema.Schema // route id -> schema
	tools    map[string]domain.ToolHandler
	client   model.Client
	sessions *session.Manager
	eval     *condition.Evaluator

	hooks  domain.LifecycleHooks
	logger *slog.Logger

	baseContext       map[string]any
	defaultRoute      string
	observationPrompt string
	fallbackMessage   string
	temperature       float64
	maxTokens         int
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) { e.hooks = hooks }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithContext sets the base external context shared by all turns. Each turn
// works on its own copy.
func WithContext(base map[string]any) EngineOption {
	return func(e *Engine) { e.baseContext = base }
}

// WithDefaultRoute names the fallback route used when no candidate
// qualifies.
func WithDefaultRoute(ref string) EngineOption {
	return func(e *Engine) { e.defaultRoute = ref }
}

// WithObservation configures the clarifying-question behavior used when
// route disambiguation cannot commit to a single route.
func WithObservation(prompt string) EngineOption {
	return func(e *Engine) { e.observationPrompt = prompt }
}

// WithFallbackMessage sets the user-facing text substituted when a tool or
// provider error leaves the turn without a message.
func WithFallbackMessage(msg string) EngineOption {
	return func(e *Engine) { e.fallbackMessage = msg }
}

// WithSampling sets the default temperature and completion cap forwarded to
// the model client.
func WithSampling(temperature float64, maxTokens int) EngineOption {
	return func(e *Engine) {
		e.temperature = temperature
		e.maxTokens = maxTokens
	}
}

// NewEngine assembles an engine over validated routes. Tools referenced by
// steps must be present in the registry; the route schemas gate every data
// write.
func NewEngine(
	routes []*domain.Route,
	schemas map[string]schema.Schema,
	tools map[string]domain.ToolHandler,
	client model.Client,
	sessions *session.Manager,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		routes:   routes,
		schemas:  schemas,
		tools:    tools,
		client:   client,
		sessions: sessions,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.eval = condition.New(e.logger)
	return e
}

// Validate checks the whole configuration. Unknown onComplete targets,
// unknown default routes and unregistered tool references are fatal here
// rather than producing an inconsistent session later.
func (e *Engine) Validate() error {
	if len(e.routes) == 0 {
		return &domain.ConfigError{Scope: "agent", Detail: "no routes configured"}
	}
	for _, route := range e.routes {
		if err := route.Validate(); err != nil {
			return err
		}
		if route.OnComplete != "" && e.findRoute(route.OnComplete) == nil {
			return &domain.ConfigError{
				Scope:  route.Name(),
				Detail: fmt.Sprintf("onComplete references unknown route %q", route.OnComplete),
			}
		}
		for i := range route.Steps {
			for _, ref := range route.Steps[i].Tools {
				if _, ok := e.tools[ref.Name]; !ok {
					return &domain.ConfigError{
						Scope:  route.Name(),
						Detail: fmt.Sprintf("step %q references unregistered tool %q", route.Steps[i].ID, ref.Name),
					}
				}
			}
		}
	}
	if e.defaultRoute != "" && e.findRoute(e.defaultRoute) == nil {
		return &domain.ConfigError{
			Scope:  "agent",
			Detail: fmt.Sprintf("default route %q is unknown", e.defaultRoute),
		}
	}
	return nil
}

// Routes exposes the route library for introspection adapters.
func (e *Engine) Routes() []*domain.Route { return e.routes }

// Schema returns the data schema of a route, if any.
func (e *Engine) Schema(routeID string) schema.Schema { return e.schemas[routeID] }

// findRoute resolves a reference by id or title.
func (e *Engine) findRoute(ref string) *domain.Route {
	for _, r := range e.routes {
		if r.Matches(ref) {
			return r
		}
	}
	return nil
}

// turnContext copies the base context so tool context updates stay scoped
// to one turn.
func (e *Engine) turnContext() map[string]any {
	out := make(map[string]any, len(e.baseContext))
	for k, v := range e.baseContext {
		out[k] = v
	}
	return out
}
