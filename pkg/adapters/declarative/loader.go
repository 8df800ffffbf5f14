// Package declarative loads agent definitions from YAML files: routes,
// steps, schemas, guidelines and terms, everything except predicate
// functions and tool handlers, which stay in code.
package declarative

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/schema"
)

// Config is the root of a declarative agent file.
type Config struct {
	Name            string        `mapstructure:"name"`
	DefaultRoute    string        `mapstructure:"defaultRoute"`
	Observation     string        `mapstructure:"observation"`
	FallbackMessage string        `mapstructure:"fallbackMessage"`
	Routes          []RouteConfig `mapstructure:"routes"`
}

// RouteConfig declares one route. When and SkipIf hold advisory strings
// only; programmatic predicates are attached in code after loading.
type RouteConfig struct {
	ID          string                 `mapstructure:"id"`
	Title       string                 `mapstructure:"title"`
	Description string                 `mapstructure:"description"`
	When        []string               `mapstructure:"when"`
	SkipIf      []string               `mapstructure:"skipIf"`
	Required    []string               `mapstructure:"required"`
	OnComplete  string                 `mapstructure:"onComplete"`
	Guidelines  []string               `mapstructure:"guidelines"`
	Terms       map[string]string      `mapstructure:"terms"`
	Schema      map[string]FieldConfig `mapstructure:"schema"`
	Steps       []StepConfig           `mapstructure:"steps"`
}

// StepConfig declares one step.
type StepConfig struct {
	ID       string       `mapstructure:"id"`
	Prompt   string       `mapstructure:"prompt"`
	Collect  []string     `mapstructure:"collect"`
	Requires []string     `mapstructure:"requires"`
	Tools    []ToolConfig `mapstructure:"tools"`
	Next     []string     `mapstructure:"next"`
}

// ToolConfig references a registered tool.
type ToolConfig struct {
	Name     string         `mapstructure:"name"`
	Args     map[string]any `mapstructure:"args"`
	Requires []string       `mapstructure:"requires"`
}

// FieldConfig declares one schema field.
type FieldConfig struct {
	Type     string   `mapstructure:"type"`
	Required bool     `mapstructure:"required"`
	Default  any      `mapstructure:"default"`
	Values   []string `mapstructure:"values"`
	Min      *float64 `mapstructure:"min"`
	Max      *float64 `mapstructure:"max"`
}

// Load parses a declarative agent file.
func Load(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent file: %w", err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse agent file: %w", err)
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(tree); err != nil {
		return nil, fmt.Errorf("invalid agent file: %w", err)
	}
	return &cfg, nil
}

// LoadFile parses the declarative agent file at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Build converts the configuration into domain routes and their schemas,
// keyed by route id. Routes without an explicit id get a deterministic one
// derived from their title and position.
func (c *Config) Build() ([]*domain.Route, map[string]schema.Schema, error) {
	routes := make([]*domain.Route, 0, len(c.Routes))
	schemas := make(map[string]schema.Schema)
	for i, rc := range c.Routes {
		route, err := rc.toRoute(i)
		if err != nil {
			return nil, nil, err
		}
		routes = append(routes, route)
		if len(rc.Schema) > 0 {
			sc, err := rc.toSchema(route.Name())
			if err != nil {
				return nil, nil, err
			}
			schemas[route.ID] = sc
		}
	}
	return routes, schemas, nil
}

func (rc *RouteConfig) toRoute(index int) (*domain.Route, error) {
	route := &domain.Route{
		ID:          rc.ID,
		Title:       rc.Title,
		Description: rc.Description,
		When:        literals(rc.When),
		SkipIf:      literals(rc.SkipIf),
		Required:    rc.Required,
		OnComplete:  rc.OnComplete,
		Guidelines:  rc.Guidelines,
		Terms:       rc.Terms,
	}
	if route.ID == "" {
		route.ID = domain.DefaultRouteID(route.Title, index)
	}
	for _, sc := range rc.Steps {
		step := domain.Step{
			ID:       sc.ID,
			Prompt:   sc.Prompt,
			Collect:  sc.Collect,
			Requires: sc.Requires,
			Next:     successors(sc.Next),
		}
		for _, tc := range sc.Tools {
			step.Tools = append(step.Tools, domain.ToolRef{
				Name:     tc.Name,
				Args:     tc.Args,
				Requires: tc.Requires,
			})
		}
		route.Steps = append(route.Steps, step)
	}
	if err := route.Validate(); err != nil {
		return nil, err
	}
	return route, nil
}

func (rc *RouteConfig) toSchema(routeName string) (schema.Schema, error) {
	sc := make(schema.Schema, len(rc.Schema))
	for name, fc := range rc.Schema {
		field, err := fc.toField(routeName, name)
		if err != nil {
			return nil, err
		}
		sc[name] = field
	}
	return sc, nil
}

func (fc *FieldConfig) toField(routeName, fieldName string) (schema.Field, error) {
	var t schema.Type
	switch fc.Type {
	case "string", "":
		t = schema.String()
	case "int":
		t = schema.Int()
	case "number":
		if fc.Min != nil || fc.Max != nil {
			t = &schema.NumberType{Min: fc.Min, Max: fc.Max}
		} else {
			t = schema.Number()
		}
	case "bool":
		t = schema.Bool()
	case "enum":
		if len(fc.Values) == 0 {
			return schema.Field{}, &domain.ConfigError{
				Scope:  routeName,
				Detail: fmt.Sprintf("enum field %q declares no values", fieldName),
			}
		}
		t = schema.Enum(fc.Values...)
	case "object":
		t = schema.Object()
	case "array":
		t = schema.Slice(schema.String())
	default:
		return schema.Field{}, &domain.ConfigError{
			Scope:  routeName,
			Detail: fmt.Sprintf("field %q has unknown type %q", fieldName, fc.Type),
		}
	}
	return schema.Field{Type: t, Required: fc.Required, Default: fc.Default}, nil
}

// endMarker is how declarative files spell the terminal successor.
const endMarker = "END"

func successors(next []string) []string {
	if len(next) == 0 {
		return nil
	}
	out := make([]string, len(next))
	for i, id := range next {
		if id == endMarker {
			id = domain.StepEnd
		}
		out[i] = id
	}
	return out
}

func literals(phrases []string) domain.Condition {
	if len(phrases) == 0 {
		return nil
	}
	group := make(domain.Group, 0, len(phrases))
	for _, s := range phrases {
		group = append(group, domain.Lit(s))
	}
	return group
}
