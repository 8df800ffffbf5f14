package main

import (
	"fmt"
	"log/slog"
	"os"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley"
	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/pkg/adapters/declarative"
	redisadapter "github.com/parleyhq/parley/pkg/adapters/redis"
	"github.com/parleyhq/parley/pkg/model"
	"github.com/parleyhq/parley/pkg/model/anthropic"
	"github.com/parleyhq/parley/pkg/model/openai"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5"
	defaultOpenAIModel    = "gpt-4o"
)

// buildAgent assembles an agent from the declarative file and the
// provider/persistence flags.
func buildAgent(cmd *cobra.Command) (*parley.Agent, error) {
	agentPath, _ := cmd.Flags().GetString("agent")
	cfg, err := declarative.LoadFile(agentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent file %s: %w", agentPath, err)
	}

	client, err := buildClient(cmd)
	if err != nil {
		return nil, err
	}

	opts := []parley.Option{
		parley.WithName(cfg.Name),
		parley.WithLogger(buildLogger(cmd)),
	}
	if cfg.DefaultRoute != "" {
		opts = append(opts, parley.WithDefaultRoute(cfg.DefaultRoute))
	}
	if cfg.Observation != "" {
		opts = append(opts, parley.WithObservation(cfg.Observation))
	}
	if cfg.FallbackMessage != "" {
		opts = append(opts, parley.WithFallbackMessage(cfg.FallbackMessage))
	}

	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		rc := backend.NewClient(&backend.Options{Addr: addr})
		opts = append(opts,
			parley.WithStores(
				redisadapter.NewSessionStore(rc),
				redisadapter.NewMessageStore(rc),
			),
			parley.WithLocker(redisadapter.NewLocker(rc, "")),
		)
	}

	agent, err := parley.New(client, opts...)
	if err != nil {
		return nil, err
	}

	routes, schemas, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	for _, route := range routes {
		if err := agent.AddRoute(route, schemas[route.ID]); err != nil {
			return nil, err
		}
	}
	if err := agent.Validate(); err != nil {
		return nil, err
	}
	return agent, nil
}

func buildClient(cmd *cobra.Command) (model.Client, error) {
	provider, _ := cmd.Flags().GetString("provider")
	modelID, _ := cmd.Flags().GetString("model")

	switch provider {
	case "anthropic":
		if modelID == "" {
			modelID = defaultAnthropicModel
		}
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		return anthropic.NewFromAPIKey(apiKey, modelID)
	case "openai":
		if modelID == "" {
			modelID = defaultOpenAIModel
		}
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return openai.NewFromAPIKey(apiKey, modelID)
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: anthropic, openai)", provider)
	}
}

func buildLogger(cmd *cobra.Command) *slog.Logger {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return logging.New(slog.LevelDebug)
	}
	return logging.New(slog.LevelWarn)
}
