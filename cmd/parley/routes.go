package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/pkg/adapters/declarative"
	"github.com/parleyhq/parley/pkg/domain"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the routes declared in the agent file",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentPath, _ := cmd.Flags().GetString("agent")
		cfg, err := declarative.LoadFile(agentPath)
		if err != nil {
			return fmt.Errorf("failed to load agent file %s: %w", agentPath, err)
		}
		routes, schemas, err := cfg.Build()
		if err != nil {
			return err
		}

		for _, route := range routes {
			fmt.Printf("%s  (%s)\n", route.Name(), route.ID)
			if route.Description != "" {
				fmt.Printf("    %s\n", route.Description)
			}
			for _, step := range route.Steps {
				kind := "prompt"
				if step.IsTool() {
					kind = "tool"
				}
				fmt.Printf("    - %s [%s]", step.ID, kind)
				if len(step.Collect) > 0 {
					fmt.Printf(" collects %s", strings.Join(step.Collect, ", "))
				}
				fmt.Println()
			}
			if sc, ok := schemas[route.ID]; ok {
				fields := make([]string, 0, len(sc))
				for name := range sc {
					fields = append(fields, name)
				}
				fmt.Printf("    schema: %s\n", strings.Join(fields, ", "))
			}
			fmt.Println()
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the agent file without talking to a provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentPath, _ := cmd.Flags().GetString("agent")
		cfg, err := declarative.LoadFile(agentPath)
		if err != nil {
			return fmt.Errorf("failed to load agent file %s: %w", agentPath, err)
		}
		routes, _, err := cfg.Build()
		if err != nil {
			return err
		}
		if cfg.DefaultRoute != "" && !hasRoute(routes, cfg.DefaultRoute) {
			return fmt.Errorf("default route %q is not declared", cfg.DefaultRoute)
		}
		fmt.Printf("%s: %d routes OK\n", agentPath, len(routes))
		return nil
	},
}

// hasRoute resolves a reference the way the engine does: by id or title.
func hasRoute(routes []*domain.Route, ref string) bool {
	for _, route := range routes {
		if route.ID == ref || route.Title == ref {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(validateCmd)
}
