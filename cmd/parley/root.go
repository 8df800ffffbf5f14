package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley is a route-based dialogue engine for conversational agents",
	Long: `Parley runs LLM conversations through declared routes: step machines
with schema-validated data collection, programmatic gating and tool calls.
Agents are declared in YAML and served over a terminal chat, HTTP or MCP.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("agent", "a", "agent.yaml", "Agent definition file")
	rootCmd.PersistentFlags().String("provider", "anthropic", "Model provider: 'anthropic' or 'openai'")
	rootCmd.PersistentFlags().String("model", "", "Model identifier (provider default when empty)")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for persistent sessions (in-memory when empty)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}
