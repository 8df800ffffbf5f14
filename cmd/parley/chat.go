package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/parleyhq/parley"
	"github.com/parleyhq/parley/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	Long: `Starts an interactive conversation against the declared agent.
Responses stream token by token; when stdout is a terminal the finished
message is rendered as markdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := buildAgent(cmd)
		if err != nil {
			return err
		}

		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		interactive := term.IsTerminal(int(os.Stdout.Fd()))
		if interactive {
			tui.PrintBanner(parley.Version)
			fmt.Printf("session %s (exit with 'quit')\n\n", sessionID)
		}
		render := tui.NewRenderer()

		reader := bufio.NewReader(os.Stdin)
		for {
			fmt.Print("> ")
			line, err := reader.ReadString('\n')
			if err != nil {
				fmt.Println()
				return nil
			}
			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}
			if input == "quit" || input == "exit" {
				fmt.Println("Bye!")
				return nil
			}

			var final error
			var text string
			for fragment := range agent.ProcessStream(cmd.Context(), sessionID, input) {
				if fragment.Done {
					final = fragment.Err
					text = fragment.Accumulated
					break
				}
				if !interactive {
					fmt.Print(fragment.Delta)
				}
			}
			if final != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", final)
			}
			if interactive {
				fmt.Print(render(text))
			} else {
				fmt.Println()
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Session id to resume (a fresh one when empty)")
}
