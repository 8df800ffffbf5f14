// Package tui holds the terminal presentation helpers for the CLI.
package tui

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII banner shown when an interactive chat
// starts.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	lines := []termenv.Style{
		termenv.String(`                     _            `).Foreground(p.Color("#818cf8")),
		termenv.String(`  _ __   __ _ _ __ | | ___ _   _  `).Foreground(p.Color("#a78bfa")),
		termenv.String(` | '_ \ / _` + "`" + ` | '__|| |/ _ \ | | | `).Foreground(p.Color("#c084fc")),
		termenv.String(` | |_) | (_| | |   | |  __/ |_| | `).Foreground(p.Color("#e879f9")),
		termenv.String(` | .__/ \__,_|_|   |_|\___|\__, | `).Foreground(p.Color("#f472b6")),
		termenv.String(` |_|                       |___/  `).Foreground(p.Color("#fb7185")),
	}

	fmt.Println()
	for _, line := range lines {
		fmt.Println(line)
	}
	fmt.Println(termenv.String("  v" + version).Faint())
	fmt.Println()
}

// NewRenderer returns a markdown renderer for assistant messages. The
// fallback returns the input unchanged when the renderer cannot start.
func NewRenderer() func(string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) string { return markdown }
	}
	return func(markdown string) string {
		out, err := r.Render(markdown)
		if err != nil {
			return markdown
		}
		return out
	}
}
