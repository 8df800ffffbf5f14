package runtime

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
)

// newRequest assembles a provider request with the engine's sampling
// defaults. The provider adapter supplies the concrete model name.
func (e *Engine) newRequest(system string, history []domain.Message, extract map[string]any) *model.Request {
	return &model.Request{
		System:        system,
		History:       history,
		ExtractSchema: extract,
		Temperature:   e.temperature,
		MaxTokens:     e.maxTokens,
	}
}

// systemPrompt renders the instruction block for the RESPONSE phase: the
// landing step's prompt, the route's guidelines and terms, any advisory
// strings gathered during evaluation, and the collect constraint.
func systemPrompt(route *domain.Route, step *domain.Step, tc *domain.TemplateContext, aiContext []string) string {
	var b strings.Builder

	if step != nil {
		switch {
		case step.PromptFunc != nil:
			b.WriteString(step.PromptFunc(tc))
		case step.Prompt != "":
			b.WriteString(step.Prompt)
		}
	}

	if route != nil {
		if len(route.Guidelines) > 0 {
			b.WriteString("\n\nGuidelines:\n")
			for _, g := range route.Guidelines {
				fmt.Fprintf(&b, "- %s\n", g)
			}
		}
		if len(route.Terms) > 0 {
			b.WriteString("\nTerminology:\n")
			keys := make([]string, 0, len(route.Terms))
			for k := range route.Terms {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- %s: %s\n", k, route.Terms[k])
			}
		}
	}

	if len(aiContext) > 0 {
		b.WriteString("\nAdditional context:\n")
		for _, s := range aiContext {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	if step != nil && len(step.Collect) > 0 {
		fmt.Fprintf(&b, "\nIf the user has provided them, record values for: %s. Record nothing else.\n",
			strings.Join(step.Collect, ", "))
	}

	return strings.TrimSpace(b.String())
}

// disambiguationPrompt renders the route-choice instruction sent when more
// than one route qualifies. The model must answer with a route id verbatim,
// or with the observation token when allowed.
func disambiguationPrompt(candidates []*domain.Route, aiContext []string, allowObserve bool) string {
	var b strings.Builder
	b.WriteString("Several conversational routes apply to the user's message. Choose the single best one.\n\nRoutes:\n")
	for _, r := range candidates {
		fmt.Fprintf(&b, "- id: %s, title: %s", r.ID, r.Name())
		if r.Description != "" {
			fmt.Fprintf(&b, ": %s", r.Description)
		}
		b.WriteString("\n")
	}
	if len(aiContext) > 0 {
		b.WriteString("\nContext to weigh:\n")
		for _, s := range aiContext {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("\nAnswer with exactly one route id and nothing else.")
	if allowObserve {
		fmt.Fprintf(&b, " If none clearly fits and a clarifying question would help, answer %s instead.", observeToken)
	}
	return b.String()
}

// parseRouteChoice matches the model's answer against the candidates by id
// or title, scanning line by line so a chatty answer still resolves.
func parseRouteChoice(text string, candidates []*domain.Route, allowObserve bool) (*domain.Route, bool) {
	for _, line := range strings.Split(text, "\n") {
		token := strings.Trim(strings.TrimSpace(line), "\"'`.")
		if token == "" {
			continue
		}
		if allowObserve && strings.EqualFold(token, observeToken) {
			return nil, true
		}
		for _, r := range candidates {
			if r.Matches(token) {
				return r, false
			}
		}
	}
	return nil, false
}
