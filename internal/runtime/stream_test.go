package runtime_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model/modeltest"
	"github.com/parleyhq/parley/pkg/schema"
)

func TestProcessStream_DeliversDeltasAndTerminalFragment(t *testing.T) {
	client := modeltest.New(modeltest.Turn{
		Text:      "How deep should I go?",
		Deltas:    []string{"How deep ", "should I go?"},
		Extracted: map[string]any{"depth": "deep"},
		Usage:     domain.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	})
	f := newFixture(t, client,
		[]*domain.Route{researchRoute()},
		map[string]schema.Schema{"research": researchSchema()},
		nil,
	)

	sess := domain.NewSession("s1")
	sess.CurrentRouteID = "research"
	sess.Data["topic"] = "AI"
	f.seed(t, sess)

	var fragments []domain.StreamFragment
	for frag := range f.engine.ProcessStream(context.Background(), "s1", "Research AI, deep.") {
		fragments = append(fragments, frag)
	}

	if len(fragments) != 3 {
		t.Fatalf("expected 2 deltas + terminal, got %d fragments", len(fragments))
	}
	if fragments[0].Delta != "How deep " || fragments[1].Delta != "should I go?" {
		t.Errorf("unexpected deltas: %q, %q", fragments[0].Delta, fragments[1].Delta)
	}
	if fragments[1].Accumulated != "How deep should I go?" {
		t.Errorf("accumulated mismatch: %q", fragments[1].Accumulated)
	}

	final := fragments[2]
	if !final.Done {
		t.Fatal("last fragment must be terminal")
	}
	if final.Err != nil {
		t.Fatalf("unexpected stream error: %v", final.Err)
	}
	if final.Accumulated != "How deep should I go?" {
		t.Errorf("terminal accumulated mismatch: %q", final.Accumulated)
	}
	if final.Usage.TotalTokens != 15 {
		t.Errorf("usage not propagated: %+v", final.Usage)
	}
	if final.Session.Data["depth"] != "deep" {
		t.Errorf("extraction chunk should be merged, got %v", final.Session.Data["depth"])
	}
	// topic known + depth extracted: route completes on the same turn.
	if !final.RouteComplete {
		t.Error("expected route completion on the terminal fragment")
	}
}

func TestProcessStream_CancelStopsEmission(t *testing.T) {
	client := modeltest.New(modeltest.Turn{
		Deltas:    []string{"a", "b", "c", "d", "e"},
		Extracted: map[string]any{"note": "should never be merged"},
	})
	route := &domain.Route{
		ID: "chat",
		Steps: []domain.Step{
			{ID: "talk", Prompt: "Talk.", Collect: []string{"note"}, Next: []string{domain.StepEnd}},
		},
	}
	f := newFixture(t, client,
		[]*domain.Route{route},
		map[string]schema.Schema{"chat": {"note": {Type: schema.String()}}},
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	stream := f.engine.ProcessStream(ctx, "s1", "hello")

	var delivered []domain.StreamFragment
	for frag := range stream {
		delivered = append(delivered, frag)
		if !frag.Done && len(delivered) == 2 {
			cancel()
		}
	}
	defer cancel()

	final := delivered[len(delivered)-1]
	if !final.Done {
		t.Fatal("stream must end with a terminal fragment")
	}
	if !errors.Is(final.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", final.Err)
	}
	// At most one in-flight delta can slip out after cancellation.
	if !strings.HasPrefix(final.Accumulated, "ab") || len(final.Accumulated) > 3 {
		t.Errorf("accumulated should cover only delivered deltas, got %q", final.Accumulated)
	}
	if final.Accumulated == "abcde" {
		t.Error("stream kept emitting after cancellation")
	}
	// The extraction chunk never arrived, so nothing was merged.
	if _, ok := final.Session.Data["note"]; ok {
		t.Error("partial extraction must not be committed")
	}
	if final.RouteComplete {
		t.Error("a cancelled turn must not complete the route")
	}
}

func TestProcessStream_ProviderErrorEndsWithTerminal(t *testing.T) {
	client := modeltest.New(modeltest.Turn{Err: errOverloaded})
	f := newFixture(t, client,
		[]*domain.Route{researchRoute()},
		map[string]schema.Schema{"research": researchSchema()},
		nil,
	)

	var fragments []domain.StreamFragment
	for frag := range f.engine.ProcessStream(context.Background(), "s1", "hi") {
		fragments = append(fragments, frag)
	}

	if len(fragments) != 1 {
		t.Fatalf("expected only the terminal fragment, got %d", len(fragments))
	}
	final := fragments[0]
	if !final.Done {
		t.Fatal("terminal fragment must have Done set")
	}
	var provErr *domain.ProviderError
	if !errors.As(final.Err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", final.Err)
	}
	if final.Accumulated != "" {
		t.Errorf("no deltas were delivered, accumulated should be empty: %q", final.Accumulated)
	}
}

var errOverloaded = errors.New("overloaded")
