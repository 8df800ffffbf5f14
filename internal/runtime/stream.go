package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
)

// ProcessStream runs one turn with an incrementally streamed RESPONSE. The
// returned channel yields one fragment per delta and always ends with a
// terminal fragment carrying Done, the accumulated text, the session
// snapshot and any error; then the channel closes. The stream is finite and
// not restartable: to regenerate, issue a fresh turn.
//
// Cancelling ctx mid-stream stops emission; the terminal fragment reports
// the cancellation and the accumulated text covers only the deltas actually
// delivered. Session data reflects the last merged extraction, nothing
// partial.
func (e *Engine) ProcessStream(ctx context.Context, sessionID, input string) <-chan domain.StreamFragment {
	out := make(chan domain.StreamFragment)
	go func() {
		defer close(out)

		sess, err := e.sessions.LoadOrStart(ctx, sessionID)
		if err != nil {
			out <- domain.StreamFragment{Done: true, Err: err}
			return
		}

		final := domain.StreamFragment{Done: true, Session: sess}
		turn := e.beginTurn(sess, input)
		e.executeStream(ctx, turn, out, &final)
		final.Usage = turn.usage

		// The checkpoint runs even on a cancelled stream: it persists
		// exactly what was committed, nothing partial.
		if err := e.sessions.Checkpoint(context.WithoutCancel(ctx), sess, turn.appended); err != nil {
			e.logger.Error("checkpoint failed", "session", sess.ID, "err", err)
			if final.Err == nil {
				final.Err = err
			}
		}
		out <- final
	}()
	return out
}

func (e *Engine) executeStream(ctx context.Context, turn *turnState, out chan<- domain.StreamFragment, final *domain.StreamFragment) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("turn panicked", "session", turn.session.ID, "panic", r)
			final.Err = fmt.Errorf("turn panicked: %v", r)
		}
	}()

	route, err := e.runUpToResponse(ctx, turn)
	if err != nil {
		final.Err = err
		return
	}
	e.streamResponse(ctx, route, turn, out, final)
}

// streamResponse is the incremental counterpart of runResponse. Extraction
// arrives as a late chunk; it is merged only if it actually shows up before
// the stream ends or is cancelled.
func (e *Engine) streamResponse(ctx context.Context, route *domain.Route, turn *turnState, out chan<- domain.StreamFragment, final *domain.StreamFragment) {
	var (
		asking  *domain.Step
		outcome advanceOutcome
		system  string
		extract map[string]any
	)
	if route != nil {
		asking, outcome = e.askingStep(ctx, route, turn)
		system = systemPrompt(route, asking, turn.tc, turn.aiContext)
		extract = e.extractionSchema(route, asking)
	} else {
		system = systemPrompt(nil, nil, turn.tc, turn.aiContext)
		if turn.observe && e.observationPrompt != "" {
			if system != "" {
				system = e.observationPrompt + "\n\n" + system
			} else {
				system = e.observationPrompt
			}
		}
	}

	streamer, err := e.client.Stream(ctx, e.newRequest(system, turn.tc.History, extract))
	if err != nil {
		if errors.Is(err, model.ErrStreamingUnsupported) {
			final.Err = err
			return
		}
		final.Err = &domain.ProviderError{Op: "stream", Cause: err}
		return
	}
	defer streamer.Close()

	// acc covers delivered deltas only: a delta that was never handed to
	// the consumer does not count towards the accumulated text.
	var (
		acc       string
		extracted map[string]any
	)
	for {
		chunk, err := streamer.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				final.Err = ctx.Err()
			} else {
				final.Err = &domain.ProviderError{Op: "stream", Cause: err}
			}
			final.Accumulated = acc
			e.finishStream(ctx, route, asking, outcome, turn, extracted, acc, final)
			return
		}

		if chunk.Usage != nil {
			turn.addUsage(*chunk.Usage)
		}
		if len(chunk.Extracted) > 0 {
			extracted = chunk.Extracted
		}
		if chunk.Delta == "" {
			continue
		}
		if ctx.Err() != nil {
			final.Err = ctx.Err()
			final.Accumulated = acc
			e.finishStream(ctx, route, asking, outcome, turn, extracted, acc, final)
			return
		}
		select {
		case out <- domain.StreamFragment{Delta: chunk.Delta, Accumulated: acc + chunk.Delta}:
			acc += chunk.Delta
		case <-ctx.Done():
			final.Err = ctx.Err()
			final.Accumulated = acc
			e.finishStream(ctx, route, asking, outcome, turn, extracted, acc, final)
			return
		}
	}

	final.Accumulated = acc
	e.finishStream(ctx, route, asking, outcome, turn, extracted, acc, final)
}

// finishStream commits whatever the stream produced before it ended, was
// cancelled or failed: the asking-step pointer, any extraction that fully
// arrived, the settled pointer and the assistant message.
func (e *Engine) finishStream(ctx context.Context, route *domain.Route, asking *domain.Step, outcome advanceOutcome, turn *turnState, extracted map[string]any, text string, final *domain.StreamFragment) {
	if route != nil {
		if len(extracted) > 0 {
			// The extraction chunk arrived whole, so merging it is safe
			// even on a cancelled stream.
			e.applyPatch(ctx, route, turn, extracted)
		}
		if final.Err == nil {
			e.commitAsking(ctx, route, asking, turn)
			var result domain.TurnResult
			e.settleStep(ctx, route, asking, outcome, turn, &result)
			final.RouteComplete = result.RouteComplete
		}
	}
	if text != "" {
		turn.addMessage(domain.RoleAssistant, text)
	}
}
