// Package model provides the provider-neutral contract between the dialogue
// engine and LLM backends. Implementations wrap provider SDKs (Anthropic,
// OpenAI) and translate Request/Response to provider-specific formats; the
// engine never depends on a vendor wire format, only on these shapes.
package model

import (
	"context"
	"errors"

	"github.com/parleyhq/parley/pkg/domain"
)

// ErrStreamingUnsupported is returned by Stream when a provider cannot
// deliver incremental output. Callers should fall back to Complete.
var ErrStreamingUnsupported = errors.New("streaming not supported by this provider")

type (
	// Client is the contract the turn pipeline uses to invoke models.
	// Implementations should be thread-safe and reusable across turns.
	Client interface {
		// Complete sends a single completion request and returns the
		// whole response.
		Complete(ctx context.Context, req *Request) (*Response, error)

		// Stream sends a completion request and returns a Streamer that
		// yields incremental chunks. The returned Streamer must be closed
		// by the caller.
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Successive calls to
	// Recv return Chunk values until io.EOF. A stream is finite and not
	// restartable: once consumed it cannot be replayed.
	Streamer interface {
		// Recv returns the next chunk from the stream.
		Recv() (Chunk, error)
		// Close releases underlying resources.
		Close() error
	}

	// Request captures the normalized parameters for one model call.
	Request struct {
		// Model is the provider-specific identifier; empty uses the
		// client's configured default.
		Model string

		// System carries the assembled instructions: active step prompt,
		// route guidelines and terms, and advisory condition strings.
		System string

		// History is the ordered conversation handed to the model.
		History []domain.Message

		// ExtractSchema, when non-nil, constrains structured extraction
		// to the given JSON-Schema object (the active step's collect
		// fields). Nil disables extraction for this call.
		ExtractSchema map[string]any

		Temperature float64
		MaxTokens   int
	}

	// Response wraps the generated message and any extracted fields.
	Response struct {
		// Text is the user-facing assistant message.
		Text string

		// Extracted holds the structured fields the model produced under
		// ExtractSchema. Nil when extraction was disabled or produced
		// nothing; values are merged through the schema gate by the
		// caller.
		Extracted map[string]any

		// Usage reports token usage when the provider makes it available.
		Usage domain.Usage
	}

	// Chunk is one streaming event. Text deltas arrive incrementally;
	// Extracted and Usage typically arrive with the final events.
	Chunk struct {
		// Delta is the next text fragment, possibly empty.
		Delta string

		// Extracted carries structured fields once the provider finishes
		// the extraction block. Nil until then.
		Extracted map[string]any

		// Usage carries a usage update when the provider reports one.
		Usage *domain.Usage
	}
)
