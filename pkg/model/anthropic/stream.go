package anthropic

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
)

// streamer adapts the Anthropic SSE stream to model.Streamer. Text deltas
// pass through one by one; extraction tool JSON is buffered and delivered,
// with usage, in a single chunk before io.EOF.
type streamer struct {
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	extracting map[int]bool
	fragments  []string
	usage      domain.Usage

	finalSent bool
}

var _ model.Streamer = (*streamer)(nil)

func (s *streamer) Recv() (model.Chunk, error) {
	if s.finalSent {
		return model.Chunk{}, io.EOF
	}

	for s.stream.Next() {
		switch ev := s.stream.Current().AsAny().(type) {
		case sdk.MessageStartEvent:
			s.usage.InputTokens = int(ev.Message.Usage.InputTokens)

		case sdk.ContentBlockStartEvent:
			if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok && tu.Name == extractToolName {
				s.extracting[int(ev.Index)] = true
			}

		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text != "" {
					return model.Chunk{Delta: delta.Text}, nil
				}
			case sdk.InputJSONDelta:
				if s.extracting[int(ev.Index)] && delta.PartialJSON != "" {
					s.fragments = append(s.fragments, delta.PartialJSON)
				}
			}

		case sdk.MessageDeltaEvent:
			s.usage.OutputTokens = int(ev.Usage.OutputTokens)
		}
	}

	if err := s.stream.Err(); err != nil {
		s.finalSent = true
		return model.Chunk{}, fmt.Errorf("anthropic stream: %w", err)
	}

	s.finalSent = true
	s.usage.TotalTokens = s.usage.InputTokens + s.usage.OutputTokens
	final := model.Chunk{Usage: &s.usage}
	if raw := strings.TrimSpace(strings.Join(s.fragments, "")); raw != "" {
		var extracted map[string]any
		if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
			return model.Chunk{}, fmt.Errorf("anthropic stream: malformed extraction payload: %w", err)
		}
		if len(extracted) > 0 {
			final.Extracted = extracted
		}
	}
	return final, nil
}

func (s *streamer) Close() error {
	return s.stream.Close()
}
