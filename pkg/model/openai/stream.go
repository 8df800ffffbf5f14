package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
)

// streamer adapts an OpenAI completion stream to model.Streamer. Content
// deltas pass through; function-call argument fragments are buffered and
// delivered, with usage, in one chunk before io.EOF.
type streamer struct {
	stream *openai.ChatCompletionStream

	fragments []string
	usage     domain.Usage

	finalSent bool
}

var _ model.Streamer = (*streamer)(nil)

func (s *streamer) Recv() (model.Chunk, error) {
	if s.finalSent {
		return model.Chunk{}, io.EOF
	}

	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return s.finish()
		}
		if err != nil {
			s.finalSent = true
			return model.Chunk{}, fmt.Errorf("openai stream: %w", err)
		}

		if resp.Usage != nil {
			s.usage = domain.Usage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
				TotalTokens:  resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		// A single tool is advertised, so every argument fragment belongs
		// to the extraction call.
		for _, call := range delta.ToolCalls {
			if call.Function.Arguments != "" {
				s.fragments = append(s.fragments, call.Function.Arguments)
			}
		}
		if delta.Content != "" {
			return model.Chunk{Delta: delta.Content}, nil
		}
	}
}

func (s *streamer) finish() (model.Chunk, error) {
	s.finalSent = true
	final := model.Chunk{Usage: &s.usage}
	if raw := strings.TrimSpace(strings.Join(s.fragments, "")); raw != "" {
		var extracted map[string]any
		if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
			return model.Chunk{}, fmt.Errorf("openai stream: malformed extraction payload: %w", err)
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
