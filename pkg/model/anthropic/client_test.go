package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error

	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	return s.stream
}

func testRequest() *model.Request {
	return &model.Request{
		System: "Ask for the reservation date.",
		History: []domain.Message{
			{Role: domain.RoleUser, Content: "I'd like a table"},
		},
		MaxTokens: 128,
	}
}

func TestComplete_TextOnly(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{{Type: "text", Text: "When would you like to come in?"}},
			Usage:   sdk.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
	cl, err := New(stub, "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := cl.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "When would you like to come in?" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.Extracted != nil {
		t.Fatalf("expected no extraction, got %v", resp.Extracted)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}

	if got := string(stub.lastParams.Model); got != "claude-sonnet-4-5" {
		t.Errorf("unexpected model %q", got)
	}
	if stub.lastParams.MaxTokens != 128 {
		t.Errorf("unexpected max tokens %d", stub.lastParams.MaxTokens)
	}
	if len(stub.lastParams.System) != 1 || stub.lastParams.System[0].Text == "" {
		t.Errorf("system prompt not forwarded: %+v", stub.lastParams.System)
	}
	if len(stub.lastParams.Tools) != 0 {
		t.Errorf("no extraction schema, so no tools expected: %+v", stub.lastParams.Tools)
	}
}

func TestComplete_Extraction(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "Booked!"},
				{Type: "tool_use", Name: extractToolName, ID: "t1",
					Input: json.RawMessage(`{"date":"2026-09-01"}`)},
			},
			Usage: sdk.Usage{InputTokens: 20, OutputTokens: 8},
		},
	}
	cl, err := New(stub, "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := testRequest()
	req.ExtractSchema = map[string]any{
		"type":       "object",
		"properties": map[string]any{"date": map[string]any{"type": "string"}},
	}

	resp, err := cl.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Booked!" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.Extracted["date"] != "2026-09-01" {
		t.Fatalf("extraction not decoded: %v", resp.Extracted)
	}
	if len(stub.lastParams.Tools) != 1 {
		t.Fatalf("expected the extraction tool to be advertised")
	}
}

func TestComplete_Error(t *testing.T) {
	stub := &stubMessagesClient{err: errors.New("overloaded")}
	cl, err := New(stub, "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := cl.Complete(context.Background(), testRequest()); err == nil {
		t.Fatal("expected the provider error to propagate")
	}
}

func TestNew_RequiresClientAndModel(t *testing.T) {
	if _, err := New(nil, "claude-sonnet-4-5"); err == nil {
		t.Error("expected an error for a nil messages client")
	}
	if _, err := New(&stubMessagesClient{}, ""); err == nil {
		t.Error("expected an error for an empty model id")
	}
}

// testDecoder feeds a fixed event sequence to ssestream.Stream.
type testDecoder struct {
	events []ssestream.Event
	i      int
	err    error
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.err != nil || d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return d.err }

func event(t *testing.T, eventType, payload string) ssestream.Event {
	t.Helper()
	return ssestream.Event{Type: eventType, Data: json.RawMessage(payload)}
}

func TestStream_DeltasExtractionAndUsage(t *testing.T) {
	dec := &testDecoder{events: []ssestream.Event{
		event(t, "message_start", `{"type":"message_start","message":{"usage":{"input_tokens":12}}}`),
		event(t, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Book"}}`),
		event(t, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"ed!"}}`),
		event(t, "content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"t1","name":"record_fields"}}`),
		event(t, "content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"date\":"}}`),
		event(t, "content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"2026-09-01\"}"}}`),
		event(t, "message_delta", `{"type":"message_delta","delta":{},"usage":{"output_tokens":7}}`),
		event(t, "message_stop", `{"type":"message_stop"}`),
	}}
	stub := &stubMessagesClient{stream: ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)}

	cl, err := New(stub, "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := testRequest()
	req.ExtractSchema = map[string]any{"type": "object"}

	s, err := cl.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var text string
	var final model.Chunk
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		text += chunk.Delta
		if chunk.Usage != nil || chunk.Extracted != nil {
			final = chunk
		}
	}

	if text != "Booked!" {
		t.Errorf("unexpected accumulated text %q", text)
	}
	if final.Extracted["date"] != "2026-09-01" {
		t.Errorf("extraction not assembled: %v", final.Extracted)
	}
	if final.Usage == nil || final.Usage.TotalTokens != 19 {
		t.Errorf("unexpected usage: %+v", final.Usage)
	}
}
