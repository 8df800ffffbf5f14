package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
)

type stubChatClient struct {
	lastRequest openai.ChatCompletionRequest
	resp        openai.ChatCompletionResponse
	err         error
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastRequest = request
	return s.resp, s.err
}

func (s *stubChatClient) CreateChatCompletionStream(_ context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	s.lastRequest = request
	return nil, errors.New("not scripted")
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
	stub := &stubChatClient{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: "When would you like to come in?",
				},
			}},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	cl, err := New(stub, "gpt-4o")
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
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}

	if stub.lastRequest.Model != "gpt-4o" {
		t.Errorf("unexpected model %q", stub.lastRequest.Model)
	}
	if len(stub.lastRequest.Messages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(stub.lastRequest.Messages))
	}
	if stub.lastRequest.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("system prompt should lead the conversation")
	}
	if len(stub.lastRequest.Tools) != 0 {
		t.Errorf("no extraction schema, so no tools expected")
	}
}

func TestComplete_Extraction(t *testing.T) {
	stub := &stubChatClient{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: "Booked!",
					ToolCalls: []openai.ToolCall{{
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      extractToolName,
							Arguments: `{"date":"2026-09-01"}`,
						},
					}},
				},
			}},
		},
	}
	cl, err := New(stub, "gpt-4o")
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
	if len(stub.lastRequest.Tools) != 1 || stub.lastRequest.Tools[0].Function.Name != extractToolName {
		t.Fatalf("expected the extraction function to be advertised")
	}
}

func TestComplete_Error(t *testing.T) {
	stub := &stubChatClient{err: errors.New("overloaded")}
	cl, err := New(stub, "gpt-4o")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := cl.Complete(context.Background(), testRequest()); err == nil {
		t.Fatal("expected the provider error to propagate")
	}
}

func TestNew_RequiresClientAndModel(t *testing.T) {
	if _, err := New(nil, "gpt-4o"); err == nil {
		t.Error("expected an error for a nil chat client")
	}
	if _, err := New(&stubChatClient{}, ""); err == nil {
		t.Error("expected an error for an empty model id")
	}
}
