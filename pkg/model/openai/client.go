// Package openai implements model.Client on the OpenAI Chat Completions
// API. Structured extraction rides on a single record_fields function whose
// parameters are the request's extraction schema.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
)

const (
	extractToolName = "record_fields"
	extractToolDesc = "Record values the user has provided for the fields being collected. " +
		"Only include fields the user actually stated."
)

// ChatClient is the subset of the go-openai client the adapter uses. It is
// satisfied by *openai.Client.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Client implements model.Client on OpenAI chat completions.
type Client struct {
	chat  ChatClient
	model string
}

var _ model.Client = (*Client)(nil)

// New builds a client from an existing chat client.
func New(chat ChatClient, modelID string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	if modelID == "" {
		return nil, errors.New("openai model identifier is required")
	}
	return &Client{chat: chat, model: modelID}, nil
}

// NewFromAPIKey constructs a client with the default go-openai HTTP client.
func NewFromAPIKey(apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	return New(openai.NewClient(apiKey), modelID)
}

// Complete issues a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	request, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	response, err := c.chat.CreateChatCompletion(ctx, *request)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(response)
}

// Stream issues a streaming chat completion.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	request, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	request.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	stream, err := c.chat.CreateChatCompletionStream(ctx, *request)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion stream: %w", err)
	}
	return &streamer{stream: stream}, nil
}

func (c *Client) prepare(req *model.Request) (*openai.ChatCompletionRequest, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case domain.RoleUser:
			messages = append(messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser, Content: m.Content})
		case domain.RoleAssistant:
			messages = append(messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		}
	}
	if len(messages) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}

	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.ExtractSchema != nil {
		params, err := json.Marshal(req.ExtractSchema)
		if err != nil {
			return nil, fmt.Errorf("openai: marshal extraction schema: %w", err)
		}
		request.Tools = []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        extractToolName,
				Description: extractToolDesc,
				Parameters:  json.RawMessage(params),
			},
		}}
	}
	return &request, nil
}

func translateResponse(resp openai.ChatCompletionResponse) (*model.Response, error) {
	out := &model.Response{
		Usage: domain.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, choice := range resp.Choices {
		msg := choice.Message
		out.Text += msg.Content
		for _, call := range msg.ToolCalls {
			if call.Function.Name != extractToolName {
				continue
			}
			var extracted map[string]any
			if err := json.Unmarshal([]byte(call.Function.Arguments), &extracted); err != nil {
				return nil, fmt.Errorf("openai: malformed extraction payload: %w", err)
			}
			if len(extracted) > 0 {
				out.Extracted = extracted
			}
		}
	}
	return out, nil
}
