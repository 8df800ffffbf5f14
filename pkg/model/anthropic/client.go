// Package anthropic implements model.Client on the Anthropic Messages API.
// Structured extraction rides on a tool definition: the client advertises a
// single record_fields tool whose input schema is the request's extraction
// schema, and reads the tool_use block back as the extracted record.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
)

const (
	extractToolName = "record_fields"
	extractToolDesc = "Record values the user has provided for the fields being collected. " +
		"Only include fields the user actually stated."

	defaultMaxTokens = 1024
)

// MessagesClient is the subset of the Anthropic SDK the adapter uses. It is
// satisfied by *sdk.MessageService, so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements model.Client on Anthropic Claude.
type Client struct {
	msg         MessagesClient
	model       string
	maxTokens   int
	temperature float64
}

var _ model.Client = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithMaxTokens sets the completion cap used when a request leaves
// MaxTokens unset. Defaults to 1024.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature used when a request leaves
// Temperature unset.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// New builds a client from an existing Anthropic Messages client.
func New(msg MessagesClient, modelID string, opts ...Option) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if modelID == "" {
		return nil, errors.New("anthropic model identifier is required")
	}
	c := &Client{msg: msg, model: modelID, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromAPIKey constructs a client with the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, modelID string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, modelID, opts...)
}

// Complete issues a non-streaming Messages.New call.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateMessage(msg)
}

// Stream issues Messages.NewStreaming and adapts the event stream.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	params, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic messages.new stream: %w", err)
	}
	return &streamer{stream: stream, extracting: make(map[int]bool)}, nil
}

func (c *Client) prepare(req *model.Request) (*sdk.MessageNewParams, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	msgs, err := encodeHistory(req.History)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if t := req.Temperature; t > 0 {
		params.Temperature = sdk.Float(t)
	} else if c.temperature > 0 {
		params.Temperature = sdk.Float(c.temperature)
	}
	if req.ExtractSchema != nil {
		tool := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{
			ExtraFields: req.ExtractSchema,
		}, extractToolName)
		if tool.OfTool != nil {
			tool.OfTool.Description = sdk.String(extractToolDesc)
		}
		params.Tools = []sdk.ToolUnionParam{tool}
	}
	return &params, nil
}

func encodeHistory(history []domain.Message) ([]sdk.MessageParam, error) {
	msgs := make([]sdk.MessageParam, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case domain.RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case domain.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			// System text travels in the system parameter; other roles
			// have no Anthropic equivalent here.
		}
	}
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return msgs, nil
}

func translateMessage(msg *sdk.Message) (*model.Response, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	resp := &model.Response{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			if block.Name != extractToolName {
				continue
			}
			var extracted map[string]any
			if err := json.Unmarshal(block.Input, &extracted); err != nil {
				return nil, fmt.Errorf("anthropic: malformed extraction payload: %w", err)
			}
			if len(extracted) > 0 {
				resp.Extracted = extracted
			}
		}
	}
	resp.Usage = domain.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return resp, nil
}
