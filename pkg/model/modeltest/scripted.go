// Package modeltest provides a deterministic model.Client for engine tests
// and examples. Turns are scripted in order; the script is exhausted once.
package modeltest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/parleyhq/parley/pkg/domain"
	"github.com/parleyhq/parley/pkg/model"
)

// Turn configures one scripted model response.
type Turn struct {
	Text      string
	Extracted map[string]any
	Usage     domain.Usage

	// Deltas overrides how Text is split when the turn is streamed. When
	// empty, the whole Text is delivered as a single delta.
	Deltas []string

	// Err makes the call fail instead of responding.
	Err error
}

// Client replays scripted turns. It records every request it receives for
// later assertions.
type Client struct {
	mu       sync.Mutex
	index    int
	turns    []Turn
	Requests []*model.Request
}

var _ model.Client = (*Client)(nil)

// New creates a scripted client.
func New(turns ...Turn) *Client {
	cloned := make([]Turn, len(turns))
	copy(cloned, turns)
	return &Client{turns: cloned}
}

func (c *Client) next(req *model.Request) (Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.index >= len(c.turns) {
		return Turn{}, fmt.Errorf("model script exhausted at call %d", c.index+1)
	}
	turn := c.turns[c.index]
	c.index++
	return turn, nil
}

// Complete returns the next scripted turn.
func (c *Client) Complete(_ context.Context, req *model.Request) (*model.Response, error) {
	turn, err := c.next(req)
	if err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	return &model.Response{Text: turn.Text, Extracted: turn.Extracted, Usage: turn.Usage}, nil
}

// Stream returns the next scripted turn as a sequence of deltas.
func (c *Client) Stream(_ context.Context, req *model.Request) (model.Streamer, error) {
	turn, err := c.next(req)
	if err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	deltas := turn.Deltas
	if len(deltas) == 0 && turn.Text != "" {
		deltas = []string{turn.Text}
	}
	return &scriptedStream{turn: turn, deltas: deltas}, nil
}

type scriptedStream struct {
	turn   Turn
	deltas []string
	pos    int
	done   bool
}

func (s *scriptedStream) Recv() (model.Chunk, error) {
	if s.pos < len(s.deltas) {
		chunk := model.Chunk{Delta: s.deltas[s.pos]}
		s.pos++
		return chunk, nil
	}
	if !s.done {
		s.done = true
		usage := s.turn.Usage
		return model.Chunk{Extracted: s.turn.Extracted, Usage: &usage}, nil
	}
	return model.Chunk{}, io.EOF
}

func (s *scriptedStream) Close() error { return nil }
