// Package reasoning wraps a chat engine as a JSON-returning capability:
// a system instruction and a user payload go in, a decoded object comes out.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emmi-yeo/vendor-intelligence/internal/engine"
)

// ErrMalformedJSON is returned when the model's reply does not decode into
// the requested shape.
var ErrMalformedJSON = errors.New("reasoning: malformed JSON response")

// Chatter is the subset of engine.Engine used for reasoning calls.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, opts engine.ChatOptions) (string, error)
}

// Client performs JSON reasoning calls against a single chat model.
type Client struct {
	chat  Chatter
	model string
}

// New creates a Client using the given chat backend and model name.
func New(chat Chatter, model string) *Client {
	return &Client{chat: chat, model: model}
}

// CallJSON sends system and user prompts and decodes the JSON reply into out.
// Provider failures and undecodable replies are returned as errors; there is
// no fallback value.
func (c *Client) CallJSON(ctx context.Context, system, user string, temperature float64, out any) error {
	raw, err := c.chat.Chat(ctx, c.model, []engine.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, engine.ChatOptions{JSON: true, Temperature: temperature})
	if err != nil {
		return fmt.Errorf("reasoning call: %w", err)
	}

	body := stripFences(raw)
	if body == "" {
		return fmt.Errorf("%w: empty response", ErrMalformedJSON)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		slog.Debug("reasoning: undecodable response", "error", err, "response", raw)
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit even in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
