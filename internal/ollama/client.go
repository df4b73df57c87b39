// Package ollama is a small client for the Ollama HTTP API covering chat,
// batch embeddings and model management.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a single chat call.
type ChatOptions struct {
	// JSON constrains the reply to a JSON value.
	JSON        bool
	Temperature float64
}

// Error is a non-200 reply from the server. Message carries the server's
// "error" field when it sent one.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("ollama: %s (status %d)", e.Message, e.Status)
}

// Client talks to one Ollama server. Requests carry no client-side timeout;
// callers bound them with their context.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// send issues a request with an optional JSON body and returns the response
// only when the status is 200. The caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readError(resp)
	}
	return resp, nil
}

// call is send followed by decoding the JSON reply into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func readError(resp *http.Response) error {
	e := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var env struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil {
		e.Message = env.Error
	}
	return e
}

// IsRunning reports whether the server answers GET /api/version within two
// seconds.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var v struct {
		Version string `json:"version"`
	}
	return c.call(ctx, http.MethodGet, "/api/version", nil, &v) == nil
}

// ListModels returns the names of the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// HasModel reports whether name is installed. A name without a tag matches
// any tag of that model.
func (c *Client) HasModel(ctx context.Context, name string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		if m == name || strings.HasPrefix(m, name+":") {
			return true
		}
	}
	return false
}

// PullProgress is one line of the streamed pull response.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PullModel downloads a model and blocks until the stream ends. onProgress,
// if non-nil, receives every progress line. An error line in the stream
// fails the pull.
func (c *Client) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	resp, err := c.send(ctx, http.MethodPost, "/api/pull", map[string]any{"model": name, "stream": true})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", name, err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var p PullProgress
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading pull progress: %w", err)
		}
		if p.Error != "" {
			return fmt.Errorf("pulling model %s: %s", name, p.Error)
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
}

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []Message    `json:"messages"`
	Stream   bool         `json:"stream"`
	Format   string       `json:"format,omitempty"`
	Options  modelOptions `json:"options"`
}

type modelOptions struct {
	Temperature float64 `json:"temperature"`
}

// Chat sends a non-streaming chat request and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	req := chatRequest{
		Model:    model,
		Messages: messages,
		Options:  modelOptions{Temperature: opts.Temperature},
	}
	if opts.JSON {
		req.Format = "json"
	}

	var reply struct {
		Message Message `json:"message"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/chat", req, &reply); err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return reply.Message.Content, nil
}

type embedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

// Embed returns one embedding per text, in input order. Inputs longer than
// the model's context are truncated by the server.
func (c *Client) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	var reply struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/embed", embedRequest{Model: model, Input: texts, Truncate: true}, &reply); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(reply.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: got %d embeddings for %d inputs", len(reply.Embeddings), len(texts))
	}
	return reply.Embeddings, nil
}
