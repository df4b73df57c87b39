package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds settings for an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Azure switches to Azure OpenAI addressing, where model names are
	// deployment names.
	Azure      bool
	APIVersion string
}

// OpenAIEngine implements Engine over the OpenAI chat and embeddings APIs.
type OpenAIEngine struct {
	client *openai.Client
	azure  bool
}

// NewOpenAIEngine creates an OpenAIEngine from cfg.
func NewOpenAIEngine(cfg OpenAIConfig) *OpenAIEngine {
	var clientCfg openai.ClientConfig
	if cfg.Azure {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientCfg),
		azure:  cfg.Azure,
	}
}

func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(opts.Temperature),
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", parseAPIError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (e *OpenAIEngine) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, parseAPIError("embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// IsRunning probes the models endpoint. Azure deployments do not expose it
// uniformly, so Azure backends are assumed reachable.
func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	if e.azure {
		return true
	}
	_, err := e.client.ListModels(ctx)
	return err == nil
}

func (e *OpenAIEngine) ListModels(ctx context.Context) ([]string, error) {
	list, err := e.client.ListModels(ctx)
	if err != nil {
		return nil, parseAPIError("list models", err)
	}
	names := make([]string, len(list.Models))
	for i, m := range list.Models {
		names[i] = m.ID
	}
	return names, nil
}

func (e *OpenAIEngine) HasModel(ctx context.Context, name string) bool {
	if e.azure {
		return true
	}
	models, err := e.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		if m == name {
			return true
		}
	}
	return false
}

func (e *OpenAIEngine) PullModel(_ context.Context, _ string, _ func(PullProgress)) error {
	return ErrPullUnsupported
}

// parseAPIError extracts a readable message from go-openai error types.
func parseAPIError(op string, err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("%s: API error %d: %s", op, reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("%s: API error %d: %w", op, reqErr.HTTPStatusCode, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: API error %d: %s", op, apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
