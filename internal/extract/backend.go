// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// Endpoints. Package-level vars for test substitution.
var (
	ollamaBaseURL     = "http://localhost:11434"
	openRouterChatURL = "https://openrouter.ai/api/v1/chat/completions"
)

// DefaultModel is the local model used when none is configured.
const DefaultModel = "llama3.2"

// NewBackend returns the AIBackend named by cfg.Backend. Hosted backends
// without a usable API key fail with types.ErrConfiguration.
func NewBackend(cfg types.AIConfig, client *http.Client) (AIBackend, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	switch cfg.Backend {
	case types.BackendOllama, "":
		return &OllamaBackend{BaseURL: cfg.BaseURL, Model: model, Client: client}, nil
	case types.BackendOpenRouter:
		if types.IsPlaceholder(cfg.OpenRouterAPIKey) {
			return nil, fmt.Errorf("%w: OpenRouter API key is missing or a placeholder", types.ErrConfiguration)
		}
		return &OpenRouterBackend{BaseURL: cfg.BaseURL, APIKey: cfg.OpenRouterAPIKey, Model: model, Client: client}, nil
	case types.BackendAnthropic:
		if types.IsPlaceholder(cfg.AnthropicAPIKey) {
			return nil, fmt.Errorf("%w: Anthropic API key is missing or a placeholder", types.ErrConfiguration)
		}
		return NewAnthropicBackend(cfg.AnthropicAPIKey, model), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q: use ollama, openrouter, or anthropic", types.ErrConfiguration, cfg.Backend)
	}
}

// chatMessage is a single message in an Ollama or OpenAI-style conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- Ollama ---

// OllamaBackend calls a locally hosted model through the Ollama chat API.
type OllamaBackend struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error"`
}

// Complete sends prompt as a single user message and returns the reply.
func (o *OllamaBackend) Complete(ctx context.Context, prompt string) (string, error) {
	base := o.BaseURL
	if base == "" {
		base = ollamaBaseURL
	}
	body := ollamaRequest{
		Model:    o.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}

	var resp ollamaResponse
	if err := postJSON(ctx, o.Client, strings.TrimRight(base, "/")+"/api/chat", nil, body, &resp); err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: Ollama error: %s", types.ErrTransport, resp.Error)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", fmt.Errorf("%w: Ollama returned empty content", types.ErrParse)
	}
	return resp.Message.Content, nil
}

// --- OpenRouter ---

// OpenRouterBackend calls an OpenAI-compatible chat completion endpoint,
// OpenRouter by default.
type OpenRouterBackend struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

type openRouterRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type openRouterResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends prompt as a single user message and returns the first choice.
func (r *OpenRouterBackend) Complete(ctx context.Context, prompt string) (string, error) {
	endpoint := r.BaseURL
	if endpoint == "" {
		endpoint = openRouterChatURL
	}
	headers := map[string]string{"Authorization": "Bearer " + r.APIKey}
	body := openRouterRequest{
		Model:    r.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}

	var resp openRouterResponse
	if err := postJSON(ctx, r.Client, endpoint, headers, body, &resp); err != nil {
		return "", fmt.Errorf("calling OpenRouter: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: OpenRouter error: %s", types.ErrTransport, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: OpenRouter returned no choices", types.ErrParse)
	}
	return resp.Choices[0].Message.Content, nil
}

// postJSON marshals body, POSTs it, and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", types.ErrTransport, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", types.ErrParse, err)
	}
	return nil
}

// --- Anthropic ---

// AnthropicMessager is the slice of the Anthropic SDK client used here.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	Messages AnthropicMessager
	Model    string
}

// NewAnthropicBackend builds a backend around a real SDK client.
func NewAnthropicBackend(apiKey, model string) *AnthropicBackend {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicBackend{Messages: &c.Messages, Model: model}
}

// Complete sends prompt as a single user message and joins the text blocks
// of the reply.
func (a *AnthropicBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   1024,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("%w: calling Anthropic: %v", types.ErrTransport, err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: Anthropic returned no text content", types.ErrParse)
	}
	return sb.String(), nil
}
