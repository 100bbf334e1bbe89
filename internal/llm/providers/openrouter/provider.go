package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/zhe.chen/manifest-compiler/internal/llm"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

const (
	// OpenRouter API base URL
	openRouterBaseURL = "https://openrouter.ai/api/v1"

	// OpenRouter headers
	httpReferer = "https://github.com/zhe.chen/manifest-compiler"
	appTitle    = "manifest-compiler"

	defaultModel = "anthropic/claude-3.5-sonnet"
)

// Provider implements llm.Provider for OpenRouter
type Provider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	enabled bool
}

// NewProvider creates a new OpenRouter provider
// OpenRouter uses OpenAI-compatible API with custom base URL
func NewProvider(config types.OpenRouterConfig) (*Provider, error) {
	if config.APIKey == "" {
		return &Provider{enabled: false}, nil
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = openRouterBaseURL
	clientConfig.HTTPClient = &http.Client{
		Transport: &headerTransport{
			Base: http.DefaultTransport,
			Headers: map[string]string{
				"HTTP-Referer": httpReferer,
				"X-Title":      appTitle,
			},
		},
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}

	return &Provider{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: config.Timeout,
		enabled: true,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "openrouter"
}

// IsEnabled returns whether the provider is configured
func (p *Provider) IsEnabled() bool {
	return p.enabled
}

// Complete sends a single chat completion. Not every routed model supports
// JSON mode, so the answer is left for the tolerant decoder.
func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	if !p.enabled {
		return "", llm.ErrDisabled
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenRouter API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	if resp.Choices[0].Message.Content == "" {
		return "", llm.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// headerTransport adds custom headers to HTTP requests
type headerTransport struct {
	Base    http.RoundTripper
	Headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	return t.Base.RoundTrip(req)
}
