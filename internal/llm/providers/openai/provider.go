package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/zhe.chen/manifest-compiler/internal/llm"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

const defaultModel = openai.GPT4o

// Provider implements llm.Provider for OpenAI
type Provider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	enabled bool
}

// NewProvider creates a new OpenAI provider
func NewProvider(config types.OpenAIConfig) (*Provider, error) {
	if config.APIKey == "" {
		return &Provider{enabled: false}, nil
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.Organization != "" {
		clientConfig.OrgID = config.Organization
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
	return "openai"
}

// IsEnabled returns whether the provider is configured
func (p *Provider) IsEnabled() bool {
	return p.enabled
}

// Complete sends a chat completion in JSON-object mode.
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
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("response blocked by content filter")
	}
	if choice.Message.Content == "" {
		return "", llm.ErrEmptyResponse
	}
	return choice.Message.Content, nil
}
