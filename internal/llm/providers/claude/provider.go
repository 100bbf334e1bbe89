package claude

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zhe.chen/manifest-compiler/internal/llm"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

const (
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 4096
)

// Provider implements llm.Provider for Anthropic Claude
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	enabled   bool
}

// NewProvider creates a new Claude provider
func NewProvider(config types.AnthropicConfig) (*Provider, error) {
	if config.APIKey == "" {
		return &Provider{enabled: false}, nil
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := int64(config.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Provider{
		client:    anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		model:     model,
		maxTokens: maxTokens,
		timeout:   config.Timeout,
		enabled:   true,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "anthropic"
}

// IsEnabled returns whether the provider is configured
func (p *Provider) IsEnabled() bool {
	return p.enabled
}

// Complete sends a single-turn request and returns the concatenated text blocks.
func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	if !p.enabled {
		return "", llm.ErrDisabled
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Claude API error: %w", err)
	}

	var result strings.Builder
	for _, content := range response.Content {
		if content.Type == "text" {
			result.WriteString(content.Text)
		}
	}
	if result.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}
	return result.String(), nil
}
