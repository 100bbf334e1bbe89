package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/zhe.chen/manifest-compiler/internal/llm"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

const defaultModel = "gemini-2.0-flash"

// Provider implements llm.Provider for Google Gemini
type Provider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	enabled bool
}

// NewProvider creates a new Gemini provider
func NewProvider(config types.GoogleConfig) (*Provider, error) {
	if config.APIKey == "" {
		return &Provider{enabled: false}, nil
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}

	return &Provider{
		client:  client,
		model:   model,
		timeout: config.Timeout,
		enabled: true,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "gemini"
}

// IsEnabled returns whether the provider is configured
func (p *Provider) IsEnabled() bool {
	return p.enabled
}

// Complete asks Gemini for a JSON answer to a single prompt.
func (p *Provider) Complete(ctx context.Context, system, user string) (string, error) {
	if !p.enabled {
		return "", llm.ErrDisabled
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		},
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}
