package llm

import (
	"context"
	"errors"
)

// ErrDisabled is returned by providers that have no credentials configured.
var ErrDisabled = errors.New("llm provider is not enabled")

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Completer sends one system+user prompt pair and returns the text answer.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Provider abstracts different LLM providers (Claude, Gemini, OpenAI, OpenRouter)
type Provider interface {
	Completer

	// Name returns the provider name
	Name() string

	// IsEnabled returns whether the provider is configured with valid credentials
	IsEnabled() bool
}

// NewProvider factory lives in cmd/manifestc to avoid import cycles.
// Each provider package (providers/claude, providers/gemini, providers/openai,
// providers/openrouter) exports a NewProvider function that main calls directly.
