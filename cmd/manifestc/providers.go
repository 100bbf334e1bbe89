package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zhe.chen/manifest-compiler/internal/llm"
	"github.com/zhe.chen/manifest-compiler/internal/llm/providers/claude"
	"github.com/zhe.chen/manifest-compiler/internal/llm/providers/gemini"
	"github.com/zhe.chen/manifest-compiler/internal/llm/providers/openai"
	"github.com/zhe.chen/manifest-compiler/internal/llm/providers/openrouter"
	"github.com/zhe.chen/manifest-compiler/internal/pipeline"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

// createLLMProvider creates the appropriate LLM provider based on configuration
func createLLMProvider(config types.LLMConfig) (llm.Provider, error) {
	switch config.Provider {
	case "anthropic", "claude":
		return claude.NewProvider(config.Anthropic)

	case "google", "gemini":
		return gemini.NewProvider(config.Google)

	case "openai":
		return openai.NewProvider(config.OpenAI)

	case "openrouter":
		return openrouter.NewProvider(config.OpenRouter)

	case "":
		return nil, fmt.Errorf("llm.provider not specified in config")

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: anthropic, google, openai, openrouter)", config.Provider)
	}
}

// compilerOptions wires the advisory extractor and repairer. A provider
// without an API key leaves the compiler fully deterministic.
func compilerOptions(config types.LLMConfig, logger *zap.Logger) ([]pipeline.Option, error) {
	options := []pipeline.Option{pipeline.WithLogger(logger)}
	if !config.Enabled {
		logger.Debug("advisory model disabled in config", zap.String("stage", "setup"))
		return options, nil
	}

	provider, err := createLLMProvider(config)
	if err != nil {
		return nil, err
	}
	if !provider.IsEnabled() {
		logger.Warn("advisory model has no API key, running deterministic only",
			zap.String("stage", "setup"),
			zap.String("provider", provider.Name()))
		return options, nil
	}

	if config.Extract {
		options = append(options, pipeline.WithExtractor(llm.NewModelExtractor(provider, logger)))
	}
	if config.Repair {
		options = append(options, pipeline.WithRepairer(llm.NewModelRepairer(provider, logger)))
	}
	logger.Info("advisory model enabled",
		zap.String("stage", "setup"),
		zap.String("provider", provider.Name()),
		zap.Bool("extract", config.Extract),
		zap.Bool("repair", config.Repair))
	return options, nil
}
