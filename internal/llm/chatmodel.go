package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dyike/CortexQuant/config"
)

const defaultDeepSeekURL = "https://api.deepseek.com/v1"

// NewChatModel builds the provider chat model named by cfg.LLMProvider.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s", cfg.LLMProvider)
	}

	switch strings.ToLower(cfg.LLMProvider) {
	case "deepseek":
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    apiKey,
			BaseURL:   cfg.BackendURL,
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
			Timeout:   cfg.LLMRequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create deepseek model: %w", err)
		}
		return cm, nil
	case "openai":
		baseURL := cfg.BackendURL
		if baseURL == "" && strings.HasPrefix(cfg.LLMModel, "deepseek") {
			baseURL = defaultDeepSeekURL
		}
		maxTokens := cfg.LLMMaxTokens
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   baseURL,
			APIKey:    apiKey,
			Model:     cfg.LLMModel,
			MaxTokens: &maxTokens,
			Timeout:   cfg.LLMRequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return cm, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// OptionsFromConfig maps the config knobs onto client options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.MaxConcurrency = cfg.LLMMaxConcurrency
	opts.MinInterval = cfg.LLMMinInterval
	opts.MaxRetries = cfg.LLMMaxRetries
	opts.ThrottleBaseDelay = cfg.LLMThrottleBaseDelay
	opts.ThrottleMaxDelay = cfg.LLMThrottleMaxDelay
	opts.TransientDelay = cfg.LLMTransientDelay
	opts.RequestTimeout = cfg.LLMRequestTimeout
	opts.MaxTokens = cfg.LLMMaxTokens
	return opts
}
