package factory

import (
	"context"
	"fmt"

	"github.com/gm-agent-org/gm-genai/pkg/config"
	"github.com/gm-agent-org/gm-genai/pkg/llm"
	"github.com/gm-agent-org/gm-genai/pkg/llm/gemini"
	"github.com/gm-agent-org/gm-genai/pkg/llm/mock"
	"github.com/gm-agent-org/gm-genai/pkg/llm/openai"
)

// NewProvider creates a completion provider from configuration and returns
// it together with the resolved provider ID and options.
func NewProvider(ctx context.Context, cfg *config.Config) (llm.Provider, string, error) {
	provider, _, id, err := NewProviderWithOptions(ctx, cfg)
	return provider, id, err
}

// NewProviderWithOptions is NewProvider that also hands back the merged
// provider options, which the gateway needs for its defaults.
func NewProviderWithOptions(ctx context.Context, cfg *config.Config) (llm.Provider, config.ProviderOptions, string, error) {
	if cfg.ActiveProvider == "mock" {
		return mock.New(""), config.ProviderOptions{Model: "mock-model"}, "mock", nil
	}

	id, opts, err := cfg.GetActiveProvider()
	if err != nil {
		return nil, opts, "", err
	}

	switch id {
	case "gemini":
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:    opts.APIKey,
			ProjectID: opts.ProjectID,
			Location:  opts.Location,
			Model:     opts.Model,
		})
		if err != nil {
			return nil, opts, "", err
		}
		return p, opts, id, nil
	case "openai", "deepseek":
		// DeepSeek speaks the OpenAI wire protocol.
		return openai.New(openai.Config{
			APIKey:  opts.APIKey,
			BaseURL: opts.BaseURL,
		}), opts, id, nil
	default:
		return nil, opts, "", fmt.Errorf("unknown provider: %s", id)
	}
}
