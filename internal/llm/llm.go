// Package llm provides a provider-neutral text generation interface with
// Anthropic, OpenAI-compatible, and Gemini backends.
package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/builder-radar/internal/config"
	"github.com/sells-group/builder-radar/pkg/anthropic"
)

// Generator turns a single user prompt into generated text.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// New builds the Generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "anthropic":
		var opts []anthropic.Option
		if cfg.AnthropicBaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.AnthropicBaseURL))
		}
		return NewAnthropic(anthropic.NewClient(cfg.AnthropicKey, opts...), cfg.ModelName(), cfg.Temperature, cfg.MaxTokens), nil
	case "openai":
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.ModelName(), cfg.Temperature, cfg.MaxTokens), nil
	case "gemini":
		return NewGemini(ctx, cfg.GeminiKey, cfg.GeminiBaseURL, cfg.ModelName(), cfg.Temperature, cfg.MaxTokens)
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
