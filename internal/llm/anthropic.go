package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/builder-radar/pkg/anthropic"
)

// Anthropic generates text through the Messages API.
type Anthropic struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewAnthropic wraps an anthropic.Client as a Generator.
func NewAnthropic(client anthropic.Client, model string, temperature float64, maxTokens int) *Anthropic {
	return &Anthropic{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   int64(maxTokens),
	}
}

// Name implements Generator.
func (a *Anthropic) Name() string { return anthropic.ProviderName }

// Generate implements Generator.
func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	temp := a.temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: anthropic generate")
	}
	resp.Usage.LogCost(a.model, "generate")
	return resp.Text(), nil
}
