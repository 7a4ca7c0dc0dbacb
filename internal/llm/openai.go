package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/builder-radar/internal/fault"
)

const openAIProvider = "openai"

// OpenAI generates text through the Chat Completions API. Any compatible
// endpoint can be targeted by setting a base URL.
type OpenAI struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewOpenAI creates an OpenAI-compatible Generator.
func NewOpenAI(apiKey, baseURL, model string, temperature float64, maxTokens int) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
		maxTokens:   int64(maxTokens),
	}
}

// Name implements Generator.
func (o *OpenAI) Name() string { return openAIProvider }

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(o.temperature),
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(o.maxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &fault.ProviderError{Provider: openAIProvider, StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return "", eris.Wrap(err, "llm: openai generate")
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("llm: openai returned no choices")
	}

	zap.L().Debug("llm: openai usage",
		zap.String("model", o.model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
