package llm

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/builder-radar/internal/fault"
)

const geminiProvider = "gemini"

// Gemini generates text through the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

// NewGemini creates a Gemini Generator.
func NewGemini(ctx context.Context, apiKey, baseURL, model string, temperature float64, maxTokens int) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "llm: create gemini client")
	}
	return &Gemini{
		client:      client,
		model:       model,
		temperature: float32(temperature),
		maxTokens:   int32(maxTokens),
	}, nil
}

// Name implements Generator.
func (g *Gemini) Name() string { return geminiProvider }

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if g.maxTokens > 0 {
		gc.MaxOutputTokens = g.maxTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), gc)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &fault.ProviderError{Provider: geminiProvider, StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return "", eris.Wrap(err, "llm: gemini generate")
	}
	return resp.Text(), nil
}
