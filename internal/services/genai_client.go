package services

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

const defaultGenAIModel = "gemini-2.5-flash"

// GeminiGenerator produces task responses through the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, NewInvalidError("generation not configured: missing API key")
	}
	if strings.TrimSpace(model) == "" {
		model = defaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, NewBadGatewayError("genai client: " + err.Error())
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", NewBadGatewayError("genai: " + err.Error())
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", NewBadGatewayError("genai returned an empty response")
	}
	return text, nil
}

var _ TextGenerator = (*GeminiGenerator)(nil)

// disabledGenerator stands in when no generation key is configured, so the
// search condition still works while the genai condition reports a clear
// configuration error instead of a nil dereference.
type disabledGenerator struct{}

func (disabledGenerator) Generate(context.Context, string) (string, error) {
	return "", NewInvalidError("generation not configured: missing API key")
}

// NewDisabledGenerator returns a TextGenerator that always fails with a
// configuration error.
func NewDisabledGenerator() TextGenerator { return disabledGenerator{} }
