package enrich

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"marketwatch/internal/logging"
	"marketwatch/internal/models"
)

const analystInstructions = `You are a professional cryptocurrency market analyst responsible for monitoring price movements.
A monitoring threshold was just triggered. Provide a concise alert with:
1. A brief description of the movement
2. Potential recent support/resistance levels
3. A short view on the short-term trend
Keep it under 120 words, plain text.`

// GeminiEnricher produces alert commentary via the Gemini API.
type GeminiEnricher struct {
	logger *logging.Logger
	client *genai.Client
	model  string
}

// NewGeminiEnricher builds an enricher using the given API key and model.
func NewGeminiEnricher(ctx context.Context, logger *logging.Logger, apiKey, model string) (*GeminiEnricher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is empty", ErrInvalidConfig)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model name is empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", ErrInvalidConfig, err)
	}

	return &GeminiEnricher{logger: logger, client: client, model: model}, nil
}

// Enrich asks the model for commentary on the alert. Each call is a fresh
// single-turn request built only from the event.
func (g *GeminiEnricher) Enrich(ctx context.Context, event models.AlertEvent) (string, error) {
	prompt := buildPrompt(event)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(analystInstructions, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}

	g.logger.Debugf("Enriched alert %s (%d chars)", event.ID, len(text))
	return text, nil
}

func buildPrompt(event models.AlertEvent) string {
	return fmt.Sprintf(
		"A market monitoring alert was triggered:\n"+
			"- Trading pair: %s\n"+
			"- Metric: %s\n"+
			"- Current value: %.4f\n"+
			"- Threshold: %.4f (%s)\n"+
			"- Time: %s\n",
		event.Symbol,
		event.Metric,
		event.CurrentValue,
		event.Threshold,
		event.Comparator,
		event.Timestamp.Format("2006-01-02 15:04:05"),
	)
}
