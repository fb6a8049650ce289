package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient implements Client over the Google GenAI API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return text, nil
}

// GenerateSQL produces a single SQL statement for the request.
func (c *GeminiClient) GenerateSQL(ctx context.Context, req GenerateRequest) (string, error) {
	raw, err := c.complete(ctx, BuildGeneratePrompt(req), 0.1)
	if err != nil {
		return "", err
	}
	sql := CleanSQL(raw)
	if sql == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return sql, nil
}

// ClassifyIntent classifies the natural-language query.
func (c *GeminiClient) ClassifyIntent(ctx context.Context, query string) (Intent, error) {
	raw, err := c.complete(ctx, BuildIntentPrompt(query), 0.0)
	if err != nil {
		return Intent{}, err
	}

	match := intentJSONRe.FindString(raw)
	if match == "" {
		return Intent{Kind: ParseIntentKind(raw), Confidence: 0.5}, nil
	}
	var parsed struct {
		Kind       string  `json:"kind"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return Intent{Kind: ParseIntentKind(raw), Confidence: 0.5}, nil
	}
	return Intent{Kind: ParseIntentKind(parsed.Kind), Confidence: parsed.Confidence}, nil
}

// DiagnoseError asks the model why a statement failed.
func (c *GeminiClient) DiagnoseError(ctx context.Context, sql, errText, schema string) (string, error) {
	raw, err := c.complete(ctx, BuildDiagnosisPrompt(sql, errText, schema), 0.2)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
