package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"sqlnerd/internal/logging"
)

// OllamaClient implements Client against a local Ollama server using the
// non-streaming /api/generate endpoint.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaConfig holds Ollama connection settings.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOllamaConfig returns sensible defaults for a local server.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL: "http://localhost:11434",
		Model:   "qwen2.5-coder:7b",
		Timeout: 2 * time.Minute,
	}
}

// NewOllamaClient creates a client with default config.
func NewOllamaClient() *OllamaClient {
	return NewOllamaClientWithConfig(DefaultOllamaConfig())
}

// NewOllamaClientWithConfig creates a client with custom config.
func NewOllamaClientWithConfig(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultOllamaConfig().BaseURL
	}
	if config.Model == "" {
		config.Model = DefaultOllamaConfig().Model
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultOllamaConfig().Timeout
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		model:      config.Model,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (c *OllamaClient) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": temperature,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var or ollamaResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", ErrUnavailable, err)
	}
	if or.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, or.Error)
	}

	logging.API("ollama: %s responded in %v (%d bytes)", c.model, time.Since(start), len(or.Response))
	return or.Response, nil
}

// GenerateSQL produces a single SQL statement for the request.
func (c *OllamaClient) GenerateSQL(ctx context.Context, req GenerateRequest) (string, error) {
	raw, err := c.generate(ctx, BuildGeneratePrompt(req), 0.1)
	if err != nil {
		return "", err
	}
	sql := CleanSQL(raw)
	if sql == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return sql, nil
}

var intentJSONRe = regexp.MustCompile(`\{[^{}]*\}`)

// ClassifyIntent classifies the natural-language query.
func (c *OllamaClient) ClassifyIntent(ctx context.Context, query string) (Intent, error) {
	raw, err := c.generate(ctx, BuildIntentPrompt(query), 0.0)
	if err != nil {
		return Intent{}, err
	}

	// Models often wrap the JSON in prose or fences; take the first object.
	match := intentJSONRe.FindString(raw)
	if match == "" {
		logging.APIDebug("ollama: no JSON in intent response, raw=%q", raw)
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
func (c *OllamaClient) DiagnoseError(ctx context.Context, sql, errText, schema string) (string, error) {
	raw, err := c.generate(ctx, BuildDiagnosisPrompt(sql, errText, schema), 0.2)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
