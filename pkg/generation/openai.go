package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openaiAPIURL = "https://api.openai.com/v1/chat/completions"

	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 1000
)

// OpenAIConfig configures the chat completion client. Zero values get defaults.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// OpenAI implements Generator over the OpenAI chat completions API
type OpenAI struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewOpenAI creates a new OpenAI API client
func NewOpenAI(config OpenAIConfig) *OpenAI {
	c := &OpenAI{
		apiKey:      config.APIKey,
		model:       config.Model,
		baseURL:     config.BaseURL,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		client:      config.HTTPClient,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.baseURL == "" {
		c.baseURL = openaiAPIURL
	}
	if c.temperature == 0 {
		c.temperature = DefaultTemperature
	}
	if c.maxTokens == 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 120 * time.Second}
	}
	return c
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends the system instruction and prompt and returns the first choice.
func (c *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openaiMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(openaiRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp openaiError
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("%w: API error (%d): %s", ErrUpstream, resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("%w: API error (%d): %s", ErrUpstream, resp.StatusCode, string(respBody))
	}

	var openaiResp openaiResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(openaiResp.Choices) == 0 || strings.TrimSpace(openaiResp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return openaiResp.Choices[0].Message.Content, nil
}
