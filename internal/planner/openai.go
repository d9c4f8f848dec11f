package planner

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

// Config holds the chat-completion endpoint settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultConfig returns the default endpoint settings.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:      apiKey,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o",
		Temperature: 0.1,
		TopP:        0.95,
		MaxTokens:   4096,
		Timeout:     120 * time.Second,
	}
}

// Client is a Planner backed by an OpenAI-compatible chat API.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	httpClient  *http.Client
}

// NewClient creates a new chat-completion client.
func NewClient(config Config) *Client {
	return &Client{
		apiKey:      config.APIKey,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		model:       config.Model,
		temperature: config.Temperature,
		topP:        config.TopP,
		maxTokens:   config.MaxTokens,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Plan sends the conversation and returns the assistant's reply.
func (c *Client) Plan(ctx context.Context, messages []Message) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		TopP:        c.topP,
		MaxTokens:   c.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if chat.Error != nil {
		return "", fmt.Errorf("API error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}
