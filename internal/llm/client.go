/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pgedge-nl2sql/internal/config"
	"pgedge-nl2sql/internal/logging"
)

// Default API endpoints
const (
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	DefaultOllamaBaseURL    = "http://localhost:11434"

	anthropicVersion = "2023-06-01"
	maxErrorBodySize = 64 * 1024
)

// Message is one role-tagged chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures a Client
type Options struct {
	Provider   string // "openai", "anthropic" or "ollama"
	APIKey     string // Not used by Ollama
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client // Optional; built from Timeout when nil
}

// Client handles interactions with chat completion APIs
type Client struct {
	provider   string
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case config.ProviderAnthropic:
		return "claude-sonnet-4-5"
	case config.ProviderOllama:
		return "llama3.1"
	default:
		return "gpt-4"
	}
}

// NewClient creates a new LLM client, filling provider defaults
func NewClient(opts Options) *Client {
	if opts.Provider == "" {
		opts.Provider = config.ProviderOpenAI
	}
	if opts.Model == "" {
		opts.Model = DefaultModel(opts.Provider)
	}
	if opts.BaseURL == "" {
		switch opts.Provider {
		case config.ProviderAnthropic:
			opts.BaseURL = DefaultAnthropicBaseURL
		case config.ProviderOllama:
			opts.BaseURL = DefaultOllamaBaseURL
		default:
			opts.BaseURL = DefaultOpenAIBaseURL
		}
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		provider:   opts.Provider,
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
		httpClient: httpClient,
	}
}

// NewClientFromConfig creates a client from the llm configuration section
func NewClientFromConfig(cfg *config.LLMConfig) *Client {
	return NewClient(Options{
		Provider:  cfg.Provider,
		APIKey:    cfg.APIKey(),
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.TimeoutDuration(),
	})
}

// IsConfigured returns whether the client is properly configured
func (c *Client) IsConfigured() bool {
	switch c.provider {
	case config.ProviderOpenAI, config.ProviderAnthropic:
		return c.apiKey != ""
	case config.ProviderOllama:
		return c.baseURL != "" && c.model != ""
	default:
		return false
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// ProviderName returns the display name of the provider
func (c *Client) ProviderName() string {
	switch c.provider {
	case config.ProviderAnthropic:
		return "Anthropic"
	case config.ProviderOllama:
		return "Ollama"
	default:
		return "OpenAI"
	}
}

// Complete sends messages and returns the raw completion text
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("LLM client not configured")
	}

	startTime := time.Now()
	var (
		text string
		err  error
	)
	switch c.provider {
	case config.ProviderOpenAI:
		text, err = c.completeOpenAI(ctx, c.baseURL+"/chat/completions", messages, temperature, true)
	case config.ProviderOllama:
		text, err = c.completeOpenAI(ctx, c.baseURL+"/v1/chat/completions", messages, temperature, false)
	case config.ProviderAnthropic:
		text, err = c.completeAnthropic(ctx, messages, temperature)
	default:
		return "", fmt.Errorf("unsupported LLM provider: %s", c.provider)
	}

	logging.Debug("llm completion",
		"provider", c.provider,
		"model", c.model,
		"duration_ms", time.Since(startTime).Milliseconds(),
		"error", err,
	)
	return text, err
}

// completeOpenAI talks to OpenAI and OpenAI-compatible servers such as Ollama
func (c *Client) completeOpenAI(ctx context.Context, url string, messages []Message, temperature float64, auth bool) (string, error) {
	reqBody := openAIRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
	}

	headers := map[string]string{}
	if auth {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp openAIResponse
	if err := c.postJSON(ctx, url, headers, reqBody, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

// completeAnthropic uses the Anthropic messages API, which carries the
// system prompt outside the message list
func (c *Client) completeAnthropic(ctx context.Context, messages []Message, temperature float64) (string, error) {
	reqBody := anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
	}
	var system []string
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		reqBody.Messages = append(reqBody.Messages, m)
	}
	reqBody.System = strings.Join(system, "\n\n")

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := c.postJSON(ctx, c.baseURL+"/messages", headers, reqBody, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no content in response")
	}

	return sb.String(), nil
}

// postJSON sends body as JSON and decodes a 200 response into out
func (c *Client) postJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("failed to close HTTP response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Message:    describeErrorBody(resp.Header.Get("Content-Type"), errBody),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// StatusError is returned for non-200 API responses
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

// Internal types for the OpenAI chat completions API
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
}

type openAIChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Internal types for the Anthropic messages API
type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type anthropicResponse struct {
	ID      string                  `json:"id"`
	Type    string                  `json:"type"`
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
