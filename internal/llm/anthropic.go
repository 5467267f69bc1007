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

	"golang.org/x/time/rate"
)

// AnthropicSummarizer calls the Anthropic Messages API.
type AnthropicSummarizer struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
	limiter   *rate.Limiter
}

type AnthropicOptions struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	Timeout       time.Duration
	RatePerMinute int
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewAnthropicSummarizer(opts AnthropicOptions) *AnthropicSummarizer {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.anthropic.com/v1"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 200
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &AnthropicSummarizer{
		apiKey:    opts.APIKey,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   newLimiter(opts.RatePerMinute),
	}
}

func (s *AnthropicSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("anthropic API key not configured")
	}
	if err := wait(ctx, s.limiter); err != nil {
		return "", err
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: summaryPrompt(text)}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		msg := string(data)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", &StatusError{Service: "anthropic", Code: resp.StatusCode, Body: msg}
	}

	var out anthropicResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var parts []string
	for _, c := range out.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic response has no text content")
	}
	return strings.Join(parts, "\n"), nil
}
