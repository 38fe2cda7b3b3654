package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/examwatch/internal/config"
	"github.com/timmy/examwatch/internal/prompts"
)

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client      *resty.Client
	model       string
	endpoint    string
	maxTokens   int
	maxText     int
	temperature float64
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
// Parameters:
//   - cfg: extraction configuration including model, key and base URL.
//
// Returns:
//   - *OpenAIProvider: initialized client wrapper.
func NewOpenAIProvider(cfg config.ExtractionConfig) *OpenAIProvider {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	// Set timeout to prevent hanging requests
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client.SetTimeout(timeout)

	// Default to OpenAI endpoint if not specified
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIProvider{
		client:      client,
		model:       cfg.Model,
		endpoint:    baseURL + "/chat/completions",
		maxTokens:   cfg.MaxTokens,
		maxText:     cfg.MaxTextLen,
		temperature: cfg.Temperature,
	}
}

// Name implements ExtractionProvider.
func (p *OpenAIProvider) Name() string { return "openai" }

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ExtractStructured implements ExtractionProvider.
func (p *OpenAIProvider) ExtractStructured(ctx context.Context, text string, ec ExtractionContext) (RawExam, error) {
	req := openAIRequest{
		Model: p.model,
		Messages: []openAIMessage{
			{Role: "system", Content: prompts.ExtractionSystemPrompt},
			{Role: "user", Content: prompts.BuildExtractionPrompt(ec.hints(), clipText(text, p.maxText))},
		},
		MaxTokens:      p.maxTokens,
		Temperature:    p.temperature,
		ResponseFormat: &openAIFormat{Type: "json_object"},
	}

	var resp openAIResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("openai API error: %s", resp.Error.Message)
	}
	if !httpResp.IsSuccess() {
		return nil, fmt.Errorf("openai API error: status %d", httpResp.StatusCode())
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return parseRawExam(resp.Choices[0].Message.Content)
}
