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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider calls the Gemini generateContent REST endpoint.
type GeminiProvider struct {
	client      *resty.Client
	endpoint    string
	maxTokens   int
	maxText     int
	temperature float64
}

// NewGeminiProvider creates a Gemini provider. A base URL pointing at the
// OpenAI default is ignored.
func NewGeminiProvider(cfg config.ExtractionConfig) *GeminiProvider {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("x-goog-api-key", cfg.APIKey)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" || strings.Contains(baseURL, "openai.com") {
		baseURL = defaultGeminiBaseURL
	}

	return &GeminiProvider{
		client:      client,
		endpoint:    fmt.Sprintf("%s/models/%s:generateContent", baseURL, cfg.Model),
		maxTokens:   cfg.MaxTokens,
		maxText:     cfg.MaxTextLen,
		temperature: cfg.Temperature,
	}
}

// Name implements ExtractionProvider.
func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		ResponseMimeType string  `json:"responseMimeType"`
		MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
		Temperature      float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ExtractStructured implements ExtractionProvider.
func (p *GeminiProvider) ExtractStructured(ctx context.Context, text string, ec ExtractionContext) (RawExam, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: prompts.ExtractionSystemPrompt}}},
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompts.BuildExtractionPrompt(ec.hints(), clipText(text, p.maxText))}},
		}},
	}
	req.GenerationConfig.ResponseMimeType = "application/json"
	req.GenerationConfig.MaxOutputTokens = p.maxTokens
	req.GenerationConfig.Temperature = p.temperature

	var resp geminiResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("gemini API error: %s", resp.Error.Message)
	}
	if !httpResp.IsSuccess() {
		return nil, fmt.Errorf("gemini API error: status %d", httpResp.StatusCode())
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return parseRawExam(sb.String())
}
