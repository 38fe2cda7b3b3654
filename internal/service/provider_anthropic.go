package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/timmy/examwatch/internal/config"
	"github.com/timmy/examwatch/internal/prompts"
)

// AnthropicProvider calls the Messages API through the official SDK.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	maxText     int
	temperature float64
}

// NewAnthropicProvider creates an Anthropic provider. A base URL pointing
// at the OpenAI default is ignored.
func NewAnthropicProvider(cfg config.ExtractionConfig) *AnthropicProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" && !strings.Contains(cfg.BaseURL, "openai.com") {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		maxText:     cfg.MaxTextLen,
		temperature: cfg.Temperature,
	}
}

// Name implements ExtractionProvider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// ExtractStructured implements ExtractionProvider.
func (p *AnthropicProvider) ExtractStructured(ctx context.Context, text string, ec ExtractionContext) (RawExam, error) {
	prompt := prompts.BuildExtractionPrompt(ec.hints(), clipText(text, p.maxText))

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(p.temperature),
		System:      []anthropic.TextBlockParam{{Text: prompts.ExtractionSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return parseRawExam(sb.String())
}
