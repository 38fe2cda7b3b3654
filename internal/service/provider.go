package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/examwatch/internal/config"
	"github.com/timmy/examwatch/internal/prompts"
)

// ErrMalformedResponse is returned when a provider reply holds no JSON object.
var ErrMalformedResponse = errors.New("provider returned no JSON object")

// RawExam is the unvalidated field map returned by a provider. Values keep
// their JSON types; ValidateExam coerces them.
type RawExam map[string]interface{}

// ExtractionContext is what the pipeline already knows about a document.
type ExtractionContext struct {
	SourceID   string
	SourceName string
	Category   string
	State      string
	SourceURL  string
	AnchorText string
}

func (c ExtractionContext) hints() prompts.ExtractionHints {
	return prompts.ExtractionHints{
		SourceName: c.SourceName,
		Category:   c.Category,
		State:      c.State,
		SourceURL:  c.SourceURL,
		AnchorText: c.AnchorText,
	}
}

// ExtractionProvider turns document text into raw exam fields.
type ExtractionProvider interface {
	// Name identifies the provider in event provenance.
	Name() string
	ExtractStructured(ctx context.Context, text string, ec ExtractionContext) (RawExam, error)
}

// NewExtractionProvider selects the provider named in cfg.
func NewExtractionProvider(cfg config.ExtractionConfig) (ExtractionProvider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.Provider)
	}
}

// parseRawExam decodes the first JSON object found in a model reply,
// tolerating markdown fences and surrounding prose.
func parseRawExam(reply string) (RawExam, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, ErrMalformedResponse
	}

	var raw RawExam
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return raw, nil
}

// clipText bounds the text sent to a provider.
func clipText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max])
}
