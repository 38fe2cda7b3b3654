package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/examwatch/internal/config"
)

const examJSON = `{"title":"SSC CGL 2026","application_end_date":"2026-11-30","max_age_general":27,"confidence":"high"}`

func TestParseRawExam(t *testing.T) {
	raw, err := parseRawExam("Here you go:\n```json\n" + examJSON + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "SSC CGL 2026", raw["title"])
	assert.Equal(t, float64(27), raw["max_age_general"])

	_, err = parseRawExam("I could not read the document.")
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = parseRawExam("{not json}")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClipText(t *testing.T) {
	assert.Equal(t, "abc", clipText("abc", 0))
	assert.Equal(t, "ab", clipText("abc", 2))
	assert.Equal(t, "परी", clipText("परीक्षा", 3))
}

func TestOpenAIProvider_ExtractStructured(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": examJSON}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.ExtractionConfig{
		Model:      "gpt-4o-mini",
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1/",
		Timeout:    5 * time.Second,
		MaxTextLen: 10,
	})
	raw, err := p.ExtractStructured(context.Background(), strings.Repeat("a", 50), ExtractionContext{SourceName: "SSC"})
	require.NoError(t, err)

	assert.Equal(t, "SSC CGL 2026", raw["title"])
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "SSC")
	assert.NotContains(t, got.Messages[1].Content, strings.Repeat("a", 11), "text is clipped")
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestOpenAIProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.ExtractionConfig{Model: "m", BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := p.ExtractStructured(context.Background(), "text", ExtractionContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit reached")
}

func TestGeminiProvider_ExtractStructured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		require.NotNil(t, req.SystemInstruction)

		// The reply is split across parts.
		half := len(examJSON) / 2
		resp := map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"parts": []map[string]string{{"text": examJSON[:half]}, {"text": examJSON[half:]}},
				},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewGeminiProvider(config.ExtractionConfig{
		Model:   "gemini-2.0-flash",
		APIKey:  "g-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})
	raw, err := p.ExtractStructured(context.Background(), "notice text", ExtractionContext{})
	require.NoError(t, err)
	assert.Equal(t, "2026-11-30", raw["application_end_date"])
	assert.Equal(t, "gemini", p.Name())
}

func TestNewExtractionProvider(t *testing.T) {
	for _, name := range []string{"openai", "anthropic", "gemini"} {
		p, err := NewExtractionProvider(config.ExtractionConfig{Provider: name, Model: "m", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := NewExtractionProvider(config.ExtractionConfig{Provider: "ollama"})
	assert.Error(t, err)
}

func TestAnthropicProvider_ExtractStructured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "a-key", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{
			"id":          "msg_01",
			"type":        "message",
			"role":        "assistant",
			"model":       "sonnet-test",
			"stop_reason": "end_turn",
			"content":     []map[string]string{{"type": "text", "text": examJSON}},
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 20},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.ExtractionConfig{
		Model:   "sonnet-test",
		APIKey:  "a-key",
		BaseURL: srv.URL + "/",
		Timeout: 5 * time.Second,
	})
	raw, err := p.ExtractStructured(context.Background(), "notice text", ExtractionContext{})
	require.NoError(t, err)
	assert.Equal(t, "high", raw["confidence"])
}
