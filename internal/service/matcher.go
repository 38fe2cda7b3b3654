package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// MatchTrigger asks the downstream matcher to evaluate a new exam.
type MatchTrigger interface {
	Trigger(ctx context.Context, examID string) error
}

// HTTPMatchTrigger posts {"exam_id"} to the matcher endpoint.
type HTTPMatchTrigger struct {
	client *resty.Client
	url    string
}

// NewMatchTrigger returns an HTTP trigger, or a no-op when url is empty.
func NewMatchTrigger(url, secret string, timeout time.Duration) MatchTrigger {
	if url == "" {
		return noopMatchTrigger{}
	}
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if secret != "" {
		client.SetHeader("Authorization", "Bearer "+secret)
	}
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPMatchTrigger{client: client, url: url}
}

// Trigger implements MatchTrigger.
func (m *HTTPMatchTrigger) Trigger(ctx context.Context, examID string) error {
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"exam_id": examID}).
		Post(m.url)
	if err != nil {
		return fmt.Errorf("matcher request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("matcher rejected: status %d", resp.StatusCode())
	}
	return nil
}

type noopMatchTrigger struct{}

func (noopMatchTrigger) Trigger(context.Context, string) error { return nil }
