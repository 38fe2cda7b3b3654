package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/examwatch/internal/config"
)

// Message is one rendered email.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Mailer sends one message through the external channel.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPMailer sends through a Resend-compatible JSON API.
type HTTPMailer struct {
	client   *resty.Client
	endpoint string
	from     string
}

// NewHTTPMailer creates an HTTPMailer.
func NewHTTPMailer(cfg config.MailConfig) *HTTPMailer {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.SetTimeout(timeout)
	return &HTTPMailer{client: client, endpoint: cfg.Endpoint, from: cfg.From}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

type sendError struct {
	Message string `json:"message"`
}

// Send implements Mailer.
func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}

	var apiErr sendError
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(sendRequest{From: m.from, To: []string{to}, Subject: msg.Subject, HTML: msg.HTML, Text: msg.Text}).
		SetError(&apiErr).
		Post(m.endpoint)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}
	if !resp.IsSuccess() {
		if apiErr.Message != "" {
			return fmt.Errorf("mail API error: status %d: %s", resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("mail API error: status %d", resp.StatusCode())
	}
	return nil
}
