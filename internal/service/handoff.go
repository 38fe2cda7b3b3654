package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/examwatch/internal/domain"
)

// HandoffSecretHeader carries the shared secret on handoff calls.
const HandoffSecretHeader = "X-Handoff-Secret"

// HandoffPayload tells the pipeline that a new document is stored.
type HandoffPayload struct {
	SourceID           string    `json:"source_id"`
	SourceName         string    `json:"source_name"`
	Category           string    `json:"category"`
	State              string    `json:"state,omitempty"`
	SourceURL          string    `json:"source_url"`
	StoragePath        string    `json:"storage_path"`
	AnchorText         string    `json:"anchor_text,omitempty"`
	Context            string    `json:"context,omitempty"`
	ContentFingerprint string    `json:"content_fingerprint"`
	IngestionEventID   string    `json:"ingestion_event_id"`
	ScrapedAt          time.Time `json:"scraped_at"`
}

// PayloadFromEvent builds the handoff body for an event.
func PayloadFromEvent(e *domain.IngestionEvent) HandoffPayload {
	return HandoffPayload{
		SourceID:           e.SourceID,
		SourceName:         e.SourceName,
		Category:           e.Category,
		State:              e.State,
		SourceURL:          e.SourceURL,
		StoragePath:        e.StorageKey,
		AnchorText:         e.AnchorText,
		Context:            e.Context,
		ContentFingerprint: e.Fingerprint,
		IngestionEventID:   e.ID,
		ScrapedAt:          e.ScrapedAt,
	}
}

// Handoff delivers a new-document notice to the extraction pipeline.
// Callers treat errors as non-fatal.
type Handoff interface {
	Handoff(ctx context.Context, payload HandoffPayload) error
}

// HTTPHandoff posts the payload to a remote pipeline entry point.
type HTTPHandoff struct {
	client *resty.Client
	url    string
}

// NewHTTPHandoff creates an HTTPHandoff.
func NewHTTPHandoff(url, secret string, timeout time.Duration) *HTTPHandoff {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader(HandoffSecretHeader, secret)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPHandoff{client: client, url: url}
}

// Handoff implements Handoff.
func (h *HTTPHandoff) Handoff(ctx context.Context, payload HandoffPayload) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(h.url)
	if err != nil {
		return fmt.Errorf("handoff request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("handoff rejected: status %d", resp.StatusCode())
	}
	return nil
}

// EventHandler processes one ingestion event.
type EventHandler interface {
	Handle(ctx context.Context, eventID string) (Outcome, error)
}

// LocalHandoff runs the pipeline in-process and synchronously.
type LocalHandoff struct {
	handler EventHandler
}

// NewLocalHandoff creates a LocalHandoff.
func NewLocalHandoff(handler EventHandler) *LocalHandoff {
	return &LocalHandoff{handler: handler}
}

// Handoff implements Handoff.
func (h *LocalHandoff) Handoff(ctx context.Context, payload HandoffPayload) error {
	_, err := h.handler.Handle(ctx, payload.IngestionEventID)
	return err
}
