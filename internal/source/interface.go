// Package source fetches monitored sites, decides whether they changed and
// enumerates the document links they publish.
package source

import (
	"context"
)

// Page is the raw body of one fetched URL.
type Page struct {
	URL        string
	Body       []byte
	StatusCode int
}

// Fetcher retrieves one URL. Implementations return *FetchError for every
// failure so callers can classify it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// Link is one candidate document discovered on a source.
type Link struct {
	URL        string `json:"url"`
	AnchorText string `json:"anchor_text,omitempty"`
	Context    string `json:"context,omitempty"`
}
