package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	ErrorBlocked ErrorKind = "BLOCKED"
	ErrorTimeout ErrorKind = "TIMEOUT"
	ErrorGeneric ErrorKind = "ERROR"
)

// FetchError is a classified transport failure.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetching %s: status %d", e.Kind, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// classifyStatus maps a non-2xx HTTP status to an ErrorKind.
func classifyStatus(code int) ErrorKind {
	if code == http.StatusForbidden || code == http.StatusTooManyRequests {
		return ErrorBlocked
	}
	return ErrorGeneric
}

// classifyErr maps a transport error to an ErrorKind.
func classifyErr(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}
	return ErrorGeneric
}

// KindOf returns the ErrorKind of err, or ErrorGeneric when err was not
// produced by a Fetcher.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return classifyErr(err)
}

// StatusOf returns the HTTP status carried by err, if any.
func StatusOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

// HTTPFetcher fetches plain pages and feeds over HTTP.
type HTTPFetcher struct {
	client  *resty.Client
	maxSize int64
}

// HTTPFetcherConfig holds options for HTTPFetcher.
type HTTPFetcherConfig struct {
	Timeout   time.Duration
	UserAgent string
	// MaxBytes caps the accepted body size; 0 means unlimited.
	MaxBytes int64
}

// NewHTTPFetcher creates a resty-backed Fetcher.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.MaxBytes > 0 {
		// resty aborts the read once the limit is crossed.
		client.SetResponseBodyLimit(int(cfg.MaxBytes))
	}
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &HTTPFetcher{client: client, maxSize: cfg.MaxBytes}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, &FetchError{Kind: ErrorGeneric, URL: url, Err: fmt.Errorf("body exceeds %d bytes: %w", f.maxSize, err)}
	}
	if err != nil {
		return nil, &FetchError{Kind: classifyErr(err), URL: url, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &FetchError{Kind: classifyStatus(resp.StatusCode()), StatusCode: resp.StatusCode(), URL: url}
	}

	return &Page{URL: url, Body: resp.Body(), StatusCode: resp.StatusCode()}, nil
}
