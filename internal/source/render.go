package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/timmy/examwatch/internal/logger"
)

// RenderedFetcher loads pages in headless Chrome for sites whose listings are
// built by script. The browser is started on first use and shared by all
// calls; each Fetch opens and closes its own tab.
type RenderedFetcher struct {
	remoteURL string
	timeout   time.Duration

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewRenderedFetcher creates a RenderedFetcher. An empty remoteURL launches
// a local headless Chrome.
func NewRenderedFetcher(remoteURL string, timeout time.Duration) *RenderedFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RenderedFetcher{remoteURL: remoteURL, timeout: timeout}
}

func (f *RenderedFetcher) connect(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	wsURL := f.remoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		f.lnch = l
		logger.CtxInfo(ctx, "Launched local chrome at %s", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	f.browser = b
	return b, nil
}

// Fetch implements Fetcher. Rendered pages carry no HTTP status, so a
// successful load reports 200.
func (f *RenderedFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	b, err := f.connect(ctx)
	if err != nil {
		return nil, &FetchError{Kind: ErrorGeneric, URL: url, Err: err}
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, &FetchError{Kind: ErrorGeneric, URL: url, Err: fmt.Errorf("browser: create tab: %w", err)}
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	p := page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return nil, &FetchError{Kind: classifyErr(err), URL: url, Err: err}
	}
	if err := p.WaitLoad(); err != nil {
		return nil, &FetchError{Kind: classifyErr(err), URL: url, Err: err}
	}

	html, err := p.HTML()
	if err != nil {
		return nil, &FetchError{Kind: classifyErr(err), URL: url, Err: err}
	}

	return &Page{URL: url, Body: []byte(html), StatusCode: 200}, nil
}

// Close shuts the browser down if it was started.
func (f *RenderedFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Kill()
		f.lnch = nil
	}
	return err
}
