package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/examwatch/internal/domain"
)

// Detection is the outcome of one change check for one source.
type Detection struct {
	Changed     bool
	Fingerprint string
	// Links is populated only when Changed is set.
	Links      []Link
	HTTPStatus int
	// ErrorKind is empty on success.
	ErrorKind ErrorKind
	Err       error
}

// Failed reports whether the source could not be fetched or parsed.
func (d Detection) Failed() bool {
	return d.ErrorKind != ""
}

// Detector fetches a source's URLs, fingerprints their content and compares
// it with the last known fingerprint.
type Detector struct {
	static   Fetcher
	rendered Fetcher
	delay    time.Duration
}

// NewDetector creates a Detector. rendered may be nil when no source uses
// the rendered method. delay is applied between URLs of one source.
func NewDetector(static, rendered Fetcher, delay time.Duration) *Detector {
	return &Detector{static: static, rendered: rendered, delay: delay}
}

func (d *Detector) fetcherFor(method domain.FetchMethod) Fetcher {
	if method == domain.FetchMethodRendered && d.rendered != nil {
		return d.rendered
	}
	return d.static
}

// Detect never returns an error; failures are reported in the Detection.
func (d *Detector) Detect(ctx context.Context, src domain.SourceConfig, lastFingerprint string) Detection {
	if src.Method == domain.FetchMethodRendered && d.rendered == nil {
		return Detection{ErrorKind: ErrorGeneric, Err: fmt.Errorf("source %s needs a browser but none is configured", src.ID)}
	}

	fetcher := d.fetcherFor(src.Method)
	pages := make([]*Page, 0, len(src.URLs))
	for i, u := range src.URLs {
		if i > 0 && d.delay > 0 {
			select {
			case <-ctx.Done():
				return Detection{ErrorKind: classifyErr(ctx.Err()), Err: ctx.Err()}
			case <-time.After(d.delay):
			}
		}
		page, err := fetcher.Fetch(ctx, u)
		if err != nil {
			return Detection{ErrorKind: KindOf(err), HTTPStatus: StatusOf(err), Err: err}
		}
		pages = append(pages, page)
	}

	if src.Method == domain.FetchMethodFeed {
		return d.detectFeed(ctx, pages, lastFingerprint)
	}
	return d.detectHTML(src, pages, lastFingerprint)
}

func (d *Detector) detectHTML(src domain.SourceConfig, pages []*Page, lastFingerprint string) Detection {
	texts := make([]string, 0, len(pages))
	status := 0
	for _, p := range pages {
		text, err := NormalizeContent(p.Body, src.Selectors)
		if err != nil {
			return Detection{ErrorKind: ErrorGeneric, HTTPStatus: p.StatusCode, Err: err}
		}
		texts = append(texts, text)
		status = p.StatusCode
	}

	det := Detection{
		Fingerprint: Fingerprint(strings.Join(texts, "\n")),
		HTTPStatus:  status,
	}
	if det.Fingerprint == lastFingerprint {
		return det
	}
	det.Changed = true

	seen := make(map[string]struct{})
	for _, p := range pages {
		links, err := ExtractLinks(p.Body, src.ResolveBase(p.URL))
		if err != nil {
			return Detection{ErrorKind: ErrorGeneric, HTTPStatus: p.StatusCode, Err: err}
		}
		for _, l := range links {
			if _, ok := seen[l.URL]; ok {
				continue
			}
			seen[l.URL] = struct{}{}
			det.Links = append(det.Links, l)
		}
	}
	return det
}

func (d *Detector) detectFeed(ctx context.Context, pages []*Page, lastFingerprint string) Detection {
	var all []Link
	status := 0
	for _, p := range pages {
		links, err := ReadFeed(ctx, p.Body)
		if err != nil {
			return Detection{ErrorKind: ErrorGeneric, HTTPStatus: p.StatusCode, Err: err}
		}
		all = append(all, links...)
		status = p.StatusCode
	}

	det := Detection{
		Fingerprint: FeedFingerprint(all),
		HTTPStatus:  status,
	}
	if det.Fingerprint == lastFingerprint {
		return det
	}
	det.Changed = true

	seen := make(map[string]struct{}, len(all))
	for _, l := range all {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		det.Links = append(det.Links, l)
	}
	return det
}
