package source

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
)

// ReadFeed parses an RSS or Atom body. Each item's link, or its GUID when
// that is an http URL, is taken as the document URL. Items without an http
// URL are skipped.
func ReadFeed(ctx context.Context, body []byte) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	links := make([]Link, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		link := item.Link
		if link == "" && strings.HasPrefix(item.GUID, "http") {
			link = item.GUID
		}
		link = strings.TrimSpace(link)
		if !strings.HasPrefix(link, "http") {
			continue
		}
		links = append(links, Link{
			URL:        link,
			AnchorText: collapseWhitespace(item.Title),
			Context:    truncate(collapseWhitespace(item.Description), maxContextLength),
		})
	}

	return links, nil
}

// FeedFingerprint is the change signal of a feed: the MD5 of its distinct
// item URLs, sorted and newline-joined. Item order and metadata edits do not
// count as changes.
func FeedFingerprint(links []Link) string {
	urls := make([]string, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		urls = append(urls, l.URL)
	}
	sort.Strings(urls)
	return Fingerprint(strings.Join(urls, "\n"))
}
