package source

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// documentKeywords mark an anchor as a likely notification document.
var documentKeywords = []string{
	".pdf", "notification", "advertisement", "advt",
	"recruitment", "vacancy", "download", "notice",
}

// inlinePDFPattern finds quoted PDF URLs inside event-handler attributes.
var inlinePDFPattern = regexp.MustCompile(`['"]([^'"]+\.pdf[^'"]*)['"]`)

const maxContextLength = 300

// ExtractLinks finds candidate document links in markup. Anchors matching a
// document keyword and PDF URLs embedded in on* handlers are merged and
// deduplicated by absolute URL, anchors first. Links that cannot be resolved
// to an absolute http(s) URL are dropped.
func ExtractLinks(markup []byte, baseURL string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		base = &url.URL{}
	}

	var links []Link
	seen := make(map[string]struct{})
	add := func(raw, anchor string, sel *goquery.Selection) {
		abs, ok := resolveLink(base, raw)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, Link{
			URL:        abs,
			AnchorText: truncate(anchor, maxContextLength),
			Context:    linkContext(sel),
		})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := collapseWhitespace(s.Text())
		if matchesKeyword(href) || matchesKeyword(text) {
			add(href, text, s)
		}
	})

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range s.Nodes[0].Attr {
			if !strings.HasPrefix(strings.ToLower(attr.Key), "on") {
				continue
			}
			for _, m := range inlinePDFPattern.FindAllStringSubmatch(attr.Val, -1) {
				add(m[1], collapseWhitespace(s.Text()), s)
			}
		}
	})

	return links, nil
}

func matchesKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range documentKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// resolveLink turns raw into an absolute http(s) URL without fragment.
func resolveLink(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if raw == "" || strings.HasPrefix(raw, "#") ||
		strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

// linkContext returns the text of the enclosing table row or list item,
// falling back to the parent element.
func linkContext(s *goquery.Selection) string {
	container := s.Closest("tr, li")
	if container.Length() == 0 {
		container = s.Parent()
	}
	return truncate(collapseWhitespace(container.Text()), maxContextLength)
}
