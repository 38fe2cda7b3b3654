package source

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MinContentLength is the shortest selector text accepted as page content.
const MinContentLength = 100

// nonContentSelectors lists elements stripped before fingerprinting.
const nonContentSelectors = "script, style, noscript, nav, header, footer, iframe, " +
	"[class*=advert], [id*=advert], .ads, .ad"

// defaultContentSelectors are tried after any source-specific selectors.
var defaultContentSelectors = []string{"main", "#content", ".content", "article", "table"}

// NormalizeContent returns the whitespace-collapsed text of the page's main
// content. Selectors are tried in order, then the defaults; the first whose
// text reaches MinContentLength wins, otherwise the whole body is used.
func NormalizeContent(markup []byte, selectors []string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find(nonContentSelectors).Remove()

	candidates := make([]string, 0, len(selectors)+len(defaultContentSelectors))
	candidates = append(candidates, selectors...)
	candidates = append(candidates, defaultContentSelectors...)

	for _, sel := range candidates {
		text := collapseWhitespace(doc.Find(sel).Text())
		if len(text) >= MinContentLength {
			return text, nil
		}
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return collapseWhitespace(doc.Text()), nil
	}
	return collapseWhitespace(body.Text()), nil
}

// Fingerprint returns the hex MD5 of text. It is a change signal, not a
// content address.
func Fingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
