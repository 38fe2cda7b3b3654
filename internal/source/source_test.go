package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/examwatch/internal/domain"
)

const listingPage = `<html><head><title>Recruitment</title><script>var x = 1;</script></head>
<body>
<nav>Home | About | Contact</nav>
<div class="ad">Buy now</div>
<main>
<table>
<tr><td>Advt No. 05/2026 Combined Graduate Level Examination</td><td><a href="/docs/cgl-2026.pdf">Download</a></td></tr>
<tr><td>Stenographer Grade C and D notice for the current recruitment year</td><td><a href="notice.php?id=7">View Notice</a></td></tr>
<tr><td>Old circular</td><td><a href="/about.html">About us</a></td></tr>
<tr><td>Inline</td><td><span onclick="window.open('/files/inline.pdf')">Open</span></td></tr>
<tr><td>Skip</td><td><a href="javascript:void(0)">notification</a> <a href="mailto:a@b.c">notification</a> <a href="#notice">notice</a></td></tr>
</table>
</main>
<footer>Copyright</footer>
</body></html>`

func TestNormalizeContent_StripsNonContent(t *testing.T) {
	text, err := NormalizeContent([]byte(listingPage), nil)
	require.NoError(t, err)

	assert.Contains(t, text, "Combined Graduate Level Examination")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "Buy now")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "  ", "whitespace collapsed")
}

func TestNormalizeContent_ShortSelectorsFallBackToBody(t *testing.T) {
	page := `<html><body><main>tiny</main><p>` + strings.Repeat("body text ", 20) + `</p></body></html>`
	text, err := NormalizeContent([]byte(page), []string{"#missing"})
	require.NoError(t, err)
	assert.Contains(t, text, "tiny")
	assert.Contains(t, text, "body text")
}

func TestNormalizeContent_SourceSelectorWins(t *testing.T) {
	page := `<html><body><div id="news">` + strings.Repeat("latest ", 20) + `</div><main>` +
		strings.Repeat("main ", 30) + `</main></body></html>`
	text, err := NormalizeContent([]byte(page), []string{"#news"})
	require.NoError(t, err)
	assert.NotContains(t, text, "main")
}

func TestExtractLinks(t *testing.T) {
	links, err := ExtractLinks([]byte(listingPage), "https://ssc.example.gov/recruitment/")
	require.NoError(t, err)

	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	assert.Equal(t, []string{
		"https://ssc.example.gov/docs/cgl-2026.pdf",
		"https://ssc.example.gov/recruitment/notice.php?id=7",
		"https://ssc.example.gov/files/inline.pdf",
	}, urls)

	assert.Equal(t, "Download", links[0].AnchorText)
	assert.Contains(t, links[0].Context, "Advt No. 05/2026")
	assert.Equal(t, "Open", links[2].AnchorText)
}

func TestExtractLinks_DedupesAcrossHeuristics(t *testing.T) {
	page := `<ul>
<li><a href="/a.pdf" onclick="track('/a.pdf')">Notification</a></li>
<li><a href="https://x.example/a.pdf#page=2">again</a></li>
</ul>`
	links, err := ExtractLinks([]byte(page), "https://x.example/")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://x.example/a.pdf", links[0].URL)
	assert.Equal(t, "Notification", links[0].AnchorText)
}

func TestExtractLinks_ContextTruncated(t *testing.T) {
	page := `<li>` + strings.Repeat("word ", 200) + `<a href="/x.pdf">pdf</a></li>`
	links, err := ExtractLinks([]byte(page), "https://x.example/")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.LessOrEqual(t, len([]rune(links[0].Context)), maxContextLength)
}

const feedBody = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Employment News</title>
<item><title>UPSC CSE 2026</title><link>https://news.example/upsc.pdf</link></item>
<item><title>GUID only</title><guid>https://news.example/guid.pdf</guid></item>
<item><title>No link</title><guid>tag:news,1</guid></item>
</channel></rss>`

func TestReadFeed(t *testing.T) {
	links, err := ReadFeed(context.Background(), []byte(feedBody))
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "https://news.example/upsc.pdf", links[0].URL)
	assert.Equal(t, "UPSC CSE 2026", links[0].AnchorText)
	assert.Equal(t, "https://news.example/guid.pdf", links[1].URL)
}

func TestFeedFingerprint_OrderInsensitive(t *testing.T) {
	a := []Link{{URL: "https://a"}, {URL: "https://b"}}
	b := []Link{{URL: "https://b"}, {URL: "https://a"}, {URL: "https://a"}}
	assert.Equal(t, FeedFingerprint(a), FeedFingerprint(b))
	assert.NotEqual(t, FeedFingerprint(a), FeedFingerprint(a[:1]))
}

func newFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPFetcherConfig{Timeout: 2 * time.Second, UserAgent: "examwatch-test"})
}

func TestDetector_ChangedThenUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	src := domain.SourceConfig{ID: "ssc", Method: domain.FetchMethodStatic, URLs: []string{srv.URL + "/recruitment/"}}
	d := NewDetector(newFetcher(), nil, 0)

	first := d.Detect(context.Background(), src, "")
	require.False(t, first.Failed(), "%v", first.Err)
	assert.True(t, first.Changed)
	assert.Equal(t, http.StatusOK, first.HTTPStatus)
	assert.Len(t, first.Links, 3)

	second := d.Detect(context.Background(), src, first.Fingerprint)
	require.False(t, second.Failed())
	assert.False(t, second.Changed)
	assert.Empty(t, second.Links)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestDetector_IgnoresChromeChanges(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		// only the script and footer differ between responses
		page := strings.Replace(listingPage, "var x = 1;", "var x = "+string('0'+n)+";", 1)
		page = strings.Replace(page, "Copyright", "Copyright "+string('0'+n), 1)
		w.Write([]byte(page))
	}))
	defer srv.Close()

	src := domain.SourceConfig{ID: "ssc", Method: domain.FetchMethodStatic, URLs: []string{srv.URL}}
	d := NewDetector(newFetcher(), nil, 0)

	first := d.Detect(context.Background(), src, "")
	second := d.Detect(context.Background(), src, first.Fingerprint)
	assert.False(t, second.Changed)
}

func TestDetector_ClassifiesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "/slow":
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte("late"))
		}
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(HTTPFetcherConfig{Timeout: 50 * time.Millisecond})
	d := NewDetector(fetcher, nil, 0)

	tests := []struct {
		path   string
		kind   ErrorKind
		status int
	}{
		{"/forbidden", ErrorBlocked, 403},
		{"/limited", ErrorBlocked, 429},
		{"/broken", ErrorGeneric, 500},
		{"/slow", ErrorTimeout, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			src := domain.SourceConfig{ID: "s", Method: domain.FetchMethodStatic, URLs: []string{srv.URL + tt.path}}
			det := d.Detect(context.Background(), src, "")
			assert.True(t, det.Failed())
			assert.Equal(t, tt.kind, det.ErrorKind)
			assert.Equal(t, tt.status, det.HTTPStatus)
			assert.False(t, det.Changed)
			assert.Empty(t, det.Links)
		})
	}
}

func TestDetector_RenderedWithoutBrowser(t *testing.T) {
	d := NewDetector(newFetcher(), nil, 0)
	det := d.Detect(context.Background(), domain.SourceConfig{ID: "r", Method: domain.FetchMethodRendered, URLs: []string{"http://127.0.0.1:1"}}, "")
	assert.Equal(t, ErrorGeneric, det.ErrorKind)
}

func TestDetector_Feed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	src := domain.SourceConfig{ID: "feed", Method: domain.FetchMethodFeed, URLs: []string{srv.URL}}
	d := NewDetector(newFetcher(), nil, 0)

	det := d.Detect(context.Background(), src, "")
	require.False(t, det.Failed(), "%v", det.Err)
	assert.True(t, det.Changed)
	assert.Len(t, det.Links, 2)

	again := d.Detect(context.Background(), src, det.Fingerprint)
	assert.False(t, again.Changed)
}

func TestHTTPFetcher_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	limited := NewHTTPFetcher(HTTPFetcherConfig{Timeout: 2 * time.Second, MaxBytes: 1024})
	_, err := limited.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, resty.ErrResponseBodyTooLarge)
	assert.Equal(t, ErrorGeneric, KindOf(err))

	roomy := NewHTTPFetcher(HTTPFetcherConfig{Timeout: 2 * time.Second, MaxBytes: 8192})
	page, err := roomy.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, page.Body, 4096)
}
