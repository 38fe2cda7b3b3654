package service

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/examwatch/internal/domain"
	"github.com/timmy/examwatch/internal/source"
)

var (
	sscSource  = domain.SourceConfig{ID: "ssc", Name: "Staff Selection Commission", Category: "central"}
	upscSource = domain.SourceConfig{ID: "upsc", Name: "Union Public Service Commission", Category: "central"}
)

func TestIngestLinks_SameBytesAcrossSources(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := pdfBytes(noticeText)
	fetcher := newFakeFetcher(map[string][]byte{
		"https://ssc.gov.in/cgl.pdf":          doc,
		"https://upsc.gov.in/mirror/cgl.pdf": doc,
	})
	provider := &fakeProvider{raw: validRaw()}
	pipeline := env.pipeline(plainText{}, provider, nil)
	svc := env.ingest(fetcher, NewLocalHandoff(pipeline), 2)

	first := svc.IngestLinks(ctx, sscSource, []source.Link{{URL: "https://ssc.gov.in/cgl.pdf"}})
	second := svc.IngestLinks(ctx, upscSource, []source.Link{{URL: "https://upsc.gov.in/mirror/cgl.pdf"}})

	assert.EqualValues(t, 1, first.Ingested)
	assert.EqualValues(t, 0, second.Ingested)
	assert.EqualValues(t, 1, second.Duplicates)

	fp := ContentFingerprint(doc)
	ledgerRows, err := env.ledgerRepo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, ledgerRows)
	events, err := env.eventRepo.CountByFingerprint(ctx, fp)
	require.NoError(t, err)
	assert.EqualValues(t, 1, events)
	exams, err := env.examRepo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, exams)
	assert.EqualValues(t, 1, provider.calls)

	done, err := env.eventRepo.ListByStatus(ctx, domain.EventStatusDone, 10, 0)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "ssc", done[0].SourceID)
}

func TestIngestLinks_SameBytesTwoURLsOneBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := pdfBytes(noticeText)
	fetcher := newFakeFetcher(map[string][]byte{
		"https://ssc.gov.in/a.pdf": doc,
		"https://ssc.gov.in/b.pdf": doc,
	})
	handoff := &recordingHandoff{}
	svc := env.ingest(fetcher, handoff, 2)

	stats := svc.IngestLinks(ctx, sscSource, []source.Link{
		{URL: "https://ssc.gov.in/a.pdf"},
		{URL: "https://ssc.gov.in/b.pdf"},
	})

	assert.EqualValues(t, 2, stats.TotalLinks)
	assert.EqualValues(t, 1, stats.Ingested)
	assert.EqualValues(t, 1, stats.Duplicates)
	assert.Equal(t, 1, handoff.count())
	assert.Equal(t, 1, env.storage.Len())

	rows, err := env.ledgerRepo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)
}

func TestIngestLinks_ClassifiesFailures(t *testing.T) {
	env := newTestEnv(t)
	fetcher := newFakeFetcher(map[string][]byte{
		"https://ssc.gov.in/page.pdf": []byte("<html>not a pdf</html>"),
	})
	handoff := &recordingHandoff{}
	svc := env.ingest(fetcher, handoff, 1)

	stats := svc.IngestLinks(context.Background(), sscSource, []source.Link{
		{URL: "https://ssc.gov.in/page.pdf"},
		{URL: "https://ssc.gov.in/missing.pdf"},
	})

	assert.EqualValues(t, 1, stats.NotPDF)
	assert.EqualValues(t, 1, stats.DownloadFailed)
	assert.Zero(t, stats.Ingested)
	assert.Zero(t, handoff.count())
	assert.Equal(t, 0, env.storage.Len())
}

func TestIngestLinks_HandoffNetworkErrorKeepsEventQueued(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := pdfBytes(noticeText)
	fetcher := newFakeFetcher(map[string][]byte{"https://ssc.gov.in/cgl.pdf": doc})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL
	srv.Close()

	svc := env.ingest(fetcher, NewHTTPHandoff(deadURL, "secret", time.Second), 1)
	stats := svc.IngestLinks(ctx, sscSource, []source.Link{{URL: "https://ssc.gov.in/cgl.pdf"}})

	assert.EqualValues(t, 1, stats.Ingested)
	assert.EqualValues(t, 1, stats.HandoffFailed)

	queued, err := env.eventRepo.ListByStatus(ctx, domain.EventStatusQueued, 10, 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	exists, err := env.ledgerRepo.Exists(ctx, ContentFingerprint(doc))
	require.NoError(t, err)
	assert.True(t, exists)
	stored, err := env.storage.Exists(ctx, queued[0].StorageKey)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestIngestLinks_StorageFailureLeavesNoLedgerRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fetcher := newFakeFetcher(map[string][]byte{"https://ssc.gov.in/cgl.pdf": pdfBytes(noticeText)})
	handoff := &recordingHandoff{}
	svc := NewIngestService(env.ledgerRepo, env.eventRepo, failingStorage{env.storage}, fetcher, handoff,
		env.log, &IngestConfig{Workers: 1})

	stats := svc.IngestLinks(ctx, sscSource, []source.Link{{URL: "https://ssc.gov.in/cgl.pdf"}})

	assert.EqualValues(t, 1, stats.StorageFailed)
	rows, err := env.ledgerRepo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.Zero(t, handoff.count())
}

func TestDropOrphan_SharedKey(t *testing.T) {
	for _, tc := range []struct {
		name      string
		processed bool
		wantKept  bool
	}{
		{name: "winner still pending keeps bytes", processed: false, wantKept: true},
		{name: "winner already purged drops reupload", processed: true, wantKept: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			svc := env.ingest(newFakeFetcher(nil), &recordingHandoff{}, 1)
			data := pdfBytes(noticeText)
			fingerprint := ContentFingerprint(data)
			key := StorageKey(sscSource.ID, fingerprint, time.Now())

			inserted, err := env.ledgerRepo.Insert(ctx, &domain.LedgerEntry{
				Fingerprint: fingerprint,
				SourceURL:   "https://ssc.gov.in/cgl.pdf",
				SourceID:    sscSource.ID,
				StorageKey:  key,
				FileSize:    int64(len(data)),
				CreatedAt:   time.Now(),
			})
			require.NoError(t, err)
			require.True(t, inserted)
			if tc.processed {
				require.NoError(t, env.ledgerRepo.MarkProcessed(ctx, fingerprint, "done"))
			}
			require.NoError(t, env.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"))

			svc.dropOrphan(ctx, fingerprint, key)

			exists, err := env.storage.Exists(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, tc.wantKept, exists)
		})
	}
}

func TestRecoverStale_RedrivesQueuedEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fetcher := newFakeFetcher(map[string][]byte{"https://ssc.gov.in/cgl.pdf": pdfBytes(noticeText)})
	handoff := &recordingHandoff{err: assert.AnError}
	svc := env.ingest(fetcher, handoff, 1)

	stats := svc.IngestLinks(ctx, sscSource, []source.Link{{URL: "https://ssc.gov.in/cgl.pdf"}})
	require.EqualValues(t, 1, stats.HandoffFailed)

	recovered, err := svc.RecoverStale(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, recovered, "fresh events are not stale yet")

	handoff.err = nil
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	recovered, err = svc.RecoverStale(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, 2, handoff.count())
}

func TestStorageKey(t *testing.T) {
	at := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "ssc/2026/03/abc123.pdf", StorageKey("ssc", "abc123", at))
}

func TestContentFingerprint(t *testing.T) {
	a := ContentFingerprint([]byte("%PDF-1.4 a"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentFingerprint([]byte("%PDF-1.4 a")))
	assert.NotEqual(t, a, ContentFingerprint([]byte("%PDF-1.4 b")))
}
