package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/examwatch/internal/domain"
	"github.com/timmy/examwatch/internal/source"
)

const listingURL = "https://ssc.gov.in/notices"

func listing(rows ...string) []byte {
	var b strings.Builder
	b.WriteString(`<html><body><nav>Home</nav><main><table>`)
	for _, r := range rows {
		b.WriteString(r)
	}
	b.WriteString(`</table></main></body></html>`)
	return []byte(b.String())
}

const cglRow = `<tr><td>Combined Graduate Level Examination 2026 detailed notification for all candidates</td><td><a href="/docs/cgl.pdf">Download notification</a></td></tr>`
const chslRow = `<tr><td>Combined Higher Secondary Level Examination 2026 detailed notification for candidates</td><td><a href="/docs/chsl.pdf">Download notification</a></td></tr>`

func newDetectEnv(t *testing.T, fetcher *fakeFetcher, handoff Handoff) (*testEnv, *DetectService) {
	env := newTestEnv(t)
	ingest := env.ingest(fetcher, handoff, 2)
	detector := source.NewDetector(fetcher, nil, 0)
	return env, NewDetectService(detector, env.runRepo, ingest, env.log, &DetectConfig{Workers: 2})
}

func TestDetectSource_ChangedThenUnchanged(t *testing.T) {
	fetcher := newFakeFetcher(map[string][]byte{
		listingURL:                        listing(cglRow),
		"https://ssc.gov.in/docs/cgl.pdf": pdfBytes(noticeText),
	})
	handoff := &recordingHandoff{}
	env, svc := newDetectEnv(t, fetcher, handoff)
	ctx := context.Background()
	src := domain.SourceConfig{ID: "ssc", Name: "SSC", Method: domain.FetchMethodStatic, URLs: []string{listingURL}}

	run := svc.DetectSource(ctx, src)
	assert.Equal(t, domain.RunStatusChanged, run.Status)
	assert.Equal(t, 1, run.NewDocuments)
	assert.Equal(t, 200, run.HTTPStatus)
	require.NotNil(t, run.Fingerprint)

	last, err := env.runRepo.LatestFingerprint(ctx, "ssc")
	require.NoError(t, err)
	assert.Equal(t, *run.Fingerprint, last)

	run = svc.DetectSource(ctx, src)
	assert.Equal(t, domain.RunStatusUnchanged, run.Status)
	assert.Zero(t, run.NewDocuments)
	assert.Equal(t, 1, handoff.count(), "no new event on an unchanged pass")
	assert.Equal(t, 1, fetcher.calls["https://ssc.gov.in/docs/cgl.pdf"])

	// A new row changes the page; only the new document is ingested.
	fetcher.set(listingURL, listing(cglRow, chslRow))
	fetcher.set("https://ssc.gov.in/docs/chsl.pdf", pdfBytes(noticeText+" CHSL"))
	run = svc.DetectSource(ctx, src)
	assert.Equal(t, domain.RunStatusChanged, run.Status)
	assert.Equal(t, 1, run.NewDocuments)
	assert.Equal(t, 2, handoff.count())

	runs, err := env.runRepo.ListBySource(ctx, "ssc", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestDetectSource_FailureKeepsFingerprint(t *testing.T) {
	fetcher := newFakeFetcher(map[string][]byte{
		listingURL:                        listing(cglRow),
		"https://ssc.gov.in/docs/cgl.pdf": pdfBytes(noticeText),
	})
	env, svc := newDetectEnv(t, fetcher, &recordingHandoff{})
	ctx := context.Background()
	src := domain.SourceConfig{ID: "ssc", URLs: []string{listingURL}}

	first := svc.DetectSource(ctx, src)
	require.NotNil(t, first.Fingerprint)

	src.URLs = []string{"https://ssc.gov.in/gone"}
	run := svc.DetectSource(ctx, src)
	assert.Equal(t, domain.RunStatusError, run.Status)
	assert.Equal(t, 404, run.HTTPStatus)
	assert.Nil(t, run.Fingerprint)

	last, err := env.runRepo.LatestFingerprint(ctx, "ssc")
	require.NoError(t, err)
	assert.Equal(t, *first.Fingerprint, last)
}

func TestDetectSource_StorageFailureIsPartial(t *testing.T) {
	fetcher := newFakeFetcher(map[string][]byte{
		listingURL:                        listing(cglRow),
		"https://ssc.gov.in/docs/cgl.pdf": pdfBytes(noticeText),
	})
	env := newTestEnv(t)
	ingest := NewIngestService(env.ledgerRepo, env.eventRepo, failingStorage{env.storage}, fetcher,
		&recordingHandoff{}, env.log, &IngestConfig{Workers: 1})
	svc := NewDetectService(source.NewDetector(fetcher, nil, 0), env.runRepo, ingest, env.log, &DetectConfig{})
	ctx := context.Background()

	run := svc.DetectSource(ctx, domain.SourceConfig{ID: "ssc", URLs: []string{listingURL}})
	assert.Equal(t, domain.RunStatusPartial, run.Status)
	assert.Nil(t, run.Fingerprint)

	last, err := env.runRepo.LatestFingerprint(ctx, "ssc")
	require.NoError(t, err)
	assert.Empty(t, last, "the next pass retries the whole page")
}

func TestDetectSource_DownloadFailureRetriedNextPass(t *testing.T) {
	fetcher := newFakeFetcher(map[string][]byte{listingURL: listing(cglRow)})
	handoff := &recordingHandoff{}
	env, svc := newDetectEnv(t, fetcher, handoff)
	ctx := context.Background()
	src := domain.SourceConfig{ID: "ssc", URLs: []string{listingURL}}

	run := svc.DetectSource(ctx, src)
	assert.Equal(t, domain.RunStatusPartial, run.Status)
	assert.Nil(t, run.Fingerprint)
	assert.Contains(t, run.ErrorDetail, "1 downloads failed")
	assert.Zero(t, handoff.count())

	last, err := env.runRepo.LatestFingerprint(ctx, "ssc")
	require.NoError(t, err)
	assert.Empty(t, last)

	// The document comes back; the unchanged page is walked again.
	fetcher.set("https://ssc.gov.in/docs/cgl.pdf", pdfBytes(noticeText))
	run = svc.DetectSource(ctx, src)
	assert.Equal(t, domain.RunStatusChanged, run.Status)
	assert.Equal(t, 1, run.NewDocuments)
	require.NotNil(t, run.Fingerprint)
	assert.Equal(t, 1, handoff.count())

	run = svc.DetectSource(ctx, src)
	assert.Equal(t, domain.RunStatusUnchanged, run.Status)
	assert.Equal(t, 1, handoff.count())
}

func TestRunPass_CountsOutcomes(t *testing.T) {
	fetcher := newFakeFetcher(map[string][]byte{
		listingURL:                        listing(cglRow),
		"https://ssc.gov.in/docs/cgl.pdf": pdfBytes(noticeText),
	})
	_, svc := newDetectEnv(t, fetcher, &recordingHandoff{})

	stats := svc.RunPass(context.Background(), []domain.SourceConfig{
		{ID: "ssc", URLs: []string{listingURL}},
		{ID: "dead", URLs: []string{"https://dead.gov.in/"}},
		{ID: "spa", Method: domain.FetchMethodRendered, URLs: []string{"https://spa.gov.in/"}},
	})

	assert.Equal(t, 3, stats.Sources)
	assert.Equal(t, 1, stats.Changed)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.NewDocuments)
}
