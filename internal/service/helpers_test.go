package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/timmy/examwatch/internal/domain"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/repository"
	"github.com/timmy/examwatch/internal/source"
	"github.com/timmy/examwatch/internal/storage"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	runRepo    *repository.RunRepository
	ledgerRepo *repository.LedgerRepository
	eventRepo  *repository.EventRepository
	examRepo   *repository.ExamRepository
	queueRepo  *repository.NotificationRepository
	storage    *storage.MemoryStorage
	log        *logger.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.OpenSQLiteMemory(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &testEnv{
		db:         db,
		runRepo:    repository.NewRunRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
		eventRepo:  repository.NewEventRepository(db),
		examRepo:   repository.NewExamRepository(db),
		queueRepo:  repository.NewNotificationRepository(db),
		storage:    storage.NewMemoryStorage(),
		log:        logger.GetDefault(),
	}
}

func (e *testEnv) pipeline(text TextExtractor, provider ExtractionProvider, matcher MatchTrigger) *PipelineService {
	return NewPipelineService(e.eventRepo, e.ledgerRepo, e.examRepo, e.storage,
		text, provider, matcher, e.log, &PipelineConfig{MinTextLength: 100})
}

func (e *testEnv) ingest(downloader source.Fetcher, handoff Handoff, workers int) *IngestService {
	return NewIngestService(e.ledgerRepo, e.eventRepo, e.storage, downloader, handoff, e.log,
		&IngestConfig{Workers: workers})
}

// seedEvent stores a document the way ingestion does and returns its queued event.
func (e *testEnv) seedEvent(t *testing.T, sourceID string, data []byte) *domain.IngestionEvent {
	t.Helper()
	ctx := context.Background()
	fp := ContentFingerprint(data)
	key := StorageKey(sourceID, fp, time.Now())
	require.NoError(t, e.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"))
	inserted, err := e.ledgerRepo.Insert(ctx, &domain.LedgerEntry{
		Fingerprint: fp,
		SourceURL:   "https://example.gov.in/" + fp[:8] + ".pdf",
		SourceID:    sourceID,
		StorageKey:  key,
		FileSize:    int64(len(data)),
	})
	require.NoError(t, err)
	require.True(t, inserted)
	event := &domain.IngestionEvent{
		ID:          uuid.New().String(),
		SourceID:    sourceID,
		SourceName:  "Staff Selection Commission",
		Category:    "central",
		SourceURL:   "https://example.gov.in/" + fp[:8] + ".pdf",
		Fingerprint: fp,
		StorageKey:  key,
		Status:      domain.EventStatusQueued,
		ScrapedAt:   time.Now(),
	}
	require.NoError(t, e.eventRepo.Create(ctx, event))
	return event
}

func pdfBytes(body string) []byte {
	return []byte("%PDF-1.4\n" + body)
}

// fakeFetcher serves fixed bodies by URL and fails everything else.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  map[string]int
}

func newFakeFetcher(bodies map[string][]byte) *fakeFetcher {
	return &fakeFetcher{bodies: bodies, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*source.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	body, ok := f.bodies[url]
	if !ok {
		return nil, &source.FetchError{Kind: source.ErrorGeneric, StatusCode: 404, URL: url}
	}
	return &source.Page{URL: url, Body: body, StatusCode: 200}, nil
}

func (f *fakeFetcher) set(url string, body []byte) {
	f.mu.Lock()
	f.bodies[url] = body
	f.mu.Unlock()
}

// plainText treats document bytes after the PDF header as their text.
type plainText struct{}

func (plainText) ExtractText(data []byte) (string, error) {
	return strings.TrimPrefix(string(data), "%PDF-1.4\n"), nil
}

type fakeProvider struct {
	raw   RawExam
	err   error
	calls int32
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ExtractStructured(ctx context.Context, text string, ec ExtractionContext) (RawExam, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	out := RawExam{}
	for k, v := range p.raw {
		out[k] = v
	}
	return out, nil
}

func validRaw() RawExam {
	return RawExam{
		"title":                "SSC Combined Graduate Level Examination 2026",
		"organization":         "Staff Selection Commission",
		"category":             "central",
		"level":                "national",
		"qualification":        "Bachelor's degree",
		"vacancies":            "1,250",
		"application_end_date": "2026-11-30",
		"min_age":              18,
		"max_age_general":      27,
		"fee_general":          "Rs. 100",
		"confidence":           "high",
	}
}

type fakeMatcher struct {
	mu  sync.Mutex
	ids []string
}

func (m *fakeMatcher) Trigger(ctx context.Context, examID string) error {
	m.mu.Lock()
	m.ids = append(m.ids, examID)
	m.mu.Unlock()
	return nil
}

type recordingHandoff struct {
	mu       sync.Mutex
	payloads []HandoffPayload
	err      error
}

func (h *recordingHandoff) Handoff(ctx context.Context, p HandoffPayload) error {
	h.mu.Lock()
	h.payloads = append(h.payloads, p)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandoff) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

// fakeMailer fails every message addressed to a recipient in fail.
type fakeMailer struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []Message
}

func (m *fakeMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[msg.To] {
		return fmt.Errorf("mail API error: status 500")
	}
	m.sent = append(m.sent, msg)
	return nil
}

// failingStorage rejects every upload.
type failingStorage struct {
	*storage.MemoryStorage
}

func (failingStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return errors.New("bucket unavailable")
}
