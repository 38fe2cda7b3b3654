package service

import (
	"context"
	"sync"

	"github.com/timmy/examwatch/internal/logger"
)

// EventQueue runs handed-off events on a fixed pool of workers. Submit never
// blocks; a full queue rejects the event and the caller reports saturation.
type EventQueue struct {
	handler EventHandler
	jobs    chan string
	workers int
	logger  *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewEventQueue creates a queue holding at most size waiting events.
func NewEventQueue(handler EventHandler, workers, size int, log *logger.Logger) *EventQueue {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	return &EventQueue{
		handler: handler,
		jobs:    make(chan string, size),
		workers: workers,
		logger:  log,
	}
}

// Start launches the workers. Events are handled with ctx, so cancelling it
// aborts in-flight provider calls.
func (q *EventQueue) Start(ctx context.Context) {
	if q.logger != nil {
		ctx = q.logger.WithContext(ctx)
	}
	ctx = logger.SetComponent(ctx, "pipeline")
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for id := range q.jobs {
				q.handle(ctx, id)
			}
		}()
	}
}

func (q *EventQueue) handle(ctx context.Context, eventID string) {
	ctx = logger.SetEventID(ctx, eventID)
	outcome, err := q.handler.Handle(ctx, eventID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Event handling failed")
		return
	}
	logger.With(nil).WithStatus(string(outcome)).Info(ctx, "Event handled")
}

// Submit enqueues an event. Returns false when the queue is full or stopped.
func (q *EventQueue) Submit(eventID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- eventID:
		return true
	default:
		return false
	}
}

// Stop stops accepting events and waits for queued ones to finish.
func (q *EventQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
