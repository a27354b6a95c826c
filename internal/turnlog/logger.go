package turnlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger accepts turn records without blocking the flow controllers.
type Logger interface {
	// Record enqueues a turn for persistence. It never blocks; records are
	// dropped (and counted) when the queue is full.
	Record(turn Turn)

	// Close drains the queue and releases the underlying store.
	Close() error
}

// NopLogger discards all turns. Used when turn logging is disabled.
type NopLogger struct{}

// Record implements Logger.
func (NopLogger) Record(Turn) {}

// Close implements Logger.
func (NopLogger) Close() error { return nil }

// AsyncLogger writes turns to a Store from a background goroutine through a
// bounded queue, so a slow or locked database never stalls a turn.
type AsyncLogger struct {
	store   Store
	queue   chan Turn
	log     *slog.Logger
	dropped int64
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

var _ Logger = (*AsyncLogger)(nil)

// NewAsyncLogger starts the writer goroutine over the given store.
func NewAsyncLogger(store Store, queueSize int, log *slog.Logger) *AsyncLogger {
	if queueSize <= 0 {
		queueSize = 1000
	}
	l := &AsyncLogger{
		store: store,
		queue: make(chan Turn, queueSize),
		log:   log,
	}
	l.wg.Add(1)
	go l.writeLoop()
	return l
}

// Record enqueues a turn, filling in ID and timestamp when absent.
func (l *AsyncLogger) Record(turn Turn) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	select {
	case l.queue <- turn:
	default:
		l.dropped++
		l.log.Warn("turn log queue full, dropping record", "dropped_total", l.dropped)
	}
	l.mu.Unlock()
}

func (l *AsyncLogger) writeLoop() {
	defer l.wg.Done()
	for turn := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.store.InsertTurn(ctx, &turn); err != nil {
			l.log.Error("failed to persist turn", "turn_id", turn.ID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting records, drains the queue, and closes the store.
func (l *AsyncLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	return l.store.Close()
}
