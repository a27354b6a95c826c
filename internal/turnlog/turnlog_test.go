package turnlog

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "turns.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	return store
}

func TestInsertAndCountTurns(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer func() { _ = store.Close() }()

	turn := &Turn{
		ID:        "turn-1",
		ClientID:  "anon_abc",
		Channel:   "chat",
		Query:     "What is Python?",
		Response:  "A programming language.",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.InsertTurn(context.Background(), turn); err != nil {
		t.Fatalf("InsertTurn failed: %v", err)
	}

	n, err := store.CountTurns(context.Background())
	if err != nil {
		t.Fatalf("CountTurns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 turn, got %d", n)
	}
}

func TestAsyncLoggerDrainsOnClose(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "turns.db")
	store, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	logger := NewAsyncLogger(store, 16, slog.Default())

	for i := 0; i < 5; i++ {
		logger.Record(Turn{
			ClientID: "anon_abc",
			Channel:  "voice",
			Query:    "hello",
			Response: "hi",
		})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Close drains the queue and closes the store, so reopen to verify.
	reopened, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	n, err := reopened.CountTurns(context.Background())
	if err != nil {
		t.Fatalf("CountTurns failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 turns after drain, got %d", n)
	}
}

func TestRecordAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	logger := NewAsyncLogger(store, 16, slog.Default())
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Must not panic on a closed queue.
	logger.Record(Turn{ClientID: "anon_abc", Channel: "chat", Query: "late"})
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	logger := NewAsyncLogger(store, 16, slog.Default())
	defer func() { _ = logger.Close() }()

	logger.Record(Turn{ClientID: "anon_abc", Channel: "chat", Query: "q", Response: "r"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := store.CountTurns(context.Background())
		if err == nil && n == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for turn to be persisted")
}
