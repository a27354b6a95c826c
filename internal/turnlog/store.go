// Package turnlog records completed conversation turns to SQLite for
// observability. The log is write-only from the application's point of view:
// it is never read back into a live session.
package turnlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ravindur-dev/careerpal/internal/shared"
)

// Turn is one completed request/response cycle, chat or voice.
type Turn struct {
	ID        string
	ClientID  string
	Channel   string // "chat", "voice", or "manual"
	Query     string
	Response  string
	ErrorText string
	CreatedAt time.Time
}

// Store persists turns.
type Store interface {
	InsertTurn(ctx context.Context, turn *Turn) error
	CountTurns(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite creates a SQLite-backed turn store at the given path.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency between the writer goroutine and
	// health-check reads.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		error_text TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_client ON turns(client_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertTurn writes one turn record, retrying on SQLite lock conflicts.
func (s *SQLiteStore) InsertTurn(ctx context.Context, turn *Turn) error {
	query := `
		INSERT INTO turns (id, client_id, channel, query, response, error_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	err := shared.RetryOnConflict(3, 50*time.Millisecond, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			turn.ID, turn.ClientID, turn.Channel,
			turn.Query, turn.Response, turn.ErrorText,
			turn.CreatedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// CountTurns returns the total number of recorded turns.
func (s *SQLiteStore) CountTurns(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
