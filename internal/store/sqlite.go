package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/botgate/internal/domain"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed archive.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
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
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		bot_key TEXT NOT NULL,
		type TEXT NOT NULL,
		sender TEXT,
		recipient TEXT,
		body TEXT,
		event_ts INTEGER NOT NULL,
		archived_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_bot ON events(bot_key, event_ts);
	CREATE INDEX IF NOT EXISTS idx_events_archived ON events(archived_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		bot_key TEXT NOT NULL,
		recipient TEXT NOT NULL,
		body TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_bot ON messages(bot_key, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveEvent records one delivered chat event.
func (s *SQLiteStore) SaveEvent(ctx context.Context, ev *domain.Event) error {
	query := `
		INSERT OR IGNORE INTO events (id, bot_key, type, sender, recipient, body, event_ts, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.BotKey, string(ev.Type), ev.From, ev.To, ev.Body,
		ev.Timestamp.UnixMilli(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// SaveMessage records one outbound message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, botKey string, msg *domain.OutboundMessage) error {
	query := `
		INSERT OR IGNORE INTO messages (id, bot_key, recipient, body, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, botKey, msg.To, msg.Body, msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events for a bot, newest first.
func (s *SQLiteStore) RecentEvents(ctx context.Context, botKey string, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, bot_key, type, sender, recipient, body, event_ts
		FROM events WHERE bot_key = ?
		ORDER BY event_ts DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, botKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var ev domain.Event
		var typ string
		var sender, recipient, body sql.NullString
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.BotKey, &typ, &sender, &recipient, &body, &ts); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ev.Type = domain.EventType(typ)
		ev.From = sender.String
		ev.To = recipient.String
		ev.Body = body.String
		ev.Timestamp = time.UnixMilli(ts)
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}

// CleanupOldEvents removes archived records older than the retention window.
func (s *SQLiteStore) CleanupOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()

	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE archived_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, cutoff); err != nil {
		return deleted, fmt.Errorf("delete old messages: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
