package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrIdempotencyMismatch is returned when an Idempotency-Key is reused with a
// different request payload.
var ErrIdempotencyMismatch = errors.New("idempotency key reused with different request")

// IdempotencyRecord captures a stored response for a previously seen key.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
}

// AuditEntry records an authenticated mutating request handled by the gateway.
type AuditEntry struct {
	ID         string
	APIKey     string
	Method     string
	Path       string
	StatusCode int
	CreatedAt  time.Time
}

// StoredEvent is a node event persisted by the watcher.
type StoredEvent struct {
	Sequence   uint64          `json:"sequence"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// SQLiteStore persists idempotency records, audit entries and mirrored node
// events in a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the gateway database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			request_hash TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			response_body BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			api_key TEXT NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			sequence INTEGER PRIMARY KEY,
			type TEXT NOT NULL,
			attributes TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_cursors (
			name TEXT PRIMARY KEY,
			sequence INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LookupIdempotency returns the stored record for key, if any. A stored record
// whose request hash differs from requestHash yields ErrIdempotencyMismatch.
func (s *SQLiteStore) LookupIdempotency(ctx context.Context, key, requestHash string) (*IdempotencyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT request_hash, status_code, response_body, created_at FROM idempotency_keys WHERE key = ?`, key)
	rec := IdempotencyRecord{Key: key}
	err := row.Scan(&rec.RequestHash, &rec.StatusCode, &rec.ResponseBody, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.RequestHash != requestHash {
		return nil, ErrIdempotencyMismatch
	}
	return &rec, nil
}

// SaveIdempotency stores the response produced for key.
func (s *SQLiteStore) SaveIdempotency(ctx context.Context, key, requestHash string, statusCode int, responseBody []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO idempotency_keys (key, request_hash, status_code, response_body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, requestHash, statusCode, responseBody, time.Now().UTC())
	return err
}

// InsertAuditLog appends an audit entry, assigning it a fresh identifier.
func (s *SQLiteStore) InsertAuditLog(ctx context.Context, apiKey, method, path string, statusCode int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, api_key, method, path, status_code, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), apiKey, method, path, statusCode, time.Now().UTC())
	return err
}

// InsertEvent stores a node event by sequence. Replays of an already stored
// sequence are ignored.
func (s *SQLiteStore) InsertEvent(ctx context.Context, seq uint64, eventType, attributes string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (sequence, type, attributes, created_at) VALUES (?, ?, ?, ?)`,
		seq, eventType, attributes, time.Now().UTC())
	return err
}

// ListEvents returns up to limit stored events ordered by ascending sequence.
func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, type, attributes, created_at FROM events ORDER BY sequence DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var attrs []byte
		if err := rows.Scan(&ev.Sequence, &ev.Type, &attrs, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Attributes = json.RawMessage(attrs)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse to ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LastEventSequence reports the persisted cursor position for name.
func (s *SQLiteStore) LastEventSequence(ctx context.Context, name string) (uint64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT sequence FROM event_cursors WHERE name = ?`, name)
	var seq uint64
	err := row.Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// UpdateEventSequence advances the persisted cursor for name.
func (s *SQLiteStore) UpdateEventSequence(ctx context.Context, name string, seq uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_cursors (name, sequence) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET sequence = excluded.sequence`,
		name, seq)
	return err
}
