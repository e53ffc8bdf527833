// internal/journal/store.go
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tamzrod/probe-runtime/internal/probe"
)

// Entry kinds.
const (
	KindData      = "data"
	KindCompleted = "completed"
)

// writeTimeout bounds one listener-driven insert.
const writeTimeout = 2 * time.Second

// Entry is one journaled notification.
type Entry struct {
	ID        string
	Probe     string
	Kind      string
	Timestamp float64
	Body      probe.Payload
}

// Store appends probe payloads to a sqlite table. It is a probe.DataListener.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for listener-side failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l.With("component", "journal")
		}
	}
}

// Open opens (or creates) the sqlite file at path.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal: path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	s, err := New(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and creates the schema if missing.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:  db,
		log: slog.Default().With("component", "journal"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS payloads (
        entry_id TEXT PRIMARY KEY,
        probe TEXT NOT NULL,
        kind TEXT NOT NULL,
        ts REAL NOT NULL,
        body TEXT,
        recorded_at DATETIME
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Append stores one entry and returns its id.
func (s *Store) Append(ctx context.Context, probeAddr, kind string, ts float64, body probe.Payload) (string, error) {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("journal: encode body: %w", err)
		}
	}

	id := uuid.NewString()
	query := `INSERT INTO payloads (entry_id, probe, kind, ts, body, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		id, probeAddr, kind, ts, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("journal: insert: %w", err)
	}
	return id, nil
}

// List returns the newest entries of one probe address, newest first.
func (s *Store) List(ctx context.Context, probeAddr string, limit int) ([]Entry, error) {
	query := `
        SELECT entry_id, probe, kind, ts, body
        FROM payloads
        WHERE probe = ?
        ORDER BY rowid DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, query, probeAddr, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			body sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Probe, &e.Kind, &e.Timestamp, &body); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		if body.Valid && body.String != "" {
			if err := json.Unmarshal([]byte(body.String), &e.Body); err != nil {
				return nil, fmt.Errorf("journal: decode body of %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- probe.DataListener ----

func (s *Store) OnDataReceived(addr probe.Address, data probe.Payload) {
	ts, _ := data[probe.TimestampKey].(float64)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.Append(ctx, addr.String(), KindData, ts, data); err != nil {
		s.log.Warn("journal: append failed", "probe", addr.String(), "error", err)
	}
}

func (s *Store) OnDataCompleted(addr probe.Address) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.Append(ctx, addr.String(), KindCompleted, probe.Timestamp(time.Now()), nil); err != nil {
		s.log.Warn("journal: append failed", "probe", addr.String(), "error", err)
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}
