// Package journal persists recording sessions and their script fragments in
// SQLite so finished scripts can be listed and printed again later.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gyaneshwarpardhi/uirecorder/internal/script"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("journal: session not found")

// Session is one journaled recording session.
type Session struct {
	ID        string    `json:"id"`
	Scenario  string    `json:"scenario,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	EndReason string    `json:"end_reason,omitempty"`
	Fragments int       `json:"fragments"`
}

// Store is the session journal. WAL mode lets the status API read while a
// session is writing.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginSession records the start of a session. Beginning the same id twice
// is a no-op.
func (s *Store) BeginSession(ctx context.Context, id, scenario string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, scenario, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, scenario, startedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("begin session %s: %w", id, err)
	}
	return nil
}

// EndSession stamps the end time and reason of a session.
func (s *Store) EndSession(ctx context.Context, id, reason string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ?
	`, endedAt.UnixMilli(), reason, id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendFragment stores one fragment. A repeated sequence number for the
// same session is ignored.
func (s *Store) AppendFragment(ctx context.Context, sessionID string, f script.Fragment) error {
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fragments (session_id, seq, pattern, line, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, sessionID, int64(f.Seq), f.Pattern, f.Line, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("append fragment %d to %s: %w", f.Seq, sessionID, err)
	}
	return nil
}

// Sink adapts the journal to script.Sink for one session.
func (s *Store) Sink(sessionID string) script.Sink {
	return script.SinkFunc(func(ctx context.Context, f script.Fragment) error {
		return s.AppendFragment(ctx, sessionID, f)
	})
}

// Sessions lists every session, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.scenario, s.started_at, s.ended_at, s.end_reason,
		       (SELECT COUNT(*) FROM fragments f WHERE f.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at DESC, s.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Session returns one session by id.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.scenario, s.started_at, s.ended_at, s.end_reason,
		       (SELECT COUNT(*) FROM fragments f WHERE f.session_id = s.id)
		FROM sessions s
		WHERE s.id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
		reason  sql.NullString
	)
	if err := sc.Scan(&sess.ID, &sess.Scenario, &started, &ended, &reason, &sess.Fragments); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = time.UnixMilli(started).UTC()
	if ended.Valid {
		sess.EndedAt = time.UnixMilli(ended.Int64).UTC()
	}
	sess.EndReason = reason.String
	return sess, nil
}

// Script returns the fragments of a session in sequence order.
func (s *Store) Script(ctx context.Context, sessionID string) ([]script.Fragment, error) {
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, pattern, line, created_at
		FROM fragments
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	out := []script.Fragment{}
	for rows.Next() {
		var (
			f   script.Fragment
			seq int64
			at  int64
		)
		if err := rows.Scan(&seq, &f.Pattern, &f.Line, &at); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		f.Seq = uint64(seq)
		f.At = time.UnixMilli(at).UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fragments: %w", err)
	}
	return out, nil
}
