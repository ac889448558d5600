// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns per-session conversation history: a durable
// SQLite store of sessions and their append-only turn logs, a manager
// that serializes writers per session, and the token-budgeted context
// window handed to the response composer.
package session

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// defaultListLimit caps session listings when the caller passes no limit.
const defaultListLimit = 100

// Store wraps the SQLite session and turn tables.
//
// Turns are append-only: there is no update or single-turn delete path,
// only whole-session removal. Ordering guarantees live in the turns
// table itself through the UNIQUE (session_id, seq) constraint.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the session database in dataDir and runs any
// pending migrations. Pass ":memory:" for an in-memory database.
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "sessions.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging session database: %w", err)
	}

	// A single connection avoids "database is locked" under concurrent
	// writes; reads stay fast through WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running session migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that have not run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var applied int
		if err := s.db.QueryRow(
			"SELECT COUNT(*) FROM schema_version WHERE version = ?", version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// InsertSession stores a new session row.
func (s *Store) InsertSession(sess datatypes.Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, created_at, last_active)
		VALUES (?, ?, ?)`,
		sess.ID,
		sess.CreatedAt.UTC().Format(time.RFC3339),
		sess.LastActive.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// SessionByID fetches a single session.
func (s *Store) SessionByID(id string) (datatypes.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, last_active
		FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return datatypes.Session{}, ErrSessionNotFound
	}
	return sess, err
}

// TouchSession moves a session's last-active timestamp forward.
func (s *Store) TouchSession(id string, at time.Time) error {
	res, err := s.db.Exec(
		"UPDATE sessions SET last_active = ? WHERE id = ?",
		at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListSessions returns up to limit sessions, most recently active first.
func (s *Store) ListSessions(limit int) ([]datatypes.Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.Query(`
		SELECT id, created_at, last_active
		FROM sessions ORDER BY last_active DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// StaleSessions returns up to limit sessions whose last activity is
// older than cutoff, oldest first.
func (s *Store) StaleSessions(cutoff time.Time, limit int) ([]datatypes.Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.Query(`
		SELECT id, created_at, last_active
		FROM sessions WHERE last_active < ?
		ORDER BY last_active ASC LIMIT ?`,
		cutoff.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// DeleteSession removes a session and all of its turns.
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM turns WHERE session_id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting turns: %w", err)
	}
	res, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InsertTurn appends a turn and returns it with the row id filled in.
// The caller is responsible for assigning a free sequence number; a
// duplicate (session_id, seq) pair fails the unique constraint.
func (s *Store) InsertTurn(t datatypes.ConversationTurn) (datatypes.ConversationTurn, error) {
	var trace sql.NullString
	if t.Trace != nil {
		raw, err := json.Marshal(t.Trace)
		if err != nil {
			return datatypes.ConversationTurn{}, fmt.Errorf("encoding turn trace: %w", err)
		}
		trace = sql.NullString{String: string(raw), Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO turns (session_id, seq, role, content, trace, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Seq, string(t.Role), t.Content, trace,
		t.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return datatypes.ConversationTurn{}, fmt.Errorf("inserting turn: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return datatypes.ConversationTurn{}, err
	}
	return t, nil
}

// RecentTurns returns the last n turns of a session in conversation
// order, most recent last.
func (s *Store) RecentTurns(sessionID string, n int) ([]datatypes.ConversationTurn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, seq, role, content, trace, created_at
		FROM turns WHERE session_id = ?
		ORDER BY seq DESC LIMIT ?`, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns, err := collectTurns(rows)
	if err != nil {
		return nil, err
	}
	// The query walks newest to oldest; flip back to conversation order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// NextSeq returns the sequence number the next turn of a session
// should carry.
func (s *Store) NextSeq(sessionID string) (int, error) {
	var next int
	err := s.db.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?",
		sessionID,
	).Scan(&next)
	return next, err
}

// TurnCount returns the number of turns stored for a session.
func (s *Store) TurnCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM turns WHERE session_id = ?", sessionID,
	).Scan(&n)
	return n, err
}

// SessionCount returns the total number of sessions.
func (s *Store) SessionCount() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

func scanSession(scan func(dest ...any) error) (datatypes.Session, error) {
	var sess datatypes.Session
	var createdAt, lastActive string
	if err := scan(&sess.ID, &createdAt, &lastActive); err != nil {
		return datatypes.Session{}, err
	}

	var err error
	if sess.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return datatypes.Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.LastActive, err = time.Parse(time.RFC3339, lastActive); err != nil {
		return datatypes.Session{}, fmt.Errorf("parsing last_active: %w", err)
	}
	return sess, nil
}

func collectSessions(rows *sql.Rows) ([]datatypes.Session, error) {
	var sessions []datatypes.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanTurn(scan func(dest ...any) error) (datatypes.ConversationTurn, error) {
	var t datatypes.ConversationTurn
	var role, createdAt string
	var trace sql.NullString
	if err := scan(&t.ID, &t.SessionID, &t.Seq, &role, &t.Content, &trace, &createdAt); err != nil {
		return datatypes.ConversationTurn{}, err
	}

	t.Role = datatypes.TurnRole(role)
	if trace.Valid {
		t.Trace = &datatypes.TurnTrace{}
		if err := json.Unmarshal([]byte(trace.String), t.Trace); err != nil {
			return datatypes.ConversationTurn{}, fmt.Errorf("decoding turn trace: %w", err)
		}
	}
	parsed, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return datatypes.ConversationTurn{}, fmt.Errorf("parsing created_at: %w", err)
	}
	t.CreatedAt = parsed
	return t, nil
}

func collectTurns(rows *sql.Rows) ([]datatypes.ConversationTurn, error) {
	var turns []datatypes.ConversationTurn
	for rows.Next() {
		t, err := scanTurn(rows.Scan)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
