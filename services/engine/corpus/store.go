// Copyright (C) 2025 Aura Labs (hello@auraquotes.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package corpus owns the curated quote collection: its SQLite store,
// the embedded seed data, quality ranking, and the startup loader that
// mirrors the corpus into the vector index.
package corpus

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/auraquotes/aura/services/engine/datatypes"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a quote id does not exist.
var ErrNotFound = errors.New("quote not found")

// Store wraps the SQLite quote table.
//
// Quotes are append-and-remove only; there is no update path.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the quote database in dataDir and runs any
// pending migrations. Pass ":memory:" for an in-memory database.
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "corpus.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening quote database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging quote database: %w", err)
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
		return nil, fmt.Errorf("running quote migrations: %w", err)
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

// Insert validates and stores a quote, filling in ID and CreatedAt
// when absent, and returns the stored quote.
func (s *Store) Insert(q datatypes.Quote) (datatypes.Quote, error) {
	if err := q.Validate(); err != nil {
		return datatypes.Quote{}, err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO quotes (id, category, quote, author, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		q.ID, string(q.Category), q.Text, q.Author,
		q.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return datatypes.Quote{}, fmt.Errorf("inserting quote: %w", err)
	}
	return q, nil
}

// ByID fetches a single quote.
func (s *Store) ByID(id string) (datatypes.Quote, error) {
	row := s.db.QueryRow(`
		SELECT id, category, quote, author, created_at
		FROM quotes WHERE id = ?`, id)

	q, err := scanQuote(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return datatypes.Quote{}, ErrNotFound
	}
	return q, err
}

// ByCategory returns up to limit quotes from one category in random
// order. Random order keeps repeat visitors from always seeing the
// same few quotes.
func (s *Store) ByCategory(category datatypes.Category, limit int) ([]datatypes.Quote, error) {
	rows, err := s.db.Query(`
		SELECT id, category, quote, author, created_at
		FROM quotes WHERE category = ? ORDER BY RANDOM() LIMIT ?`,
		string(category), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuotes(rows)
}

// All returns up to limit quotes across every category in random order.
func (s *Store) All(limit int) ([]datatypes.Quote, error) {
	rows, err := s.db.Query(`
		SELECT id, category, quote, author, created_at
		FROM quotes ORDER BY RANDOM() LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuotes(rows)
}

// Remove deletes a quote by id.
func (s *Store) Remove(id string) error {
	res, err := s.db.Exec("DELETE FROM quotes WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of quotes.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM quotes").Scan(&n)
	return n, err
}

// CountByCategory returns quote counts per category.
func (s *Store) CountByCategory() (map[datatypes.Category]int, error) {
	rows, err := s.db.Query("SELECT category, COUNT(*) FROM quotes GROUP BY category")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[datatypes.Category]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		parsed, _ := datatypes.ParseCategory(category)
		counts[parsed] += n
	}
	return counts, rows.Err()
}

func scanQuote(scan func(dest ...any) error) (datatypes.Quote, error) {
	var q datatypes.Quote
	var category, createdAt string
	if err := scan(&q.ID, &category, &q.Text, &q.Author, &createdAt); err != nil {
		return datatypes.Quote{}, err
	}

	q.Category, _ = datatypes.ParseCategory(category)
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return datatypes.Quote{}, fmt.Errorf("parsing created_at: %w", err)
	}
	q.CreatedAt = t
	return q, nil
}

func collectQuotes(rows *sql.Rows) ([]datatypes.Quote, error) {
	var quotes []datatypes.Quote
	for rows.Next() {
		q, err := scanQuote(rows.Scan)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}
