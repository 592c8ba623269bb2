// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache persists PubMed match answers in SQLite so repeated runs
// over the same records do not query the API again.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one cached answer. Found is false when the query returned no
// articles; PMID and Title are then empty.
type Entry struct {
	Query     string
	PMID      string
	Title     string
	Found     bool
	RunID     string
	FetchedAt time.Time
}

// Store manages the match cache database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the cache database at path, creating parent
// directories and the schema as needed.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			query TEXT PRIMARY KEY,
			pmid TEXT,
			title TEXT,
			found INTEGER NOT NULL,
			run_id TEXT,
			fetched_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_run_id ON matches(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Get returns the cached entry for query. ok is false on a miss.
func (s *Store) Get(ctx context.Context, query string) (Entry, bool, error) {
	var (
		e       Entry
		found   int
		fetched string
		pmid    sql.NullString
		title   sql.NullString
		runID   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT query, pmid, title, found, run_id, fetched_at FROM matches WHERE query = ?`, query,
	).Scan(&e.Query, &pmid, &title, &found, &runID, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cache entry: %w", err)
	}
	e.PMID = pmid.String
	e.Title = title.String
	e.RunID = runID.String
	e.Found = found != 0
	e.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetched)
	return e, true, nil
}

// Put inserts or replaces the entry for e.Query. A zero FetchedAt is set
// to the current time.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now()
	}
	found := 0
	if e.Found {
		found = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO matches (query, pmid, title, found, run_id, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(query) DO UPDATE SET
			pmid=excluded.pmid, title=excluded.title, found=excluded.found,
			run_id=excluded.run_id, fetched_at=excluded.fetched_at`,
		e.Query, e.PMID, e.Title, found, e.RunID, e.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Count returns the number of cached queries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// Clear deletes every cached entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM matches`)
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}
	return res.RowsAffected()
}
