package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aurabot/aura/internal/retrieval"
)

// CreateContext inserts a new context row with its embedding in a single
// statement. A new context starts in needs_summary state with an empty
// summary. Returns ErrContextExists when the name is already taken; callers
// resolve the race by looking up the existing row instead.
func (s *Store) CreateContext(name string, embedding []float32) (*Context, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO contexts (name, summary, state, embedding, last_updated) VALUES (?, '', ?, ?, ?)`,
		name, string(StateNeedsSummary), retrieval.EncodeVector(embedding), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrContextExists
		}
		return nil, fmt.Errorf("inserting context: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading context id: %w", err)
	}
	return &Context{
		ID:          id,
		Name:        name,
		State:       StateNeedsSummary,
		LastUpdated: now,
	}, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
// modernc.org/sqlite does not export a typed constraint error, so the message
// is matched instead.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetContext fetches a single context by ID. Returns ErrNotFound if absent.
func (s *Store) GetContext(id int64) (*Context, error) {
	return s.scanContext(s.db.QueryRow(
		`SELECT id, name, summary, state, last_updated FROM contexts WHERE id = ?`, id))
}

// GetContextByName fetches a single context by its unique name. Returns
// ErrNotFound if absent.
func (s *Store) GetContextByName(name string) (*Context, error) {
	return s.scanContext(s.db.QueryRow(
		`SELECT id, name, summary, state, last_updated FROM contexts WHERE name = ?`, name))
}

func (s *Store) scanContext(row *sql.Row) (*Context, error) {
	var c Context
	var lastUpdated string
	err := row.Scan(&c.ID, &c.Name, &c.Summary, &c.State, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning context: %w", err)
	}
	t, err := time.Parse(time.RFC3339, lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("parsing last_updated: %w", err)
	}
	c.LastUpdated = t
	return &c, nil
}

// UpdateContextSummary replaces a context's summary and embedding, marking it
// stable. Called by the summarization worker after both the summary text and
// its fresh embedding are in hand; a failed embedding leaves the row in
// needs_summary so the next sweep retries.
func (s *Store) UpdateContextSummary(id int64, summary string, embedding []float32) error {
	res, err := s.db.Exec(
		`UPDATE contexts SET summary = ?, embedding = ?, state = ?, last_updated = ? WHERE id = ?`,
		summary, retrieval.EncodeVector(embedding), string(StateStable), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating context summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetContextsNeedingSummary returns all contexts currently in needs_summary
// state, oldest first so the most stale summaries regenerate first.
func (s *Store) GetContextsNeedingSummary() ([]Context, error) {
	return s.queryContexts(
		`SELECT id, name, summary, state, last_updated FROM contexts WHERE state = ? ORDER BY last_updated ASC`,
		string(StateNeedsSummary))
}

// ListContexts returns all contexts ordered by most recently updated.
func (s *Store) ListContexts() ([]Context, error) {
	return s.queryContexts(
		`SELECT id, name, summary, state, last_updated FROM contexts ORDER BY last_updated DESC`)
}

func (s *Store) queryContexts(query string, args ...any) ([]Context, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying contexts: %w", err)
	}
	defer rows.Close()

	var out []Context
	for rows.Next() {
		var c Context
		var lastUpdated string
		if err := rows.Scan(&c.ID, &c.Name, &c.Summary, &c.State, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scanning context: %w", err)
		}
		t, err := time.Parse(time.RFC3339, lastUpdated)
		if err != nil {
			return nil, fmt.Errorf("parsing last_updated: %w", err)
		}
		c.LastUpdated = t
		out = append(out, c)
	}
	return out, rows.Err()
}
