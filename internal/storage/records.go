package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aurabot/aura/internal/record"
)

// InsertRecord persists a record and flags its context for re-summarization
// in one transaction. Either both writes land or neither does; a context can
// never reference a record it doesn't know about and vice versa.
func (s *Store) InsertRecord(r record.Record) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	createdAt := r.CreatedAt.UTC().Format(time.RFC3339)
	expiry := nullableTime(r.ExpiryDate)

	switch r.Kind {
	case record.KindTask:
		res, err := tx.Exec(
			`INSERT INTO tasks (content, due_date, permanence, created_at, completed, reminder_sent, expiry_date, context_id)
			 VALUES (?, ?, ?, ?, 0, 0, ?, ?)`,
			r.Task.Content, nullableTime(r.Task.DueDate), string(r.Permanence), createdAt, expiry, r.ContextID,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting task: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("reading task id: %w", err)
		}
	case record.KindNote:
		res, err := tx.Exec(
			`INSERT INTO notes (content, permanence, created_at, expiry_date, context_id)
			 VALUES (?, ?, ?, ?, ?)`,
			r.Note.Content, string(r.Permanence), createdAt, expiry, r.ContextID,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting note: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("reading note id: %w", err)
		}
	case record.KindEvent:
		res, err := tx.Exec(
			`INSERT INTO events (title, start_time, end_time, location, description, permanence, created_at, reminder_sent, expiry_date, context_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			r.Event.Title, r.Event.StartTime.UTC().Format(time.RFC3339), nullableTime(r.Event.EndTime),
			r.Event.Location, r.Event.Description, string(r.Permanence), createdAt, expiry, r.ContextID,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting event: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("reading event id: %w", err)
		}
	default:
		return 0, fmt.Errorf("unknown record kind %q", r.Kind)
	}

	res, err := tx.Exec(
		`UPDATE contexts SET state = ?, last_updated = ? WHERE id = ?`,
		string(StateNeedsSummary), time.Now().UTC().Format(time.RFC3339), r.ContextID,
	)
	if err != nil {
		return 0, fmt.Errorf("flagging context for summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("flagging context for summary: %w", ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing record: %w", err)
	}
	return id, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// GetDueItems returns incomplete tasks due at or before now and events
// starting at or before now, skipping anything already reminded about.
func (s *Store) GetDueItems(now time.Time) ([]record.DueItem, error) {
	cutoff := now.UTC().Format(time.RFC3339)
	var items []record.DueItem

	rows, err := s.db.Query(
		`SELECT id, content, due_date FROM tasks
		 WHERE due_date IS NOT NULL AND due_date <= ? AND reminder_sent = 0 AND completed = 0
		 ORDER BY due_date ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying due tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it record.DueItem
		var due string
		if err := rows.Scan(&it.ID, &it.Content, &due); err != nil {
			return nil, fmt.Errorf("scanning due task: %w", err)
		}
		t, err := time.Parse(time.RFC3339, due)
		if err != nil {
			return nil, fmt.Errorf("parsing task due_date: %w", err)
		}
		it.Kind = record.KindTask
		it.DueDate = t
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	eventRows, err := s.db.Query(
		`SELECT id, title, start_time FROM events
		 WHERE start_time <= ? AND reminder_sent = 0
		 ORDER BY start_time ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying due events: %w", err)
	}
	defer eventRows.Close()
	for eventRows.Next() {
		var it record.DueItem
		var start string
		if err := eventRows.Scan(&it.ID, &it.Content, &start); err != nil {
			return nil, fmt.Errorf("scanning due event: %w", err)
		}
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, fmt.Errorf("parsing event start_time: %w", err)
		}
		it.Kind = record.KindEvent
		it.DueDate = t
		items = append(items, it)
	}
	return items, eventRows.Err()
}

// MarkReminded flags a task or event so the reminder sweep never notifies
// about it again.
func (s *Store) MarkReminded(kind record.Kind, id int64) error {
	var table string
	switch kind {
	case record.KindTask:
		table = "tasks"
	case record.KindEvent:
		table = "events"
	default:
		return fmt.Errorf("kind %q has no reminders", kind)
	}
	res, err := s.db.Exec(fmt.Sprintf("UPDATE %s SET reminder_sent = 1 WHERE id = ?", table), id)
	if err != nil {
		return fmt.Errorf("marking %s %d reminded: %w", table, id, err)
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

// DeleteExpired purges expired records. Tasks and notes are deleted only when
// non-permanent; events are deleted on expiry regardless of permanence, since
// a past event has no retrieval value. Returns the total rows deleted.
func (s *Store) DeleteExpired(now time.Time) (int64, error) {
	cutoff := now.UTC().Format(time.RFC3339)
	var total int64

	for _, q := range []struct {
		name  string
		query string
	}{
		{"tasks", `DELETE FROM tasks WHERE permanence = 'non-permanent' AND expiry_date IS NOT NULL AND expiry_date <= ?`},
		{"notes", `DELETE FROM notes WHERE permanence = 'non-permanent' AND expiry_date IS NOT NULL AND expiry_date <= ?`},
		{"events", `DELETE FROM events WHERE expiry_date IS NOT NULL AND expiry_date <= ?`},
	} {
		res, err := s.db.Exec(q.query, cutoff)
		if err != nil {
			return total, fmt.Errorf("purging %s: %w", q.name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("counting purged %s: %w", q.name, err)
		}
		total += n
	}
	return total, nil
}

// GetContentForContext returns the textual content of every record attached
// to a context, newest first, for the summarization worker and the
// query_context read path.
func (s *Store) GetContentForContext(contextID int64) ([]RecordSummary, error) {
	rows, err := s.db.Query(
		`SELECT 'Task', id, content, created_at FROM tasks WHERE context_id = ?
		 UNION ALL
		 SELECT 'Note', id, content, created_at FROM notes WHERE context_id = ?
		 UNION ALL
		 SELECT 'Event', id, title, created_at FROM events WHERE context_id = ?
		 ORDER BY created_at DESC`,
		contextID, contextID, contextID)
	if err != nil {
		return nil, fmt.Errorf("querying context records: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// RecentRecords returns the newest records across all contexts, most recent
// first, capped at limit.
func (s *Store) RecentRecords(limit int) ([]RecordSummary, error) {
	rows, err := s.db.Query(
		`SELECT 'Task', id, content, created_at FROM tasks
		 UNION ALL
		 SELECT 'Note', id, content, created_at FROM notes
		 UNION ALL
		 SELECT 'Event', id, title, created_at FROM events
		 ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent records: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]RecordSummary, error) {
	var out []RecordSummary
	for rows.Next() {
		var r RecordSummary
		var createdAt string
		if err := rows.Scan(&r.Kind, &r.ID, &r.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		out = append(out, r)
	}
	return out, rows.Err()
}
