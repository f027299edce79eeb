package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/aurabot/aura/internal/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateContext(t *testing.T, s *Store, name string) *Context {
	t.Helper()
	c, err := s.CreateContext(name, []float32{0.1, 0.2, 0.3})
	if err != nil {
		t.Fatalf("CreateContext(%q) error = %v", name, err)
	}
	return c
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := openTestStore(t)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("Stats() = %+v, want all zero", stats)
	}
}

func TestCreateContext_StartsNeedingSummary(t *testing.T) {
	s := openTestStore(t)
	c := mustCreateContext(t, s, "Dentist")

	got, err := s.GetContext(c.ID)
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	if got.Name != "Dentist" {
		t.Errorf("Name = %q, want Dentist", got.Name)
	}
	if got.State != StateNeedsSummary {
		t.Errorf("State = %q, want %q", got.State, StateNeedsSummary)
	}
}

func TestCreateContext_DuplicateName(t *testing.T) {
	s := openTestStore(t)
	mustCreateContext(t, s, "Dentist")

	_, err := s.CreateContext("Dentist", []float32{0.4, 0.5, 0.6})
	if !errors.Is(err, ErrContextExists) {
		t.Fatalf("CreateContext(duplicate) error = %v, want ErrContextExists", err)
	}

	// The original row must be intact and resolvable by name.
	got, err := s.GetContextByName("Dentist")
	if err != nil {
		t.Fatalf("GetContextByName() error = %v", err)
	}
	if got.Name != "Dentist" {
		t.Errorf("Name = %q, want Dentist", got.Name)
	}
}

func TestGetContext_NotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetContext(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetContext(42) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetContextByName("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetContextByName(nope) error = %v, want ErrNotFound", err)
	}
}

func TestInsertRecord_FlagsContextNeedsSummary(t *testing.T) {
	s := openTestStore(t)
	c := mustCreateContext(t, s, "Dentist")

	// Stabilize first so the flip is observable.
	if err := s.UpdateContextSummary(c.ID, "dental matters", []float32{1, 0, 0}); err != nil {
		t.Fatalf("UpdateContextSummary() error = %v", err)
	}
	got, _ := s.GetContext(c.ID)
	if got.State != StateStable {
		t.Fatalf("State after summary = %q, want stable", got.State)
	}

	now := time.Now().UTC()
	id, err := s.InsertRecord(record.NewTask(record.Task{Content: "call the dentist"}, record.Permanent, now, nil, c.ID))
	if err != nil {
		t.Fatalf("InsertRecord() error = %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}

	got, _ = s.GetContext(c.ID)
	if got.State != StateNeedsSummary {
		t.Errorf("State after insert = %q, want needs_summary", got.State)
	}
}

func TestInsertRecord_UnknownContextFails(t *testing.T) {
	s := openTestStore(t)

	_, err := s.InsertRecord(record.NewNote(record.Note{Content: "x"}, record.Permanent, time.Now(), nil, 99))
	if err == nil {
		t.Fatal("InsertRecord() error = nil, want failure for missing context")
	}

	// The record must not have been committed.
	stats, _ := s.Stats()
	if stats.Notes != 0 {
		t.Errorf("Notes = %d, want 0 after rolled-back insert", stats.Notes)
	}
}

func TestGetDueItems_And_MarkReminded(t *testing.T) {
	s := openTestStore(t)
	c := mustCreateContext(t, s, "Work")

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	dueID, err := s.InsertRecord(record.NewTask(record.Task{Content: "overdue task", DueDate: &past}, record.Permanent, now, nil, c.ID))
	if err != nil {
		t.Fatalf("InsertRecord(due task) error = %v", err)
	}
	if _, err := s.InsertRecord(record.NewTask(record.Task{Content: "future task", DueDate: &future}, record.Permanent, now, nil, c.ID)); err != nil {
		t.Fatalf("InsertRecord(future task) error = %v", err)
	}
	if _, err := s.InsertRecord(record.NewEvent(record.Event{Title: "standup", StartTime: past}, record.Permanent, now, nil, c.ID)); err != nil {
		t.Fatalf("InsertRecord(event) error = %v", err)
	}

	items, err := s.GetDueItems(now)
	if err != nil {
		t.Fatalf("GetDueItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("GetDueItems() returned %d items, want 2 (overdue task + started event)", len(items))
	}

	if err := s.MarkReminded(record.KindTask, dueID); err != nil {
		t.Fatalf("MarkReminded() error = %v", err)
	}
	items, _ = s.GetDueItems(now)
	if len(items) != 1 {
		t.Fatalf("GetDueItems() after MarkReminded returned %d items, want 1", len(items))
	}
	if items[0].Kind != record.KindEvent {
		t.Errorf("remaining due item kind = %q, want Event", items[0].Kind)
	}
}

func TestMarkReminded_NoteRejected(t *testing.T) {
	s := openTestStore(t)
	if err := s.MarkReminded(record.KindNote, 1); err == nil {
		t.Fatal("MarkReminded(Note) error = nil, want error")
	}
}

func TestDeleteExpired(t *testing.T) {
	s := openTestStore(t)
	c := mustCreateContext(t, s, "Errands")

	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	// Non-permanent and expired: purged.
	if _, err := s.InsertRecord(record.NewTask(record.Task{Content: "expired"}, record.NonPermanent, now.Add(-48*time.Hour), &past, c.ID)); err != nil {
		t.Fatalf("InsertRecord() error = %v", err)
	}
	// Permanent: kept forever.
	if _, err := s.InsertRecord(record.NewNote(record.Note{Content: "keep"}, record.Permanent, now, nil, c.ID)); err != nil {
		t.Fatalf("InsertRecord() error = %v", err)
	}
	// Events go when expired even if marked permanent; a past event has no
	// retrieval value.
	if _, err := s.InsertRecord(record.NewEvent(record.Event{Title: "old meeting", StartTime: past}, record.Permanent, now, &past, c.ID)); err != nil {
		t.Fatalf("InsertRecord() error = %v", err)
	}

	n, err := s.DeleteExpired(now)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteExpired() = %d, want 2", n)
	}

	stats, _ := s.Stats()
	if stats.Tasks != 0 || stats.Notes != 1 || stats.Events != 0 {
		t.Errorf("Stats after purge = %+v, want 0 tasks, 1 note, 0 events", stats)
	}
}

func TestGetContentForContext_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	c := mustCreateContext(t, s, "Trip")

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if _, err := s.InsertRecord(record.NewNote(record.Note{Content: "older"}, record.Permanent, base, nil, c.ID)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertRecord(record.NewTask(record.Task{Content: "newer"}, record.Permanent, base.Add(time.Hour), nil, c.ID)); err != nil {
		t.Fatal(err)
	}

	records, err := s.GetContentForContext(c.ID)
	if err != nil {
		t.Fatalf("GetContentForContext() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Content != "newer" || records[1].Content != "older" {
		t.Errorf("order = [%s, %s], want [newer, older]", records[0].Content, records[1].Content)
	}
}

func TestGetContextsNeedingSummary(t *testing.T) {
	s := openTestStore(t)
	a := mustCreateContext(t, s, "A")
	mustCreateContext(t, s, "B")

	if err := s.UpdateContextSummary(a.ID, "done", []float32{1}); err != nil {
		t.Fatalf("UpdateContextSummary() error = %v", err)
	}

	pending, err := s.GetContextsNeedingSummary()
	if err != nil {
		t.Fatalf("GetContextsNeedingSummary() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "B" {
		t.Errorf("pending = %+v, want only B", pending)
	}
}

func TestRecentRecords_Limit(t *testing.T) {
	s := openTestStore(t)
	c := mustCreateContext(t, s, "Inbox")

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := s.InsertRecord(record.NewNote(record.Note{Content: "n"}, record.Permanent, base.Add(time.Duration(i)*time.Minute), nil, c.ID)); err != nil {
			t.Fatal(err)
		}
	}

	records, err := s.RecentRecords(3)
	if err != nil {
		t.Fatalf("RecentRecords() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("got %d records, want 3", len(records))
	}
}
