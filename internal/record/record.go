package record

import "time"

// Permanence classifies whether a record is auto-purged after its expiry date.
type Permanence string

const (
	Permanent    Permanence = "permanent"
	NonPermanent Permanence = "non-permanent"
)

// Valid reports whether p is one of the two known permanence values.
func (p Permanence) Valid() bool {
	return p == Permanent || p == NonPermanent
}

// Kind discriminates the Record variants.
type Kind string

const (
	KindTask  Kind = "Task"
	KindNote  Kind = "Note"
	KindEvent Kind = "Event"
)

// Record is the closed set of persistable entities. Exactly one of Task,
// Note, Event is non-nil, matching Kind. Every record belongs to exactly
// one context; ContextID is mandatory at insert time.
type Record struct {
	Kind  Kind
	Task  *Task
	Note  *Note
	Event *Event

	Permanence Permanence
	CreatedAt  time.Time
	ExpiryDate *time.Time
	ContextID  int64
}

// Task is an actionable to-do item, optionally due at a specific time.
type Task struct {
	Content   string
	DueDate   *time.Time
	Completed bool
}

// Note is a non-actionable piece of stored information.
type Note struct {
	Content string
}

// Event is a calendar entry with a start time and optional details.
type Event struct {
	Title       string
	StartTime   time.Time
	EndTime     *time.Time
	Location    string
	Description string
}

// NewTask wraps a Task variant with its envelope fields.
func NewTask(t Task, p Permanence, createdAt time.Time, expiry *time.Time, contextID int64) Record {
	return Record{Kind: KindTask, Task: &t, Permanence: p, CreatedAt: createdAt, ExpiryDate: expiry, ContextID: contextID}
}

// NewNote wraps a Note variant with its envelope fields.
func NewNote(n Note, p Permanence, createdAt time.Time, expiry *time.Time, contextID int64) Record {
	return Record{Kind: KindNote, Note: &n, Permanence: p, CreatedAt: createdAt, ExpiryDate: expiry, ContextID: contextID}
}

// NewEvent wraps an Event variant with its envelope fields.
func NewEvent(e Event, p Permanence, createdAt time.Time, expiry *time.Time, contextID int64) Record {
	return Record{Kind: KindEvent, Event: &e, Permanence: p, CreatedAt: createdAt, ExpiryDate: expiry, ContextID: contextID}
}

// DueItem is an inert reminder descriptor produced by the due-item sweep.
// Content holds the task content or the event title.
type DueItem struct {
	ID      int64
	Kind    Kind
	Content string
	DueDate time.Time
}
