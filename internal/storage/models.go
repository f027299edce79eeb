package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrContextExists is returned by CreateContext when the unique name
// constraint is violated. Callers recover by re-resolving the existing
// context rather than failing the request.
var ErrContextExists = errors.New("context name already exists")

// ContextState models the summary lifecycle of a context.
//
// Transitions:
//
//	stable --(record attached)--> needs_summary
//	needs_summary --(summary regenerated)--> stable
type ContextState string

const (
	StateStable       ContextState = "stable"
	StateNeedsSummary ContextState = "needs_summary"
)

// Context is a durable named grouping of records, discovered or created via
// semantic search. Contexts are never deleted.
type Context struct {
	ID          int64
	Name        string
	Summary     string
	State       ContextState
	LastUpdated time.Time
}

// RecordSummary is a flattened view of any record variant, used by the
// admin API and the query_context read path.
type RecordSummary struct {
	Kind      string
	ID        int64
	Content   string
	CreatedAt time.Time
}

// Stats aggregates row counts for the status surface.
type Stats struct {
	Contexts int
	Tasks    int
	Notes    int
	Events   int
}
