package retrieval

import (
	"container/heap"
	"database/sql"
	"fmt"
	"time"
)

// ContextMatch is a stored context returned from similarity search with its
// cosine similarity score.
type ContextMatch struct {
	ID          int64
	Name        string
	Summary     string
	State       string
	LastUpdated time.Time
	Score       float32
}

// ContextIndex performs brute-force cosine similarity search over the
// embeddings co-located in the contexts table. Contexts number in the tens
// to hundreds for a single user, so a full scan per query is cheap; an ANN
// index would only pay off several orders of magnitude later.
type ContextIndex struct {
	db *sql.DB
}

// NewContextIndex wraps an existing *sql.DB for similarity search.
// The contexts table must already exist (created via migrations).
func NewContextIndex(db *sql.DB) *ContextIndex {
	return &ContextIndex{db: db}
}

// idScore holds only the row ID and score during the scan phase of Search.
// Full rows are fetched only for the top-K winners.
type idScore struct {
	ID    int64
	Score float32
}

// Search returns the top-K contexts most similar to the query vector,
// ordered by score descending. No similarity threshold is applied: deciding
// whether the best match is good enough is a semantic judgment deferred to
// the action extraction step, which sees the full candidate list.
func (ix *ContextIndex) Search(vector []float32, topK int) ([]ContextMatch, error) {
	rows, err := ix.db.Query(`SELECT id, embedding FROM contexts`)
	if err != nil {
		return nil, fmt.Errorf("querying context embeddings: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeVectorInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for context %d: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Fetch full rows for the winners, highest score first.
	ordered := make([]idScore, h.Len())
	for i := len(ordered) - 1; i >= 0; i-- {
		ordered[i] = heap.Pop(h).(idScore)
	}

	results := make([]ContextMatch, 0, len(ordered))
	for _, item := range ordered {
		var m ContextMatch
		var lastUpdated string
		err := ix.db.QueryRow(`SELECT id, name, summary, state, last_updated FROM contexts WHERE id = ?`, item.ID).
			Scan(&m.ID, &m.Name, &m.Summary, &m.State, &lastUpdated)
		if err == sql.ErrNoRows {
			// Deleted between scan and fetch; skip.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetching context %d: %w", item.ID, err)
		}
		t, err := time.Parse(time.RFC3339, lastUpdated)
		if err != nil {
			return nil, fmt.Errorf("parsing last_updated for context %d: %w", m.ID, err)
		}
		m.LastUpdated = t
		m.Score = item.Score
		results = append(results, m)
	}

	return results, nil
}

// idScoreHeap is a min-heap of idScore ordered by Score, used during the
// scan phase of Search to track top-K candidates by ID only.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
