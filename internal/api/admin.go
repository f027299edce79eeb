package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aurabot/aura/internal/storage"
)

// AdminStore is the slice of the persistence layer the admin API reads.
// The API is read-only: all writes go through the mail pipeline.
type AdminStore interface {
	ListContexts() ([]storage.Context, error)
	GetContext(id int64) (*storage.Context, error)
	GetContentForContext(contextID int64) ([]storage.RecordSummary, error)
	RecentRecords(limit int) ([]storage.RecordSummary, error)
	Stats() (storage.Stats, error)
}

// Deps holds dependencies for the admin HTTP surface.
type Deps struct {
	Store AdminStore
	Token string
}

// NewHandler returns the admin API router. /health is open; everything else
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/contexts", handleListContexts(deps))
		r.Get("/contexts/{id}/records", handleContextRecords(deps))
		r.Get("/records", handleRecentRecords(deps))
	})

	return r
}

// BearerAuth rejects requests without the expected bearer token.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if token == "" || !strings.HasPrefix(auth, prefix) ||
				subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storage unavailable: %v", err)
			return
		}
		writeJSON(w, map[string]any{
			"status":   "ok",
			"contexts": stats.Contexts,
			"tasks":    stats.Tasks,
			"notes":    stats.Notes,
			"events":   stats.Events,
		})
	}
}

type contextView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Summary     string `json:"summary"`
	State       string `json:"state"`
	LastUpdated string `json:"last_updated"`
}

func handleListContexts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contexts, err := deps.Store.ListContexts()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list contexts: %v", err)
			return
		}
		views := make([]contextView, len(contexts))
		for i, c := range contexts {
			views[i] = contextView{
				ID:          c.ID,
				Name:        c.Name,
				Summary:     c.Summary,
				State:       string(c.State),
				LastUpdated: c.LastUpdated.Format(time.RFC3339),
			}
		}
		writeJSON(w, views)
	}
}

type recordView struct {
	Kind      string `json:"kind"`
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func recordViews(records []storage.RecordSummary) []recordView {
	views := make([]recordView, len(records))
	for i, r := range records {
		views[i] = recordView{
			Kind:      r.Kind,
			ID:        r.ID,
			Content:   r.Content,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		}
	}
	return views
}

func handleContextRecords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid context id")
			return
		}
		if _, err := deps.Store.GetContext(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "context not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get context: %v", err)
			return
		}
		records, err := deps.Store.GetContentForContext(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list records: %v", err)
			return
		}
		writeJSON(w, recordViews(records))
	}
}

func handleRecentRecords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		records, err := deps.Store.RecentRecords(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list records: %v", err)
			return
		}
		writeJSON(w, recordViews(records))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
