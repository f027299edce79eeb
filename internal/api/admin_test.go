package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aurabot/aura/internal/storage"
)

type fakeStore struct {
	contexts []storage.Context
	records  []storage.RecordSummary
	stats    storage.Stats

	gotLimit int
}

func (f *fakeStore) ListContexts() ([]storage.Context, error) { return f.contexts, nil }

func (f *fakeStore) GetContext(id int64) (*storage.Context, error) {
	for i := range f.contexts {
		if f.contexts[i].ID == id {
			return &f.contexts[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetContentForContext(contextID int64) ([]storage.RecordSummary, error) {
	return f.records, nil
}

func (f *fakeStore) RecentRecords(limit int) ([]storage.RecordSummary, error) {
	f.gotLimit = limit
	return f.records, nil
}

func (f *fakeStore) Stats() (storage.Stats, error) { return f.stats, nil }

func newTestServer(store AdminStore) *httptest.Server {
	return httptest.NewServer(NewHandler(Deps{Store: store, Token: "secret"}))
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth_OpenEndpoint(t *testing.T) {
	srv := newTestServer(&fakeStore{stats: storage.Stats{Contexts: 2, Tasks: 3}})
	defer srv.Close()

	resp := get(t, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 without auth", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["contexts"] != float64(2) {
		t.Errorf("contexts = %v, want 2", body["contexts"])
	}
}

func TestContexts_RequiresToken(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	if resp := get(t, srv.URL+"/contexts", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/contexts", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/contexts", "secret"); resp.StatusCode != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", resp.StatusCode)
	}
}

func TestContexts_EmptyTokenRejectsEverything(t *testing.T) {
	srv := httptest.NewServer(NewHandler(Deps{Store: &fakeStore{}, Token: ""}))
	defer srv.Close()

	if resp := get(t, srv.URL+"/contexts", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when no token is configured", resp.StatusCode)
	}
}

func TestContexts_ListsViews(t *testing.T) {
	updated := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(&fakeStore{contexts: []storage.Context{
		{ID: 1, Name: "Dentist", Summary: "teeth", State: storage.StateStable, LastUpdated: updated},
	}})
	defer srv.Close()

	resp := get(t, srv.URL+"/contexts", "secret")
	var views []contextView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d contexts, want 1", len(views))
	}
	if views[0].Name != "Dentist" || views[0].State != "stable" {
		t.Errorf("view = %+v", views[0])
	}
	if views[0].LastUpdated != updated.Format(time.RFC3339) {
		t.Errorf("LastUpdated = %q, want RFC 3339", views[0].LastUpdated)
	}
}

func TestContextRecords_UnknownContextIs404(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	if resp := get(t, srv.URL+"/contexts/99/records", "secret"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestContextRecords_InvalidIDIs400(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	if resp := get(t, srv.URL+"/contexts/abc/records", "secret"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRecentRecords_LimitClamped(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store)
	defer srv.Close()

	get(t, srv.URL+"/records?limit=5000", "secret")
	if store.gotLimit != 100 {
		t.Errorf("limit = %d, want clamped to 100", store.gotLimit)
	}

	get(t, srv.URL+"/records", "secret")
	if store.gotLimit != 20 {
		t.Errorf("limit = %d, want default 20", store.gotLimit)
	}
}
