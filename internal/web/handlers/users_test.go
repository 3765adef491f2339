package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/facegate/rollcall/internal/store"
)

func TestUsersList(t *testing.T) {
	env := newTestEnv(t)
	env.store.Enroll("Bea", unit512(0), 0.8, 0.9)
	env.store.Enroll("Al", unit512(1), 0.7, 0.9)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Users []store.User `json:"users"`
		Count int          `json:"count"`
	}
	decodeBody(t, rec, &resp)

	if resp.Count != 2 || len(resp.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", resp.Count)
	}
	if resp.Users[0].Name != "Al" || resp.Users[1].Name != "Bea" {
		t.Errorf("expected sorted roster, got %v", resp.Users)
	}
}

func TestUserStats(t *testing.T) {
	env := newTestEnv(t)
	env.store.Enroll("Bea", unit512(0), 0.8, 0.9)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/Bea/stats", nil)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Name  string            `json:"name"`
		Stats store.PersonStats `json:"stats"`
	}
	decodeBody(t, rec, &resp)

	if resp.Stats.EmbeddingCount != 1 {
		t.Errorf("expected 1 embedding, got %d", resp.Stats.EmbeddingCount)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/nobody/stats", nil)
	if rec := env.do(t, req); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", rec.Code)
	}
}

func TestUpdateMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.store.Enroll("Bea", unit512(0), 0.8, 0.9)

	body := strings.NewReader(`{"student_class":"12","section":"A","house":"Green"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/Bea/metadata", body)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	md := env.store.Metadata("Bea")
	if md.StudentClass != "12" || md.Section != "A" || md.House != "Green" {
		t.Errorf("unexpected metadata: %+v", md)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/users/Bea/metadata", strings.NewReader("{bad"))
	if rec := env.do(t, req); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid body, got %d", rec.Code)
	}
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	env.store.Enroll("Bea", unit512(0), 0.8, 0.9)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/Bea", nil)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := env.store.CountEmbeddings(); got != 0 {
		t.Errorf("expected empty store, got %d", got)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/users/Bea", nil)
	if rec := env.do(t, req); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestClearUsers(t *testing.T) {
	env := newTestEnv(t)
	env.store.Enroll("Bea", unit512(0), 0.8, 0.9)
	env.store.Enroll("Al", unit512(1), 0.7, 0.9)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/users", nil)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := env.store.CountEmbeddings(); got != 0 {
		t.Errorf("expected empty store after clear, got %d", got)
	}
}

func TestFilters(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetMetadata("A", store.Metadata{StudentClass: "10", House: "Red"})
	env.store.SetMetadata("B", store.Metadata{StudentClass: "12"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/filters", nil)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var filters store.Filters
	decodeBody(t, rec, &filters)

	if len(filters.Classes) != 2 || len(filters.Houses) != 1 {
		t.Errorf("unexpected filters: %+v", filters)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("unexpected health response: %v", resp)
	}
}
