package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/facegate/rollcall/internal/store"
)

// UsersHandler handles identity management endpoints.
type UsersHandler struct {
	store *store.Store
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(st *store.Store) *UsersHandler {
	return &UsersHandler{store: st}
}

// List handles GET /users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users := h.store.UsersWithMetadata()
	respondJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// Stats handles GET /users/{name}/stats.
func (h *UsersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stats, ok := h.store.PersonStats(name)
	if !ok {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":     name,
		"stats":    stats,
		"metadata": h.store.Metadata(name),
	})
}

// UpdateMetadata handles PUT /users/{name}/metadata.
func (h *UsersHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var md store.Metadata
	if err := json.NewDecoder(r.Body).Decode(&md); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.store.SetMetadata(name, md)
	if err := h.store.Save(); err != nil {
		log.Printf("Error persisting metadata for %s: %v", sanitizeForLog(name), err)
		respondError(w, http.StatusInternalServerError, "failed to persist metadata")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"name": name, "metadata": md})
}

// Delete handles DELETE /users/{name}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.store.Delete(name) {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := h.store.Save(); err != nil {
		log.Printf("Error persisting store after deleting %s: %v", sanitizeForLog(name), err)
		respondError(w, http.StatusInternalServerError, "failed to persist deletion")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

// Clear handles DELETE /users.
func (h *UsersHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.store.Clear()
	if err := h.store.Save(); err != nil {
		log.Printf("Error persisting store after clear: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to persist clear")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// Filters handles GET /filters.
func (h *UsersHandler) Filters(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.AvailableFilters())
}
