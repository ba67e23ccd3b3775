package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cellar/internal/item"
	"cellar/internal/logging"
)

// createRequest is the POST /api/items body. Name is decoded as any so a
// non-string name is rejected the same way as a missing one.
type createRequest struct {
	Name any `json:"name"`
}

// errorResponse is every error body. ItemAge rides along only on the age
// restriction response.
type errorResponse struct {
	Error   string   `json:"error"`
	ItemAge *float64 `json:"itemAge,omitempty"`
}

type deleteResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

type healthResponse struct {
	Status string `json:"status"`
	Items  int64  `json:"items"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTPError("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleListItems returns every item, newest first.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.List(r.Context())
	if err != nil {
		logging.HTTPError("List failed: %v", err)
		logging.Audit().OpError("list", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch items")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateItem validates the name and inserts a new item.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Item name is required")
		return
	}

	name, ok := req.Name.(string)
	if !ok || strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, "Item name is required")
		return
	}

	created, err := s.store.Create(r.Context(), name)
	if err != nil {
		if errors.Is(err, item.ErrNameRequired) {
			writeError(w, http.StatusBadRequest, "Item name is required")
			return
		}
		logging.HTTPError("Create failed: %v", err)
		logging.Audit().OpError("create", err)
		writeError(w, http.StatusInternalServerError, "Failed to create item")
		return
	}

	logging.AuditWithRequest(RequestIDFromContext(r.Context())).ItemCreated(created.ID, created.Name)
	writeJSON(w, http.StatusCreated, created)
}

// handleDeleteMissingID answers DELETE /api/items and /api/items/ where no id
// was given at all.
func (s *Server) handleDeleteMissingID(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusBadRequest, "Item id is required")
}

// handleDeleteItem removes an item if it has rested past the age gate.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimSpace(r.PathValue("id"))
	if idStr == "" {
		// Reachable via an URL-encoded blank segment.
		writeError(w, http.StatusBadRequest, "Item id is required")
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		logging.HTTPError("Malformed item id %q: %v", idStr, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete item")
		return
	}

	audit := logging.AuditWithRequest(RequestIDFromContext(r.Context()))

	deleted, err := s.store.Delete(r.Context(), id)
	if err != nil {
		var ageErr *item.AgeRestrictionError
		switch {
		case errors.Is(err, item.ErrNotFound):
			writeError(w, http.StatusNotFound, "Item not found")
		case errors.As(err, &ageErr):
			audit.ItemDeleteDenied(id, ageErr.AgeDays)
			age := ageErr.AgeDays
			writeJSON(w, http.StatusForbidden, errorResponse{
				Error:   fmt.Sprintf("Cannot delete items newer than %d days", ageErr.MinDays),
				ItemAge: &age,
			})
		default:
			logging.HTTPError("Delete of item %d failed: %v", id, err)
			audit.OpError("delete", err)
			writeError(w, http.StatusInternalServerError, "Failed to delete item")
		}
		return
	}

	age, err := s.store.Age(deleted)
	if err != nil {
		age = 0
	}
	audit.ItemDeleted(deleted.ID, age)
	writeJSON(w, http.StatusOK, deleteResponse{Message: "Item deleted successfully", ID: deleted.ID})
}

// handleHealth reports liveness and the current item count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		logging.HTTPError("Health check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Items: count})
}
