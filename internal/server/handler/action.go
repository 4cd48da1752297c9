package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nouslabs/nous/internal/domain"
)

// ActionHandler serves read-only access to persisted actions.
type ActionHandler struct {
	store  domain.ActionStore
	logger *slog.Logger
}

// NewActionHandler creates an ActionHandler backed by store.
func NewActionHandler(store domain.ActionStore, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{store: store, logger: logger}
}

// GetAction returns one action by id.
// GET /v1/actions/{id}
func (h *ActionHandler) GetAction(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "get_action")

	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing action id")
		return
	}

	a, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	if err != nil {
		log.ErrorContext(r.Context(), "get action",
			slog.String("action_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// ListActions returns actions filtered by status.
// GET /v1/actions?status=<status>
func (h *ActionHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "list_actions")

	status := r.URL.Query().Get("status")
	if status == "" {
		writeError(w, http.StatusBadRequest, "missing status query parameter")
		return
	}

	actions, err := h.store.ListByStatus(r.Context(), domain.ActionStatus(status))
	if err != nil {
		log.ErrorContext(r.Context(), "list actions",
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"count":   len(actions),
		"actions": actions,
	})
}
