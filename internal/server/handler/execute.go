package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nouslabs/nous/internal/domain"
)

// TaskHandler processes an execution task, typically the pipeline executor.
type TaskHandler interface {
	HandleTask(ctx context.Context, task domain.Task) error
}

// ExecuteHandler exposes order execution as an HTTP push endpoint, so an
// external scheduler can fire tasks instead of the built-in queue worker.
type ExecuteHandler struct {
	executor TaskHandler
	logger   *slog.Logger
}

// NewExecuteHandler creates an ExecuteHandler delegating to executor.
func NewExecuteHandler(executor TaskHandler, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{executor: executor, logger: logger}
}

// Execute runs one task synchronously.
// POST /v1/execute
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "execute")

	var task domain.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid task payload")
		return
	}
	if task.ID == "" || task.Symbol == "" {
		writeError(w, http.StatusBadRequest, "task requires id and symbol")
		return
	}

	if err := h.executor.HandleTask(r.Context(), task); err != nil {
		log.ErrorContext(r.Context(), "task execution failed",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "task execution failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "done",
		"task_id": task.ID,
	})
}
