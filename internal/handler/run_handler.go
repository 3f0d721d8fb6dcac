package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"workoutnet/internal/store/sqlitevec"
	"workoutnet/pkg/response"
)

// RunStore is the read side of the run history.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]sqlitevec.Run, error)
	GetRun(ctx context.Context, id string) (sqlitevec.Run, error)
	LoadEpochs(ctx context.Context, runID string) ([]sqlitevec.Epoch, error)
}

// RunHandler serves recorded training runs.
type RunHandler struct {
	store RunStore
}

func NewRunHandler(store RunStore) *RunHandler {
	return &RunHandler{store: store}
}

// ListRuns handles GET /api/v1/runs?limit=N
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.BadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}
	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	response.Success(c, gin.H{"runs": runs, "total": len(runs)})
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	response.Success(c, run)
}

// GetEpochs handles GET /api/v1/runs/:id/epochs
func (h *RunHandler) GetEpochs(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	epochs, err := h.store.LoadEpochs(c.Request.Context(), run.ID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to load epochs", err)
		return
	}
	response.Success(c, gin.H{"run_id": run.ID, "epochs": epochs})
}

func (h *RunHandler) lookup(c *gin.Context) (sqlitevec.Run, bool) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, sqlitevec.ErrNotFound):
		response.NotFound(c, "Run not found")
		return run, false
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "Failed to get run", err)
		return run, false
	}
	return run, true
}
