package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/siemhub/orchestrator/internal/repository"
)

// TaskRunHandler serves run history and the task mutation audit log.
type TaskRunHandler struct {
	runs  *repository.TaskRunRepository
	audit *repository.RequestLogRepository
}

// NewTaskRunHandler creates a new task run handler.
func NewTaskRunHandler(runs *repository.TaskRunRepository, audit *repository.RequestLogRepository) *TaskRunHandler {
	return &TaskRunHandler{runs: runs, audit: audit}
}

// ListTaskRuns handles GET /api/v1/task_runs.
func (h *TaskRunHandler) ListTaskRuns(c *gin.Context) {
	taskID := c.Query("task_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	runs, err := h.runs.List(c.Request.Context(), taskID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_runs": runs, "total": len(runs)})
}

// GetTaskRun handles GET /api/v1/task_runs/:id.
func (h *TaskRunHandler) GetTaskRun(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListTaskRequestLogs handles GET /api/v1/task_request_logs.
func (h *TaskRunHandler) ListTaskRequestLogs(c *gin.Context) {
	taskID := c.Query("task_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.audit.List(c.Request.Context(), taskID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_request_logs": entries, "total": len(entries)})
}
