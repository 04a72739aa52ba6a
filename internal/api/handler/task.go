package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/siemhub/orchestrator/internal/domain"
	"github.com/siemhub/orchestrator/internal/logger"
	"github.com/siemhub/orchestrator/internal/repository"
)

// SyncRunner executes a task synchronously and returns its run record.
type SyncRunner interface {
	Run(ctx context.Context, taskID string) (*domain.TaskRun, error)
}

// ScheduleValidator checks cron expressions with the scheduler's parser.
type ScheduleValidator interface {
	ValidateSchedule(expr string) error
}

// TaskHandler handles task CRUD and manual runs.
type TaskHandler struct {
	tasks        *repository.TaskRepository
	integrations *repository.IntegrationRepository
	audit        *repository.RequestLogRepository
	runner       SyncRunner
	schedules    ScheduleValidator
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(
	tasks *repository.TaskRepository,
	integrations *repository.IntegrationRepository,
	audit *repository.RequestLogRepository,
	runner SyncRunner,
	schedules ScheduleValidator,
) *TaskHandler {
	return &TaskHandler{
		tasks:        tasks,
		integrations: integrations,
		audit:        audit,
		runner:       runner,
		schedules:    schedules,
	}
}

// ListTasks handles GET /api/v1/tasks.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": len(tasks)})
}

// GetTask handles GET /api/v1/tasks/:id.
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// CreateTask handles POST /api/v1/tasks. The raw request payload is journaled
// to the audit log after a successful create.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var task domain.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	task.ID = ""
	task.RunningSince = nil
	task.LastEvaluatedAt = nil

	ctx := c.Request.Context()
	if err := h.validateTask(ctx, &task); err != nil {
		respondError(c, err)
		return
	}

	if err := h.tasks.Create(ctx, &task); err != nil {
		respondError(c, err)
		return
	}

	h.journal(c, &task, domain.AuditActionCreate, payload)
	c.JSON(http.StatusCreated, task)
}

// UpdateTask handles PUT /api/v1/tasks/:id. Scheduler-owned fields on the
// stored record are preserved.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.tasks.GetByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	updated := *existing
	if err := json.Unmarshal(payload, &updated); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON: " + err.Error()})
		return
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.LastEvaluatedAt = existing.LastEvaluatedAt
	updated.RunningSince = existing.RunningSince

	if err := h.validateTask(ctx, &updated); err != nil {
		respondError(c, err)
		return
	}

	if err := h.tasks.Update(ctx, &updated); err != nil {
		respondError(c, err)
		return
	}

	h.journal(c, &updated, domain.AuditActionUpdate, payload)
	c.JSON(http.StatusOK, updated)
}

// DeleteTask handles DELETE /api/v1/tasks/:id. Task runs are kept as history.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	if err := h.tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// RunTask handles POST /api/v1/tasks/:id/run. The run executes synchronously;
// a run that failed still responds 200 with the failed TaskRun, while a run
// that could not start (unknown task, already running) maps to an error
// status.
func (h *TaskHandler) RunTask(c *gin.Context) {
	run, err := h.runner.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *TaskHandler) validateTask(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if err := h.schedules.ValidateSchedule(task.Schedule); err != nil {
		return err
	}

	source, err := h.integrations.GetByID(ctx, task.SourceIntegrationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.Validationf("source integration %q does not exist", task.SourceIntegrationID)
		}
		return err
	}
	if source.Kind != domain.IntegrationElasticsearch {
		return domain.Validationf("source integration %q is %s, expected elasticsearch", source.Name, source.Kind)
	}

	dest, err := h.integrations.GetByID(ctx, task.DestIntegrationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.Validationf("dest integration %q does not exist", task.DestIntegrationID)
		}
		return err
	}
	if !dest.IsRelational() {
		return domain.Validationf("dest integration %q is %s, expected a relational destination", dest.Name, dest.Kind)
	}
	return nil
}

// journal appends an audit entry for a task mutation. Audit failures are
// logged, not surfaced: the mutation already happened.
func (h *TaskHandler) journal(c *gin.Context, task *domain.Task, action string, payload []byte) {
	actor := c.GetHeader("X-Actor")
	if actor == "" {
		actor = "anonymous"
	}
	entry := &domain.TaskRequestLog{
		TaskID:   task.ID,
		TaskName: task.Name,
		Actor:    actor,
		Action:   action,
		Payload:  payload,
	}
	if err := h.audit.Append(c.Request.Context(), entry); err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Failed to journal task mutation")
	}
}
