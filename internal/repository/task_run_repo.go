package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/siemhub/orchestrator/internal/domain"
	"gorm.io/gorm"
)

// TaskRunRepository manages execution records for sync tasks.
type TaskRunRepository struct {
	db *gorm.DB
}

func NewTaskRunRepository(db *gorm.DB) *TaskRunRepository {
	return &TaskRunRepository{db: db}
}

func (r *TaskRunRepository) Create(ctx context.Context, run *domain.TaskRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// Update persists run progress. Terminal runs are immutable: once a run has
// reached success or failed, further updates are rejected.
func (r *TaskRunRepository) Update(ctx context.Context, run *domain.TaskRun) error {
	var current domain.TaskRun
	if err := r.db.WithContext(ctx).Select("id", "status").First(&current, "id = ?", run.ID).Error; err != nil {
		return err
	}
	if current.Status.Terminal() {
		return fmt.Errorf("task run %s is already %s", run.ID, current.Status)
	}
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *TaskRunRepository) GetByID(ctx context.Context, id string) (*domain.TaskRun, error) {
	var run domain.TaskRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns runs newest first, optionally filtered by task.
func (r *TaskRunRepository) List(ctx context.Context, taskID string, limit int) ([]domain.TaskRun, error) {
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if taskID != "" {
		query = query.Where("task_id = ?", taskID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var runs []domain.TaskRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// CountRunning reports live runs for a task, used by health reporting.
func (r *TaskRunRepository) CountRunning(ctx context.Context, taskID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.TaskRun{}).
		Where("task_id = ? AND status = ?", taskID, domain.RunStatusRunning).
		Count(&count).Error
	return count, err
}
