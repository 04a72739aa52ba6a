package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/siemhub/orchestrator/internal/domain"
	"gorm.io/gorm"
)

// TaskRepository manages persisted sync task definitions.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) Update(ctx context.Context, task *domain.Task) error {
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.Task{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) GetByName(ctx context.Context, name string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) List(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := r.db.WithContext(ctx).Order("created_at").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListEnabled returns tasks eligible for schedule evaluation.
func (r *TaskRepository) ListEnabled(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("created_at").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// CountByIntegration reports how many tasks reference the given integration as
// either source or destination.
func (r *TaskRepository) CountByIntegration(ctx context.Context, integrationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("source_integration_id = ? OR dest_integration_id = ?", integrationID, integrationID).
		Count(&count).Error
	return count, err
}

// AcquireRunLease marks the task as running if no other live run holds the
// lease. A lease older than staleAfter is treated as abandoned and taken over.
// Returns domain.ErrTaskAlreadyRunning when the lease is held.
func (r *TaskRepository) AcquireRunLease(ctx context.Context, taskID string, now time.Time, staleAfter time.Duration) error {
	staleBefore := now.Add(-staleAfter)
	result := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ? AND (running_since IS NULL OR running_since < ?)", taskID, staleBefore).
		Update("running_since", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a held lease from a missing task.
		var task domain.Task
		if err := r.db.WithContext(ctx).Select("id").First(&task, "id = ?", taskID).Error; err != nil {
			return err
		}
		return domain.ErrTaskAlreadyRunning
	}
	return nil
}

// ReleaseRunLease clears the running marker regardless of run outcome.
func (r *TaskRepository) ReleaseRunLease(ctx context.Context, taskID string) error {
	return r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ?", taskID).
		Update("running_since", nil).Error
}

// UpdateLastEvaluatedAt advances the schedule watermark for a task.
func (r *TaskRepository) UpdateLastEvaluatedAt(ctx context.Context, taskID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ?", taskID).
		Update("last_evaluated_at", at).Error
}

// SaveColumns persists an inferred column mapping on the task without touching
// other fields.
func (r *TaskRepository) SaveColumns(ctx context.Context, taskID string, cols domain.ColumnMappingList) error {
	return r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ?", taskID).
		Update("columns", cols).Error
}

// IsNotFound reports whether err is the store's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
