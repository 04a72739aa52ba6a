package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/siemhub/orchestrator/internal/domain"
	"gorm.io/gorm"
)

// RequestLogRepository is the append-only audit trail for task mutations.
// Entries are never updated or deleted.
type RequestLogRepository struct {
	db *gorm.DB
}

func NewRequestLogRepository(db *gorm.DB) *RequestLogRepository {
	return &RequestLogRepository{db: db}
}

func (r *RequestLogRepository) Append(ctx context.Context, entry *domain.TaskRequestLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns audit entries newest first, optionally filtered by task.
func (r *RequestLogRepository) List(ctx context.Context, taskID string, limit int) ([]domain.TaskRequestLog, error) {
	query := r.db.WithContext(ctx).Order("logged_at DESC")
	if taskID != "" {
		query = query.Where("task_id = ?", taskID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []domain.TaskRequestLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
