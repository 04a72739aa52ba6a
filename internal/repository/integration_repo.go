package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/siemhub/orchestrator/internal/domain"
	"gorm.io/gorm"
)

// IntegrationRepository manages external system connection records.
type IntegrationRepository struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func (r *IntegrationRepository) Create(ctx context.Context, it *domain.Integration) error {
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(it).Error
}

func (r *IntegrationRepository) Update(ctx context.Context, it *domain.Integration) error {
	return r.db.WithContext(ctx).Save(it).Error
}

func (r *IntegrationRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.Integration{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *IntegrationRepository) GetByID(ctx context.Context, id string) (*domain.Integration, error) {
	var it domain.Integration
	if err := r.db.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *IntegrationRepository) GetByName(ctx context.Context, name string) (*domain.Integration, error) {
	var it domain.Integration
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&it).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *IntegrationRepository) List(ctx context.Context, kind string) ([]domain.Integration, error) {
	query := r.db.WithContext(ctx).Order("created_at")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var items []domain.Integration
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
