package repository

import (
	"context"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"gorm.io/gorm"
)

// ActivityLogRepository audit trail
type ActivityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

func (r *ActivityLogRepository) WithTx(tx *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: tx}
}

func (r *ActivityLogRepository) Create(ctx context.Context, log *entity.ActivityLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByEntity newest first
func (r *ActivityLogRepository) FindByEntity(ctx context.Context, entityType, entityID string) ([]entity.ActivityLog, error) {
	var items []entity.ActivityLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC, id DESC").
		Find(&items).Error
	return items, err
}
