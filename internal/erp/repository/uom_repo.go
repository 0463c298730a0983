package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"gorm.io/gorm"
)

// UOMRepository unit conversions
type UOMRepository struct {
	db *gorm.DB
}

func NewUOMRepository(db *gorm.DB) *UOMRepository {
	return &UOMRepository{db: db}
}

func (r *UOMRepository) WithTx(tx *gorm.DB) *UOMRepository {
	return &UOMRepository{db: tx}
}

// ConversionRow conversion with unit codes for display
type ConversionRow struct {
	entity.UOMConversion
	FromCode string `json:"from_code"`
	ToCode   string `json:"to_code"`
}

func (r *UOMRepository) List(ctx context.Context) ([]ConversionRow, error) {
	var rows []ConversionRow
	err := r.db.WithContext(ctx).
		Table("uom_conversions AS c").
		Select("c.*, f.code AS from_code, t.code AS to_code").
		Joins("JOIN uoms f ON f.id = c.from_uom_id").
		Joins("JOIN uoms t ON t.id = c.to_uom_id").
		Order("c.id ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *UOMRepository) FindByID(ctx context.Context, id int64) (*entity.UOMConversion, error) {
	var conv entity.UOMConversion
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (r *UOMRepository) Create(ctx context.Context, conv *entity.UOMConversion) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *UOMRepository) Update(ctx context.Context, conv *entity.UOMConversion) error {
	return r.db.WithContext(ctx).Save(conv).Error
}

// PairExists another conversion with the same (from, to)
func (r *UOMRepository) PairExists(ctx context.Context, fromID, toID, excludeID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.UOMConversion{}).
		Where("from_uom_id = ? AND to_uom_id = ? AND id <> ?", fromID, toID, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *UOMRepository) Toggle(ctx context.Context, id, actor int64) (bool, error) {
	conv, err := r.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	err = r.db.WithContext(ctx).Model(&entity.UOMConversion{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  !conv.IsActive,
			"updated_by": actor,
			"updated_at": time.Now(),
		}).Error
	return !conv.IsActive, err
}

func (r *UOMRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&entity.UOMConversion{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
