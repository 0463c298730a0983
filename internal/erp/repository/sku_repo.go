package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SKURepository variants and their SKUs
type SKURepository struct {
	db *gorm.DB
}

func NewSKURepository(db *gorm.DB) *SKURepository {
	return &SKURepository{db: db}
}

func (r *SKURepository) DB() *gorm.DB {
	return r.db
}

func (r *SKURepository) WithTx(tx *gorm.DB) *SKURepository {
	return &SKURepository{db: tx}
}

// ========== Lookups ==========

func (r *SKURepository) FindItem(ctx context.Context, itemID int64) (*entity.Item, error) {
	var item entity.Item
	if err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// Names id → name for one attribute master table
func (r *SKURepository) Names(ctx context.Context, table string, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID   int64
		Name string
	}
	if err := r.db.WithContext(ctx).Table(table).Select("id, name").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.Name
	}
	return out, nil
}

// ========== Variant ==========

// FindVariant matches absent color/packing with IS NULL
func (r *SKURepository) FindVariant(ctx context.Context, itemID, sizeID, gradeID int64, colorID, packingTypeID *int64) (*entity.Variant, error) {
	q := r.db.WithContext(ctx).Where("item_id = ? AND size_id = ? AND grade_id = ?", itemID, sizeID, gradeID)
	if colorID == nil {
		q = q.Where("color_id IS NULL")
	} else {
		q = q.Where("color_id = ?", *colorID)
	}
	if packingTypeID == nil {
		q = q.Where("packing_type_id IS NULL")
	} else {
		q = q.Where("packing_type_id = ?", *packingTypeID)
	}

	var variants []entity.Variant
	if err := q.Limit(1).Find(&variants).Error; err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, nil
	}
	return &variants[0], nil
}

func (r *SKURepository) FindVariantByID(ctx context.Context, id int64) (*entity.Variant, error) {
	var v entity.Variant
	if err := r.db.WithContext(ctx).Preload("SKU").First(&v, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (r *SKURepository) CreateVariant(ctx context.Context, v *entity.Variant) error {
	return r.db.WithContext(ctx).Omit("SKU").Create(v).Error
}

func (r *SKURepository) UpdateVariantRate(ctx context.Context, id int64, rate decimal.Decimal, actor int64) error {
	return r.db.WithContext(ctx).Model(&entity.Variant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sale_rate":  rate,
			"updated_by": actor,
			"updated_at": time.Now(),
		}).Error
}

// UpdateVariant rewrites attributes; nil color/packing are stored as NULL
func (r *SKURepository) UpdateVariant(ctx context.Context, v *entity.Variant) error {
	return r.db.WithContext(ctx).Model(&entity.Variant{}).
		Where("id = ?", v.ID).
		Updates(map[string]interface{}{
			"size_id":         v.SizeID,
			"grade_id":        v.GradeID,
			"color_id":        v.ColorID,
			"packing_type_id": v.PackingTypeID,
			"sale_rate":       v.SaleRate,
			"is_active":       v.IsActive,
			"updated_by":      v.UpdatedBy,
			"updated_at":      time.Now(),
		}).Error
}

func (r *SKURepository) CountVariants(ctx context.Context, itemID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Variant{}).Where("item_id = ?", itemID).Count(&count).Error
	return count, err
}

// ToggleVariant flips the variant and forces its SKU to the same state
func (r *SKURepository) ToggleVariant(ctx context.Context, id, actor int64) (bool, error) {
	var active []bool
	err := r.db.WithContext(ctx).
		Raw("UPDATE variants SET is_active = NOT is_active, updated_by = ?, updated_at = ? WHERE id = ? RETURNING is_active", actor, time.Now(), id).
		Scan(&active).Error
	if err != nil {
		return false, err
	}
	if len(active) == 0 {
		return false, ErrNotFound
	}
	err = r.db.WithContext(ctx).Model(&entity.SKU{}).
		Where("variant_id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active[0],
			"updated_by": actor,
			"updated_at": time.Now(),
		}).Error
	return active[0], err
}

// SetVariantActive sets the variant and its SKU to the same state
func (r *SKURepository) SetVariantActive(ctx context.Context, id int64, active bool, actor int64) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entity.Variant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_by": actor,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return r.db.WithContext(ctx).Model(&entity.SKU{}).
		Where("variant_id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_by": actor,
			"updated_at": now,
		}).Error
}

// DeleteVariant removes the SKU then the variant
func (r *SKURepository) DeleteVariant(ctx context.Context, id int64) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("variant_id = ?", id).Delete(&entity.SKU{}).Error; err != nil {
		return err
	}
	result := db.Delete(&entity.Variant{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ========== SKU ==========

func (r *SKURepository) FindSKUByVariant(ctx context.Context, variantID int64) (*entity.SKU, error) {
	var skus []entity.SKU
	if err := r.db.WithContext(ctx).Where("variant_id = ?", variantID).Limit(1).Find(&skus).Error; err != nil {
		return nil, err
	}
	if len(skus) == 0 {
		return nil, nil
	}
	return &skus[0], nil
}

// SKUCodeExists excludeID skips the SKU being re-minted
func (r *SKURepository) SKUCodeExists(ctx context.Context, code string, excludeID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.SKU{}).
		Where("sku_code = ? AND id <> ?", code, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *SKURepository) CreateSKU(ctx context.Context, s *entity.SKU) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SKURepository) UpdateSKU(ctx context.Context, id int64, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return r.db.WithContext(ctx).Model(&entity.SKU{}).Where("id = ?", id).Updates(fields).Error
}

// ========== Listing ==========

// VariantRow flattened variant + SKU + attribute names
type VariantRow struct {
	VariantID       int64           `json:"variant_id"`
	ItemID          int64           `json:"item_id"`
	ItemCode        string          `json:"item_code"`
	ItemName        string          `json:"item_name"`
	SizeID          int64           `json:"size_id"`
	SizeName        string          `json:"size_name"`
	GradeID         int64           `json:"grade_id"`
	GradeName       string          `json:"grade_name"`
	ColorID         *int64          `json:"color_id"`
	ColorName       *string         `json:"color_name"`
	PackingTypeID   *int64          `json:"packing_type_id"`
	PackingTypeName *string         `json:"packing_type_name"`
	SaleRate        decimal.Decimal `json:"sale_rate"`
	IsActive        bool            `json:"is_active"`
	SKUID           *int64          `json:"sku_id"`
	SKUCode         *string         `json:"sku_code"`
	Barcode         *string         `json:"barcode"`
}

// VariantFilter zero fields are ignored
type VariantFilter struct {
	ItemID int64
	Search string
}

func (r *SKURepository) ListVariants(ctx context.Context, filter VariantFilter) ([]VariantRow, error) {
	q := r.db.WithContext(ctx).
		Table("variants AS v").
		Select(`v.id AS variant_id, v.item_id, i.code AS item_code, i.name AS item_name,
			v.size_id, sz.name AS size_name, v.grade_id, g.name AS grade_name,
			v.color_id, c.name AS color_name, v.packing_type_id, p.name AS packing_type_name,
			v.sale_rate, v.is_active, s.id AS sku_id, s.sku_code, s.barcode`).
		Joins("JOIN items i ON i.id = v.item_id").
		Joins("JOIN sizes sz ON sz.id = v.size_id").
		Joins("JOIN grades g ON g.id = v.grade_id").
		Joins("LEFT JOIN colors c ON c.id = v.color_id").
		Joins("LEFT JOIN packing_types p ON p.id = v.packing_type_id").
		Joins("LEFT JOIN skus s ON s.variant_id = v.id")
	if filter.ItemID > 0 {
		q = q.Where("v.item_id = ?", filter.ItemID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("s.sku_code ILIKE ? OR i.name ILIKE ? OR i.code ILIKE ?", like, like, like)
	}

	var rows []VariantRow
	err := q.Order("i.code ASC, v.id ASC").Scan(&rows).Error
	return rows, err
}
