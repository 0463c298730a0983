package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Reference a column pointing at a master row
type Reference struct {
	Table  string
	Column string
}

// Option select option for forms
type Option struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// MasterRepository table-generic access for the attribute masters. Table and
// column names come from compiled-in resource descriptors, never from input.
type MasterRepository struct {
	db *gorm.DB
}

func NewMasterRepository(db *gorm.DB) *MasterRepository {
	return &MasterRepository{db: db}
}

// WithTx same repository bound to tx
func (r *MasterRepository) WithTx(tx *gorm.DB) *MasterRepository {
	return &MasterRepository{db: tx}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (r *MasterRepository) List(ctx context.Context, table string) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	err := r.db.WithContext(ctx).Table(table).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (r *MasterRepository) Get(ctx context.Context, table string, id int64) (map[string]interface{}, error) {
	var rows []map[string]interface{}
	err := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Insert returns the new id
func (r *MasterRepository) Insert(ctx context.Context, table string, values map[string]interface{}) (int64, error) {
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		marks[i] = "?"
		args[i] = values[col]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	var id int64
	if err := r.db.WithContext(ctx).Raw(sql, args...).Scan(&id).Error; err != nil {
		return 0, err
	}
	return id, nil
}

func (r *MasterRepository) Update(ctx context.Context, table string, id int64, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Toggle flips is_active and returns the new value
func (r *MasterRepository) Toggle(ctx context.Context, table string, id int64, actor int64) (bool, error) {
	var active []bool
	sql := fmt.Sprintf("UPDATE %s SET is_active = NOT is_active, updated_by = ?, updated_at = ? WHERE id = ? RETURNING is_active", quoteIdent(table))
	if err := r.db.WithContext(ctx).Raw(sql, actor, time.Now(), id).Scan(&active).Error; err != nil {
		return false, err
	}
	if len(active) == 0 {
		return false, ErrNotFound
	}
	return active[0], nil
}

func (r *MasterRepository) Delete(ctx context.Context, table string, id int64) error {
	result := r.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(table)), id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CodeExists case-insensitive; excludeID skips the row being edited
func (r *MasterRepository) CodeExists(ctx context.Context, table, code string, excludeID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Table(table).
		Where("LOWER(code) = LOWER(?) AND id <> ?", code, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *MasterRepository) Exists(ctx context.Context, table string, id int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// CountReferences rows across refs pointing at id
func (r *MasterRepository) CountReferences(ctx context.Context, refs []Reference, id int64) (int64, error) {
	var total int64
	for _, ref := range refs {
		var count int64
		if err := r.db.WithContext(ctx).Table(ref.Table).Where(quoteIdent(ref.Column)+" = ?", id).Count(&count).Error; err != nil {
			return 0, fmt.Errorf("count %s.%s: %w", ref.Table, ref.Column, err)
		}
		total += count
	}
	return total, nil
}

// Options active rows for a select field
func (r *MasterRepository) Options(ctx context.Context, table string) ([]Option, error) {
	var opts []Option
	err := r.db.WithContext(ctx).Table(table).
		Select("id, code, name").
		Where("is_active = ?", true).
		Order("name ASC").
		Scan(&opts).Error
	return opts, err
}

// ReplaceItemTypes deletes and re-inserts the item-type map of one row
func (r *MasterRepository) ReplaceItemTypes(ctx context.Context, mapTable, fk string, id int64, itemTypes []string) error {
	db := r.db.WithContext(ctx)
	if err := db.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(mapTable), quoteIdent(fk)), id).Error; err != nil {
		return err
	}
	for _, t := range itemTypes {
		sql := fmt.Sprintf("INSERT INTO %s (%s, item_type) VALUES (?, ?)", quoteIdent(mapTable), quoteIdent(fk))
		if err := db.Exec(sql, id, t).Error; err != nil {
			return err
		}
	}
	return nil
}

// ItemTypes item-type map for the given rows
func (r *MasterRepository) ItemTypes(ctx context.Context, mapTable, fk string, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		OwnerID  int64
		ItemType string
	}
	err := r.db.WithContext(ctx).Table(mapTable).
		Select(quoteIdent(fk)+" AS owner_id, item_type").
		Where(quoteIdent(fk)+" IN ?", ids).
		Order("item_type ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.OwnerID] = append(out[row.OwnerID], row.ItemType)
	}
	return out, nil
}
