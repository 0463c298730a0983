package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApprovalRepository approval requests and policies
type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) WithTx(tx *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: tx}
}

func (r *ApprovalRepository) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *ApprovalRepository) FindByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// FindForUpdate row-locks the request for a decision
func (r *ApprovalRepository) FindForUpdate(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	var req entity.ApprovalRequest
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// List newest first; empty status lists all
func (r *ApprovalRepository) List(ctx context.Context, status string, page, pageSize int) ([]entity.ApprovalRequest, int64, error) {
	var items []entity.ApprovalRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ApprovalRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&items).Error
	return items, total, err
}

// Decide moves a PENDING request to status; false when it was no longer pending
func (r *ApprovalRepository) Decide(ctx context.Context, id int64, status string, decidedBy int64, note string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entity.ApprovalRequest{}).
		Where("id = ? AND status = ?", id, entity.ApprovalStatusPending).
		Updates(map[string]interface{}{
			"status":        status,
			"decided_by":    decidedBy,
			"decided_at":    now,
			"decision_note": note,
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindPolicy nil when the role has no policy for (scope, action)
func (r *ApprovalRepository) FindPolicy(ctx context.Context, roleID int64, scopeKey, action string) (*entity.ApprovalPolicy, error) {
	var policies []entity.ApprovalPolicy
	err := r.db.WithContext(ctx).
		Where("role_id = ? AND scope_key = ? AND action = ?", roleID, scopeKey, action).
		Limit(1).
		Find(&policies).Error
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		return nil, nil
	}
	return &policies[0], nil
}
