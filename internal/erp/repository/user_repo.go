package repository

import (
	"context"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"gorm.io/gorm"
)

// UserRepository users and roles
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	var user entity.User
	if err := r.db.WithContext(ctx).Preload("PrimaryRole").First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ActiveAdminEmails raw emails of active users whose primary role is admin.
// Address validation happens in the service.
func (r *UserRepository) ActiveAdminEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.db.WithContext(ctx).
		Table("users AS u").
		Select("u.email").
		Joins("JOIN roles r ON r.id = u.primary_role_id").
		Where("LOWER(TRIM(r.name)) = ?", "admin").
		Where("LOWER(TRIM(u.status)) = ?", "active").
		Where("u.email IS NOT NULL").
		Order("u.id ASC").
		Scan(&emails).Error
	return emails, err
}

// PermissionRepository hard-delete grants
type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// CanHardDelete user override when set, otherwise the role grant, otherwise false
func (r *PermissionRepository) CanHardDelete(ctx context.Context, userID, roleID int64, scopeKey string) (bool, error) {
	var override []struct {
		CanHardDelete *bool
	}
	err := r.db.WithContext(ctx).
		Raw("SELECT can_hard_delete FROM user_permissions WHERE user_id = ? AND scope_key = ?", userID, scopeKey).
		Scan(&override).Error
	if err != nil {
		return false, err
	}
	if len(override) > 0 && override[0].CanHardDelete != nil {
		return *override[0].CanHardDelete, nil
	}

	var granted []struct {
		CanHardDelete bool
	}
	err = r.db.WithContext(ctx).
		Raw("SELECT can_hard_delete FROM role_permissions WHERE role_id = ? AND scope_key = ?", roleID, scopeKey).
		Scan(&granted).Error
	if err != nil {
		return false, err
	}
	return len(granted) > 0 && granted[0].CanHardDelete, nil
}
