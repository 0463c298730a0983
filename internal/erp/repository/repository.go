package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories repository set
type Repositories struct {
	Master      *MasterRepository
	UOM         *UOMRepository
	SKU         *SKURepository
	Approval    *ApprovalRepository
	ActivityLog *ActivityLogRepository
	User        *UserRepository
	Permission  *PermissionRepository
}

// NewRepositories builds every repository on db
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Master:      NewMasterRepository(db),
		UOM:         NewUOMRepository(db),
		SKU:         NewSKURepository(db),
		Approval:    NewApprovalRepository(db),
		ActivityLog: NewActivityLogRepository(db),
		User:        NewUserRepository(db),
		Permission:  NewPermissionRepository(db),
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
