package entity

import "time"

// Role
type Role struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (Role) TableName() string {
	return "roles"
}

// User back-office user
type User struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"size:100;not null"`
	Email         string    `json:"email" gorm:"size:200"`
	Status        string    `json:"status" gorm:"size:20;not null"`
	PrimaryRoleID *int64    `json:"primary_role_id" gorm:"index"`
	BranchID      *int64    `json:"branch_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	PrimaryRole *Role `json:"primary_role,omitempty" gorm:"foreignKey:PrimaryRoleID"`
}

func (User) TableName() string {
	return "users"
}

// RolePermission per-scope grants; can_hard_delete is added by migration
type RolePermission struct {
	ID        int64  `json:"id" gorm:"primaryKey"`
	RoleID    int64  `json:"role_id" gorm:"not null;uniqueIndex:ux_role_permissions_scope"`
	ScopeKey  string `json:"scope_key" gorm:"size:150;not null;uniqueIndex:ux_role_permissions_scope"`
	CanView   bool   `json:"can_view" gorm:"not null"`
	CanCreate bool   `json:"can_create" gorm:"not null"`
	CanEdit   bool   `json:"can_edit" gorm:"not null"`
	CanDelete bool   `json:"can_delete" gorm:"not null"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

// UserPermission per-user override of a role grant
type UserPermission struct {
	ID       int64  `json:"id" gorm:"primaryKey"`
	UserID   int64  `json:"user_id" gorm:"not null;uniqueIndex:ux_user_permissions_scope"`
	ScopeKey string `json:"scope_key" gorm:"size:150;not null;uniqueIndex:ux_user_permissions_scope"`
}

func (UserPermission) TableName() string {
	return "user_permissions"
}
