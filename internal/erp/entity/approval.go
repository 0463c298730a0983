package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Approval request status
const (
	ApprovalStatusPending  = "PENDING"
	ApprovalStatusApproved = "APPROVED"
	ApprovalStatusRejected = "REJECTED"
)

// ApprovalRequest a privileged write held for an administrator's decision
type ApprovalRequest struct {
	ID           int64          `json:"id" gorm:"primaryKey"`
	BranchID     *int64         `json:"branch_id" gorm:"index"`
	RequestedBy  int64          `json:"requested_by" gorm:"not null;index"`
	RequestType  string         `json:"request_type" gorm:"size:50;not null"`
	EntityType   string         `json:"entity_type" gorm:"size:50;not null;index:idx_approval_requests_entity"`
	EntityID     string         `json:"entity_id" gorm:"size:100;not null;index:idx_approval_requests_entity"`
	Summary      string         `json:"summary" gorm:"type:text"`
	OldValue     datatypes.JSON `json:"old_value" gorm:"type:jsonb"`
	NewValue     datatypes.JSON `json:"new_value" gorm:"type:jsonb"`
	Status       string         `json:"status" gorm:"size:20;not null;index"`
	DecidedBy    *int64         `json:"decided_by"`
	DecidedAt    *time.Time     `json:"decided_at"`
	DecisionNote string         `json:"decision_note" gorm:"type:text"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// ApprovalPolicy whether a role's (scope, action) must be approved
type ApprovalPolicy struct {
	ID               int64  `json:"id" gorm:"primaryKey"`
	RoleID           int64  `json:"role_id" gorm:"not null;uniqueIndex:ux_approval_policies_key"`
	ScopeKey         string `json:"scope_key" gorm:"size:150;not null;uniqueIndex:ux_approval_policies_key"`
	Action           string `json:"action" gorm:"size:20;not null;uniqueIndex:ux_approval_policies_key"`
	RequiresApproval bool   `json:"requires_approval" gorm:"not null"`
}

func (ApprovalPolicy) TableName() string {
	return "approval_policies"
}

// ActivityLog audit trail entry
type ActivityLog struct {
	ID          int64          `json:"id" gorm:"primaryKey"`
	BranchID    *int64         `json:"branch_id"`
	UserID      int64          `json:"user_id" gorm:"not null;index"`
	EntityType  string         `json:"entity_type" gorm:"size:50;not null;index:idx_activity_logs_entity"`
	EntityID    string         `json:"entity_id" gorm:"size:100;not null;index:idx_activity_logs_entity"`
	Action      string         `json:"action" gorm:"size:30;not null"`
	ContextJSON datatypes.JSON `json:"context_json" gorm:"column:context_json;type:jsonb"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
