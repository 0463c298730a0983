package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/bitfantasy/backoffice/internal/erp/repository"
	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Screen actions an approval policy can gate
const (
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionToggle = "toggle"
	ActionDelete = "delete"
)

// Activity log actions
const (
	ActivitySubmit  = "SUBMIT"
	ActivityApprove = "APPROVE"
	ActivityReject  = "REJECT"
)

// NewEntityID entity_id of a request that creates a row
const NewEntityID = "NEW"

// Actor authenticated user behind a write
type Actor struct {
	UserID   int64
	Name     string
	BranchID int64
	RoleID   int64
	Roles    []string
}

// IsAdmin role name "admin", case and whitespace insensitive
func (a Actor) IsAdmin() bool {
	for _, r := range a.Roles {
		if strings.EqualFold(strings.TrimSpace(r), "admin") {
			return true
		}
	}
	return false
}

func (a Actor) branchPtr() *int64 {
	if a.BranchID == 0 {
		return nil
	}
	b := a.BranchID
	return &b
}

func (a Actor) userPtr() *int64 {
	if a.UserID == 0 {
		return nil
	}
	u := a.UserID
	return &u
}

// Decision outcome of DecideApproval
type Decision int

const (
	Skip Decision = iota
	Require
)

func (d Decision) String() string {
	if d == Require {
		return "require"
	}
	return "skip"
}

// DecideApproval admins never need approval; everyone else needs it when
// their role's policy for (scopeKey, action) says so.
func DecideApproval(policy *entity.ApprovalPolicy, actor Actor, scopeKey, action string) Decision {
	if actor.IsAdmin() || policy == nil {
		return Skip
	}
	if policy.RoleID != actor.RoleID || policy.ScopeKey != scopeKey || policy.Action != action {
		return Skip
	}
	if policy.RequiresApproval {
		return Require
	}
	return Skip
}

// RequestTypeFromScope first scope segment upper-cased:
// master_data.basic_info.uom_conversions → MASTER_DATA
func RequestTypeFromScope(scopeKey string) string {
	first := scopeKey
	if i := strings.Index(scopeKey, "."); i >= 0 {
		first = scopeKey[:i]
	}
	return strings.ToUpper(strings.TrimSpace(first))
}

// EntityIDString stores numeric and composite keys uniformly
func EntityIDString(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return NewEntityID
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(id)
}

// Submission one intercepted write
type Submission struct {
	BranchID    *int64
	RequestedBy int64
	Requester   string
	RequestType string
	EntityType  string
	EntityID    string
	Summary     string
	OldValue    interface{}
	NewValue    interface{}
	ScopeKey    string
	Action      string
}

// ScreenApproval screen-level request for (scope, action)
type ScreenApproval struct {
	ScopeKey   string
	Action     string
	EntityType string
	EntityID   string
	Summary    string
	OldValue   interface{}
	NewValue   interface{}
}

// ScreenResult Queued false means the caller performs the write itself
type ScreenResult struct {
	Queued            bool  `json:"queued"`
	ApprovalRequestID int64 `json:"approval_request_id,omitempty"`
}

// Applier replays an approved request's new_value inside the decision transaction
type Applier interface {
	Apply(ctx context.Context, tx *gorm.DB, actor Actor, req *entity.ApprovalRequest) error
}

// ApprovalStore persistence used by submissions
type ApprovalStore interface {
	Create(ctx context.Context, req *entity.ApprovalRequest) error
	FindByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error)
	List(ctx context.Context, status string, page, pageSize int) ([]entity.ApprovalRequest, int64, error)
	FindPolicy(ctx context.Context, roleID int64, scopeKey, action string) (*entity.ApprovalPolicy, error)
}

// ActivityRecorder activity log sink
type ActivityRecorder interface {
	Create(ctx context.Context, log *entity.ActivityLog) error
}

// ApprovalNotifier hands a notice off without waiting for delivery
type ApprovalNotifier interface {
	Dispatch(n ApprovalNotice)
}

// ApprovalService pending-request pipeline and decisions
type ApprovalService struct {
	store    ApprovalStore
	activity ActivityRecorder
	notifier ApprovalNotifier
	events   EventPublisher
	db       *gorm.DB
	logger   *zap.Logger

	mu       sync.RWMutex
	appliers map[string]Applier
}

// NewApprovalService db is only needed for decisions
func NewApprovalService(store ApprovalStore, activity ActivityRecorder, notifier ApprovalNotifier, db *gorm.DB, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		store:    store,
		activity: activity,
		notifier: notifier,
		db:       db,
		logger:   logger,
		appliers: make(map[string]Applier),
	}
}

// EventPublisher live feed of queue changes
type EventPublisher interface {
	Publish(eventType string, payload interface{})
}

// Queue events pushed to connected admin sessions
const (
	EventApprovalSubmitted = "approval_submitted"
	EventApprovalDecided   = "approval_decided"
)

func (s *ApprovalService) SetEventPublisher(p EventPublisher) {
	s.events = p
}

// RegisterApplier replay engine for one entity type
func (s *ApprovalService) RegisterApplier(entityType string, a Applier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appliers[entityType] = a
}

func (s *ApprovalService) applier(entityType string) Applier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appliers[entityType]
}

func toJSON(v interface{}) (datatypes.JSON, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case datatypes.JSON:
		return t, nil
	case json.RawMessage:
		return datatypes.JSON(t), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// Submit inserts one PENDING request, then logs SUBMIT, then hands the
// notification off. Nothing after a failed insert runs.
func (s *ApprovalService) Submit(ctx context.Context, sub Submission) (*entity.ApprovalRequest, error) {
	if strings.TrimSpace(sub.RequestType) == "" || strings.TrimSpace(sub.EntityType) == "" || strings.TrimSpace(sub.EntityID) == "" {
		return nil, validationError(i18n.MissingRequiredFields, "request_type, entity_type and entity_id are required")
	}
	oldValue, err := toJSON(sub.OldValue)
	if err != nil {
		return nil, validationError(i18n.MissingRequiredFields, "old_value: %v", err)
	}
	newValue, err := toJSON(sub.NewValue)
	if err != nil {
		return nil, validationError(i18n.MissingRequiredFields, "new_value: %v", err)
	}

	req := &entity.ApprovalRequest{
		BranchID:    sub.BranchID,
		RequestedBy: sub.RequestedBy,
		RequestType: strings.TrimSpace(sub.RequestType),
		EntityType:  strings.TrimSpace(sub.EntityType),
		EntityID:    strings.TrimSpace(sub.EntityID),
		Summary:     sub.Summary,
		OldValue:    oldValue,
		NewValue:    newValue,
		Status:      entity.ApprovalStatusPending,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, classify(err, "create approval request")
	}

	logCtx, _ := json.Marshal(map[string]interface{}{
		"approval_request_id": req.ID,
		"request_type":        req.RequestType,
		"entity_type":         req.EntityType,
		"entity_id":           req.EntityID,
		"summary":             req.Summary,
		"scope_key":           sub.ScopeKey,
		"action":              sub.Action,
	})
	if err := s.activity.Create(ctx, &entity.ActivityLog{
		BranchID:    req.BranchID,
		UserID:      req.RequestedBy,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Action:      ActivitySubmit,
		ContextJSON: datatypes.JSON(logCtx),
	}); err != nil {
		s.logger.Warn("activity log write failed",
			zap.Int64("approval_request_id", req.ID),
			zap.Error(err),
		)
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ApprovalNotice{
			ApprovalRequestID: req.ID,
			RequestType:       req.RequestType,
			EntityType:        req.EntityType,
			EntityID:          req.EntityID,
			Summary:           req.Summary,
			OldValue:          json.RawMessage(req.OldValue),
			NewValue:          json.RawMessage(req.NewValue),
			RequestedByName:   sub.Requester,
			BranchID:          req.BranchID,
		})
	}
	if s.events != nil {
		s.events.Publish(EventApprovalSubmitted, map[string]interface{}{
			"approval_request_id": req.ID,
			"request_type":        req.RequestType,
			"entity_type":         req.EntityType,
			"entity_id":           req.EntityID,
			"summary":             req.Summary,
		})
	}
	return req, nil
}

// HandleScreenApproval queues the write when the actor's policy requires approval
func (s *ApprovalService) HandleScreenApproval(ctx context.Context, actor Actor, sa ScreenApproval) (ScreenResult, error) {
	if actor.IsAdmin() {
		return ScreenResult{}, nil
	}
	policy, err := s.store.FindPolicy(ctx, actor.RoleID, sa.ScopeKey, sa.Action)
	if err != nil {
		return ScreenResult{}, fmt.Errorf("load approval policy: %w", err)
	}
	if DecideApproval(policy, actor, sa.ScopeKey, sa.Action) == Skip {
		return ScreenResult{}, nil
	}

	req, err := s.Submit(ctx, Submission{
		BranchID:    actor.branchPtr(),
		RequestedBy: actor.UserID,
		Requester:   actor.Name,
		RequestType: RequestTypeFromScope(sa.ScopeKey),
		EntityType:  sa.EntityType,
		EntityID:    sa.EntityID,
		Summary:     sa.Summary,
		OldValue:    sa.OldValue,
		NewValue:    sa.NewValue,
		ScopeKey:    sa.ScopeKey,
		Action:      sa.Action,
	})
	if err != nil {
		return ScreenResult{}, err
	}
	return ScreenResult{Queued: true, ApprovalRequestID: req.ID}, nil
}

func (s *ApprovalService) Get(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	req, err := s.store.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("approval request", id)
	}
	return req, err
}

func (s *ApprovalService) List(ctx context.Context, status string, page, pageSize int) ([]entity.ApprovalRequest, int64, error) {
	return s.store.List(ctx, strings.ToUpper(strings.TrimSpace(status)), page, pageSize)
}

// Approve PENDING → APPROVED, replaying new_value through the registered applier
func (s *ApprovalService) Approve(ctx context.Context, id int64, decider Actor, note string) (*entity.ApprovalRequest, error) {
	return s.decide(ctx, id, decider, entity.ApprovalStatusApproved, note)
}

// Reject PENDING → REJECTED; new_value is discarded
func (s *ApprovalService) Reject(ctx context.Context, id int64, decider Actor, note string) (*entity.ApprovalRequest, error) {
	return s.decide(ctx, id, decider, entity.ApprovalStatusRejected, note)
}

func (s *ApprovalService) decide(ctx context.Context, id int64, decider Actor, status, note string) (*entity.ApprovalRequest, error) {
	if s.db == nil {
		return nil, errors.New("approval decisions need a database")
	}
	var decided *entity.ApprovalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewApprovalRepository(tx)
		req, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("approval request", id)
			}
			return err
		}
		if req.Status != entity.ApprovalStatusPending {
			return &Error{Kind: KindConflict, Key: i18n.ApprovalDecided, Err: fmt.Errorf("approval request %d is %s", id, req.Status)}
		}

		if status == entity.ApprovalStatusApproved {
			if a := s.applier(req.EntityType); a != nil {
				requester := Actor{UserID: req.RequestedBy}
				if req.BranchID != nil {
					requester.BranchID = *req.BranchID
				}
				if err := a.Apply(ctx, tx, requester, req); err != nil {
					return err
				}
			}
		}

		ok, err := repo.Decide(ctx, id, status, decider.UserID, note)
		if err != nil {
			return err
		}
		if !ok {
			return &Error{Kind: KindConflict, Key: i18n.ApprovalDecided, Err: fmt.Errorf("approval request %d already decided", id)}
		}

		action := ActivityApprove
		if status == entity.ApprovalStatusRejected {
			action = ActivityReject
		}
		logCtx, _ := json.Marshal(map[string]interface{}{
			"approval_request_id": id,
			"note":                note,
		})
		if err := repository.NewActivityLogRepository(tx).Create(ctx, &entity.ActivityLog{
			BranchID:    decider.branchPtr(),
			UserID:      decider.UserID,
			EntityType:  req.EntityType,
			EntityID:    req.EntityID,
			Action:      action,
			ContextJSON: datatypes.JSON(logCtx),
		}); err != nil {
			return err
		}

		decided, err = repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, classify(err, "decide approval request")
	}

	s.logger.Info("approval request decided",
		zap.Int64("approval_request_id", id),
		zap.String("status", status),
		zap.Int64("decided_by", decider.UserID),
	)
	if s.events != nil {
		s.events.Publish(EventApprovalDecided, map[string]interface{}{
			"approval_request_id": id,
			"status":              status,
			"entity_type":         decided.EntityType,
			"entity_id":           decided.EntityID,
		})
	}
	return decided, nil
}

// replay kinds derived from an approval envelope
const (
	replayCreate    = "create"
	replayUpdate    = "update"
	replaySetActive = "set_active"
	replayDelete    = "delete"
)

// replayAction create for entity_id NEW, delete for a null new_value,
// set_active for {"is_active": x}, update otherwise
func replayAction(req *entity.ApprovalRequest) (string, map[string]json.RawMessage, error) {
	if req.EntityID == NewEntityID {
		return replayCreate, nil, nil
	}
	raw := strings.TrimSpace(string(req.NewValue))
	if raw == "" || raw == "null" {
		return replayDelete, nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(req.NewValue, &fields); err != nil {
		return "", nil, validationError(i18n.UnableToSave, "new_value of approval %d: %v", req.ID, err)
	}
	if _, ok := fields["is_active"]; ok && len(fields) == 1 {
		return replaySetActive, fields, nil
	}
	return replayUpdate, fields, nil
}

func replayID(req *entity.ApprovalRequest) (int64, error) {
	id, err := strconv.ParseInt(req.EntityID, 10, 64)
	if err != nil {
		return 0, validationError(i18n.UnableToSave, "entity_id %q of approval %d is not numeric", req.EntityID, req.ID)
	}
	return id, nil
}

func replayActive(fields map[string]json.RawMessage) (bool, error) {
	var active bool
	if err := json.Unmarshal(fields["is_active"], &active); err != nil {
		return false, validationError(i18n.UnableToSave, "is_active: %v", err)
	}
	return active, nil
}
