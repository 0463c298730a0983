package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/bitfantasy/backoffice/internal/erp/repository"
	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UOMConversionEntityType approval entity type of conversions
const UOMConversionEntityType = "UOM_CONVERSION"

// ConversionInput normalized conversion form
type ConversionInput struct {
	FromUOMID int64
	ToUOMID   int64
	Factor    decimal.Decimal
	IsActive  *bool
}

// Snapshot approval envelope: {from_uom_id, to_uom_id, factor[, is_active]}
func (in ConversionInput) Snapshot() map[string]interface{} {
	out := map[string]interface{}{
		"from_uom_id": in.FromUOMID,
		"to_uom_id":   in.ToUOMID,
		"factor":      json.Number(in.Factor.String()),
	}
	if in.IsActive != nil {
		out["is_active"] = *in.IsActive
	}
	return out
}

// Summary one-line description for approval lists
func (in ConversionInput) Summary(action string) string {
	return fmt.Sprintf("uom conversion %s %d→%d ×%s", action, in.FromUOMID, in.ToUOMID, in.Factor.String())
}

func firstValue(form url.Values, name string) string {
	if v := form.Get(name); v != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(form.Get(name + "[]"))
}

// ParseConversionForm from and to must differ; factor must be positive
func ParseConversionForm(form url.Values) (ConversionInput, error) {
	var in ConversionInput
	from, to, factor := firstValue(form, "from_uom_id"), firstValue(form, "to_uom_id"), firstValue(form, "factor")
	if from == "" || to == "" || factor == "" {
		return in, validationError(i18n.RequiredFieldsMissing, "from_uom_id, to_uom_id and factor are required")
	}

	var err error
	if in.FromUOMID, err = strconv.ParseInt(from, 10, 64); err != nil || in.FromUOMID <= 0 {
		return in, validationError(i18n.InvalidNumber, "from_uom_id: %q", from)
	}
	if in.ToUOMID, err = strconv.ParseInt(to, 10, 64); err != nil || in.ToUOMID <= 0 {
		return in, validationError(i18n.InvalidNumber, "to_uom_id: %q", to)
	}
	if in.FromUOMID == in.ToUOMID {
		return in, validationError(i18n.RequiredFieldsMissing, "from and to units must differ")
	}
	if in.Factor, err = decimal.NewFromString(factor); err != nil || !in.Factor.IsPositive() {
		return in, validationError(i18n.InvalidNumber, "factor: %q", factor)
	}

	if vals, ok := form["is_active"]; ok && len(vals) > 0 {
		active := !isFalse(vals[len(vals)-1])
		in.IsActive = &active
	}
	return in, nil
}

// UOMService unit conversions
type UOMService struct {
	db     *gorm.DB
	repo   *repository.UOMRepository
	master *repository.MasterRepository
	logger *zap.Logger
}

func NewUOMService(db *gorm.DB, repo *repository.UOMRepository, master *repository.MasterRepository, logger *zap.Logger) *UOMService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UOMService{db: db, repo: repo, master: master, logger: logger}
}

func (s *UOMService) List(ctx context.Context) ([]repository.ConversionRow, error) {
	return s.repo.List(ctx)
}

func (s *UOMService) Get(ctx context.Context, id int64) (*entity.UOMConversion, error) {
	conv, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("uom conversion", id)
	}
	return conv, err
}

// Check units exist and the pair is free
func (s *UOMService) Check(ctx context.Context, id int64, in ConversionInput) error {
	return s.check(ctx, s.repo, s.master, id, in)
}

func (s *UOMService) check(ctx context.Context, repo *repository.UOMRepository, master *repository.MasterRepository, id int64, in ConversionInput) error {
	for _, uomID := range []int64{in.FromUOMID, in.ToUOMID} {
		ok, err := master.Exists(ctx, "uoms", uomID)
		if err != nil {
			return err
		}
		if !ok {
			return validationError(i18n.NotFound, "uom %d does not exist", uomID)
		}
	}
	taken, err := repo.PairExists(ctx, in.FromUOMID, in.ToUOMID, id)
	if err != nil {
		return err
	}
	if taken {
		return &Error{Kind: KindConflict, Key: i18n.UnableToSave, Err: fmt.Errorf("conversion %d→%d already exists", in.FromUOMID, in.ToUOMID)}
	}
	return nil
}

func (s *UOMService) Create(ctx context.Context, actor Actor, in ConversionInput) (*entity.UOMConversion, error) {
	var conv *entity.UOMConversion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		conv, err = s.create(ctx, tx, actor, in)
		return err
	})
	if err != nil {
		return nil, classify(err, "create uom conversion")
	}
	s.logger.Info("uom conversion created", zap.Int64("id", conv.ID), zap.Int64("user_id", actor.UserID))
	return conv, nil
}

func (s *UOMService) create(ctx context.Context, tx *gorm.DB, actor Actor, in ConversionInput) (*entity.UOMConversion, error) {
	repo := s.repo.WithTx(tx)
	if err := s.check(ctx, repo, s.master.WithTx(tx), 0, in); err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	now := time.Now()
	conv := &entity.UOMConversion{
		FromUOMID: in.FromUOMID,
		ToUOMID:   in.ToUOMID,
		Factor:    in.Factor,
		IsActive:  active,
		Audit: entity.Audit{
			CreatedBy: actor.userPtr(),
			CreatedAt: now,
			UpdatedBy: actor.userPtr(),
			UpdatedAt: now,
		},
	}
	if err := repo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *UOMService) Update(ctx context.Context, actor Actor, id int64, in ConversionInput) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.update(ctx, tx, actor, id, in)
	})
	if err != nil {
		return classify(err, "update uom conversion")
	}
	return nil
}

func (s *UOMService) update(ctx context.Context, tx *gorm.DB, actor Actor, id int64, in ConversionInput) error {
	repo := s.repo.WithTx(tx)
	conv, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("uom conversion", id)
		}
		return err
	}
	if err := s.check(ctx, repo, s.master.WithTx(tx), id, in); err != nil {
		return err
	}
	conv.FromUOMID = in.FromUOMID
	conv.ToUOMID = in.ToUOMID
	conv.Factor = in.Factor
	if in.IsActive != nil {
		conv.IsActive = *in.IsActive
	}
	conv.UpdatedBy = actor.userPtr()
	conv.UpdatedAt = time.Now()
	return repo.Update(ctx, conv)
}

func (s *UOMService) setActive(ctx context.Context, tx *gorm.DB, actor Actor, id int64, active bool) error {
	repo := s.repo.WithTx(tx)
	conv, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("uom conversion", id)
		}
		return err
	}
	conv.IsActive = active
	conv.UpdatedBy = actor.userPtr()
	conv.UpdatedAt = time.Now()
	return repo.Update(ctx, conv)
}

func (s *UOMService) Toggle(ctx context.Context, actor Actor, id int64) (bool, error) {
	active, err := s.repo.Toggle(ctx, id, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, notFound("uom conversion", id)
		}
		return false, classify(err, "toggle uom conversion")
	}
	return active, nil
}

func (s *UOMService) Delete(ctx context.Context, actor Actor, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("uom conversion", id)
		}
		return classify(err, "delete uom conversion")
	}
	s.logger.Info("uom conversion deleted", zap.Int64("id", id), zap.Int64("user_id", actor.UserID))
	return nil
}

// Apply replays an approved conversion request
func (s *UOMService) Apply(ctx context.Context, tx *gorm.DB, actor Actor, req *entity.ApprovalRequest) error {
	action, fields, err := replayAction(req)
	if err != nil {
		return err
	}
	if action == replayCreate {
		var snapshot map[string]json.RawMessage
		if err := json.Unmarshal(req.NewValue, &snapshot); err != nil {
			return validationError(i18n.UnableToSave, "new_value of approval %d: %v", req.ID, err)
		}
		in, err := ParseConversionForm(snapshotToForm(snapshot))
		if err != nil {
			return err
		}
		_, err = s.create(ctx, tx, actor, in)
		return err
	}

	id, err := replayID(req)
	if err != nil {
		return err
	}
	switch action {
	case replayDelete:
		if err := s.repo.WithTx(tx).Delete(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("uom conversion", id)
			}
			return err
		}
		return nil
	case replaySetActive:
		active, err := replayActive(fields)
		if err != nil {
			return err
		}
		return s.setActive(ctx, tx, actor, id, active)
	}
	in, err := ParseConversionForm(snapshotToForm(fields))
	if err != nil {
		return err
	}
	return s.update(ctx, tx, actor, id, in)
}
