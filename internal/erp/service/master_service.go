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
	"github.com/bitfantasy/backoffice/internal/shared/codegen"
	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MasterPayload normalized form input of a master screen
type MasterPayload struct {
	Values    map[string]interface{}
	ItemTypes []string
	// HasItemTypes item_types was part of the input
	HasItemTypes bool
}

// Snapshot flat JSON-friendly view stored in approval envelopes
func (p MasterPayload) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(p.Values)+1)
	for k, v := range p.Values {
		out[k] = v
	}
	if p.HasItemTypes {
		types := p.ItemTypes
		if types == nil {
			types = []string{}
		}
		out["item_types"] = types
	}
	return out
}

func (p MasterPayload) str(name string) string {
	if v, ok := p.Values[name].(string); ok {
		return v
	}
	return ""
}

func formValues(form url.Values, name string) []string {
	vals := form[name]
	if extra, ok := form[name+"[]"]; ok {
		vals = append(append([]string{}, vals...), extra...)
	}
	return vals
}

func isFalse(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0", "off", "no":
		return true
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ParseMasterForm normalizes a URL-encoded body against res. On create an
// absent is_active means active; on update an absent field is left as is.
func ParseMasterForm(res Resource, form url.Values, creating bool) (MasterPayload, error) {
	p := MasterPayload{Values: make(map[string]interface{})}
	var missing []string

	for _, f := range res.Fields {
		vals := formValues(form, f.Name)
		_, present := form[f.Name]
		if !present {
			_, present = form[f.Name+"[]"]
		}

		switch f.Kind {
		case FieldText:
			if !present && !creating {
				continue
			}
			v := ""
			if len(vals) > 0 {
				v = strings.TrimSpace(vals[0])
			}
			if f.Required && v == "" {
				missing = append(missing, f.Name)
				continue
			}
			p.Values[f.Name] = v

		case FieldCheckbox:
			if !present {
				if creating {
					p.Values[f.Name] = true
				}
				continue
			}
			p.Values[f.Name] = !isFalse(vals[len(vals)-1])

		case FieldSelect:
			if !present && !creating {
				continue
			}
			raw := ""
			if len(vals) > 0 {
				raw = strings.TrimSpace(vals[0])
			}
			if raw == "" {
				if f.Required {
					missing = append(missing, f.Name)
					continue
				}
				p.Values[f.Name] = nil
				continue
			}
			if len(f.Choices) > 0 {
				v := strings.ToUpper(raw)
				if !contains(f.Choices, v) {
					return p, validationError(i18n.RequiredFieldsMissing, "%s: %q is not one of %v", f.Name, raw, f.Choices)
				}
				p.Values[f.Name] = v
				continue
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return p, validationError(i18n.InvalidNumber, "%s: %q", f.Name, raw)
			}
			p.Values[f.Name] = id

		case FieldMultiCheckbox:
			if !present && !creating {
				continue
			}
			p.HasItemTypes = true
			seen := make(map[string]bool)
			for _, v := range vals {
				v = strings.ToUpper(strings.TrimSpace(v))
				if v == "" || seen[v] || !contains(f.Choices, v) {
					continue
				}
				seen[v] = true
				p.ItemTypes = append(p.ItemTypes, v)
			}
		}
	}

	if len(missing) > 0 {
		return p, validationError(i18n.RequiredFieldsMissing, "missing %s", strings.Join(missing, ", "))
	}
	return p, nil
}

// snapshotToForm turns a stored approval envelope back into form values
func snapshotToForm(fields map[string]json.RawMessage) url.Values {
	form := url.Values{}
	for k, raw := range fields {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		switch t := v.(type) {
		case nil:
			form[k] = []string{""}
		case string:
			form[k] = []string{t}
		case bool:
			form[k] = []string{strconv.FormatBool(t)}
		case float64:
			form[k] = []string{strings.TrimSpace(string(raw))}
		case []interface{}:
			vals := make([]string, 0, len(t))
			for _, e := range t {
				vals = append(vals, fmt.Sprint(e))
			}
			form[k] = vals
		}
	}
	return form
}

// MasterService generic CRUD over the attribute masters
type MasterService struct {
	db     *gorm.DB
	repo   *repository.MasterRepository
	naming *NamingService
	logger *zap.Logger
}

func NewMasterService(db *gorm.DB, repo *repository.MasterRepository, naming *NamingService, logger *zap.Logger) *MasterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MasterService{db: db, repo: repo, naming: naming, logger: logger}
}

// List rows with their item types merged in
func (s *MasterService) List(ctx context.Context, res Resource) ([]map[string]interface{}, error) {
	rows, err := s.repo.List(ctx, res.Table)
	if err != nil {
		return nil, err
	}
	if res.ItemTypes == nil || len(rows) == 0 {
		return rows, nil
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, toInt64(row["id"]))
	}
	types, err := s.repo.ItemTypes(ctx, res.ItemTypes.Table, res.ItemTypes.FK, ids)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		t := types[toInt64(row["id"])]
		if t == nil {
			t = []string{}
		}
		row["item_types"] = t
	}
	return rows, nil
}

// Get one row with item types
func (s *MasterService) Get(ctx context.Context, res Resource, id int64) (map[string]interface{}, error) {
	row, err := s.repo.Get(ctx, res.Table, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(strings.ToLower(res.EntityType), id)
		}
		return nil, err
	}
	if res.ItemTypes != nil {
		types, err := s.repo.ItemTypes(ctx, res.ItemTypes.Table, res.ItemTypes.FK, []int64{id})
		if err != nil {
			return nil, err
		}
		t := types[id]
		if t == nil {
			t = []string{}
		}
		row["item_types"] = t
	}
	return row, nil
}

// Snapshot the form fields of a row, used as an approval old_value
func (s *MasterService) Snapshot(ctx context.Context, res Resource, id int64) (map[string]interface{}, error) {
	row, err := s.Get(ctx, res, id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(res.Fields))
	for _, f := range res.Fields {
		if v, ok := row[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out, nil
}

// Options select options keyed by field name
func (s *MasterService) Options(ctx context.Context, res Resource) (map[string][]repository.Option, error) {
	out := make(map[string][]repository.Option)
	for _, f := range res.Fields {
		if f.Kind != FieldSelect || f.Table == "" {
			continue
		}
		opts, err := s.repo.Options(ctx, f.Table)
		if err != nil {
			return nil, fmt.Errorf("options for %s: %w", f.Name, err)
		}
		out[f.Name] = opts
	}
	return out, nil
}

// OptionsFor select options of arbitrary master tables, keyed by table
func (s *MasterService) OptionsFor(ctx context.Context, tables ...string) (map[string][]repository.Option, error) {
	out := make(map[string][]repository.Option, len(tables))
	for _, table := range tables {
		opts, err := s.repo.Options(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("options for %s: %w", table, err)
		}
		out[table] = opts
	}
	return out, nil
}

// Check validates a write before it is queued or applied: referenced rows
// exist, a supplied code is free, and a locked code is unchanged.
func (s *MasterService) Check(ctx context.Context, res Resource, id int64, p MasterPayload) error {
	return s.check(ctx, s.repo, res, id, p)
}

func (s *MasterService) check(ctx context.Context, repo *repository.MasterRepository, res Resource, id int64, p MasterPayload) error {
	for _, f := range res.Fields {
		if f.Kind != FieldSelect || f.Table == "" {
			continue
		}
		ref, ok := p.Values[f.Name].(int64)
		if !ok {
			continue
		}
		exists, err := repo.Exists(ctx, f.Table, ref)
		if err != nil {
			return err
		}
		if !exists {
			return validationError(i18n.NotFound, "%s %d does not exist", f.Name, ref)
		}
	}

	code := normalizeCode(p.str("code"))
	if code != "" {
		taken, err := repo.CodeExists(ctx, res.Table, code, id)
		if err != nil {
			return err
		}
		if taken {
			return &Error{Kind: KindConflict, Key: i18n.UnableToSave, Err: fmt.Errorf("%s code %q already exists", res.Table, code)}
		}
	}

	if id == 0 || code == "" || len(res.LockRefs) == 0 {
		return nil
	}
	current, err := repo.Get(ctx, res.Table, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(strings.ToLower(res.EntityType), id)
		}
		return err
	}
	if oldCode, _ := current["code"].(string); oldCode == code {
		return nil
	}
	refs, err := repo.CountReferences(ctx, res.LockRefs, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return &Error{Kind: KindLocked, Key: i18n.UnitCodeLocked, Err: fmt.Errorf("%s %d is referenced by %d rows", res.Table, id, refs)}
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// fillName resolves a blank Urdu name before any transaction opens
func (s *MasterService) fillName(ctx context.Context, p MasterPayload) error {
	nameUr, has := p.Values["name_ur"]
	if !has {
		return nil
	}
	if v, _ := nameUr.(string); strings.TrimSpace(v) != "" {
		return nil
	}
	name := p.str("name")
	if name == "" || s.naming == nil {
		return nil
	}
	ur, err := s.naming.UrduName(ctx, name, "")
	if err != nil {
		return err
	}
	p.Values["name_ur"] = ur
	return nil
}

// Create returns the new row id
func (s *MasterService) Create(ctx context.Context, actor Actor, res Resource, p MasterPayload) (int64, error) {
	if err := s.fillName(ctx, p); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = s.create(ctx, tx, actor, res, p)
		return err
	})
	if err != nil {
		return 0, classify(err, "create "+res.Table)
	}
	s.logger.Info("master row created", zap.String("table", res.Table), zap.Int64("id", id), zap.Int64("user_id", actor.UserID))
	return id, nil
}

func (s *MasterService) create(ctx context.Context, tx *gorm.DB, actor Actor, res Resource, p MasterPayload) (int64, error) {
	repo := s.repo.WithTx(tx)
	if err := s.check(ctx, repo, res, 0, p); err != nil {
		return 0, err
	}

	values := make(map[string]interface{}, len(p.Values)+4)
	for k, v := range p.Values {
		values[k] = v
	}
	code := normalizeCode(p.str("code"))
	if code == "" {
		prefix := ""
		if res.CodePrefixField != "" {
			prefix = p.str(res.CodePrefixField)
		}
		generated, err := codegen.GenerateUniqueCode(ctx, codegen.Options{
			Name:   p.str("name"),
			Prefix: prefix,
			Upper:  true,
			Exists: func(ctx context.Context, c string) (bool, error) {
				return repo.CodeExists(ctx, res.Table, c, 0)
			},
		})
		if err != nil {
			if errors.Is(err, codegen.ErrEmptyCode) {
				return 0, validationError(i18n.RequiredFieldsMissing, "code: %v", err)
			}
			return 0, err
		}
		code = generated
	}
	values["code"] = code
	if _, ok := values["is_active"]; !ok {
		values["is_active"] = true
	}
	now := time.Now()
	values["created_by"] = actor.userPtr()
	values["created_at"] = now
	values["updated_by"] = actor.userPtr()
	values["updated_at"] = now

	id, err := repo.Insert(ctx, res.Table, values)
	if err != nil {
		return 0, err
	}
	if res.ItemTypes != nil && len(p.ItemTypes) > 0 {
		if err := repo.ReplaceItemTypes(ctx, res.ItemTypes.Table, res.ItemTypes.FK, id, p.ItemTypes); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Update partial update; a blank code keeps the current one
func (s *MasterService) Update(ctx context.Context, actor Actor, res Resource, id int64, p MasterPayload) error {
	if err := s.fillName(ctx, p); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.update(ctx, tx, actor, res, id, p)
	})
	if err != nil {
		return classify(err, "update "+res.Table)
	}
	s.logger.Info("master row updated", zap.String("table", res.Table), zap.Int64("id", id), zap.Int64("user_id", actor.UserID))
	return nil
}

func (s *MasterService) update(ctx context.Context, tx *gorm.DB, actor Actor, res Resource, id int64, p MasterPayload) error {
	repo := s.repo.WithTx(tx)
	if err := s.check(ctx, repo, res, id, p); err != nil {
		return err
	}

	values := make(map[string]interface{}, len(p.Values)+2)
	for k, v := range p.Values {
		values[k] = v
	}
	if code := normalizeCode(p.str("code")); code != "" {
		values["code"] = code
	} else {
		delete(values, "code")
	}
	values["updated_by"] = actor.userPtr()
	values["updated_at"] = time.Now()

	if err := repo.Update(ctx, res.Table, id, values); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(strings.ToLower(res.EntityType), id)
		}
		return err
	}
	if res.ItemTypes != nil && p.HasItemTypes {
		return repo.ReplaceItemTypes(ctx, res.ItemTypes.Table, res.ItemTypes.FK, id, p.ItemTypes)
	}
	return nil
}

// Toggle flips is_active and returns the new value
func (s *MasterService) Toggle(ctx context.Context, actor Actor, res Resource, id int64) (bool, error) {
	active, err := s.repo.Toggle(ctx, res.Table, id, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, notFound(strings.ToLower(res.EntityType), id)
		}
		return false, classify(err, "toggle "+res.Table)
	}
	return active, nil
}

// Delete hard-deletes the row and its item-type map
func (s *MasterService) Delete(ctx context.Context, actor Actor, res Resource, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.delete(ctx, tx, res, id)
	})
	if err != nil {
		return classify(err, "delete "+res.Table)
	}
	s.logger.Info("master row deleted", zap.String("table", res.Table), zap.Int64("id", id), zap.Int64("user_id", actor.UserID))
	return nil
}

func (s *MasterService) delete(ctx context.Context, tx *gorm.DB, res Resource, id int64) error {
	repo := s.repo.WithTx(tx)
	if res.ItemTypes != nil {
		if err := repo.ReplaceItemTypes(ctx, res.ItemTypes.Table, res.ItemTypes.FK, id, nil); err != nil {
			return err
		}
	}
	if err := repo.Delete(ctx, res.Table, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(strings.ToLower(res.EntityType), id)
		}
		return err
	}
	return nil
}

// Applier replays approved requests for res
func (s *MasterService) Applier(res Resource) Applier {
	return &masterApplier{svc: s, res: res}
}

type masterApplier struct {
	svc *MasterService
	res Resource
}

func (a *masterApplier) Apply(ctx context.Context, tx *gorm.DB, actor Actor, req *entity.ApprovalRequest) error {
	action, fields, err := replayAction(req)
	if err != nil {
		return err
	}

	if action == replayCreate {
		var snapshot map[string]json.RawMessage
		if err := json.Unmarshal(req.NewValue, &snapshot); err != nil {
			return validationError(i18n.UnableToSave, "new_value of approval %d: %v", req.ID, err)
		}
		p, err := ParseMasterForm(a.res, snapshotToForm(snapshot), true)
		if err != nil {
			return err
		}
		if err := a.svc.fillName(ctx, p); err != nil {
			return err
		}
		_, err = a.svc.create(ctx, tx, actor, a.res, p)
		return err
	}

	id, err := replayID(req)
	if err != nil {
		return err
	}
	switch action {
	case replayDelete:
		return a.svc.delete(ctx, tx, a.res, id)
	case replaySetActive:
		active, err := replayActive(fields)
		if err != nil {
			return err
		}
		return a.svc.update(ctx, tx, actor, a.res, id, MasterPayload{Values: map[string]interface{}{"is_active": active}})
	}
	p, err := ParseMasterForm(a.res, snapshotToForm(fields), false)
	if err != nil {
		return err
	}
	if err := a.svc.fillName(ctx, p); err != nil {
		return err
	}
	return a.svc.update(ctx, tx, actor, a.res, id, p)
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case uint64:
		return int64(t)
	}
	return 0
}

// Summary one-line description of a master write for approval lists and mail
func (p MasterPayload) Summary(res Resource, action string) string {
	parts := []string{strings.ToLower(res.EntityType), action}
	if name := p.str("name"); name != "" {
		parts = append(parts, name)
	}
	if code := p.str("code"); code != "" {
		parts = append(parts, "("+code+")")
	}
	return strings.Join(parts, " ")
}
