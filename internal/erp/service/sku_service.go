package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/bitfantasy/backoffice/internal/erp/repository"
	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/minio/minio-go/v7"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ObjectPutter export archive target; *minio.Client satisfies it
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ExpandResult counts of one bulk run
type ExpandResult struct {
	Combinations int      `json:"combinations"`
	Created      int      `json:"created"`
	Updated      int      `json:"updated"`
	SKUCodes     []string `json:"sku_codes"`
}

// SKUService variant expansion and SKU minting
type SKUService struct {
	db      *gorm.DB
	repo    *repository.SKURepository
	storage ObjectPutter
	bucket  string
	logger  *zap.Logger
}

// NewSKUService storage may be nil, which disables export archiving
func NewSKUService(db *gorm.DB, repo *repository.SKURepository, storage ObjectPutter, bucket string, logger *zap.Logger) *SKUService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SKUService{db: db, repo: repo, storage: storage, bucket: bucket, logger: logger}
}

func (s *SKUService) List(ctx context.Context, filter repository.VariantFilter) ([]repository.VariantRow, error) {
	return s.repo.ListVariants(ctx, filter)
}

func (s *SKUService) Get(ctx context.Context, variantID int64) (*entity.Variant, error) {
	v, err := s.repo.FindVariantByID(ctx, variantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("variant", variantID)
	}
	return v, err
}

// attributeNames name maps for every referenced attribute; unknown ids fail
type attributeNames struct {
	sizes, grades, colors, packings map[int64]string
}

func loadNames(ctx context.Context, repo *repository.SKURepository, sizes, grades, colors, packings []int64) (*attributeNames, error) {
	load := func(table string, ids []int64) (map[int64]string, error) {
		names, err := repo.Names(ctx, table, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := names[id]; !ok {
				return nil, validationError(i18n.NotFound, "%s %d does not exist", table, id)
			}
		}
		return names, nil
	}

	var n attributeNames
	var err error
	if n.sizes, err = load("sizes", sizes); err != nil {
		return nil, err
	}
	if n.grades, err = load("grades", grades); err != nil {
		return nil, err
	}
	if n.colors, err = load("colors", colors); err != nil {
		return nil, err
	}
	if n.packings, err = load("packing_types", packings); err != nil {
		return nil, err
	}
	return &n, nil
}

func (n *attributeNames) base(itemCode string, c Combo, variantID int64) string {
	color, packing := "", ""
	if c.ColorID != nil {
		color = n.colors[*c.ColorID]
	}
	if c.PackingTypeID != nil {
		packing = n.packings[*c.PackingTypeID]
	}
	base := BaseSKU(itemCode, n.sizes[c.SizeID], n.grades[c.GradeID], color, packing)
	if base == "" {
		base = fmt.Sprintf("SKU-%d", variantID)
	}
	return base
}

func ptrList(id *int64) []int64 {
	if id == nil {
		return nil
	}
	return []int64{*id}
}

// Expand creates or refreshes one variant and SKU per combination in a
// single transaction. Existing SKUs keep their code; only barcode and
// is_active are refreshed.
func (s *SKUService) Expand(ctx context.Context, actor Actor, in BulkInput) (*ExpandResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	combos := in.Combos()
	rates, err := in.Rates(combos)
	if err != nil {
		return nil, err
	}

	var result *ExpandResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.expand(ctx, tx, actor, in, combos, rates)
		return err
	})
	if err != nil {
		return nil, classify(err, "expand skus")
	}
	s.logger.Info("skus expanded",
		zap.Int64("item_id", in.ItemID),
		zap.Int("combinations", result.Combinations),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int64("user_id", actor.UserID),
	)
	return result, nil
}

func (s *SKUService) expand(ctx context.Context, tx *gorm.DB, actor Actor, in BulkInput, combos []Combo, rates []decimal.Decimal) (*ExpandResult, error) {
	repo := s.repo.WithTx(tx)
	item, err := repo.FindItem(ctx, in.ItemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("item", in.ItemID)
		}
		return nil, err
	}
	names, err := loadNames(ctx, repo, in.SizeIDs, in.GradeIDs, in.ColorIDs, in.PackingTypeIDs)
	if err != nil {
		return nil, err
	}

	result := &ExpandResult{Combinations: len(combos), SKUCodes: make([]string, 0, len(combos))}
	now := time.Now()
	for i, c := range combos {
		v, err := repo.FindVariant(ctx, in.ItemID, c.SizeID, c.GradeID, c.ColorID, c.PackingTypeID)
		if err != nil {
			return nil, err
		}
		if v == nil {
			v = &entity.Variant{
				ItemID:        in.ItemID,
				SizeID:        c.SizeID,
				GradeID:       c.GradeID,
				ColorID:       c.ColorID,
				PackingTypeID: c.PackingTypeID,
				SaleRate:      rates[i],
				IsActive:      in.IsActive,
				Audit: entity.Audit{
					CreatedBy: actor.userPtr(),
					CreatedAt: now,
					UpdatedBy: actor.userPtr(),
					UpdatedAt: now,
				},
			}
			if err := repo.CreateVariant(ctx, v); err != nil {
				return nil, err
			}
			result.Created++
		} else {
			updated := false
			if in.RateSupplied {
				if err := repo.UpdateVariantRate(ctx, v.ID, rates[i], actor.UserID); err != nil {
					return nil, err
				}
				updated = true
			}
			// variant and SKU activity move together
			if v.IsActive != in.IsActive {
				if err := repo.SetVariantActive(ctx, v.ID, in.IsActive, actor.UserID); err != nil {
					return nil, err
				}
				updated = true
			}
			if updated {
				result.Updated++
			}
		}

		existing, err := repo.FindSKUByVariant(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			fields := map[string]interface{}{
				"is_active":  in.IsActive,
				"updated_by": actor.UserID,
			}
			if in.Barcode != nil {
				fields["barcode"] = *in.Barcode
			}
			if err := repo.UpdateSKU(ctx, existing.ID, fields); err != nil {
				return nil, err
			}
			result.SKUCodes = append(result.SKUCodes, existing.SKUCode)
			continue
		}

		code, err := MintSKUCode(ctx, names.base(item.Code, c, v.ID), func(ctx context.Context, code string) (bool, error) {
			return repo.SKUCodeExists(ctx, code, 0)
		})
		if err != nil {
			return nil, err
		}
		sku := &entity.SKU{
			VariantID: v.ID,
			SKUCode:   code,
			Barcode:   in.Barcode,
			IsActive:  in.IsActive,
			Audit: entity.Audit{
				CreatedBy: actor.userPtr(),
				CreatedAt: now,
				UpdatedBy: actor.userPtr(),
				UpdatedAt: now,
			},
		}
		if err := repo.CreateSKU(ctx, sku); err != nil {
			return nil, err
		}
		result.SKUCodes = append(result.SKUCodes, code)
	}
	return result, nil
}

// Edit rewrites one variant and re-mints its SKU code, skipping its own code
// in the uniqueness probe
func (s *SKUService) Edit(ctx context.Context, actor Actor, variantID int64, in EditInput) (string, error) {
	var code string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		code, err = s.edit(ctx, tx, actor, variantID, in)
		return err
	})
	if err != nil {
		return "", classify(err, "edit variant")
	}
	return code, nil
}

func (s *SKUService) edit(ctx context.Context, tx *gorm.DB, actor Actor, variantID int64, in EditInput) (string, error) {
	repo := s.repo.WithTx(tx)
	v, err := repo.FindVariantByID(ctx, variantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", notFound("variant", variantID)
		}
		return "", err
	}
	c := in.combo()
	other, err := repo.FindVariant(ctx, v.ItemID, c.SizeID, c.GradeID, c.ColorID, c.PackingTypeID)
	if err != nil {
		return "", err
	}
	if other != nil && other.ID != v.ID {
		return "", &Error{Kind: KindConflict, Key: i18n.UnableToSave, Err: fmt.Errorf("variant %s already exists as %d", c.Key(), other.ID)}
	}

	item, err := repo.FindItem(ctx, v.ItemID)
	if err != nil {
		return "", err
	}
	names, err := loadNames(ctx, repo, []int64{c.SizeID}, []int64{c.GradeID}, ptrList(c.ColorID), ptrList(c.PackingTypeID))
	if err != nil {
		return "", err
	}

	v.SizeID, v.GradeID, v.ColorID, v.PackingTypeID = c.SizeID, c.GradeID, c.ColorID, c.PackingTypeID
	v.SaleRate = in.SaleRate
	v.IsActive = in.IsActive
	v.UpdatedBy = actor.userPtr()
	if err := repo.UpdateVariant(ctx, v); err != nil {
		return "", err
	}

	var ownID int64
	if v.SKU != nil {
		ownID = v.SKU.ID
	}
	code, err := MintSKUCode(ctx, names.base(item.Code, c, v.ID), func(ctx context.Context, code string) (bool, error) {
		return repo.SKUCodeExists(ctx, code, ownID)
	})
	if err != nil {
		return "", err
	}

	if v.SKU != nil {
		err = repo.UpdateSKU(ctx, v.SKU.ID, map[string]interface{}{
			"sku_code":   code,
			"barcode":    in.Barcode,
			"is_active":  in.IsActive,
			"updated_by": actor.UserID,
		})
		return code, err
	}
	now := time.Now()
	return code, repo.CreateSKU(ctx, &entity.SKU{
		VariantID: v.ID,
		SKUCode:   code,
		Barcode:   in.Barcode,
		IsActive:  in.IsActive,
		Audit: entity.Audit{
			CreatedBy: actor.userPtr(),
			CreatedAt: now,
			UpdatedBy: actor.userPtr(),
			UpdatedAt: now,
		},
	})
}

// Toggle flips the variant and its SKU together
func (s *SKUService) Toggle(ctx context.Context, actor Actor, variantID int64) (bool, error) {
	var active bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		active, err = s.repo.WithTx(tx).ToggleVariant(ctx, variantID, actor.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, notFound("variant", variantID)
		}
		return false, classify(err, "toggle variant")
	}
	return active, nil
}

// Delete hard-deletes the variant and its SKU
func (s *SKUService) Delete(ctx context.Context, actor Actor, variantID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteVariant(ctx, variantID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("variant", variantID)
		}
		return classify(err, "delete variant")
	}
	s.logger.Info("variant deleted", zap.Int64("variant_id", variantID), zap.Int64("user_id", actor.UserID))
	return nil
}

// Apply replays an approved SKU request
func (s *SKUService) Apply(ctx context.Context, tx *gorm.DB, actor Actor, req *entity.ApprovalRequest) error {
	action, fields, err := replayAction(req)
	if err != nil {
		return err
	}
	if action == replayCreate {
		var in BulkInput
		if err := json.Unmarshal(req.NewValue, &in); err != nil {
			return validationError(i18n.UnableToSave, "new_value of approval %d: %v", req.ID, err)
		}
		if err := in.Validate(); err != nil {
			return err
		}
		combos := in.Combos()
		rates, err := in.Rates(combos)
		if err != nil {
			return err
		}
		_, err = s.expand(ctx, tx, actor, in, combos, rates)
		return err
	}

	id, err := replayID(req)
	if err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	switch action {
	case replayDelete:
		if err := repo.DeleteVariant(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("variant", id)
			}
			return err
		}
		return nil
	case replaySetActive:
		active, err := replayActive(fields)
		if err != nil {
			return err
		}
		if err := repo.SetVariantActive(ctx, id, active, actor.UserID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("variant", id)
			}
			return err
		}
		return nil
	}
	var in EditInput
	if err := json.Unmarshal(req.NewValue, &in); err != nil {
		return validationError(i18n.UnableToSave, "new_value of approval %d: %v", req.ID, err)
	}
	_, err = s.edit(ctx, tx, actor, id, in)
	return err
}

var skuExportHeaders = []string{
	"SKU", "Item code", "Item", "Size", "Grade", "Color", "Packing", "Sale rate", "Barcode", "Active",
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Export the variant list as xlsx
func (s *SKUService) Export(ctx context.Context, filter repository.VariantFilter) (*excelize.File, string, error) {
	rows, err := s.repo.ListVariants(ctx, filter)
	if err != nil {
		return nil, "", fmt.Errorf("list variants: %w", err)
	}

	f := excelize.NewFile()
	sheet := "SKUs"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range skuExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for i, r := range rows {
		row := i + 2
		active := "No"
		if r.IsActive {
			active = "Yes"
		}
		rate, _ := r.SaleRate.Float64()
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), deref(r.SKUCode))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), r.ItemCode)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), r.ItemName)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), r.SizeName)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), r.GradeName)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), deref(r.ColorName))
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), deref(r.PackingTypeName))
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), rate)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), deref(r.Barcode))
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), active)
	}

	colWidths := []float64{28, 14, 24, 10, 10, 12, 12, 10, 16, 8}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("skus_%s.xlsx", time.Now().Format("20060102_150405"))
	return f, filename, nil
}

// Archive uploads an export to object storage; a no-op without storage
func (s *SKUService) Archive(ctx context.Context, f *excelize.File, filename string) (string, error) {
	if s.storage == nil {
		return "", nil
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}
	object := path.Join("exports", "skus", filename)
	_, err = s.storage.PutObject(ctx, s.bucket, object, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	})
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}
	return object, nil
}
