package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bitfantasy/backoffice/internal/shared/i18n"
	"github.com/shopspring/decimal"
)

// SKUEntityType approval entity type of variants and SKUs
const SKUEntityType = "SKU"

// SKUScopeKey permission and approval scope of the SKU screen
var SKUScopeKey = ScopeKey(SectionProducts, "skus")

// Combo one point of the attribute product; nil color/packing mean absent
type Combo struct {
	SizeID        int64
	GradeID       int64
	ColorID       *int64
	PackingTypeID *int64
}

func optionalKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

// Key "size|grade|color|packing" with 0 for an absent axis
func (c Combo) Key() string {
	return fmt.Sprintf("%d|%d|%d|%d", c.SizeID, c.GradeID, optionalKey(c.ColorID), optionalKey(c.PackingTypeID))
}

// BulkInput bulk SKU generation request
type BulkInput struct {
	ItemID          int64                      `json:"item_id"`
	SizeIDs         []int64                    `json:"size_ids"`
	GradeIDs        []int64                    `json:"grade_ids"`
	ColorIDs        []int64                    `json:"color_ids,omitempty"`
	PackingTypeIDs  []int64                    `json:"packing_type_ids,omitempty"`
	SaleRateDefault decimal.Decimal            `json:"sale_rate_default"`
	ComboRates      map[string]decimal.Decimal `json:"combo_rates,omitempty"`
	// RateSupplied a default or per-combination rate was given
	RateSupplied bool    `json:"rate_supplied"`
	Barcode      *string `json:"barcode,omitempty"`
	IsActive     bool    `json:"is_active"`
}

// EditInput single-variant edit
type EditInput struct {
	SizeID        int64           `json:"size_id"`
	GradeID       int64           `json:"grade_id"`
	ColorID       *int64          `json:"color_id"`
	PackingTypeID *int64          `json:"packing_type_id"`
	SaleRate      decimal.Decimal `json:"sale_rate"`
	Barcode       *string         `json:"barcode"`
	IsActive      bool            `json:"is_active"`
}

func parseIDs(form url.Values, name string) ([]int64, error) {
	var out []int64
	seen := make(map[int64]bool)
	for _, raw := range formValues(form, name) {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, validationError(i18n.InvalidNumber, "%s: %q", name, part)
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// parseRate missing or non-numeric input is "not supplied"
func parseRate(raw string) (decimal.Decimal, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, nil
	}
	if d.IsNegative() {
		return decimal.Zero, false, validationError(i18n.InvalidNumber, "rate %q is negative", raw)
	}
	return d, true, nil
}

func parseActive(form url.Values) bool {
	vals, ok := form["is_active"]
	if !ok || len(vals) == 0 {
		return true
	}
	return strings.TrimSpace(strings.ToLower(vals[len(vals)-1])) != "false"
}

func parseBarcode(form url.Values) *string {
	v := strings.TrimSpace(form.Get("barcode"))
	if v == "" {
		return nil
	}
	return &v
}

// ParseBulkForm repeated size_ids/grade_ids/color_ids/packing_type_ids plus
// the parallel combo_keys/combo_rates arrays
func ParseBulkForm(form url.Values) (BulkInput, error) {
	in := BulkInput{IsActive: parseActive(form), Barcode: parseBarcode(form)}

	rawItem := firstValue(form, "item_id")
	if rawItem != "" {
		id, err := strconv.ParseInt(rawItem, 10, 64)
		if err != nil || id <= 0 {
			return in, validationError(i18n.InvalidNumber, "item_id: %q", rawItem)
		}
		in.ItemID = id
	}

	var err error
	if in.SizeIDs, err = parseIDs(form, "size_ids"); err != nil {
		return in, err
	}
	if in.GradeIDs, err = parseIDs(form, "grade_ids"); err != nil {
		return in, err
	}
	if in.ColorIDs, err = parseIDs(form, "color_ids"); err != nil {
		return in, err
	}
	if in.PackingTypeIDs, err = parseIDs(form, "packing_type_ids"); err != nil {
		return in, err
	}

	rate, supplied, err := parseRate(form.Get("sale_rate_default"))
	if err != nil {
		return in, err
	}
	in.SaleRateDefault, in.RateSupplied = rate, supplied

	keys, rates := formValues(form, "combo_keys"), formValues(form, "combo_rates")
	if len(keys) != len(rates) {
		return in, validationError(i18n.RequiredFieldsMissing, "combo_keys and combo_rates differ in length (%d != %d)", len(keys), len(rates))
	}
	if len(keys) > 0 {
		in.ComboRates = make(map[string]decimal.Decimal, len(keys))
		for i, key := range keys {
			r, _, err := parseRate(rates[i])
			if err != nil {
				return in, err
			}
			in.ComboRates[strings.TrimSpace(key)] = r
		}
		in.RateSupplied = true
	}
	return in, in.Validate()
}

// Validate item, at least one size and at least one grade
func (in BulkInput) Validate() error {
	if in.ItemID <= 0 || len(in.SizeIDs) == 0 || len(in.GradeIDs) == 0 {
		return validationError(i18n.RequiredFieldsMissing, "item_id, size_ids and grade_ids are required")
	}
	return nil
}

// axis empty lists contribute a single absent value
func axis(ids []int64) []*int64 {
	if len(ids) == 0 {
		return []*int64{nil}
	}
	out := make([]*int64, len(ids))
	for i := range ids {
		id := ids[i]
		out[i] = &id
	}
	return out
}

// Combos the Cartesian product in size, grade, color, packing order
func (in BulkInput) Combos() []Combo {
	colors, packings := axis(in.ColorIDs), axis(in.PackingTypeIDs)
	out := make([]Combo, 0, len(in.SizeIDs)*len(in.GradeIDs)*len(colors)*len(packings))
	for _, s := range in.SizeIDs {
		for _, g := range in.GradeIDs {
			for _, c := range colors {
				for _, p := range packings {
					out = append(out, Combo{SizeID: s, GradeID: g, ColorID: c, PackingTypeID: p})
				}
			}
		}
	}
	return out
}

// Rates one rate per combo. A supplied rate map must cover every combo.
func (in BulkInput) Rates(combos []Combo) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(combos))
	for i, c := range combos {
		if in.ComboRates == nil {
			out[i] = in.SaleRateDefault
			continue
		}
		r, ok := in.ComboRates[c.Key()]
		if !ok {
			return nil, validationError(i18n.RequiredFieldsMissing, "no rate for combination %s", c.Key())
		}
		out[i] = r
	}
	return out, nil
}

// Summary one-line description for approval lists
func (in BulkInput) Summary() string {
	return fmt.Sprintf("sku generate item %d: %d combinations", in.ItemID, len(in.Combos()))
}

// ParseEditForm the first element of each list is authoritative
func ParseEditForm(form url.Values) (EditInput, error) {
	in := EditInput{IsActive: parseActive(form), Barcode: parseBarcode(form)}

	first := func(name string) (*int64, error) {
		ids, err := parseIDs(form, name)
		if err != nil || len(ids) == 0 {
			return nil, err
		}
		return &ids[0], nil
	}
	size, err := first("size_ids")
	if err != nil {
		return in, err
	}
	if size == nil {
		if size, err = first("size_id"); err != nil {
			return in, err
		}
	}
	grade, err := first("grade_ids")
	if err != nil {
		return in, err
	}
	if grade == nil {
		if grade, err = first("grade_id"); err != nil {
			return in, err
		}
	}
	if size == nil || grade == nil {
		return in, validationError(i18n.RequiredFieldsMissing, "size and grade are required")
	}
	in.SizeID, in.GradeID = *size, *grade

	if in.ColorID, err = first("color_ids"); err != nil {
		return in, err
	}
	if in.ColorID == nil {
		if in.ColorID, err = first("color_id"); err != nil {
			return in, err
		}
	}
	if in.PackingTypeID, err = first("packing_type_ids"); err != nil {
		return in, err
	}
	if in.PackingTypeID == nil {
		if in.PackingTypeID, err = first("packing_type_id"); err != nil {
			return in, err
		}
	}

	raw := form.Get("sale_rate")
	if raw == "" {
		raw = form.Get("sale_rate_default")
	}
	if in.SaleRate, _, err = parseRate(raw); err != nil {
		return in, err
	}
	return in, nil
}

func (in EditInput) combo() Combo {
	return Combo{SizeID: in.SizeID, GradeID: in.GradeID, ColorID: in.ColorID, PackingTypeID: in.PackingTypeID}
}

// upperSnake upper-cases s and turns every run of characters outside
// [A-Z0-9] into one underscore; "-" inside a segment is a separator too
func upperSnake(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// BaseSKU joins the non-empty segments with "-", e.g. FG_SHIRT-M-A-RED
func BaseSKU(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if u := upperSnake(s); u != "" {
			parts = append(parts, u)
		}
	}
	joined := strings.Join(parts, "-")
	for strings.Contains(joined, "--") {
		joined = strings.ReplaceAll(joined, "--", "-")
	}
	return strings.Trim(joined, "-_")
}

// CodeExistsFunc probes sku_code; must run in the inserting transaction
type CodeExistsFunc func(ctx context.Context, code string) (bool, error)

const maxMintAttempts = 100000

// MintSKUCode base, base-2, base-3, ... until free
func MintSKUCode(ctx context.Context, base string, exists CodeExistsFunc) (string, error) {
	if base == "" {
		return "", validationError(i18n.RequiredFieldsMissing, "empty sku base")
	}
	for n := 1; n <= maxMintAttempts; n++ {
		candidate := base
		if n > 1 {
			candidate = fmt.Sprintf("%s-%d", base, n)
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free sku code for %q after %d attempts", base, maxMintAttempts)
}
