package entity

import (
	"fmt"

	"gorm.io/gorm"
)

// Models tables managed by AutoMigrate, parents first
func Models() []interface{} {
	return []interface{}{
		&Role{},
		&User{},
		&Branch{},
		&UOM{},
		&Size{},
		&Grade{},
		&Color{},
		&PackingType{},
		&ProductGroup{},
		&ProductSubgroup{},
		&ProductType{},
		&PartyGroup{},
		&AccountGroup{},
		&Department{},
		&ProductGroupItemType{},
		&ProductSubgroupItemType{},
		&Item{},
		&Variant{},
		&SKU{},
		&UOMConversion{},
		&ApprovalRequest{},
		&ApprovalPolicy{},
		&ActivityLog{},
		&RolePermission{},
		&UserPermission{},
	}
}

// MigrationSQL idempotent statements run after AutoMigrate
var MigrationSQL = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_items_code_lower ON items (LOWER(code))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_variants_combo ON variants (item_id, size_id, grade_id, COALESCE(color_id, 0), COALESCE(packing_type_id, 0))`,

	`ALTER TABLE approval_requests DROP CONSTRAINT IF EXISTS chk_approval_requests_status`,
	`ALTER TABLE approval_requests ADD CONSTRAINT chk_approval_requests_status CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED'))`,

	`ALTER TABLE role_permissions ADD COLUMN IF NOT EXISTS can_hard_delete BOOLEAN NOT NULL DEFAULT false`,
	`ALTER TABLE user_permissions ADD COLUMN IF NOT EXISTS can_hard_delete BOOLEAN NULL`,

	`CREATE TABLE IF NOT EXISTS labour_rate_rules (
		id BIGSERIAL PRIMARY KEY,
		labour_id BIGINT NULL,
		dept_id BIGINT NOT NULL,
		sku_id BIGINT NULL,
		article_type VARCHAR(10) NULL,
		applies_to_all_labours BOOLEAN NOT NULL DEFAULT false,
		rate NUMERIC(18,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE labour_rate_rules DROP CONSTRAINT IF EXISTS chk_labour_rate_rules_article_type`,
	`ALTER TABLE labour_rate_rules ADD CONSTRAINT chk_labour_rate_rules_article_type CHECK (article_type IS NULL OR article_type IN ('FG', 'SFG', 'BOTH'))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_labour_rate_rules_labour_dept_sku ON labour_rate_rules (labour_id, dept_id, sku_id) WHERE applies_to_all_labours = false AND labour_id IS NOT NULL AND sku_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS labour_rate_rule_exclusions (
		id BIGSERIAL PRIMARY KEY,
		rule_id BIGINT NOT NULL REFERENCES labour_rate_rules(id) ON DELETE CASCADE,
		sku_id BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_labour_rate_rule_exclusions_rule_sku ON labour_rate_rule_exclusions (rule_id, sku_id)`,

	`CREATE TABLE IF NOT EXISTS bom_rm_line (
		id BIGSERIAL PRIMARY KEY,
		bom_id BIGINT NOT NULL,
		rm_item_id BIGINT NOT NULL,
		dept_id BIGINT NOT NULL,
		color_id BIGINT NULL,
		size_id BIGINT NULL,
		qty NUMERIC(18,4) NOT NULL DEFAULT 0
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_bom_rm_line_key ON bom_rm_line (bom_id, rm_item_id, dept_id, color_id, size_id)`,
}

// Migrate AutoMigrate plus MigrationSQL. Statement failures are returned
// together so the caller decides whether they are fatal.
func Migrate(db *gorm.DB) (warnings []error, err error) {
	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	for _, sql := range MigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			warnings = append(warnings, fmt.Errorf("%.60s: %w", sql, err))
		}
	}
	return warnings, nil
}
