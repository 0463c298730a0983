package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item types
const (
	ItemTypeRM  = "RM"
	ItemTypeSFG = "SFG"
	ItemTypeFG  = "FG"
)

// ItemTypes valid item types in display order
var ItemTypes = []string{ItemTypeRM, ItemTypeSFG, ItemTypeFG}

// Audit created/updated columns shared by every master
type Audit struct {
	CreatedBy *int64    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy *int64    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item RM / SFG / FG master
type Item struct {
	ID         int64  `json:"id" gorm:"primaryKey"`
	Code       string `json:"code" gorm:"size:50;not null"`
	Name       string `json:"name" gorm:"size:200;not null"`
	NameUr     string `json:"name_ur" gorm:"column:name_ur;size:200"`
	ItemType   string `json:"item_type" gorm:"size:10;not null;index"`
	SubgroupID *int64 `json:"subgroup_id" gorm:"index"`
	BaseUOMID  *int64 `json:"base_uom_id" gorm:"column:base_uom_id;index"`
	IsActive   bool   `json:"is_active" gorm:"not null"`
	Audit

	Variants []Variant `json:"variants,omitempty" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE"`
}

func (Item) TableName() string {
	return "items"
}

// Variant one (item, size, grade, color?, packing?) combination
type Variant struct {
	ID            int64           `json:"id" gorm:"primaryKey"`
	ItemID        int64           `json:"item_id" gorm:"not null;index"`
	SizeID        int64           `json:"size_id" gorm:"not null"`
	GradeID       int64           `json:"grade_id" gorm:"not null"`
	ColorID       *int64          `json:"color_id"`
	PackingTypeID *int64          `json:"packing_type_id"`
	SaleRate      decimal.Decimal `json:"sale_rate" gorm:"type:numeric(18,2);not null"`
	IsActive      bool            `json:"is_active" gorm:"not null"`
	Audit

	SKU *SKU `json:"sku,omitempty" gorm:"foreignKey:VariantID;constraint:OnDelete:CASCADE"`
}

func (Variant) TableName() string {
	return "variants"
}

// SKU 1:1 satellite of Variant
type SKU struct {
	ID        int64   `json:"id" gorm:"primaryKey"`
	VariantID int64   `json:"variant_id" gorm:"not null;uniqueIndex"`
	SKUCode   string  `json:"sku_code" gorm:"column:sku_code;size:200;not null;uniqueIndex"`
	Barcode   *string `json:"barcode" gorm:"size:100"`
	IsActive  bool    `json:"is_active" gorm:"not null"`
	Audit
}

func (SKU) TableName() string {
	return "skus"
}

// UOMConversion factor from one unit to another
type UOMConversion struct {
	ID        int64           `json:"id" gorm:"primaryKey"`
	FromUOMID int64           `json:"from_uom_id" gorm:"column:from_uom_id;not null;uniqueIndex:ux_uom_conversions_pair"`
	ToUOMID   int64           `json:"to_uom_id" gorm:"column:to_uom_id;not null;uniqueIndex:ux_uom_conversions_pair"`
	Factor    decimal.Decimal `json:"factor" gorm:"type:numeric(18,6);not null"`
	IsActive  bool            `json:"is_active" gorm:"not null"`
	Audit
}

func (UOMConversion) TableName() string {
	return "uom_conversions"
}
