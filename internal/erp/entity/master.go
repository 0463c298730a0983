package entity

// Master columns shared by the simple attribute masters
type Master struct {
	ID       int64  `json:"id" gorm:"primaryKey"`
	Code     string `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name     string `json:"name" gorm:"size:200;not null"`
	NameUr   string `json:"name_ur" gorm:"column:name_ur;size:200"`
	IsActive bool   `json:"is_active" gorm:"not null"`
	Audit
}

type UOM struct{ Master }

func (UOM) TableName() string { return "uoms" }

type Size struct{ Master }

func (Size) TableName() string { return "sizes" }

type Grade struct{ Master }

func (Grade) TableName() string { return "grades" }

type Color struct{ Master }

func (Color) TableName() string { return "colors" }

type PackingType struct{ Master }

func (PackingType) TableName() string { return "packing_types" }

type ProductGroup struct{ Master }

func (ProductGroup) TableName() string { return "product_groups" }

type ProductSubgroup struct {
	Master
	GroupID *int64 `json:"group_id" gorm:"index"`
}

func (ProductSubgroup) TableName() string { return "product_subgroups" }

type ProductType struct{ Master }

func (ProductType) TableName() string { return "product_types" }

type PartyGroup struct{ Master }

func (PartyGroup) TableName() string { return "party_groups" }

type AccountGroup struct{ Master }

func (AccountGroup) TableName() string { return "account_groups" }

type Department struct{ Master }

func (Department) TableName() string { return "departments" }

type Branch struct{ Master }

func (Branch) TableName() string { return "branches" }

// ProductGroupItemType item types a product group applies to
type ProductGroupItemType struct {
	GroupID  int64  `json:"group_id" gorm:"primaryKey"`
	ItemType string `json:"item_type" gorm:"primaryKey;size:10"`
}

func (ProductGroupItemType) TableName() string { return "product_group_item_types" }

// ProductSubgroupItemType item types a product subgroup applies to
type ProductSubgroupItemType struct {
	SubgroupID int64  `json:"subgroup_id" gorm:"primaryKey"`
	ItemType   string `json:"item_type" gorm:"primaryKey;size:10"`
}

func (ProductSubgroupItemType) TableName() string { return "product_subgroup_item_types" }
