package service

import (
	"strings"

	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/bitfantasy/backoffice/internal/erp/repository"
)

// Sections of the master-data area
const (
	SectionBasicInfo = "basic-info"
	SectionProducts  = "products"
)

// FieldKind form control of a master field
type FieldKind string

const (
	FieldText          FieldKind = "text"
	FieldCheckbox      FieldKind = "checkbox"
	FieldSelect        FieldKind = "select"
	FieldMultiCheckbox FieldKind = "multi-checkbox"
)

// Field one form field of a master screen
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	// Table select fields backed by another master
	Table string `json:"-"`
	// Choices fixed select values
	Choices []string `json:"choices,omitempty"`
}

// ItemTypeMap many-to-many item-type table of a resource
type ItemTypeMap struct {
	Table string
	FK    string
}

// Resource descriptor of one generic master screen
type Resource struct {
	Key        string
	Section    string
	Table      string
	EntityType string
	Title      string
	Fields     []Field
	// CodePrefixField value prefixed to generated codes
	CodePrefixField string
	ItemTypes       *ItemTypeMap
	// LockRefs references that freeze the code once any row points here
	LockRefs []repository.Reference
}

// BasePath list route of the screen
func (r Resource) BasePath() string {
	return "/master-data/" + r.Section + "/" + r.Key
}

// ScopeKey permission and approval scope, e.g. master_data.basic_info.units
func (r Resource) ScopeKey() string {
	return ScopeKey(r.Section, r.Key)
}

// ScopeKey master_data.<section>.<key> with dashes as underscores
func ScopeKey(section, key string) string {
	return "master_data." + strings.ReplaceAll(section, "-", "_") + "." + strings.ReplaceAll(key, "-", "_")
}

func (r Resource) field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

var baseFields = []Field{
	{Name: "code", Label: "Code", Kind: FieldText},
	{Name: "name", Label: "Name", Kind: FieldText, Required: true},
	{Name: "name_ur", Label: "Name (Urdu)", Kind: FieldText},
	{Name: "is_active", Label: "Active", Kind: FieldCheckbox},
}

func withFields(extra ...Field) []Field {
	out := make([]Field, 0, len(baseFields)+len(extra))
	out = append(out, baseFields...)
	return append(out, extra...)
}

func simple(section, key, table, entityType, title string) Resource {
	return Resource{
		Key:        key,
		Section:    section,
		Table:      table,
		EntityType: entityType,
		Title:      title,
		Fields:     withFields(),
	}
}

var itemTypesField = Field{Name: "item_types", Label: "Item types", Kind: FieldMultiCheckbox, Choices: entity.ItemTypes}

var resources = []Resource{
	{
		Key:        "units",
		Section:    SectionBasicInfo,
		Table:      "uoms",
		EntityType: "UOM",
		Title:      "Units of measure",
		Fields:     withFields(),
		LockRefs: []repository.Reference{
			{Table: "items", Column: "base_uom_id"},
			{Table: "uom_conversions", Column: "from_uom_id"},
			{Table: "uom_conversions", Column: "to_uom_id"},
		},
	},
	simple(SectionBasicInfo, "sizes", "sizes", "SIZE", "Sizes"),
	simple(SectionBasicInfo, "grades", "grades", "GRADE", "Grades"),
	simple(SectionBasicInfo, "colors", "colors", "COLOR", "Colors"),
	simple(SectionBasicInfo, "packing-types", "packing_types", "PACKING_TYPE", "Packing types"),
	simple(SectionBasicInfo, "party-groups", "party_groups", "PARTY_GROUP", "Party groups"),
	simple(SectionBasicInfo, "account-groups", "account_groups", "ACCOUNT_GROUP", "Account groups"),
	simple(SectionBasicInfo, "departments", "departments", "DEPARTMENT", "Departments"),
	simple(SectionBasicInfo, "branches", "branches", "BRANCH", "Branches"),
	{
		Key:        "product-groups",
		Section:    SectionProducts,
		Table:      "product_groups",
		EntityType: "PRODUCT_GROUP",
		Title:      "Product groups",
		Fields:     withFields(itemTypesField),
		ItemTypes:  &ItemTypeMap{Table: "product_group_item_types", FK: "group_id"},
	},
	{
		Key:        "product-subgroups",
		Section:    SectionProducts,
		Table:      "product_subgroups",
		EntityType: "PRODUCT_SUBGROUP",
		Title:      "Product subgroups",
		Fields: withFields(
			Field{Name: "group_id", Label: "Group", Kind: FieldSelect, Table: "product_groups"},
			itemTypesField,
		),
		ItemTypes: &ItemTypeMap{Table: "product_subgroup_item_types", FK: "subgroup_id"},
	},
	simple(SectionProducts, "product-types", "product_types", "PRODUCT_TYPE", "Product types"),
	{
		Key:        "items",
		Section:    SectionProducts,
		Table:      "items",
		EntityType: "ITEM",
		Title:      "Items",
		Fields: withFields(
			Field{Name: "item_type", Label: "Item type", Kind: FieldSelect, Required: true, Choices: entity.ItemTypes},
			Field{Name: "subgroup_id", Label: "Subgroup", Kind: FieldSelect, Table: "product_subgroups"},
			Field{Name: "base_uom_id", Label: "Base unit", Kind: FieldSelect, Table: "uoms"},
		),
		CodePrefixField: "item_type",
	},
}

// Resources every generic master screen
func Resources() []Resource {
	out := make([]Resource, len(resources))
	copy(out, resources)
	return out
}

// ResourceFor looks a screen up by section and key
func ResourceFor(section, key string) (Resource, bool) {
	for _, r := range resources {
		if r.Section == section && r.Key == key {
			return r, true
		}
	}
	return Resource{}, false
}

// ResourceByEntityType looks a screen up by its approval entity type
func ResourceByEntityType(entityType string) (Resource, bool) {
	for _, r := range resources {
		if r.EntityType == entityType {
			return r, true
		}
	}
	return Resource{}, false
}
