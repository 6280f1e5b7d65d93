// Package domain defines organization-scoped custom attributes for deals and leads.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Entity string

const (
	EntityDeal Entity = "DEAL"
	EntityLead Entity = "LEAD"
)

func (e Entity) Valid() bool { return e == EntityDeal || e == EntityLead }

type FieldType string

const (
	TypeText        FieldType = "TEXT"
	TypeNumber      FieldType = "NUMBER"
	TypeDate        FieldType = "DATE"
	TypeSelect      FieldType = "SELECT"
	TypeMultiSelect FieldType = "MULTISELECT"
	TypeBoolean     FieldType = "BOOLEAN"
)

func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeSelect, TypeMultiSelect, TypeBoolean:
		return true
	}
	return false
}

// CustomField is a definition. Name is unique per (organization, entity).
type CustomField struct {
	ID         snowflake.ID                `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID                `gorm:"not null;uniqueIndex:ux_custom_fields_org_entity_name,priority:1" json:"orgId"`
	Entity     Entity                      `gorm:"type:text;not null;uniqueIndex:ux_custom_fields_org_entity_name,priority:2" json:"entity"`
	Name       string                      `gorm:"type:text;not null;uniqueIndex:ux_custom_fields_org_entity_name,priority:3" json:"name"`
	Label      string                      `gorm:"type:text;not null" json:"label"`
	Type       FieldType                   `gorm:"type:text;not null" json:"type"`
	Options    datatypes.JSONSlice[string] `gorm:"type:json" json:"options,omitempty"`
	IsRequired bool                        `gorm:"not null" json:"isRequired"`
	Position   int                         `gorm:"not null" json:"position"`
	CreatedAt  time.Time                   `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time                   `gorm:"not null" json:"updatedAt"`
}

func (CustomField) TableName() string { return "custom_fields" }

// CustomFieldValue stores one value per (field, entity), always as text.
type CustomFieldValue struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomFieldID snowflake.ID `gorm:"not null;uniqueIndex:ux_custom_field_values_field_entity,priority:1" json:"customFieldId"`
	EntityID      snowflake.ID `gorm:"not null;uniqueIndex:ux_custom_field_values_field_entity,priority:2;index" json:"entityId"`
	Value         string       `gorm:"type:text;not null" json:"value"`
	CreatedAt     time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updatedAt"`
}

func (CustomFieldValue) TableName() string { return "custom_field_values" }

// FieldValue is a stored value joined with its definition.
type FieldValue struct {
	CustomFieldID snowflake.ID `json:"customFieldId"`
	EntityID      snowflake.ID `json:"entityId"`
	Name          string       `json:"name"`
	Label         string       `json:"label"`
	Type          FieldType    `json:"type"`
	Position      int          `json:"position"`
	Value         string       `json:"value"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}
