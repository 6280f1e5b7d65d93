package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/tenant"
)

type CreateRequest struct {
	Entity     Entity    `json:"entity" binding:"required,oneof=DEAL LEAD"`
	Name       string    `json:"name" binding:"required,max=64"`
	Label      string    `json:"label" binding:"required,max=100"`
	Type       FieldType `json:"type" binding:"required,oneof=TEXT NUMBER DATE SELECT MULTISELECT BOOLEAN"`
	Options    []string  `json:"options"`
	IsRequired bool      `json:"isRequired"`
	Position   *int      `json:"position" binding:"omitempty,min=0"`
}

type UpdateRequest struct {
	Name       *string    `json:"name" binding:"omitempty,max=64"`
	Label      *string    `json:"label" binding:"omitempty,max=100"`
	Type       *FieldType `json:"type" binding:"omitempty,oneof=TEXT NUMBER DATE SELECT MULTISELECT BOOLEAN"`
	Options    []string   `json:"options"`
	IsRequired *bool      `json:"isRequired"`
	Position   *int       `json:"position" binding:"omitempty,min=0"`
}

type ReorderRequest struct {
	FieldIDs []snowflake.ID `json:"fieldIds" binding:"required,min=1"`
}

type ValueInput struct {
	CustomFieldID snowflake.ID `json:"customFieldId" binding:"required"`
	Value         string       `json:"value"`
}

type SetValuesRequest struct {
	Values []ValueInput `json:"values" binding:"dive"`
}

type Service interface {
	Create(ctx context.Context, tc tenant.Context, req CreateRequest) (*CustomField, error)
	List(ctx context.Context, tc tenant.Context, entity Entity) ([]CustomField, error)
	Get(ctx context.Context, tc tenant.Context, id snowflake.ID) (*CustomField, error)
	Update(ctx context.Context, tc tenant.Context, id snowflake.ID, req UpdateRequest) (*CustomField, error)
	Delete(ctx context.Context, tc tenant.Context, id snowflake.ID) error
	Reorder(ctx context.Context, tc tenant.Context, req ReorderRequest) ([]CustomField, error)

	// SetValues silently skips fields that do not belong to the organization.
	SetValues(ctx context.Context, tc tenant.Context, entityID snowflake.ID, values []ValueInput) ([]FieldValue, error)
	GetValues(ctx context.Context, tc tenant.Context, entityID snowflake.ID) ([]FieldValue, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidEntity       = errors.New("invalid_entity")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidType         = errors.New("invalid_field_type")
	ErrNotFound            = errors.New("custom_field_not_found")
	ErrNameTaken           = errors.New("custom_field_name_taken")
	ErrDuplicateFieldID    = errors.New("duplicate_field_id")
)
