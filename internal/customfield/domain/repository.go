package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, field *CustomField) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*CustomField, error)
	NameExists(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entity Entity, name string, excludeID snowflake.ID) (bool, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entity Entity) ([]CustomField, error)
	MaxPosition(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entity Entity) (int, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// UpsertValue inserts or replaces the value keyed by (custom_field_id, entity_id).
	UpsertValue(ctx context.Context, db *gorm.DB, value *CustomFieldValue) error
	ListValues(ctx context.Context, db *gorm.DB, orgID, entityID snowflake.ID) ([]FieldValue, error)
}
