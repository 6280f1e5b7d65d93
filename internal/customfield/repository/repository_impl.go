package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/customfield/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, field *domain.CustomField) error {
	return db.WithContext(ctx).Create(field).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.CustomField, error) {
	var field domain.CustomField
	err := db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id).First(&field).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &field, nil
}

func (r *repo) NameExists(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entity domain.Entity, name string, excludeID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.CustomField{}).
		Where("org_id = ? AND entity = ? AND name = ? AND id <> ?", orgID, entity, name, excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entity domain.Entity) ([]domain.CustomField, error) {
	var fields []domain.CustomField
	stmt := db.WithContext(ctx).Where("org_id = ?", orgID)
	if entity != "" {
		stmt = stmt.Where("entity = ?", entity)
	}
	err := stmt.Order("position ASC, id ASC").Find(&fields).Error
	return fields, err
}

func (r *repo) MaxPosition(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entity domain.Entity) (int, error) {
	var max *int
	err := db.WithContext(ctx).
		Model(&domain.CustomField{}).
		Where("org_id = ? AND entity = ?", orgID, entity).
		Select("MAX(position)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return -1, nil
	}
	return *max, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.CustomField{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	db = db.WithContext(ctx)
	if err := db.Where("custom_field_id = ?", id).Delete(&domain.CustomFieldValue{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&domain.CustomField{}).Error
}

func (r *repo) UpsertValue(ctx context.Context, db *gorm.DB, value *domain.CustomFieldValue) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "custom_field_id"}, {Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(value).Error
}

func (r *repo) ListValues(ctx context.Context, db *gorm.DB, orgID, entityID snowflake.ID) ([]domain.FieldValue, error) {
	var values []domain.FieldValue
	err := db.WithContext(ctx).Raw(
		`SELECT v.custom_field_id, v.entity_id, f.name, f.label, f.type, f.position, v.value, v.updated_at
		 FROM custom_field_values v
		 JOIN custom_fields f ON f.id = v.custom_field_id
		 WHERE f.org_id = ? AND v.entity_id = ?
		 ORDER BY f.position ASC, f.id ASC`,
		orgID, entityID,
	).Scan(&values).Error
	return values, err
}
