package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/lead/domain"
	"github.com/smallbiznis/dealflow/pkg/db/option"
	"github.com/smallbiznis/dealflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, lead *domain.Lead) error {
	return db.WithContext(ctx).Create(lead).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Lead, error) {
	var lead domain.Lead
	err := db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id).First(&lead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *repo) ExistsByPhone(ctx context.Context, db *gorm.DB, orgID snowflake.ID, phone string, excludeID snowflake.ID) (bool, error) {
	return exists(db.WithContext(ctx).Model(&domain.Lead{}).Where("org_id = ? AND phone = ? AND id <> ?", orgID, phone, excludeID))
}

func (r *repo) ExistsByEmail(ctx context.Context, db *gorm.DB, orgID snowflake.ID, email string, excludeID snowflake.ID) (bool, error) {
	return exists(db.WithContext(ctx).Model(&domain.Lead{}).Where("org_id = ? AND email = ? AND id <> ?", orgID, email, excludeID))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListLeadFilter, page pagination.Pagination) ([]*domain.Lead, error) {
	var leads []*domain.Lead
	stmt := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("org_id = ?", orgID)
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		stmt = stmt.Where("(LOWER(name) LIKE ? OR phone LIKE ? OR LOWER(email) LIKE ?)", like, like, like)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Temperature != "" {
		stmt = stmt.Where("temperature = ?", filter.Temperature)
	}
	if filter.AssignedToID != nil {
		stmt = stmt.Where("assigned_to_id = ?", *filter.AssignedToID)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&leads).Error
	if err != nil {
		return nil, err
	}
	return leads, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).Model(&domain.Lead{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Lead{}).Error
}

func (r *repo) CountDeals(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM deals WHERE lead_id = ?`, leadID).Scan(&count).Error
	return count, err
}

func exists(stmt *gorm.DB) (bool, error) {
	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
