package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/plan/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Plan, error) {
	return first(db.WithContext(ctx).Where("name = ?", name))
}

// FindByOrgID resolves the plan currently attached to an organization.
func (r *repo) FindByOrgID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Plan, error) {
	return first(db.WithContext(ctx).
		Joins("JOIN organizations o ON o.plan_id = plans.id").
		Where("o.id = ?", orgID))
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Plan, error) {
	var plans []domain.Plan
	if err := db.WithContext(ctx).Order("max_users ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// Upsert inserts the plan or refreshes its quotas when the name exists.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"max_users", "max_deals", "max_pipelines", "max_contacts", "max_automations", "features", "updated_at",
		}),
	}).Create(plan).Error
}

func first(q *gorm.DB) (*domain.Plan, error) {
	var plan domain.Plan
	err := q.Model(&domain.Plan{}).Select("plans.*").Take(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
