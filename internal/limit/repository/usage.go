package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/limit/domain"
	"gorm.io/gorm"
)

type usageCounter struct{}

func Provide() domain.UsageCounter {
	return &usageCounter{}
}

var countQueries = map[domain.Resource]string{
	domain.ResourceUsers:       `SELECT COUNT(*) FROM organization_members WHERE org_id = ? AND is_active = ?`,
	domain.ResourceDeals:       `SELECT COUNT(*) FROM deals WHERE org_id = ?`,
	domain.ResourcePipelines:   `SELECT COUNT(*) FROM pipelines WHERE org_id = ?`,
	domain.ResourceContacts:    `SELECT COUNT(*) FROM leads WHERE org_id = ?`,
	domain.ResourceAutomations: `SELECT COUNT(*) FROM automations WHERE org_id = ?`,
}

// Count runs a fresh count on every call. Results are never cached.
func (r *usageCounter) Count(ctx context.Context, db *gorm.DB, orgID snowflake.ID, resource domain.Resource) (int64, error) {
	query, ok := countQueries[resource]
	if !ok {
		return 0, domain.ErrUnknownResource
	}

	args := []any{orgID}
	if resource == domain.ResourceUsers {
		args = append(args, true)
	}

	var count int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", resource, err)
	}
	return count, nil
}
