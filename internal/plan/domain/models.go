// Package domain contains the plan catalog models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Unlimited disables a quota.
const Unlimited = -1

// Plan is a quota bundle. Only the bootstrap step writes plans.
type Plan struct {
	ID             snowflake.ID                `gorm:"primaryKey" json:"id"`
	Name           string                      `gorm:"type:text;not null;uniqueIndex:ux_plans_name" json:"name"`
	MaxUsers       int                         `gorm:"not null" json:"maxUsers"`
	MaxDeals       int                         `gorm:"not null" json:"maxDeals"`
	MaxPipelines   int                         `gorm:"not null" json:"maxPipelines"`
	MaxContacts    int                         `gorm:"not null" json:"maxContacts"`
	MaxAutomations int                         `gorm:"not null" json:"maxAutomations"`
	Features       datatypes.JSONSlice[string] `gorm:"type:jsonb;not null" json:"features"`
	CreatedAt      time.Time                   `gorm:"not null" json:"createdAt"`
	UpdatedAt      time.Time                   `gorm:"not null" json:"updatedAt"`
}

func (Plan) TableName() string { return "plans" }

func (p Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Plan, error)
	FindByOrgID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Plan, error)
	List(ctx context.Context, db *gorm.DB) ([]Plan, error)
	Upsert(ctx context.Context, db *gorm.DB, plan *Plan) error
}

var (
	ErrPlanNotFound = errors.New("plan_not_found")
)
