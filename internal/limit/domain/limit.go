// Package domain defines plan quotas and the errors raised when they are hit.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/dealflow/internal/plan/domain"
	"gorm.io/gorm"
)

type Resource string

const (
	ResourceUsers       Resource = "users"
	ResourceDeals       Resource = "deals"
	ResourcePipelines   Resource = "pipelines"
	ResourceContacts    Resource = "contacts"
	ResourceAutomations Resource = "automations"
)

// Resources lists every quota-bound resource in display order.
var Resources = []Resource{
	ResourceUsers,
	ResourceDeals,
	ResourcePipelines,
	ResourceContacts,
	ResourceAutomations,
}

func (r Resource) Valid() bool {
	for _, known := range Resources {
		if r == known {
			return true
		}
	}
	return false
}

// Quota returns the plan limit for the resource.
func (r Resource) Quota(plan plandomain.Plan) int {
	switch r {
	case ResourceUsers:
		return plan.MaxUsers
	case ResourceDeals:
		return plan.MaxDeals
	case ResourcePipelines:
		return plan.MaxPipelines
	case ResourceContacts:
		return plan.MaxContacts
	case ResourceAutomations:
		return plan.MaxAutomations
	default:
		return plandomain.Unlimited
	}
}

// Automation is only counted; automation management lives elsewhere.
type Automation struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"orgId"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"createdAt"`
}

func (Automation) TableName() string { return "automations" }

type ResourceUsage struct {
	Resource   Resource `json:"resource"`
	Usage      int64    `json:"usage"`
	Limit      int      `json:"limit"`
	Percentage int      `json:"percentage"`
}

type OrganizationUsage struct {
	Plan      string          `json:"plan"`
	Resources []ResourceUsage `json:"resources"`
}

//go:generate mockgen -source=limit.go -destination=../mocks/mock_limit.go -package=mocks

// UsageCounter counts live usage of a resource for one organization.
type UsageCounter interface {
	Count(ctx context.Context, db *gorm.DB, orgID snowflake.ID, resource Resource) (int64, error)
}

type Enforcer interface {
	CheckLimit(ctx context.Context, orgID snowflake.ID, resource Resource) error
	Usage(ctx context.Context, orgID snowflake.ID) (*OrganizationUsage, error)
	Plan(ctx context.Context, orgID snowflake.ID) (*plandomain.Plan, error)
}

var (
	ErrLimitExceeded        = errors.New("limit_exceeded")
	ErrUnknownResource      = errors.New("unknown_resource")
	ErrOrganizationNotFound = errors.New("organization_not_found")
)

// ExceededError carries the quota that was hit. It matches ErrLimitExceeded.
type ExceededError struct {
	Resource Resource
	Limit    int
	Usage    int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("limit reached for resource %s: %d/%d", e.Resource, e.Usage, e.Limit)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Percentage is usage over limit, rounded and capped at 100. Unlimited quotas report 0.
func Percentage(usage int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	pct := int((usage*100 + int64(limit)/2) / int64(limit))
	if pct > 100 {
		return 100
	}
	return pct
}
