package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/limit/domain"
	"github.com/smallbiznis/dealflow/internal/observability/metrics"
	plandomain "github.com/smallbiznis/dealflow/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Plans   plandomain.Repository
	Counter domain.UsageCounter
	Metrics *metrics.Metrics `optional:"true"`
}

type Enforcer struct {
	db      *gorm.DB
	log     *zap.Logger
	plans   plandomain.Repository
	counter domain.UsageCounter
	metrics *metrics.Metrics
}

func New(p Params) domain.Enforcer {
	return &Enforcer{
		db:      p.DB,
		log:     p.Log.Named("limit.enforcer"),
		plans:   p.Plans,
		counter: p.Counter,
		metrics: p.Metrics,
	}
}

func (e *Enforcer) Plan(ctx context.Context, orgID snowflake.ID) (*plandomain.Plan, error) {
	plan, err := e.plans.FindByOrgID(ctx, e.db, orgID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return plan, nil
}

// CheckLimit fails with *domain.ExceededError once usage has reached the quota.
func (e *Enforcer) CheckLimit(ctx context.Context, orgID snowflake.ID, resource domain.Resource) error {
	if !resource.Valid() {
		return domain.ErrUnknownResource
	}

	plan, err := e.Plan(ctx, orgID)
	if err != nil {
		return err
	}

	quota := resource.Quota(*plan)
	if quota == plandomain.Unlimited {
		return nil
	}

	usage, err := e.counter.Count(ctx, e.db, orgID, resource)
	if err != nil {
		return err
	}

	if usage >= int64(quota) {
		e.log.Info("limit reached",
			zap.String("org_id", orgID.String()),
			zap.String("plan", plan.Name),
			zap.String("resource", string(resource)),
			zap.Int64("usage", usage),
			zap.Int("limit", quota),
		)
		e.metrics.RecordLimitDenied(ctx, string(resource))
		return &domain.ExceededError{Resource: resource, Limit: quota, Usage: usage}
	}
	return nil
}

func (e *Enforcer) Usage(ctx context.Context, orgID snowflake.ID) (*domain.OrganizationUsage, error) {
	plan, err := e.Plan(ctx, orgID)
	if err != nil {
		return nil, err
	}

	out := &domain.OrganizationUsage{
		Plan:      plan.Name,
		Resources: make([]domain.ResourceUsage, 0, len(domain.Resources)),
	}
	for _, resource := range domain.Resources {
		usage, err := e.counter.Count(ctx, e.db, orgID, resource)
		if err != nil {
			return nil, err
		}
		quota := resource.Quota(*plan)
		out.Resources = append(out.Resources, domain.ResourceUsage{
			Resource:   resource,
			Usage:      usage,
			Limit:      quota,
			Percentage: domain.Percentage(usage, quota),
		})
	}
	return out, nil
}
