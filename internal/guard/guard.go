// Package guard composes the pre-checks that run before a core operation.
package guard

import (
	"context"
	"errors"

	"github.com/smallbiznis/dealflow/internal/authorization"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
)

// Predicate returns nil to allow the call or the reason it is denied.
type Predicate func(ctx context.Context, tc tenant.Context) error

var ErrFeatureUnavailable = errors.New("feature_unavailable")

// Chain evaluates predicates in order and stops at the first denial.
func Chain(preds ...Predicate) Predicate {
	return func(ctx context.Context, tc tenant.Context) error {
		for _, pred := range preds {
			if pred == nil {
				continue
			}
			if err := pred(ctx, tc); err != nil {
				return err
			}
		}
		return nil
	}
}

// RequireRole asks the authorizer whether the caller's role may act on object.
func RequireRole(authz authorization.Service, object, action string) Predicate {
	return func(ctx context.Context, tc tenant.Context) error {
		return authz.Authorize(ctx, tc, object, action)
	}
}

// RequireFeature denies unless the organization's plan lists feature.
func RequireFeature(plans limitdomain.Enforcer, feature string) Predicate {
	return func(ctx context.Context, tc tenant.Context) error {
		plan, err := plans.Plan(ctx, tc.OrgID)
		if err != nil {
			return err
		}
		if !plan.HasFeature(feature) {
			return ErrFeatureUnavailable
		}
		return nil
	}
}

// RequireQuota delegates to the limit enforcer.
func RequireQuota(enforcer limitdomain.Enforcer, resource limitdomain.Resource) Predicate {
	return func(ctx context.Context, tc tenant.Context) error {
		return enforcer.CheckLimit(ctx, tc.OrgID, resource)
	}
}
