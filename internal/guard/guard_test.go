package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/dealflow/internal/authorization"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	"github.com/smallbiznis/dealflow/internal/limit/mocks"
	plandomain "github.com/smallbiznis/dealflow/internal/plan/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func newAuthz(t *testing.T) authorization.Service {
	t.Helper()
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	return authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestChainStopsAtFirstDenial(t *testing.T) {
	var calls []string
	deny := errors.New("deny")
	pred := func(name string, err error) Predicate {
		return func(ctx context.Context, tc tenant.Context) error {
			calls = append(calls, name)
			return err
		}
	}

	err := Chain(pred("role", nil), nil, pred("feature", deny), pred("quota", nil))(context.Background(), tenant.Context{OrgID: 1})
	assert.ErrorIs(t, err, deny)
	assert.Equal(t, []string{"role", "feature"}, calls)

	assert.NoError(t, Chain()(context.Background(), tenant.Context{OrgID: 1}))
}

func TestRoleRunsBeforeQuota(t *testing.T) {
	ctrl := gomock.NewController(t)
	enforcer := mocks.NewMockEnforcer(ctrl)
	enforcer.EXPECT().CheckLimit(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	chain := Chain(
		RequireRole(newAuthz(t), authorization.ObjectPipeline, authorization.ActionCreate),
		RequireQuota(enforcer, limitdomain.ResourcePipelines),
	)
	err := chain(context.Background(), tenant.Context{OrgID: 1, UserID: 2, Role: tenant.RoleMember})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestRequireQuotaPropagatesExceeded(t *testing.T) {
	ctrl := gomock.NewController(t)
	enforcer := mocks.NewMockEnforcer(ctrl)
	enforcer.EXPECT().
		CheckLimit(gomock.Any(), gomock.Any(), limitdomain.ResourcePipelines).
		Return(&limitdomain.ExceededError{Resource: limitdomain.ResourcePipelines, Limit: 1, Usage: 1})

	chain := Chain(
		RequireRole(newAuthz(t), authorization.ObjectPipeline, authorization.ActionCreate),
		RequireQuota(enforcer, limitdomain.ResourcePipelines),
	)
	err := chain(context.Background(), tenant.Context{OrgID: 1, UserID: 2, Role: tenant.RoleManager})
	assert.ErrorIs(t, err, limitdomain.ErrLimitExceeded)
}

func TestRequireFeature(t *testing.T) {
	ctrl := gomock.NewController(t)
	enforcer := mocks.NewMockEnforcer(ctrl)
	enforcer.EXPECT().Plan(gomock.Any(), gomock.Any()).
		Return(&plandomain.Plan{Name: "start", Features: datatypes.NewJSONSlice([]string{"basic_crm"})}, nil).
		Times(2)

	tc := tenant.Context{OrgID: 1, Role: tenant.RoleOwner}
	assert.NoError(t, RequireFeature(enforcer, "basic_crm")(context.Background(), tc))
	assert.ErrorIs(t, RequireFeature(enforcer, "reports")(context.Background(), tc), ErrFeatureUnavailable)
}
