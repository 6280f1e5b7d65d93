package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/dealflow/internal/audit/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type auditMock struct {
	mock.Mock
}

func (m *auditMock) AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, orgID, actorType, actorID, action, targetType, targetID, metadata)
	return args.Error(0)
}

func (m *auditMock) List(ctx context.Context, tc tenant.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func newTestService(t *testing.T, audit auditdomain.Service) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit})
}

func TestAuthorizeRoleHierarchy(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	cases := []struct {
		role    tenant.Role
		object  string
		action  string
		allowed bool
	}{
		{tenant.RoleMember, ObjectPipeline, ActionCreate, false},
		{tenant.RoleManager, ObjectPipeline, ActionCreate, true},
		{tenant.RoleAdmin, ObjectPipeline, ActionReorder, true},
		{tenant.RoleOwner, ObjectDeal, ActionAssign, true},
		{tenant.RoleManager, ObjectProduct, ActionDelete, false},
		{tenant.RoleAdmin, ObjectProduct, ActionDelete, true},
		{tenant.RoleAdmin, ObjectOrganization, ActionDelete, false},
		{tenant.RoleOwner, ObjectOrganization, ActionDelete, true},
		{tenant.RoleManager, ObjectMember, ActionInvite, false},
		{tenant.RoleMember, ObjectDeal, ActionCreate, true},
	}

	for _, tc := range cases {
		t.Run(string(tc.role)+"/"+tc.object+"/"+tc.action, func(t *testing.T) {
			err := svc.Authorize(ctx, tenant.Context{OrgID: 1, UserID: 2, Role: tc.role}, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, tenant.Context{Role: tenant.RoleOwner}, ObjectDeal, ActionAssign), ErrInvalidOrganization)
	assert.ErrorIs(t, svc.Authorize(ctx, tenant.Context{OrgID: 1, Role: "GUEST"}, ObjectDeal, ActionAssign), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, tenant.Context{OrgID: 1, Role: tenant.RoleOwner}, " ", ActionAssign), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, tenant.Context{OrgID: 1, Role: tenant.RoleOwner}, ObjectDeal, ""), ErrInvalidAction)
}

func TestAuthorizeAuditsDenials(t *testing.T) {
	audit := &auditMock{}
	audit.On("AuditLog", mock.Anything, mock.Anything, "user", mock.Anything, auditdomain.ActionAuthorizationDenied, "authorization", mock.Anything, mock.Anything).
		Return(nil).Once()

	svc := newTestService(t, audit)
	err := svc.Authorize(context.Background(), tenant.Context{OrgID: 1, UserID: 2, Role: tenant.RoleMember}, ObjectLostReason, ActionManage)
	assert.ErrorIs(t, err, ErrForbidden)
	audit.AssertExpectations(t)
}
