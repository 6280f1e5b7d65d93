package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/dealflow/internal/audit/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads persisted policies through the gorm adapter and seeds the defaults.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, tc tenant.Context, object string, action string) error {
	if tc.OrgID == 0 {
		return ErrInvalidOrganization
	}
	if !tc.Role.Valid() {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(tc.Role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("org_id", tc.OrgID.String()),
			zap.String("role", tc.Role.String()),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, tc, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, tc tenant.Context, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	orgID := tc.OrgID
	actorID := tc.UserID.String()
	targetID := object + "." + action
	_ = s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), &actorID, auditdomain.ActionAuthorizationDenied, "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   tc.Role.String(),
	})
}

func roleSubject(role tenant.Role) string {
	return "role:" + strings.ToLower(role.String())
}

// Each role inherits every permission of the role below it.
var roleInheritance = [][]string{
	{roleSubject(tenant.RoleOwner), roleSubject(tenant.RoleAdmin)},
	{roleSubject(tenant.RoleAdmin), roleSubject(tenant.RoleManager)},
	{roleSubject(tenant.RoleManager), roleSubject(tenant.RoleMember)},
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	member := roleSubject(tenant.RoleMember)
	manager := roleSubject(tenant.RoleManager)
	admin := roleSubject(tenant.RoleAdmin)
	owner := roleSubject(tenant.RoleOwner)

	policies := [][]string{
		{member, ObjectDeal, ActionCreate},
		{member, ObjectDeal, ActionUpdate},
		{member, ObjectLead, ActionCreate},
		{member, ObjectLead, ActionUpdate},

		{manager, ObjectPipeline, ActionCreate},
		{manager, ObjectPipeline, ActionUpdate},
		{manager, ObjectPipeline, ActionDelete},
		{manager, ObjectPipeline, ActionReorder},
		{manager, ObjectPipeline, ActionMembers},
		{manager, ObjectDeal, ActionAssign},
		{manager, ObjectLead, ActionAssign},
		{manager, ObjectProduct, ActionCreate},
		{manager, ObjectProduct, ActionUpdate},

		{admin, ObjectProduct, ActionDelete},
		{admin, ObjectCustomField, ActionManage},
		{admin, ObjectLostReason, ActionManage},
		{admin, ObjectMember, ActionInvite},
		{admin, ObjectMember, ActionUpdateRole},
		{admin, ObjectMember, ActionRemove},
		{admin, ObjectOrganization, ActionUpdate},
		{admin, ObjectAuditLog, ActionView},

		{owner, ObjectOrganization, ActionDelete},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	for _, link := range roleInheritance {
		has, err := enforcer.HasGroupingPolicy(link)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(link); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
