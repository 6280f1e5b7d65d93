package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/dealflow/internal/audit/domain"
	authdomain "github.com/smallbiznis/dealflow/internal/auth/domain"
	"github.com/smallbiznis/dealflow/internal/auth/password"
	authservice "github.com/smallbiznis/dealflow/internal/auth/service"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/config"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	"github.com/smallbiznis/dealflow/internal/organization/domain"
	"github.com/smallbiznis/dealflow/internal/outbox"
	plandomain "github.com/smallbiznis/dealflow/internal/plan/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxSlugLength    = 50
	inviteTokenBytes = 32
	inviteTTL        = 7 * 24 * time.Hour
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Plans    plandomain.Repository
	Catalog  *config.PlanCatalogHolder
	Limits   limitdomain.Enforcer
	Users    authdomain.Repository
	Outbox   outbox.Publisher    `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	plans    plandomain.Repository
	catalog  *config.PlanCatalogHolder
	limits   limitdomain.Enforcer
	users    authdomain.Repository
	outbox   outbox.Publisher
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("organization.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		plans:    p.Plans,
		catalog:  p.Catalog,
		limits:   p.Limits,
		users:    p.Users,
		outbox:   p.Outbox,
		auditSvc: p.AuditSvc,
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	orgSlug, err := s.resolveSlug(ctx, name, req.Slug)
	if err != nil {
		return nil, err
	}

	plan, err := s.defaultPlan(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	org := &domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      orgSlug,
		PlanID:    plan.ID,
		Settings:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner := &domain.OrganizationMember{
		ID:        s.genID.Generate(),
		OrgID:     org.ID,
		UserID:    userID,
		Role:      tenant.RoleOwner,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}
		return repo.AddMember(ctx, owner)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
		zap.String("plan", plan.Name),
	)
	outbox.PublishBestEffort(ctx, s.outbox, org.ID, outbox.TopicOrganizationCreated, map[string]string{
		"organizationId": org.ID.String(),
		"ownerUserId":    userID.String(),
		"slug":           org.Slug,
		"plan":           plan.Name,
		"createdAt":      org.CreatedAt.Format(time.RFC3339),
	})

	return org, nil
}

func (s *service) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	items, err := s.repo.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.OrganizationListItem{}
	}
	return items, nil
}

func (s *service) GetCurrent(ctx context.Context, tc tenant.Context) (*domain.OrganizationDetail, error) {
	org, err := s.currentOrganization(ctx, tc)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.FindByID(ctx, s.db, org.PlanID)
	if err != nil {
		return nil, err
	}
	return &domain.OrganizationDetail{Organization: *org, Plan: plan}, nil
}

func (s *service) Update(ctx context.Context, tc tenant.Context, req domain.UpdateOrganizationRequest) (*domain.Organization, error) {
	org, err := s.currentOrganization(ctx, tc)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"updated_at": s.clock.Now()}
	changed := []string{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		fields["name"] = name
		changed = append(changed, "name")
	}
	if req.Settings != nil {
		fields["settings"] = datatypes.JSONMap(req.Settings)
		changed = append(changed, "settings")
	}

	if err := s.repo.UpdateOrganization(ctx, org.ID, fields); err != nil {
		return nil, err
	}

	s.audit(ctx, tc, auditdomain.ActionOrganizationUpdated, "organization", org.ID, map[string]any{
		"fields": changed,
	})
	return s.repo.FindOrganizationByID(ctx, org.ID)
}

func (s *service) Delete(ctx context.Context, tc tenant.Context) error {
	org, err := s.currentOrganization(ctx, tc)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteOrganization(ctx, org.ID)
	})
	if err != nil {
		return err
	}

	s.log.Info("organization deleted", zap.String("org_id", org.ID.String()))
	s.audit(ctx, tc, auditdomain.ActionOrganizationDeleted, "organization", org.ID, map[string]any{
		"slug": org.Slug,
	})
	return nil
}

func (s *service) Stats(ctx context.Context, tc tenant.Context) (*limitdomain.OrganizationUsage, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	usage, err := s.limits.Usage(ctx, tc.OrgID)
	if err != nil {
		if errors.Is(err, limitdomain.ErrOrganizationNotFound) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, err
	}
	return usage, nil
}

func (s *service) ActiveMember(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrganizationMember, error) {
	if orgID == 0 || userID == 0 {
		return nil, domain.ErrNotMember
	}
	member, err := s.repo.FindMemberByUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive {
		return nil, domain.ErrNotMember
	}
	return member, nil
}

func (s *service) ListMembers(ctx context.Context, tc tenant.Context) ([]domain.MemberView, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	members, err := s.repo.ListMembers(ctx, tc.OrgID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []domain.MemberView{}
	}
	return members, nil
}

func (s *service) UpdateMemberRole(ctx context.Context, tc tenant.Context, memberID snowflake.ID, role tenant.Role) (*domain.OrganizationMember, error) {
	if !role.Valid() || role == tenant.RoleOwner {
		return nil, domain.ErrInvalidRole
	}

	member, err := s.manageableMember(ctx, tc, memberID)
	if err != nil {
		return nil, err
	}

	previous := member.Role
	now := s.clock.Now()
	if err := s.repo.UpdateMember(ctx, member.ID, map[string]any{
		"role":       role,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}
	member.Role = role
	member.UpdatedAt = now

	s.audit(ctx, tc, auditdomain.ActionMemberRoleChanged, "member", member.ID, map[string]any{
		"from": string(previous),
		"to":   string(role),
	})
	return member, nil
}

func (s *service) RemoveMember(ctx context.Context, tc tenant.Context, memberID snowflake.ID) error {
	member, err := s.manageableMember(ctx, tc, memberID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateMember(ctx, member.ID, map[string]any{
		"is_active":  false,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return err
	}

	s.audit(ctx, tc, auditdomain.ActionMemberRemoved, "member", member.ID, map[string]any{
		"user_id": member.UserID.String(),
	})
	return nil
}

// manageableMember applies the rules shared by role changes and removals.
func (s *service) manageableMember(ctx context.Context, tc tenant.Context, memberID snowflake.ID) (*domain.OrganizationMember, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if memberID == tc.MemberID {
		return nil, domain.ErrCannotModifySelf
	}

	member, err := s.repo.FindMember(ctx, tc.OrgID, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive {
		return nil, domain.ErrMemberNotFound
	}
	if member.Role == tenant.RoleOwner {
		return nil, domain.ErrOwnerProtected
	}
	return member, nil
}

func (s *service) InviteUser(ctx context.Context, tc tenant.Context, req domain.InviteRequest) (*domain.OrganizationInvite, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	email, err := authservice.NormalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	role := req.Role
	if role == "" {
		role = tenant.RoleMember
	}
	if !role.Valid() || role == tenant.RoleOwner {
		return nil, domain.ErrInvalidRole
	}

	if err := s.limits.CheckLimit(ctx, tc.OrgID, limitdomain.ResourceUsers); err != nil {
		return nil, err
	}

	pending, err := s.repo.FindPendingInvite(ctx, tc.OrgID, email)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, domain.ErrInviteExists
	}

	existing, err := s.repo.FindActiveMemberByEmail(ctx, tc.OrgID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrMemberExists
	}

	token, err := newInviteToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invite := &domain.OrganizationInvite{
		ID:        s.genID.Generate(),
		OrgID:     tc.OrgID,
		Email:     email,
		Role:      role,
		Token:     token,
		Status:    domain.InviteStatusPending,
		InvitedBy: tc.MemberRef(),
		ExpiresAt: now.Add(inviteTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateInvite(ctx, invite); err != nil {
		return nil, err
	}

	s.audit(ctx, tc, auditdomain.ActionInviteCreated, "invite", invite.ID, map[string]any{
		"role": string(role),
	})
	s.publishInvite(ctx, invite)
	return invite, nil
}

func (s *service) ListInvites(ctx context.Context, tc tenant.Context) ([]domain.OrganizationInvite, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	invites, err := s.repo.ListInvites(ctx, tc.OrgID, domain.InviteStatusPending)
	if err != nil {
		return nil, err
	}
	if invites == nil {
		invites = []domain.OrganizationInvite{}
	}
	return invites, nil
}

func (s *service) CancelInvite(ctx context.Context, tc tenant.Context, inviteID snowflake.ID) error {
	invite, err := s.findInvite(ctx, tc, inviteID)
	if err != nil {
		return err
	}
	if invite.Status != domain.InviteStatusPending {
		return domain.ErrInviteNotPending
	}

	if err := s.repo.UpdateInvite(ctx, invite.ID, map[string]any{
		"status":     domain.InviteStatusCancelled,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return err
	}

	s.audit(ctx, tc, auditdomain.ActionInviteCancelled, "invite", invite.ID, nil)
	return nil
}

// ResendInvite rotates the token and restarts the expiry window.
func (s *service) ResendInvite(ctx context.Context, tc tenant.Context, inviteID snowflake.ID) (*domain.OrganizationInvite, error) {
	invite, err := s.findInvite(ctx, tc, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Status == domain.InviteStatusAccepted {
		return nil, domain.ErrInviteNotPending
	}

	token, err := newInviteToken()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.repo.UpdateInvite(ctx, invite.ID, map[string]any{
		"token":      token,
		"status":     domain.InviteStatusPending,
		"expires_at": now.Add(inviteTTL),
		"updated_at": now,
	}); err != nil {
		return nil, err
	}

	invite.Token = token
	invite.Status = domain.InviteStatusPending
	invite.ExpiresAt = now.Add(inviteTTL)
	invite.UpdatedAt = now

	s.publishInvite(ctx, invite)
	return invite, nil
}

func (s *service) AcceptInvite(ctx context.Context, req domain.AcceptInviteRequest) (*domain.AcceptInviteResult, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, domain.ErrInviteNotFound
	}

	invite, err := s.repo.FindInviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invite == nil {
		return nil, domain.ErrInviteNotFound
	}

	now := s.clock.Now()
	if invite.Status == domain.InviteStatusPending && now.After(invite.ExpiresAt) {
		if err := s.repo.UpdateInvite(ctx, invite.ID, map[string]any{
			"status":     domain.InviteStatusExpired,
			"updated_at": now,
		}); err != nil {
			return nil, err
		}
		return nil, domain.ErrInviteExpired
	}
	if invite.Status != domain.InviteStatusPending {
		return nil, domain.ErrInviteNotPending
	}

	user, err := s.users.FindByEmail(ctx, s.db, invite.Email)
	if err != nil {
		return nil, err
	}

	newUser := user == nil
	if newUser {
		if strings.TrimSpace(req.Password) == "" {
			return nil, domain.ErrPasswordRequired
		}
		hashed, err := password.Hash(req.Password)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = authservice.DefaultName(invite.Email)
		}
		user = &authdomain.User{
			ID:           s.genID.Generate(),
			Name:         name,
			Email:        invite.Email,
			PasswordHash: hashed,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	var member *domain.OrganizationMember
	if !newUser {
		member, err = s.repo.FindMemberByUser(ctx, invite.OrgID, user.ID)
		if err != nil {
			return nil, err
		}
		if member != nil && member.IsActive {
			return nil, domain.ErrMemberExists
		}
	}

	if err := s.limits.CheckLimit(ctx, invite.OrgID, limitdomain.ResourceUsers); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if newUser {
			if err := s.users.Create(ctx, tx, user); err != nil {
				return err
			}
		}

		if member == nil {
			member = &domain.OrganizationMember{
				ID:        s.genID.Generate(),
				OrgID:     invite.OrgID,
				UserID:    user.ID,
				Role:      invite.Role,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repo.AddMember(ctx, member); err != nil {
				return err
			}
		} else {
			if err := repo.UpdateMember(ctx, member.ID, map[string]any{
				"role":       invite.Role,
				"is_active":  true,
				"updated_at": now,
			}); err != nil {
				return err
			}
			member.Role = invite.Role
			member.IsActive = true
			member.UpdatedAt = now
		}

		return repo.UpdateInvite(ctx, invite.ID, map[string]any{
			"status":     domain.InviteStatusAccepted,
			"updated_at": now,
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrMemberExists
		}
		return nil, err
	}

	tc := tenant.Context{OrgID: invite.OrgID, UserID: user.ID, MemberID: member.ID, Role: member.Role}
	s.audit(ctx, tc, auditdomain.ActionInviteAccepted, "invite", invite.ID, map[string]any{
		"member_id": member.ID.String(),
		"new_user":  newUser,
	})

	return &domain.AcceptInviteResult{
		OrganizationID: invite.OrgID,
		Member:         *member,
		User:           user,
		NewUser:        newUser,
	}, nil
}

func (s *service) ExpireInvites(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpireInvites(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 && s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(ctx, nil, string(auditdomain.ActorTypeSystem), nil,
			auditdomain.ActionInvitesExpired, "invite", nil, map[string]any{"count": count})
	}
	return count, nil
}

func (s *service) currentOrganization(ctx context.Context, tc tenant.Context) (*domain.Organization, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindOrganizationByID(ctx, tc.OrgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *service) findInvite(ctx context.Context, tc tenant.Context, inviteID snowflake.ID) (*domain.OrganizationInvite, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	invite, err := s.repo.FindInviteByID(ctx, tc.OrgID, inviteID)
	if err != nil {
		return nil, err
	}
	if invite == nil {
		return nil, domain.ErrInviteNotFound
	}
	return invite, nil
}

func (s *service) defaultPlan(ctx context.Context) (*plandomain.Plan, error) {
	name := config.DefaultPlanName
	if s.catalog != nil {
		name = s.catalog.Get().DefaultPlan
	}
	plan, err := s.plans.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrDefaultPlanMissing
	}
	return plan, nil
}

func (s *service) resolveSlug(ctx context.Context, name, requested string) (string, error) {
	if strings.TrimSpace(requested) != "" {
		candidate := MakeSlug(requested)
		if candidate == "" {
			return "", domain.ErrInvalidSlug
		}
		taken, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if taken {
			return "", domain.ErrSlugTaken
		}
		return candidate, nil
	}
	return s.generateUniqueSlug(ctx, name)
}

// generateUniqueSlug appends -1, -2, ... until the slug is free.
func (s *service) generateUniqueSlug(ctx context.Context, name string) (string, error) {
	base := MakeSlug(name)
	if base == "" {
		return "", domain.ErrInvalidName
	}

	candidate := base
	for counter := 1; ; counter++ {
		taken, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, counter)
	}
}

// MakeSlug lowercases name, collapses non-alphanumeric runs into "-" and caps the length.
func MakeSlug(name string) string {
	out := slug.Make(name)
	if len(out) > maxSlugLength {
		out = out[:maxSlugLength]
	}
	return strings.Trim(out, "-")
}

func (s *service) publishInvite(ctx context.Context, invite *domain.OrganizationInvite) {
	outbox.PublishBestEffort(ctx, s.outbox, invite.OrgID, outbox.TopicInviteCreated, map[string]string{
		"inviteId":  invite.ID.String(),
		"email":     invite.Email,
		"role":      string(invite.Role),
		"token":     invite.Token,
		"expiresAt": invite.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *service) audit(ctx context.Context, tc tenant.Context, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	orgID := tc.OrgID
	target := targetID.String()
	var actorID *string
	if tc.UserID != 0 {
		id := tc.UserID.String()
		actorID = &id
	}
	if err := s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), actorID, action, targetType, &target, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func newInviteToken() (string, error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
