package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/dealflow/internal/auth/domain"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	plandomain "github.com/smallbiznis/dealflow/internal/plan/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
)

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*Organization, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	GetCurrent(ctx context.Context, tc tenant.Context) (*OrganizationDetail, error)
	Update(ctx context.Context, tc tenant.Context, req UpdateOrganizationRequest) (*Organization, error)
	Delete(ctx context.Context, tc tenant.Context) error
	Stats(ctx context.Context, tc tenant.Context) (*limitdomain.OrganizationUsage, error)

	// ActiveMember resolves the caller's membership. It fails with ErrNotMember when the
	// user has no active membership in orgID.
	ActiveMember(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationMember, error)
	ListMembers(ctx context.Context, tc tenant.Context) ([]MemberView, error)
	UpdateMemberRole(ctx context.Context, tc tenant.Context, memberID snowflake.ID, role tenant.Role) (*OrganizationMember, error)
	RemoveMember(ctx context.Context, tc tenant.Context, memberID snowflake.ID) error

	InviteUser(ctx context.Context, tc tenant.Context, req InviteRequest) (*OrganizationInvite, error)
	ListInvites(ctx context.Context, tc tenant.Context) ([]OrganizationInvite, error)
	CancelInvite(ctx context.Context, tc tenant.Context, inviteID snowflake.ID) error
	ResendInvite(ctx context.Context, tc tenant.Context, inviteID snowflake.ID) (*OrganizationInvite, error)
	AcceptInvite(ctx context.Context, req AcceptInviteRequest) (*AcceptInviteResult, error)
	ExpireInvites(ctx context.Context) (int64, error)
}

type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required,min=2,max=100"`
	Slug string `json:"slug" binding:"omitempty,max=50"`
}

type UpdateOrganizationRequest struct {
	Name     *string        `json:"name" binding:"omitempty,min=2,max=100"`
	Settings map[string]any `json:"settings"`
}

type InviteRequest struct {
	Email string      `json:"email" binding:"required,email"`
	Role  tenant.Role `json:"role" binding:"omitempty,crm_role"`
}

type AcceptInviteRequest struct {
	Token    string `json:"token" binding:"required,len=64,hexadecimal"`
	Name     string `json:"name" binding:"omitempty,max=120"`
	Password string `json:"password" binding:"omitempty,min=8,max=128"`
}

type AcceptInviteResult struct {
	OrganizationID snowflake.ID       `json:"organizationId"`
	Member         OrganizationMember `json:"member"`
	User           *authdomain.User   `json:"user"`
	NewUser        bool               `json:"newUser"`
}

// OrganizationDetail is an organization with its plan.
type OrganizationDetail struct {
	Organization
	Plan *plandomain.Plan `json:"plan"`
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidSlug          = errors.New("invalid_slug")
	ErrSlugTaken            = errors.New("slug_taken")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrDefaultPlanMissing   = errors.New("default_plan_missing")
	ErrNotMember            = errors.New("not_a_member")
	ErrMemberNotFound       = errors.New("member_not_found")
	ErrCannotModifySelf     = errors.New("cannot_modify_self")
	ErrOwnerProtected       = errors.New("owner_protected")
	ErrMemberExists         = errors.New("member_already_exists")
	ErrInviteExists         = errors.New("invite_already_exists")
	ErrInviteNotFound       = errors.New("invite_not_found")
	ErrInviteExpired        = errors.New("invite_expired")
	ErrInviteNotPending     = errors.New("invite_not_pending")
	ErrPasswordRequired     = errors.New("password_required")
)
