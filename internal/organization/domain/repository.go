package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -source=repository.go -destination=../mocks/mock_repository.go -package=mocks

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrganization(ctx context.Context, org *Organization) error
	FindOrganizationByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	UpdateOrganization(ctx context.Context, id snowflake.ID, fields map[string]any) error
	DeleteOrganization(ctx context.Context, id snowflake.ID) error
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)

	AddMember(ctx context.Context, member *OrganizationMember) error
	FindMember(ctx context.Context, orgID, memberID snowflake.ID) (*OrganizationMember, error)
	FindMemberByUser(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationMember, error)
	FindActiveMemberByEmail(ctx context.Context, orgID snowflake.ID, email string) (*OrganizationMember, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberView, error)
	UpdateMember(ctx context.Context, memberID snowflake.ID, fields map[string]any) error

	CreateInvite(ctx context.Context, invite *OrganizationInvite) error
	FindInviteByID(ctx context.Context, orgID, inviteID snowflake.ID) (*OrganizationInvite, error)
	FindInviteByToken(ctx context.Context, token string) (*OrganizationInvite, error)
	FindPendingInvite(ctx context.Context, orgID snowflake.ID, email string) (*OrganizationInvite, error)
	ListInvites(ctx context.Context, orgID snowflake.ID, status InviteStatus) ([]OrganizationInvite, error)
	UpdateInvite(ctx context.Context, inviteID snowflake.ID, fields map[string]any) error
	// ExpireInvites marks pending invites past their expiry and returns how many changed.
	ExpireInvites(ctx context.Context, now time.Time) (int64, error)
}
