// Package domain contains persistence models for the org service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"gorm.io/datatypes"
)

// Organization represents a tenant.
type Organization struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"type:text;not null" json:"name"`
	Slug      string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	PlanID    snowflake.ID      `gorm:"not null;index" json:"planId"`
	Settings  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"settings"`
	CreatedAt time.Time         `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time         `gorm:"not null" json:"updatedAt"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// OrganizationMember represents membership of a user in an organization.
// Members are deactivated, never deleted.
type OrganizationMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:1" json:"orgId"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"userId"`
	Role      tenant.Role  `gorm:"type:text;not null" json:"role"`
	IsActive  bool         `gorm:"not null" json:"isActive"`
	CreatedAt time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time    `gorm:"not null" json:"updatedAt"`
}

// TableName sets the database table name.
func (OrganizationMember) TableName() string { return "organization_members" }

type InviteStatus string

const (
	InviteStatusPending   InviteStatus = "PENDING"
	InviteStatusAccepted  InviteStatus = "ACCEPTED"
	InviteStatusExpired   InviteStatus = "EXPIRED"
	InviteStatusCancelled InviteStatus = "CANCELLED"
)

// OrganizationInvite tracks an invite to an organization.
type OrganizationInvite struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID  `gorm:"not null;index" json:"orgId"`
	Email     string        `gorm:"type:text;not null" json:"email"`
	Role      tenant.Role   `gorm:"type:text;not null" json:"role"`
	Token     string        `gorm:"type:text;not null;uniqueIndex:ux_organization_invites_token" json:"-"`
	Status    InviteStatus  `gorm:"type:text;not null;index" json:"status"`
	InvitedBy *snowflake.ID `gorm:"column:invited_by" json:"invitedBy,omitempty"`
	ExpiresAt time.Time     `gorm:"not null;index" json:"expiresAt"`
	CreatedAt time.Time     `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"not null" json:"updatedAt"`
}

// TableName sets the database table name.
func (OrganizationInvite) TableName() string { return "organization_invites" }

type OrganizationListItem struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	Role      tenant.Role  `json:"role"`
	PlanName  string       `json:"plan"`
	CreatedAt time.Time    `json:"createdAt"`
}

// MemberView is a member joined with its user profile.
type MemberView struct {
	ID        snowflake.ID `json:"id"`
	UserID    snowflake.ID `json:"userId"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Role      tenant.Role  `json:"role"`
	IsActive  bool         `json:"isActive"`
	CreatedAt time.Time    `json:"joinedAt"`
}
