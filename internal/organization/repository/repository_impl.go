package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *repository) FindOrganizationByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	return first(r.db.WithContext(ctx).Where("id = ?", id), &org)
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Organization{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *repository) UpdateOrganization(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&domain.Organization{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repository) DeleteOrganization(ctx context.Context, id snowflake.ID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("org_id = ?", id).Delete(&domain.OrganizationInvite{}).Error; err != nil {
		return err
	}
	if err := db.Where("org_id = ?", id).Delete(&domain.OrganizationMember{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&domain.Organization{}).Error
}

func (r *repository) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	var items []domain.OrganizationListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, m.role, p.name AS plan_name, o.created_at
		 FROM organizations o
		 JOIN organization_members m ON m.org_id = o.id
		 LEFT JOIN plans p ON p.id = o.plan_id
		 WHERE m.user_id = ? AND m.is_active = ?
		 ORDER BY o.created_at ASC`,
		userID, true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *repository) AddMember(ctx context.Context, member *domain.OrganizationMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *repository) FindMember(ctx context.Context, orgID, memberID snowflake.ID) (*domain.OrganizationMember, error) {
	var member domain.OrganizationMember
	return first(r.db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, memberID), &member)
}

func (r *repository) FindMemberByUser(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrganizationMember, error) {
	var member domain.OrganizationMember
	return first(r.db.WithContext(ctx).Where("org_id = ? AND user_id = ?", orgID, userID), &member)
}

func (r *repository) FindActiveMemberByEmail(ctx context.Context, orgID snowflake.ID, email string) (*domain.OrganizationMember, error) {
	var members []domain.OrganizationMember
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.*
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ? AND m.is_active = ? AND u.email = ?
		 LIMIT 1`,
		orgID, true, email,
	).Scan(&members).Error
	if err != nil || len(members) == 0 {
		return nil, err
	}
	return &members[0], nil
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberView, error) {
	var members []domain.MemberView
	err := r.db.WithContext(ctx).Raw(
		`SELECT m.id, m.user_id, u.name, u.email, m.role, m.is_active, m.created_at
		 FROM organization_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ? AND m.is_active = ?
		 ORDER BY m.created_at ASC, m.id ASC`,
		orgID, true,
	).Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repository) UpdateMember(ctx context.Context, memberID snowflake.ID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&domain.OrganizationMember{}).Where("id = ?", memberID).Updates(fields).Error
}

func (r *repository) CreateInvite(ctx context.Context, invite *domain.OrganizationInvite) error {
	return r.db.WithContext(ctx).Create(invite).Error
}

func (r *repository) FindInviteByID(ctx context.Context, orgID, inviteID snowflake.ID) (*domain.OrganizationInvite, error) {
	var invite domain.OrganizationInvite
	return first(r.db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, inviteID), &invite)
}

func (r *repository) FindInviteByToken(ctx context.Context, token string) (*domain.OrganizationInvite, error) {
	var invite domain.OrganizationInvite
	return first(r.db.WithContext(ctx).Where("token = ?", token), &invite)
}

func (r *repository) FindPendingInvite(ctx context.Context, orgID snowflake.ID, email string) (*domain.OrganizationInvite, error) {
	var invite domain.OrganizationInvite
	query := r.db.WithContext(ctx).
		Where("org_id = ? AND email = ? AND status = ?", orgID, email, domain.InviteStatusPending).
		Order("created_at DESC")
	return first(query, &invite)
}

func (r *repository) ListInvites(ctx context.Context, orgID snowflake.ID, status domain.InviteStatus) ([]domain.OrganizationInvite, error) {
	var invites []domain.OrganizationInvite
	query := r.db.WithContext(ctx).Where("org_id = ?", orgID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("created_at DESC").Find(&invites).Error; err != nil {
		return nil, err
	}
	return invites, nil
}

func (r *repository) UpdateInvite(ctx context.Context, inviteID snowflake.ID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&domain.OrganizationInvite{}).Where("id = ?", inviteID).Updates(fields).Error
}

func (r *repository) ExpireInvites(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.OrganizationInvite{}).
		Where("status = ? AND expires_at < ?", domain.InviteStatusPending, now).
		Updates(map[string]any{"status": domain.InviteStatusExpired, "updated_at": now})
	return tx.RowsAffected, tx.Error
}

func first[T any](query *gorm.DB, dest *T) (*T, error) {
	err := query.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dest, nil
}
