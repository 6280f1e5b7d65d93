package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/lead/domain"
	"github.com/smallbiznis/dealflow/internal/lead/repository"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	"github.com/smallbiznis/dealflow/internal/limit/mocks"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	orgrepository "github.com/smallbiznis/dealflow/internal/organization/repository"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db"
	"github.com/smallbiznis/dealflow/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type dealRow struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	OrgID  snowflake.ID
	LeadID snowflake.ID
}

func (dealRow) TableName() string { return "deals" }

var tc = tenant.Context{OrgID: 10, UserID: 1, MemberID: 11, Role: tenant.RoleManager}

type fixture struct {
	svc    domain.Service
	db     *gorm.DB
	clk    *clock.FakeClock
	limits *mocks.MockEnforcer
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn := db.NewTest(t, &domain.Lead{}, &orgdomain.OrganizationMember{}, &dealRow{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, conn.Create(&[]orgdomain.OrganizationMember{
		{ID: 11, OrgID: 10, UserID: 1, Role: tenant.RoleManager, IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: 12, OrgID: 10, UserID: 2, Role: tenant.RoleMember, IsActive: false, CreatedAt: now, UpdatedAt: now},
		{ID: 13, OrgID: 20, UserID: 3, Role: tenant.RoleOwner, IsActive: true, CreatedAt: now, UpdatedAt: now},
	}).Error)

	ctrl := gomock.NewController(t)
	limits := mocks.NewMockEnforcer(ctrl)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    repository.Provide(),
		Limits:  limits,
		Members: orgrepository.NewRepository(conn),
	})
	return fixture{svc: svc, db: conn, clk: clk, limits: limits}
}

func (f fixture) allowContacts(times int) {
	f.limits.EXPECT().CheckLimit(gomock.Any(), tc.OrgID, limitdomain.ResourceContacts).Return(nil).Times(times)
}

func strPtr(v string) *string { return &v }

func idPtr(v snowflake.ID) *snowflake.ID { return &v }

func TestCreateLeadDefaults(t *testing.T) {
	f := newFixture(t)
	f.allowContacts(1)

	lead, err := f.svc.Create(context.Background(), tc, domain.CreateLeadRequest{
		Name:         " Maria Silva ",
		Phone:        "+5511999990000",
		Email:        strPtr("Maria@Example.com"),
		AssignedToID: idPtr(11),
	})
	require.NoError(t, err)
	assert.Equal(t, "Maria Silva", lead.Name)
	assert.Equal(t, domain.StatusNew, lead.Status)
	assert.Equal(t, domain.TemperatureCold, lead.Temperature)
	assert.Equal(t, "maria@example.com", *lead.Email)
}

func TestCreateLeadConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.allowContacts(3)

	_, err := f.svc.Create(ctx, tc, domain.CreateLeadRequest{Name: "Ana", Phone: "11988887777", Email: strPtr("ana@example.com")})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, tc, domain.CreateLeadRequest{Name: "Ana B", Phone: "11988887777"})
	assert.ErrorIs(t, err, domain.ErrPhoneTaken)

	_, err = f.svc.Create(ctx, tc, domain.CreateLeadRequest{Name: "Ana C", Phone: "11900000000", Email: strPtr("ANA@example.com")})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	// Another organization may reuse the phone.
	other := tenant.Context{OrgID: 20, MemberID: 13, Role: tenant.RoleOwner}
	f.limits.EXPECT().CheckLimit(gomock.Any(), other.OrgID, limitdomain.ResourceContacts).Return(nil)
	_, err = f.svc.Create(ctx, other, domain.CreateLeadRequest{Name: "Ana", Phone: "11988887777"})
	assert.NoError(t, err)
}

func TestCreateLeadRespectsContactLimit(t *testing.T) {
	f := newFixture(t)
	f.limits.EXPECT().
		CheckLimit(gomock.Any(), tc.OrgID, limitdomain.ResourceContacts).
		Return(&limitdomain.ExceededError{Resource: limitdomain.ResourceContacts, Limit: 500, Usage: 500})

	_, err := f.svc.Create(context.Background(), tc, domain.CreateLeadRequest{Name: "Ana", Phone: "11988887777"})
	assert.ErrorIs(t, err, limitdomain.ErrLimitExceeded)
}

func TestAssignRequiresActiveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.allowContacts(1)

	lead, err := f.svc.Create(ctx, tc, domain.CreateLeadRequest{Name: "Ana", Phone: "11988887777"})
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, tc, lead.ID, domain.AssignLeadRequest{AssignedToID: idPtr(12)})
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	_, err = f.svc.Assign(ctx, tc, lead.ID, domain.AssignLeadRequest{AssignedToID: idPtr(13)})
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)

	assigned, err := f.svc.Assign(ctx, tc, lead.ID, domain.AssignLeadRequest{AssignedToID: idPtr(11)})
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedToID)
	assert.Equal(t, snowflake.ID(11), *assigned.AssignedToID)

	cleared, err := f.svc.Assign(ctx, tc, lead.ID, domain.AssignLeadRequest{})
	require.NoError(t, err)
	assert.Nil(t, cleared.AssignedToID)
}

func TestUpdateLeadKeepsOwnPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.allowContacts(2)

	a, err := f.svc.Create(ctx, tc, domain.CreateLeadRequest{Name: "Ana", Phone: "11988887777"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, tc, domain.CreateLeadRequest{Name: "Bia", Phone: "11911112222"})
	require.NoError(t, err)

	hot := domain.TemperatureHot
	updated, err := f.svc.Update(ctx, tc, a.ID, domain.UpdateLeadRequest{Phone: strPtr("11988887777"), Temperature: &hot})
	require.NoError(t, err)
	assert.Equal(t, domain.TemperatureHot, updated.Temperature)

	_, err = f.svc.Update(ctx, tc, a.ID, domain.UpdateLeadRequest{Phone: strPtr("11911112222")})
	assert.ErrorIs(t, err, domain.ErrPhoneTaken)
}

func TestListLeadsPaginatesAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.allowContacts(5)

	for i, name := range []string{"Ana", "Bruno", "Carla", "Diego", "Elisa"} {
		_, err := f.svc.Create(ctx, tc, domain.CreateLeadRequest{Name: name, Phone: "1190000000" + string(rune('0'+i))})
		require.NoError(t, err)
		f.clk.Advance(time.Minute)
	}

	first, err := f.svc.List(ctx, tc, domain.ListLeadRequest{Pagination: pagination.Pagination{PageSize: 3}})
	require.NoError(t, err)
	require.Len(t, first.Leads, 3)
	assert.True(t, first.HasMore)
	assert.Equal(t, "Elisa", first.Leads[0].Name)

	second, err := f.svc.List(ctx, tc, domain.ListLeadRequest{Pagination: pagination.Pagination{PageSize: 3, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Leads, 2)
	assert.False(t, second.HasMore)
	assert.Equal(t, "Ana", second.Leads[1].Name)

	found, err := f.svc.List(ctx, tc, domain.ListLeadRequest{Search: "carl"})
	require.NoError(t, err)
	require.Len(t, found.Leads, 1)
	assert.Equal(t, "Carla", found.Leads[0].Name)
}

func TestDeleteLeadBlockedByDeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.allowContacts(1)

	lead, err := f.svc.Create(ctx, tc, domain.CreateLeadRequest{Name: "Ana", Phone: "11988887777"})
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&dealRow{ID: 1, OrgID: tc.OrgID, LeadID: lead.ID}).Error)

	assert.ErrorIs(t, f.svc.Delete(ctx, tc, lead.ID), domain.ErrLeadHasDeals)

	require.NoError(t, f.db.Delete(&dealRow{}, 1).Error)
	require.NoError(t, f.svc.Delete(ctx, tc, lead.ID))
	_, err = f.svc.Get(ctx, tc, lead.ID)
	assert.ErrorIs(t, err, domain.ErrLeadNotFound)
}
