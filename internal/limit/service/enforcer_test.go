package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/dealflow/internal/limit/domain"
	"github.com/smallbiznis/dealflow/internal/limit/mocks"
	"github.com/smallbiznis/dealflow/internal/limit/repository"
	plandomain "github.com/smallbiznis/dealflow/internal/plan/domain"
	planrepository "github.com/smallbiznis/dealflow/internal/plan/repository"
	"github.com/smallbiznis/dealflow/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type orgRow struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	Name   string
	Slug   string
	PlanID snowflake.ID
}

func (orgRow) TableName() string { return "organizations" }

type memberRow struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	OrgID    snowflake.ID
	UserID   snowflake.ID
	IsActive bool
}

func (memberRow) TableName() string { return "organization_members" }

type dealRow struct {
	ID    snowflake.ID `gorm:"primaryKey"`
	OrgID snowflake.ID
}

func (dealRow) TableName() string { return "deals" }

const testOrgID = snowflake.ID(100)

func setupPlanDB(t *testing.T, plan plandomain.Plan) *gorm.DB {
	t.Helper()
	conn := db.NewTest(t, &plandomain.Plan{}, &orgRow{}, &memberRow{}, &dealRow{})
	now := time.Now().UTC()
	plan.ID = 1
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if plan.Features == nil {
		plan.Features = datatypes.NewJSONSlice([]string{"basic_crm"})
	}
	require.NoError(t, conn.Create(&plan).Error)
	require.NoError(t, conn.Create(&orgRow{ID: testOrgID, Name: "Acme", Slug: "acme", PlanID: 1}).Error)
	return conn
}

func newEnforcer(conn *gorm.DB, counter domain.UsageCounter) domain.Enforcer {
	return New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Plans:   planrepository.Provide(),
		Counter: counter,
	})
}

func TestCheckLimitBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		quota   int
		usage   int64
		wantErr bool
	}{
		{name: "usage equals quota", quota: 5, usage: 5, wantErr: true},
		{name: "usage one below quota", quota: 5, usage: 4, wantErr: false},
		{name: "usage above quota", quota: 5, usage: 9, wantErr: true},
		{name: "zero quota", quota: 0, usage: 0, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			counter := mocks.NewMockUsageCounter(ctrl)
			conn := setupPlanDB(t, plandomain.Plan{Name: "start", MaxDeals: tc.quota})

			counter.EXPECT().
				Count(gomock.Any(), gomock.Any(), testOrgID, domain.ResourceDeals).
				Return(tc.usage, nil)

			err := newEnforcer(conn, counter).CheckLimit(context.Background(), testOrgID, domain.ResourceDeals)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrLimitExceeded)
			var exceeded *domain.ExceededError
			require.True(t, errors.As(err, &exceeded))
			assert.Equal(t, domain.ResourceDeals, exceeded.Resource)
			assert.Equal(t, tc.quota, exceeded.Limit)
			assert.Equal(t, tc.usage, exceeded.Usage)
		})
	}
}

func TestCheckLimitUnlimitedSkipsCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	counter := mocks.NewMockUsageCounter(ctrl)
	conn := setupPlanDB(t, plandomain.Plan{Name: "enterprise", MaxPipelines: plandomain.Unlimited})

	counter.EXPECT().Count(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err := newEnforcer(conn, counter).CheckLimit(context.Background(), testOrgID, domain.ResourcePipelines)
	assert.NoError(t, err)
}

func TestCheckLimitUnknownOrganization(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := setupPlanDB(t, plandomain.Plan{Name: "start", MaxDeals: 1})

	err := newEnforcer(conn, mocks.NewMockUsageCounter(ctrl)).CheckLimit(context.Background(), 999, domain.ResourceDeals)
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	err = newEnforcer(conn, mocks.NewMockUsageCounter(ctrl)).CheckLimit(context.Background(), testOrgID, "widgets")
	assert.ErrorIs(t, err, domain.ErrUnknownResource)
}

func TestCheckLimitCountsLiveRows(t *testing.T) {
	conn := setupPlanDB(t, plandomain.Plan{Name: "start", MaxUsers: 2, MaxDeals: 1})
	enforcer := newEnforcer(conn, repository.Provide())
	ctx := context.Background()

	require.NoError(t, enforcer.CheckLimit(ctx, testOrgID, domain.ResourceDeals))
	require.NoError(t, conn.Create(&dealRow{ID: 1, OrgID: testOrgID}).Error)
	assert.ErrorIs(t, enforcer.CheckLimit(ctx, testOrgID, domain.ResourceDeals), domain.ErrLimitExceeded)

	require.NoError(t, conn.Create(&memberRow{ID: 1, OrgID: testOrgID, UserID: 1, IsActive: true}).Error)
	require.NoError(t, conn.Create(&memberRow{ID: 2, OrgID: testOrgID, UserID: 2, IsActive: false}).Error)
	assert.NoError(t, enforcer.CheckLimit(ctx, testOrgID, domain.ResourceUsers))

	require.NoError(t, conn.Model(&memberRow{}).Where("id = ?", 2).Update("is_active", true).Error)
	assert.ErrorIs(t, enforcer.CheckLimit(ctx, testOrgID, domain.ResourceUsers), domain.ErrLimitExceeded)
}

func TestUsageReportsPercentages(t *testing.T) {
	ctrl := gomock.NewController(t)
	counter := mocks.NewMockUsageCounter(ctrl)
	conn := setupPlanDB(t, plandomain.Plan{
		Name: "start", MaxUsers: 2, MaxDeals: 50, MaxPipelines: 1, MaxContacts: 500, MaxAutomations: plandomain.Unlimited,
	})

	counts := map[domain.Resource]int64{
		domain.ResourceUsers:       1,
		domain.ResourceDeals:       60,
		domain.ResourcePipelines:   1,
		domain.ResourceContacts:    3,
		domain.ResourceAutomations: 7,
	}
	for resource, count := range counts {
		counter.EXPECT().Count(gomock.Any(), gomock.Any(), testOrgID, resource).Return(count, nil)
	}

	usage, err := newEnforcer(conn, counter).Usage(context.Background(), testOrgID)
	require.NoError(t, err)
	assert.Equal(t, "start", usage.Plan)
	require.Len(t, usage.Resources, 5)

	byResource := map[domain.Resource]domain.ResourceUsage{}
	for _, r := range usage.Resources {
		byResource[r.Resource] = r
	}
	assert.Equal(t, 50, byResource[domain.ResourceUsers].Percentage)
	assert.Equal(t, 100, byResource[domain.ResourceDeals].Percentage)
	assert.Equal(t, 100, byResource[domain.ResourcePipelines].Percentage)
	assert.Equal(t, 1, byResource[domain.ResourceContacts].Percentage)
	assert.Equal(t, 0, byResource[domain.ResourceAutomations].Percentage)
}
