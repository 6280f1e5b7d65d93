package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/product/domain"
	"github.com/smallbiznis/dealflow/internal/product/repository"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type lineItemRow struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	DealID    snowflake.ID
	ProductID snowflake.ID
}

func (lineItemRow) TableName() string { return "deal_products" }

var tc = tenant.Context{OrgID: 5, UserID: 1, MemberID: 2, Role: tenant.RoleAdmin}

func setup(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	conn := db.NewTest(t, &domain.Product{}, &lineItemRow{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, conn
}

func strPtr(v string) *string { return &v }

func TestCreateProduct(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	inactive := false
	p, err := svc.Create(ctx, tc, domain.CreateRequest{
		Name:     "Onboarding",
		SKU:      strPtr("ONB-1"),
		Price:    decimal.RequireFromString("199.999"),
		IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "200", p.Price.String())

	got, err := svc.Get(ctx, tc, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(200)))

	_, err = svc.Create(ctx, tc, domain.CreateRequest{Name: "Copy", SKU: strPtr("ONB-1"), Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrSKUTaken)

	_, err = svc.Create(ctx, tc, domain.CreateRequest{Name: "Negative", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	// Products without a sku never collide.
	_, err = svc.Create(ctx, tc, domain.CreateRequest{Name: "A", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, tc, domain.CreateRequest{Name: "B", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
}

func TestListProductsFiltersAndSorts(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	for _, req := range []domain.CreateRequest{
		{Name: "Consulting", Price: decimal.NewFromInt(300), Category: strPtr("services")},
		{Name: "Audit", Price: decimal.NewFromInt(150), Category: strPtr("services")},
		{Name: "License", Price: decimal.NewFromInt(90), Category: strPtr("software")},
	} {
		_, err := svc.Create(ctx, tc, req)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, tc, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Audit", all[0].Name)

	services, err := svc.List(ctx, tc, domain.ListRequest{Category: "services", SortBy: "price", SortOrder: "desc"})
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "Consulting", services[0].Name)

	found, err := svc.List(ctx, tc, domain.ListRequest{Search: "lic"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	other, err := svc.List(ctx, tenant.Context{OrgID: 6}, domain.ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateProductSKUConflict(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, tc, domain.CreateRequest{Name: "A", SKU: strPtr("A-1"), Price: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, tc, domain.CreateRequest{Name: "B", SKU: strPtr("B-1"), Price: decimal.NewFromInt(1)})
	require.NoError(t, err)

	_, err = svc.Update(ctx, tc, a.ID, domain.UpdateRequest{SKU: strPtr("B-1")})
	assert.ErrorIs(t, err, domain.ErrSKUTaken)

	price := decimal.RequireFromString("12.50")
	updated, err := svc.Update(ctx, tc, a.ID, domain.UpdateRequest{SKU: strPtr("A-1"), Price: &price})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(price))
}

func TestDeleteProductInUse(t *testing.T) {
	svc, conn := setup(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, tc, domain.CreateRequest{Name: "A", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.NoError(t, conn.Create(&lineItemRow{ID: 1, DealID: 9, ProductID: p.ID}).Error)

	assert.ErrorIs(t, svc.Delete(ctx, tc, p.ID), domain.ErrProductInUse)

	require.NoError(t, conn.Delete(&lineItemRow{}, 1).Error)
	require.NoError(t, svc.Delete(ctx, tc, p.ID))
	_, err = svc.Get(ctx, tc, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, tenant.Context{OrgID: 6}, p.ID), domain.ErrNotFound)
}
