package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dealflow/internal/deal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddProductComputesLineTotal(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{Value: decimalPtr2(999)})
	product := f.addProduct(t, testOrgID, "Consulting hour", 100)

	quantity := 3
	discount := decimal.NewFromInt(50)
	change, err := f.svc.AddProduct(ctx, f.owner, deal.ID, domain.AddProductRequest{
		ProductID: product.ID,
		Quantity:  &quantity,
		Discount:  &discount,
	})
	require.NoError(t, err)
	require.NotNil(t, change.Item)
	assertDecimal(t, "100", change.Item.UnitPrice)
	assertDecimal(t, "250", change.Item.Total)
	assertDecimal(t, "250", change.DealValue)

	events, err := f.svc.History(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	payload, ok := events[0].Payload.(domain.ProductAddedPayload)
	require.True(t, ok)
	assert.Equal(t, "Consulting hour", payload.ProductName)
	assert.Equal(t, 3, payload.Quantity)
	assertDecimal(t, "250", payload.Total)

	_, err = f.svc.AddProduct(ctx, f.owner, deal.ID, domain.AddProductRequest{ProductID: product.ID})
	assert.ErrorIs(t, err, domain.ErrProductAlreadyAdded)
}

func TestLineItemChangesRecomputeDealValue(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})
	seat := f.addProduct(t, testOrgID, "Seat", 40)
	setup := f.addProduct(t, testOrgID, "Setup", 500)

	seats, err := f.svc.AddProduct(ctx, f.owner, deal.ID, domain.AddProductRequest{ProductID: seat.ID})
	require.NoError(t, err)
	assertDecimal(t, "40", seats.DealValue)

	price := decimal.RequireFromString("450.50")
	change, err := f.svc.AddProduct(ctx, f.owner, deal.ID, domain.AddProductRequest{ProductID: setup.ID, UnitPrice: &price})
	require.NoError(t, err)
	assertDecimal(t, "490.50", change.DealValue)
	setupItem := change.Item

	quantity := 10
	change, err = f.svc.UpdateProduct(ctx, f.owner, deal.ID, seats.Item.ID, domain.UpdateProductRequest{Quantity: &quantity})
	require.NoError(t, err)
	assertDecimal(t, "400", change.Item.Total)
	assertDecimal(t, "850.50", change.DealValue)

	detail, err := f.svc.Get(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	assertDecimal(t, "850.50", detail.Value)
	require.Len(t, detail.Products, 2)
	require.NotNil(t, detail.Products[0].Product)
	assert.Equal(t, "Seat", detail.Products[0].Product.Name)

	change, err = f.svc.RemoveProduct(ctx, f.owner, deal.ID, seats.Item.ID)
	require.NoError(t, err)
	assertDecimal(t, "450.50", change.DealValue)
	assert.Nil(t, change.Item)

	change, err = f.svc.RemoveProduct(ctx, f.owner, deal.ID, setupItem.ID)
	require.NoError(t, err)
	assertDecimal(t, "0", change.DealValue)
}

func TestUpdateValueIsDerivedWhileLineItemsExist(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})
	product := f.addProduct(t, testOrgID, "Consulting hour", 100)

	quantity := 3
	discount := decimal.NewFromInt(50)
	change, err := f.svc.AddProduct(ctx, f.owner, deal.ID, domain.AddProductRequest{
		ProductID: product.ID,
		Quantity:  &quantity,
		Discount:  &discount,
	})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.owner, deal.ID, domain.UpdateRequest{Value: decimalPtr2(9999)})
	assert.ErrorIs(t, err, domain.ErrValueFromLineItems)

	detail, err := f.svc.Get(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	assertDecimal(t, "250", detail.Value)

	_, err = f.svc.RemoveProduct(ctx, f.owner, deal.ID, change.Item.ID)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, f.owner, deal.ID, domain.UpdateRequest{Value: decimalPtr2(9999)})
	require.NoError(t, err)
	assertDecimal(t, "9999", updated.Value)
}

func TestLineItemErrors(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})
	other := f.createDeal(t, domain.CreateRequest{})
	product := f.addProduct(t, testOrgID, "Seat", 40)
	foreign := f.addProduct(t, otherOrgID, "Theirs", 40)

	_, err := f.svc.AddProduct(ctx, f.owner, deal.ID, domain.AddProductRequest{ProductID: foreign.ID})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = f.svc.AddProduct(ctx, f.owner, 999, domain.AddProductRequest{ProductID: product.ID})
	assert.ErrorIs(t, err, domain.ErrDealNotFound)

	discount := decimal.NewFromInt(100)
	_, err = f.svc.AddProduct(ctx, f.owner, deal.ID, domain.AddProductRequest{ProductID: product.ID, Discount: &discount})
	assert.ErrorIs(t, err, domain.ErrInvalidLineAmount)

	zero := 0
	_, err = f.svc.AddProduct(ctx, f.owner, deal.ID, domain.AddProductRequest{ProductID: product.ID, Quantity: &zero})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	change, err := f.svc.AddProduct(ctx, f.owner, other.ID, domain.AddProductRequest{ProductID: product.ID})
	require.NoError(t, err)

	_, err = f.svc.UpdateProduct(ctx, f.owner, deal.ID, change.Item.ID, domain.UpdateProductRequest{})
	assert.ErrorIs(t, err, domain.ErrLineItemNotFound)
	_, err = f.svc.RemoveProduct(ctx, f.owner, deal.ID, change.Item.ID)
	assert.ErrorIs(t, err, domain.ErrLineItemNotFound)
}

func TestLineTotal(t *testing.T) {
	total, err := lineTotal(2, decimal.RequireFromString("19.99"), decimal.RequireFromString("0.98"))
	require.NoError(t, err)
	assertDecimal(t, "39", total)

	_, err = lineTotal(1, decimal.NewFromInt(-1), decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidLineAmount)
}
