package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/customfield/domain"
	"github.com/smallbiznis/dealflow/internal/customfield/repository"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tc = tenant.Context{OrgID: 77, UserID: 1, MemberID: 2, Role: tenant.RoleAdmin}

func setup(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	conn := db.NewTest(t, &domain.CustomField{}, &domain.CustomFieldValue{})
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	return New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	}), conn
}

func TestCreateAssignsPositionsPerEntity(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	budget, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityDeal, Name: "budget", Label: "Budget", Type: domain.TypeNumber})
	require.NoError(t, err)
	assert.Equal(t, 0, budget.Position)

	segment, err := svc.Create(ctx, tc, domain.CreateRequest{
		Entity: domain.EntityDeal, Name: "segment", Label: "Segment", Type: domain.TypeSelect,
		Options: []string{"SMB", " ", "Enterprise"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, segment.Position)
	assert.Equal(t, []string{"SMB", "Enterprise"}, []string(segment.Options))

	// Same name on another entity is allowed.
	lead, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityLead, Name: "budget", Label: "Budget", Type: domain.TypeNumber})
	require.NoError(t, err)
	assert.Equal(t, 0, lead.Position)

	_, err = svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityDeal, Name: "budget", Label: "Again", Type: domain.TypeText})
	assert.ErrorIs(t, err, domain.ErrNameTaken)

	fields, err := svc.List(ctx, tc, domain.EntityDeal)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "budget", fields[0].Name)
}

func TestUpdateRenameCollision(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityLead, Name: "a", Label: "A", Type: domain.TypeText})
	require.NoError(t, err)
	_, err = svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityLead, Name: "b", Label: "B", Type: domain.TypeText})
	require.NoError(t, err)

	taken := "b"
	_, err = svc.Update(ctx, tc, a.ID, domain.UpdateRequest{Name: &taken})
	assert.ErrorIs(t, err, domain.ErrNameTaken)

	required := true
	label := "Field A"
	updated, err := svc.Update(ctx, tc, a.ID, domain.UpdateRequest{Label: &label, IsRequired: &required})
	require.NoError(t, err)
	assert.Equal(t, "Field A", updated.Label)
	assert.True(t, updated.IsRequired)
}

func TestSetValuesIsIdempotent(t *testing.T) {
	svc, conn := setup(t)
	ctx := context.Background()

	field, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityDeal, Name: "budget", Label: "Budget", Type: domain.TypeNumber})
	require.NoError(t, err)

	input := []domain.ValueInput{{CustomFieldID: field.ID, Value: "1000"}}
	_, err = svc.SetValues(ctx, tc, 900, input)
	require.NoError(t, err)
	values, err := svc.SetValues(ctx, tc, 900, input)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "1000", values[0].Value)
	assert.Equal(t, "budget", values[0].Name)

	var count int64
	require.NoError(t, conn.Model(&domain.CustomFieldValue{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	values, err = svc.SetValues(ctx, tc, 900, []domain.ValueInput{{CustomFieldID: field.ID, Value: "2500"}})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "2500", values[0].Value)
}

func TestSetValuesSkipsForeignFields(t *testing.T) {
	svc, conn := setup(t)
	ctx := context.Background()

	other := tenant.Context{OrgID: 78, Role: tenant.RoleAdmin}
	foreign, err := svc.Create(ctx, other, domain.CreateRequest{Entity: domain.EntityDeal, Name: "secret", Label: "Secret", Type: domain.TypeText})
	require.NoError(t, err)
	own, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityDeal, Name: "note", Label: "Note", Type: domain.TypeText})
	require.NoError(t, err)

	values, err := svc.SetValues(ctx, tc, 900, []domain.ValueInput{
		{CustomFieldID: foreign.ID, Value: "x"},
		{CustomFieldID: 12345, Value: "y"},
		{CustomFieldID: own.ID, Value: "z"},
	})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, own.ID, values[0].CustomFieldID)

	var count int64
	require.NoError(t, conn.Model(&domain.CustomFieldValue{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	otherValues, err := svc.GetValues(ctx, other, 900)
	require.NoError(t, err)
	assert.Empty(t, otherValues)
}

func TestReorderAndDeleteCascade(t *testing.T) {
	svc, conn := setup(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityDeal, Name: "a", Label: "A", Type: domain.TypeText})
	require.NoError(t, err)
	b, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityDeal, Name: "b", Label: "B", Type: domain.TypeText})
	require.NoError(t, err)

	fields, err := svc.Reorder(ctx, tc, domain.ReorderRequest{FieldIDs: []snowflake.ID{b.ID, a.ID}})
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, b.ID, fields[0].ID)

	_, err = svc.Reorder(ctx, tc, domain.ReorderRequest{FieldIDs: []snowflake.ID{a.ID, 999}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, err := svc.Get(ctx, tc, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Position)

	_, err = svc.SetValues(ctx, tc, 1, []domain.ValueInput{{CustomFieldID: a.ID, Value: "v"}})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, tc, a.ID))

	var count int64
	require.NoError(t, conn.Model(&domain.CustomFieldValue{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReorderAcrossEntitiesListsEveryField(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	deal, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityDeal, Name: "budget", Label: "Budget", Type: domain.TypeNumber})
	require.NoError(t, err)
	source, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityLead, Name: "source", Label: "Source", Type: domain.TypeText})
	require.NoError(t, err)
	city, err := svc.Create(ctx, tc, domain.CreateRequest{Entity: domain.EntityLead, Name: "city", Label: "City", Type: domain.TypeText})
	require.NoError(t, err)

	fields, err := svc.Reorder(ctx, tc, domain.ReorderRequest{FieldIDs: []snowflake.ID{deal.ID, city.ID, source.ID}})
	require.NoError(t, err)

	ids := make([]snowflake.ID, 0, len(fields))
	for _, f := range fields {
		ids = append(ids, f.ID)
	}
	assert.ElementsMatch(t, []snowflake.ID{deal.ID, source.ID, city.ID}, ids)
}
