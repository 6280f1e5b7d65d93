package seed

import (
	"context"
	"testing"

	"github.com/smallbiznis/dealflow/internal/config"
	plandomain "github.com/smallbiznis/dealflow/internal/plan/domain"
	"github.com/smallbiznis/dealflow/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePlansIsIdempotent(t *testing.T) {
	conn := db.NewTest(t, &plandomain.Plan{})
	ctx := context.Background()
	catalog := config.DefaultPlanCatalog()

	require.NoError(t, EnsurePlans(ctx, conn, catalog))

	var first plandomain.Plan
	require.NoError(t, conn.Where("name = ?", "start").Take(&first).Error)

	catalog.Plans[0].MaxDeals = 75
	require.NoError(t, EnsurePlans(ctx, conn, catalog))

	var count int64
	require.NoError(t, conn.Model(&plandomain.Plan{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	var updated plandomain.Plan
	require.NoError(t, conn.Where("name = ?", "start").Take(&updated).Error)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, 75, updated.MaxDeals)
	assert.Equal(t, []string{"basic_crm"}, []string(updated.Features))
}

func TestEnsurePlansRejectsEmptyCatalog(t *testing.T) {
	conn := db.NewTest(t, &plandomain.Plan{})
	assert.Error(t, EnsurePlans(context.Background(), conn, config.PlanCatalog{}))
}
