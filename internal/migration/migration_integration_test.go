//go:build integration

package migration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/smallbiznis/dealflow/internal/config"
	"github.com/smallbiznis/dealflow/internal/seed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dealflow"),
		postgres.WithUsername("dealflow"),
		postgres.WithPassword("dealflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	db := startPostgres(t)

	require.NoError(t, RunMigrations(db))
	require.NoError(t, RunMigrations(db))

	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	for _, table := range []string{"plans", "organizations", "pipelines", "stages", "deals", "deal_events", "custom_field_values", "outbox_events"} {
		var exists bool
		require.NoError(t, db.QueryRow(`SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&exists))
		assert.True(t, exists, table)
	}
}

func TestSchemaEnforcesSingleWonStage(t *testing.T) {
	db := startPostgres(t)
	require.NoError(t, RunMigrations(db))

	conn, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, seed.EnsurePlans(context.Background(), conn, config.DefaultPlanCatalog()))

	now := time.Now().UTC()
	stmts := []string{
		`INSERT INTO organizations (id, name, slug, plan_id, created_at, updated_at) SELECT 1, 'Acme', 'acme', id, $1, $1 FROM plans WHERE name = 'start'`,
		`INSERT INTO pipelines (id, org_id, name, created_at, updated_at) VALUES (10, 1, 'Sales', $1, $1)`,
		`INSERT INTO stages (id, pipeline_id, name, is_won, created_at, updated_at) VALUES (100, 10, 'Won', TRUE, $1, $1)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt, now)
		require.NoError(t, err)
	}

	_, err = db.Exec(`INSERT INTO stages (id, pipeline_id, name, is_won, created_at, updated_at) VALUES (101, 10, 'Won again', TRUE, $1, $1)`, now)
	assert.Error(t, err)
}
