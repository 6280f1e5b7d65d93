package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

var planColumns = []string{
	"id", "name", "max_users", "max_deals", "max_pipelines", "max_contacts", "max_automations",
	"features", "created_at", "updated_at",
}

func TestFindByName(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT plans.* FROM "plans" WHERE name = $1`)).
		WillReturnRows(sqlmock.NewRows(planColumns).
			AddRow(int64(7), "pro", 10, 500, 5, 5000, 25, []byte(`["basic_crm","automation","reports"]`), now, now))

	plan, err := Provide().FindByName(context.Background(), db, "pro")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "pro", plan.Name)
	assert.Equal(t, 500, plan.MaxDeals)
	assert.True(t, plan.HasFeature("reports"))
	assert.False(t, plan.HasFeature("sso"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByNameMissingReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT plans.* FROM "plans" WHERE name = $1`)).
		WillReturnRows(sqlmock.NewRows(planColumns))

	plan, err := Provide().FindByName(context.Background(), db, "gold")
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByOrgIDJoinsOrganizations(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT plans\.\* FROM "plans" JOIN organizations o ON o\.plan_id = plans\.id WHERE o\.id = \$1`).
		WillReturnRows(sqlmock.NewRows(planColumns).
			AddRow(int64(1), "start", 2, 50, 1, 500, 5, []byte(`["basic_crm"]`), now, now))

	plan, err := Provide().FindByOrgID(context.Background(), db, 99)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, 2, plan.MaxUsers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "plans" ORDER BY max_users ASC`)).
		WillReturnRows(sqlmock.NewRows(planColumns).
			AddRow(int64(1), "start", 2, 50, 1, 500, 5, []byte(`[]`), now, now).
			AddRow(int64(2), "enterprise", 999, 9999, 50, 100000, 999, []byte(`[]`), now, now))

	plans, err := Provide().List(context.Background(), db)
	require.NoError(t, err)
	assert.Len(t, plans, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
