package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/dealflow/internal/auth/domain"
	"github.com/smallbiznis/dealflow/internal/auth/repository"
	"github.com/smallbiznis/dealflow/internal/auth/token"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/config"
	"github.com/smallbiznis/dealflow/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type memberRow struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID
	UserID    snowflake.ID
	IsActive  bool
	CreatedAt time.Time
}

func (memberRow) TableName() string { return "organization_members" }

type fixture struct {
	svc    authdomain.Service
	db     *gorm.DB
	issuer *token.Issuer
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn := db.NewTest(t, &authdomain.User{}, &memberRow{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Now().UTC())
	issuer, err := token.NewIssuer(config.Config{AuthJWTSecret: "secret", AuthTokenTTL: time.Hour}, clk)
	require.NoError(t, err)

	svc := New(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Repo:   repository.Provide(),
		Issuer: issuer,
	})
	return fixture{svc: svc, db: conn, issuer: issuer}
}

func (f fixture) addMembership(t *testing.T, id, orgID, userID snowflake.ID, active bool) {
	t.Helper()
	require.NoError(t, f.db.Create(&memberRow{ID: id, OrgID: orgID, UserID: userID, IsActive: active, CreatedAt: time.Now().UTC()}).Error)
}

func TestRegisterNormalizesEmailAndHashesPassword(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.Register(context.Background(), authdomain.RegisterRequest{
		Name:     "Alice",
		Email:    "  Alice@Example.com ",
		Password: "correct-password",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "correct-password", user.PasswordHash)
	assert.Contains(t, user.PasswordHash, "$argon2id$")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, authdomain.RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "strong-password"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, authdomain.RegisterRequest{Name: "Bob", Email: "BOB@example.com", Password: "strong-password"})
	assert.ErrorIs(t, err, authdomain.ErrUserExists)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, authdomain.RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "correct-password"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, authdomain.LoginRequest{Email: "nobody@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
}

func TestLoginScopesSingleMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, authdomain.RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "correct-password"})
	require.NoError(t, err)
	f.addMembership(t, 1, 500, user.ID, true)
	f.addMembership(t, 2, 501, user.ID, false)

	result, err := f.svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "correct-password"})
	require.NoError(t, err)
	require.NotNil(t, result.OrganizationID)
	assert.Equal(t, snowflake.ID(500), *result.OrganizationID)

	claims, err := f.issuer.Parse(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "500", claims.OrganizationID)
	assert.Equal(t, user.ID.String(), claims.Subject)
}

func TestLoginWithSeveralMembershipsIsUnscoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, authdomain.RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "correct-password"})
	require.NoError(t, err)
	f.addMembership(t, 1, 500, user.ID, true)
	f.addMembership(t, 2, 501, user.ID, true)

	result, err := f.svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "correct-password"})
	require.NoError(t, err)
	assert.Nil(t, result.OrganizationID)

	result, err = f.svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "correct-password", OrganizationID: "501"})
	require.NoError(t, err)
	require.NotNil(t, result.OrganizationID)
	assert.Equal(t, snowflake.ID(501), *result.OrganizationID)

	_, err = f.svc.Login(ctx, authdomain.LoginRequest{Email: "alice@example.com", Password: "correct-password", OrganizationID: "999"})
	assert.ErrorIs(t, err, authdomain.ErrNotMember)
}

func TestSwitchOrganizationRequiresActiveMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, authdomain.RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "correct-password"})
	require.NoError(t, err)
	f.addMembership(t, 1, 500, user.ID, true)
	f.addMembership(t, 2, 501, user.ID, false)

	result, err := f.svc.SwitchOrganization(ctx, user.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(500), *result.OrganizationID)

	_, err = f.svc.SwitchOrganization(ctx, user.ID, 501)
	assert.ErrorIs(t, err, authdomain.ErrNotMember)
}

func TestDefaultName(t *testing.T) {
	assert.Equal(t, "jane.doe", DefaultName("jane.doe@example.com"))
}
