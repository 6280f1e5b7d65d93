package token

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/auth/domain"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, clk clock.Clock) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(config.Config{AuthJWTSecret: "test-secret", AuthTokenTTL: time.Hour}, clk)
	require.NoError(t, err)
	return issuer
}

func TestIssueAndParse(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := newTestIssuer(t, clk)

	orgID := snowflake.ID(42)
	raw, expiresAt, err := issuer.Issue(snowflake.ID(7), &orgID)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), expiresAt)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)

	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(7), userID)

	gotOrg, err := claims.OrgID()
	require.NoError(t, err)
	assert.Equal(t, orgID, gotOrg)
}

func TestIssueWithoutOrganization(t *testing.T) {
	issuer := newTestIssuer(t, clock.NewFakeClock(time.Now().UTC()))

	raw, _, err := issuer.Issue(snowflake.ID(7), nil)
	require.NoError(t, err)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	orgID, err := claims.OrgID()
	require.NoError(t, err)
	assert.Zero(t, orgID)
}

func TestParseExpired(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := newTestIssuer(t, clk)

	raw, _, err := issuer.Issue(snowflake.ID(7), nil)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = issuer.Parse(raw)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	clk := clock.NewFakeClock(time.Now().UTC())
	other, err := NewIssuer(config.Config{AuthJWTSecret: "other-secret"}, clk)
	require.NoError(t, err)

	raw, _, err := other.Issue(snowflake.ID(7), nil)
	require.NoError(t, err)

	_, err = newTestIssuer(t, clk).Parse(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer(config.Config{}, clock.New())
	assert.ErrorIs(t, err, domain.ErrMissingSecret)
}
