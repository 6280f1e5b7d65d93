package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/dealflow/internal/deal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedForecastDeals(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	f.clock.Set(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	f.createDeal(t, domain.CreateRequest{Title: stringPtr("Old"), Value: decimalPtr2(100)})
	f.clock.Set(now)

	may20 := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	june10 := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	fifty, twenty := 50, 20
	f.createDeal(t, domain.CreateRequest{Title: stringPtr("May"), Value: decimalPtr2(1000), ExpectedCloseDate: &may20, Probability: &fifty})
	f.createDeal(t, domain.CreateRequest{Title: stringPtr("June"), Value: decimalPtr2(500), ExpectedCloseDate: &june10, Probability: &twenty})

	won := f.createDeal(t, domain.CreateRequest{Title: stringPtr("Won"), Value: decimalPtr2(300)})
	_, err := f.svc.Move(ctx, f.owner, won.ID, domain.MoveRequest{StageID: f.stage(3).ID})
	require.NoError(t, err)
	lost := f.createDeal(t, domain.CreateRequest{Title: stringPtr("Lost"), Value: decimalPtr2(200)})
	_, err = f.svc.Move(ctx, f.owner, lost.ID, domain.MoveRequest{StageID: f.stage(4).ID})
	require.NoError(t, err)
}

func TestStats(t *testing.T) {
	f := newFixture(t, 50)
	seedForecastDeals(t, f)

	stats, err := f.svc.Stats(context.Background(), f.owner)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(4), stats.RecentDeals)
	assertDecimal(t, "2100", stats.TotalValue)
	assertDecimal(t, "300", stats.WonValue)
	assertDecimal(t, "420", stats.AverageValue)

	require.Len(t, stats.ByStage, 3)
	assert.Equal(t, "Qualification", stats.ByStage[0].StageName)
	assert.Equal(t, int64(3), stats.ByStage[0].Count)
	assertDecimal(t, "1600", stats.ByStage[0].Value)
	assert.Equal(t, "Won", stats.ByStage[1].StageName)
	assert.Equal(t, "Lost", stats.ByStage[2].StageName)
}

func TestStatsForEmptyOrganization(t *testing.T) {
	f := newFixture(t, 50)

	stats, err := f.svc.Stats(context.Background(), f.owner)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assertDecimal(t, "0", stats.AverageValue)
	assert.Empty(t, stats.ByStage)
	assert.NotNil(t, stats.ByStage)
}

func TestForecast(t *testing.T) {
	f := newFixture(t, 50)
	seedForecastDeals(t, f)

	forecast, err := f.svc.Forecast(context.Background(), f.owner)
	require.NoError(t, err)

	assert.Equal(t, int64(3), forecast.OpenDeals.Count)
	assertDecimal(t, "1600", forecast.OpenDeals.Value)
	assert.Nil(t, forecast.OpenDeals.Weighted)

	assert.Equal(t, int64(1), forecast.MonthlyForecast.Count)
	assertDecimal(t, "1000", forecast.MonthlyForecast.Value)
	require.NotNil(t, forecast.MonthlyForecast.Weighted)
	assertDecimal(t, "500", *forecast.MonthlyForecast.Weighted)

	assert.Equal(t, int64(2), forecast.QuarterlyForecast.Count)
	assertDecimal(t, "1500", forecast.QuarterlyForecast.Value)
	assertDecimal(t, "600", *forecast.QuarterlyForecast.Weighted)

	assert.Equal(t, int64(1), forecast.WonThisMonth.Count)
	assertDecimal(t, "300", forecast.WonThisMonth.Value)
	assert.Equal(t, 50, forecast.WinRate)
}

func TestWinRate(t *testing.T) {
	cases := []struct {
		won, lost int64
		want      int
	}{
		{0, 0, 0},
		{1, 0, 100},
		{0, 4, 0},
		{1, 2, 33},
		{2, 1, 67},
		{1, 7, 13},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, WinRate(tc.won, tc.lost), "won=%d lost=%d", tc.won, tc.lost)
	}
}
