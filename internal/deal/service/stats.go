package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/dealflow/internal/deal/domain"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"golang.org/x/sync/errgroup"
)

const recentWindow = 7 * 24 * time.Hour

func (s *Service) Stats(ctx context.Context, tc tenant.Context) (*domain.Stats, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	since := s.clock.Now().Add(-recentWindow)
	var (
		all     domain.Aggregate
		recent  domain.Aggregate
		won     domain.Aggregate
		average decimal.Decimal
		byStage []domain.StageStat
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		all, err = s.repo.Aggregate(gctx, s.db, tc.OrgID, domain.AggregateFilter{})
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.repo.Aggregate(gctx, s.db, tc.OrgID, domain.AggregateFilter{CreatedSince: &since})
		return err
	})
	g.Go(func() (err error) {
		won, err = s.repo.Aggregate(gctx, s.db, tc.OrgID, domain.AggregateFilter{WonStage: true})
		return err
	})
	g.Go(func() (err error) {
		average, err = s.repo.AverageValue(gctx, s.db, tc.OrgID)
		return err
	})
	g.Go(func() (err error) {
		byStage, err = s.repo.StageBreakdown(gctx, s.db, tc.OrgID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if byStage == nil {
		byStage = []domain.StageStat{}
	}
	return &domain.Stats{
		Total:        all.Count,
		RecentDeals:  recent.Count,
		TotalValue:   all.Value,
		WonValue:     won.Value,
		AverageValue: average,
		ByStage:      byStage,
	}, nil
}

// Forecast uses calendar windows in UTC.
func (s *Service) Forecast(ctx context.Context, tc tenant.Context) (*domain.Forecast, error) {
	if tc.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	now := s.clock.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)
	quarterStart := time.Date(now.Year(), ((now.Month()-1)/3)*3+1, 1, 0, 0, 0, 0, time.UTC)
	nextQuarter := quarterStart.AddDate(0, 3, 0)

	var open, month, quarter, wonMonth, lostMonth domain.Aggregate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		open, err = s.repo.Aggregate(gctx, s.db, tc.OrgID, domain.AggregateFilter{OpenOnly: true})
		return err
	})
	g.Go(func() (err error) {
		month, err = s.repo.Aggregate(gctx, s.db, tc.OrgID, domain.AggregateFilter{
			OpenOnly: true, ExpectedFrom: &monthStart, ExpectedBefore: &nextMonth,
		})
		return err
	})
	g.Go(func() (err error) {
		quarter, err = s.repo.Aggregate(gctx, s.db, tc.OrgID, domain.AggregateFilter{
			OpenOnly: true, ExpectedFrom: &quarterStart, ExpectedBefore: &nextQuarter,
		})
		return err
	})
	g.Go(func() (err error) {
		wonMonth, err = s.repo.Aggregate(gctx, s.db, tc.OrgID, domain.AggregateFilter{ClosedSince: &monthStart, WonStage: true})
		return err
	})
	g.Go(func() (err error) {
		lostMonth, err = s.repo.Aggregate(gctx, s.db, tc.OrgID, domain.AggregateFilter{ClosedSince: &monthStart, LostStage: true})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.Forecast{
		OpenDeals:         domain.ForecastBucket{Count: open.Count, Value: open.Value},
		MonthlyForecast:   weightedBucket(month),
		QuarterlyForecast: weightedBucket(quarter),
		WonThisMonth:      domain.ForecastBucket{Count: wonMonth.Count, Value: wonMonth.Value},
		WinRate:           WinRate(wonMonth.Count, lostMonth.Count),
	}, nil
}

func weightedBucket(a domain.Aggregate) domain.ForecastBucket {
	weighted := a.Weighted
	return domain.ForecastBucket{Count: a.Count, Value: a.Value, Weighted: &weighted}
}

// WinRate is round(won / (won + lost) × 100), or 0 without closed deals.
func WinRate(won, lost int64) int {
	closed := won + lost
	if closed == 0 {
		return 0
	}
	return int((won*200 + closed) / (closed * 2))
}
