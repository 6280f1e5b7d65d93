package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/config"
	obscontext "github.com/smallbiznis/dealflow/internal/observability/context"
	obslogger "github.com/smallbiznis/dealflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/dealflow/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	"github.com/smallbiznis/dealflow/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobInviteExpirySweep = "invite_expiry_sweep"

	jobTimeout     = 30 * time.Second
	jobLockPrefix  = "dealflow:job:"
	defaultLockTTL = time.Minute
)

// InviteExpirer marks pending invites past their expiry as EXPIRED.
type InviteExpirer interface {
	ExpireInvites(ctx context.Context) (int64, error)
}

type Params struct {
	fx.In

	Config        config.Config
	Log           *zap.Logger
	Clock         clock.Clock
	Organizations orgdomain.Service
	Redis         *redis.Client          `optional:"true"`
	Jobs          *obsmetrics.JobMetrics `optional:"true"`
}

// Scheduler runs the periodic maintenance jobs on a cron. When a Redis client is
// configured each run takes a lock first, so only one instance does the work.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	clock   clock.Clock
	invites InviteExpirer
	locker  *ratelimit.Locker
	jobs    *obsmetrics.JobMetrics
	lockTTL time.Duration
}

func New(p Params) (*Scheduler, error) {
	jobs := p.Jobs
	if jobs == nil {
		jobs = obsmetrics.JobsWithConfig(obsmetrics.Config{
			ServiceName: p.Config.AppName,
			Environment: p.Config.Environment,
		})
	}
	s := newScheduler(p.Log, p.Clock, p.Organizations, ratelimit.NewLocker(p.Redis), jobs,
		time.Duration(p.Config.Scheduler.InviteSweepLockMS)*time.Millisecond)

	if _, err := s.cron.AddFunc(p.Config.Scheduler.InviteSweepSpec, func() {
		if err := s.SweepInvites(context.Background()); err != nil {
			s.log.Warn("invite sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule %s %q: %w", JobInviteExpirySweep, p.Config.Scheduler.InviteSweepSpec, err)
	}
	return s, nil
}

func newScheduler(
	log *zap.Logger,
	clk clock.Clock,
	invites InviteExpirer,
	locker *ratelimit.Locker,
	jobs *obsmetrics.JobMetrics,
	lockTTL time.Duration,
) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	log = log.Named("scheduler")
	cronLog := cronLogger{log: log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		log:     log,
		clock:   clk,
		invites: invites,
		locker:  locker,
		jobs:    jobs,
		lockTTL: lockTTL,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepInvites expires every pending invite whose expiry has passed.
func (s *Scheduler) SweepInvites(ctx context.Context) error {
	return s.runJob(ctx, JobInviteExpirySweep, s.invites.ExpireInvites)
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(context.Context) (int64, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	log := obslogger.WithContext(ctx, s.log).With(zap.String("job", name))

	if s.locker != nil {
		key := jobLockPrefix + name
		token, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
		if err != nil {
			s.jobs.IncError(name, err)
			return fmt.Errorf("%s: lock: %w", name, err)
		}
		if !ok {
			s.jobs.IncSkipped(name, obsmetrics.JobSkipReasonLockHeld)
			log.Debug("job skipped, lock held elsewhere")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn("failed to release job lock", zap.Error(err))
			}
		}()
	}

	s.jobs.IncRun(name)
	count, err := fn(ctx)
	s.jobs.ObserveDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		s.jobs.IncError(name, err)
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("job timed out", zap.Duration("timeout", jobTimeout), zap.Error(err))
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	s.jobs.AddProcessed(name, count)
	if count > 0 {
		log.Info("job finished", zap.Int64("processed", count))
	}
	return nil
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
