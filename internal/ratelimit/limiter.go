package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/dealflow/internal/config"
	"github.com/smallbiznis/dealflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	keyWriteOrg  = "dealflow:write:org:%s"
	keyDealItems = "dealflow:lock:deal-line-items:%s"

	EndpointWrite         = "write"
	EndpointDealLineItems = "deal-line-items"
)

// Limiter throttles mutating requests per organization and serializes line-item
// mutations per deal.
type Limiter interface {
	AllowWrite(ctx context.Context, orgID snowflake.ID) (*Result, error)

	// LockDeal returns ErrLockBusy when another request holds the deal. The returned
	// release is safe to call more than once.
	LockDeal(ctx context.Context, dealID snowflake.ID) (release func(), err error)
}

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Client  *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

// New returns the Redis limiter when rate limiting is enabled and a client is
// available, and the in-process limiter otherwise.
func New(p Params) Limiter {
	cfg := p.Config.RateLimit
	log := p.Log.Named("ratelimit")
	if cfg.Enabled && p.Client != nil {
		lockTTL := time.Duration(cfg.DealLockTTLSeconds) * time.Second
		if lockTTL <= 0 {
			lockTTL = 5 * time.Second
		}
		return &redisLimiter{
			bucket:  NewTokenBucket(p.Client),
			locker:  NewLocker(p.Client),
			rate:    cfg.WriteOrgRate,
			burst:   cfg.WriteOrgBurst,
			lockTTL: lockTTL,
			log:     log,
			metrics: p.Metrics,
		}
	}
	return NewLocal(cfg.WriteOrgRate, cfg.WriteOrgBurst, p.Metrics)
}

// NewRedisClient returns nil when rate limiting is disabled.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) (*redis.Client, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.WriteOrgRate <= 0 || limitCfg.WriteOrgBurst <= 0 {
		return nil, errors.New("write rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping rate limit redis: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

type redisLimiter struct {
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

func (l *redisLimiter) AllowWrite(ctx context.Context, orgID snowflake.ID) (*Result, error) {
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWriteOrg, orgID.String()), l.rate, l.burst)
	if err != nil {
		return nil, err
	}
	record(ctx, l.metrics, orgID, EndpointWrite, res.Allowed, "bucket")
	return res, nil
}

func (l *redisLimiter) LockDeal(ctx context.Context, dealID snowflake.ID) (func(), error) {
	key := fmt.Sprintf(keyDealItems, dealID.String())
	token, ok, err := l.locker.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.metrics.RecordRateLimitDenied(ctx, "", EndpointDealLineItems, "lock_busy")
		return nil, ErrLockBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := l.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				l.log.Warn("failed to release deal lock", zap.String("deal_id", dealID.String()), zap.Error(err))
			}
		})
	}, nil
}

// LocalLimiter keeps one x/time/rate limiter per organization in memory. It takes no
// deal locks; the row lock inside the line-item transaction still applies.
type LocalLimiter struct {
	rate    rate.Limit
	burst   int
	metrics *metrics.Metrics

	mu       sync.Mutex
	limiters map[snowflake.ID]*rate.Limiter
}

func NewLocal(perSecond float64, burst int, m *metrics.Metrics) *LocalLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &LocalLimiter{
		rate:     limit,
		burst:    burst,
		metrics:  m,
		limiters: make(map[snowflake.ID]*rate.Limiter),
	}
}

func (l *LocalLimiter) AllowWrite(ctx context.Context, orgID snowflake.ID) (*Result, error) {
	limiter := l.limiterFor(orgID)
	now := time.Now()
	reservation := limiter.ReserveN(now, 1)
	allowed := reservation.OK() && reservation.DelayFrom(now) == 0
	var retryAfter time.Duration
	if !allowed {
		if reservation.OK() {
			retryAfter = reservation.DelayFrom(now)
		}
		reservation.CancelAt(now)
	}

	record(ctx, l.metrics, orgID, EndpointWrite, allowed, "local")
	return &Result{
		Allowed:    allowed,
		Limit:      l.burst,
		Remaining:  int(limiter.TokensAt(now)),
		ResetTime:  now.Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}

func (l *LocalLimiter) LockDeal(context.Context, snowflake.ID) (func(), error) {
	return func() {}, nil
}

func (l *LocalLimiter) limiterFor(orgID snowflake.ID) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[orgID]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[orgID] = limiter
	}
	return limiter
}

func record(ctx context.Context, m *metrics.Metrics, orgID snowflake.ID, endpoint string, allowed bool, reason string) {
	if allowed {
		m.RecordRateLimitAllowed(ctx, orgID.String(), endpoint)
		return
	}
	m.RecordRateLimitDenied(ctx, orgID.String(), endpoint, reason)
}
