package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/dealflow/internal/observability/logger"
	"github.com/smallbiznis/dealflow/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonOrgWrite      = "org-write"
	rateLimitReasonDealLineItems = ratelimit.EndpointDealLineItems
)

// WriteRateLimit throttles mutating requests per organization. Reads pass through.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		tc, ok := tenantFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.AllowWrite(ctx, tc.OrgID)
		if err != nil {
			logger.FromContext(ctx).Warn("write rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			denyRateLimit(c, rateLimitReasonOrgWrite, res)
			return
		}
		c.Next()
	}
}

// DealLock serializes line-item mutations on the deal named by the :id param.
func (s *Server) DealLock() gin.HandlerFunc {
	return func(c *gin.Context) {
		dealID, err := parseIDParam(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextDealIDKey, dealID.String())
		if s.limiter == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		release, err := s.limiter.LockDeal(ctx, dealID)
		if errors.Is(err, ratelimit.ErrLockBusy) {
			denyRateLimit(c, rateLimitReasonDealLineItems, nil)
			return
		}
		if err != nil {
			logger.FromContext(ctx).Warn("deal lock failed", zap.String("deal_id", dealID.String()), zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		defer release()
		c.Next()
	}
}

func denyRateLimit(c *gin.Context, reason string, res *ratelimit.Result) {
	logger.FromContext(c.Request.Context()).Warn("rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", normalizeRateLimitEndpoint(c)),
	)

	retryAfter := 1
	if res != nil && res.RetryAfter > 0 {
		retryAfter = int(math.Ceil(res.RetryAfter.Seconds()))
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
