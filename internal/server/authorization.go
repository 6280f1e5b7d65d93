package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/dealflow/internal/guard"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
)

// featureReports gates analytics that only paid plans include.
const featureReports = "reports"

// guard runs the predicates in order against the caller's tenant context.
func (s *Server) guard(preds ...guard.Predicate) gin.HandlerFunc {
	chain := guard.Chain(preds...)
	return func(c *gin.Context) {
		tc, ok := tenantFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := chain(c.Request.Context(), tc); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return s.guard(s.requireRole(object, action))
}

func (s *Server) requireRole(object string, action string) guard.Predicate {
	return guard.RequireRole(s.authzSvc, object, action)
}

func (s *Server) requireFeature(feature string) guard.Predicate {
	return guard.RequireFeature(s.limits, feature)
}

func (s *Server) requireQuota(resource limitdomain.Resource) guard.Predicate {
	return guard.RequireQuota(s.limits, resource)
}
