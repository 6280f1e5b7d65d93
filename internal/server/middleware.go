package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/dealflow/internal/auth/token"
	obscontext "github.com/smallbiznis/dealflow/internal/observability/context"
	"github.com/smallbiznis/dealflow/internal/tenant"
)

const (
	contextUserIDKey = "user_id"
	contextClaimsKey = "auth_claims"
	contextTenantKey = "tenant"
	contextDealIDKey = "deal_id"

	actorTypeUser = "user"
)

// AuthRequired verifies the bearer token. It does not require an organization.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.issuer.Parse(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Set(contextClaimsKey, claims)
		ctx := obscontext.WithActor(c.Request.Context(), actorTypeUser, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// TenantRequired resolves the active membership for the token's organization.
// It must run after AuthRequired.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		claims, ok := claimsFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		orgID, err := claims.OrgID()
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if orgID == 0 {
			AbortWithError(c, ErrForbidden)
			return
		}

		ctx := c.Request.Context()
		member, err := s.organizationSvc.ActiveMember(ctx, orgID, userID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		tc := tenant.Context{
			OrgID:    orgID,
			UserID:   userID,
			MemberID: member.ID,
			Role:     member.Role,
		}
		c.Set(contextTenantKey, tc)
		ctx = tenant.WithContext(ctx, tc)
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func userIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	return id, ok && id != 0
}

func claimsFromContext(c *gin.Context) (*token.Claims, bool) {
	value, ok := c.Get(contextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*token.Claims)
	return claims, ok && claims != nil
}

func tenantFromContext(c *gin.Context) (tenant.Context, bool) {
	value, ok := c.Get(contextTenantKey)
	if !ok {
		return tenant.Context{}, false
	}
	tc, ok := value.(tenant.Context)
	return tc, ok && tc.OrgID != 0
}
