package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/dealflow/internal/audit"
	auditdomain "github.com/smallbiznis/dealflow/internal/audit/domain"
	"github.com/smallbiznis/dealflow/internal/auth"
	authdomain "github.com/smallbiznis/dealflow/internal/auth/domain"
	"github.com/smallbiznis/dealflow/internal/auth/token"
	"github.com/smallbiznis/dealflow/internal/authorization"
	"github.com/smallbiznis/dealflow/internal/config"
	"github.com/smallbiznis/dealflow/internal/customfield"
	customfielddomain "github.com/smallbiznis/dealflow/internal/customfield/domain"
	"github.com/smallbiznis/dealflow/internal/deal"
	dealdomain "github.com/smallbiznis/dealflow/internal/deal/domain"
	"github.com/smallbiznis/dealflow/internal/lead"
	leaddomain "github.com/smallbiznis/dealflow/internal/lead/domain"
	"github.com/smallbiznis/dealflow/internal/limit"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	"github.com/smallbiznis/dealflow/internal/lostreason"
	lostreasondomain "github.com/smallbiznis/dealflow/internal/lostreason/domain"
	"github.com/smallbiznis/dealflow/internal/observability"
	obsmiddleware "github.com/smallbiznis/dealflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/dealflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/dealflow/internal/observability/tracing"
	"github.com/smallbiznis/dealflow/internal/organization"
	organizationdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	"github.com/smallbiznis/dealflow/internal/outbox"
	"github.com/smallbiznis/dealflow/internal/pipeline"
	pipelinedomain "github.com/smallbiznis/dealflow/internal/pipeline/domain"
	"github.com/smallbiznis/dealflow/internal/plan"
	"github.com/smallbiznis/dealflow/internal/product"
	productdomain "github.com/smallbiznis/dealflow/internal/product/domain"
	"github.com/smallbiznis/dealflow/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	outbox.Module,
	auth.Module,
	plan.Module,
	limit.Module,
	organization.Module,
	pipeline.Module,
	lead.Module,
	product.Module,
	lostreason.Module,
	customfield.Module,
	deal.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	authsvc         authdomain.Service
	issuer          *token.Issuer
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	organizationSvc organizationdomain.Service
	limits          limitdomain.Enforcer
	pipelineSvc     pipelinedomain.Service
	dealSvc         dealdomain.Service
	leadSvc         leaddomain.Service
	productSvc      productdomain.Service
	lostReasonSvc   lostreasondomain.Service
	customFieldSvc  customfielddomain.Service
	limiter         ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	Authsvc         authdomain.Service
	Issuer          *token.Issuer
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc organizationdomain.Service
	Limits          limitdomain.Enforcer
	PipelineSvc     pipelinedomain.Service
	DealSvc         dealdomain.Service
	LeadSvc         leaddomain.Service
	ProductSvc      productdomain.Service
	LostReasonSvc   lostreasondomain.Service
	CustomFieldSvc  customfielddomain.Service
	Limiter         ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		authsvc:         p.Authsvc,
		issuer:          p.Issuer,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		limits:          p.Limits,
		pipelineSvc:     p.PipelineSvc,
		dealSvc:         p.DealSvc,
		leadSvc:         p.LeadSvc,
		productSvc:      p.ProductSvc,
		lostReasonSvc:   p.LostReasonSvc,
		customFieldSvc:  p.CustomFieldSvc,
		limiter:         p.Limiter,
	}

	api := svc.engine.Group("/api/v1")
	svc.registerAuthRoutes(api)
	svc.registerOrganizationRoutes(api)
	svc.registerAPIRoutes(api)
	svc.registerTestRoutes(api)
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes(api *gin.RouterGroup) {
	auth := api.Group("/auth")
	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.GET("/me", s.AuthRequired(), s.Me)

	api.POST("/invites/accept", s.AcceptInvite)
}

// registerOrganizationRoutes needs a valid token but no active membership, so a
// freshly registered user can create or pick an organization.
func (s *Server) registerOrganizationRoutes(api *gin.RouterGroup) {
	user := api.Group("/organizations", s.AuthRequired())
	user.GET("", s.ListOrganizations)
	user.POST("", s.CreateOrganization)
	user.POST("/:id/switch", s.SwitchOrganization)
}

func (s *Server) registerAPIRoutes(api *gin.RouterGroup) {
	org := api.Group("", s.AuthRequired(), s.TenantRequired(), s.WriteRateLimit())

	org.GET("/organization", s.GetCurrentOrganization)
	org.PATCH("/organization", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionUpdate), s.UpdateOrganization)
	org.DELETE("/organization", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionDelete), s.DeleteOrganization)
	org.GET("/organization/stats", s.OrganizationStats)

	org.GET("/members", s.ListMembers)
	org.PATCH("/members/:id/role", s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionUpdateRole), s.UpdateMemberRole)
	org.DELETE("/members/:id", s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionRemove), s.RemoveMember)

	org.GET("/invites", s.ListInvites)
	org.POST("/invites", s.guard(
		s.requireRole(authorization.ObjectMember, authorization.ActionInvite),
		s.requireQuota(limitdomain.ResourceUsers),
	), s.InviteUser)
	org.POST("/invites/:id/resend", s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionInvite), s.ResendInvite)
	org.DELETE("/invites/:id", s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionInvite), s.CancelInvite)

	org.GET("/pipelines", s.ListPipelines)
	org.POST("/pipelines", s.guard(
		s.requireRole(authorization.ObjectPipeline, authorization.ActionCreate),
		s.requireQuota(limitdomain.ResourcePipelines),
	), s.CreatePipeline)
	org.GET("/pipelines/default", s.GetDefaultPipeline)
	org.GET("/pipelines/:id", s.GetPipeline)
	org.PATCH("/pipelines/:id", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionUpdate), s.UpdatePipeline)
	org.DELETE("/pipelines/:id", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionDelete), s.DeletePipeline)
	org.PUT("/pipelines/:id/members", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionMembers), s.SetPipelineMembers)
	org.POST("/pipelines/:id/stages", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionUpdate), s.CreateStage)
	org.PUT("/pipelines/:id/stages/reorder", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionReorder), s.ReorderStages)
	org.PATCH("/stages/:id", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionUpdate), s.UpdateStage)
	org.DELETE("/stages/:id", s.authorizeOrgAction(authorization.ObjectPipeline, authorization.ActionUpdate), s.DeleteStage)

	org.GET("/deals", s.ListDeals)
	org.POST("/deals", s.guard(s.requireQuota(limitdomain.ResourceDeals)), s.CreateDeal)
	org.GET("/deals/stats", s.DealStats)
	org.GET("/deals/forecast", s.guard(s.requireFeature(featureReports)), s.DealForecast)
	org.GET("/deals/by-lead/:leadId", s.ListDealsByLead)
	org.GET("/deals/board/:pipelineId", s.DealBoard)
	org.GET("/deals/:id", s.GetDeal)
	org.PATCH("/deals/:id", s.UpdateDeal)
	org.DELETE("/deals/:id", s.DeleteDeal)
	org.POST("/deals/:id/move", s.MoveDeal)
	org.POST("/deals/:id/assign", s.authorizeOrgAction(authorization.ObjectDeal, authorization.ActionAssign), s.AssignDeal)
	org.GET("/deals/:id/history", s.DealHistory)
	org.POST("/deals/:id/activities", s.RecordDealActivity)
	org.POST("/deals/:id/products", s.DealLock(), s.AddDealProduct)
	org.PATCH("/deals/:id/products/:itemId", s.DealLock(), s.UpdateDealProduct)
	org.DELETE("/deals/:id/products/:itemId", s.DealLock(), s.RemoveDealProduct)

	org.GET("/leads", s.ListLeads)
	org.POST("/leads", s.guard(s.requireQuota(limitdomain.ResourceContacts)), s.CreateLead)
	org.GET("/leads/:id", s.GetLead)
	org.PATCH("/leads/:id", s.UpdateLead)
	org.DELETE("/leads/:id", s.DeleteLead)
	org.POST("/leads/:id/assign", s.authorizeOrgAction(authorization.ObjectLead, authorization.ActionAssign), s.AssignLead)

	org.GET("/products", s.ListProducts)
	org.POST("/products", s.authorizeOrgAction(authorization.ObjectProduct, authorization.ActionCreate), s.CreateProduct)
	org.GET("/products/:id", s.GetProductByID)
	org.PATCH("/products/:id", s.authorizeOrgAction(authorization.ObjectProduct, authorization.ActionUpdate), s.UpdateProduct)
	org.DELETE("/products/:id", s.authorizeOrgAction(authorization.ObjectProduct, authorization.ActionDelete), s.DeleteProduct)

	org.GET("/lost-reasons", s.ListLostReasons)
	org.POST("/lost-reasons", s.authorizeOrgAction(authorization.ObjectLostReason, authorization.ActionManage), s.CreateLostReason)
	org.DELETE("/lost-reasons/:id", s.authorizeOrgAction(authorization.ObjectLostReason, authorization.ActionManage), s.DeleteLostReason)

	org.GET("/custom-fields", s.ListCustomFields)
	org.POST("/custom-fields", s.authorizeOrgAction(authorization.ObjectCustomField, authorization.ActionManage), s.CreateCustomField)
	org.PUT("/custom-fields/reorder", s.authorizeOrgAction(authorization.ObjectCustomField, authorization.ActionManage), s.ReorderCustomFields)
	org.GET("/custom-fields/values/:entityId", s.GetCustomFieldValues)
	org.PUT("/custom-fields/values/:entityId", s.SetCustomFieldValues)
	org.GET("/custom-fields/:id", s.GetCustomField)
	org.PATCH("/custom-fields/:id", s.authorizeOrgAction(authorization.ObjectCustomField, authorization.ActionManage), s.UpdateCustomField)
	org.DELETE("/custom-fields/:id", s.authorizeOrgAction(authorization.ObjectCustomField, authorization.ActionManage), s.DeleteCustomField)

	org.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
}

func (s *Server) registerTestRoutes(api *gin.RouterGroup) {
	switch s.cfg.Environment {
	case "development", "test":
	default:
		return
	}
	api.POST("/internal/test/cleanup", s.TestCleanup)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
