package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/joblane/joblane/internal/audit"
	auditdomain "github.com/joblane/joblane/internal/audit/domain"
	"github.com/joblane/joblane/internal/auth"
	authdomain "github.com/joblane/joblane/internal/auth/domain"
	"github.com/joblane/joblane/internal/auth/session"
	"github.com/joblane/joblane/internal/authorization"
	"github.com/joblane/joblane/internal/config"
	"github.com/joblane/joblane/internal/membership"
	membershipdomain "github.com/joblane/joblane/internal/membership/domain"
	"github.com/joblane/joblane/internal/observability"
	obsmiddleware "github.com/joblane/joblane/internal/observability/logger"
	obsmetrics "github.com/joblane/joblane/internal/observability/metrics"
	obstracing "github.com/joblane/joblane/internal/observability/tracing"
	"github.com/joblane/joblane/internal/organization"
	organizationdomain "github.com/joblane/joblane/internal/organization/domain"
	"github.com/joblane/joblane/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	auth.Module,
	session.Module,
	organization.Module,
	membership.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if httpMetrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(httpMetrics.Registry(), promhttp.HandlerOpts{})))
	}

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, _ *Server) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	authsvc         authdomain.Service
	sessions        *session.Manager
	genID           *snowflake.Node
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	organizationSvc organizationdomain.Service
	membershipSvc   membershipdomain.Service
	joinLimiter     *ratelimit.JoinRequestLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Authsvc         authdomain.Service
	Sessions        *session.Manager
	GenID           *snowflake.Node
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc organizationdomain.Service
	MembershipSvc   membershipdomain.Service
	JoinLimiter     *ratelimit.JoinRequestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		authsvc:         p.Authsvc,
		sessions:        p.Sessions,
		genID:           p.GenID,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		membershipSvc:   p.MembershipSvc,
		joinLimiter:     p.JoinLimiter,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.POST("/change-password", s.AuthRequired(), s.ChangePassword)
	auth.GET("/me", s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Organizations --------
	api.POST("/organizations", s.CreateOrganization)
	api.GET("/organizations", s.ListOrganizations)
	api.GET("/organizations/:org_id", s.requireOrgRole(authorization.ObjectOrganization, authorization.ActionOrganizationView), s.GetOrganization)

	// -------- Join requests --------
	api.POST("/organizations/:org_id/join-requests", s.orgScoped(), s.JoinRequestRateLimit(), s.RequestToJoin)
	api.GET("/organizations/:org_id/join-requests", s.requireOrgRole(authorization.ObjectMembership, authorization.ActionMembershipListRequests), s.ListJoinRequests)
	api.POST("/organizations/:org_id/join-requests/:request_id", s.requireOrgRole(authorization.ObjectMembership, authorization.ActionMembershipHandleRequest), s.HandleJoinRequest)

	// -------- Invites --------
	api.POST("/organizations/:org_id/invites", s.requireOrgRole(authorization.ObjectMembership, authorization.ActionMembershipInvite), s.InviteMember)
	api.POST("/organizations/:org_id/invites/respond", s.orgScoped(), s.RespondToInvite)

	// -------- Members --------
	api.GET("/organizations/:org_id/members", s.requireOrgRole(authorization.ObjectMembership, authorization.ActionMembershipListMembers), s.ListMembers)
	api.PUT("/organizations/:org_id/members/:user_id/role", s.requireOrgRole(authorization.ObjectMembership, authorization.ActionMembershipUpdateRole), s.UpdateMemberRole)
	api.DELETE("/organizations/:org_id/members/:user_id", s.requireOrgRole(authorization.ObjectMembership, authorization.ActionMembershipRemove), s.RemoveMember)
	api.GET("/organizations/:org_id/members/me", s.orgScoped(), s.GetMyOrgRole)

	// -------- Audit logs --------
	api.GET("/organizations/:org_id/audit-logs", s.requireOrgRole(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	// -------- Current user --------
	api.GET("/user/join-requests", s.ListMyJoinRequests)

	if s.cfg.Environment != "production" {
		api.POST("/test/cleanup", s.TestCleanup)
	}
}
