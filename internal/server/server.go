package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/resibo-ph/resibo/internal/audit"
	auditdomain "github.com/resibo-ph/resibo/internal/audit/domain"
	"github.com/resibo-ph/resibo/internal/authorization"
	"github.com/resibo-ph/resibo/internal/config"
	"github.com/resibo-ph/resibo/internal/dispatch"
	dispatchdomain "github.com/resibo-ph/resibo/internal/dispatch/domain"
	"github.com/resibo-ph/resibo/internal/observability"
	obsmiddleware "github.com/resibo-ph/resibo/internal/observability/logger"
	obsmetrics "github.com/resibo-ph/resibo/internal/observability/metrics"
	obstracing "github.com/resibo-ph/resibo/internal/observability/tracing"
	"github.com/resibo-ph/resibo/internal/providers"
	"github.com/resibo-ph/resibo/internal/providers/pdf"
	"github.com/resibo-ph/resibo/internal/ratelimit"
	"github.com/resibo-ph/resibo/internal/receipt"
	receiptdomain "github.com/resibo-ph/resibo/internal/receipt/domain"
	"github.com/resibo-ph/resibo/internal/reference"
	referencedomain "github.com/resibo-ph/resibo/internal/reference/domain"
	"github.com/resibo-ph/resibo/internal/verification"
	verificationdomain "github.com/resibo-ph/resibo/internal/verification/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	reference.Module,
	providers.Module,
	receipt.Module,
	verification.Module,
	dispatch.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
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
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	genID           *snowflake.Node
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	receiptSvc      receiptdomain.Service
	verificationSvc verificationdomain.Service
	dispatchSvc     dispatchdomain.Service
	refrepo         referencedomain.Repository
	pdfRenderer     pdf.Provider
	verifyLimiter   *ratelimit.PublicVerifyLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	ReceiptSvc      receiptdomain.Service
	VerificationSvc verificationdomain.Service
	DispatchSvc     dispatchdomain.Service
	Refrepo         referencedomain.Repository
	PDFRenderer     pdf.Provider
	VerifyLimiter   *ratelimit.PublicVerifyLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics            `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		receiptSvc:      p.ReceiptSvc,
		verificationSvc: p.VerificationSvc,
		dispatchSvc:     p.DispatchSvc,
		refrepo:         p.Refrepo,
		pdfRenderer:     p.PDFRenderer,
		verifyLimiter:   p.VerifyLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerPublicRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.ActorContext())

	// -------- Receipts --------
	api.POST("/receipts", s.RequireAction(authorization.ObjectReceipt, authorization.ActionReceiptCreate), s.CreateReceipt)
	api.GET("/receipts", s.RequireAction(authorization.ObjectReceipt, authorization.ActionReceiptView), s.ListReceipts)
	api.GET("/receipts/:id", s.RequireAction(authorization.ObjectReceipt, authorization.ActionReceiptView), s.GetReceiptByID)
	api.GET("/receipts/:id/pdf", s.RequireAction(authorization.ObjectReceipt, authorization.ActionReceiptExport), s.DownloadReceiptPDF)
	api.PATCH("/receipts/:id", s.RequireAction(authorization.ObjectReceipt, authorization.ActionReceiptUpdateStatus), s.PatchReceiptStatus)

	// -------- Dispatch --------
	api.POST("/receipts/:id/dispatch", s.RequireAction(authorization.ObjectReceipt, authorization.ActionReceiptDispatch), s.DispatchReceipt)
	api.POST("/receipts/:id/dispatch/:channel", s.RequireAction(authorization.ObjectReceipt, authorization.ActionReceiptDispatch), s.DispatchReceiptChannel)
	api.GET("/receipts/:id/attempts", s.RequireAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListDispatchAttempts)

	// -------- Verification --------
	api.POST("/verify", s.RequireAction(authorization.ObjectReceipt, authorization.ActionReceiptView), s.VerifyReceipt)

	// -------- Reference --------
	api.GET("/organizations", s.RequireAction(authorization.ObjectReference, authorization.ActionReferenceView), s.ListOrganizations)
	api.GET("/categories", s.RequireAction(authorization.ObjectReference, authorization.ActionReferenceView), s.ListCategories)
	api.GET("/templates", s.RequireAction(authorization.ObjectReference, authorization.ActionReferenceView), s.ListTemplates)

	// -------- Audit --------
	api.GET("/audit_logs", s.RequireAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/public")

	public.GET("/verify/:receiptNumber", s.PublicVerifyRateLimit(), s.PublicVerifyReceipt)
}
