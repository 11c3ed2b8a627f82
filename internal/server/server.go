// Package server exposes the billing engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingcycledomain "github.com/strataops/ledgerline/internal/billingcycle/domain"
	"github.com/strataops/ledgerline/internal/config"
	invoicedomain "github.com/strataops/ledgerline/internal/invoice/domain"
	paymentdomain "github.com/strataops/ledgerline/internal/payment/domain"
	pricingdomain "github.com/strataops/ledgerline/internal/pricing/domain"
	reminderdomain "github.com/strataops/ledgerline/internal/reminder/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	pricingSvc  pricingdomain.Service
	invoiceSvc  invoicedomain.Service
	paymentSvc  paymentdomain.Service
	reminderSvc reminderdomain.Service
	cycleSvc    billingcycledomain.Service
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	PricingSvc  pricingdomain.Service
	InvoiceSvc  invoicedomain.Service
	PaymentSvc  paymentdomain.Service
	ReminderSvc reminderdomain.Service
	CycleSvc    billingcycledomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		genID:  p.GenID,

		pricingSvc:  p.PricingSvc,
		invoiceSvc:  p.InvoiceSvc,
		paymentSvc:  p.PaymentSvc,
		reminderSvc: p.ReminderSvc,
		cycleSvc:    p.CycleSvc,
	}

	svc.registerAPIRoutes()
	svc.registerGatewayRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/pricings", s.CreatePricing)
	v1.GET("/pricings", s.ListPricings)
	v1.GET("/pricings/quote", s.QuotePricing)
	v1.GET("/pricings/:id", s.GetPricing)
	v1.PUT("/pricings/:id/tiers", s.ReplacePricingTiers)
	v1.DELETE("/pricings/:id", s.DeactivatePricing)

	v1.POST("/invoices", s.CreateDraftInvoice)
	v1.GET("/invoices", s.ListInvoices)
	v1.GET("/invoices/:id", s.GetInvoice)
	v1.PUT("/invoices/:id/lines", s.ReplaceDraftLines)
	v1.POST("/invoices/:id/publish", s.PublishInvoice)
	v1.POST("/invoices/:id/void", s.VoidInvoice)

	v1.POST("/payments/gateway", s.InitiateGatewayPayment)
	v1.POST("/payments", s.RecordManualPayment)
	v1.GET("/payments/:id", s.GetPayment)
	v1.GET("/payments/:id/receipt.pdf", s.DownloadReceipt)

	v1.POST("/billing-cycles", s.EnsureBillingCycle)
	v1.GET("/billing-cycles", s.ListBillingCycles)
	v1.GET("/billing-cycles/:id", s.GetBillingCycle)
	v1.POST("/billing-cycles/:id/close", s.CloseBillingCycle)

	v1.POST("/reminders", s.UpsertReminder)
	v1.GET("/reminders/:entity_type/:entity_id", s.GetReminder)
	v1.POST("/reminders/:entity_type/:entity_id/dismiss", s.DismissReminder)
	v1.POST("/reminders/:entity_type/:entity_id/decline", s.DeclineReminder)
	v1.POST("/reminders/:entity_type/:entity_id/resolve", s.ResolveReminder)
}

// registerGatewayRoutes mounts the gateway return endpoint at its
// configured path; the gateway calls it outside the versioned API.
func (s *Server) registerGatewayRoutes() {
	s.engine.GET(s.cfg.GatewayCallbackPath, s.GatewayCallback)
}
