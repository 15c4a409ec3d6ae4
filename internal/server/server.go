package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/payflow/internal/auth"
	checkoutservice "github.com/smallbiznis/payflow/internal/checkout/service"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/observability"
	obslogger "github.com/smallbiznis/payflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payflow/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	subscriptiondomain "github.com/smallbiznis/payflow/internal/subscription/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, sessions *auth.Manager, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(auth.Middleware(sessions))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, sessions *auth.Manager, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, sessions, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	db            *gorm.DB
	sessions      *auth.Manager
	checkoutSvc   *checkoutservice.Service
	paymentGws    *adapters.Registry
	orders        orderdomain.Repository
	subscriptions subscriptiondomain.Repository
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	DB            *gorm.DB
	Sessions      *auth.Manager
	CheckoutSvc   *checkoutservice.Service
	PaymentGws    *adapters.Registry
	Orders        orderdomain.Repository
	Subscriptions subscriptiondomain.Repository
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http"),
		db:            p.DB,
		sessions:      p.Sessions,
		checkoutSvc:   p.CheckoutSvc,
		paymentGws:    p.PaymentGws,
		orders:        p.Orders,
		subscriptions: p.Subscriptions,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/checkout", auth.RequireUser(), s.CreateCheckout)
	api.GET("/checkout/callback", s.CheckoutCallback)

	api.GET("/orders", auth.RequireUser(), s.ListOrders)
	api.GET("/subscriptions", auth.RequireUser(), s.ListSubscriptions)

	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}
