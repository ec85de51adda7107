package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"payrecon/internal/checkout"
	"payrecon/internal/config"
	"payrecon/internal/notify"
	"payrecon/internal/wallet"
	"payrecon/internal/webhook"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, notifier *notify.Service) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())

	walletRepo := wallet.NewRepository(db)
	ledger := checkout.NewRepository(db, walletRepo)
	checkoutService := checkout.NewService(ledger, notifier)

	webhookHandler := webhook.NewHandler(checkoutService, cfg.SoapWebhookSecret)
	checkoutHandler := checkout.NewHandler(checkoutService)

	// The webhook route is never rate limited: throttling provider retries
	// would turn redelivery into silent event loss.
	router.POST("/webhooks/soap", webhookHandler.HandleWebhook)

	storefront := router.Group("/checkouts")
	storefront.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	{
		storefront.POST("", checkoutHandler.InitiateCheckout)
		storefront.GET("/:checkoutID/status", checkoutHandler.GetStatus)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
