package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/cache"
	"ledger-api/internal/config"
	"ledger-api/internal/controller"
	"ledger-api/internal/database"
	"ledger-api/internal/engine"
	"ledger-api/internal/events"
	"ledger-api/internal/gateway"
	"ledger-api/internal/middleware"
	"ledger-api/internal/monitoring"
	"ledger-api/internal/service"
	"ledger-api/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logging)

	ctx := context.Background()
	deps, err := initializeDependencies(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize dependencies: %v", err)
	}
	defer deps.cleanup()

	router := setupRouter(cfg, deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	scheduler := startAccrualScheduler(cfg, deps.accrualEngine)

	go func() {
		logrus.WithField("addr", server.Addr).Info("Starting ledger API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Forced shutdown")
	}
}

type dependencies struct {
	database      *database.Database
	cacheService  cache.CacheService
	publisher     events.Publisher
	metrics       monitoring.MetricsService
	healthChecker monitoring.HealthChecker
	accrualEngine *engine.AccrualEngine

	payments    *controller.PaymentController
	webhooks    *controller.WebhookController
	account     *controller.AccountController
	investments *controller.InvestmentController
	admin       *controller.AdminController

	auth      *middleware.AuthMiddleware
	logging   *middleware.LoggingMiddleware
	rateLimit *middleware.RateLimitMiddleware
	security  *middleware.SecurityMiddleware
}

func (d *dependencies) cleanup() {
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close publisher")
		}
	}
	if d.cacheService != nil {
		if err := d.cacheService.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close cache")
		}
	}
	if d.database != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.database.Close(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}
}

func initializeDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repos := db.Repositories

	cacheService, err := cache.NewRedisCache(&cache.CacheConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		Database:     cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConnections,
		Timeout:      cfg.Redis.DialTimeout,
		KeyPrefix:    cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.RabbitMQ.Enabled {
		publisher, err = events.NewPublisher(&events.PublisherConfig{
			URL:           cfg.RabbitMQ.URL,
			ExchangeName:  cfg.RabbitMQ.Exchange,
			RetryAttempts: cfg.RabbitMQ.RetryAttempts,
			RetryDelay:    cfg.RabbitMQ.RetryDelay,
		})
		if err != nil {
			return nil, err
		}
	}

	var metrics monitoring.MetricsService = monitoring.NoopMetrics{}
	if cfg.Monitoring.EnableMetrics {
		metrics = monitoring.NewPrometheusMetrics()
	}

	pixGateway := gateway.NewPixGateway(&gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		PublicKey:   cfg.Gateway.PublicKey,
		SecretKey:   cfg.Gateway.SecretKey,
		CallbackURL: cfg.Gateway.CallbackURL,
		Timeout:     cfg.Gateway.Timeout,
	})

	replayGuard := engine.NewReplayGuard(cacheService, cfg.Redis.WebhookReplayTTL)
	accrualEngine := engine.NewAccrualEngine(
		repos.Investment, repos.Profile, repos.Transaction, repos.Notification,
		publisher, metrics,
	)

	auditLogger := logger.AuditLogger(cfg.Logging)

	commissionPcts := make([]decimal.Decimal, 0, 3)
	for _, pct := range cfg.Business.CommissionPcts() {
		commissionPcts = append(commissionPcts, decimal.NewFromFloat(pct))
	}

	depositService := service.NewDepositService(
		repos.Profile, repos.Transaction, pixGateway, publisher, metrics, cfg.Business)
	withdrawalService := service.NewWithdrawalService(
		repos.Profile, repos.Transaction, repos.Notification, pixGateway, publisher, metrics, cfg.Business)
	webhookService := service.NewWebhookService(
		repos.Profile, repos.Transaction, repos.Notification, replayGuard, publisher, metrics)
	adminService := service.NewAdminService(
		repos.Role, repos.Profile, repos.Transaction, repos.Notification,
		pixGateway, accrualEngine, cacheService, publisher, metrics, auditLogger,
		cfg.Redis.GatewayBalanceTTL)
	investmentService := service.NewInvestmentService(
		repos.Investment, repos.Profile, repos.Transaction, repos.Commission,
		repos.Notification, publisher, metrics, commissionPcts)
	balanceService := service.NewBalanceService(repos.Profile, repos.Transaction, publisher)
	checkinService := service.NewCheckinService(
		repos.Checkin, repos.Profile, repos.Transaction, publisher, metrics,
		decimal.NewFromFloat(cfg.Business.CheckinReward))
	notificationService := service.NewNotificationService(repos.Notification)

	healthChecker := monitoring.NewHealthChecker(version)
	healthChecker.RegisterCheck("mongodb", db.PingMongo)
	healthChecker.RegisterCheck("redis", db.PingRedis)

	return &dependencies{
		database:      db,
		cacheService:  cacheService,
		publisher:     publisher,
		metrics:       metrics,
		healthChecker: healthChecker,
		accrualEngine: accrualEngine,

		payments:    controller.NewPaymentController(depositService, withdrawalService),
		webhooks:    controller.NewWebhookController(webhookService),
		account:     controller.NewAccountController(balanceService, checkinService, notificationService),
		investments: controller.NewInvestmentController(investmentService),
		admin:       controller.NewAdminController(adminService),

		auth:      middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, repos.Role),
		logging:   middleware.NewLoggingMiddleware(logrus.StandardLogger(), metrics),
		rateLimit: middleware.NewRateLimitMiddleware(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		security:  middleware.NewSecurityMiddleware(1 << 20),
	}, nil
}

func setupRouter(cfg *config.Config, deps *dependencies) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	controller.RegisterValidations()

	router := gin.New()
	_ = router.SetTrustedProxies(cfg.Server.TrustedProxies)

	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))
	router.Use(deps.logging.RequestLogger())
	router.Use(deps.security.SecurityHeaders())
	router.Use(deps.security.RequestSizeLimit())
	router.Use(deps.rateLimit.PerIP())

	router.GET(cfg.Monitoring.HealthCheckPath, func(c *gin.Context) {
		status := deps.healthChecker.CheckHealth(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	if cfg.Monitoring.EnableMetrics {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// Gateway callbacks carry no JWT; the conditional transitions make the
	// endpoint safe to expose unauthenticated.
	router.POST("/webhooks/gateway", deps.webhooks.HandleGatewayEvent)

	api := router.Group("/api/v1")
	api.Use(deps.auth.JWTAuth())
	{
		api.POST("/deposits", deps.payments.CreateDeposit)
		api.POST("/withdrawals", deps.payments.CreateWithdrawal)

		api.GET("/profile", deps.account.GetProfile)
		api.GET("/transactions", deps.account.ListTransactions)
		api.POST("/balance/transfer", deps.account.TransferAccumulated)
		api.POST("/checkins", deps.account.Checkin)
		api.GET("/checkins", deps.account.ListCheckins)
		api.GET("/notifications", deps.account.ListNotifications)
		api.POST("/notifications/:id/read", deps.account.MarkNotificationRead)
		api.GET("/notifications/unread-count", deps.account.CountUnreadNotifications)

		api.GET("/plans", deps.investments.ListPlans)
		api.POST("/investments", deps.investments.CreateInvestment)
		api.GET("/investments", deps.investments.ListInvestments)
		api.GET("/commissions", deps.investments.ListCommissions)

		admin := api.Group("/admin")
		admin.Use(deps.auth.RequireAdmin())
		{
			admin.GET("/withdrawals", deps.admin.ListPendingWithdrawals)
			admin.POST("/withdrawals/:transactionId", deps.admin.ProcessWithdrawal)
			admin.GET("/gateway/balance", deps.admin.GetGatewayBalance)
			admin.POST("/accruals/run", deps.admin.RunAccruals)
		}
	}

	return router
}

func startAccrualScheduler(cfg *config.Config, accrualEngine *engine.AccrualEngine) *cron.Cron {
	if !cfg.Accrual.Enabled {
		return nil
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.Accrual.CronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		summary, err := accrualEngine.Run(ctx)
		if err != nil {
			logrus.WithError(err).Error("Scheduled accrual run failed")
			return
		}
		logrus.WithFields(logrus.Fields{
			"processed_returns":     summary.ProcessedReturns,
			"completed_investments": summary.CompletedInvestments,
		}).Info("Scheduled accrual run completed")
	})
	if err != nil {
		logrus.Fatalf("Invalid accrual cron spec %q: %v", cfg.Accrual.CronSpec, err)
	}

	scheduler.Start()
	return scheduler
}
