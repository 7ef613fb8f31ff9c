package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appbilling "github.com/inmobiliaria/backend/internal/application/billing"
	"github.com/inmobiliaria/backend/internal/application/ledger"
	"github.com/inmobiliaria/backend/internal/application/notification"
	"github.com/inmobiliaria/backend/internal/domain/sales"
	"github.com/inmobiliaria/backend/internal/infrastructure/auth"
	"github.com/inmobiliaria/backend/internal/infrastructure/billing"
	"github.com/inmobiliaria/backend/internal/infrastructure/cache"
	"github.com/inmobiliaria/backend/internal/infrastructure/config"
	"github.com/inmobiliaria/backend/internal/infrastructure/event"
	"github.com/inmobiliaria/backend/internal/infrastructure/logger"
	"github.com/inmobiliaria/backend/internal/infrastructure/mail"
	"github.com/inmobiliaria/backend/internal/infrastructure/migration"
	"github.com/inmobiliaria/backend/internal/infrastructure/persistence"
	"github.com/inmobiliaria/backend/internal/infrastructure/scheduler"
	"github.com/inmobiliaria/backend/internal/infrastructure/telemetry"
	"github.com/inmobiliaria/backend/internal/interfaces/http/handler"
	"github.com/inmobiliaria/backend/internal/interfaces/http/middleware"
	"github.com/inmobiliaria/backend/internal/interfaces/http/router"
	"github.com/inmobiliaria/backend/migrations"
	_ "github.com/lib/pq"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/inmobiliaria/backend/docs"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "1.0.0"

//	@title			Inmobiliaria Payments API
//	@version		1.0
//	@description	Installment sales ledger: amortization schedules, manual and gateway payments, refunds, commissions and recurring charges.

//	@contact.name	API Support
//	@contact.url	https://github.com/inmobiliaria/backend

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Fields:     map[string]string{"service": cfg.App.Name, "env": cfg.App.Env},
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		logger.Sync(log)
	}()

	log.Info("Starting payments backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		SlowQueryThresh:  cfg.Telemetry.DBSlowQueryThresh,
		DBName:           cfg.Database.DBName,
		IncludeVariables: !cfg.App.IsProduction(),
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to access connection pool", zap.Error(err))
	}
	log.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		if err := runMigrations(cfg.Database, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	stores, err := cache.Connect(ctx, cfg.Redis, cfg.Redis.AllowInMemoryFallback, log)
	if err != nil {
		log.Fatal("Failed to initialize cache stores", zap.Error(err))
	}

	stripe, err := billing.NewStripeAdapter(&billing.StripeConfig{
		SecretKey:         cfg.Stripe.SecretKey,
		WebhookSecret:     cfg.Stripe.WebhookSecret,
		Currency:          cfg.Stripe.Currency,
		HTTPTimeout:       cfg.Stripe.HTTPTimeout,
		MaxNetworkRetries: cfg.Stripe.MaxNetworkRetries,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize Stripe adapter", zap.Error(err))
	}

	// Domain events fan out to the email notifier
	bus := event.NewInMemoryEventBus(log)
	notifier := notification.NewPaymentNotifier(newMailer(cfg.Mail, log), cfg.Mail.OwnerAddress, log)
	bus.Subscribe(notifier, notifier.EventTypes()...)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Repositories
	saleRepo := persistence.NewGormSaleRepository(db.DB)
	installmentRepo := persistence.NewGormInstallmentRepository(db.DB)
	schemeRepo := persistence.NewGormCommissionSchemeRepository(db.DB)
	commissionRepo := persistence.NewGormCommissionRepository(db.DB)
	refundRepo := persistence.NewGormRefundRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	webhookEventRepo := persistence.NewGormWebhookEventRepository(db.DB)
	paymentRecordRepo := persistence.NewGormPaymentRecordRepository(db.DB)
	scope := persistence.NewGormLedgerScope(db.DB)

	// Application services
	weights := sales.TrancheWeights{
		DownPayment: cfg.Ledger.CommissionWeightDownPayment,
		Contract:    cfg.Ledger.CommissionWeightContract,
		Settlement:  cfg.Ledger.CommissionWeightSettlement,
	}
	ledgerService := ledger.NewLedgerService(ledger.LedgerServiceConfig{
		Scope:          scope,
		Installments:   installmentRepo,
		EventPublisher: bus,
		Settings:       ledger.Settings{LateFeeRate: cfg.Ledger.LateFeeRate, Weights: weights},
		Logger:         log,
	})
	salesService := ledger.NewSalesService(ledger.SalesServiceConfig{
		Scope:        scope,
		Sales:        saleRepo,
		Installments: installmentRepo,
		Schemes:      schemeRepo,
		Commissions:  commissionRepo,
		Weights:      weights,
		Logger:       log,
	})
	refundService := appbilling.NewRefundService(appbilling.RefundServiceConfig{
		Scope:          scope,
		Refunds:        refundRepo,
		Gateway:        stripe,
		EventPublisher: bus,
		Logger:         log,
	})
	subscriptionService := appbilling.NewSubscriptionService(appbilling.SubscriptionServiceConfig{
		Subscriptions:  subscriptionRepo,
		Customers:      customerRepo,
		Gateway:        stripe,
		EventPublisher: bus,
		Logger:         log,
	})
	subscriptionEvents := appbilling.NewSubscriptionHandler(appbilling.SubscriptionHandlerConfig{
		Subscriptions:  subscriptionRepo,
		Customers:      customerRepo,
		Records:        paymentRecordRepo,
		Ledger:         ledgerService,
		Gateway:        stripe,
		EventPublisher: bus,
		Logger:         log,
	})
	webhookService := appbilling.NewWebhookService(appbilling.WebhookServiceConfig{
		Verifier:       stripe,
		Events:         webhookEventRepo,
		Idempotency:    stores.IdempotencyStore(),
		IdempotencyTTL: cfg.Webhook.IdempotencyTTL,
		Ledger:         ledgerService,
		Subscriptions:  subscriptionEvents,
		Refunds:        refundService,
		AllowInsecure:  cfg.Webhook.AllowInsecure,
		RetryAttempts:  cfg.Webhook.RetryAttempts,
		RetryBaseDelay: cfg.Webhook.RetryBaseDelay,
		Logger:         log,
	})

	sweeper, err := scheduler.NewOverdueSweeper(ledgerService, cfg.Scheduler, log)
	if err != nil {
		log.Fatal("Failed to create overdue sweeper", zap.Error(err))
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start overdue sweeper", zap.Error(err))
	}

	// HTTP engine
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     tracer.IsEnabled(),
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFrom(cfg.HTTP)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	jwtAuth := middleware.JWTAuth(auth.NewJWTValidator(cfg.JWT), log)

	handlers := router.Handlers{
		Payments:      handler.NewPaymentHandler(ledgerService),
		Sales:         handler.NewSalesHandler(salesService),
		Simulation:    handler.NewSimulationHandler(salesService),
		Refunds:       handler.NewRefundHandler(refundService),
		Subscriptions: handler.NewSubscriptionHandler(subscriptionService),
		Webhooks:      handler.NewStripeWebhookHandler(webhookService, cfg.Webhook.MaxPayloadBytes),
		System: handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.Pinger{
			"database": sqlDB,
			"cache":    handler.PingFunc(stores.Ping),
		}),
	}
	if cfg.HTTP.RateLimitEnabled {
		handlers.APIMiddleware = append(handlers.APIMiddleware, middleware.RateLimit(
			stores.RateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow), log))
		handlers.WebhookMiddleware = append(handlers.WebhookMiddleware, middleware.RateLimit(
			stores.RateLimiter(cfg.HTTP.WebhookRateLimitRequests, cfg.HTTP.WebhookRateLimitWindow), log))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
			zap.Bool("distributed", stores.Distributed()),
		)
	}

	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(cfg.Swagger, jwtAuth),
		ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.Mount(engine, handlers, jwtAuth)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping overdue sweeper", zap.Error(err))
	}
	// Drain pending notifications before the connections they need go away
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error flushing traces", zap.Error(err))
	}
	if err := stores.Close(); err != nil {
		log.Error("Error closing cache stores", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newMailer returns the SMTP mailer when mail is enabled, else a mailer that only logs
func newMailer(cfg config.MailConfig, log *zap.Logger) notification.Mailer {
	if !cfg.Enabled {
		return notification.NewLoggingMailer(log)
	}
	m, err := mail.NewSMTPMailer(cfg, log)
	if err != nil {
		log.Warn("Invalid mail configuration, emails will only be logged", zap.Error(err))
		return notification.NewLoggingMailer(log)
	}
	return m
}

// runMigrations applies the embedded schema over its own connection; closing the
// migrator closes the *sql.DB it was given.
func runMigrations(cfg config.DatabaseConfig, log *zap.Logger) error {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return err
	}
	m, err := migration.NewEmbedded(conn, migrations.FS, log)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Error closing migrator", zap.Error(err))
		}
	}()
	return m.Up()
}
