package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/config"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/claims"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/denial"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/fraud"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/kpi"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/payment"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/reconciliation"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/auth"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/blobstore"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/lock"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/middleware"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/notification"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/websocket"
)

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	tx := db.NewTransactor(pool)
	var checks []db.Check

	// Locks
	var locker lock.Locker
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, logger)
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() }})
		logger.Info().Msg("using redis posting locks")
	} else {
		locker = lock.NewLocalLocker()
		logger.Warn().Msg("REDIS_URL not set, posting locks are process-local")
	}

	// Object store
	var store blobstore.Store
	if cfg.MinioEndpoint != "" {
		ms, err := blobstore.NewMinioStore(ctx, minioConfig(cfg))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to object store")
		}
		store = ms
		checks = append(checks, db.Check{Name: "object_store", Ping: ms.Ping})
	} else {
		store = blobstore.NewMemoryStore()
		logger.Warn().Msg("MINIO_ENDPOINT not set, archives are kept in memory")
	}

	// Events
	hub := websocket.NewHub(logger)
	publishers := notification.Fanout{notification.NewLogPublisher(logger), hub}
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to broker")
		}
		defer conn.Close()
		ap, err := notification.NewAMQPPublisher(conn, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open broker channel")
		}
		defer ap.Close()
		publishers = append(publishers, ap)
		checks = append(checks, db.Check{Name: "broker", Ping: func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}})
	}
	endpoints, err := webhookEndpoints(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid webhook configuration")
	}
	if len(endpoints) > 0 {
		publishers = append(publishers, notification.NewWebhookPublisher(endpoints, cfg.ExternalTimeout, logger))
		logger.Info().Int("endpoints", len(endpoints)).Msg("webhook delivery enabled")
	}
	var publisher notification.Publisher = publishers

	// Fraud
	paymentRepo := payment.NewRepoPG(pool)
	fraudSvc := fraud.NewService(fraud.NewScorer(fraudConfig(cfg)), fraud.NewRepoPG(pool), payment.NewFraudHistory(paymentRepo), logger)

	// Claims
	claimRepo := claims.NewClaimRepoPG(pool)
	validationRepo := claims.NewValidationRepoPG(pool)
	processor := claims.NewProcessor(
		claims.NewValidationEngine(claims.DefaultValidationConfig()),
		fraudSvc,
		claimRepo,
		validationRepo,
		clearinghouse(cfg),
		claims.StaticRouter{Default: cfg.ClearinghouseDefaultID},
		publisher,
		processorConfig(cfg),
		logger,
	)
	claimSvc := claims.NewService(claimRepo, validationRepo, processor)
	batches := claims.NewBatchCoordinator(processor, claims.NewBatchRepoPG(pool), locker, store, batchConfig(cfg), logger)

	// Payments
	ledgerRepo := payment.NewLedgerRepoPG(pool)
	executor := payment.NewExecutor(paymentRepo, ledgerRepo, claimLedger{claimSvc}, fraudSvc, gateway(cfg),
		locker, tx, publisher, executorConfig(cfg), logger)
	paymentSvc := payment.NewService(paymentRepo, ledgerRepo, executor)

	// Denials
	analyzer := denial.NewAnalyzer(denial.NewRepoPG(pool), denial.NewAppealRepoPG(pool), denialClaims{claimSvc},
		denial.RuleBasedRootCause{}, denial.NewAppealWriter(notification.NewTemplateEngine()), tx, publisher,
		denialConfig(cfg), logger)

	// Reconciliation
	reconciler := reconciliation.NewReconciler(reconciliation.NewRepoPG(pool), paymentRepo, bankFeed(cfg),
		locker, store, publisher, reconcileConfig(cfg), logger)

	// KPIs
	source := kpi.NewPGSource(pool)
	monitor := kpi.NewMonitor(source, kpi.NewSnapshotRepoPG(pool), kpi.NewAlertRepoPG(pool), publisher, kpiConfig(cfg), logger)
	scheduler := kpi.NewScheduler(monitor, source, cfg.KPIInterval, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewRequestValidator()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit("2M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Organization-ID"},
	}))

	e.GET("/health", db.HealthHandler(pool, checks...))

	authMW := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(cfg.DevOrganization())
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rateLimitCfg), middleware.RequestTimeout(2*cfg.ExternalTimeout))
	claims.NewHandler(claimSvc, batches).RegisterRoutes(apiV1)
	payment.NewHandler(paymentSvc).RegisterRoutes(apiV1)
	denial.NewHandler(analyzer).RegisterRoutes(apiV1)
	reconciliation.NewHandler(reconciler).RegisterRoutes(apiV1)
	kpi.NewHandler(monitor).RegisterRoutes(apiV1)
	websocket.NewHandler(hub).RegisterRoutes(e.Group("", authMW))

	go scheduler.Start(ctx)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
