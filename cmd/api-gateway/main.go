package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-tutoring-api/api/swagger"
	"github.com/noah-isme/campus-tutoring-api/internal/handler"
	internalmiddleware "github.com/noah-isme/campus-tutoring-api/internal/middleware"
	"github.com/noah-isme/campus-tutoring-api/internal/repository"
	"github.com/noah-isme/campus-tutoring-api/internal/scheduling"
	"github.com/noah-isme/campus-tutoring-api/internal/service"
	"github.com/noah-isme/campus-tutoring-api/pkg/cache"
	"github.com/noah-isme/campus-tutoring-api/pkg/config"
	"github.com/noah-isme/campus-tutoring-api/pkg/database"
	"github.com/noah-isme/campus-tutoring-api/pkg/export"
	"github.com/noah-isme/campus-tutoring-api/pkg/jobs"
	"github.com/noah-isme/campus-tutoring-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-tutoring-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-tutoring-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-tutoring-api/pkg/realtime"
)

const reconcileSweepJob = "reconcile.sweep"

// @title Campus Tutoring API
// @version 1.0.0
// @description Scheduling core for peer tutoring sessions
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("ensure schema", zap.Error(err))
	}

	rules, err := scheduling.RulesFromConfig(cfg.Scheduling)
	if err != nil {
		logr.Fatal("invalid scheduling rules", zap.Error(err))
	}
	engine := scheduling.NewEngine(rules, nil)

	metrics := service.NewMetricsService()
	validate := validator.New()

	var redisClient *redis.Client
	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, session cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	var hub *realtime.Hub
	var publisher service.EventPublisher
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(cfg.Realtime.BufferSize, logr.Named("realtime"))
		go hub.Run(ctx)
		publisher = hub
	}

	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	banRepo := repository.NewBanRepository(db)

	sessionSvc := service.NewSessionService(sessionRepo, enrollmentRepo, engine, cacheSvc, publisher, metrics, validate, logr)
	banSvc := service.NewBanService(banRepo, sessionSvc, metrics, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, sessionSvc, banSvc, metrics, validate, logr)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Counter:     sessionRepo,
		Sessions:    sessionSvc,
		Enrollments: enrollmentSvc,
		Engine:      engine,
		Logger:      logr.Named("dashboard"),
	})
	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	sessionHandler := handler.NewSessionHandler(sessionSvc, nil)
	if cfg.Exports.Enabled {
		exporter := service.NewExportService(sessionSvc, logr, export.NewCSVExporter(), export.NewPDFExporter())
		sessionHandler = handler.NewSessionHandler(sessionSvc, exporter)
	}

	if cfg.Scheduling.SweepEnabled {
		queue := jobs.NewQueue("reconcile", func(ctx context.Context, job jobs.Job) error {
			summary, err := sessionSvc.ReconcileDue(ctx)
			if err != nil {
				return err
			}
			logr.Debug("reconcile sweep finished", zap.String("job_id", job.ID), zap.Int("examined", summary.Examined), zap.Int("updated", summary.Updated))
			return nil
		}, jobs.QueueConfig{Workers: 1, BufferSize: 1, MaxRetries: 2, RetryDelay: 5 * time.Second, Logger: logr})
		queue.Start(ctx)
		defer queue.Stop()
		go queue.Every(ctx, cfg.Scheduling.SweepInterval, reconcileSweepJob)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	routes := handler.Routes{
		Sessions:    sessionHandler,
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Bans:        handler.NewBanHandler(banSvc),
		Dashboard:   handler.NewDashboardHandler(dashboardSvc),
		Metrics:     metricsHandler,
	}
	if hub != nil {
		routes.Realtime = handler.NewRealtimeHandler(sessionSvc, hub, cfg.CORS.AllowedOrigins, logr.Named("realtime"))
	}
	routes.Register(r.Group(cfg.APIPrefix), internalmiddleware.JWT(authSvc), internalmiddleware.JWTQuery(authSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown", zap.Error(err))
	}
	logr.Info("server stopped")
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}
