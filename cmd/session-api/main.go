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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/class-session-api/api/swagger"
	"github.com/noah-isme/class-session-api/internal/handler"
	"github.com/noah-isme/class-session-api/internal/middleware"
	"github.com/noah-isme/class-session-api/internal/repository"
	"github.com/noah-isme/class-session-api/internal/service"
	"github.com/noah-isme/class-session-api/pkg/cache"
	"github.com/noah-isme/class-session-api/pkg/config"
	"github.com/noah-isme/class-session-api/pkg/database"
	"github.com/noah-isme/class-session-api/pkg/jobs"
	"github.com/noah-isme/class-session-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/class-session-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/class-session-api/pkg/middleware/requestid"
)

// @title Class Session API
// @version 0.1.0
// @description Class session scheduling and enrollment
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	var redisClient redis.Cmdable
	var redisPing handler.ReadinessCheck
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, continuing without cache and pub/sub", "error", err)
		} else {
			defer client.Close()
			redisClient = client
			redisPing = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}
	validate := validator.New()

	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	classRepo := repository.NewClassDefinitionRepository(db)

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix), metrics, cfg.Sessions.ClassCacheTTL, logr, redisClient != nil)
	catalog := service.NewClassCatalogService(classRepo, cacheSvc, cfg.Sessions.ClassCacheTTL)

	sinks := []service.EventSink{service.NewLogEventSink(logr)}
	if cfg.Events.Enabled && redisClient != nil {
		sinks = append(sinks, repository.NewRedisEventPublisher(redisClient, cfg.Events.Channel))
	}
	events := service.NewEventService(sinks, repository.NewEventOutboxRepository(db), service.EventServiceConfig{
		Workers:      cfg.Events.Workers,
		MaxRetries:   cfg.Events.Retries,
		RatePerSec:   cfg.Events.RatePerSec,
		DrainTimeout: cfg.Events.DrainTimeout,
		RelayGrace:   cfg.Events.RelayGrace,
		RelayBatch:   cfg.Events.RelayBatch,
	}, metrics, logr)

	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, sessionRepo, events, metrics, validate, logr)
	cascade := service.NewCascadeService(enrollmentSvc, service.CascadeConfig{
		Workers:      cfg.Sessions.CascadeWorkers,
		MaxRetries:   cfg.Sessions.CascadeRetries,
		DrainTimeout: cfg.Sessions.CascadeDrain,
	}, metrics, logr)
	sessionSvc := service.NewSessionService(sessionRepo, catalog, enrollmentRepo, cascade, events, metrics, validate, logr,
		service.SessionServiceConfig{WaitlistDefault: cfg.Sessions.WaitlistDefault})
	sweeper := service.NewStatusSweeper(sessionRepo, events, metrics, logr, cfg.Sweeper.BatchSize).
		ReconcileCascades(sessionSvc, cfg.Sweeper.ReconcileGrace)

	events.Start(ctx)
	defer events.Stop()
	cascade.Start(ctx)
	defer cascade.Stop()

	scheduler := jobs.NewScheduler(logr)
	if cfg.Sweeper.Enabled {
		if err := scheduler.Every("status-sweeper", cfg.Sweeper.Interval, func(ctx context.Context) error {
			_, err := sweeper.Run(ctx)
			return err
		}); err != nil {
			logr.Sugar().Fatalw("failed to schedule sweeper", "error", err)
		}
	}
	if err := scheduler.Every("event-relay", cfg.Events.RelayInterval, func(ctx context.Context) error {
		_, err := events.Relay(ctx)
		return err
	}); err != nil {
		logr.Sugar().Fatalw("failed to schedule event relay", "error", err)
	}
	// Deferred in reverse: the scheduler stops first, then the cascade drains into a live event queue.
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisPing != nil {
		checks["redis"] = redisPing
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metrics != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Sessions:    handler.NewSessionHandler(sessionSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Roster:      handler.NewRosterHandler(service.NewRosterService(sessionRepo, enrollmentRepo, logr)),
		Sweep:       handler.NewSweepHandler(sweeper),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down server", zap.String("addr", addr))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server forced to shutdown", "error", err)
	}
}
