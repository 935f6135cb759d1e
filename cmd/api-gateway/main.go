package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/activity-hours-api/api/swagger"
	"github.com/noah-isme/activity-hours-api/internal/handler"
	"github.com/noah-isme/activity-hours-api/internal/repository"
	"github.com/noah-isme/activity-hours-api/internal/service"
	"github.com/noah-isme/activity-hours-api/pkg/cache"
	"github.com/noah-isme/activity-hours-api/pkg/config"
	"github.com/noah-isme/activity-hours-api/pkg/database"
	"github.com/noah-isme/activity-hours-api/pkg/export"
	"github.com/noah-isme/activity-hours-api/pkg/jobs"
	"github.com/noah-isme/activity-hours-api/pkg/logger"
)

// @title Activity Hours API
// @version 1.0.0
// @description Complementary activity hours with per-category quotas
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.HoursCache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, hours cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	academicRepo := repository.NewAcademicRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	quotaCategoryRepo := repository.NewQuotaCategoryRepository(db)
	quotaStore := repository.NewQuotaStore(db, cfg.Quota.LockTimeout)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.HoursCache.TTL, logr, redisClient != nil)

	invalidationQueue := jobs.NewQueue("hours-invalidation", service.NewInvalidationHandler(cacheSvc, metricsSvc), jobs.QueueConfig{
		Workers:    cfg.HoursCache.InvalidationWorkers,
		MaxRetries: cfg.HoursCache.InvalidationRetries,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logr,
	})
	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	invalidationQueue.Start(queueCtx)
	defer invalidationQueue.Stop()

	engine := service.NewQuotaEngine(quotaStore, activityRepo, service.NewQueuedInvalidator(invalidationQueue, metricsSvc, logr), metricsSvc, logr, service.QuotaEngineConfig{
		BatchSize:       cfg.Quota.CascadeBatchSize,
		ZeroLimitPolicy: service.ParseZeroLimitPolicy(cfg.Quota.ZeroLimitPolicy),
	})

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	activitySvc := service.NewActivityService(activityRepo, academicRepo, quotaCategoryRepo, engine, validate, logr)
	quotaCategorySvc := service.NewQuotaCategoryService(quotaCategoryRepo, academicRepo, validate, logr)
	hoursSvc := service.NewHoursSummaryService(quotaCategoryRepo, academicRepo, academicRepo, cacheSvc, cfg.HoursCache.TTL, logr)
	reportSvc := service.NewReportService(cfg.Reports.Enabled, activityRepo, academicRepo, hoursSvc, export.NewPDFExporter(), export.NewCSVExporter(), logr)

	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }
	}

	r := newRouter(cfg, logr, routeDeps{
		auth:           authSvc,
		metrics:        metricsSvc,
		authHandler:    handler.NewAuthHandler(authSvc),
		activities:     handler.NewActivityHandler(activitySvc),
		quotaHandler:   handler.NewQuotaCategoryHandler(quotaCategorySvc),
		students:       handler.NewStudentHandler(hoursSvc, reportSvc),
		metricsHandler: handler.NewMetricsHandler(metricsSvc, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
