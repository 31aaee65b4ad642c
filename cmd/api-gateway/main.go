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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-curriculum-api/api/swagger"
	"github.com/noah-isme/sma-curriculum-api/internal/handler"
	"github.com/noah-isme/sma-curriculum-api/internal/middleware"
	"github.com/noah-isme/sma-curriculum-api/internal/models"
	"github.com/noah-isme/sma-curriculum-api/internal/repository"
	"github.com/noah-isme/sma-curriculum-api/internal/service"
	"github.com/noah-isme/sma-curriculum-api/pkg/cache"
	"github.com/noah-isme/sma-curriculum-api/pkg/config"
	"github.com/noah-isme/sma-curriculum-api/pkg/database"
	"github.com/noah-isme/sma-curriculum-api/pkg/export"
	"github.com/noah-isme/sma-curriculum-api/pkg/jobs"
	"github.com/noah-isme/sma-curriculum-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-curriculum-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-curriculum-api/pkg/middleware/requestid"
)

// @title SMA Curriculum API
// @version 0.1.0
// @description Review workflow for learning objectives and rubric levels
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()

	itemRepo := repository.NewApprovableItemRepository(db)
	eventRepo := repository.NewApprovalEventRepository(db)
	staffingRepo := repository.NewStaffingRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	ledgerRepo := repository.NewDispatchLedgerRepository(redisClient)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Approvals.RollupCacheTTL, logr, true)
	resolver := service.NewApproverResolver(staffingRepo, itemRepo, logr)
	generation := service.NewGenerationClient(service.GenerationClientConfig{
		BaseURL:       cfg.Generation.BaseURL,
		Timeout:       cfg.Generation.Timeout,
		RatePerSecond: cfg.Generation.RatePerSecond,
	}, metrics, logr)

	dispatcher := service.NewApprovalDispatcher(ledgerRepo, cfg.Approvals.DispatchLedgerTTL, metrics, logr)
	queue := jobs.NewQueue("approval-transitions", dispatcher.Handle, jobs.QueueConfig{
		Workers:    cfg.Generation.Workers,
		BufferSize: cfg.Generation.QueueBuffer,
		MaxRetries: cfg.Generation.Retries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	dispatcher.AttachQueue(queue)

	approvalSvc := service.NewApprovalService(itemRepo, eventRepo, resolver, validate, logr,
		service.WithApprovalCache(cacheSvc, cfg.Approvals.RollupCacheTTL),
		service.WithApprovalMetrics(metrics),
		service.WithTransitionDispatcher(dispatcher),
		service.WithObjectiveGenerator(generation),
		service.WithAutoApproveSubmitter(cfg.Approvals.AutoApproveSubmitter),
	)
	dispatcher.Register(models.ItemKindObjective, models.ApprovalStatusApproved,
		service.NewRubricGenerationReaction(itemRepo, generation, approvalSvc, logr))

	exportSvc := service.NewHistoryExportService(approvalSvc, export.NewCSVExporter(), export.NewPDFExporter(), logr)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	queue.Start(ctx)
	defer queue.Stop()

	approvalHandler := handler.NewApprovalHandler(approvalSvc, exportSvc)
	skillHandler := handler.NewSkillHandler(approvalSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.DependencyCheck{
		"postgres": db.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	approvals := api.Group("/approvals")
	approvals.Use(middleware.JWT(tokens), middleware.WithResponseMeta())
	{
		items := approvals.Group("/items")
		items.POST("/batch/decision", approvalHandler.DecideBatch)
		items.POST("/batch/description", approvalHandler.EditBatch)
		items.POST("/:id/submit", approvalHandler.Submit)
		items.POST("/:id/decision", approvalHandler.Decide)
		items.PUT("/:id/description", approvalHandler.Edit)
		items.POST("/:id/reopen",
			middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleCoordinator),
			approvalHandler.Reopen)
		items.GET("/:id/status", approvalHandler.Status)
		items.GET("/:id/history", approvalHandler.History)
		items.GET("/:id/history/export", approvalHandler.ExportHistory)

		approvals.GET("/skills/rollup", skillHandler.Rollup)
		approvals.POST("/skills/objectives/generate", skillHandler.GenerateObjectives)
		approvals.GET("/objectives/:id/rubrics", skillHandler.Rubrics)
		approvals.GET("/objectives/:id/rubric-generation", skillHandler.GenerationStatus)
	}

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

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
