package main

import (
	"context"
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

	_ "github.com/noah-isme/school-ops-api/api/swagger"
	"github.com/noah-isme/school-ops-api/internal/handler"
	"github.com/noah-isme/school-ops-api/internal/middleware"
	"github.com/noah-isme/school-ops-api/internal/repository"
	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/cache"
	"github.com/noah-isme/school-ops-api/pkg/config"
	"github.com/noah-isme/school-ops-api/pkg/database"
	"github.com/noah-isme/school-ops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-ops-api/pkg/middleware/requestid"
)

// @title School Ops Schedule Service
// @version 1.0.0
// @description Schedule catalog, cover assignments, and duty rosters.
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(cfg.JWT, logr)

	// Redis is optional: roster and availability reads fall through to
	// the store when it is unreachable.
	var cacheSvc *service.CacheService
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, response caching disabled", "error", err)
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Catalog.CacheTTL, logr, false)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, true)
		defer cacheRepo.Close()
	}

	teacherRepo := repository.NewTeacherRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	recordRepo := repository.NewLeaveRecordRepository(db)
	coverRepo := repository.NewCoverRepository(db)
	dutyRepo := repository.NewDutyRepository(db)
	podRepo := repository.NewPodDutyRepository(db)
	studentRepo := repository.NewStudentRepository(db)

	catalogSvc := service.NewCatalogService(scheduleRepo, teacherRepo, logr)
	if tenants, err := teacherRepo.ListTenants(ctx); err != nil {
		logr.Sugar().Warnw("tenant listing failed, catalog builds on demand", "error", err)
	} else {
		for _, tenant := range tenants {
			if err := catalogSvc.Refresh(ctx, tenant); err != nil {
				logr.Sugar().Warnw("catalog boot refresh failed", "tenant_id", tenant, "error", err)
			}
		}
	}
	availability := service.NewAvailabilityClient(cfg.Duty, logr)
	coverSvc := service.NewCoverService(coverRepo, recordRepo, catalogSvc, cfg.Covers, metricsSvc, logr)
	ingressSvc := service.NewIngressService(recordRepo, coverSvc, cfg.Covers, logr)
	dutySvc := service.NewDutyService(dutyRepo, teacherRepo, validate, logr)
	podSvc := service.NewPodDutyService(podRepo, teacherRepo, catalogSvc, availability, cfg.Covers.ExcludedSlugs, validate, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, teacherRepo, catalogSvc, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)

	coverHandler := handler.NewCoverHandler(coverSvc)
	dutyHandler := handler.NewDutyHandler(dutySvc)
	podHandler := handler.NewPodDutyHandler(podSvc, cacheSvc)
	webhookHandler := handler.NewWebhookHandler(ingressSvc, metricsSvc, cfg.Ingress)
	catalogHandler := handler.NewCatalogHandler(catalogSvc, scheduleSvc, cacheSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	adminHandler := handler.NewAdminHandler(nil, nil, metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// The approval webhook authenticates with a shared secret header
	// rather than a JWT; the tenant rides in the path.
	r.POST("/external/tenants/:tenant/leave-approvals", webhookHandler.ReceiveLeaveApproval)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		api.GET("/covers", coverHandler.ListByDate)
		api.GET("/covers/export", coverHandler.Export)
		api.GET("/covers/orphans", coverHandler.Orphans)
		api.PATCH("/covers/:id", middleware.RequireSuperAdmin(), coverHandler.Edit)
		api.DELETE("/covers/:id", middleware.RequireSuperAdmin(), coverHandler.Delete)
		api.POST("/covers/backfill", middleware.RequireSuperAdmin(), coverHandler.Backfill)

		api.GET("/duty", dutyHandler.Roster)
		api.POST("/duty", middleware.RequireSuperAdmin(), dutyHandler.Assign)
		api.POST("/duty/:id/ack", dutyHandler.Acknowledge)
		api.DELETE("/duty/:id", middleware.RequireSuperAdmin(), dutyHandler.Remove)

		api.GET("/pod-duty", podHandler.Roster)
		api.GET("/pod-duty/candidates", podHandler.Candidates)
		api.PUT("/pod-duty/roster", middleware.RequireRosterEditor(), podHandler.SaveRoster)
		api.POST("/pod-duty/assignments", middleware.RequireRosterEditor(), podHandler.AssignSlot)
		api.POST("/pod-duty/:id/ack", podHandler.Acknowledge)
		api.DELETE("/pod-duty/:id", middleware.RequireRosterEditor(), podHandler.Remove)

		api.GET("/check-availability", catalogHandler.CheckAvailability)
		api.GET("/teachers/:id/schedule", catalogHandler.TeacherSchedule)
		api.PUT("/teachers/:id/schedule", middleware.RequireSuperAdmin(), catalogHandler.ImportSchedule)
		api.POST("/catalog/refresh", middleware.RequireSuperAdmin(), catalogHandler.Refresh)

		api.GET("/teachers", teacherHandler.List)
		api.GET("/teachers/:id", teacherHandler.Get)

		api.GET("/students", studentHandler.ListByGrade)
		api.GET("/students/:esis", studentHandler.Get)
		api.PUT("/students", middleware.RequireSuperAdmin(), studentHandler.Upsert)

		admin := api.Group("/admin", middleware.RequireSuperAdmin())
		{
			admin.GET("/metrics", adminHandler.Metrics)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
