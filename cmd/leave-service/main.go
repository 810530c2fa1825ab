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
	"github.com/noah-isme/school-ops-api/pkg/config"
	"github.com/noah-isme/school-ops-api/pkg/database"
	"github.com/noah-isme/school-ops-api/pkg/jobs"
	"github.com/noah-isme/school-ops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-ops-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-ops-api/pkg/msgraph"
	"github.com/noah-isme/school-ops-api/pkg/storage"
)

// @title School Ops Leave Service
// @version 1.0.0
// @description Leave lifecycle, attachment archival, and staff directory.
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

	attachments, err := storage.NewAttachmentStore(cfg.Uploads.BaseDir, cfg.Uploads.MaxFileSizeBytes)
	if err != nil {
		logr.Sugar().Fatalw("failed to init attachment store", "error", err)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(cfg.JWT, logr)

	teacherRepo := repository.NewTeacherRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)

	// Graph integration is optional: without a client ID the mailer,
	// drive archival, and device flows stay disabled and every send or
	// archive becomes a no-op.
	var (
		tokens     *msgraph.TokenCache
		flows      *msgraph.DeviceFlowRegistry
		mailSvc    *service.MailService
		archiveSvc *service.ArchiveService
	)
	if cfg.Drive.ClientID != "" {
		tokens, err = msgraph.NewTokenCache(cfg.Drive.TokenCacheDir, cfg.Drive.TenantID, cfg.Drive.ClientID)
		if err != nil {
			logr.Sugar().Fatalw("failed to init graph token cache", "error", err)
		}
		flows = msgraph.NewDeviceFlowRegistry(tokens, logr)
		mailer := msgraph.NewMailer(tokens, cfg.Mail.SenderProfile, cfg.Mail.Timeout)
		drive := msgraph.NewDriveClient(tokens, cfg.Mail.SenderProfile, cfg.Drive.Timeout)
		mailSvc = service.NewMailService(mailer, cfg.Mail, logr)
		archiveSvc = service.NewArchiveService(drive, attachments, leaveRepo, cfg.Drive.RootFolder, cfg.Drive.ShareWith, logr)
	} else {
		logr.Warn("graph client not configured, mail and drive archival disabled")
		mailSvc = service.NewMailService(nil, cfg.Mail, logr)
	}

	var archiveQueue *jobs.Queue
	if archiveSvc != nil {
		archiveQueue = jobs.NewQueue("archive", func(ctx context.Context, job jobs.Job) error {
			payload, ok := job.Payload.(service.ArchiveJobPayload)
			if !ok {
				return fmt.Errorf("unexpected payload type %T", job.Payload)
			}
			leave, err := leaveRepo.FindByID(ctx, payload.TenantID, payload.LeaveID)
			if err != nil {
				return err
			}
			teacher, err := teacherRepo.FindByID(ctx, payload.TenantID, leave.TeacherID)
			if err != nil {
				return err
			}
			err = archiveSvc.Archive(ctx, teacher, leave)
			metricsSvc.RecordDriveUpload(err == nil)
			if err == nil {
				mailSvc.NotifyDriveChange(ctx, teacher, leave, leave.AttachmentExportPath)
			}
			return err
		}, jobs.QueueConfig{
			Workers:    2,
			MaxRetries: 3,
			RetryDelay: 30 * time.Second,
			Logger:     logr,
		})
		archiveQueue.Start(ctx)
		defer archiveQueue.Stop()
	}

	webhook := service.NewWebhookEmitter(cfg.LeaveWebhook, logr)

	var leaveSvc *service.LeaveService
	if archiveQueue != nil {
		leaveSvc = service.NewLeaveService(leaveRepo, teacherRepo, attachments, mailSvc, webhook, archiveQueue, validate, logr)
	} else {
		leaveSvc = service.NewLeaveService(leaveRepo, teacherRepo, attachments, mailSvc, webhook, nil, validate, logr)
	}
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)

	if cfg.Reminder.Enabled {
		reminder := service.NewReminderService(leaveRepo, teacherRepo, mailSvc, webhook, metricsSvc, cfg.Reminder.Interval, logr)
		go reminder.Run(ctx)
	}

	leaveHandler := handler.NewLeaveHandler(leaveSvc, metricsSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	adminHandler := handler.NewAdminHandler(flows, tokens, metricsSvc)

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

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		api.POST("/leaves", leaveHandler.Submit)
		api.GET("/leaves", leaveHandler.List)
		api.GET("/leaves/:id", leaveHandler.Get)
		api.POST("/leaves/:id/attachment", leaveHandler.UploadAttachment)
		api.POST("/leaves/:id/no-document", leaveHandler.AcknowledgeNoDocument)
		api.POST("/leaves/:id/review", middleware.RequireSuperAdmin(), leaveHandler.Review)
		api.POST("/leaves/:id/messages", leaveHandler.AddMessage)
		api.GET("/leaves/:id/messages", leaveHandler.Messages)

		api.GET("/teachers", teacherHandler.List)
		api.GET("/teachers/:id", teacherHandler.Get)
		api.POST("/teachers", middleware.RequireSuperAdmin(), teacherHandler.Create)
		api.PUT("/teachers/:id", middleware.RequireSuperAdmin(), teacherHandler.Update)
		api.DELETE("/teachers/:id", middleware.RequireSuperAdmin(), teacherHandler.Deactivate)

		admin := api.Group("/admin", middleware.RequireSuperAdmin())
		{
			admin.POST("/graph/device-flows", adminHandler.StartDeviceFlow)
			admin.GET("/graph/device-flows", adminHandler.ListDeviceFlows)
			admin.DELETE("/graph/device-flows", adminHandler.PurgeDeviceFlows)
			admin.GET("/graph/token", adminHandler.TokenStatus)
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
