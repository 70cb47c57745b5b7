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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/qr-attendance-api/api/swagger"
	"github.com/noah-isme/qr-attendance-api/internal/attendance"
	"github.com/noah-isme/qr-attendance-api/internal/handler"
	internalmiddleware "github.com/noah-isme/qr-attendance-api/internal/middleware"
	"github.com/noah-isme/qr-attendance-api/internal/models"
	"github.com/noah-isme/qr-attendance-api/internal/repository"
	"github.com/noah-isme/qr-attendance-api/internal/service"
	"github.com/noah-isme/qr-attendance-api/pkg/cache"
	"github.com/noah-isme/qr-attendance-api/pkg/config"
	"github.com/noah-isme/qr-attendance-api/pkg/database"
	"github.com/noah-isme/qr-attendance-api/pkg/export"
	"github.com/noah-isme/qr-attendance-api/pkg/jobs"
	"github.com/noah-isme/qr-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/qr-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/qr-attendance-api/pkg/middleware/requestid"
	"github.com/noah-isme/qr-attendance-api/pkg/storage"
)

// @title QR Attendance API
// @version 1.0.0
// @description QR classroom attendance verification and reporting
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CountByRole(ctx context.Context) (*models.UserCounts, error)
	CreateLoginAudit(ctx context.Context, audit *models.LoginAudit) error
	CloseLoginAudit(ctx context.Context, id, userID string, logoutAt time.Time) error
}

type courseStore interface {
	attendance.CourseReader
	Count(ctx context.Context) (int, error)
}

type sessionStore interface {
	attendance.Store
	CreateSession(ctx context.Context, session *models.AttendanceSession) error
	FindSession(ctx context.Context, id string) (*models.AttendanceSession, error)
	CountSessions(ctx context.Context) (int, error)
}

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type stores struct {
	users    userStore
	courses  courseStore
	sessions sessionStore
	exports  exportJobStore
	db       *sqlx.DB
}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		logr.Fatal("failed to open store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	if st.db != nil {
		defer st.db.Close() //nolint:errcheck
	}

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer client.Close() //nolint:errcheck
		redisClient = client
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	var rateCounter internalmiddleware.WindowCounter = repository.NewMemoryWindowCounter()
	if redisClient != nil {
		rateCounter = cacheRepo
	}

	authSvc := service.NewAuthService(st.users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	scanSvc := service.NewScanService(st.courses, st.sessions, metricsSvc, validate, logr)
	sessionSvc := service.NewSessionService(st.courses, st.sessions, export.NewQRExporter(cfg.QR.ImageSize), validate, logr, service.SessionServiceConfig{
		TokenTTL:      cfg.QR.TokenTTL,
		ImageSize:     cfg.QR.ImageSize,
		APIPrefix:     cfg.APIPrefix,
		PublicBaseURL: cfg.QR.PublicBaseURL,
	}).WithCache(cacheSvc)
	reportSvc := service.NewReportService(st.courses, st.sessions, export.NewPDFExporter(), metricsSvc, logr, service.ReportServiceConfig{
		Location:     cfg.Report.Location,
		FetchTimeout: cfg.Report.FetchTimeout,
		TrendPoints:  cfg.Report.TrendPoints,
	})
	dashboardSvc := service.NewDashboardService(st.users, st.courses, st.sessions, cacheSvc, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})

	var exportJobs *service.ExportJobService
	if cfg.Exports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare export storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc := service.NewExportService(reportSvc, files, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr)
		worker := service.NewExportWorker(st.exports, exportSvc, metricsSvc, logr)
		queue := jobs.NewQueue("attendance-exports", worker.Handle, jobs.QueueConfig{
			Workers:       cfg.Exports.WorkerConcurrency,
			MaxRetries:    cfg.Exports.WorkerRetries,
			RetryDelay:    2 * time.Second,
			MaxRetryDelay: time.Minute,
			OnGiveUp:      worker.GiveUp,
			Logger:        logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		exportJobs = service.NewExportJobService(st.exports, st.courses, queue, exportSvc, validate, logr, service.ExportJobConfig{
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		})
		exportJobs.RecoverPendingJobs(ctx)
		exportJobs.StartCleanup(ctx)
	}

	checks := map[string]handler.Pinger{}
	if st.db != nil {
		checks["database"] = handler.PingFunc(st.db.PingContext)
	}
	if redisClient != nil {
		checks["redis"] = cacheRepo
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	reportHandler := handler.NewReportHandler(reportSvc, nil)
	if exportJobs != nil {
		reportHandler = handler.NewReportHandler(reportSvc, exportJobs)
	}
	authHandler := handler.NewAuthHandler(authSvc)
	attendanceHandler := handler.NewAttendanceHandler(scanSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)

	jwt := internalmiddleware.JWT(authSvc)
	staff := internalmiddleware.RequireRoles(models.RoleLecturer, models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/export/:token", reportHandler.Download)

	secured := api.Group("")
	secured.Use(jwt)
	secured.POST("/auth/logout", authHandler.Logout)
	secured.GET("/auth/me", authHandler.Me)
	secured.POST("/attendance/scan",
		internalmiddleware.RequireRoles(models.RoleStudent),
		internalmiddleware.RateLimit("scan", rateCounter, cfg.Scan.RateLimit, cfg.Scan.RateWindow, metricsSvc, logr),
		attendanceHandler.Scan,
	)

	lecturer := secured.Group("")
	lecturer.Use(staff)
	lecturer.POST("/courses/:id/sessions", sessionHandler.Issue)
	lecturer.GET("/courses/:id/sessions", sessionHandler.List)
	lecturer.GET("/sessions/:id/qr.png", sessionHandler.QRImage)
	lecturer.GET("/reports/courses/:id", reportHandler.CourseReport)
	lecturer.GET("/reports/courses/:id/csv", reportHandler.CourseCSV)
	lecturer.GET("/reports/courses/:id/pdf", reportHandler.CoursePDF)
	lecturer.POST("/reports/courses/:id/exports", reportHandler.CreateExport)
	lecturer.GET("/reports/exports/:id", reportHandler.ExportStatus)

	if cfg.Dashboard.Enabled {
		secured.GET("/dashboard", internalmiddleware.RequireRoles(models.RoleAdmin), dashboardHandler.Admin)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Store.Backend == config.StoreBackendMemory {
		mem := repository.NewMemoryStore()
		if cfg.Store.SeedFile != "" {
			if err := mem.LoadSeedFile(cfg.Store.SeedFile); err != nil {
				return nil, err
			}
		}
		return &stores{
			users:    mem,
			courses:  mem,
			sessions: mem,
			exports:  repository.NewMemoryExportJobRepository(),
		}, nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return &stores{
		users:    repository.NewUserRepository(db),
		courses:  repository.NewCourseRepository(db),
		sessions: repository.NewAttendanceRepository(db),
		exports:  repository.NewExportJobRepository(db),
		db:       db,
	}, nil
}
