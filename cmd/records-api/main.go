package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/scholaris/records-api/api/swagger"
	"github.com/scholaris/records-api/internal/handler"
	"github.com/scholaris/records-api/internal/middleware"
	"github.com/scholaris/records-api/internal/repository"
	"github.com/scholaris/records-api/internal/service"
	"github.com/scholaris/records-api/pkg/cache"
	"github.com/scholaris/records-api/pkg/config"
	"github.com/scholaris/records-api/pkg/database"
	"github.com/scholaris/records-api/pkg/events"
	"github.com/scholaris/records-api/pkg/logger"
	corsmiddleware "github.com/scholaris/records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/scholaris/records-api/pkg/middleware/requestid"
)

// @title Scholaris Records API
// @version 1.0.0
// @description Assignment and schedule consistency engine for institutional records.
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, running without response cache", "error", err)
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	emitter := events.NewEmitter()
	emitter.Subscribe(func(e events.Event) {
		fields := make([]zap.Field, 0, len(e.Fields)+1)
		for k, v := range e.Fields {
			fields = append(fields, zap.Any(k, v))
		}
		logr.Info("engine event: "+e.Name, fields...)
	})

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	writer := repository.NewStoreWriter(db, logr)
	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db, writer)
	sectionRepo := repository.NewSectionRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	teacherAssignmentRepo := repository.NewTeacherAssignmentRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db, writer)
	roomRepo := repository.NewRoomRepository(db)
	studyLoadRepo := repository.NewStudyLoadRepository(db)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	assignmentSvc := service.NewAssignmentService(assignmentRepo, sectionRepo, studyLoadRepo,
		emitter, metricsSvc, cfg.Academics.ActiveSchoolYear, cfg.Academics.AssignmentFetchLimit, nil, logr)
	studyLoadSvc := service.NewStudyLoadService(studyLoadRepo, subjectRepo, assignmentSvc,
		cacheSvc, emitter, cfg.Academics.ActiveSchoolYear, nil, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, subjectRepo, sectionRepo,
		teacherAssignmentRepo, roomRepo, studyLoadSvc, cacheSvc, emitter, metricsSvc,
		cfg.Academics.ActiveSchoolYear, cfg.Academics.DefaultBuildingFloors, cfg.Academics.DefaultRoomsPerFloor, nil, logr)
	sectionSvc := service.NewSectionService(sectionRepo, cfg.Academics.ActiveSchoolYear, nil, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	studyLoadHandler := handler.NewStudyLoadHandler(studyLoadSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/metrics/status", metricsHandler.Status)

	authed.GET("/students/:id/assignment", middleware.RBAC("admin", "registrar", "teacher", "SELF"), assignmentHandler.ResolveActive)
	authed.GET("/students/:id/assignments", middleware.RBAC("admin", "registrar", "SELF"), assignmentHandler.ListByStudent)
	authed.GET("/students/:id/study-load", middleware.RBAC("admin", "registrar", "teacher", "SELF"), studyLoadHandler.ListByStudent)

	authed.GET("/assignments", middleware.RBAC("admin", "registrar"), assignmentHandler.List)
	authed.POST("/assignments", middleware.RBAC("admin", "registrar"), assignmentHandler.Enroll)
	authed.PATCH("/assignments/:id/status", middleware.RBAC("admin", "registrar"), assignmentHandler.UpdateStatus)
	authed.DELETE("/assignments/:id", middleware.RBAC("admin"), assignmentHandler.Delete)

	authed.GET("/schedules", scheduleHandler.List)
	authed.GET("/schedules/:id", scheduleHandler.Get)
	authed.POST("/schedules", middleware.RBAC("admin", "registrar"), scheduleHandler.Create)
	authed.DELETE("/schedules/:id", middleware.RBAC("admin", "registrar"), scheduleHandler.Delete)

	authed.GET("/sections", sectionHandler.List)
	authed.GET("/sections/:id", sectionHandler.Get)
	authed.GET("/sections/:id/study-load", studyLoadHandler.ListBySection)
	authed.POST("/sections", middleware.RBAC("admin", "registrar"), sectionHandler.Create)
	authed.PUT("/sections/:id", middleware.RBAC("admin", "registrar"), sectionHandler.Update)

	authed.GET("/subjects", subjectHandler.List)
	authed.GET("/subjects/:id", subjectHandler.Get)
	authed.POST("/subjects", middleware.RBAC("admin", "registrar"), subjectHandler.Create)
	authed.PUT("/subjects/:id", middleware.RBAC("admin", "registrar"), subjectHandler.Update)
	authed.DELETE("/subjects/:id", middleware.RBAC("admin"), subjectHandler.Delete)

	authed.POST("/study-loads/custom", middleware.RBAC("admin", "registrar"), studyLoadHandler.AddCustom)
	authed.DELETE("/study-loads/custom/:id", middleware.RBAC("admin", "registrar"), studyLoadHandler.RemoveCustom)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env,
		"school_year", cfg.Academics.ActiveSchoolYear)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
