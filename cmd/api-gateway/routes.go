package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-hours-api/internal/handler"
	"github.com/noah-isme/activity-hours-api/internal/middleware"
	"github.com/noah-isme/activity-hours-api/internal/models"
	"github.com/noah-isme/activity-hours-api/internal/service"
	"github.com/noah-isme/activity-hours-api/pkg/config"
	"github.com/noah-isme/activity-hours-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/activity-hours-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/activity-hours-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth           middleware.TokenValidator
	metrics        *service.MetricsService
	authHandler    *handler.AuthHandler
	activities     *handler.ActivityHandler
	quotaHandler   *handler.QuotaCategoryHandler
	students       *handler.StudentHandler
	metricsHandler *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.metricsHandler.Health)
	r.GET("/ready", deps.metricsHandler.Ready)
	r.GET("/metrics", deps.metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	api.POST("/auth/login", deps.authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.auth))

	student := middleware.RequireRoles(models.RoleStudent)
	coordinator := middleware.RequireRoles(models.RoleCoordinator)
	staff := middleware.RequireRoles(models.RoleCoordinator, models.RoleManager)

	activities := secured.Group("/activities")
	activities.GET("", student, deps.activities.ListMine)
	activities.POST("", student, deps.activities.Create)
	activities.PATCH("/:id", student, deps.activities.Update)
	activities.DELETE("/:id", middleware.RequireRoles(models.RoleStudent, models.RoleManager), deps.activities.Delete)
	activities.POST("/:id/admission", coordinator, deps.activities.Admit)

	secured.GET("/courses/:courseId/pending-activities", staff, deps.activities.PendingForCourse)

	studentOwner := middleware.RBAC(middleware.SelfStudent, string(models.RoleCoordinator), string(models.RoleManager))
	students := secured.Group("/students/:id")
	students.GET("/hours", studentOwner, deps.students.Hours)
	students.GET("/report", studentOwner, deps.students.Report)

	quota := secured.Group("/quota-categories")
	quota.GET("", staff, deps.quotaHandler.List)
	quota.POST("", staff, deps.quotaHandler.Create)

	secured.POST("/terms/:id/quota-categories/copy", middleware.RequireRoles(models.RoleManager), deps.quotaHandler.CopyFromTerm)

	return r
}
