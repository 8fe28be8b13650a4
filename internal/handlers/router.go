package handlers

import (
	"net/http"

	"smart-task-manager/internal/cache"
	"smart-task-manager/internal/config"
	"smart-task-manager/internal/middleware"
	"smart-task-manager/internal/monitoring"
	"smart-task-manager/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewRouter assembles the full HTTP surface: middleware stack, auth and
// task routes, and the operational endpoints.
func NewRouter(
	cfg *config.Config,
	db *gorm.DB,
	redisCache *cache.RedisCache,
	authService services.AuthService,
	taskService services.TaskService,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(monitoring.Middleware())
	router.Use(cors.Default())

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit)
		router.Use(limiter.Middleware())
	}

	authHandler := NewAuthHandler(db, authService, logger)
	userHandler := NewUserHandler(db, authService, logger)
	taskHandler := NewTaskHandler(db, taskService, logger)

	authMiddleware := middleware.AuthMiddleware(middleware.AuthConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	})

	router.GET("/", indexHandler)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
		}

		api.GET("/user/profile", authMiddleware, userHandler.Profile)

		tasks := api.Group("/tasks", authMiddleware)
		{
			tasks.GET("", taskHandler.List)
			tasks.POST("", taskHandler.Create)
			tasks.PUT("/:id", taskHandler.Update)
			tasks.DELETE("/:id", taskHandler.Delete)
		}

		api.GET("/health", monitoring.LivenessHandler())
	}

	router.GET("/healthz", monitoring.LivenessHandler())
	router.GET("/readyz", monitoring.ReadinessHandler(map[string]monitoring.CheckFunc{
		"database": func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
		"redis": redisCache.Health,
	}))
	router.GET("/metrics", monitoring.MetricsHandler())

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Route not found",
		})
	})

	return router
}

func indexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Smart Task Manager API",
		"version": "1.0.0",
		"endpoints": gin.H{
			"auth": gin.H{
				"signup":  "POST /api/auth/signup",
				"login":   "POST /api/auth/login",
				"refresh": "POST /api/auth/refresh",
				"logout":  "POST /api/auth/logout",
			},
			"user": gin.H{
				"profile": "GET /api/user/profile",
			},
			"tasks": gin.H{
				"getAll": "GET /api/tasks",
				"create": "POST /api/tasks",
				"update": "PUT /api/tasks/:id",
				"delete": "DELETE /api/tasks/:id",
			},
			"health": "GET /api/health",
		},
	})
}
