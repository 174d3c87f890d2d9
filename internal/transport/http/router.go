package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lastmail/backend/internal/config"
	"lastmail/backend/internal/health"
	"lastmail/backend/internal/middleware"
	"lastmail/backend/internal/monitoring"
	"lastmail/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config       *config.Config
	EmailService EmailFinder
	Catalog      *service.Catalog
	Metrics      *monitoring.Metrics
	Health       *health.Checker    // 为空时不注册 /health/live 与 /health/ready
	Limiter      middleware.Limiter // 为空时不限流
	Logger       *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log.Named("http"))
	router.Use(middleware.RequestID())
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(log.Named("http")))
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.SecurityHeaders())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Accept", middleware.APIKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Retry-After",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			middleware.RequestIDHeader,
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 健康检查与指标
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if deps.Health != nil {
		healthHandler := gin.WrapH(http.StripPrefix("/health", deps.Health.Handler()))
		router.GET("/health/live", healthHandler)
		router.GET("/health/ready", healthHandler)
	}
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	emailHandler := NewEmailHandler(deps.EmailService, deps.Catalog, deps.Config.Mailbox.AllowedDomains)
	apiKeyAuth := middleware.NewAPIKeyAuth(deps.Config.Auth.APIKeys)

	api := router.Group("/api")
	api.Use(apiKeyAuth.RequireAPIKey())
	{
		api.GET("/services", emailHandler.ListServices)

		email := api.Group("/email")
		if deps.Limiter != nil {
			email.Use(middleware.RateLimit(deps.Limiter, deps.Metrics, log.Named("ratelimit")))
		}
		email.GET("/last", emailHandler.GetLastEmail)
		email.GET("/last-any", emailHandler.GetLastEmailAny)
	}

	router.NoRoute(func(c *gin.Context) {
		NotFound(c, "接口不存在")
	})

	return router
}
