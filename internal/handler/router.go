package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/slw-proton/litellm-adpter-dify/internal/config"
	"github.com/slw-proton/litellm-adpter-dify/internal/metrics"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// Handlers 路由需要的全部处理器，Business / Runs / Health 可为空
type Handlers struct {
	OpenAI   *OpenAIHandler
	Business *BusinessHandler
	Runs     *RunHandler
	Health   *HealthHandler
}

func NewRouter(cfg config.Config, h Handlers) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger())

	if len(cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     cfg.CORS.AllowedMethods,
			AllowHeaders:     cfg.CORS.AllowedHeaders,
			ExposeHeaders:    cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
		}))
	}

	// 健康检查
	if h.Health == nil {
		h.Health = NewHealthHandler(nil, cfg.Chat.Backend)
	}
	router.GET("/health", h.Health.Health)

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(metrics.Handler()))
	}

	// OpenAI 兼容接口，带与不带 /v1 前缀都可访问
	for _, prefix := range []string{"/v1", ""} {
		g := router.Group(prefix)
		g.POST("/chat/completions", h.OpenAI.ChatCompletions)
		g.POST("/images/generations", h.OpenAI.ImageGenerations)
	}
	router.GET("/v1/models", h.OpenAI.Models)

	api := router.Group("/api")
	{
		if h.Business != nil {
			api.POST("/process", h.Business.Process)
			router.GET("/models", h.Business.Models)
		}
		if h.Runs != nil {
			api.GET("/runs", h.Runs.List)
			api.GET("/runs/:run_id", h.Runs.Get)
		}
	}

	return router
}

// requestID 沿用调用方的 X-Request-ID，没有则生成
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logger.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		}).Info("request")
	}
}
