// Package api assembles the relay's HTTP surface.
package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/workspace-chat/backend/api/handlers"
	"github.com/workspace-chat/backend/internal/metrics"
	"github.com/workspace-chat/backend/internal/repository"
	"github.com/workspace-chat/backend/internal/ws"
)

// Deps are the collaborators the relay's routes need.
type Deps struct {
	DB       *sql.DB
	WS       *ws.Service
	Limiter  *handlers.RateLimiter
	Metrics  *metrics.Relay
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter builds the relay's gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(d.Logger))

	// Enable CORS for development
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	repo := repository.NewMessageRepository(d.DB)
	messageHandler := handlers.NewMessageHandler(repo, d.WS, d.Limiter, d.Metrics, d.Logger)
	wsHandler := handlers.NewWebSocketHandler(d.WS.Handler(), d.Logger)

	api := r.Group("/api")
	api.Use(handlers.Identify())
	{
		messageHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}

	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID, X-User-Name")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
