// Package api assembles the HTTP server: gin engine, middleware stack, and
// the downstream route table.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/tanaikit/pool2api/internal/api/handlers"
	"github.com/tanaikit/pool2api/internal/api/middleware"
	"github.com/tanaikit/pool2api/internal/config"
	"github.com/tanaikit/pool2api/internal/constant"
	"github.com/tanaikit/pool2api/internal/logging"
	"github.com/tanaikit/pool2api/internal/quota"
	"github.com/tanaikit/pool2api/internal/usage"

	// Downstream format packages register themselves with the translator.
	_ "github.com/tanaikit/pool2api/internal/translator/claude"
	_ "github.com/tanaikit/pool2api/internal/translator/gemini"
	_ "github.com/tanaikit/pool2api/internal/translator/openai"
)

// Server is the downstream HTTP surface.
type Server struct {
	engine *gin.Engine
	server *http.Server
}

// NewServer wires the middleware stack and routes.
func NewServer(cfg *config.Config, h *handlers.Handler, finder middleware.KeyFinder, enforcer *quota.Enforcer) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(corsMiddleware())
	engine.Use(middleware.RequestID())

	s := &Server{
		engine: engine,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: engine,
		},
	}
	s.setupRoutes(h, finder, enforcer)
	return s
}

func (s *Server) setupRoutes(h *handlers.Handler, finder middleware.KeyFinder, enforcer *quota.Enforcer) {
	s.engine.GET("/health", h.Health)

	authed := s.engine.Group("/")
	authed.Use(middleware.APIKeyAuth(finder))
	authed.GET("/v1/models", h.Models)

	chat := authed.Group("/")
	chat.Use(middleware.QuotaAdmission(enforcer))
	chat.POST("/v1/messages", h.Chat(constant.Claude, ""))
	chat.POST("/v1/chat/completions", h.Chat(constant.OpenAI, ""))
	chat.POST("/gemini-antigravity/v1/messages", h.Chat(constant.Claude, constant.ProviderAntigravity))
	chat.POST("/orchids/v1/messages", h.Chat(constant.Claude, constant.ProviderOrchids))
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	log.Infof("listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// UsageStats exposes the bbolt day/model counters on a management route.
// Registered separately so deployments can keep it off entirely.
func (s *Server) UsageStats(stats *usage.Stats, finder middleware.KeyFinder) {
	group := s.engine.Group("/v1/usage")
	group.Use(middleware.APIKeyAuth(finder))
	group.GET("/daily/:day", func(c *gin.Context) {
		rows, err := stats.Snapshot(c.Param("day"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"type": "api_error", "message": "statistics unavailable"},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": rows})
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, Model-Provider, X-Request-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
