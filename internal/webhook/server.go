package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server hosts the webhook endpoint plus the health and metrics surface.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	logger     *zap.Logger
	pinger     Pinger
}

// NewServer creates the webhook HTTP server.
func NewServer(port int, handler *Handler, pinger Pinger, metricsEnabled bool, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	server := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      engine,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		engine: engine,
		logger: logger,
		pinger: pinger,
	}

	engine.GET("/health", server.handleHealth)
	engine.GET("/ready", server.handleReady)
	if metricsEnabled {
		logger.Info("Registering /metrics endpoint")
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	engine.POST("/webhook", handler.HandleWebhook)

	return server
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting webhook server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Webhook server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping webhook server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// handleReady is the readiness probe; it checks the backing store.
func (s *Server) handleReady(c *gin.Context) {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			s.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_READY", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "READY",
		"timestamp": utils.FormatISO8601(utils.Now()),
	})
}
