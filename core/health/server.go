// Package health serves liveness, readiness, metrics and version endpoints.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/vcfbot/core/buildinfo"
	coreconfig "github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/logger"
)

const (
	readinessProbeTimeout = 5 * time.Second
	shutdownTimeout       = 5 * time.Second

	serviceName = "vcfbot"
)

// Telegram runtime states reported by /health.
const (
	TelegramNotInitialized = "not_initialized"
	TelegramRunning        = "running"
	TelegramStopped        = "stopped"
)

// Check is a named readiness check.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the health HTTP server.
type Server struct {
	engine  *gin.Engine
	checks  []Check
	started time.Time
	addr    string
	state   atomic.Value
}

// New builds the server and its routes.
func New(cfg coreconfig.HTTPConfig, checks ...Check) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:  gin.New(),
		checks:  checks,
		started: time.Now(),
		addr:    net.JoinHostPort(cfg.Listen, strconv.Itoa(cfg.Port)),
	}
	s.state.Store(TelegramNotInitialized)
	s.engine.Use(gin.Recovery(), requestLogger())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/health/live", s.handleLiveness)
	s.engine.GET("/health/ready", s.handleReadiness)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/version", s.handleVersion)
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SetTelegramState records the bot runtime state shown by /health.
func (s *Server) SetTelegramState(state string) {
	s.state.Store(state)
}

// TelegramState returns the recorded bot runtime state.
func (s *Server) TelegramState() string {
	v, _ := s.state.Load().(string)
	return v
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.HTTP.Info("health server listening",
		slog.String("event", "http.listen"),
		slog.String("addr", s.addr),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	state := s.TelegramState()
	bot := gin.H{"status": state}
	if state == TelegramNotInitialized {
		bot["reason"] = "Telegram bot initialization failed or has not finished"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"service":      serviceName,
		"version":      buildinfo.Version,
		"telegram_bot": bot,
	})
}

func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleReadiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessProbeTimeout)
	defer cancel()

	if state := s.TelegramState(); state != TelegramRunning {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "unhealthy",
			"failed_check": "telegram",
			"error":        "bot is " + state,
		})
		return
	}
	for _, hc := range s.checks {
		if err := hc.Check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":       "unhealthy",
				"failed_check": hc.Name,
				"error":        err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
		"date":    buildinfo.Date,
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.HTTP.Debug("request",
			slog.String("event", "http.request"),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status_code", c.Writer.Status()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
}
