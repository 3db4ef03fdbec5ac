package server

import (
	"context"
	"net/http"
	"time"

	"doodle-duel/internal/config"
	"doodle-duel/internal/db"
	"doodle-duel/internal/game"
	"doodle-duel/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// HistoryReader serves archived events. The archive is optional.
type HistoryReader interface {
	History(ctx context.Context, roomID string, limit int) ([]db.Event, error)
	Rounds(ctx context.Context, roomID string) ([]db.RoundResult, error)
}

type Options struct {
	History  HistoryReader
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

type Server struct {
	manager  *game.Manager
	history  HistoryReader
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	limiter  *ipRateLimiter
	streams  *streamHub
}

func New(manager *game.Manager, cfg config.Config, opts Options) *Server {
	registerValidators()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	var limiter *ipRateLimiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = newIPRateLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	}
	return &Server{
		manager:  manager,
		history:  opts.History,
		cfg:      cfg,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		limiter:  limiter,
		streams:  newStreamHub(),
	}
}

func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	router.GET("/ws/rooms/:roomID", s.handleStream)

	api := router.Group("/api/rooms")
	api.POST("", s.rateLimit(), s.handleCreateRoom)
	api.GET("/:roomID", s.handleSnapshot)
	api.GET("/:roomID/results", s.handleResults)
	api.GET("/:roomID/events", s.handleEvents)
	api.GET("/:roomID/history", s.handleHistory)

	mutating := api.Group("/:roomID", s.rateLimit())
	mutating.POST("/join", s.handleJoin)
	mutating.POST("/leave", s.handleLeave)
	mutating.POST("/start", s.handleStart)
	mutating.POST("/drawings", s.handleSubmitDrawing)
	mutating.POST("/next", s.handleNextRound)
	mutating.POST("/heartbeat", s.handleHeartbeat)
	mutating.POST("/host", s.handleHandOverHost)

	return router
}

// CloseStreams disconnects every websocket stream.
func (s *Server) CloseStreams() {
	s.streams.CloseAll()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rooms":  len(s.manager.RoomIDs()),
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("request_id", requestID)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields...)
			return
		}
		s.logger.Debug("request served", fields...)
	}
}
