// Package server is the admin HTTP surface: health, metrics, message reads
// and transcription enqueueing.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"voxflow/internal/api/errors"
	"voxflow/internal/api/middleware"
	"voxflow/internal/app/model"
	"voxflow/internal/app/queue"
)

// Config represents API server configuration
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Environment  string
}

// MessageReader loads messages for the read and enqueue routes.
type MessageReader interface {
	GetMessage(ctx context.Context, id string) (*model.Message, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the routes need.
type Deps struct {
	Messages MessageReader
	Enqueuer queue.Enqueuer
	Checks   map[string]HealthCheck
	Gatherer prometheus.Gatherer
}

// Server represents the API server
type Server struct {
	config     Config
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{config: config, deps: deps, logger: logger}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		v1.GET("/messages/:id", s.getMessage)
		v1.POST("/messages/:id/transcribe", s.enqueueTranscribe)
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Start serves in the background. A listen failure is logged; callers
// watch the returned channel to learn about it.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	s.logger.Info("Starting API server", zap.String("addr", s.config.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	return nil
}

// Router returns the Gin router (useful for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) loadMessage(c *gin.Context) (*model.Message, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		middleware.HandleError(c, errors.NewBadRequestError("message id must be a UUID"), "message")
		return nil, false
	}
	msg, err := s.deps.Messages.GetMessage(c.Request.Context(), id)
	if err != nil {
		middleware.HandleError(c, err, "message")
		return nil, false
	}
	return msg, true
}

func (s *Server) getMessage(c *gin.Context) {
	msg, ok := s.loadMessage(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, msg)
}

type transcribeQuery struct {
	Force bool `form:"force"`
}

func (s *Server) enqueueTranscribe(c *gin.Context) {
	var q transcribeQuery
	if err := middleware.ValidateQuery(c, &q); err != nil {
		middleware.HandleError(c, err, "message")
		return
	}
	msg, ok := s.loadMessage(c)
	if !ok {
		return
	}

	job := model.TranscribeJob{MessageID: msg.ID, SessionID: msg.SessionID, Force: q.Force}
	if err := queue.EnqueueTranscribe(c.Request.Context(), s.deps.Enqueuer, job); err != nil {
		s.logger.Error("Failed to enqueue transcription", zap.String("message_id", msg.ID), zap.Error(err))
		middleware.HandleError(c, errors.NewServiceUnavailableError("failed to enqueue job"), "message")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message_id": msg.ID,
		"dedup_key":  job.DedupKey(),
		"force":      q.Force,
		"queued":     true,
	})
}
