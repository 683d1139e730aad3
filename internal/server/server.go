// Package server provides the HTTP server for the mudra practice loop.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/auth"
	"github.com/ayusman/mudra/internal/detect"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/vocab"
)

const shutdownTimeout = 5 * time.Second

// Config holds the server configuration. Routes are registered only for the
// collaborators that are set.
type Config struct {
	StaticDir  string
	Store      *store.Store
	App        *app.App
	Detector   detect.Detector
	Vocabulary vocab.Source
	// Resolver maps bearer tokens to learners; nil serves everyone anonymously.
	Resolver  auth.Resolver
	Threshold float64
	Logger    *zap.SugaredLogger
}

// Server represents the HTTP server for the mudra application.
type Server struct {
	config Config
	engine *gin.Engine
	start  time.Time
	logger *zap.SugaredLogger

	// ctx outlives requests and bounds camera runs started over HTTP.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.App != nil {
		if config.Detector == nil {
			config.Detector = config.App.Detector()
		}
		if config.Vocabulary == nil {
			config.Vocabulary = config.App.Vocabulary()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		engine: gin.New(),
		start:  time.Now(),
		logger: config.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.engine.HandleMethodNotAllowed = true
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.engine.Group("/api")
	r.GET("/health", s.handleHealth)

	if s.config.Resolver != nil {
		r = r.Group("", auth.Middleware(s.config.Resolver, s.logger))
	}

	if s.config.Vocabulary != nil {
		h := api.NewVocabularyHandler(s.config.Vocabulary, s.logger)
		r.GET("/vocabulary", h.List)
		r.GET("/vocabulary/:classId", h.Get)
	}

	if s.config.Detector != nil {
		h := api.NewDetectionHandler(s.config.Detector, s.config.Vocabulary, s.config.Threshold, s.logger)
		r.POST("/detection/detect", h.Detect)
		r.GET("/detection/health", h.Health)
		r.GET("/detection/classes", h.Classes)
	}

	if s.config.Store != nil && s.config.Resolver != nil {
		sessions := api.NewSessionsHandler(s.config.Store, s.logger)
		progress := api.NewProgressHandler(s.config.Store, s.logger)

		user := r.Group("", auth.Required())
		user.GET("/progress", progress.List)
		user.GET("/progress/:signId", progress.Get)
		user.POST("/progress", progress.Record)
		user.GET("/sessions", sessions.List)
		user.POST("/sessions", sessions.Create)
		user.POST("/sessions/:id/complete", sessions.Complete)
	}

	if a := s.config.App; a != nil {
		h := api.NewPracticeHandler(s.ctx, a, s.logger)
		r.POST("/practice/start", h.Start)
		r.POST("/practice/stop", h.Stop)
		r.POST("/practice/skip", h.Skip)
		r.POST("/practice/exit", h.Exit)
		r.GET("/practice/state", h.State)

		r.GET("/stream", NewStreamHandler(s.ctx, a.Surface()).Serve)
		r.GET("/events", NewEventsHandler(s.ctx, a, s.logger).Serve)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		s.engine.NoRoute(gin.WrapH(http.FileServer(http.Dir(s.config.StaticDir))))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if a := s.config.App; a != nil {
		resp["streaming"] = a.State().Streaming
	}
	c.JSON(http.StatusOK, resp)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Long-lived streams end when the base context is cancelled.
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Infow("http server stopped")
	return nil
}

// Close ends open streams and stops camera runs started over HTTP.
func (s *Server) Close() {
	s.cancel()
}

func requestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
