package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/amandeep2102/vision-chat/backend/cache"
	"github.com/amandeep2102/vision-chat/backend/inference"
	"github.com/amandeep2102/vision-chat/backend/logger"
	"github.com/amandeep2102/vision-chat/backend/processor"
	"github.com/amandeep2102/vision-chat/backend/worker"
)

const shutdownTimeout = 5 * time.Second

// ServerConfig describes the HTTP server's collaborators.
type ServerConfig struct {
	Addr          string
	ModelName     string
	MaxImageBytes int64
	Store         *cache.ImageStore
	Normalizer    *processor.Normalizer
	Invoker       *inference.Invoker
	Pool          *worker.Pool
}

type Server struct {
	cfg    ServerConfig
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil || cfg.Normalizer == nil || cfg.Invoker == nil || cfg.Pool == nil {
		return nil, errors.New("api server requires store, normalizer, invoker and pool")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = processor.DefaultMaxImageBytes
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), cors.Default())

	s := &Server{cfg: cfg, router: router}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.POST("/upload-image", s.handleUploadImage)
	api.GET("/images/:id", s.handleGetImage)
	api.POST("/chat", s.handleChat)
	api.GET("/stats", s.handleStats)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Name() string { return "http-server" }

func (s *Server) Run(ctx context.Context) error {
	return s.Start(ctx)
}

// Start serves HTTP until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[HTTP] listening on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.Infof("[HTTP] %s %s status=%d ip=%s dur=%s",
			c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
