package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/app"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	app       *app.App
	logger    *zap.Logger
	port      int
	token     string
	tokenFile string
	router    *gin.Engine
	startTime time.Time
}

type Option func(*Server)

// WithToken fixes the results token instead of generating one.
func WithToken(token string) Option {
	return func(s *Server) {
		if token != "" {
			s.token = token
		}
	}
}

// WithTokenFile makes Run write the token to path for the token command.
func WithTokenFile(path string) Option {
	return func(s *Server) {
		s.tokenFile = path
	}
}

func New(a *app.App, port int, opts ...Option) *Server {
	srv := &Server{
		app:       a,
		logger:    a.Logger,
		port:      port,
		token:     GenerateToken(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(srv.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(srv.logger, true))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))
	srv.router = router

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{})))
	s.router.POST("/b", s.handleBeacon)

	api := s.router.Group("/api")
	{
		api.GET("/tests", s.handleTests)
		api.POST("/assign", s.handleAssign)
		api.GET("/results/:test", s.authMiddleware(), s.handleResults)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", zap.String("path", s.tokenFile), zap.Error(err))
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("variant-goat listening",
			zap.Int("port", s.port),
			zap.String("results_url", fmt.Sprintf("http://localhost:%d/api/results/<test>?token=%s", s.port, s.token)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// GenerateToken returns a random hex token for the results endpoints.
func GenerateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(bytes)
}
