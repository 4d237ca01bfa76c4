package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/scripthost/backend/internal/api/http"
	"github.com/GriffinCanCode/scripthost/backend/internal/api/middleware"
	"github.com/GriffinCanCode/scripthost/backend/internal/config"
	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scripthost/backend/internal/supervisor"
	"github.com/GriffinCanCode/scripthost/backend/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	sup     *supervisor.Supervisor
	logger  *zap.Logger
	config  config.Config
	metrics *monitoring.Metrics
	http    *http.Server
}

// New creates a new server instance
func New(cfg config.Config, logger *zap.Logger, metrics *monitoring.Metrics) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	logger.Info("Initializing script host",
		zap.String("port", cfg.Server.Port),
		zap.Int("max_contexts", cfg.Sandbox.MaxContexts),
		zap.Duration("timeout", cfg.Sandbox.Timeout),
		zap.Bool("fetch", cfg.Fetch.Enabled),
	)

	sup, err := supervisor.New(cfg, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor: %w", err)
	}
	logger.Info("Host methods registered", zap.Int("count", len(sup.Registry().List())))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	var guard []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		guard = append(guard, middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(sup, metrics, logger)
	handlers.Register(router, guard...)

	wsHandler := ws.NewHandler(sup, metrics, logger)
	router.GET("/contexts/:id/stream", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		sup:     sup,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		http: &http.Server{
			Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// Close tears down every execution context
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	s.sup.Close()
	_ = s.logger.Sync()
	return nil
}
