package http_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
)

// HTTPServer serves health, status and metrics endpoints
type HTTPServer struct {
	logger *logger.Logger

	router *gin.Engine
	port   int

	// server is the underlying HTTP server
	server *http.Server

	app      models.MintViewerI
	gatherer prometheus.Gatherer
}

var _ models.APIServer = (*HTTPServer)(nil)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// NewHTTPServer creates a new HTTP server instance. gatherer may be nil, in
// which case the default Prometheus registry is exposed.
func NewHTTPServer(app models.MintViewerI, gatherer prometheus.Gatherer, port int, logger *logger.Logger) *HTTPServer {
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	server := &HTTPServer{
		router:   router,
		port:     port,
		app:      app,
		gatherer: gatherer,
		logger:   logger,
	}

	server.routes()
	server.server = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%v", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server
}

// Start blocks serving HTTP until Shutdown is called. Calling Shutdown first
// makes Start return immediately.
func (s *HTTPServer) Start() {
	s.logger.Infow("Starting HTTP server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Errorw("HTTP server stopped", "error", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}
