package http_api

import (
	"github.com/gin-gonic/gin"

	"github.com/core-coin/mintviewer/internal/metrics"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/api/v1/status", s.status)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler(s.gatherer)))
}
