package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/mintviewer/internal/models"
)

// StatusResponse is the body of /api/v1/status
type StatusResponse struct {
	Stream        string               `json:"stream"`
	Subscriptions models.RegistryStats `json:"subscriptions"`
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// status reports the stream connection state and subscription counts.
func (s *HTTPServer) status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Stream:        s.app.StreamState(),
		Subscriptions: s.app.Stats(),
	})
}
