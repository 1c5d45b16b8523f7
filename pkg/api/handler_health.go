package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthEndpoint handles GET /health: database connectivity with pool stats
// plus a Redis round trip through the queue.
func (s *Server) HealthEndpoint(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "healthy"}

	db, err := s.store.Health(ctx)
	body["database"] = db
	if err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
	}

	if depths, err := s.queue.Depths(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["redis"] = gin.H{"status": "unhealthy", "error": err.Error()}
	} else {
		body["redis"] = gin.H{"status": "healthy", "queue_depths": depths}
	}

	c.JSON(status, body)
}
