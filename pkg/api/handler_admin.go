package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PurgeBody is the request body for POST /admin/purge.
type PurgeBody struct {
	Confirm string `json:"confirm"`
}

// AdminPurge handles POST /admin/purge: deletes every queue key and every
// relational row. Requires the configured confirmation token; without a
// configured token the endpoint is disabled.
func (s *Server) AdminPurge(c *gin.Context) {
	var body PurgeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	token := s.opts.PurgeConfirmToken
	if token == "" ||
		subtle.ConstantTimeCompare([]byte(body.Confirm), []byte(token)) != 1 {
		respondError(c, http.StatusForbidden, "invalid confirmation token")
		return
	}

	if err := s.queue.PurgeAll(c.Request.Context()); err != nil {
		s.logger.Error("Failed to purge queue", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to purge queue")
		return
	}
	if err := s.store.PurgeAll(c.Request.Context()); err != nil {
		s.logger.Error("Failed to purge store", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to purge store")
		return
	}

	s.logger.Warn("All queue keys and relational rows purged")
	c.JSON(http.StatusOK, gin.H{"status": "purged"})
}
