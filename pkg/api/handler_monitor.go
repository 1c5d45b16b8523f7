package api

import (
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/nexus-research/nexus/pkg/events"
)

// MonitorSnapshot handles GET /monitor/snapshot: one stats_snapshot event
// with current queue depths and the online worker count.
func (s *Server) MonitorSnapshot(c *gin.Context) {
	evt, err := events.BuildSnapshot(c.Request.Context(), s.queue)
	if err != nil {
		s.logger.Error("Failed to build snapshot", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to build snapshot")
		return
	}
	c.JSON(http.StatusOK, evt)
}

// MonitorWS handles GET /ws/monitor: upgrades to WebSocket and streams
// filtered monitoring events until the client disconnects.
func (s *Server) MonitorWS(c *gin.Context) {
	if s.manager == nil {
		respondError(c, http.StatusServiceUnavailable, "monitoring disabled")
		return
	}

	filter := filterFromQuery(c)
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	// Snapshot failures degrade to a live-only stream.
	snapshot, err := events.BuildSnapshot(c.Request.Context(), s.queue)
	if err != nil {
		s.logger.Warn("Failed to build connect snapshot", "error", err)
		snapshot = nil
	}

	s.manager.HandleConnection(c.Request.Context(), conn, filter, snapshot)
}

// filterFromQuery builds the event filter declared by the monitor query
// params. types accepts both repeated params and comma-separated lists.
func filterFromQuery(c *gin.Context) events.Filter {
	f := events.Filter{
		ProjectID: c.Query("project_id"),
		TaskID:    c.Query("task_id"),
		StatsOnly: c.Query("stats_only") == "true",
	}
	for _, raw := range c.QueryArray("types") {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, t)
			}
		}
	}
	return f
}
