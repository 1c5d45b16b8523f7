package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexus-research/nexus/pkg/models"
	"github.com/nexus-research/nexus/pkg/store"
)

// CreateTaskBody is the request body for POST /tasks.
type CreateTaskBody struct {
	Title                   string          `json:"title" binding:"required"`
	Description             string          `json:"description"`
	ContinuousMode          bool            `json:"continuous_mode"`
	ContinuousIntervalHours int             `json:"continuous_interval_hours"`
	Priority                models.Priority `json:"priority"`
	Metadata                map[string]any  `json:"metadata"`
}

// CreateTask handles POST /tasks: persists the task row and enqueues the
// job envelope.
func (s *Server) CreateTask(c *gin.Context) {
	var body CreateTaskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	priority := body.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.Valid() {
		respondError(c, http.StatusBadRequest, "invalid priority")
		return
	}

	taskID := uuid.New().String()
	task, err := s.store.CreateOrUpdateTask(c.Request.Context(), models.CreateTaskRequest{
		TaskID:                  taskID,
		Title:                   body.Title,
		Description:             body.Description,
		ContinuousMode:          body.ContinuousMode,
		ContinuousIntervalHours: body.ContinuousIntervalHours,
		Metadata:                body.Metadata,
	})
	if err != nil {
		var ve *store.ValidationError
		if errors.As(err, &ve) {
			respondError(c, http.StatusBadRequest, ve.Error())
			return
		}
		s.logger.Error("Failed to create task", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to create task")
		return
	}

	job := &models.JobEnvelope{
		TaskID:                  task.ID,
		Title:                   task.Title,
		Description:             task.Description,
		ContinuousMode:          task.ContinuousMode,
		ContinuousIntervalHours: task.ContinuousIntervalHours,
		Priority:                priority,
		EnqueuedAt:              time.Now().UTC(),
	}
	if err := s.queue.Enqueue(c.Request.Context(), job); err != nil {
		s.logger.Error("Failed to enqueue task", "task_id", task.ID, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to enqueue task")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task_id": task.ID})
}

// taskResponse flattens the task fields to the top level of the GET
// /tasks/:id body, with the artifact list alongside.
type taskResponse struct {
	*models.ResearchTask
	Artifacts []*models.Artifact `json:"artifacts"`
}

// GetTask handles GET /tasks/:id, returning the task row with its artifacts.
func (s *Server) GetTask(c *gin.Context) {
	taskID := c.Param("id")
	task, err := s.store.GetTask(c.Request.Context(), taskID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load task", "task_id", taskID, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to load task")
		return
	}

	artifacts, err := s.store.ListArtifacts(c.Request.Context(), taskID)
	if err != nil {
		s.logger.Error("Failed to load artifacts", "task_id", taskID, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to load artifacts")
		return
	}

	if artifacts == nil {
		artifacts = []*models.Artifact{}
	}
	c.JSON(http.StatusOK, taskResponse{ResearchTask: task, Artifacts: artifacts})
}

// ListTasks handles GET /tasks with status/limit/offset query filters.
func (s *Server) ListTasks(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
		Limit  int    `form:"limit,default=50"`
		Offset int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.store.ListTasks(c.Request.Context(), models.TaskFilters{
		Status: models.TaskStatus(query.Status),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		s.logger.Error("Failed to list tasks", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	c.JSON(http.StatusOK, resp)
}
