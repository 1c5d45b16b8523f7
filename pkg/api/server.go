// Package api exposes the HTTP surface: task submission and retrieval, the
// monitoring snapshot and WebSocket stream, health, metrics, and the admin
// purge endpoint.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nexus-research/nexus/pkg/events"
	"github.com/nexus-research/nexus/pkg/metrics"
	"github.com/nexus-research/nexus/pkg/models"
	"github.com/nexus-research/nexus/pkg/store"
)

// Store is the slice of the knowledge store the API needs. *store.Client
// satisfies it.
type Store interface {
	CreateOrUpdateTask(ctx context.Context, req models.CreateTaskRequest) (*models.ResearchTask, error)
	GetTask(ctx context.Context, taskID string) (*models.ResearchTask, error)
	ListTasks(ctx context.Context, filters models.TaskFilters) (*models.TaskListResponse, error)
	ListArtifacts(ctx context.Context, taskID string) ([]*models.Artifact, error)
	Health(ctx context.Context) (*store.HealthStatus, error)
	PurgeAll(ctx context.Context) error
}

// Queue is the work-queue surface the API needs. *queue.Queue satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, job *models.JobEnvelope) error
	Depths(ctx context.Context) (map[string]int64, error)
	DeadLetterDepth(ctx context.Context) (int64, error)
	OnlineWorkers(ctx context.Context) (int, error)
	PurgeAll(ctx context.Context) error
}

// Options configures the server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// PurgeConfirmToken guards POST /admin/purge. Empty disables the
	// endpoint entirely.
	PurgeConfirmToken string

	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	store   Store
	queue   Queue
	manager *events.ConnectionManager
	opts    Options
	logger  *slog.Logger
	engine  *gin.Engine
	httpSrv *http.Server
}

// NewServer creates the server and registers all routes. manager may be nil
// (the WebSocket endpoint then rejects connections).
func NewServer(st Store, q Queue, manager *events.ConnectionManager, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		store:   st,
		queue:   q,
		manager: manager,
		opts:    opts,
		logger:  opts.Logger.With("component", "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), s.requestMetrics())

	engine.POST("/tasks", s.CreateTask)
	engine.GET("/tasks", s.ListTasks)
	engine.GET("/tasks/:id", s.GetTask)
	engine.GET("/monitor/snapshot", s.MonitorSnapshot)
	engine.GET("/ws/monitor", s.MonitorWS)
	engine.GET("/health", s.HealthEndpoint)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	engine.POST("/admin/purge", s.AdminPurge)

	s.engine = engine
	return s
}

// Handler returns the underlying HTTP handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving in a goroutine and returns immediately. The returned
// channel receives the terminal ListenAndServe error, if any.
func (s *Server) Start() <-chan error {
	s.httpSrv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.opts.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// respondError writes the uniform error body.
func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
