// Nexus orchestrator server — provides the HTTP API, runs the worker pool,
// and hosts the agent fleet that executes the research pipeline.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus/pkg/agents"
	"github.com/nexus-research/nexus/pkg/api"
	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/cleanup"
	"github.com/nexus-research/nexus/pkg/config"
	"github.com/nexus-research/nexus/pkg/events"
	"github.com/nexus-research/nexus/pkg/llm"
	"github.com/nexus-research/nexus/pkg/metrics"
	"github.com/nexus-research/nexus/pkg/pipeline"
	"github.com/nexus-research/nexus/pkg/queue"
	"github.com/nexus-research/nexus/pkg/search"
	"github.com/nexus-research/nexus/pkg/store"
	"github.com/nexus-research/nexus/pkg/worker"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	podID := worker.PodID()

	slog.Info("Starting nexus",
		"http_port", httpPort,
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize the knowledge store
	storeConfig, err := store.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load store config", "error", err)
		os.Exit(1)
	}

	storeClient, err := store.NewClient(ctx, storeConfig)
	if err != nil {
		slog.Error("Failed to connect to knowledge store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storeClient.Close(); err != nil {
			slog.Error("Error closing store client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL knowledge store")

	// 3. Connect to Redis (work queue + monitoring channels)
	redisOpts, err := redis.ParseURL(getEnv("REDIS_URL", "redis://localhost:6379/0"))
	if err != nil {
		slog.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	slog.Info("Connected to Redis", "addr", redisOpts.Addr)

	// 4. Monitoring event publisher and work queue
	publisher := events.NewPublisher(redisClient, cfg.Monitoring)
	workQueue := queue.New(redisClient, cfg.Queue, publisher)

	supervisor := queue.NewSupervisor(workQueue, storeClient, publisher, slog.Default())
	supervisor.Start(ctx)
	defer supervisor.Stop()
	slog.Info("Queue supervisor started", "interval", cfg.Queue.SupervisorInterval)

	// 5. In-process agent bus
	agentBus := bus.New(cfg.Queue.ReplyTimeout)
	agentBus.Connect()
	defer agentBus.Disconnect()

	// 6. LLM client and search providers
	providerCfg, err := cfg.LLM.Provider("")
	if err != nil {
		slog.Error("Failed to resolve default LLM provider", "error", err)
		os.Exit(1)
	}
	llmClient, err := llm.NewFromConfig(providerCfg)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized", "provider", cfg.LLM.DefaultProvider, "model", providerCfg.Model)

	searchRegistry, err := search.NewRegistry(cfg.Search, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize search providers", "error", err)
		os.Exit(1)
	}
	slog.Info("Search providers initialized", "count", len(searchRegistry.Providers()))

	// 7. Spawn the agent fleet
	fleet, err := agents.DefaultRegistry().SpawnAll(ctx, agents.Deps{
		Bus:         agentBus,
		LLM:         llmClient,
		Store:       storeClient,
		Search:      searchRegistry,
		Logger:      slog.Default(),
		StoragePath: getEnv("STORAGE_PATH", "./artifacts"),
	})
	if err != nil {
		slog.Error("Failed to spawn agent fleet", "error", err)
		os.Exit(1)
	}
	defer fleet.Stop()
	slog.Info("Agent fleet started", "agents", len(fleet.Agents()))

	// 8. Start worker pool (before HTTP server)
	runner := pipeline.New(agentBus, storeClient, publisher, cfg.Queue, slog.Default())
	workerPool := worker.NewPool(podID, workQueue, storeClient, runner, publisher, cfg.Queue, slog.Default())
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 8a. Queue metrics collector
	collector := metrics.NewCollector(workQueue, publisher, 15*time.Second, slog.Default())
	collector.Start(ctx)
	defer collector.Stop()

	// 8b. Retention cleanup loop
	if cfg.Retention.Enabled {
		cleanupService := cleanup.NewService(cfg.Retention, storeClient, workQueue)
		cleanupService.Start(ctx)
		defer cleanupService.Stop()
	}

	// 9. Streaming infrastructure (Redis subscriber → WebSocket fan-out)
	connManager := events.NewConnectionManager(cfg.Monitoring, 10*time.Second, 30*time.Second)
	listener := events.NewListener(redisClient, connManager,
		cfg.Monitoring.GlobalChannel, cfg.Monitoring.StatsChannel)
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start event listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop(ctx)
	connManager.SetListener(listener)
	slog.Info("Streaming infrastructure initialized")

	// 10. Start HTTP server (non-blocking)
	httpServer := api.NewServer(storeClient, workQueue, connManager, api.Options{
		Addr:              ":" + httpPort,
		PurgeConfirmToken: os.Getenv("PURGE_CONFIRM_TOKEN"),
		Logger:            slog.Default(),
	})
	errCh := httpServer.Start()

	slog.Info("Nexus started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	// Stop the worker pool first so in-flight pipelines finish or park
	// their jobs for supervisor reclaim.
	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — in-flight tasks will be reclaimed by the supervisor")
	}

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
