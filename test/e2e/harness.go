// Package e2e provides end-to-end test infrastructure for the research
// pipeline: a full nexus instance with a real PostgreSQL knowledge store,
// a miniredis-backed work queue and event bus, scripted LLM completions,
// and stub search providers.
package e2e

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus/pkg/agents"
	"github.com/nexus-research/nexus/pkg/api"
	"github.com/nexus-research/nexus/pkg/bus"
	"github.com/nexus-research/nexus/pkg/config"
	"github.com/nexus-research/nexus/pkg/events"
	"github.com/nexus-research/nexus/pkg/llm"
	"github.com/nexus-research/nexus/pkg/metrics"
	"github.com/nexus-research/nexus/pkg/pipeline"
	"github.com/nexus-research/nexus/pkg/queue"
	"github.com/nexus-research/nexus/pkg/search"
	"github.com/nexus-research/nexus/pkg/store"
	"github.com/nexus-research/nexus/pkg/worker"
	"github.com/nexus-research/nexus/test/util"
)

// TestApp boots a complete nexus instance for e2e testing.
type TestApp struct {
	Config *config.Config
	Store  *store.Client
	Redis  *miniredis.Miniredis

	// Test wiring
	LLM *llm.ScriptedClient

	// Real infrastructure
	Queue       *queue.Queue
	Supervisor  *queue.Supervisor
	Bus         *bus.Bus
	Fleet       *agents.Fleet
	Pool        *worker.Pool
	ConnManager *events.ConnectionManager
	Listener    *events.Listener
	Server      *api.Server

	// Runtime
	BaseURL      string // e.g. "http://127.0.0.1:54321"
	WSURL        string // e.g. "ws://127.0.0.1:54321/ws/monitor"
	ArtifactsDir string

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llmClient   *llm.ScriptedClient
	providers   []search.Provider
	workerCount int
	maxRetries  int
	purgeToken  string
	podID       string
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMClient sets a pre-scripted LLM client.
func WithLLMClient(client *llm.ScriptedClient) TestAppOption {
	return func(c *testAppConfig) { c.llmClient = client }
}

// WithSearchProviders replaces the default stub provider.
func WithSearchProviders(providers ...search.Provider) TestAppOption {
	return func(c *testAppConfig) { c.providers = providers }
}

// WithWorkerCount sets the number of queue workers.
func WithWorkerCount(n int) TestAppOption {
	return func(c *testAppConfig) { c.workerCount = n }
}

// WithMaxRetries sets the dead-letter retry ceiling.
func WithMaxRetries(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxRetries = n }
}

// WithPurgeToken enables the admin purge endpoint.
func WithPurgeToken(token string) TestAppOption {
	return func(c *testAppConfig) { c.purgeToken = token }
}

// WithPodID overrides the auto-generated pod ID.
func WithPodID(id string) TestAppOption {
	return func(c *testAppConfig) { c.podID = id }
}

// NewTestApp creates and starts a full nexus test instance. Shutdown is
// registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		workerCount: 1,
		maxRetries:  5,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llmClient == nil {
		tc.llmClient = llm.NewScripted()
	}
	if len(tc.providers) == 0 {
		tc.providers = []search.Provider{defaultStubProvider()}
	}
	podID := tc.podID
	if podID == "" {
		podID = "e2e-" + strings.ReplaceAll(t.Name(), "/", "-")
	}

	cfg := testConfig(tc)
	ctx := context.Background()

	// 1. Knowledge store — real PostgreSQL, per-test schema.
	storeClient := util.SetupTestStore(t)

	// 2. Redis — miniredis for queue keys and monitoring channels.
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	// 3. Event publishing + work queue.
	publisher := events.NewPublisher(redisClient, cfg.Monitoring)
	q := queue.New(redisClient, cfg.Queue, publisher)

	supervisor := queue.NewSupervisor(q, storeClient, publisher, nil)
	supervisor.Start(ctx)

	// 4. Agent bus + fleet with scripted collaborators.
	agentBus := bus.New(cfg.Queue.ReplyTimeout)
	agentBus.Connect()

	artifactsDir := t.TempDir()
	fleet, err := agents.DefaultRegistry().SpawnAll(ctx, agents.Deps{
		Bus:         agentBus,
		LLM:         tc.llmClient,
		Store:       storeClient,
		Search:      search.NewRegistryFromProviders(tc.providers...),
		StoragePath: artifactsDir,
	})
	require.NoError(t, err)

	// 5. Worker pool running the staged pipeline.
	runner := pipeline.New(agentBus, storeClient, publisher, cfg.Queue, nil)
	pool := worker.NewPool(podID, q, storeClient, runner, publisher, cfg.Queue, nil)
	require.NoError(t, pool.Start(ctx))

	// 6. Queue stats collector feeding gauges and queue_depth_update.
	collector := metrics.NewCollector(q, publisher, 100*time.Millisecond, nil)
	collector.Start(ctx)

	// 7. Streaming infrastructure.
	connManager := events.NewConnectionManager(cfg.Monitoring, 5*time.Second, 30*time.Second)
	listener := events.NewListener(redisClient, connManager,
		cfg.Monitoring.GlobalChannel, cfg.Monitoring.StatsChannel)
	require.NoError(t, listener.Start(ctx))
	connManager.SetListener(listener)

	// 8. HTTP server on a random port.
	server := api.NewServer(storeClient, q, connManager, api.Options{
		PurgeConfirmToken: tc.purgeToken,
	})
	httpSrv := httptest.NewServer(server.Handler())

	app := &TestApp{
		Config:       cfg,
		Store:        storeClient,
		Redis:        mr,
		LLM:          tc.llmClient,
		Queue:        q,
		Supervisor:   supervisor,
		Bus:          agentBus,
		Fleet:        fleet,
		Pool:         pool,
		ConnManager:  connManager,
		Listener:     listener,
		Server:       server,
		BaseURL:      httpSrv.URL,
		WSURL:        "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/monitor",
		ArtifactsDir: artifactsDir,
		t:            t,
	}

	t.Cleanup(func() {
		httpSrv.Close()
		listener.Stop(context.Background())
		collector.Stop()
		pool.Stop()
		supervisor.Stop()
		fleet.Stop()
		agentBus.Disconnect()
	})

	return app
}

// testConfig builds queue and monitoring settings tightened for tests.
func testConfig(tc *testAppConfig) *config.Config {
	queueCfg := config.DefaultQueueConfig()
	queueCfg.WorkerCount = tc.workerCount
	queueCfg.PopTimeout = 200 * time.Millisecond
	queueCfg.HeartbeatInterval = 100 * time.Millisecond
	queueCfg.HeartbeatTTL = time.Second
	queueCfg.SupervisorInterval = 200 * time.Millisecond
	queueCfg.StaleAfter = 2 * queueCfg.HeartbeatInterval
	queueCfg.MaxRetries = tc.maxRetries
	queueCfg.StageTimeout = 5 * time.Second
	queueCfg.ReplyTimeout = 2 * time.Second
	queueCfg.GracefulShutdownTimeout = 5 * time.Second

	return &config.Config{
		Queue:      queueCfg,
		Monitoring: config.DefaultMonitoringConfig(),
		Retention:  config.DefaultRetentionConfig(),
	}
}

// stubProvider is an in-memory search.Provider with fixed results.
type stubProvider struct {
	name    string
	results []search.Result
	err     error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(_ context.Context, query string, _ search.Options) ([]search.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func defaultStubProvider() *stubProvider {
	return &stubProvider{
		name: "stub",
		results: []search.Result{
			{
				Title:    "Stub result",
				URL:      "https://example.org/stub",
				Snippet:  "a relevant snippet",
				Provider: "stub",
			},
		},
	}
}
