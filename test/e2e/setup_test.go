// Package e2e_test drives the full explorer stack in process: the HTTP API
// through the Go client, the cache-first gateway over miniredis, and the
// prefetch worker fed by the encoded event stream.
package e2e_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/application/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/application/prefetch"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/gateway"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/testutil"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/client"
)

const testAPIKey = "e2e-key"

func init() {
	gin.SetMode(gin.TestMode)
}

// stack is one in-process deployment.
type stack struct {
	live      *liveStore
	redis     *miniredis.Miniredis
	bus       *eventBus
	logger    *testutil.MockLogger
	collector prometheus.MetricsCollector
	server    *httptest.Server
	sdk       *client.Client
}

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{live: newLiveStore(), logger: testutil.NewMockLogger()}

	s.redis = miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: s.redis.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := redis.NewRedisCache(redis.NewClientFromUniversal(rdb, nil), s.logger, redis.WithPrefix("e2e:"), redis.WithJitter(0))

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "e2e"}, nil)
	require.NoError(t, err)
	s.collector = collector
	metrics := prometheus.NewExplorerMetrics(collector)

	opts := gateway.DefaultOptions()
	opts.LiveRetries = 0
	opts.LiveTimeout = time.Second
	gw := gateway.NewCachedGateway(cache, s.live, s.live, metrics, s.logger, opts)

	repo := testutil.NewMemoryRepository()
	warmer, err := prefetch.NewWarmer(repo, gw, prefetch.Config{Concurrency: 4, NeighbourLimit: 50}, metrics, s.logger)
	require.NoError(t, err)
	s.bus = &eventBus{handler: warmer.Handler(5 * time.Second)}

	svc, err := exploration.NewService(exploration.Dependencies{
		Gateway:   gw,
		Repo:      repo,
		Snapshots: &testutil.MemorySnapshotStore{},
		Events:    s.bus,
		Metrics:   metrics,
		Logger:    s.logger,
	}, exploration.DefaultConfig())
	require.NoError(t, err)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		ExplorationHandler: handlers.NewExplorationHandler(svc, s.logger, ""),
		HealthHandler:      handlers.NewHealthHandler("e2e"),
		APIKey:             testAPIKey,
		MaxBodySize:        1 << 20,
		Logger:             s.logger,
		Metrics:            metrics,
		MetricsCollector:   collector,
	})
	s.server = httptest.NewServer(router)
	t.Cleanup(s.server.Close)

	s.sdk, err = client.NewClient(s.server.URL, testAPIKey, client.WithRetryMax(0))
	require.NoError(t, err)
	return s
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
