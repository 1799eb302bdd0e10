package gateway

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/prometheus"
	pkgerrors "github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

type mockGraph struct{ mock.Mock }

func (m *mockGraph) GetBackwardCitationIDs(ctx context.Context, id string) ([]string, error) {
	args := m.Called(ctx, id)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockGraph) GetForwardCitationIDs(ctx context.Context, id string) ([]string, error) {
	args := m.Called(ctx, id)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockGraph) UpsertCitations(ctx context.Context, edges []citation.CitationEdge) (int, error) {
	args := m.Called(ctx, edges)
	return args.Int(0), args.Error(1)
}

type mockRef struct{ mock.Mock }

func (m *mockRef) GetPatentDetail(ctx context.Context, id string) (*citation.PatentDetail, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*citation.PatentDetail)
	return d, args.Error(1)
}

func (m *mockRef) IsPortfolioMember(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockRef) GetAffiliateOwner(ctx context.Context, id string) (*citation.Affiliate, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*citation.Affiliate)
	return a, args.Error(1)
}

func (m *mockRef) FindCompetitor(ctx context.Context, name string) (*citation.Competitor, error) {
	args := m.Called(ctx, name)
	c, _ := args.Get(0).(*citation.Competitor)
	return c, args.Error(1)
}

func (m *mockRef) SectorForCPC(ctx context.Context, codes []string) (*citation.SectorRef, error) {
	args := m.Called(ctx, codes)
	r, _ := args.Get(0).(*citation.SectorRef)
	return r, args.Error(1)
}

type fixture struct {
	mr    *miniredis.Miniredis
	graph *mockGraph
	ref   *mockRef
	gw    *CachedGateway
}

func newFixture(t *testing.T, metrics *prometheus.ExplorerMetrics, opts Options) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cache := redis.NewRedisCache(redis.NewClientFromUniversal(rdb, nil), logging.NewNopLogger(), redis.WithJitter(0))
	f := &fixture{mr: mr, graph: new(mockGraph), ref: new(mockRef)}
	f.gw = NewCachedGateway(cache, f.graph, f.ref, metrics, nil, opts)
	return f
}

func fastOptions() Options {
	o := DefaultOptions()
	o.LiveRetries = 0
	o.LiveTimeout = time.Second
	return o
}

func TestBackwardCitations_CacheFirst(t *testing.T) {
	f := newFixture(t, nil, fastOptions())
	f.graph.On("GetBackwardCitationIDs", mock.Anything, "US1").Return([]string{"US9", "US3", "US3", " "}, nil).Once()

	ids, err := f.gw.GetBackwardCitations(context.Background(), "US1")
	require.NoError(t, err)
	assert.Equal(t, []string{"US3", "US9"}, ids)

	ids, err = f.gw.GetBackwardCitations(context.Background(), "US1")
	require.NoError(t, err)
	assert.Equal(t, []string{"US3", "US9"}, ids)
	assert.True(t, f.mr.Exists("fx:cit:b:US1"))
	f.graph.AssertExpectations(t)
}

func TestForwardCitations_EmptyIsCached(t *testing.T) {
	f := newFixture(t, nil, fastOptions())
	f.graph.On("GetForwardCitationIDs", mock.Anything, "US2").Return([]string(nil), nil).Once()

	for i := 0; i < 2; i++ {
		ids, err := f.gw.GetForwardCitations(context.Background(), "US2")
		require.NoError(t, err)
		assert.Empty(t, ids)
	}
	f.graph.AssertNumberOfCalls(t, "GetForwardCitationIDs", 1)
}

func TestCitations_LiveFailureNotCached(t *testing.T) {
	o := fastOptions()
	o.LiveRetries = 1
	f := newFixture(t, nil, o)
	f.graph.On("GetBackwardCitationIDs", mock.Anything, "US1").Return(nil, errors.New("bolt: connection reset"))

	_, err := f.gw.GetBackwardCitations(context.Background(), "US1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeGatewayFetchFailure))
	f.graph.AssertNumberOfCalls(t, "GetBackwardCitationIDs", 2)

	_, _ = f.gw.GetBackwardCitations(context.Background(), "US1")
	f.graph.AssertNumberOfCalls(t, "GetBackwardCitationIDs", 4)
	assert.False(t, f.mr.Exists("fx:cit:b:US1"))
}

func TestCitations_ConcurrentMissesCollapse(t *testing.T) {
	f := newFixture(t, nil, fastOptions())
	f.graph.On("GetBackwardCitationIDs", mock.Anything, "US7").
		Run(func(mock.Arguments) { time.Sleep(30 * time.Millisecond) }).
		Return([]string{"US8"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := f.gw.GetBackwardCitations(context.Background(), "US7")
			assert.NoError(t, err)
			assert.Equal(t, []string{"US8"}, ids)
		}()
	}
	wg.Wait()

	f.graph.AssertNumberOfCalls(t, "GetBackwardCitationIDs", 1)
}

func TestCitations_CancelledExplorationDoesNotFailSharedLookup(t *testing.T) {
	f := newFixture(t, nil, fastOptions())
	started := make(chan struct{})
	release := make(chan struct{})
	f.graph.On("GetBackwardCitationIDs", mock.Anything, "US1").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]string{"US7", "US5"}, nil).Once()

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.gw.GetBackwardCitations(ctxA, "US1")
		errA <- err
	}()
	<-started

	var (
		idsB []string
		errB error
		wg   sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		idsB, errB = f.gw.GetBackwardCitations(context.Background(), "US1")
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(release)
	wg.Wait()

	require.NoError(t, errB)
	assert.Equal(t, []string{"US5", "US7"}, idsB)
	f.graph.AssertExpectations(t)
}

func TestPatentDetail_FoundAndNotFound(t *testing.T) {
	f := newFixture(t, nil, fastOptions())
	f.ref.On("GetPatentDetail", mock.Anything, "US1").
		Return(&citation.PatentDetail{ID: "US1", Assignee: "Acme"}, nil).Once()
	f.ref.On("GetPatentDetail", mock.Anything, "US404").
		Return(nil, pkgerrors.New(pkgerrors.ErrCodePatentNotFound, "missing")).Once()

	d, err := f.gw.GetPatentDetail(context.Background(), "US1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", d.Assignee)

	for i := 0; i < 2; i++ {
		_, err = f.gw.GetPatentDetail(context.Background(), "US404")
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodePatentNotFound))
	}
	f.ref.AssertExpectations(t)
}

func TestSectorForCPC(t *testing.T) {
	f := newFixture(t, nil, fastOptions())
	f.ref.On("SectorForCPC", mock.Anything, []string{"G06F", "H01L21"}).
		Return(&citation.SectorRef{Sector: "Devices"}, nil).Once()
	f.ref.On("SectorForCPC", mock.Anything, []string{"Y02E"}).Return(nil, nil).Once()

	ref, ok := f.gw.GetSectorForCPC(context.Background(), []string{"h01l21", "G06F", "G06F"})
	assert.True(t, ok)
	assert.Equal(t, "Devices", ref.Sector)

	ref, ok = f.gw.GetSectorForCPC(context.Background(), []string{"G06F", "H01L21"})
	assert.True(t, ok)

	_, ok = f.gw.GetSectorForCPC(context.Background(), []string{"Y02E"})
	assert.False(t, ok)
	_, ok = f.gw.GetSectorForCPC(context.Background(), []string{"Y02E"})
	assert.False(t, ok)

	_, ok = f.gw.GetSectorForCPC(context.Background(), nil)
	assert.False(t, ok)
	f.ref.AssertExpectations(t)
}

func TestOwnershipLookups(t *testing.T) {
	f := newFixture(t, nil, fastOptions())
	f.ref.On("IsPortfolioMember", mock.Anything, "US1").Return(true, nil).Once()
	f.ref.On("GetAffiliateOwner", mock.Anything, "US2").Return(&citation.Affiliate{Name: "Acme Labs", Parent: "Acme Corp"}, nil).Once()
	f.ref.On("GetAffiliateOwner", mock.Anything, "US3").Return(nil, nil).Once()
	f.ref.On("GetAffiliateOwner", mock.Anything, "US4").Return(nil, errors.New("db down"))

	member, err := f.gw.IsPortfolioMember(context.Background(), "US1")
	require.NoError(t, err)
	assert.True(t, member)

	ok, name, err := f.gw.IsAffiliate(context.Background(), "US2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Acme Labs", name)

	aff, err := f.gw.GetAffiliate(context.Background(), "US2")
	require.NoError(t, err)
	assert.Equal(t, &citation.Affiliate{Name: "Acme Labs", Parent: "Acme Corp"}, aff)
	assert.Equal(t, "Acme Corp", aff.Group())

	ok, _, err = f.gw.IsAffiliate(context.Background(), "US3")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = f.gw.IsAffiliate(context.Background(), "US4")
	assert.Error(t, err)
}

func TestIsCompetitor_Normalizes(t *testing.T) {
	f := newFixture(t, nil, fastOptions())
	f.ref.On("FindCompetitor", mock.Anything, "globex").
		Return(&citation.Competitor{Name: "Globex Holdings"}, nil).Once()

	ok, name := f.gw.IsCompetitor(context.Background(), "GLOBEX, Inc.")
	assert.True(t, ok)
	assert.Equal(t, "Globex Holdings", name)

	ok, _ = f.gw.IsCompetitor(context.Background(), "Globex Corp")
	assert.True(t, ok)

	ok, _ = f.gw.IsCompetitor(context.Background(), "  ")
	assert.False(t, ok)
	f.ref.AssertExpectations(t)
}

func TestCircuitBreaker_ReportsUnavailable(t *testing.T) {
	o := fastOptions()
	o.BreakerThreshold = 2
	o.BreakerCooldown = time.Minute
	f := newFixture(t, nil, o)
	f.graph.On("GetForwardCitationIDs", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	for _, id := range []string{"A", "B"} {
		_, err := f.gw.GetForwardCitations(context.Background(), id)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeGatewayFetchFailure))
	}
	_, err := f.gw.GetForwardCitations(context.Background(), "C")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeGatewayUnavailable))
	f.graph.AssertNumberOfCalls(t, "GetForwardCitationIDs", 2)
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t, nil, fastOptions())
	f.graph.On("GetBackwardCitationIDs", mock.Anything, "US1").Return([]string{"US2"}, nil).Twice()

	_, err := f.gw.GetBackwardCitations(context.Background(), "US1")
	require.NoError(t, err)
	require.NoError(t, f.gw.Invalidate(context.Background(), "US1"))
	_, err = f.gw.GetBackwardCitations(context.Background(), "US1")
	require.NoError(t, err)

	f.graph.AssertExpectations(t)
}

func TestMetrics_RecordSource(t *testing.T) {
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test", Subsystem: "gw"}, nil)
	require.NoError(t, err)
	f := newFixture(t, prometheus.NewExplorerMetrics(c), fastOptions())
	f.graph.On("GetBackwardCitationIDs", mock.Anything, "US1").Return([]string{"US2"}, nil).Once()

	_, _ = f.gw.GetBackwardCitations(context.Background(), "US1")
	_, _ = f.gw.GetBackwardCitations(context.Background(), "US1")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	assert.Contains(t, out, `test_gw_gateway_requests_total{operation="backward_citations",source="live"} 1`)
	assert.Contains(t, out, `test_gw_gateway_requests_total{operation="backward_citations",source="cache"} 1`)
}
