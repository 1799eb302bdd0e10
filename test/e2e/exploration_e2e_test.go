package e2e_test

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/client"
	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

// seedGraph: portfolio seeds S1 and S2 share prior art P1; S1 also cites the
// unrelated P2 and is cited by F1.
func seedGraph(s *stack) {
	s.live.sectors["C09K"] = citation.SectorRef{SuperSector: "Materials", Sector: "Chemicals", SubSector: "OLED"}
	s.live.portfolio["S1"] = true
	s.live.portfolio["S2"] = true
	s.live.
		patent("S1", "Acme Corp", 2015, "C09K11/06").
		patent("S2", "Acme Corp", 2016, "C09K11/06").
		patent("P1", "Acme Corp", 2012, "C09K11/06").
		patent("P2", "Other Co", 1990, "H01L21/00").
		patent("F1", "Acme Corp", 2019, "C09K11/06").
		cite("S1", "P1", "P2").
		cite("S2", "P1").
		cite("F1", "S1")
}

func createOLED(t *testing.T, s *stack) *types.CreateResponse {
	t.Helper()
	created, err := s.sdk.Explorations().Create(testContext(t), &types.CreateRequest{
		ID:         "oled",
		SeedIDs:    []string{"S2", "S1"},
		Thresholds: &types.Thresholds{Membership: 50, Expansion: 0},
	})
	require.NoError(t, err)
	return created
}

func TestExploration_CreatePrefetchesFrontier(t *testing.T) {
	s := newStack(t)
	seedGraph(s)

	created := createOLED(t, s)
	assert.Equal(t, []string{"S1", "S2"}, created.Exploration.SeedIDs)
	assert.Equal(t, []string{"S1", "S2"}, created.Exploration.Frontier)
	assert.Contains(t, s.bus.seen(), exploration.EventExplorationCreated)

	assert.Equal(t, 1, s.live.count("backward", "S1"))
	assert.Equal(t, 1, s.live.count("forward", "S1"))
	for _, id := range []string{"P1", "P2", "F1"} {
		assert.Equal(t, 1, s.live.count("detail", id), id)
	}
	assert.True(t, s.logger.HasMessage("info", "Frontier warmed"))
}

func TestExploration_ExpandIsServedFromWarmCache(t *testing.T) {
	s := newStack(t)
	seedGraph(s)
	createOLED(t, s)
	ctx := testContext(t)

	gen := 0
	res, err := s.sdk.Explorations().Expand(ctx, "oled", &types.ExpandRequest{Direction: "backward", ExpectedGeneration: &gen})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generation)

	ids := make([]string, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		ids = append(ids, c.PatentID)
	}
	assert.Contains(t, ids, "P1")

	assert.Equal(t, 1, s.live.count("backward", "S1"), "frontier citations come from the cache")
	assert.Equal(t, 1, s.live.count("backward", "S2"))
	assert.Equal(t, 1, s.live.count("detail", "P1"), "neighbour detail comes from the cache")

	_, err = s.sdk.Explorations().Expand(ctx, "oled", &types.ExpandRequest{Direction: "backward", ExpectedGeneration: &gen})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsConflict())
}

func TestExploration_FullLifecycle(t *testing.T) {
	s := newStack(t)
	seedGraph(s)
	createOLED(t, s)
	ctx := testContext(t)
	api := s.sdk.Explorations()

	gen := 0
	_, err := api.Expand(ctx, "oled", &types.ExpandRequest{Direction: "both", ExpectedGeneration: &gen})
	require.NoError(t, err)

	_, err = api.Rescore(ctx, "oled", &types.RescoreRequest{Preset: "balanced"})
	require.NoError(t, err)

	doc, err := api.SetStatus(ctx, "oled", types.StatusChange{PatentID: "P1", Status: string(exploration.OverrideMember)})
	require.NoError(t, err)
	assert.Contains(t, doc.Members, "P1")

	rebuilt, err := api.Rebuild(ctx, "oled", nil)
	require.NoError(t, err)
	assert.Greater(t, rebuilt.Version, doc.Version)

	list, err := api.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "oled", list.Items[0].ID)

	archived, err := api.Archive(ctx, "oled")
	require.NoError(t, err)
	assert.NotEmpty(t, archived.Key)

	doc, err = api.Get(ctx, "oled")
	require.NoError(t, err)
	assert.True(t, doc.Archived)
	assert.Len(t, doc.Steps, 3)

	seen := s.bus.seen()
	for _, want := range []string{
		exploration.EventExplorationCreated,
		exploration.EventExplorationExpanded,
		exploration.EventExplorationRescored,
		exploration.EventCandidateStatus,
		exploration.EventAggregateRebuilt,
		exploration.EventExplorationArchived,
	} {
		assert.Contains(t, seen, want)
	}
}

func TestExploration_UnknownAndUnauthorized(t *testing.T) {
	s := newStack(t)
	ctx := testContext(t)

	_, err := s.sdk.Explorations().Get(ctx, "missing")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())

	anon, err := client.NewClient(s.server.URL, "wrong", client.WithRetryMax(0))
	require.NoError(t, err)
	_, err = anon.Explorations().Presets(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsUnauthorized())
}

func TestMetrics_ExposePrefetchAndGateway(t *testing.T) {
	s := newStack(t)
	seedGraph(s)
	createOLED(t, s)

	resp, err := http.Get(s.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, fmt.Sprintf(`e2e_prefetch_runs_total{event_type=%q,outcome="warmed"} 1`, exploration.EventExplorationCreated))
	assert.Contains(t, text, "e2e_gateway_requests_total")
}
