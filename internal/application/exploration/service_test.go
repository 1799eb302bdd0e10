package exploration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	domain "github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/testutil"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// --- fixture ---

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	oled     = citation.SectorRef{SuperSector: "Materials", Sector: "Chemicals", SubSector: "OLED"}
	pharma   = citation.SectorRef{SuperSector: "Health", Sector: "Pharma", SubSector: "Small molecules"}
)

func filed(year int) *time.Time {
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return &t
}

// oledGraph builds a small citation graph around two portfolio seeds:
//
//	S1 -> P1, P2     S2 -> P1     X -> P1
//	F1 -> S1, S2, Z  F2 -> S2
func oledGraph() *testutil.FakeGateway {
	gw := testutil.NewFakeGateway()
	gw.MapCPC("C09K", oled).MapCPC("A61K", pharma)
	for _, d := range []citation.PatentDetail{
		{ID: "S1", Title: "Blue emitter", Assignee: "Acme Corp", CPCCodes: []string{"C09K11/06"}, FilingDate: filed(2015)},
		{ID: "S2", Title: "Host material", Assignee: "Acme Corp", CPCCodes: []string{"C09K11/06"}, FilingDate: filed(2016)},
		{ID: "P1", Title: "Carbazole host", Assignee: "Acme Corp", CPCCodes: []string{"C09K11/06"}, FilingDate: filed(2012)},
		{ID: "P2", Title: "Tablet coating", Assignee: "Other Inc", CPCCodes: []string{"A61K9/28"}, FilingDate: filed(2001)},
		{ID: "X", Title: "Green emitter", Assignee: "Acme Corp", CPCCodes: []string{"C09K11/06"}, FilingDate: filed(2016)},
		{ID: "F1", Title: "Display stack", Assignee: "Acme Corp", CPCCodes: []string{"C09K11/06"}, FilingDate: filed(2019)},
		{ID: "Z", Title: "Electron transport", Assignee: "Rival Ltd", CPCCodes: []string{"C09K11/06"}, FilingDate: filed(2014)},
	} {
		gw.AddPatent(d)
	}
	gw.Cite("S1", "P1", "P2").Cite("S2", "P1").Cite("X", "P1")
	gw.Cite("F1", "S1", "S2", "Z").Cite("F2", "S2")
	gw.SetPortfolio("S1", "S2", "F1")
	gw.AddCompetitor("Rival Ltd", "Rival Limited")
	return gw
}

type fixture struct {
	svc    Service
	gw     *testutil.FakeGateway
	repo   *testutil.MemoryRepository
	events *testutil.RecordingPublisher
	snaps  *testutil.MemorySnapshotStore
	logger *testutil.MockLogger
}

func newFixture(t *testing.T, gw *testutil.FakeGateway) *fixture {
	t.Helper()
	f := &fixture{
		gw:     gw,
		repo:   testutil.NewMemoryRepository(),
		events: &testutil.RecordingPublisher{},
		snaps:  &testutil.MemorySnapshotStore{},
		logger: testutil.NewMockLogger(),
	}
	ids := 0
	svc, err := NewService(Dependencies{
		Gateway:   gw,
		Repo:      f.repo,
		Snapshots: f.snaps,
		Events:    f.events,
		Logger:    f.logger,
		Clock:     func() time.Time { return fixedNow },
		NewID: func() string {
			ids++
			return fmt.Sprintf("exp-%d", ids)
		},
	}, DefaultConfig())
	require.NoError(t, err)
	f.svc = svc
	return f
}

// lowThresholds keeps every scored candidate on the frontier.
func lowThresholds() *scoring.Thresholds {
	return &scoring.Thresholds{Membership: 50, Expansion: 0}
}

func (f *fixture) create(t *testing.T, seeds ...string) *domain.ExplorationState {
	t.Helper()
	res, err := f.svc.CreateExploration(context.Background(), &CreateRequest{SeedIDs: seeds, Thresholds: lowThresholds()})
	require.NoError(t, err)
	return res.Exploration
}

func ids(cs []domain.ScoredCandidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.PatentID)
	}
	return out
}

func candidateByID(cs []domain.ScoredCandidate, id string) (domain.ScoredCandidate, bool) {
	for _, c := range cs {
		if c.PatentID == id {
			return c, true
		}
	}
	return domain.ScoredCandidate{}, false
}

func hasWarning(ws []string, code errors.ErrorCode) bool {
	for _, w := range ws {
		if strings.HasPrefix(w, string(code)) {
			return true
		}
	}
	return false
}

func intPtr(n int) *int { return &n }

// --- construction ---

func TestNewService_RequiresGatewayAndRepo(t *testing.T) {
	_, err := NewService(Dependencies{Repo: testutil.NewMemoryRepository()}, DefaultConfig())
	assert.Error(t, err)

	_, err = NewService(Dependencies{Gateway: testutil.NewFakeGateway()}, DefaultConfig())
	assert.Error(t, err)
}

func TestNewService_RejectsUnknownDefaultPreset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultPreset = "nope"
	_, err := NewService(Dependencies{Gateway: testutil.NewFakeGateway(), Repo: testutil.NewMemoryRepository()}, cfg)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidWeightConfig))
}

// --- create ---

func TestCreateExploration_NormalizesSeeds(t *testing.T) {
	f := newFixture(t, oledGraph())

	res, err := f.svc.CreateExploration(context.Background(), &CreateRequest{
		Name:    "oled",
		SeedIDs: []string{" S2", "S1", "S1", ""},
	})
	require.NoError(t, err)

	st := res.Exploration
	assert.Equal(t, "exp-1", st.ID)
	assert.Equal(t, []string{"S1", "S2"}, st.SeedIDs)
	assert.Equal(t, []string{"S1", "S2"}, st.Frontier)
	assert.Equal(t, int64(1), st.Version)
	assert.Equal(t, 0, st.CurrentGeneration)
	assert.Equal(t, scoring.PresetBalanced, st.Preset)
	assert.NotNil(t, res.Warnings)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, st.Aggregate.SeedCount())

	stored, err := f.repo.Get(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, st.SeedIDs, stored.SeedIDs)
	assert.Equal(t, []string{domain.EventExplorationCreated}, f.events.Types())
}

func TestCreateExploration_UsesCallerID(t *testing.T) {
	f := newFixture(t, oledGraph())
	res, err := f.svc.CreateExploration(context.Background(), &CreateRequest{ID: "mine", SeedIDs: []string{"S1"}})
	require.NoError(t, err)
	assert.Equal(t, "mine", res.Exploration.ID)

	_, err = f.svc.CreateExploration(context.Background(), &CreateRequest{ID: "mine", SeedIDs: []string{"S1"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeExplorationAlreadyExists))
}

func TestCreateExploration_NoValidSeeds(t *testing.T) {
	f := newFixture(t, oledGraph())

	_, err := f.svc.CreateExploration(context.Background(), &CreateRequest{SeedIDs: []string{" ", ""}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoValidSeeds))

	_, err = f.svc.CreateExploration(context.Background(), &CreateRequest{SeedIDs: []string{"GHOST1", "GHOST2"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoValidSeeds))
	assert.Empty(t, f.events.Events)
}

func TestCreateExploration_IncompleteSeedDataIsAWarning(t *testing.T) {
	gw := oledGraph()
	gw.Fail("forward", "S2", fmt.Errorf("upstream timeout"))
	f := newFixture(t, gw)

	res, err := f.svc.CreateExploration(context.Background(), &CreateRequest{SeedIDs: []string{"S1", "S2", "GHOST"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"S1", "S2"}, res.Exploration.SeedIDs)
	assert.True(t, hasWarning(res.Warnings, errors.ErrCodeIncompleteSeedData))
	joined := strings.Join(res.Warnings, "\n")
	assert.Contains(t, joined, "GHOST")
	assert.Contains(t, joined, "S2")
}

func TestCreateExploration_InvalidConfig(t *testing.T) {
	f := newFixture(t, oledGraph())

	_, err := f.svc.CreateExploration(context.Background(), &CreateRequest{SeedIDs: []string{"S1"}, Preset: "unknown"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidWeightConfig))

	_, err = f.svc.CreateExploration(context.Background(), &CreateRequest{
		SeedIDs:    []string{"S1"},
		Thresholds: &scoring.Thresholds{Membership: 20, Expansion: 40},
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidWeightConfig))
	assert.Zero(t, f.gw.TotalCalls())
}

// --- expand ---

func TestExpand_Backward(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")

	res, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Generation)
	assert.Equal(t, int64(2), res.Version)
	assert.ElementsMatch(t, []string{"P1", "P2"}, ids(res.Candidates))
	assert.Equal(t, "P1", res.Candidates[0].PatentID, "P1 shares sector, assignee and both seeds")
	assert.Greater(t, res.Candidates[0].Composite, res.Candidates[1].Composite)

	p1, _ := candidateByID(res.Candidates, "P1")
	assert.Equal(t, []domain.Relation{domain.RelationParent}, p1.Relations)
	assert.Equal(t, []string{"S1", "S2"}, p1.DiscoveredBy)
	assert.Equal(t, 1, p1.Generation)

	assert.Equal(t, domain.StepExpand, res.Step.Kind)
	assert.Equal(t, 1, res.Step.Number)
	assert.Equal(t, 2, res.Step.Evaluated)
	assert.Equal(t, 2, res.Step.Accepted+res.Step.ExpansionZone+res.Step.Rejected)
	assert.NotNil(t, res.Warnings)

	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Candidates, 2)
	assert.Len(t, stored.Steps, 1)
	assert.Equal(t, res.Frontier, stored.Frontier)
	assert.Equal(t, domain.EventExplorationExpanded, f.events.Types()[1])
}

func TestExpand_ForwardThenBackwardSkipsSeen(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")

	res, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionForward})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"F1", "F2"}, ids(res.Candidates))

	// F1 cites S1, S2 and Z: the seeds are already known, only Z is new.
	res, err = f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)
	assert.Equal(t, []string{"Z"}, ids(res.Candidates))
	assert.Equal(t, 2, res.Candidates[0].Generation)
	assert.Equal(t, 2, res.Generation)
}

func TestExpand_DepthDecayLowersLaterGenerations(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")

	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionForward})
	require.NoError(t, err)
	res, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)

	z := res.Candidates[0]
	assert.Less(t, z.DepthMultiplier, 1.0)
	assert.InDelta(t, z.Raw*z.DepthMultiplier*100, z.Composite, 1e-9)
}

func TestExpand_EmptyDiscoveryKeepsGeneration(t *testing.T) {
	gw := testutil.NewFakeGateway()
	gw.AddPatent(citation.PatentDetail{ID: "LONE", Assignee: "Acme Corp"})
	f := newFixture(t, gw)
	st := f.create(t, "LONE")

	res, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBoth})
	require.NoError(t, err)

	assert.Empty(t, res.Candidates)
	assert.Equal(t, 0, res.Generation)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "no new candidates")
	assert.Equal(t, int64(2), res.Version, "an empty step is still recorded")
}

func TestExpand_InvalidDirection(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1")

	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: "sideways"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidDirection))
}

func TestExpand_UnknownExploration(t *testing.T) {
	f := newFixture(t, oledGraph())
	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: "missing", Direction: domain.DirectionBoth})
	assert.True(t, errors.IsCode(err, errors.ErrCodeExplorationNotFound))
}

func TestExpand_Deterministic(t *testing.T) {
	run := func() *domain.ExpansionResult {
		f := newFixture(t, oledGraph())
		st := f.create(t, "S1", "S2")
		_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBoth})
		require.NoError(t, err)
		res, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBoth})
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.Candidates, b.Candidates)
	assert.Equal(t, a.Frontier, b.Frontier)
	assert.Equal(t, a.Warnings, b.Warnings)
}

func TestExpand_CandidateCap(t *testing.T) {
	gw := testutil.NewFakeGateway()
	gw.AddPatent(citation.PatentDetail{ID: "HUB", Assignee: "Acme Corp", FilingDate: filed(2015)})
	// Only the filing gap to HUB differs, so the temporal dimension orders
	// the candidates: forty share each gap of 0..14 years.
	gapOf := func(i int) int { return i % 15 }
	for i := 0; i < 600; i++ {
		id := fmt.Sprintf("C%03d", i)
		gw.AddPatent(citation.PatentDetail{ID: id, Assignee: "Other Inc", FilingDate: filed(2015 - gapOf(i))})
		gw.Cite(id, "HUB")
	}
	f := newFixture(t, gw)
	st := f.create(t, "HUB")

	res, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionForward})
	require.NoError(t, err)

	assert.Len(t, res.Candidates, 500)
	assert.Equal(t, 100, res.Pruned)
	assert.Equal(t, 100, res.Step.Pruned)
	assert.True(t, hasWarning(res.Warnings, errors.ErrCodeCandidateCapExceeded))

	// gaps 0..11 fill 480 slots; the remaining 20 go to the lowest ids at gap 12
	var want []string
	atGap12 := 0
	for i := 0; i < 600; i++ {
		switch g := gapOf(i); {
		case g < 12:
			want = append(want, fmt.Sprintf("C%03d", i))
		case g == 12 && atGap12 < 20:
			want = append(want, fmt.Sprintf("C%03d", i))
			atGap12++
		}
	}
	assert.ElementsMatch(t, want, ids(res.Candidates))

	for i := 1; i < len(res.Candidates); i++ {
		prev, cur := res.Candidates[i-1], res.Candidates[i]
		ordered := prev.Composite > cur.Composite ||
			(prev.Composite == cur.Composite && prev.PatentID < cur.PatentID)
		assert.True(t, ordered, "%s before %s", prev.PatentID, cur.PatentID)
	}

	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Candidates, 500)
	_, kept := stored.Candidates["C014"]
	assert.False(t, kept, "a fourteen-year gap is pruned")
}

func TestExpand_MaxCandidatesOverride(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")

	res, err := f.svc.Expand(context.Background(), &ExpandRequest{
		ExplorationID: st.ID,
		Direction:     domain.DirectionBackward,
		MaxCandidates: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, ids(res.Candidates))
	assert.Equal(t, 1, res.Pruned)
}

func TestExpand_CandidateDetailFailureStillScored(t *testing.T) {
	gw := oledGraph()
	gw.Fail("detail", "P2", fmt.Errorf("registry down"))
	f := newFixture(t, gw)
	st := f.create(t, "S1", "S2")

	res, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)

	p2, ok := candidateByID(res.Candidates, "P2")
	require.True(t, ok)
	assert.Less(t, p2.Completeness, 1.0)
	assert.True(t, hasWarning(res.Warnings, errors.ErrCodeGatewayFetchFailure))
}

func TestExpand_StaleGeneration(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")

	_, err := f.svc.Expand(context.Background(), &ExpandRequest{
		ExplorationID:      st.ID,
		Direction:          domain.DirectionBackward,
		ExpectedGeneration: intPtr(3),
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeStaleGenerationConflict))

	_, err = f.svc.Expand(context.Background(), &ExpandRequest{
		ExplorationID:      st.ID,
		Direction:          domain.DirectionBackward,
		ExpectedGeneration: intPtr(0),
	})
	assert.NoError(t, err)
}

func TestExpand_ConcurrentWriterLoses(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")
	f.repo.BeforeUpdate = f.repo.Bump

	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	assert.True(t, errors.IsCode(err, errors.ErrCodeStaleGenerationConflict))

	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Candidates)
	assert.Empty(t, stored.Steps)
	assert.Equal(t, []string{domain.EventExplorationCreated}, f.events.Types())
}

func TestExpand_CancellationCommitsNothing(t *testing.T) {
	gw := oledGraph()
	f := newFixture(t, gw)
	st := f.create(t, "S1", "S2")
	gw.Delay = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := f.svc.Expand(ctx, &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBoth})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCanceled))

	assert.Zero(t, f.repo.Updates)
	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestExpand_RezonesBeforeDiscovering(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")
	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)

	// Thresholds above any score exclude every generation-1 candidate, so
	// the frontier is empty and nothing further is discovered.
	res, err := f.svc.Expand(context.Background(), &ExpandRequest{
		ExplorationID: st.ID,
		Direction:     domain.DirectionForward,
		Thresholds:    &scoring.Thresholds{Membership: 100, Expansion: 100},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "frontier is empty")

	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.Thresholds.Membership)
}

func TestExpand_EventPublishFailureIsLogged(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")
	f.events.Err = fmt.Errorf("broker down")

	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)
	assert.True(t, f.logger.HasMessage("warn", "event publish failed"))
}

// --- siblings ---

func TestExpandSiblings_SameGeneration(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")

	res, err := f.svc.ExpandSiblings(context.Background(), &SiblingsRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)

	require.Equal(t, []string{"X"}, ids(res.Candidates))
	x := res.Candidates[0]
	assert.Equal(t, 0, x.Generation)
	assert.Equal(t, []domain.Relation{domain.RelationSibling}, x.Relations)
	assert.Equal(t, 0, res.Generation)
	assert.Equal(t, domain.StepSiblings, res.Step.Kind)
	assert.Contains(t, res.Frontier, "X")
}

func TestExpandSiblings_Forward(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1")

	// F1 cites S1 and also Z and S2.
	res, err := f.svc.ExpandSiblings(context.Background(), &SiblingsRequest{ExplorationID: st.ID, Direction: domain.DirectionForward})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"S2", "Z"}, ids(res.Candidates))
}

func TestExpandSiblings_Symmetric(t *testing.T) {
	f := newFixture(t, oledGraph())

	fromS1 := f.create(t, "S1")
	res, err := f.svc.ExpandSiblings(context.Background(), &SiblingsRequest{ExplorationID: fromS1.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)
	assert.Contains(t, ids(res.Candidates), "X")

	fromX := f.create(t, "X")
	res, err = f.svc.ExpandSiblings(context.Background(), &SiblingsRequest{ExplorationID: fromX.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)
	assert.Contains(t, ids(res.Candidates), "S1")
}

// --- rescore ---

func TestRescore_MakesNoGatewayCalls(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")
	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBoth})
	require.NoError(t, err)

	before := f.gw.TotalCalls()
	res, err := f.svc.Rescore(context.Background(), &RescoreRequest{ExplorationID: st.ID, Preset: scoring.PresetCitationHeavy})
	require.NoError(t, err)
	assert.Equal(t, before, f.gw.TotalCalls())

	assert.Equal(t, domain.StepRescore, res.Step.Kind)
	assert.Equal(t, 4, res.Step.Evaluated)
	assert.Len(t, res.Candidates, 4)
	assert.Zero(t, res.Pruned)

	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, scoring.PresetCitationHeavy, stored.Preset)
	want, _ := scoring.Preset(scoring.PresetCitationHeavy)
	assert.Equal(t, want, stored.Weights)
}

func TestRescore_KeepsDimensions(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")
	exp, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)

	res, err := f.svc.Rescore(context.Background(), &RescoreRequest{ExplorationID: st.ID, Preset: scoring.PresetTaxonomyHeavy})
	require.NoError(t, err)

	for _, c := range res.Candidates {
		before, ok := candidateByID(exp.Candidates, c.PatentID)
		require.True(t, ok)
		assert.Equal(t, before.Dimensions, c.Dimensions)
	}
}

func TestRescore_OverridesSurvive(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")
	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)

	require.NoError(t, f.svc.SetCandidateStatus(context.Background(), st.ID, []domain.StatusChange{
		{PatentID: "P1", Status: domain.OverrideExcluded},
		{PatentID: "P2", Status: domain.OverrideMember},
	}))

	res, err := f.svc.Rescore(context.Background(), &RescoreRequest{
		ExplorationID: st.ID,
		Thresholds:    &scoring.Thresholds{Membership: 0, Expansion: 0},
	})
	require.NoError(t, err)

	p1, _ := candidateByID(res.Candidates, "P1")
	p2, _ := candidateByID(res.Candidates, "P2")
	assert.Equal(t, scoring.ZoneMember, p1.Zone)
	assert.Equal(t, domain.StatusExcluded, p1.Status)
	assert.Equal(t, domain.StatusMember, p2.Status)
	assert.Equal(t, []string{"P2"}, res.Frontier)
}

func TestRescore_EmptyExploration(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1")

	res, err := f.svc.Rescore(context.Background(), &RescoreRequest{ExplorationID: st.ID})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Len(t, res.Warnings, 1)
}

// --- status overrides ---

func TestSetCandidateStatus(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")
	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)

	err = f.svc.SetCandidateStatus(context.Background(), st.ID, []domain.StatusChange{{PatentID: "P1", Status: domain.OverrideExcluded}})
	require.NoError(t, err)

	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	status, ok := stored.StatusOf("P1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusExcluded, status)
	assert.NotContains(t, stored.Frontier, "P1")
	assert.Contains(t, f.events.Types(), domain.EventCandidateStatus)

	// clearing restores the zone-derived status
	err = f.svc.SetCandidateStatus(context.Background(), st.ID, []domain.StatusChange{{PatentID: "P1", Status: "none"}})
	require.NoError(t, err)
	stored, err = f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OverrideNone, stored.Candidates["P1"].Override)
}

func TestSetCandidateStatus_Rejections(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")
	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBackward})
	require.NoError(t, err)

	tests := []struct {
		name    string
		changes []domain.StatusChange
		code    errors.ErrorCode
	}{
		{"empty", nil, errors.CodeInvalidParam},
		{"unknown candidate", []domain.StatusChange{{PatentID: "NOPE", Status: domain.OverrideMember}}, errors.ErrCodeUnknownCandidate},
		{"seed", []domain.StatusChange{{PatentID: "S1", Status: domain.OverrideExcluded}}, errors.CodeInvalidParam},
		{"bad status", []domain.StatusChange{{PatentID: "P1", Status: "maybe"}}, errors.CodeInvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.SetCandidateStatus(context.Background(), st.ID, tt.changes)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}

	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version, "rejected batches commit nothing")
}

// --- aggregate rebuild ---

func TestRebuildAggregate_IncludesMembers(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")
	_, err := f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionForward})
	require.NoError(t, err)
	require.NoError(t, f.svc.SetCandidateStatus(context.Background(), st.ID, []domain.StatusChange{
		{PatentID: "F1", Status: domain.OverrideMember},
		{PatentID: "F2", Status: domain.OverrideExcluded},
	}))

	res, err := f.svc.RebuildAggregate(context.Background(), st.ID, intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Contributors)
	assert.NotNil(t, res.Warnings)

	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "S1", "S2"}, stored.Aggregate.SeedIDs)
	assert.Equal(t, []string{"S1", "S2"}, stored.SeedIDs)
	assert.Equal(t, domain.StepRebuild, stored.Steps[len(stored.Steps)-1].Kind)
}

func TestRebuildAggregate_StaleGeneration(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1")
	_, err := f.svc.RebuildAggregate(context.Background(), st.ID, intPtr(2))
	assert.True(t, errors.IsCode(err, errors.ErrCodeStaleGenerationConflict))
}

// --- archive ---

func TestArchiveExploration(t *testing.T) {
	f := newFixture(t, oledGraph())
	st := f.create(t, "S1", "S2")

	key, err := f.svc.ArchiveExploration(context.Background(), st.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Contains(t, f.snaps.Snapshots, key)

	stored, err := f.repo.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.True(t, stored.Archived)
	assert.Equal(t, key, stored.ArchiveKey)

	_, err = f.svc.Expand(context.Background(), &ExpandRequest{ExplorationID: st.ID, Direction: domain.DirectionBoth})
	assert.True(t, errors.IsCode(err, errors.ErrCodeExplorationArchived))
	_, err = f.svc.ArchiveExploration(context.Background(), st.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExplorationArchived))

	// reads still work
	got, err := f.svc.GetExploration(context.Background(), st.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)
}

func TestArchiveExploration_WithoutSnapshotStore(t *testing.T) {
	gw := oledGraph()
	repo := testutil.NewMemoryRepository()
	svc, err := NewService(Dependencies{Gateway: gw, Repo: repo}, DefaultConfig())
	require.NoError(t, err)
	res, err := svc.CreateExploration(context.Background(), &CreateRequest{SeedIDs: []string{"S1"}})
	require.NoError(t, err)

	_, err = svc.ArchiveExploration(context.Background(), res.Exploration.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

// --- listing ---

func TestListExplorations(t *testing.T) {
	f := newFixture(t, oledGraph())
	f.create(t, "S1")
	f.create(t, "S2")
	f.create(t, "S1", "S2")

	list, total, err := f.svc.ListExplorations(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 2)

	list, _, err = f.svc.ListExplorations(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// --- end to end ---

func TestExplorationLifecycle(t *testing.T) {
	f := newFixture(t, oledGraph())
	ctx := context.Background()

	created, err := f.svc.CreateExploration(ctx, &CreateRequest{
		Name:       "oled hosts",
		SeedIDs:    []string{"S1", "S2"},
		Preset:     scoring.PresetBalanced,
		Thresholds: lowThresholds(),
	})
	require.NoError(t, err)
	id := created.Exploration.ID

	back, err := f.svc.Expand(ctx, &ExpandRequest{ExplorationID: id, Direction: domain.DirectionBackward, ExpectedGeneration: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 1, back.Generation)

	sib, err := f.svc.ExpandSiblings(ctx, &SiblingsRequest{ExplorationID: id, Direction: domain.DirectionForward, ExpectedGeneration: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, sib.Generation)

	_, err = f.svc.Rescore(ctx, &RescoreRequest{ExplorationID: id, Preset: scoring.PresetPortfolioFocused})
	require.NoError(t, err)

	require.NoError(t, f.svc.SetCandidateStatus(ctx, id, []domain.StatusChange{{PatentID: "P2", Status: domain.OverrideExcluded}}))

	key, err := f.svc.ArchiveExploration(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	final, err := f.svc.GetExploration(ctx, id)
	require.NoError(t, err)
	require.Len(t, final.Steps, 3)
	for i, step := range final.Steps {
		assert.Equal(t, i+1, step.Number)
	}
	assert.Equal(t, int64(6), final.Version)
	assert.Equal(t, []string{
		domain.EventExplorationCreated,
		domain.EventExplorationExpanded,
		domain.EventExplorationExpanded,
		domain.EventExplorationRescored,
		domain.EventCandidateStatus,
		domain.EventExplorationArchived,
	}, f.events.Types())
	require.NoError(t, final.CheckInvariants())
}
