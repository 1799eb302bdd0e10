package exploration

import (
	"context"
	"time"

	domain "github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/tracing"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// CreatedPayload is the payload of exploration.created.
type CreatedPayload struct {
	Seeds    int    `json:"seeds"`
	Preset   string `json:"preset,omitempty"`
	Warnings int    `json:"warnings"`
}

func (s *serviceImpl) CreateExploration(ctx context.Context, req *CreateRequest) (result *CreateResult, err error) {
	if req == nil {
		return nil, errors.New(errors.CodeInvalidParam, "request must not be nil")
	}
	timer := time.Now()
	ctx, span := tracing.Start(ctx, "exploration.Create", tracing.Count("seeds", len(req.SeedIDs)))
	defer func() {
		s.metrics.RecordStep("create", outcomeOf(err), time.Since(timer), 0, 0, nil)
		tracing.End(span, err)
	}()

	preset := req.Preset
	switch {
	case req.Weights != nil:
		preset = ""
	case preset == "":
		preset = s.cfg.DefaultPreset
	}
	weights, thresholds, err := resolveConfig(preset, req.Weights, req.Thresholds, scoring.DefaultWeights(), s.cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.stepContext(ctx)
	defer cancel()

	agg, warnings, err := s.buildAggregate(ctx, req.SeedIDs)
	if err != nil {
		return nil, abandoned(ctx, err)
	}
	if err = ctx.Err(); err != nil {
		return nil, abandoned(ctx, err)
	}

	id := req.ID
	if id == "" {
		id = s.newID()
	}
	st := domain.NewExplorationState(id, req.Name, agg, preset, weights, thresholds, s.now())
	if err = s.repo.Create(ctx, st); err != nil {
		return nil, err
	}

	s.logger.Info("exploration created",
		logging.ExplorationID(id),
		logging.Int("seeds", len(st.SeedIDs)),
		logging.Int("warnings", len(warnings)))
	s.publish(ctx, domain.EventExplorationCreated, st, CreatedPayload{Seeds: len(st.SeedIDs), Preset: preset, Warnings: len(warnings)})
	return &CreateResult{Exploration: st, Warnings: nonNil(warnings)}, nil
}

func (s *serviceImpl) Expand(ctx context.Context, req *ExpandRequest) (*domain.ExpansionResult, error) {
	if req == nil {
		return nil, errors.New(errors.CodeInvalidParam, "request must not be nil")
	}
	dir, err := domain.ParseDirection(string(req.Direction))
	if err != nil {
		return nil, err
	}
	return s.discoveryStep(ctx, stepPlan{
		kind:               domain.StepExpand,
		explorationID:      req.ExplorationID,
		direction:          dir,
		expectedGeneration: req.ExpectedGeneration,
		preset:             req.Preset,
		weights:            req.Weights,
		thresholds:         req.Thresholds,
		maxCandidates:      req.MaxCandidates,
		discover:           s.citationsDiscoverer(dir),
		advance:            true,
	})
}

func (s *serviceImpl) ExpandSiblings(ctx context.Context, req *SiblingsRequest) (*domain.ExpansionResult, error) {
	if req == nil {
		return nil, errors.New(errors.CodeInvalidParam, "request must not be nil")
	}
	dir, err := domain.ParseDirection(string(req.Direction))
	if err != nil {
		return nil, err
	}
	return s.discoveryStep(ctx, stepPlan{
		kind:               domain.StepSiblings,
		explorationID:      req.ExplorationID,
		direction:          dir,
		expectedGeneration: req.ExpectedGeneration,
		maxCandidates:      req.MaxCandidates,
		discover:           s.siblingsDiscoverer(dir),
	})
}

type stepPlan struct {
	kind               domain.StepKind
	explorationID      string
	direction          domain.Direction
	expectedGeneration *int
	preset             string
	weights            *scoring.ScoringWeights
	thresholds         *scoring.Thresholds
	maxCandidates      int
	discover           discoverFunc
	// advance moves the exploration to the next generation when at least
	// one candidate is kept.
	advance bool
}

func (s *serviceImpl) discoveryStep(ctx context.Context, plan stepPlan) (result *domain.ExpansionResult, err error) {
	startedAt := s.now().UTC()
	timer := time.Now()
	kind := string(plan.kind)
	ctx, span := tracing.Start(ctx, "exploration."+kind,
		tracing.ExplorationID(plan.explorationID),
		tracing.Operation(string(plan.direction)))
	s.metrics.ActiveSteps.WithLabelValues(kind).Inc()
	defer func() {
		s.metrics.ActiveSteps.WithLabelValues(kind).Dec()
		var evaluated, pruned int
		var zones map[string]int
		if result != nil {
			evaluated, pruned, zones = result.Step.Evaluated, result.Pruned, zoneCounts(result.Candidates)
		}
		s.metrics.RecordStep(kind, outcomeOf(err), time.Since(timer), evaluated, pruned, zones)
		tracing.End(span, err)
	}()

	ctx, cancel := s.stepContext(ctx)
	defer cancel()

	prev, err := s.load(ctx, plan.explorationID, plan.expectedGeneration)
	if err != nil {
		return nil, err
	}
	weights, thresholds, err := resolveConfig(plan.preset, plan.weights, plan.thresholds, prev.Weights, prev.Thresholds)
	if err != nil {
		return nil, err
	}

	next := prev.Clone()
	if plan.weights != nil {
		next.Preset = ""
	} else if plan.preset != "" {
		next.Preset = plan.preset
	}
	if weights != prev.Weights || thresholds != prev.Thresholds {
		next.Rezone(weights, thresholds)
	}

	maxCandidates := plan.maxCandidates
	if maxCandidates <= 0 {
		maxCandidates = s.cfg.MaxCandidates
	}
	out, err := s.runDiscovery(ctx, stepInput{
		frontier:      frontierNodes(next),
		aggregate:     next.Aggregate,
		seen:          next.AlreadySeen(),
		seeds:         setOf(next.SeedIDs),
		weights:       weights,
		thresholds:    thresholds,
		maxCandidates: maxCandidates,
		stepNumber:    next.NextStepNumber(),
	}, plan.discover)
	if err != nil {
		return nil, abandoned(ctx, err)
	}

	views := make([]domain.ScoredCandidate, 0, len(out.records))
	for _, r := range out.records {
		next.Candidates[r.PatentID] = r
		views = append(views, r.View())
	}
	if plan.advance && len(out.records) > 0 {
		next.CurrentGeneration++
	}
	next.RecomputeFrontier()
	domain.SortCandidates(views)

	step := domain.ExpansionStep{
		Number:      next.NextStepNumber(),
		Kind:        plan.kind,
		Direction:   plan.direction,
		Generation:  next.CurrentGeneration,
		Pruned:      out.pruned,
		Weights:     weights,
		Thresholds:  thresholds,
		Warnings:    out.warnings,
		StartedAt:   startedAt,
		CompletedAt: s.now().UTC(),
	}
	domain.CountZones(&step, views)
	next.Steps = append(next.Steps, step)

	if err = s.commit(ctx, prev, next); err != nil {
		return nil, err
	}

	s.logger.Info("exploration step committed",
		logging.ExplorationID(next.ID),
		logging.String("step", step.Label()),
		logging.Int("generation", next.CurrentGeneration),
		logging.Int("evaluated", step.Evaluated),
		logging.Int("accepted", step.Accepted),
		logging.Int("pruned", step.Pruned),
		logging.Int("warnings", len(step.Warnings)))
	s.publish(ctx, domain.EventExplorationExpanded, next, domain.NewStepPayload(step))

	return &domain.ExpansionResult{
		ExplorationID: next.ID,
		Generation:    next.CurrentGeneration,
		Version:       next.Version,
		Step:          step,
		Candidates:    views,
		Frontier:      append([]string{}, next.Frontier...),
		Pruned:        out.pruned,
		Warnings:      nonNil(out.warnings),
	}, nil
}

func (s *serviceImpl) Rescore(ctx context.Context, req *RescoreRequest) (result *domain.ExpansionResult, err error) {
	if req == nil {
		return nil, errors.New(errors.CodeInvalidParam, "request must not be nil")
	}
	startedAt := s.now().UTC()
	timer := time.Now()
	ctx, span := tracing.Start(ctx, "exploration.rescore", tracing.ExplorationID(req.ExplorationID))
	defer func() {
		s.metrics.RescoreDuration.WithLabelValues().Observe(time.Since(timer).Seconds())
		var evaluated int
		var zones map[string]int
		if result != nil {
			evaluated, zones = result.Step.Evaluated, zoneCounts(result.Candidates)
		}
		s.metrics.RecordStep(string(domain.StepRescore), outcomeOf(err), time.Since(timer), evaluated, 0, zones)
		tracing.End(span, err)
	}()

	prev, err := s.load(ctx, req.ExplorationID, req.ExpectedGeneration)
	if err != nil {
		return nil, err
	}
	weights, thresholds, err := resolveConfig(req.Preset, req.Weights, req.Thresholds, prev.Weights, prev.Thresholds)
	if err != nil {
		return nil, err
	}

	next := prev.Clone()
	if req.Weights != nil {
		next.Preset = ""
	} else if req.Preset != "" {
		next.Preset = req.Preset
	}
	next.Rezone(weights, thresholds)

	views := make([]domain.ScoredCandidate, 0, len(next.Candidates))
	for _, r := range next.Candidates {
		views = append(views, r.View())
	}
	domain.SortCandidates(views)

	warnings := []string{}
	if len(views) == 0 {
		warnings = append(warnings, "exploration has no candidates to rescore")
	}
	step := domain.ExpansionStep{
		Number:      next.NextStepNumber(),
		Kind:        domain.StepRescore,
		Generation:  next.CurrentGeneration,
		Weights:     weights,
		Thresholds:  thresholds,
		Warnings:    warnings,
		StartedAt:   startedAt,
		CompletedAt: s.now().UTC(),
	}
	domain.CountZones(&step, views)
	next.Steps = append(next.Steps, step)

	if err = s.commit(ctx, prev, next); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventExplorationRescored, next, domain.NewStepPayload(step))

	return &domain.ExpansionResult{
		ExplorationID: next.ID,
		Generation:    next.CurrentGeneration,
		Version:       next.Version,
		Step:          step,
		Candidates:    views,
		Frontier:      append([]string{}, next.Frontier...),
		Warnings:      warnings,
	}, nil
}

func (s *serviceImpl) SetCandidateStatus(ctx context.Context, explorationID string, changes []domain.StatusChange) (err error) {
	if len(changes) == 0 {
		return errors.New(errors.CodeInvalidParam, "at least one status change is required")
	}
	ctx, span := tracing.Start(ctx, "exploration.SetCandidateStatus",
		tracing.ExplorationID(explorationID), tracing.Count("changes", len(changes)))
	defer func() { tracing.End(span, err) }()

	prev, err := s.load(ctx, explorationID, nil)
	if err != nil {
		return err
	}
	next := prev.Clone()
	applied := make([]domain.StatusChange, 0, len(changes))
	for _, c := range changes {
		o, err := domain.ParseOverride(string(c.Status))
		if err != nil {
			return err
		}
		if next.IsSeed(c.PatentID) {
			return errors.Newf(errors.CodeInvalidParam, "seed %s is always a member", c.PatentID)
		}
		if err := next.SetOverride(c.PatentID, o); err != nil {
			return err
		}
		applied = append(applied, domain.StatusChange{PatentID: c.PatentID, Status: o})
	}
	next.RecomputeFrontier()

	if err = s.commit(ctx, prev, next); err != nil {
		return err
	}
	s.publish(ctx, domain.EventCandidateStatus, next, applied)
	return nil
}

func (s *serviceImpl) RebuildAggregate(ctx context.Context, explorationID string, expectedGeneration *int) (result *RebuildResult, err error) {
	startedAt := s.now().UTC()
	timer := time.Now()
	kind := string(domain.StepRebuild)
	ctx, span := tracing.Start(ctx, "exploration.RebuildAggregate", tracing.ExplorationID(explorationID))
	defer func() {
		s.metrics.RecordStep(kind, outcomeOf(err), time.Since(timer), 0, 0, nil)
		tracing.End(span, err)
	}()

	ctx, cancel := s.stepContext(ctx)
	defer cancel()

	prev, err := s.load(ctx, explorationID, expectedGeneration)
	if err != nil {
		return nil, err
	}
	agg, warnings, err := s.buildAggregate(ctx, prev.Members())
	if err != nil {
		return nil, abandoned(ctx, err)
	}

	next := prev.Clone()
	next.Aggregate = agg
	step := domain.ExpansionStep{
		Number:      next.NextStepNumber(),
		Kind:        domain.StepRebuild,
		Generation:  next.CurrentGeneration,
		Weights:     next.Weights,
		Thresholds:  next.Thresholds,
		Warnings:    warnings,
		StartedAt:   startedAt,
		CompletedAt: s.now().UTC(),
	}
	next.Steps = append(next.Steps, step)

	if err = s.commit(ctx, prev, next); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventAggregateRebuilt, next, domain.NewStepPayload(step))
	return &RebuildResult{
		ExplorationID: next.ID,
		Version:       next.Version,
		Contributors:  agg.SeedCount(),
		Warnings:      nonNil(warnings),
	}, nil
}

func (s *serviceImpl) ArchiveExploration(ctx context.Context, explorationID string) (key string, err error) {
	ctx, span := tracing.Start(ctx, "exploration.Archive", tracing.ExplorationID(explorationID))
	defer func() { tracing.End(span, err) }()

	if s.snapshots == nil {
		return "", errors.New(errors.ErrCodeServiceUnavailable, "archive storage is not configured")
	}
	prev, err := s.load(ctx, explorationID, nil)
	if err != nil {
		return "", err
	}

	next := prev.Clone()
	next.Archived = true
	snap := next.Clone()
	snap.Touch(s.now())
	if key, err = s.snapshots.PutSnapshot(ctx, snap); err != nil {
		return "", err
	}
	next.ArchiveKey = key

	if err = s.commit(ctx, prev, next); err != nil {
		s.logger.Warn("archive snapshot written but commit failed",
			logging.ExplorationID(explorationID), logging.String("key", key), logging.Err(err))
		return "", err
	}
	s.publish(ctx, domain.EventExplorationArchived, next, map[string]string{"key": key})
	return key, nil
}

// abandoned maps an error raised while the step context was ending to the
// cancel or timeout code; other errors pass through.
func abandoned(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.Wrap(err, errors.ErrCodeTimeout, "step timed out, nothing committed")
	case ctx.Err() != nil:
		return errors.Wrap(err, errors.ErrCodeCanceled, "step cancelled, nothing committed")
	}
	return err
}
