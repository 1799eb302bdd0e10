// Package exploration is the application service of the family explorer. It
// orchestrates the gateway, the scoring model and the exploration repository
// into the create, expand, sibling, rescore and override operations.
package exploration

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/config"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	domain "github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// Service is the exploration use-case boundary consumed by the HTTP handlers.
type Service interface {
	CreateExploration(ctx context.Context, req *CreateRequest) (*CreateResult, error)
	Expand(ctx context.Context, req *ExpandRequest) (*domain.ExpansionResult, error)
	ExpandSiblings(ctx context.Context, req *SiblingsRequest) (*domain.ExpansionResult, error)
	Rescore(ctx context.Context, req *RescoreRequest) (*domain.ExpansionResult, error)
	SetCandidateStatus(ctx context.Context, explorationID string, changes []domain.StatusChange) error
	GetExploration(ctx context.Context, explorationID string) (*domain.ExplorationState, error)
	ListExplorations(ctx context.Context, limit, offset int) ([]domain.Summary, int64, error)
	RebuildAggregate(ctx context.Context, explorationID string, expectedGeneration *int) (*RebuildResult, error)
	ArchiveExploration(ctx context.Context, explorationID string) (string, error)
}

// CreateRequest starts an exploration. Weights beats Preset; both empty means
// the configured default preset.
type CreateRequest struct {
	ID         string
	Name       string
	SeedIDs    []string
	Preset     string
	Weights    *scoring.ScoringWeights
	Thresholds *scoring.Thresholds
}

// CreateResult carries the new state and the per-seed warnings.
type CreateResult struct {
	Exploration *domain.ExplorationState `json:"exploration"`
	Warnings    []string                 `json:"warnings"`
}

// ExpandRequest advances the exploration by one generation. Supplied weights
// or thresholds become the exploration's current configuration and are
// applied to the existing candidates before the frontier is taken.
type ExpandRequest struct {
	ExplorationID      string
	Direction          domain.Direction
	Preset             string
	Weights            *scoring.ScoringWeights
	Thresholds         *scoring.Thresholds
	MaxCandidates      int
	ExpectedGeneration *int
}

// SiblingsRequest adds the co-citers or co-cited patents of the frontier.
type SiblingsRequest struct {
	ExplorationID      string
	Direction          domain.Direction
	MaxCandidates      int
	ExpectedGeneration *int
}

// RescoreRequest reweights and rezones every candidate from its cached
// dimension scores.
type RescoreRequest struct {
	ExplorationID      string
	Preset             string
	Weights            *scoring.ScoringWeights
	Thresholds         *scoring.Thresholds
	ExpectedGeneration *int
}

// RebuildResult reports a replaced seed aggregate.
type RebuildResult struct {
	ExplorationID string   `json:"exploration_id"`
	Version       int64    `json:"version"`
	Contributors  int      `json:"contributors"`
	Warnings      []string `json:"warnings"`
}

// Config holds the engine tunables.
type Config struct {
	FetchConcurrency     int
	ScoreConcurrency     int
	MaxCandidates        int
	Thresholds           scoring.Thresholds
	DefaultPreset        string
	CompetitorProbeLimit int
	SeedProbeLimit       int
	StepTimeout          time.Duration
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		FetchConcurrency:     config.DefaultFetchConcurrency,
		ScoreConcurrency:     8,
		MaxCandidates:        config.DefaultMaxCandidates,
		Thresholds:           scoring.DefaultThresholds(),
		DefaultPreset:        scoring.DefaultPreset,
		CompetitorProbeLimit: config.DefaultCompetitorProbeLimit,
		SeedProbeLimit:       config.DefaultSeedProbeLimit,
		StepTimeout:          2 * time.Minute,
	}
}

// ConfigFrom maps the explorer configuration section.
func ConfigFrom(c config.ExplorerConfig) Config {
	return Config{
		FetchConcurrency:     c.FetchConcurrency,
		ScoreConcurrency:     c.ScoreConcurrency,
		MaxCandidates:        c.DefaultMaxCandidates,
		Thresholds:           scoring.Thresholds{Membership: c.MembershipThreshold, Expansion: c.ExpansionThreshold},
		DefaultPreset:        c.DefaultPreset,
		CompetitorProbeLimit: c.CompetitorProbeLimit,
		SeedProbeLimit:       c.SeedProbeLimit,
		StepTimeout:          c.StepTimeout,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.FetchConcurrency < 1 {
		c.FetchConcurrency = d.FetchConcurrency
	}
	if c.ScoreConcurrency < 1 {
		c.ScoreConcurrency = d.ScoreConcurrency
	}
	if c.MaxCandidates < 1 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.Thresholds == (scoring.Thresholds{}) {
		c.Thresholds = d.Thresholds
	}
	if c.DefaultPreset == "" {
		c.DefaultPreset = d.DefaultPreset
	}
	if c.CompetitorProbeLimit < 0 {
		c.CompetitorProbeLimit = 0
	}
	if c.SeedProbeLimit < 0 {
		c.SeedProbeLimit = 0
	}
}

// Dependencies are the collaborators of the service. Snapshots and Events
// are optional.
type Dependencies struct {
	Gateway   citation.Gateway
	Repo      domain.Repository
	Snapshots domain.SnapshotStore
	Events    domain.EventPublisher
	Metrics   *prometheus.ExplorerMetrics
	Logger    logging.Logger

	// Clock and NewID default to time.Now and uuid.NewString.
	Clock func() time.Time
	NewID func() string
}

type serviceImpl struct {
	gw        citation.Gateway
	repo      domain.Repository
	snapshots domain.SnapshotStore
	events    domain.EventPublisher
	metrics   *prometheus.ExplorerMetrics
	logger    logging.Logger
	now       func() time.Time
	newID     func() string
	cfg       Config

	resolver *profileResolver
}

// NewService wires a Service.
func NewService(deps Dependencies, cfg Config) (Service, error) {
	if deps.Gateway == nil {
		return nil, errors.New(errors.ErrCodeInternal, "exploration service requires a gateway")
	}
	if deps.Repo == nil {
		return nil, errors.New(errors.ErrCodeInternal, "exploration service requires a repository")
	}
	cfg.applyDefaults()
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if _, err := scoring.Preset(cfg.DefaultPreset); err != nil {
		return nil, err
	}

	s := &serviceImpl{
		gw:        deps.Gateway,
		repo:      deps.Repo,
		snapshots: deps.Snapshots,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Clock,
		newID:     deps.NewID,
		cfg:       cfg,
	}
	if s.metrics == nil {
		s.metrics = prometheus.NewNoopExplorerMetrics()
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.resolver = newProfileResolver(s.gw, cfg.CompetitorProbeLimit, s.logger)
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) GetExploration(ctx context.Context, explorationID string) (*domain.ExplorationState, error) {
	if explorationID == "" {
		return nil, errors.New(errors.CodeInvalidParam, "exploration id is required")
	}
	return s.repo.Get(ctx, explorationID)
}

func (s *serviceImpl) ListExplorations(ctx context.Context, limit, offset int) ([]domain.Summary, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared step plumbing
// ─────────────────────────────────────────────────────────────────────────────

// load fetches the state for a mutation and rejects archived explorations
// and mismatched generation expectations.
func (s *serviceImpl) load(ctx context.Context, id string, expectedGeneration *int) (*domain.ExplorationState, error) {
	if id == "" {
		return nil, errors.New(errors.CodeInvalidParam, "exploration id is required")
	}
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Archived {
		return nil, errors.Newf(errors.ErrCodeExplorationArchived, "exploration %s is archived", id)
	}
	if expectedGeneration != nil && *expectedGeneration != st.CurrentGeneration {
		return nil, errors.Newf(errors.ErrCodeStaleGenerationConflict,
			"exploration %s is at generation %d, expected %d", id, st.CurrentGeneration, *expectedGeneration)
	}
	return st, nil
}

// commit bumps the version of next and writes it if the stored version still
// equals prev's. A cancelled context commits nothing.
func (s *serviceImpl) commit(ctx context.Context, prev, next *domain.ExplorationState) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCanceled, "step abandoned before commit")
	}
	next.Touch(s.now())
	if err := next.CheckInvariants(); err != nil {
		return err
	}
	return s.repo.Update(ctx, next, prev.Version)
}

// publish emits an event after a commit. Failures are logged only: the state
// change is already durable.
func (s *serviceImpl) publish(ctx context.Context, eventType string, st *domain.ExplorationState, payload interface{}) {
	if s.events == nil {
		return
	}
	ev := domain.Event{
		Type:          eventType,
		ExplorationID: st.ID,
		Version:       st.Version,
		Generation:    st.CurrentGeneration,
		OccurredAt:    s.now().UTC(),
		Payload:       payload,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed",
			logging.String("event_type", eventType),
			logging.ExplorationID(st.ID),
			logging.Err(err))
	}
}

// stepContext applies the configured step timeout.
func (s *serviceImpl) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StepTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.StepTimeout)
	}
	return context.WithCancel(ctx)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return prometheus.OutcomeCommitted
	case errors.IsCode(err, errors.ErrCodeStaleGenerationConflict):
		return prometheus.OutcomeConflict
	case errors.IsCode(err, errors.ErrCodeCanceled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return prometheus.OutcomeCancelled
	}
	return prometheus.OutcomeFailed
}

func zoneCounts(cs []domain.ScoredCandidate) map[string]int {
	out := make(map[string]int, 3)
	for _, c := range cs {
		out[string(c.Zone)]++
	}
	return out
}

// resolveConfig merges optional weights and thresholds over base values.
func resolveConfig(preset string, w *scoring.ScoringWeights, t *scoring.Thresholds,
	baseW scoring.ScoringWeights, baseT scoring.Thresholds) (scoring.ScoringWeights, scoring.Thresholds, error) {
	weights := baseW
	if w != nil || preset != "" {
		rw, err := scoring.ResolveWeights(preset, w)
		if err != nil {
			return scoring.ScoringWeights{}, scoring.Thresholds{}, err
		}
		weights = rw
	}
	thresholds := baseT
	if t != nil {
		if err := t.Validate(); err != nil {
			return scoring.ScoringWeights{}, scoring.Thresholds{}, err
		}
		thresholds = *t
	}
	return weights, thresholds, nil
}

func nonNil(ws []string) []string {
	if ws == nil {
		return []string{}
	}
	return ws
}
