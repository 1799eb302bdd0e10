// Package prefetch warms the citation cache ahead of the next expansion step.
// It reacts to exploration events: after every committed mutation the new
// frontier's citation lists and the details of the patents one hop away are
// pulled through the cache-first gateway, so the next expand or siblings call
// is answered from Redis instead of the live stores.
package prefetch

import (
	"context"
	"sort"
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/batch"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// Run outcomes.
const (
	OutcomeWarmed  = "warmed"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Config tunes a Warmer.
type Config struct {
	Concurrency    int
	NeighbourLimit int
	ItemTimeout    time.Duration
	// After BreakerThreshold consecutive lookup failures the warmer stops
	// calling the gateway for BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// WarmResult summarizes one run.
type WarmResult struct {
	ExplorationID string `json:"exploration_id"`
	Frontier      int    `json:"frontier"`
	Neighbours    int    `json:"neighbours"`
	Failed        int    `json:"failed"`
	Skipped       bool   `json:"skipped"`
}

// Warmer pre-fetches the data the next expansion step will ask for.
type Warmer struct {
	repo    exploration.Repository
	gateway citation.Gateway
	cfg     Config
	proc    *batch.Processor[string, []string]
	metrics *prometheus.ExplorerMetrics
	logger  logging.Logger
}

// NewWarmer creates a Warmer. metrics and logger may be nil.
func NewWarmer(repo exploration.Repository, gw citation.Gateway, cfg Config, metrics *prometheus.ExplorerMetrics, logger logging.Logger) (*Warmer, error) {
	if repo == nil || gw == nil {
		return nil, errors.New(errors.ErrCodeValidation, "prefetch: repository and gateway are required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.NeighbourLimit < 0 {
		cfg.NeighbourLimit = 0
	}
	if metrics == nil {
		metrics = prometheus.NewNoopExplorerMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Named("prefetch")
	proc := batch.New[string, []string](
		batch.WithName("prefetch"),
		batch.WithMaxConcurrency(cfg.Concurrency),
		batch.WithItemTimeout(cfg.ItemTimeout),
		batch.WithRetryPolicy(batch.RetryPolicy{}),
		batch.WithCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		batch.WithLogger(logger),
	)
	return &Warmer{repo: repo, gateway: gw, cfg: cfg, proc: proc, metrics: metrics, logger: logger}, nil
}

// WarmFrontier loads the exploration and fetches the citation lists of its
// frontier, then the detail and citation lists of up to NeighbourLimit
// patents reachable from it that the exploration has not seen yet. Lookup
// failures are counted, not returned; only a failed load is an error.
func (w *Warmer) WarmFrontier(ctx context.Context, explorationID string) (*WarmResult, error) {
	res := &WarmResult{ExplorationID: explorationID}
	state, err := w.repo.Get(ctx, explorationID)
	if err != nil {
		return nil, err
	}
	if state.Archived || len(state.Frontier) == 0 {
		res.Skipped = true
		return res, nil
	}
	res.Frontier = len(state.Frontier)

	lists, err := w.fetchCitations(ctx, state.Frontier)
	if err != nil {
		return nil, err
	}
	seen := state.AlreadySeen()
	neighbours := make(map[string]struct{})
	for i, ids := range lists {
		if ids == nil {
			res.Failed++
			w.logger.Debug("Frontier citation fetch failed", logging.PatentID(state.Frontier[i]))
			continue
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			neighbours[id] = struct{}{}
		}
	}

	targets := make([]string, 0, len(neighbours))
	for id := range neighbours {
		targets = append(targets, id)
	}
	sort.Strings(targets)
	if len(targets) > w.cfg.NeighbourLimit {
		targets = targets[:w.cfg.NeighbourLimit]
	}
	if len(targets) == 0 {
		return res, nil
	}

	out, err := w.proc.Process(ctx, targets, func(ctx context.Context, id string) ([]string, error) {
		if _, err := w.gateway.GetPatentDetail(ctx, id); err != nil {
			return nil, err
		}
		return w.citations(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	res.Neighbours = out.Succeeded
	res.Failed += out.Failed
	return res, nil
}

// fetchCitations returns, per frontier id, the union of its backward and
// forward citations, or nil when either lookup failed.
func (w *Warmer) fetchCitations(ctx context.Context, frontier []string) ([][]string, error) {
	out, err := w.proc.Process(ctx, frontier, w.citations)
	if err != nil {
		return nil, err
	}
	lists := make([][]string, len(frontier))
	for _, it := range out.Items {
		if it.OK() {
			lists[it.Index] = append([]string{}, it.Result...)
		}
	}
	return lists, nil
}

func (w *Warmer) citations(ctx context.Context, id string) ([]string, error) {
	back, err := w.gateway.GetBackwardCitations(ctx, id)
	if err != nil {
		return nil, err
	}
	fwd, err := w.gateway.GetForwardCitations(ctx, id)
	if err != nil {
		return nil, err
	}
	return append(append(make([]string, 0, len(back)+len(fwd)), back...), fwd...), nil
}

// Triggers reports whether an event type changes what the next step will
// fetch.
func Triggers(eventType string) bool {
	switch eventType {
	case exploration.EventExplorationCreated,
		exploration.EventExplorationExpanded,
		exploration.EventExplorationRescored,
		exploration.EventCandidateStatus,
		exploration.EventAggregateRebuilt:
		return true
	}
	return false
}

// Handler returns a kafka.Handler that warms the exploration named in each
// envelope's metadata. Warming is best effort: errors are logged and the
// message is committed so one bad exploration never stalls the partition.
func (w *Warmer) Handler(timeout time.Duration) kafka.Handler {
	return func(ctx context.Context, env *kafka.EventEnvelope) error {
		id := env.Metadata["exploration_id"]
		if !Triggers(env.EventType) || id == "" {
			return nil
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		res, err := w.WarmFrontier(ctx, id)
		switch {
		case err != nil:
			w.metrics.RecordPrefetch(env.EventType, OutcomeFailed, time.Since(start), 0, 0)
			level := w.logger.Warn
			if errors.IsCode(err, errors.ErrCodeExplorationNotFound) {
				level = w.logger.Debug
			}
			level("Frontier prefetch failed",
				logging.ExplorationID(id),
				logging.String("event_type", env.EventType),
				logging.Err(err))
		case res.Skipped:
			w.metrics.RecordPrefetch(env.EventType, OutcomeSkipped, time.Since(start), 0, 0)
		default:
			w.metrics.RecordPrefetch(env.EventType, OutcomeWarmed, time.Since(start), res.Neighbours, res.Failed)
			w.logger.Info("Frontier warmed",
				logging.ExplorationID(id),
				logging.String("event_type", env.EventType),
				logging.Int("frontier", res.Frontier),
				logging.Int("neighbours", res.Neighbours),
				logging.Int("failed", res.Failed),
				logging.Duration("elapsed", time.Since(start)))
		}
		return nil
	}
}
