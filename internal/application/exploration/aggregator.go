package exploration

import (
	"context"
	"fmt"
	"strings"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/tracing"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/batch"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

type seedOutcome struct {
	profile  *scoring.SeedProfile
	warnings []string
}

// buildAggregate resolves every seed concurrently and builds the aggregate
// from those that resolved. Seeds that fail become IncompleteSeedData
// warnings; none resolving is NoValidSeeds.
func (s *serviceImpl) buildAggregate(ctx context.Context, seedIDs []string) (*scoring.SeedAggregate, []string, error) {
	ids := citation.NormalizeIDs(seedIDs)
	if len(ids) == 0 {
		return nil, nil, errors.New(errors.ErrCodeNoValidSeeds, "at least one seed id is required")
	}

	ctx, span := tracing.Start(ctx, "exploration.BuildAggregate", tracing.Count("seeds", len(ids)))
	var spanErr error
	defer func() { tracing.End(span, spanErr) }()

	proc := batch.New[string, seedOutcome](
		batch.WithName("seed-resolution"),
		batch.WithMaxConcurrency(s.cfg.FetchConcurrency),
		batch.WithRetryPolicy(batch.RetryPolicy{}),
		batch.WithLogger(s.logger),
	)
	res, err := proc.Process(ctx, ids, func(ctx context.Context, id string) (seedOutcome, error) {
		p, warnings, err := s.resolver.seed(ctx, id, s.cfg.SeedProbeLimit)
		if err != nil {
			return seedOutcome{warnings: warnings}, err
		}
		return seedOutcome{profile: p, warnings: warnings}, nil
	})
	if err != nil {
		spanErr = err
		return nil, nil, errors.Wrap(err, errors.ErrCodeCanceled, "seed resolution abandoned")
	}

	var (
		profiles []scoring.SeedProfile
		warnings []string
		failed   []string
	)
	for _, it := range res.Items {
		id := ids[it.Index]
		if !it.OK() {
			failed = append(failed, id)
			warnings = append(warnings, fmt.Sprintf("%s: seed %s excluded from aggregate: %v", errors.ErrCodeIncompleteSeedData, id, it.Err))
			continue
		}
		profiles = append(profiles, *it.Result.profile)
		warnings = append(warnings, it.Result.warnings...)
	}

	if len(profiles) == 0 {
		spanErr = errors.New(errors.ErrCodeNoValidSeeds, "no seed could be resolved")
		return nil, warnings, errors.New(errors.ErrCodeNoValidSeeds, "no seed could be resolved").
			WithDetail(strings.Join(failed, ","))
	}
	if len(failed) > 0 {
		s.logger.Warn("aggregate built from partial seed set",
			logging.Int("resolved", len(profiles)),
			logging.Strings("failed", failed))
	}
	return scoring.NewSeedAggregate(profiles, s.now()), warnings, nil
}
