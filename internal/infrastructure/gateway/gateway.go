// Package gateway implements citation.Gateway as a Redis cache in front of
// the live graph and reference repositories. Concurrent misses for one key
// collapse into a single live call, live calls are bounded by a timeout,
// retried, and guarded by a circuit breaker shared across explorations.
package gateway

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/tracing"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/batch"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// Operation names used for keys, metrics and spans.
const (
	OpBackward   = "backward_citations"
	OpForward    = "forward_citations"
	OpDetail     = "patent_detail"
	OpSector     = "sector_for_cpc"
	OpPortfolio  = "portfolio_member"
	OpAffiliate  = "affiliate"
	OpCompetitor = "competitor"
)

// Options tunes TTLs and the live fallback.
type Options struct {
	CitationTTL      time.Duration
	DetailTTL        time.Duration
	ReferenceTTL     time.Duration
	LiveTimeout      time.Duration
	LiveRetries      int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultOptions matches the configuration defaults.
func DefaultOptions() Options {
	return Options{
		CitationTTL:      24 * time.Hour,
		DetailTTL:        24 * time.Hour,
		ReferenceTTL:     time.Hour,
		LiveTimeout:      10 * time.Second,
		LiveRetries:      2,
		BreakerThreshold: 20,
		BreakerCooldown:  30 * time.Second,
	}
}

type liveCall func(ctx context.Context) (interface{}, error)

// CachedGateway is safe for concurrent use.
type CachedGateway struct {
	cache   redis.Cache
	graph   citation.GraphRepository
	ref     citation.ReferenceRepository
	metrics *prometheus.ExplorerMetrics
	log     logging.Logger
	opts    Options
	live    *batch.Processor[liveCall, interface{}]
}

var _ citation.Gateway = (*CachedGateway)(nil)

// NewCachedGateway wires the cache to the live sources. metrics and log may be nil.
func NewCachedGateway(cache redis.Cache, graph citation.GraphRepository, ref citation.ReferenceRepository,
	metrics *prometheus.ExplorerMetrics, log logging.Logger, opts Options) *CachedGateway {
	if metrics == nil {
		metrics = prometheus.NewNoopExplorerMetrics()
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	def := DefaultOptions()
	if opts.CitationTTL <= 0 {
		opts.CitationTTL = def.CitationTTL
	}
	if opts.DetailTTL <= 0 {
		opts.DetailTTL = def.DetailTTL
	}
	if opts.ReferenceTTL <= 0 {
		opts.ReferenceTTL = def.ReferenceTTL
	}
	if opts.LiveTimeout <= 0 {
		opts.LiveTimeout = def.LiveTimeout
	}
	if opts.LiveRetries < 0 {
		opts.LiveRetries = 0
	}

	policy := batch.DefaultRetryPolicy()
	policy.MaxRetries = opts.LiveRetries
	policy.Retryable = func(err error) bool { return !errors.IsNotFound(err) }
	bopts := []batch.Option{
		batch.WithName("gateway-live"),
		batch.WithLogger(log),
		batch.WithItemTimeout(opts.LiveTimeout),
		batch.WithRetryPolicy(policy),
	}
	if opts.BreakerThreshold > 0 && opts.BreakerCooldown > 0 {
		bopts = append(bopts, batch.WithCircuitBreaker(opts.BreakerThreshold, opts.BreakerCooldown))
	}

	return &CachedGateway{
		cache:   cache,
		graph:   graph,
		ref:     ref,
		metrics: metrics,
		log:     log,
		opts:    opts,
		live:    batch.New[liveCall, interface{}](bopts...),
	}
}

// fetch is the single cache-then-live path every lookup goes through. A live
// call that returns (nil, nil) is cached as a negative result.
func (g *CachedGateway) fetch(ctx context.Context, op, key string, ttl time.Duration, dest interface{}, call liveCall) (found bool, err error) {
	fromCache, err := g.cache.GetOrLoad(ctx, key, dest, ttl, func(ctx context.Context) (interface{}, error) {
		return g.callLive(ctx, op, key, call)
	})
	source := prometheus.SourceLive
	if fromCache {
		source = prometheus.SourceCache
	}
	g.metrics.RecordGatewayLookup(op, source)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.ErrCachedNull):
		return false, nil
	default:
		return false, err
	}
}

func (g *CachedGateway) callLive(ctx context.Context, op, key string, call liveCall) (interface{}, error) {
	ctx, span := tracing.Start(ctx, "gateway."+op, tracing.Operation(op))
	start := time.Now()

	res, perr := g.live.Process(ctx, []liveCall{call}, func(ctx context.Context, c liveCall) (interface{}, error) {
		return c(ctx)
	})
	g.metrics.GatewayLiveDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	var err error
	switch {
	case perr != nil:
		err = perr
	case !res.Items[0].OK():
		err = res.Items[0].Err
	}
	if err == nil {
		tracing.End(span, nil)
		return res.Items[0].Result, nil
	}

	g.metrics.RecordGatewayError(op)
	if errors.Is(err, batch.ErrCircuitOpen) {
		err = errors.Wrap(err, errors.ErrCodeGatewayUnavailable, "live source unavailable")
	} else if ae := (*errors.AppError)(nil); !errors.As(err, &ae) {
		err = errors.Wrap(err, errors.ErrCodeGatewayFetchFailure, "live fetch failed for "+key)
	}
	g.log.Warn("gateway live fetch failed", logging.String("operation", op), logging.String("key", key), logging.Err(err))
	tracing.End(span, err)
	return nil, err
}

// GetBackwardCitations returns the sorted ids patentID cites.
func (g *CachedGateway) GetBackwardCitations(ctx context.Context, patentID string) ([]string, error) {
	return g.citations(ctx, OpBackward, patentID, g.graph.GetBackwardCitationIDs)
}

// GetForwardCitations returns the sorted ids citing patentID.
func (g *CachedGateway) GetForwardCitations(ctx context.Context, patentID string) ([]string, error) {
	return g.citations(ctx, OpForward, patentID, g.graph.GetForwardCitationIDs)
}

func (g *CachedGateway) citations(ctx context.Context, op, patentID string,
	load func(context.Context, string) ([]string, error)) ([]string, error) {
	var ids []string
	_, err := g.fetch(ctx, op, citationKey(op, patentID), g.opts.CitationTTL, &ids, func(ctx context.Context) (interface{}, error) {
		out, err := load(ctx, patentID)
		if err != nil {
			return nil, err
		}
		return citation.NormalizeIDs(out), nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetPatentDetail returns ErrCodePatentNotFound for unknown ids; the miss is
// cached for the null TTL.
func (g *CachedGateway) GetPatentDetail(ctx context.Context, patentID string) (*citation.PatentDetail, error) {
	var d citation.PatentDetail
	found, err := g.fetch(ctx, OpDetail, "det:"+patentID, g.opts.DetailTTL, &d, func(ctx context.Context) (interface{}, error) {
		out, err := g.ref.GetPatentDetail(ctx, patentID)
		if errors.IsCode(err, errors.ErrCodePatentNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Newf(errors.ErrCodePatentNotFound, "patent %s not found", patentID)
	}
	return &d, nil
}

type sectorEntry struct {
	Found  bool               `json:"found"`
	Sector citation.SectorRef `json:"sector"`
}

// GetSectorForCPC maps CPC codes to a sector. Lookup failures are logged and
// reported as no mapping.
func (g *CachedGateway) GetSectorForCPC(ctx context.Context, cpcCodes []string) (citation.SectorRef, bool) {
	codes := sortedCodes(cpcCodes)
	if len(codes) == 0 {
		return citation.SectorRef{}, false
	}
	var e sectorEntry
	_, err := g.fetch(ctx, OpSector, "sec:"+strings.Join(codes, ","), g.opts.ReferenceTTL, &e, func(ctx context.Context) (interface{}, error) {
		ref, err := g.ref.SectorForCPC(ctx, codes)
		if err != nil {
			return nil, err
		}
		if ref == nil || ref.IsZero() {
			return sectorEntry{}, nil
		}
		return sectorEntry{Found: true, Sector: *ref}, nil
	})
	if err != nil {
		return citation.SectorRef{}, false
	}
	return e.Sector, e.Found
}

// IsPortfolioMember reports whether the portfolio owns patentID.
func (g *CachedGateway) IsPortfolioMember(ctx context.Context, patentID string) (bool, error) {
	var member bool
	_, err := g.fetch(ctx, OpPortfolio, "pf:"+patentID, g.opts.ReferenceTTL, &member, func(ctx context.Context) (interface{}, error) {
		return g.ref.IsPortfolioMember(ctx, patentID)
	})
	return member, err
}

type affiliateEntry struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// IsAffiliate reports whether an affiliate of the portfolio owner owns patentID.
func (g *CachedGateway) IsAffiliate(ctx context.Context, patentID string) (bool, string, error) {
	a, err := g.GetAffiliate(ctx, patentID)
	if err != nil || a == nil {
		return false, "", err
	}
	return true, a.Name, nil
}

// GetAffiliate returns the affiliate owning patentID and its parent company.
func (g *CachedGateway) GetAffiliate(ctx context.Context, patentID string) (*citation.Affiliate, error) {
	var e affiliateEntry
	_, err := g.fetch(ctx, OpAffiliate, "aff:"+patentID, g.opts.ReferenceTTL, &e, func(ctx context.Context) (interface{}, error) {
		a, err := g.ref.GetAffiliateOwner(ctx, patentID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return affiliateEntry{}, nil
		}
		return affiliateEntry{Name: a.Name, Parent: a.Parent}, nil
	})
	if err != nil {
		return nil, err
	}
	if e.Name == "" {
		return nil, nil
	}
	return &citation.Affiliate{Name: e.Name, Parent: e.Parent}, nil
}

type competitorEntry struct {
	Name string `json:"name"`
}

// IsCompetitor matches entityName, after normalization, against tracked
// competitors and their aliases.
func (g *CachedGateway) IsCompetitor(ctx context.Context, entityName string) (bool, string) {
	norm := citation.NormalizeEntity(entityName)
	if norm == "" {
		return false, ""
	}
	var e competitorEntry
	_, err := g.fetch(ctx, OpCompetitor, "comp:"+norm, g.opts.ReferenceTTL, &e, func(ctx context.Context) (interface{}, error) {
		c, err := g.ref.FindCompetitor(ctx, norm)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return competitorEntry{}, nil
		}
		return competitorEntry{Name: c.Name}, nil
	})
	if err != nil {
		return false, ""
	}
	return e.Name != "", e.Name
}

// Invalidate drops every cached citation list and detail for patentID.
func (g *CachedGateway) Invalidate(ctx context.Context, patentID string) error {
	return g.cache.Delete(ctx,
		citationKey(OpBackward, patentID), citationKey(OpForward, patentID),
		"det:"+patentID, "pf:"+patentID, "aff:"+patentID)
}

func citationKey(op, patentID string) string {
	if op == OpForward {
		return "cit:f:" + patentID
	}
	return "cit:b:" + patentID
}

func sortedCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.Join(strings.Fields(c), ""))
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
