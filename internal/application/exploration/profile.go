package exploration

import (
	"context"
	"fmt"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// profileResolver assembles scorer inputs from gateway lookups. A failed
// lookup leaves the matching fields unknown and produces a warning; only a
// cancelled context aborts resolution.
type profileResolver struct {
	gw         citation.Gateway
	probeLimit int
	logger     logging.Logger
}

func newProfileResolver(gw citation.Gateway, probeLimit int, logger logging.Logger) *profileResolver {
	return &profileResolver{gw: gw, probeLimit: probeLimit, logger: logger}
}

// patentFacts is what every candidate and seed resolves to.
type patentFacts struct {
	detail         *citation.PatentDetail
	sector         *citation.SectorRef
	backward       []string
	backwardKnown  bool
	forward        []string
	forwardKnown   bool
	portfolio      bool
	affiliate      string
	group          string
	ownershipKnown bool
	competitors    []string
	probed         bool
}

func fetchWarning(op, id string, err error) string {
	return fmt.Sprintf("%s: %s %s: %v", errors.ErrCodeGatewayFetchFailure, op, id, err)
}

// facts resolves one patent. probeLimit bounds the citation endpoints whose
// assignees are checked against the competitor list, per direction.
func (r *profileResolver) facts(ctx context.Context, id string, probeLimit int) (*patentFacts, []string, error) {
	var (
		f        patentFacts
		warnings []string
	)

	d, err := r.gw.GetPatentDetail(ctx, id)
	if cerr := ctx.Err(); cerr != nil {
		return nil, nil, cerr
	}
	if err != nil {
		warnings = append(warnings, fetchWarning("detail", id, err))
	} else {
		f.detail = d
		f.sector = r.sectorOf(ctx, d)
	}

	if f.backward, err = r.gw.GetBackwardCitations(ctx, id); err == nil {
		f.backwardKnown = true
	} else if ctx.Err() == nil {
		warnings = append(warnings, fetchWarning("backward citations", id, err))
	}
	if f.forward, err = r.gw.GetForwardCitations(ctx, id); err == nil {
		f.forwardKnown = true
	} else if ctx.Err() == nil {
		warnings = append(warnings, fetchWarning("forward citations", id, err))
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, nil, cerr
	}

	member, perr := r.gw.IsPortfolioMember(ctx, id)
	aff, aerr := r.gw.GetAffiliate(ctx, id)
	if perr == nil && aerr == nil {
		f.ownershipKnown = true
		f.portfolio = member
		if aff != nil {
			f.affiliate = aff.Name
			f.group = aff.Group()
		}
	} else if ctx.Err() == nil {
		warnings = append(warnings, fetchWarning("ownership", id, firstErr(perr, aerr)))
	}

	f.competitors, f.probed = r.probeCompetitors(ctx, f.detail, f.backward, f.forward, probeLimit)
	if cerr := ctx.Err(); cerr != nil {
		return nil, nil, cerr
	}
	return &f, warnings, nil
}

// probeCompetitors checks the patent's own assignee and the assignees of at
// most limit endpoints per direction, taken in sorted id order.
func (r *profileResolver) probeCompetitors(ctx context.Context, d *citation.PatentDetail, backward, forward []string, limit int) ([]string, bool) {
	var names []string
	if d != nil && d.Assignee != "" {
		names = append(names, d.Assignee)
	}
	for _, list := range [][]string{backward, forward} {
		ids := citation.NormalizeIDs(list)
		if len(ids) > limit {
			ids = ids[:limit]
		}
		for _, endpoint := range ids {
			ed, err := r.gw.GetPatentDetail(ctx, endpoint)
			if err != nil || ed.Assignee == "" {
				continue
			}
			names = append(names, ed.Assignee)
		}
	}
	if len(names) == 0 {
		return nil, false
	}
	var out []string
	for _, n := range names {
		if ok, comp := r.gw.IsCompetitor(ctx, n); ok {
			out = append(out, citation.NormalizeEntity(comp))
		}
	}
	return citation.NormalizeIDs(out), true
}

// sectorOf returns the curated sector or infers one from CPC codes.
func (r *profileResolver) sectorOf(ctx context.Context, d *citation.PatentDetail) *citation.SectorRef {
	if d == nil {
		return nil
	}
	if d.Sector != nil && !d.Sector.IsZero() {
		ref := *d.Sector
		return &ref
	}
	if len(d.CPCCodes) == 0 {
		return nil
	}
	if ref, ok := r.gw.GetSectorForCPC(ctx, d.CPCCodes); ok && !ref.IsZero() {
		return &ref
	}
	return nil
}

// sectorByID resolves the sector of a link endpoint; nil when unknown.
func (r *profileResolver) sectorByID(ctx context.Context, id string) *citation.SectorRef {
	d, err := r.gw.GetPatentDetail(ctx, id)
	if err != nil {
		return nil
	}
	return r.sectorOf(ctx, d)
}

// candidate builds the scoring profile of a discovered patent. seeds is the
// set of seed ids used to detect direct seed citations.
func (r *profileResolver) candidate(ctx context.Context, d *discovery, seeds map[string]struct{}) (*scoring.CandidateProfile, *citation.PatentDetail, []string, error) {
	f, warnings, err := r.facts(ctx, d.id, r.probeLimit)
	if err != nil {
		return nil, nil, nil, err
	}

	p := &scoring.CandidateProfile{
		PatentID:         d.id,
		Sector:           f.sector,
		Backward:         f.backward,
		BackwardKnown:    f.backwardKnown,
		Forward:          f.forward,
		ForwardKnown:     f.forwardKnown,
		Competitors:      f.competitors,
		CompetitorProbed: f.probed,
		PortfolioMember:  f.portfolio,
		Affiliate:        f.affiliate,
		OwnershipKnown:   f.ownershipKnown,
		AffiliateGroup:   f.group,
	}
	if f.detail != nil {
		p.Assignee = f.detail.Assignee
		p.FilingDate = f.detail.FilingDate
	}

	endpoints := make(map[string]bool, len(d.by))
	for _, via := range d.sortedBy() {
		endpoints[via] = false
	}
	for _, list := range [][]string{f.backward, f.forward} {
		for _, id := range list {
			if _, ok := seeds[id]; ok && id != d.id {
				endpoints[id] = true
			}
		}
	}
	for _, ep := range sortedKeys(endpoints) {
		p.Links = append(p.Links, scoring.Link{
			Endpoint:       ep,
			EndpointSector: r.sectorByID(ctx, ep),
			DirectSeed:     endpoints[ep],
		})
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, nil, nil, cerr
	}
	return p, f.detail, warnings, nil
}

// seed builds the aggregate input of one seed. A seed without a detail
// record cannot contribute and is reported as IncompleteSeedData.
func (r *profileResolver) seed(ctx context.Context, id string, probeLimit int) (*scoring.SeedProfile, []string, error) {
	f, warnings, err := r.facts(ctx, id, probeLimit)
	if err != nil {
		return nil, nil, err
	}
	if f.detail == nil {
		return nil, warnings, errors.Newf(errors.ErrCodeIncompleteSeedData, "seed %s could not be resolved", id)
	}
	sp := &scoring.SeedProfile{
		PatentID:        id,
		Assignee:        f.detail.Assignee,
		AffiliateGroup:  f.group,
		PortfolioMember: f.portfolio,
		Backward:        f.backward,
		Forward:         f.forward,
		Competitors:     f.competitors,
		FilingDate:      f.detail.FilingDate,
	}
	if f.sector != nil {
		sp.Sector = *f.sector
	}
	var flagged []string
	for _, w := range warnings {
		flagged = append(flagged, fmt.Sprintf("%s: seed %s partially resolved (%s)", errors.ErrCodeIncompleteSeedData, id, w))
	}
	return sp, flagged, nil
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
