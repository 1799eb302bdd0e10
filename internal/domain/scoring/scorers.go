package scoring

import (
	"math"
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
)

// Scorer computes one dimension for a candidate. It returns hasData=false when
// the inputs are insufficient; that dimension is then left out of the
// composite entirely.
type Scorer func(p *CandidateProfile, agg *SeedAggregate) (value float64, hasData bool)

// Dimension score levels.
const (
	TaxonomySubSectorMatch   = 1.0
	TaxonomySectorMatch      = 0.5
	TaxonomySuperSectorMatch = 0.2

	PortfolioMemberScore = 1.0
	AffiliateOwnedScore  = 0.7

	SameAssigneeScore    = 1.0
	SameParentScore      = 0.5
	MultiPathSaturation  = 3
	TemporalHorizonYears = 15.0
)

var scorers = [DimensionCount]struct {
	dim Dimension
	fn  Scorer
}{
	{DimTaxonomic, ScoreTaxonomic},
	{DimCommonPriorArt, ScoreCommonPriorArt},
	{DimCommonForward, ScoreCommonForward},
	{DimCompetitorOverlap, ScoreCompetitorOverlap},
	{DimPortfolioAffiliate, ScorePortfolioAffiliate},
	{DimCitationSectorAlignment, ScoreCitationSectorAlignment},
	{DimMultiPath, ScoreMultiPath},
	{DimAssignee, ScoreAssignee},
	{DimTemporal, ScoreTemporal},
}

// ScoreAll runs every scorer against the candidate.
func ScoreAll(p *CandidateProfile, agg *SeedAggregate) DimensionScores {
	var out DimensionScores
	for _, s := range scorers {
		v, ok := s.fn(p, agg)
		out.Set(s.dim, v, ok)
	}
	return out
}

// ScoreTaxonomic takes the best taxonomy match against any seed.
func ScoreTaxonomic(p *CandidateProfile, agg *SeedAggregate) (float64, bool) {
	if p.Sector == nil || p.Sector.IsZero() {
		return 0, false
	}
	switch {
	case p.Sector.SubSector != "" && agg.idx.subSectors.has(subSectorKey(p.Sector)):
		return TaxonomySubSectorMatch, true
	case p.Sector.Sector != "" && agg.idx.sectors.has(p.Sector.Sector):
		return TaxonomySectorMatch, true
	case p.Sector.SuperSector != "" && agg.idx.superSectors.has(p.Sector.SuperSector):
		return TaxonomySuperSectorMatch, true
	}
	return 0, true
}

// ScoreCommonPriorArt is the Jaccard index of the candidate's backward
// citations and the seeds' backward union.
func ScoreCommonPriorArt(p *CandidateProfile, agg *SeedAggregate) (float64, bool) {
	if !p.BackwardKnown {
		return 0, false
	}
	return jaccard(p.PatentID, p.Backward, agg.idx.backward)
}

// ScoreCommonForward is the Jaccard index of the candidate's forward
// citations and the seeds' forward union.
func ScoreCommonForward(p *CandidateProfile, agg *SeedAggregate) (float64, bool) {
	if !p.ForwardKnown {
		return 0, false
	}
	return jaccard(p.PatentID, p.Forward, agg.idx.forward)
}

// jaccard compares ids with union, ignoring self in both. Either side being
// empty means there is nothing to compare.
func jaccard(self string, ids []string, union set) (float64, bool) {
	own := make(set, len(ids))
	for _, id := range ids {
		if id != self {
			own[id] = struct{}{}
		}
	}
	unionSize := len(union)
	if union.has(self) {
		unionSize--
	}
	if len(own) == 0 || unionSize == 0 {
		return 0, false
	}
	inter := 0
	for id := range own {
		if union.has(id) {
			inter++
		}
	}
	return float64(inter) / float64(len(own)+unionSize-inter), true
}

// ScoreCompetitorOverlap is |candidate ∩ aggregate| / max(|aggregate|, 1)
// over competitor-normalized entities.
func ScoreCompetitorOverlap(p *CandidateProfile, agg *SeedAggregate) (float64, bool) {
	if !p.CompetitorProbed {
		return 0, false
	}
	if len(p.Competitors) == 0 && len(agg.Competitors) == 0 {
		return 0, false
	}
	inter := 0
	for _, c := range citation.NormalizeIDs(p.Competitors) {
		if agg.idx.competitors.has(c) {
			inter++
		}
	}
	denom := len(agg.Competitors)
	if denom < 1 {
		denom = 1
	}
	return float64(inter) / float64(denom), true
}

// ScorePortfolioAffiliate scores ownership by the portfolio or an affiliate.
func ScorePortfolioAffiliate(p *CandidateProfile, _ *SeedAggregate) (float64, bool) {
	if !p.OwnershipKnown {
		return 0, false
	}
	switch {
	case p.PortfolioMember:
		return PortfolioMemberScore, true
	case p.Affiliate != "":
		return AffiliateOwnedScore, true
	}
	return 0, true
}

// ScoreCitationSectorAlignment is the fraction of connecting links whose other
// endpoint shares a sector with a seed. Links to endpoints of unknown sector
// are not counted.
func ScoreCitationSectorAlignment(p *CandidateProfile, agg *SeedAggregate) (float64, bool) {
	known, aligned := 0, 0
	seen := make(set, len(p.Links))
	for _, l := range p.Links {
		if seen.has(l.Endpoint) {
			continue
		}
		seen[l.Endpoint] = struct{}{}
		if l.EndpointSector == nil || l.EndpointSector.IsZero() {
			continue
		}
		known++
		if agg.SharesSector(l.EndpointSector) {
			aligned++
		}
	}
	if known == 0 {
		return 0, false
	}
	return float64(aligned) / float64(known), true
}

// ScoreMultiPath counts distinct connecting endpoints, saturating at three.
func ScoreMultiPath(p *CandidateProfile, _ *SeedAggregate) (float64, bool) {
	paths := make(set, len(p.Links))
	for _, l := range p.Links {
		paths[l.Endpoint] = struct{}{}
	}
	if len(paths) == 0 {
		return 0, false
	}
	n := len(paths)
	if n > MultiPathSaturation {
		n = MultiPathSaturation
	}
	return float64(n) / MultiPathSaturation, true
}

// ScoreAssignee compares the candidate's owner with the seeds' owners.
func ScoreAssignee(p *CandidateProfile, agg *SeedAggregate) (float64, bool) {
	assignee := citation.NormalizeEntity(p.Assignee)
	if assignee == "" {
		return 0, false
	}
	if agg.idx.assignees.has(assignee) {
		return SameAssigneeScore, true
	}
	group := citation.NormalizeEntity(p.AffiliateGroup)
	switch {
	case group != "" && (agg.idx.affiliate.has(group) || agg.idx.assignees.has(group)):
		return SameParentScore, true
	case agg.idx.affiliate.has(assignee):
		return SameParentScore, true
	case ownedByPortfolioGroup(p) && (len(agg.PortfolioSeedIDs) > 0 || len(agg.AffiliateGroups) > 0):
		// portfolio and affiliate holdings all sit under the portfolio owner
		return SameParentScore, true
	}
	return 0, true
}

func ownedByPortfolioGroup(p *CandidateProfile) bool {
	return p.PortfolioMember || p.Affiliate != ""
}

// ScoreTemporal decays linearly to zero over fifteen years of filing gap to
// the closest seed.
func ScoreTemporal(p *CandidateProfile, agg *SeedAggregate) (float64, bool) {
	if p.FilingDate == nil || len(agg.FilingDates) == 0 {
		return 0, false
	}
	best := math.Inf(1)
	for _, d := range agg.FilingDates {
		if gap := yearsBetween(*p.FilingDate, d); gap < best {
			best = gap
		}
	}
	return math.Max(0, 1-best/TemporalHorizonYears), true
}

const daysPerYear = 365.25

func yearsBetween(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Hours()) / 24 / daysPerYear
}
