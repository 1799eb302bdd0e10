package scoring

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
)

// SeedProfile is everything resolved about one seed that the aggregate needs.
type SeedProfile struct {
	PatentID        string
	Sector          citation.SectorRef
	Assignee        string
	AffiliateGroup  string
	PortfolioMember bool
	Backward        []string
	Forward         []string
	Competitors     []string
	FilingDate      *time.Time
}

// SeedAggregate is the context every candidate is scored against. It is
// immutable once built; an explicit rebuild replaces it wholesale.
type SeedAggregate struct {
	SeedIDs          []string    `json:"seed_ids"`
	PortfolioSeedIDs []string    `json:"portfolio_seed_ids,omitempty"`
	BackwardUnion    []string    `json:"backward_union,omitempty"`
	ForwardUnion     []string    `json:"forward_union,omitempty"`
	SuperSectors     []string    `json:"super_sectors,omitempty"`
	Sectors          []string    `json:"sectors,omitempty"`
	SubSectors       []string    `json:"sub_sectors,omitempty"` // sector/sub-sector
	Competitors      []string    `json:"competitors,omitempty"`
	Assignees        []string    `json:"assignees,omitempty"`
	AffiliateGroups  []string    `json:"affiliate_groups,omitempty"`
	FilingDates      []time.Time `json:"filing_dates,omitempty"`
	BuiltAt          time.Time   `json:"built_at"`

	idx aggregateIndex
}

type set map[string]struct{}

func newSet(items []string) set {
	s := make(set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s set) has(k string) bool {
	_, ok := s[k]
	return ok
}

type aggregateIndex struct {
	seeds, backward, forward          set
	superSectors, sectors, subSectors set
	competitors, assignees, affiliate set
}

// NewSeedAggregate builds the aggregate from resolved seed profiles.
func NewSeedAggregate(seeds []SeedProfile, builtAt time.Time) *SeedAggregate {
	var (
		ids, portfolio, back, fwd    []string
		superS, sect, sub, comp, asg []string
		affil                        []string
		dates                        []time.Time
	)
	for _, s := range seeds {
		ids = append(ids, s.PatentID)
		if s.PortfolioMember {
			portfolio = append(portfolio, s.PatentID)
		}
		back = append(back, s.Backward...)
		fwd = append(fwd, s.Forward...)
		if s.Sector.SuperSector != "" {
			superS = append(superS, s.Sector.SuperSector)
		}
		if s.Sector.Sector != "" {
			sect = append(sect, s.Sector.Sector)
		}
		if k := subSectorKey(&s.Sector); k != "" {
			sub = append(sub, k)
		}
		comp = append(comp, s.Competitors...)
		if a := citation.NormalizeEntity(s.Assignee); a != "" {
			asg = append(asg, a)
		}
		if g := citation.NormalizeEntity(s.AffiliateGroup); g != "" {
			affil = append(affil, g)
		}
		if s.FilingDate != nil {
			dates = append(dates, s.FilingDate.UTC())
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	agg := &SeedAggregate{
		SeedIDs:          citation.NormalizeIDs(ids),
		PortfolioSeedIDs: citation.NormalizeIDs(portfolio),
		BackwardUnion:    citation.NormalizeIDs(back),
		ForwardUnion:     citation.NormalizeIDs(fwd),
		SuperSectors:     citation.NormalizeIDs(superS),
		Sectors:          citation.NormalizeIDs(sect),
		SubSectors:       citation.NormalizeIDs(sub),
		Competitors:      citation.NormalizeIDs(comp),
		Assignees:        citation.NormalizeIDs(asg),
		AffiliateGroups:  citation.NormalizeIDs(affil),
		FilingDates:      dates,
		BuiltAt:          builtAt.UTC(),
	}
	agg.reindex()
	return agg
}

func (a *SeedAggregate) reindex() {
	a.idx = aggregateIndex{
		seeds:        newSet(a.SeedIDs),
		backward:     newSet(a.BackwardUnion),
		forward:      newSet(a.ForwardUnion),
		superSectors: newSet(a.SuperSectors),
		sectors:      newSet(a.Sectors),
		subSectors:   newSet(a.SubSectors),
		competitors:  newSet(a.Competitors),
		assignees:    newSet(a.Assignees),
		affiliate:    newSet(a.AffiliateGroups),
	}
}

// UnmarshalJSON restores the lookup index after decoding a persisted aggregate.
func (a *SeedAggregate) UnmarshalJSON(data []byte) error {
	type plain SeedAggregate
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = SeedAggregate(p)
	a.reindex()
	return nil
}

// IsSeed reports whether id is one of the seeds.
func (a *SeedAggregate) IsSeed(id string) bool { return a.idx.seeds.has(id) }

// subSectorKey qualifies a sub-sector with its sector; sub-sector names are
// only unique within one sector.
func subSectorKey(ref *citation.SectorRef) string {
	if ref == nil || ref.SubSector == "" {
		return ""
	}
	return ref.Sector + "/" + ref.SubSector
}

// SharesSector reports whether ref matches a seed at any taxonomy level.
func (a *SeedAggregate) SharesSector(ref *citation.SectorRef) bool {
	if ref == nil {
		return false
	}
	return a.idx.subSectors.has(subSectorKey(ref)) ||
		(ref.Sector != "" && a.idx.sectors.has(ref.Sector)) ||
		(ref.SuperSector != "" && a.idx.superSectors.has(ref.SuperSector))
}

// SeedCount returns the number of seeds that resolved.
func (a *SeedAggregate) SeedCount() int { return len(a.SeedIDs) }
