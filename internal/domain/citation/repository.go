package citation

import "context"

// GraphRepository is the live source of citation edges.
type GraphRepository interface {
	GetBackwardCitationIDs(ctx context.Context, patentID string) ([]string, error)
	GetForwardCitationIDs(ctx context.Context, patentID string) ([]string, error)
	UpsertCitations(ctx context.Context, edges []CitationEdge) (int, error)
}

// ReferenceRepository is the live source of patent metadata and the reference
// data used for ownership and competitor resolution.
type ReferenceRepository interface {
	GetPatentDetail(ctx context.Context, patentID string) (*PatentDetail, error)
	IsPortfolioMember(ctx context.Context, patentID string) (bool, error)
	// GetAffiliateOwner returns the affiliate owning patentID, or nil.
	GetAffiliateOwner(ctx context.Context, patentID string) (*Affiliate, error)
	// FindCompetitor matches a normalized entity name against competitor
	// names and aliases, returning nil when none match.
	FindCompetitor(ctx context.Context, normalizedName string) (*Competitor, error)
	// SectorForCPC returns the sector of the longest matching CPC prefix.
	SectorForCPC(ctx context.Context, cpcCodes []string) (*SectorRef, error)
}

//Personal.AI order the ending
