package citation

import "context"

// Gateway is the lookup service the exploration engine consumes for citation
// and patent data. Implementations are cache-first with live fallback and are
// safe for concurrent use across explorations.
type Gateway interface {
	GetBackwardCitations(ctx context.Context, patentID string) ([]string, error)
	GetForwardCitations(ctx context.Context, patentID string) ([]string, error)
	GetPatentDetail(ctx context.Context, patentID string) (*PatentDetail, error)

	// GetSectorForCPC infers a sector from CPC codes. ok is false when no
	// code maps to a sector.
	GetSectorForCPC(ctx context.Context, cpcCodes []string) (ref SectorRef, ok bool)

	// IsPortfolioMember and IsAffiliate report ownership of a patent. A lookup
	// failure is returned as err so scorers can mark the dimension as missing.
	IsPortfolioMember(ctx context.Context, patentID string) (bool, error)
	IsAffiliate(ctx context.Context, patentID string) (ok bool, affiliateName string, err error)
	// GetAffiliate returns the owning affiliate with its parent company, nil
	// when no affiliate owns the patent. It shares IsAffiliate's cache entry.
	GetAffiliate(ctx context.Context, patentID string) (*Affiliate, error)

	// IsCompetitor resolves an entity name to a tracked competitor.
	IsCompetitor(ctx context.Context, entityName string) (ok bool, competitorName string)
}
