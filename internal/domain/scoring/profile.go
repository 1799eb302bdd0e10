package scoring

import (
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/citation"
)

// Link is a citation link connecting a candidate to the seed set: either the
// edge to the node that discovered it or a direct citation of a seed.
type Link struct {
	Endpoint string `json:"endpoint"`
	// EndpointSector is nil when the endpoint's taxonomy is unknown.
	EndpointSector *citation.SectorRef `json:"endpoint_sector,omitempty"`
	DirectSeed     bool                `json:"direct_seed,omitempty"`
}

// CandidateProfile is the resolved data a candidate is scored from. It is
// assembled by the expander from gateway lookups; the scorers never fetch.
type CandidateProfile struct {
	PatentID string

	// Sector is the curated or CPC-inferred taxonomy, nil when neither exists.
	Sector *citation.SectorRef

	Backward      []string
	BackwardKnown bool
	Forward       []string
	ForwardKnown  bool

	// Competitors are the competitor-normalized entities among the
	// candidate's own assignee and its probed citation endpoints.
	Competitors      []string
	CompetitorProbed bool

	PortfolioMember bool
	Affiliate       string
	OwnershipKnown  bool

	Assignee       string
	AffiliateGroup string

	FilingDate *time.Time

	Links []Link
}
