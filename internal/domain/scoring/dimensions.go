// Package scoring holds the pure relevance model of the family explorer: the
// seed aggregate, the nine dimension scorers, the composite scorer and the
// threshold zoner. Nothing in this package performs I/O.
package scoring

import "fmt"

// Dimension names one of the nine relevance dimensions.
type Dimension string

const (
	DimTaxonomic               Dimension = "taxonomic"
	DimCommonPriorArt          Dimension = "common_prior_art"
	DimCommonForward           Dimension = "common_forward"
	DimCompetitorOverlap       Dimension = "competitor_overlap"
	DimPortfolioAffiliate      Dimension = "portfolio_affiliate"
	DimCitationSectorAlignment Dimension = "citation_sector_alignment"
	DimMultiPath               Dimension = "multi_path"
	DimAssignee                Dimension = "assignee_relationship"
	DimTemporal                Dimension = "temporal_proximity"
)

// DimensionCount is the number of relevance dimensions.
const DimensionCount = 9

// AllDimensions lists the dimensions in canonical order.
var AllDimensions = [DimensionCount]Dimension{
	DimTaxonomic,
	DimCommonPriorArt,
	DimCommonForward,
	DimCompetitorOverlap,
	DimPortfolioAffiliate,
	DimCitationSectorAlignment,
	DimMultiPath,
	DimAssignee,
	DimTemporal,
}

// DimensionScores holds the raw 0..1 score of each dimension. A nil field
// means the dimension had no usable data for the candidate. Once computed from
// fetched data the values are never changed by rescoring.
type DimensionScores struct {
	Taxonomic               *float64 `json:"taxonomic,omitempty"`
	CommonPriorArt          *float64 `json:"common_prior_art,omitempty"`
	CommonForward           *float64 `json:"common_forward,omitempty"`
	CompetitorOverlap       *float64 `json:"competitor_overlap,omitempty"`
	PortfolioAffiliate      *float64 `json:"portfolio_affiliate,omitempty"`
	CitationSectorAlignment *float64 `json:"citation_sector_alignment,omitempty"`
	MultiPath               *float64 `json:"multi_path,omitempty"`
	Assignee                *float64 `json:"assignee_relationship,omitempty"`
	Temporal                *float64 `json:"temporal_proximity,omitempty"`
}

func (d *DimensionScores) field(dim Dimension) **float64 {
	switch dim {
	case DimTaxonomic:
		return &d.Taxonomic
	case DimCommonPriorArt:
		return &d.CommonPriorArt
	case DimCommonForward:
		return &d.CommonForward
	case DimCompetitorOverlap:
		return &d.CompetitorOverlap
	case DimPortfolioAffiliate:
		return &d.PortfolioAffiliate
	case DimCitationSectorAlignment:
		return &d.CitationSectorAlignment
	case DimMultiPath:
		return &d.MultiPath
	case DimAssignee:
		return &d.Assignee
	case DimTemporal:
		return &d.Temporal
	}
	panic(fmt.Sprintf("scoring: unknown dimension %q", dim))
}

// Get returns the score of dim and whether it had data.
func (d DimensionScores) Get(dim Dimension) (float64, bool) {
	p := *d.field(dim)
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Set records a score for dim. hasData=false clears it.
func (d *DimensionScores) Set(dim Dimension, value float64, hasData bool) {
	f := d.field(dim)
	if !hasData {
		*f = nil
		return
	}
	v := clamp01(value)
	*f = &v
}

// Present returns the number of dimensions with data.
func (d DimensionScores) Present() int {
	n := 0
	for _, dim := range AllDimensions {
		if _, ok := d.Get(dim); ok {
			n++
		}
	}
	return n
}

// Completeness is the fraction of dimensions with data.
func (d DimensionScores) Completeness() float64 {
	return float64(d.Present()) / DimensionCount
}

// Clone returns a deep copy so callers can never alias cached scores.
func (d DimensionScores) Clone() DimensionScores {
	var out DimensionScores
	for _, dim := range AllDimensions {
		if v, ok := d.Get(dim); ok {
			out.Set(dim, v, true)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
