package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

var validate = validator.New()

// ScoringWeights are the nine dimension weights plus the depth-decay rate.
// They need not sum to 1: the composite normalizes over the dimensions that
// have data for each candidate.
type ScoringWeights struct {
	Taxonomic               float64 `json:"taxonomic" yaml:"taxonomic" mapstructure:"taxonomic" validate:"min=0,max=1"`
	CommonPriorArt          float64 `json:"common_prior_art" yaml:"common_prior_art" mapstructure:"common_prior_art" validate:"min=0,max=1"`
	CommonForward           float64 `json:"common_forward" yaml:"common_forward" mapstructure:"common_forward" validate:"min=0,max=1"`
	CompetitorOverlap       float64 `json:"competitor_overlap" yaml:"competitor_overlap" mapstructure:"competitor_overlap" validate:"min=0,max=1"`
	PortfolioAffiliate      float64 `json:"portfolio_affiliate" yaml:"portfolio_affiliate" mapstructure:"portfolio_affiliate" validate:"min=0,max=1"`
	CitationSectorAlignment float64 `json:"citation_sector_alignment" yaml:"citation_sector_alignment" mapstructure:"citation_sector_alignment" validate:"min=0,max=1"`
	MultiPath               float64 `json:"multi_path" yaml:"multi_path" mapstructure:"multi_path" validate:"min=0,max=1"`
	Assignee                float64 `json:"assignee_relationship" yaml:"assignee_relationship" mapstructure:"assignee_relationship" validate:"min=0,max=1"`
	Temporal                float64 `json:"temporal_proximity" yaml:"temporal_proximity" mapstructure:"temporal_proximity" validate:"min=0,max=1"`
	DepthDecay              float64 `json:"depth_decay" yaml:"depth_decay" mapstructure:"depth_decay" validate:"min=0,max=1"`
}

// Weight returns the weight of dim.
func (w ScoringWeights) Weight(dim Dimension) float64 {
	switch dim {
	case DimTaxonomic:
		return w.Taxonomic
	case DimCommonPriorArt:
		return w.CommonPriorArt
	case DimCommonForward:
		return w.CommonForward
	case DimCompetitorOverlap:
		return w.CompetitorOverlap
	case DimPortfolioAffiliate:
		return w.PortfolioAffiliate
	case DimCitationSectorAlignment:
		return w.CitationSectorAlignment
	case DimMultiPath:
		return w.MultiPath
	case DimAssignee:
		return w.Assignee
	case DimTemporal:
		return w.Temporal
	}
	return 0
}

// Validate rejects weights outside [0,1] and vectors where every dimension
// weight is zero.
func (w ScoringWeights) Validate() error {
	if err := validate.Struct(w); err != nil {
		return invalidConfig(err)
	}
	var sum float64
	for _, dim := range AllDimensions {
		sum += w.Weight(dim)
	}
	if sum == 0 {
		return errors.New(errors.ErrCodeInvalidWeightConfig, "at least one dimension weight must be positive")
	}
	return nil
}

// Thresholds are the two zoning bounds on the 0..100 composite scale.
type Thresholds struct {
	Membership float64 `json:"membership" yaml:"membership" mapstructure:"membership" validate:"min=0,max=100"`
	Expansion  float64 `json:"expansion" yaml:"expansion" mapstructure:"expansion" validate:"min=0,max=100,ltefield=Membership"`
}

// Default zoning thresholds.
const (
	DefaultMembershipThreshold = 60.0
	DefaultExpansionThreshold  = 30.0
)

// DefaultThresholds returns the default zoning thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Membership: DefaultMembershipThreshold, Expansion: DefaultExpansionThreshold}
}

// Validate rejects thresholds outside [0,100] or an expansion bound above the
// membership bound.
func (t Thresholds) Validate() error {
	if err := validate.Struct(t); err != nil {
		return invalidConfig(err)
	}
	return nil
}

func invalidConfig(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, errors.ErrCodeInvalidWeightConfig, "invalid weight configuration")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return errors.New(errors.ErrCodeInvalidWeightConfig, "invalid weight configuration").
		WithDetail(strings.Join(msgs, "; "))
}

// ─────────────────────────────────────────────────────────────────────────────
// Presets
// ─────────────────────────────────────────────────────────────────────────────

// Preset names.
const (
	PresetBalanced         = "balanced"
	PresetCitationHeavy    = "citation-heavy"
	PresetTaxonomyHeavy    = "taxonomy-heavy"
	PresetPortfolioFocused = "portfolio-focused"
)

// DefaultPreset is used when a caller supplies neither a preset nor weights.
const DefaultPreset = PresetBalanced

var presets = map[string]ScoringWeights{
	PresetBalanced: {
		Taxonomic: 0.30, CommonPriorArt: 0.15, CommonForward: 0.10,
		CompetitorOverlap: 0.05, PortfolioAffiliate: 0.05, CitationSectorAlignment: 0.10,
		MultiPath: 0.05, Assignee: 0.05, Temporal: 0.15, DepthDecay: 0.10,
	},
	PresetCitationHeavy: {
		Taxonomic: 0.10, CommonPriorArt: 0.25, CommonForward: 0.20,
		CompetitorOverlap: 0.10, PortfolioAffiliate: 0.00, CitationSectorAlignment: 0.10,
		MultiPath: 0.15, Assignee: 0.00, Temporal: 0.10, DepthDecay: 0.15,
	},
	PresetTaxonomyHeavy: {
		Taxonomic: 0.45, CommonPriorArt: 0.10, CommonForward: 0.05,
		CompetitorOverlap: 0.05, PortfolioAffiliate: 0.05, CitationSectorAlignment: 0.15,
		MultiPath: 0.05, Assignee: 0.05, Temporal: 0.05, DepthDecay: 0.10,
	},
	PresetPortfolioFocused: {
		Taxonomic: 0.20, CommonPriorArt: 0.10, CommonForward: 0.05,
		CompetitorOverlap: 0.15, PortfolioAffiliate: 0.25, CitationSectorAlignment: 0.05,
		MultiPath: 0.05, Assignee: 0.10, Temporal: 0.05, DepthDecay: 0.10,
	},
}

// Preset returns the named weight vector.
func Preset(name string) (ScoringWeights, error) {
	w, ok := presets[name]
	if !ok {
		return ScoringWeights{}, errors.Newf(errors.ErrCodeInvalidWeightConfig, "unknown weight preset %q", name)
	}
	return w, nil
}

// DefaultWeights returns the default preset.
func DefaultWeights() ScoringWeights {
	return presets[DefaultPreset]
}

// PresetNames lists the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveWeights picks the override vector when given, otherwise the named
// preset, otherwise the default preset, and validates the result.
func ResolveWeights(preset string, override *ScoringWeights) (ScoringWeights, error) {
	var w ScoringWeights
	switch {
	case override != nil:
		w = *override
	case preset != "":
		p, err := Preset(preset)
		if err != nil {
			return ScoringWeights{}, err
		}
		w = p
	default:
		w = DefaultWeights()
	}
	if err := w.Validate(); err != nil {
		return ScoringWeights{}, err
	}
	return w, nil
}
