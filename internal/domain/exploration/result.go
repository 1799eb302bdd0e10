package exploration

import (
	"sort"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
)

// ScoredCandidate is the caller-facing view of one candidate record.
type ScoredCandidate struct {
	PatentID        string                  `json:"patent_id"`
	Title           string                  `json:"title,omitempty"`
	Assignee        string                  `json:"assignee,omitempty"`
	Composite       float64                 `json:"composite"`
	Raw             float64                 `json:"raw"`
	DepthMultiplier float64                 `json:"depth_multiplier"`
	Completeness    float64                 `json:"completeness"`
	Generation      int                     `json:"generation"`
	Dimensions      scoring.DimensionScores `json:"dimensions"`
	Zone            scoring.Zone            `json:"zone"`
	Status          Status                  `json:"status"`
	Override        Override                `json:"override,omitempty"`
	Relations       []Relation              `json:"relations"`
	DiscoveredBy    []string                `json:"discovered_by"`
}

// View converts a record into its caller-facing form.
func (r *CandidateRecord) View() ScoredCandidate {
	return ScoredCandidate{
		PatentID:        r.PatentID,
		Title:           r.Title,
		Assignee:        r.Assignee,
		Composite:       r.Composite,
		Raw:             r.Raw,
		DepthMultiplier: r.DepthMultiplier,
		Completeness:    r.Dimensions.Completeness(),
		Generation:      r.Generation,
		Dimensions:      r.Dimensions.Clone(),
		Zone:            r.Zone,
		Status:          r.Status(),
		Override:        r.Override,
		Relations:       append([]Relation(nil), r.Relations...),
		DiscoveredBy:    append([]string(nil), r.DiscoveredBy...),
	}
}

// ExpansionResult is returned by every expansion and rescore. Warnings is
// always non-nil so callers can render it unconditionally.
type ExpansionResult struct {
	ExplorationID string            `json:"exploration_id"`
	Generation    int               `json:"generation"`
	Version       int64             `json:"version"`
	Step          ExpansionStep     `json:"step"`
	Candidates    []ScoredCandidate `json:"candidates"`
	Frontier      []string          `json:"frontier"`
	Pruned        int               `json:"pruned"`
	Warnings      []string          `json:"warnings"`
}

// SortCandidates orders by composite descending, ties broken by patent id.
func SortCandidates(cs []ScoredCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Composite != cs[j].Composite {
			return cs[i].Composite > cs[j].Composite
		}
		return cs[i].PatentID < cs[j].PatentID
	})
}

// CountZones tallies effective statuses into the step counters.
func CountZones(step *ExpansionStep, cs []ScoredCandidate) {
	step.Evaluated = len(cs) + step.Pruned
	step.Accepted, step.ExpansionZone, step.Rejected = 0, 0, 0
	for _, c := range cs {
		switch c.Zone {
		case scoring.ZoneMember:
			step.Accepted++
		case scoring.ZoneExpansion:
			step.ExpansionZone++
		default:
			step.Rejected++
		}
	}
}
