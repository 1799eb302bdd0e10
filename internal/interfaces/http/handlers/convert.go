package handlers

import (
	domain "github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

func weightsIn(w *types.Weights) *scoring.ScoringWeights {
	if w == nil {
		return nil
	}
	out := scoring.ScoringWeights(*w)
	return &out
}

func thresholdsIn(t *types.Thresholds) *scoring.Thresholds {
	if t == nil {
		return nil
	}
	out := scoring.Thresholds(*t)
	return &out
}

func weightsOut(w scoring.ScoringWeights) types.Weights { return types.Weights(w) }

func thresholdsOut(t scoring.Thresholds) types.Thresholds { return types.Thresholds(t) }

func dimensionsOut(d scoring.DimensionScores) map[string]float64 {
	out := make(map[string]float64, len(scoring.AllDimensions))
	for _, dim := range scoring.AllDimensions {
		if v, ok := d.Get(dim); ok {
			out[string(dim)] = v
		}
	}
	return out
}

func candidateOut(c domain.ScoredCandidate) types.Candidate {
	rel := make([]string, len(c.Relations))
	for i, r := range c.Relations {
		rel[i] = string(r)
	}
	return types.Candidate{
		PatentID:        c.PatentID,
		Title:           c.Title,
		Assignee:        c.Assignee,
		Composite:       c.Composite,
		Raw:             c.Raw,
		DepthMultiplier: c.DepthMultiplier,
		Completeness:    c.Completeness,
		Generation:      c.Generation,
		Dimensions:      dimensionsOut(c.Dimensions),
		Zone:            string(c.Zone),
		Status:          string(c.Status),
		Override:        string(c.Override),
		Relations:       rel,
		DiscoveredBy:    nonNilStrings(c.DiscoveredBy),
	}
}

func candidatesOut(cs []domain.ScoredCandidate) []types.Candidate {
	out := make([]types.Candidate, len(cs))
	for i, c := range cs {
		out[i] = candidateOut(c)
	}
	return out
}

func stepOut(s domain.ExpansionStep) types.Step {
	return types.Step{
		Number:        s.Number,
		Kind:          string(s.Kind),
		Direction:     string(s.Direction),
		Generation:    s.Generation,
		Evaluated:     s.Evaluated,
		Accepted:      s.Accepted,
		ExpansionZone: s.ExpansionZone,
		Rejected:      s.Rejected,
		Pruned:        s.Pruned,
		Weights:       weightsOut(s.Weights),
		Thresholds:    thresholdsOut(s.Thresholds),
		Warnings:      s.Warnings,
		StartedAt:     s.StartedAt,
		CompletedAt:   s.CompletedAt,
	}
}

// explorationOut renders the full document with candidates ranked.
func explorationOut(st *domain.ExplorationState) types.Exploration {
	views := make([]domain.ScoredCandidate, 0, len(st.Candidates))
	for _, rec := range st.Candidates {
		views = append(views, rec.View())
	}
	domain.SortCandidates(views)

	steps := make([]types.Step, len(st.Steps))
	for i, s := range st.Steps {
		steps[i] = stepOut(s)
	}

	var aggIDs []string
	if st.Aggregate != nil {
		aggIDs = st.Aggregate.SeedIDs
	}

	return types.Exploration{
		ID:                st.ID,
		Name:              st.Name,
		SeedIDs:           nonNilStrings(st.SeedIDs),
		AggregateIDs:      nonNilStrings(aggIDs),
		Preset:            st.Preset,
		Weights:           weightsOut(st.Weights),
		Thresholds:        thresholdsOut(st.Thresholds),
		CurrentGeneration: st.CurrentGeneration,
		Version:           st.Version,
		Frontier:          nonNilStrings(st.Frontier),
		Members:           nonNilStrings(st.Members()),
		Candidates:        candidatesOut(views),
		Steps:             steps,
		Archived:          st.Archived,
		ArchiveKey:        st.ArchiveKey,
		CreatedAt:         st.CreatedAt,
		UpdatedAt:         st.UpdatedAt,
	}
}

func resultOut(r *domain.ExpansionResult) types.ExpansionResult {
	return types.ExpansionResult{
		ExplorationID: r.ExplorationID,
		Generation:    r.Generation,
		Version:       r.Version,
		Step:          stepOut(r.Step),
		Candidates:    candidatesOut(r.Candidates),
		Frontier:      nonNilStrings(r.Frontier),
		Pruned:        r.Pruned,
		Warnings:      nonNilStrings(r.Warnings),
	}
}

func summaryOut(s domain.Summary) types.Summary {
	return types.Summary{
		ID:                s.ID,
		Name:              s.Name,
		SeedCount:         s.SeedCount,
		CandidateCount:    s.CandidateCount,
		CurrentGeneration: s.CurrentGeneration,
		Version:           s.Version,
		Archived:          s.Archived,
		UpdatedAt:         s.UpdatedAt,
	}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
