// Package exploration models a scored generational family exploration: the
// versioned state record, its candidate records and the step history.
package exploration

import (
	"sort"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/scoring"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// Direction selects which citation edges an expansion follows.
type Direction string

const (
	DirectionBackward Direction = "backward"
	DirectionForward  Direction = "forward"
	DirectionBoth     Direction = "both"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionBackward, DirectionForward, DirectionBoth:
		return d, nil
	}
	return "", errors.Newf(errors.ErrCodeInvalidDirection, "unknown direction %q", s)
}

// Backward reports whether d follows backward citations.
func (d Direction) Backward() bool { return d == DirectionBackward || d == DirectionBoth }

// Forward reports whether d follows forward citations.
func (d Direction) Forward() bool { return d == DirectionForward || d == DirectionBoth }

// StepKind distinguishes the operations recorded in the step history.
type StepKind string

const (
	StepExpand   StepKind = "expand"
	StepSiblings StepKind = "siblings"
	StepRescore  StepKind = "rescore"
	StepRebuild  StepKind = "rebuild-aggregate"
)

// Relation labels how a candidate is related to the node that found it.
type Relation string

const (
	RelationParent  Relation = "parent"
	RelationChild   Relation = "child"
	RelationSibling Relation = "sibling"
)

// Status is the effective membership of a patent in an exploration.
type Status string

const (
	StatusMember    Status = "member"
	StatusCandidate Status = "candidate"
	StatusExcluded  Status = "excluded"
)

// Override is a caller-forced status that beats the computed zone.
type Override string

const (
	OverrideNone     Override = ""
	OverrideMember   Override = "member"
	OverrideExcluded Override = "excluded"
	OverrideNeutral  Override = "neutral"
)

// ParseOverride validates an override string. "none" and "" clear it.
func ParseOverride(s string) (Override, error) {
	switch o := Override(strings.ToLower(strings.TrimSpace(s))); o {
	case OverrideMember, OverrideExcluded, OverrideNeutral:
		return o, nil
	case OverrideNone, "none":
		return OverrideNone, nil
	}
	return "", errors.Newf(errors.CodeInvalidParam, "unknown candidate status %q", s)
}

// CandidateRecord is one scored patent. Dimensions are computed once from
// fetched data and never change; Composite and Zone follow the current
// weights and thresholds.
type CandidateRecord struct {
	PatentID        string                  `json:"patent_id"`
	Title           string                  `json:"title,omitempty"`
	Assignee        string                  `json:"assignee,omitempty"`
	Dimensions      scoring.DimensionScores `json:"dimensions"`
	Generation      int                     `json:"generation"`
	Relations       []Relation              `json:"relations"`
	DiscoveredBy    []string                `json:"discovered_by"`
	DiscoveredStep  int                     `json:"discovered_step"`
	Raw             float64                 `json:"raw"`
	Composite       float64                 `json:"composite"`
	DepthMultiplier float64                 `json:"depth_multiplier"`
	Zone            scoring.Zone            `json:"zone"`
	Override        Override                `json:"override,omitempty"`
}

// Status resolves the override and the zone into the effective status.
func (r *CandidateRecord) Status() Status {
	switch r.Override {
	case OverrideMember:
		return StatusMember
	case OverrideExcluded:
		return StatusExcluded
	case OverrideNeutral:
		return StatusCandidate
	}
	switch r.Zone {
	case scoring.ZoneMember:
		return StatusMember
	case scoring.ZoneExpansion:
		return StatusCandidate
	}
	return StatusExcluded
}

// Apply recomputes composite and zone from the cached dimensions.
func (r *CandidateRecord) Apply(w scoring.ScoringWeights, t scoring.Thresholds) {
	s := scoring.Combine(r.PatentID, r.Dimensions, w, r.Generation)
	r.Raw = s.Raw
	r.Composite = s.Composite
	r.DepthMultiplier = s.DepthMultiplier
	r.Zone = scoring.ZoneFor(s.Composite, t)
}

// ExpansionStep records one mutation of the exploration.
type ExpansionStep struct {
	Number        int                    `json:"number"`
	Kind          StepKind               `json:"kind"`
	Direction     Direction              `json:"direction,omitempty"`
	Generation    int                    `json:"generation"`
	Evaluated     int                    `json:"evaluated"`
	Accepted      int                    `json:"accepted"`
	ExpansionZone int                    `json:"expansion_zone"`
	Rejected      int                    `json:"rejected"`
	Pruned        int                    `json:"pruned"`
	Weights       scoring.ScoringWeights `json:"weights"`
	Thresholds    scoring.Thresholds     `json:"thresholds"`
	Warnings      []string               `json:"warnings,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   time.Time              `json:"completed_at"`
}

// Label renders the kind and direction, e.g. "siblings-backward".
func (s ExpansionStep) Label() string {
	if s.Direction == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + "-" + string(s.Direction)
}

// ExplorationState is the versioned exploration record. It is mutated only by
// the service operations, each of which commits with a version check.
type ExplorationState struct {
	ID                string                      `json:"id"`
	Name              string                      `json:"name,omitempty"`
	SeedIDs           []string                    `json:"seed_ids"`
	Preset            string                      `json:"preset,omitempty"`
	Weights           scoring.ScoringWeights      `json:"weights"`
	Thresholds        scoring.Thresholds          `json:"thresholds"`
	CurrentGeneration int                         `json:"current_generation"`
	Version           int64                       `json:"version"`
	Aggregate         *scoring.SeedAggregate      `json:"aggregate"`
	Candidates        map[string]*CandidateRecord `json:"candidates"`
	Frontier          []string                    `json:"frontier"`
	Steps             []ExpansionStep             `json:"steps"`
	Archived          bool                        `json:"archived"`
	ArchiveKey        string                      `json:"archive_key,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// NewExplorationState starts an exploration at generation 0 with the seeds as
// the frontier.
func NewExplorationState(id, name string, agg *scoring.SeedAggregate, preset string, w scoring.ScoringWeights, t scoring.Thresholds, now time.Time) *ExplorationState {
	s := &ExplorationState{
		ID:         id,
		Name:       name,
		SeedIDs:    append([]string(nil), agg.SeedIDs...),
		Preset:     preset,
		Weights:    w,
		Thresholds: t,
		Version:    1,
		Aggregate:  agg,
		Candidates: make(map[string]*CandidateRecord),
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	s.RecomputeFrontier()
	return s
}

// IsSeed reports whether id is a seed.
func (s *ExplorationState) IsSeed(id string) bool {
	for _, seed := range s.SeedIDs {
		if seed == id {
			return true
		}
	}
	return false
}

// StatusOf returns the effective status of id and whether it belongs to the
// exploration at all. Seeds are always members.
func (s *ExplorationState) StatusOf(id string) (Status, bool) {
	if s.IsSeed(id) {
		return StatusMember, true
	}
	r, ok := s.Candidates[id]
	if !ok {
		return "", false
	}
	return r.Status(), true
}

func (s *ExplorationState) idsWithStatus(st Status) []string {
	var out []string
	if st == StatusMember {
		out = append(out, s.SeedIDs...)
	}
	for id, r := range s.Candidates {
		if r.Status() == st {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Members returns the seeds and every candidate whose effective status is member.
func (s *ExplorationState) Members() []string { return s.idsWithStatus(StatusMember) }

// NeutralCandidates returns the ids whose effective status is candidate.
func (s *ExplorationState) NeutralCandidates() []string { return s.idsWithStatus(StatusCandidate) }

// Excluded returns the ids whose effective status is excluded.
func (s *ExplorationState) Excluded() []string { return s.idsWithStatus(StatusExcluded) }

// AlreadySeen returns every id the exploration has scored, plus the seeds.
// Tracking this globally rather than per path is what guarantees termination
// on cyclic citation graphs.
func (s *ExplorationState) AlreadySeen() map[string]struct{} {
	seen := make(map[string]struct{}, len(s.SeedIDs)+len(s.Candidates))
	for _, id := range s.SeedIDs {
		seen[id] = struct{}{}
	}
	for id := range s.Candidates {
		seen[id] = struct{}{}
	}
	return seen
}

// RecomputeFrontier sets the frontier to the members and neutral candidates of
// the current generation. At generation 0 the seeds are included.
func (s *ExplorationState) RecomputeFrontier() {
	var frontier []string
	if s.CurrentGeneration == 0 {
		frontier = append(frontier, s.SeedIDs...)
	}
	for id, r := range s.Candidates {
		if r.Generation != s.CurrentGeneration {
			continue
		}
		if st := r.Status(); st == StatusMember || st == StatusCandidate {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)
	s.Frontier = frontier
}

// Rezone reapplies weights and thresholds to every candidate record.
func (s *ExplorationState) Rezone(w scoring.ScoringWeights, t scoring.Thresholds) {
	s.Weights = w
	s.Thresholds = t
	for _, r := range s.Candidates {
		r.Apply(w, t)
	}
	s.RecomputeFrontier()
}

// SetOverride forces the status of a candidate. Seeds cannot be overridden.
// The frontier only draws from the current generation, so overriding an
// older-generation candidate to member changes its status and the seed
// aggregate on the next rebuild, never the frontier.
func (s *ExplorationState) SetOverride(id string, o Override) error {
	r, ok := s.Candidates[id]
	if !ok {
		return errors.Newf(errors.ErrCodeUnknownCandidate, "patent %s is not a candidate of exploration %s", id, s.ID)
	}
	r.Override = o
	return nil
}

// NextStepNumber returns the number the next recorded step will get.
func (s *ExplorationState) NextStepNumber() int { return len(s.Steps) + 1 }

// Touch bumps the version and update time. Called once per committed mutation.
func (s *ExplorationState) Touch(now time.Time) {
	s.Version++
	s.UpdatedAt = now.UTC()
}

// Clone returns a deep copy so an operation can build its result on the copy
// and commit all-or-nothing.
func (s *ExplorationState) Clone() *ExplorationState {
	c := *s
	c.SeedIDs = append([]string(nil), s.SeedIDs...)
	c.Frontier = append([]string(nil), s.Frontier...)
	c.Steps = make([]ExpansionStep, len(s.Steps))
	for i, st := range s.Steps {
		st.Warnings = append([]string(nil), st.Warnings...)
		c.Steps[i] = st
	}
	c.Candidates = make(map[string]*CandidateRecord, len(s.Candidates))
	for id, r := range s.Candidates {
		rc := *r
		rc.Dimensions = r.Dimensions.Clone()
		rc.Relations = append([]Relation(nil), r.Relations...)
		rc.DiscoveredBy = append([]string(nil), r.DiscoveredBy...)
		c.Candidates[id] = &rc
	}
	return &c
}

// CheckInvariants verifies that every id has exactly one effective status and
// that the frontier only holds members or neutral candidates.
func (s *ExplorationState) CheckInvariants() error {
	for _, id := range s.SeedIDs {
		if _, dup := s.Candidates[id]; dup {
			return errors.Newf(errors.CodeInternal, "seed %s also recorded as candidate", id)
		}
	}
	for _, id := range s.Frontier {
		st, ok := s.StatusOf(id)
		if !ok || st == StatusExcluded {
			return errors.Newf(errors.CodeInternal, "frontier id %s has status %q", id, st)
		}
	}
	return nil
}

// Summary is the list view of an exploration.
type Summary struct {
	ID                string    `json:"id"`
	Name              string    `json:"name,omitempty"`
	SeedCount         int       `json:"seed_count"`
	CandidateCount    int       `json:"candidate_count"`
	CurrentGeneration int       `json:"current_generation"`
	Version           int64     `json:"version"`
	Archived          bool      `json:"archived"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Summarize builds the list view.
func (s *ExplorationState) Summarize() Summary {
	return Summary{
		ID:                s.ID,
		Name:              s.Name,
		SeedCount:         len(s.SeedIDs),
		CandidateCount:    len(s.Candidates),
		CurrentGeneration: s.CurrentGeneration,
		Version:           s.Version,
		Archived:          s.Archived,
		UpdatedAt:         s.UpdatedAt,
	}
}
