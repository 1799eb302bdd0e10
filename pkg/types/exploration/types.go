// Package exploration defines the JSON wire types of the family explorer
// API. They are shared by the HTTP handlers and the Go client.
package exploration

import "time"

// Weights mirrors the nine dimension weights and the depth decay.
type Weights struct {
	Taxonomic               float64 `json:"taxonomic" yaml:"taxonomic"`
	CommonPriorArt          float64 `json:"common_prior_art" yaml:"common_prior_art"`
	CommonForward           float64 `json:"common_forward" yaml:"common_forward"`
	CompetitorOverlap       float64 `json:"competitor_overlap" yaml:"competitor_overlap"`
	PortfolioAffiliate      float64 `json:"portfolio_affiliate" yaml:"portfolio_affiliate"`
	CitationSectorAlignment float64 `json:"citation_sector_alignment" yaml:"citation_sector_alignment"`
	MultiPath               float64 `json:"multi_path" yaml:"multi_path"`
	Assignee                float64 `json:"assignee_relationship" yaml:"assignee_relationship"`
	Temporal                float64 `json:"temporal_proximity" yaml:"temporal_proximity"`
	DepthDecay              float64 `json:"depth_decay" yaml:"depth_decay"`
}

// Thresholds are the membership and expansion bounds on the 0..100 scale.
type Thresholds struct {
	Membership float64 `json:"membership" yaml:"membership"`
	Expansion  float64 `json:"expansion" yaml:"expansion"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Requests
// ─────────────────────────────────────────────────────────────────────────────

// CreateRequest starts an exploration. Weights take precedence over Preset.
type CreateRequest struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name,omitempty"`
	SeedIDs    []string    `json:"seed_ids" binding:"required,min=1"`
	Preset     string      `json:"preset,omitempty"`
	Weights    *Weights    `json:"weights,omitempty"`
	Thresholds *Thresholds `json:"thresholds,omitempty"`
}

// ExpandRequest runs one generation step.
type ExpandRequest struct {
	Direction          string      `json:"direction" binding:"required,oneof=backward forward both"`
	Preset             string      `json:"preset,omitempty"`
	Weights            *Weights    `json:"weights,omitempty"`
	Thresholds         *Thresholds `json:"thresholds,omitempty"`
	MaxCandidates      int         `json:"max_candidates,omitempty" binding:"omitempty,min=1"`
	ExpectedGeneration *int        `json:"expected_generation,omitempty"`
}

// SiblingsRequest runs one sibling step.
type SiblingsRequest struct {
	Direction          string `json:"direction" binding:"required,oneof=backward forward both"`
	MaxCandidates      int    `json:"max_candidates,omitempty" binding:"omitempty,min=1"`
	ExpectedGeneration *int   `json:"expected_generation,omitempty"`
}

// RescoreRequest reapplies weights and thresholds to cached dimensions.
type RescoreRequest struct {
	Preset             string      `json:"preset,omitempty"`
	Weights            *Weights    `json:"weights,omitempty"`
	Thresholds         *Thresholds `json:"thresholds,omitempty"`
	ExpectedGeneration *int        `json:"expected_generation,omitempty"`
}

// StatusChange overrides the status of one candidate. Status is one of
// member, excluded, neutral or none.
type StatusChange struct {
	PatentID string `json:"patent_id" binding:"required"`
	Status   string `json:"status" binding:"required"`
}

// StatusRequest applies a batch of overrides atomically.
type StatusRequest struct {
	Changes []StatusChange `json:"changes" binding:"required,min=1,dive"`
}

// RebuildRequest rebuilds the seed aggregate from the current members.
type RebuildRequest struct {
	ExpectedGeneration *int `json:"expected_generation,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Responses
// ─────────────────────────────────────────────────────────────────────────────

// Candidate is one scored patent. Dimensions holds only the dimensions that
// had data.
type Candidate struct {
	PatentID        string             `json:"patent_id"`
	Title           string             `json:"title,omitempty"`
	Assignee        string             `json:"assignee,omitempty"`
	Composite       float64            `json:"composite"`
	Raw             float64            `json:"raw"`
	DepthMultiplier float64            `json:"depth_multiplier"`
	Completeness    float64            `json:"completeness"`
	Generation      int                `json:"generation"`
	Dimensions      map[string]float64 `json:"dimensions"`
	Zone            string             `json:"zone"`
	Status          string             `json:"status"`
	Override        string             `json:"override,omitempty"`
	Relations       []string           `json:"relations"`
	DiscoveredBy    []string           `json:"discovered_by"`
}

// Step is one recorded mutation.
type Step struct {
	Number        int        `json:"number"`
	Kind          string     `json:"kind"`
	Direction     string     `json:"direction,omitempty"`
	Generation    int        `json:"generation"`
	Evaluated     int        `json:"evaluated"`
	Accepted      int        `json:"accepted"`
	ExpansionZone int        `json:"expansion_zone"`
	Rejected      int        `json:"rejected"`
	Pruned        int        `json:"pruned"`
	Weights       Weights    `json:"weights"`
	Thresholds    Thresholds `json:"thresholds"`
	Warnings      []string   `json:"warnings,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   time.Time  `json:"completed_at"`
}

// Exploration is the full exploration document.
type Exploration struct {
	ID                string      `json:"id"`
	Name              string      `json:"name,omitempty"`
	SeedIDs           []string    `json:"seed_ids"`
	AggregateIDs      []string    `json:"aggregate_ids"`
	Preset            string      `json:"preset,omitempty"`
	Weights           Weights     `json:"weights"`
	Thresholds        Thresholds  `json:"thresholds"`
	CurrentGeneration int         `json:"current_generation"`
	Version           int64       `json:"version"`
	Frontier          []string    `json:"frontier"`
	Members           []string    `json:"members"`
	Candidates        []Candidate `json:"candidates"`
	Steps             []Step      `json:"steps"`
	Archived          bool        `json:"archived"`
	ArchiveKey        string      `json:"archive_key,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// CreateResponse is returned by create.
type CreateResponse struct {
	Exploration Exploration `json:"exploration"`
	Warnings    []string    `json:"warnings"`
}

// ExpansionResult is returned by expand, siblings and rescore.
type ExpansionResult struct {
	ExplorationID string      `json:"exploration_id"`
	Generation    int         `json:"generation"`
	Version       int64       `json:"version"`
	Step          Step        `json:"step"`
	Candidates    []Candidate `json:"candidates"`
	Frontier      []string    `json:"frontier"`
	Pruned        int         `json:"pruned"`
	Warnings      []string    `json:"warnings"`
}

// RebuildResponse is returned by an aggregate rebuild.
type RebuildResponse struct {
	ExplorationID string   `json:"exploration_id"`
	Version       int64    `json:"version"`
	Contributors  int      `json:"contributors"`
	Warnings      []string `json:"warnings"`
}

// ArchiveResponse carries the object key of the archived snapshot.
type ArchiveResponse struct {
	ExplorationID string `json:"exploration_id"`
	Key           string `json:"key"`
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

// ListResponse is a page of summaries.
type ListResponse struct {
	Items  []Summary `json:"items"`
	Total  int64     `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// Preset is a named weight vector.
type Preset struct {
	Name    string  `json:"name"`
	Default bool    `json:"default"`
	Weights Weights `json:"weights"`
}

// PresetsResponse lists the available presets.
type PresetsResponse struct {
	Presets []Preset `json:"presets"`
}

// ErrorBody is the error payload.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse is the envelope of every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
