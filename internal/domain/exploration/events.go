package exploration

import "time"

// Event types published after committed mutations.
const (
	EventExplorationCreated  = "exploration.created"
	EventExplorationExpanded = "exploration.expanded"
	EventExplorationRescored = "exploration.rescored"
	EventCandidateStatus     = "exploration.candidate_status"
	EventAggregateRebuilt    = "exploration.aggregate_rebuilt"
	EventExplorationArchived = "exploration.archived"
)

// Event is a domain event about one exploration.
type Event struct {
	Type          string      `json:"type"`
	ExplorationID string      `json:"exploration_id"`
	Version       int64       `json:"version"`
	Generation    int         `json:"generation"`
	OccurredAt    time.Time   `json:"occurred_at"`
	Payload       interface{} `json:"payload,omitempty"`
}

// StepPayload summarizes a recorded step.
type StepPayload struct {
	Step      int    `json:"step"`
	Label     string `json:"label"`
	Evaluated int    `json:"evaluated"`
	Accepted  int    `json:"accepted"`
	Expansion int    `json:"expansion"`
	Rejected  int    `json:"rejected"`
	Pruned    int    `json:"pruned"`
	Warnings  int    `json:"warnings"`
}

// NewStepPayload builds the payload for step.
func NewStepPayload(step ExpansionStep) StepPayload {
	return StepPayload{
		Step:      step.Number,
		Label:     step.Label(),
		Evaluated: step.Evaluated,
		Accepted:  step.Accepted,
		Expansion: step.ExpansionZone,
		Rejected:  step.Rejected,
		Pruned:    step.Pruned,
		Warnings:  len(step.Warnings),
	}
}

// StatusChange is one requested override.
type StatusChange struct {
	PatentID string   `json:"patent_id"`
	Status   Override `json:"status"`
}
