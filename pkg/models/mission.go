package models

import "time"

// ProposalPriority orders proposal intake.
type ProposalPriority string

// Proposal priority constants.
const (
	PriorityUrgent ProposalPriority = "urgent"
	PriorityNormal ProposalPriority = "normal"
)

// ProposalStatus represents a mission proposal's state.
type ProposalStatus string

// Proposal status constants.
const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusAccepted ProposalStatus = "accepted"
	ProposalStatusDeferred ProposalStatus = "deferred"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// MissionProposal is a pending work request.
type MissionProposal struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Priority       ProposalPriority `json:"priority"`
	ProposingAgent string           `json:"proposing_agent"`
	RawMessage     string           `json:"raw_message"`
	Status         ProposalStatus   `json:"status"`
	Processed      bool             `json:"processed"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// MissionStatus represents a mission's state.
type MissionStatus string

// Mission status constants.
const (
	MissionStatusInProgress MissionStatus = "in_progress"
	MissionStatusCompleted  MissionStatus = "completed"
	MissionStatusFailed     MissionStatus = "failed"
)

// Mission is an accepted work unit; parent of ordered steps.
type Mission struct {
	ID          string        `json:"id"`
	ProposalID  string        `json:"proposal_id"`
	TeamID      string        `json:"team_id"`
	Title       string        `json:"title"`
	Status      MissionStatus `json:"status"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ModelTier is the cost-capability axis of the model router.
type ModelTier string

// Model tier constants.
const (
	TierT1 ModelTier = "t1"
	TierT2 ModelTier = "t2"
	TierT3 ModelTier = "t3"
)

// StepStatus represents a mission step's state.
type StepStatus string

// Step status constants.
const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusInReview   StepStatus = "in_review"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// Terminal reports whether the status is a terminal step state.
func (s StepStatus) Terminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}

// MissionStep is an atomic task assigned to one agent, possibly chained
// to a predecessor. A step with StepOrder > 1 is only claimable once every
// lower-ordered sibling is completed.
type MissionStep struct {
	ID           string     `json:"id"`
	MissionID    string     `json:"mission_id"`
	Description  string     `json:"description"`
	AgentID      string     `json:"agent_id"`
	ModelTier    ModelTier  `json:"model_tier"`
	StepOrder    int        `json:"step_order"` // 1-based
	ParentStepID *string    `json:"parent_step_id,omitempty"`
	Status       StepStatus `json:"status"`
	Result       string     `json:"result"`
	ErrorMessage string     `json:"error_message"`
	Announced    bool       `json:"announced"`
	Processed    bool       `json:"processed"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ReviewType distinguishes the two review lanes.
type ReviewType string

// Review type constants.
const (
	ReviewTypeQA       ReviewType = "qa"
	ReviewTypeTeamLead ReviewType = "team_lead"
)

// ApprovalStatus represents an approval row's state.
type ApprovalStatus string

// Approval status constants.
const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Approval is a review row for a step. A rejection sends the step back to
// pending with its result cleared.
type Approval struct {
	ID         string         `json:"id"`
	StepID     string         `json:"step_id"`
	ReviewerID string         `json:"reviewer_id"`
	ReviewType ReviewType     `json:"review_type"`
	Status     ApprovalStatus `json:"status"`
	Feedback   string         `json:"feedback"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ProjectPhase is a named phase in the fixed project lifecycle.
type ProjectPhase string

// Project phases, in order.
const (
	PhaseDiscovery ProjectPhase = "discovery"
	PhasePlanning  ProjectPhase = "planning"
	PhaseExecution ProjectPhase = "execution"
	PhaseReview    ProjectPhase = "review"
	PhaseLaunch    ProjectPhase = "launch"
)

// ProjectPhases is the fixed phase order a project advances through.
var ProjectPhases = []ProjectPhase{
	PhaseDiscovery, PhasePlanning, PhaseExecution, PhaseReview, PhaseLaunch,
}

// ProjectStatus represents a project's state.
type ProjectStatus string

// Project status constants.
const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
)

// Project is a named multi-mission effort advanced through fixed phases.
// The dispatcher drives one mission per phase: it queues a proposal for
// the current phase, links the mission once the proposal is accepted, and
// advances the phase when that mission finishes.
type Project struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	Phase             ProjectPhase  `json:"phase"`
	Status            ProjectStatus `json:"status"`
	CurrentMissionID  *string       `json:"current_mission_id,omitempty"`
	CurrentProposalID *string       `json:"current_proposal_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
