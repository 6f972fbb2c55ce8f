// Package models defines the entity types shared by the dispatcher,
// executor, and ingress processes. Every entity lives in the relational
// store; processes own none of them.
package models

import "time"

// TeamStatus represents a team's lifecycle state.
type TeamStatus string

// Team status constants.
const (
	TeamStatusActive  TeamStatus = "active"
	TeamStatusDormant TeamStatus = "dormant"
)

// Team is a named collection of agents; the unit of activation/dormancy.
type Team struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      TeamStatus `json:"status"`
	LeadAgentID *string    `json:"lead_agent_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AgentType distinguishes the org chart position of an agent.
type AgentType string

// Agent type constants.
const (
	AgentTypeChiefOfStaff AgentType = "chief_of_staff"
	AgentTypeTeamLead     AgentType = "team_lead"
	AgentTypeQA           AgentType = "qa"
	AgentTypeSubAgent     AgentType = "sub_agent"
)

// AgentStatus represents an agent's lifecycle state.
type AgentStatus string

// Agent status constants.
const (
	AgentStatusActive  AgentStatus = "active"
	AgentStatusDormant AgentStatus = "dormant"
	AgentStatusRetired AgentStatus = "retired"
)

// Agent is a persistent identity with a role, persona, memory, and skills,
// backed by an LLM invocation.
type Agent struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Role        string      `json:"role"`
	AgentType   AgentType   `json:"agent_type"`
	TeamID      *string     `json:"team_id,omitempty"` // nil for chief-of-staff
	Status      AgentStatus `json:"status"`
	PersonaID   *string     `json:"persona_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NamePoolEntry is a row in the finite display-name pool.
// Invariant: Assigned implies AssignedTo references a non-retired agent.
type NamePoolEntry struct {
	Name       string     `json:"name"`
	Source     string     `json:"source"`
	Assigned   bool       `json:"assigned"`
	AssignedTo *string    `json:"assigned_to,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Persona is one immutable version of an agent's system-prompt identity.
// The agent's PersonaID always points at the newest version; older rows
// are retained for audit.
type Persona struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	Identity     string    `json:"identity"`
	Personality  string    `json:"personality"`
	Skills       string    `json:"skills"`
	Background   string    `json:"background"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
}

// HiringStatus represents a hiring proposal's state.
type HiringStatus string

// Hiring proposal status constants.
const (
	HiringStatusPending   HiringStatus = "pending"
	HiringStatusApproved  HiringStatus = "approved"
	HiringStatusRejected  HiringStatus = "rejected"
	HiringStatusCompleted HiringStatus = "completed"
)

// HiringProposal requests a new agent for a role on a team.
// Invariant: at most one pending proposal per (role, team).
type HiringProposal struct {
	ID                string       `json:"id"`
	RoleTitle         string       `json:"role_title"`
	TeamID            string       `json:"team_id"`
	Justification     string       `json:"justification"`
	Status            HiringStatus `json:"status"`
	Announced         bool         `json:"announced"`
	TriggerProposalID *string      `json:"trigger_proposal_id,omitempty"`
	CreatedAgentID    *string      `json:"created_agent_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}
