package models

import (
	"encoding/json"
	"time"
)

// EventSeverity classifies an event row.
type EventSeverity string

// Event severity constants.
const (
	SeverityInfo    EventSeverity = "info"
	SeverityWarning EventSeverity = "warning"
	SeverityError   EventSeverity = "error"
)

// Event records a significant state transition. All engine transitions
// emit one.
type Event struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Severity    EventSeverity   `json:"severity"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data,omitempty"`
	Processed   bool            `json:"processed"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ModelUsage is one row per LLM call, success or failure.
type ModelUsage struct {
	ID            string          `json:"id"`
	AgentID       *string         `json:"agent_id,omitempty"`
	StepID        *string         `json:"step_id,omitempty"`
	ModelName     string          `json:"model_name"`
	Tier          ModelTier       `json:"tier"`
	InputTokens   int             `json:"input_tokens"`
	OutputTokens  int             `json:"output_tokens"`
	EstimatedCost float64         `json:"estimated_cost"`
	LatencyMs     int64           `json:"latency_ms"`
	Success       bool            `json:"success"`
	ErrorMessage  string          `json:"error_message"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// HealthState classifies a health-check result.
type HealthState string

// Health check states.
const (
	HealthPass    HealthState = "pass"
	HealthWarning HealthState = "warning"
	HealthFail    HealthState = "fail"
)

// HealthCheck is one periodic component probe result.
type HealthCheck struct {
	ID        string      `json:"id"`
	Component string      `json:"component"`
	Status    HealthState `json:"status"`
	LatencyMs int64       `json:"latency_ms"`
	Details   string      `json:"details"`
	CreatedAt time.Time   `json:"created_at"`
}

// PolicyType identifies an operational-rule row.
type PolicyType string

// Policy type constants.
const (
	PolicySpendingLimit  PolicyType = "spending_limit"
	PolicyModelRouting   PolicyType = "model_routing"
	PolicyOperatingHours PolicyType = "operating_hours"
	PolicyDailySummary   PolicyType = "daily_summary"
	PolicyCostAlert      PolicyType = "cost_alert"
)

// Policy is a versioned configuration row consumed by spending, routing,
// and scheduling decisions. The newest active row per type wins.
type Policy struct {
	ID         string          `json:"id"`
	PolicyType PolicyType      `json:"policy_type"`
	Config     json.RawMessage `json:"config"`
	Version    int             `json:"version"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
}
