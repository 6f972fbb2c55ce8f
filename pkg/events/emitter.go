// Package events provides typed emit helpers over the events table.
// Every significant engine transition writes one row; emission failures
// are logged and swallowed so they never block the transition itself.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
)

// Event type constants. The ingress poller and the daily summary both
// key off these.
const (
	TypeMissionCreated   = "mission_created"
	TypeMissionCompleted = "mission_completed"
	TypeMissionFailed    = "mission_failed"
	TypeStepCompleted    = "step_completed"
	TypeStepFailed       = "step_failed"
	TypeReviewApproved   = "review_approved"
	TypeReviewRejected   = "review_rejected"
	TypeAgentHired       = "agent_hired"
	TypeAgentRetired     = "agent_retired"
	TypeAgentUpskilled   = "agent_upskilled"
	TypeSkillLevelUp     = "skill_level_up"
	TypeCostAlert        = "cost_alert"
	TypePolicyDenied     = "policy_denied"
	TypeDispatchError    = "dispatch_error"
	TypeExecutorError    = "executor_error"
	TypeScheduleError    = "schedule_error"
)

// Emitter writes typed event rows.
type Emitter struct {
	store  *store.Store
	logger *slog.Logger
}

// NewEmitter creates an Emitter over the store.
func NewEmitter(s *store.Store, logger *slog.Logger) *Emitter {
	return &Emitter{store: s, logger: logger.With("component", "events")}
}

// Emit writes an info-severity event. Failures are logged, not returned.
func (e *Emitter) Emit(ctx context.Context, eventType, description string, data any) {
	e.emit(ctx, eventType, models.SeverityInfo, description, data)
}

// EmitWarning writes a warning-severity event.
func (e *Emitter) EmitWarning(ctx context.Context, eventType, description string, data any) {
	e.emit(ctx, eventType, models.SeverityWarning, description, data)
}

// EmitError writes an error-severity event. Loop boundaries call this
// after catching an operation failure, then continue.
func (e *Emitter) EmitError(ctx context.Context, eventType, description string, data any) {
	e.emit(ctx, eventType, models.SeverityError, description, data)
}

func (e *Emitter) emit(ctx context.Context, eventType string, severity models.EventSeverity, description string, data any) {
	var payload json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			e.logger.Warn("failed to encode event data", "event_type", eventType, "error", err)
		} else {
			payload = encoded
		}
	}
	if _, err := e.store.InsertEvent(ctx, eventType, severity, description, payload); err != nil {
		e.logger.Warn("failed to emit event", "event_type", eventType, "error", err)
	}
}
