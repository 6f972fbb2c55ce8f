package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zerohq/agentcorp/pkg/docstore"
	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/review"
	"github.com/zerohq/agentcorp/pkg/store"
)

// resolveNextReview takes the oldest pending approval, has the reviewer
// score it against the rubric, and applies the verdict. QA approvals
// escalate to the team lead; team-lead approvals finalize the step.
func (w *Worker) resolveNextReview(ctx context.Context) error {
	approval, err := w.store.NextPendingApproval(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading pending approval: %w", err)
	}

	step, err := w.store.GetStep(ctx, approval.StepID)
	if err != nil {
		return fmt.Errorf("loading step under review: %w", err)
	}
	reviewer, err := w.store.GetAgent(ctx, approval.ReviewerID)
	if err != nil {
		return fmt.Errorf("loading reviewer: %w", err)
	}

	systemPrompt, err := w.memories.BuildAgentPrompt(ctx, reviewer, []string{"review"})
	if err != nil {
		return fmt.Errorf("building reviewer prompt: %w", err)
	}

	tier := models.TierT1
	if approval.ReviewType == models.ReviewTypeTeamLead {
		tier = models.TierT2
	}
	resp, err := w.router.CallLLM(ctx, systemPrompt,
		review.BuildReviewPrompt(step.Description, step.Result),
		tier, &reviewer.ID, &step.ID)
	if err != nil {
		// Approval stays pending; retried next tick.
		return fmt.Errorf("review model call: %w", err)
	}

	verdict := review.ParseVerdict(resp.Content)
	status := models.ApprovalStatusRejected
	if verdict.Approved {
		status = models.ApprovalStatusApproved
	}

	resolved, err := w.store.SubmitReview(ctx, approval.ID, status, verdict.Feedback)
	if errors.Is(err, store.ErrClaimLost) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("submitting review: %w", err)
	}
	w.logger.Info("review resolved",
		"step_id", step.ID, "reviewer", reviewer.DisplayName,
		"verdict", status, "average", verdict.Average)

	if status == models.ApprovalStatusRejected {
		return w.handleRejection(ctx, step, resolved.Feedback, verdict.Average)
	}
	return w.handleApproval(ctx, step, resolved)
}

func (w *Worker) handleRejection(ctx context.Context, step *models.MissionStep, feedback string, average float64) error {
	w.emitter.Emit(ctx, events.TypeReviewRejected,
		fmt.Sprintf("work rejected (avg %.1f): %s", average, step.Description),
		map[string]any{"step_id": step.ID, "agent_id": step.AgentID})

	if err := w.learner.RecordRejection(ctx, step.AgentID, feedback); err != nil {
		w.logger.Warn("rejection lesson write failed", "step_id", step.ID, "error", err)
	}

	author, err := w.store.GetAgent(ctx, step.AgentID)
	if err != nil {
		return fmt.Errorf("loading author for upskill check: %w", err)
	}
	upgraded, err := w.personas.MaybeUpskill(ctx, author, step.ID)
	if err != nil {
		w.logger.Warn("upskill check failed", "agent_id", author.ID, "error", err)
	}
	if upgraded {
		w.logger.Info("agent upskilled after repeated rejections",
			"agent_id", author.ID, "step_id", step.ID)
	}
	return nil
}

func (w *Worker) handleApproval(ctx context.Context, step *models.MissionStep, approval *models.Approval) error {
	w.emitter.Emit(ctx, events.TypeReviewApproved,
		"work approved: "+step.Description,
		map[string]any{"step_id": step.ID, "review_type": approval.ReviewType})

	if approval.ReviewType == models.ReviewTypeQA {
		return w.escalateToTeamLead(ctx, step, approval.ReviewerID)
	}
	return w.finalizeStep(ctx, step)
}

// escalateToTeamLead creates the second-stage approval after a QA pass.
// When the team has no lead the QA verdict stands and the step finalizes.
func (w *Worker) escalateToTeamLead(ctx context.Context, step *models.MissionStep, qaReviewerID string) error {
	author, err := w.store.GetAgent(ctx, step.AgentID)
	if err != nil {
		return fmt.Errorf("loading author: %w", err)
	}

	var lead *models.Agent
	if author.TeamID != nil {
		teamAgents, err := w.store.AgentsByTeam(ctx, *author.TeamID)
		if err != nil {
			return fmt.Errorf("loading team for escalation: %w", err)
		}
		for _, a := range teamAgents {
			if a.Status == models.AgentStatusActive &&
				a.AgentType == models.AgentTypeTeamLead &&
				a.ID != author.ID && a.ID != qaReviewerID {
				lead = a
				break
			}
		}
	}
	if lead == nil {
		return w.finalizeStep(ctx, step)
	}
	if _, err := w.store.CreateApproval(ctx, step.ID, lead.ID, models.ReviewTypeTeamLead); err != nil {
		return fmt.Errorf("escalating to team lead: %w", err)
	}
	w.logger.Info("escalated to team lead", "step_id", step.ID, "lead", lead.DisplayName)
	return nil
}

// finalizeStep completes an approved step, publishes the deliverable,
// and checks mission completion.
func (w *Worker) finalizeStep(ctx context.Context, step *models.MissionStep) error {
	if err := w.store.ApproveStep(ctx, step.ID); err != nil {
		if errors.Is(err, store.ErrClaimLost) {
			return nil
		}
		return fmt.Errorf("approving step: %w", err)
	}
	w.emitter.Emit(ctx, events.TypeStepCompleted, "step approved: "+step.Description,
		map[string]any{"step_id": step.ID, "mission_id": step.MissionID})
	w.publishDeliverable(ctx, step)

	done, m, err := w.store.CheckMissionCompletion(ctx, step.MissionID)
	if err != nil {
		return fmt.Errorf("checking mission completion: %w", err)
	}
	if done && m.Status == models.MissionStatusCompleted {
		w.emitter.Emit(ctx, events.TypeMissionCompleted, "mission completed: "+m.Title,
			map[string]any{"mission_id": m.ID})
	}
	return nil
}

// publishDeliverable pushes the approved result outward. External
// failures are logged, never returned.
func (w *Worker) publishDeliverable(ctx context.Context, step *models.MissionStep) {
	if w.publisher == nil || strings.TrimSpace(step.Result) == "" {
		return
	}
	agentName := step.AgentID
	if agent, err := w.store.GetAgent(ctx, step.AgentID); err == nil {
		agentName = agent.DisplayName
	}
	m, err := w.store.GetMission(ctx, step.MissionID)
	if err != nil {
		w.logger.Warn("publish skipped, mission lookup failed", "step_id", step.ID, "error", err)
		return
	}
	_, err = w.publisher.PublishDeliverable(ctx, docstore.Deliverable{
		Title:     m.Title,
		Content:   step.Result,
		TeamID:    m.TeamID,
		AgentName: agentName,
		MissionID: m.ID,
		StepID:    step.ID,
	})
	if err != nil {
		w.logger.Warn("deliverable publish failed", "step_id", step.ID, "error", err)
	}
}
