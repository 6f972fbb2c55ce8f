package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/mission"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/prompt"
	"github.com/zerohq/agentcorp/pkg/store"
)

// memoryContentCap bounds how much of a result is stored verbatim as an
// experience entry.
const memoryContentCap = 2000

// executeNextStep claims one ready step and runs it through the model
// pipeline. Claim races with other executors are skipped silently.
func (w *Worker) executeNextStep(ctx context.Context) error {
	pending, err := w.store.GetPendingSteps(ctx, pendingBatch)
	if err != nil {
		return fmt.Errorf("loading pending steps: %w", err)
	}

	var claimed *models.MissionStep
	for _, step := range pending {
		claimed, err = w.store.ClaimStep(ctx, step.ID)
		if errors.Is(err, store.ErrClaimLost) {
			continue
		}
		if err != nil {
			return fmt.Errorf("claiming step: %w", err)
		}
		break
	}
	if claimed == nil {
		return nil
	}
	return w.executeStep(ctx, claimed)
}

func (w *Worker) executeStep(ctx context.Context, step *models.MissionStep) error {
	agent, err := w.store.GetAgent(ctx, step.AgentID)
	if err != nil {
		return w.failStep(ctx, step, fmt.Errorf("loading agent: %w", err))
	}
	w.logger.Info("executing step",
		"step_id", step.ID, "agent", agent.DisplayName, "tier", step.ModelTier)

	category := mission.RouteByKeywords(step.Description)
	systemPrompt, err := w.memories.BuildAgentPrompt(ctx, agent, []string{string(category)})
	if err != nil {
		return w.failStep(ctx, step, fmt.Errorf("building agent prompt: %w", err))
	}

	userMessage, err := w.buildUserMessage(ctx, step, agent.Role)
	if err != nil {
		return w.failStep(ctx, step, err)
	}

	tier := step.ModelTier
	if tier == "" {
		tier = llm.SelectTier(false, step.Description, llm.SelectContext{})
	}

	resp, err := w.router.CallLLM(ctx, systemPrompt, userMessage, tier, &agent.ID, &step.ID)
	if err != nil {
		return w.failStep(ctx, step, fmt.Errorf("model call: %w", err))
	}

	// Tool follow-ups stay on whichever tier actually answered.
	followUp := func(ctx context.Context, msg string) (string, error) {
		r, err := w.router.CallLLM(ctx, systemPrompt, msg, resp.Tier, &agent.ID, &step.ID)
		if err != nil {
			return "", err
		}
		return r.Content, nil
	}
	content, err := w.resolver.Resolve(ctx, step.Description, resp.Content, followUp)
	if err != nil {
		return w.failStep(ctx, step, fmt.Errorf("resolving tool markers: %w", err))
	}

	if err := w.store.CompleteStep(ctx, step.ID, content); err != nil {
		if errors.Is(err, store.ErrClaimLost) {
			w.logger.Warn("step no longer in progress, result dropped", "step_id", step.ID)
			return nil
		}
		return fmt.Errorf("completing step: %w", err)
	}
	w.logger.Info("step submitted for review", "step_id", step.ID, "model", resp.Model)

	w.recordExperience(ctx, agent, step, content, category)
	if err := w.skills.TrackSkillUsage(ctx, agent.ID, step.Description); err != nil {
		w.logger.Warn("skill tracking failed", "agent_id", agent.ID, "error", err)
	}
	return nil
}

// buildUserMessage assembles the task prompt: pre-fetched URL content,
// the role-mandated context blocks, and the previous phase's output when
// this step is chained.
func (w *Worker) buildUserMessage(ctx context.Context, step *models.MissionStep, agentRole string) (string, error) {
	originating, err := w.originatingRequest(ctx, step.MissionID)
	if err != nil {
		return "", err
	}

	enriched := *step
	enriched.Description = w.resolver.Prefetch(ctx, step.Description)
	msg := prompt.BuildTaskContext(&enriched, agentRole, originating)

	if step.ParentStepID != nil {
		parent, err := w.store.GetStep(ctx, *step.ParentStepID)
		if err != nil {
			return "", fmt.Errorf("loading parent step: %w", err)
		}
		parentName := parent.AgentID
		if pa, err := w.store.GetAgent(ctx, parent.AgentID); err == nil {
			parentName = pa.DisplayName
		}
		msg += fmt.Sprintf("\n\nPREVIOUS PHASE OUTPUT (from %s):\n%s", parentName, parent.Result)
	}
	return msg, nil
}

// originatingRequest returns the raw human message behind the mission's
// proposal, or empty for machine-generated missions.
func (w *Worker) originatingRequest(ctx context.Context, missionID string) (string, error) {
	m, err := w.store.GetMission(ctx, missionID)
	if err != nil {
		return "", fmt.Errorf("loading mission: %w", err)
	}
	p, err := w.store.GetProposal(ctx, m.ProposalID)
	if err != nil {
		return "", fmt.Errorf("loading proposal: %w", err)
	}
	return p.RawMessage, nil
}

// failStep marks the step failed and propagates the mission-level
// consequence.
func (w *Worker) failStep(ctx context.Context, step *models.MissionStep, cause error) error {
	w.logger.Error("step failed", "step_id", step.ID, "error", cause)
	if err := w.store.FailStep(ctx, step.ID, cause.Error()); err != nil {
		return fmt.Errorf("recording step failure: %w", err)
	}
	w.emitter.EmitError(ctx, events.TypeStepFailed,
		fmt.Sprintf("step failed: %s", step.Description),
		map[string]any{"step_id": step.ID, "mission_id": step.MissionID, "error": cause.Error()})

	done, m, err := w.store.CheckMissionCompletion(ctx, step.MissionID)
	if err != nil {
		return fmt.Errorf("checking mission after failure: %w", err)
	}
	if done && m.Status == models.MissionStatusFailed {
		w.emitter.EmitError(ctx, events.TypeMissionFailed, "mission failed: "+m.Title,
			map[string]any{"mission_id": m.ID})
	}
	return nil
}

// recordExperience appends the task memory for a submitted result.
func (w *Worker) recordExperience(ctx context.Context, agent *models.Agent, step *models.MissionStep, result string, category mission.Category) {
	content := result
	if len(content) > memoryContentCap {
		content = content[:memoryContentCap]
	}
	err := w.memories.SaveMemory(ctx, &models.AgentMemory{
		AgentID:    agent.ID,
		MemoryType: models.MemoryTypeTask,
		Content:    content,
		Summary:    "Completed task: " + step.Description,
		TopicTags:  []string{string(category)},
		Importance: 5,
		SourceType: "mission_step",
		SourceID:   step.ID,
	})
	if err != nil {
		w.logger.Warn("task memory write failed", "agent_id", agent.ID, "error", err)
	}
}
