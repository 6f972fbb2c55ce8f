package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/mission"
	"github.com/zerohq/agentcorp/pkg/models"
)

// processProposals promotes pending proposals to missions with steps.
// A capability gap triggers auto-hire, falling back to a hiring proposal
// plus deferral when the name pool is exhausted. Outside operating hours
// only urgent proposals are taken.
func (d *Dispatcher) processProposals(ctx context.Context) error {
	proposals, err := d.store.GetPendingProposals(ctx)
	if err != nil {
		return fmt.Errorf("loading pending proposals: %w", err)
	}
	if len(proposals) == 0 {
		return nil
	}

	withinHours := d.withinOperatingHours(ctx, time.Now())

	for _, p := range proposals {
		if !withinHours && p.Priority != models.PriorityUrgent {
			continue
		}
		if err := d.processProposal(ctx, p); err != nil {
			d.logger.Error("proposal processing failed", "proposal_id", p.ID, "error", err)
			d.emitter.EmitError(ctx, events.TypeDispatchError,
				fmt.Sprintf("proposal %s failed: %v", p.ID, err),
				map[string]any{"proposal_id": p.ID})
		}
	}
	return nil
}

func (d *Dispatcher) processProposal(ctx context.Context, p *models.MissionProposal) error {
	agents, err := d.store.ListActiveAgents(ctx)
	if err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}

	category := mission.RouteByKeywords(p.Description)
	assignee := mission.FindBestAgentAcrossTeams(agents, category, "")

	if assignee == nil {
		assignee, err = d.fillGap(ctx, p, category)
		if err != nil {
			return err
		}
		if assignee == nil {
			// hiring proposal created, mission proposal deferred
			return nil
		}
	}

	teamID, err := d.teamForAssignee(ctx, assignee, category)
	if err != nil {
		return err
	}

	m, err := d.store.AcceptProposal(ctx, p.ID, teamID)
	if err != nil {
		return fmt.Errorf("accepting proposal: %w", err)
	}
	d.emitter.Emit(ctx, events.TypeMissionCreated, "mission created: "+m.Title,
		map[string]any{"mission_id": m.ID, "proposal_id": p.ID})

	phases := mission.ParsePhases(p.Description)
	if len(phases) == 0 {
		return d.createSingleStep(ctx, m, p, assignee)
	}
	return d.createPhaseSteps(ctx, m, phases, agents, assignee)
}

// fillGap auto-hires for the category's canned role, falling back to a
// hiring proposal plus deferral when the pool is empty.
func (d *Dispatcher) fillGap(ctx context.Context, p *models.MissionProposal, category mission.Category) (*models.Agent, error) {
	roleTitle := mission.RoleTitles[category]
	agent, err := d.roster.AutoHireGapAgent(ctx, roleTitle, category)
	if err != nil {
		return nil, fmt.Errorf("auto-hire for %s: %w", roleTitle, err)
	}
	if agent != nil {
		return agent, nil
	}

	// Name pool exhausted: switch to the approval path.
	team, err := d.store.GetTeamByName(ctx, mission.StandingTeams[category])
	if err != nil {
		return nil, fmt.Errorf("loading standing team: %w", err)
	}
	justification := fmt.Sprintf("No active agent covers %s work needed by %q.", category, p.Title)
	if _, err := d.store.CreateHiringProposal(ctx, roleTitle, team.ID, justification, &p.ID); err != nil {
		return nil, fmt.Errorf("creating hiring proposal: %w", err)
	}
	if err := d.store.DeferProposal(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("deferring proposal: %w", err)
	}
	d.logger.Info("proposal deferred pending hire", "proposal_id", p.ID, "role", roleTitle)
	return nil, nil
}

func (d *Dispatcher) teamForAssignee(ctx context.Context, assignee *models.Agent, category mission.Category) (string, error) {
	if assignee.TeamID != nil {
		return *assignee.TeamID, nil
	}
	team, err := d.store.GetTeamByName(ctx, mission.StandingTeams[category])
	if err != nil {
		return "", fmt.Errorf("loading standing team: %w", err)
	}
	return team.ID, nil
}

func (d *Dispatcher) createSingleStep(ctx context.Context, m *models.Mission, p *models.MissionProposal, assignee *models.Agent) error {
	tier := llm.SelectTier(false, p.Description, llm.SelectContext{})
	if _, err := d.store.CreateStep(ctx, m.ID, p.Description, assignee.ID, tier, 1, nil); err != nil {
		return fmt.Errorf("creating step: %w", err)
	}
	return nil
}

// createPhaseSteps materializes a [PHASES] block as chained steps. Each
// phase is assigned to an agent matching its role, defaulting to the
// proposal's primary assignee.
func (d *Dispatcher) createPhaseSteps(ctx context.Context, m *models.Mission, phases []mission.Phase, agents []*models.Agent, fallback *models.Agent) error {
	var parentID *string
	for i, phase := range phases {
		assignee := fallback
		phaseCategory := mission.Category(strings.ToLower(phase.Role))
		if _, known := mission.CategoryKeywords[phaseCategory]; known {
			if match := mission.FindBestAgentAcrossTeams(agents, phaseCategory, ""); match != nil {
				assignee = match
			}
		}
		tier := phase.Tier
		if tier == "" {
			tier = llm.SelectTier(false, phase.Description, llm.SelectContext{IsFinalStep: i == len(phases)-1})
		}
		step, err := d.store.CreateStep(ctx, m.ID, phase.Description, assignee.ID, tier, i+1, parentID)
		if err != nil {
			return fmt.Errorf("creating phase %d step: %w", i+1, err)
		}
		parentID = &step.ID
	}
	return nil
}

// routeStep maps a step back to its role category for reviewer
// selection.
func routeStep(step *models.MissionStep) mission.Category {
	return mission.RouteByKeywords(step.Description)
}

// withinOperatingHours evaluates the operating_hours policy in local
// time.
func (d *Dispatcher) withinOperatingHours(ctx context.Context, now time.Time) bool {
	hours := d.policies.GetOperatingHours(ctx)
	day := now.Format("Mon")
	dayOK := false
	for _, allowed := range hours.Days {
		if strings.EqualFold(allowed, day) {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}
	h := now.Hour()
	return h >= hours.StartHour && h < hours.EndHour
}
