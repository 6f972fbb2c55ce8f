// Package roster manages the org chart: hiring agents (with and without
// approval), retiring them, and deciding which roles a project needs.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/mission"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/persona"
	"github.com/zerohq/agentcorp/pkg/skills"
	"github.com/zerohq/agentcorp/pkg/store"
)

// Service wires hiring, persona generation, and skill initialization.
type Service struct {
	store    *store.Store
	router   *llm.Router
	personas *persona.Service
	skills   *skills.Tracker
	emitter  *events.Emitter
	logger   *slog.Logger
}

// NewService creates a roster Service.
func NewService(s *store.Store, router *llm.Router, personas *persona.Service, tracker *skills.Tracker, emitter *events.Emitter, logger *slog.Logger) *Service {
	return &Service{
		store:    s,
		router:   router,
		personas: personas,
		skills:   tracker,
		emitter:  emitter,
		logger:   logger.With("component", "roster"),
	}
}

// CreateAgent hires an agent: atomic name claim + row insert, then
// persona generation and initial skills. Persona and skill failures are
// logged, not fatal — the agent is serviceable with the generic persona
// fallback.
func (s *Service) CreateAgent(ctx context.Context, role string, agentType models.AgentType, teamID *string, preferredSource string) (*models.Agent, error) {
	agent, err := s.store.CreateAgentWithPoolName(ctx, store.CreateAgentParams{
		Role:            role,
		AgentType:       agentType,
		TeamID:          teamID,
		PreferredSource: preferredSource,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.personas.Generate(ctx, agent); err != nil {
		s.logger.Warn("persona generation failed at hire", "agent_id", agent.ID, "error", err)
	}
	if err := s.skills.InitializeAgentSkills(ctx, agent.ID, role); err != nil {
		s.logger.Warn("skill initialization failed at hire", "agent_id", agent.ID, "error", err)
	}

	s.logger.Info("agent hired", "agent_id", agent.ID, "name", agent.DisplayName, "role", role)
	s.emitter.Emit(ctx, events.TypeAgentHired,
		fmt.Sprintf("%s hired as %s", agent.DisplayName, role),
		map[string]any{"agent_id": agent.ID, "role": role, "team_id": teamID})
	return agent, nil
}

// RetireAgent retires an agent and releases its pool name.
func (s *Service) RetireAgent(ctx context.Context, agent *models.Agent) error {
	if agent.AgentType == models.AgentTypeChiefOfStaff {
		return fmt.Errorf("%w: the chief of staff cannot be retired", store.ErrValidation)
	}
	if err := s.store.SetAgentStatus(ctx, agent.ID, models.AgentStatusRetired); err != nil {
		return fmt.Errorf("retiring agent: %w", err)
	}
	s.emitter.Emit(ctx, events.TypeAgentRetired,
		fmt.Sprintf("%s (%s) retired", agent.DisplayName, agent.Role),
		map[string]any{"agent_id": agent.ID})
	return nil
}

// AutoHireGapAgent immediately hires an agent for a role onto the
// category's standing team, used when a proposal's required role has no
// active agent anywhere. Returns (nil, nil) when the name pool is
// exhausted; the caller falls back to the hiring-proposal path.
func (s *Service) AutoHireGapAgent(ctx context.Context, roleTitle string, category mission.Category) (*models.Agent, error) {
	teamName := mission.StandingTeams[category]
	team, err := s.store.GetTeamByName(ctx, teamName)
	if err != nil {
		return nil, fmt.Errorf("loading standing team %s: %w", teamName, err)
	}

	agent, err := s.CreateAgent(ctx, roleTitle, models.AgentTypeSubAgent, &team.ID, "")
	if errors.Is(err, store.ErrNamePoolExhausted) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// CompleteHire finishes an approved hiring proposal: creates the agent
// on the proposal's team, transitions the proposal to completed, and
// requeues the triggering mission proposal so the dispatcher picks it up
// again.
func (s *Service) CompleteHire(ctx context.Context, h *models.HiringProposal) (*models.Agent, error) {
	agent, err := s.CreateAgent(ctx, h.RoleTitle, models.AgentTypeSubAgent, &h.TeamID, "")
	if err != nil {
		return nil, fmt.Errorf("creating agent for hiring proposal: %w", err)
	}
	if err := s.store.CompleteHiringProposal(ctx, h.ID, agent.ID); err != nil {
		return nil, fmt.Errorf("completing hiring proposal: %w", err)
	}
	if h.TriggerProposalID != nil {
		if err := s.store.RequeueProposal(ctx, *h.TriggerProposalID); err != nil {
			s.logger.Warn("failed to requeue triggering proposal",
				"proposal_id", *h.TriggerProposalID, "error", err)
		}
	}
	return agent, nil
}

// ProjectRole is one role a project needs.
type ProjectRole struct {
	Title    string           `json:"title"`
	Category mission.Category `json:"category"`
	Reason   string           `json:"reason"`
}

const rolesPrompt = `A new project needs staffing. Project description:

%s

Respond with a JSON array of 2-5 roles:
[{"title": "...", "category": "...", "reason": "..."}]
category must be one of: research, strategy, content, engineering, qa,
marketing, knowledge. JSON only, no prose.`

// DetermineDynamicProjectRoles asks a tier-1 model which 2-5 roles a
// project needs. Invalid JSON, empty output, or an invalid category
// falls back to keyword-based detection with canned titles.
func (s *Service) DetermineDynamicProjectRoles(ctx context.Context, projectDescription string) []ProjectRole {
	resp, err := s.router.CallLLM(ctx,
		"You staff projects with the minimum set of roles that covers the work. Respond with JSON only.",
		fmt.Sprintf(rolesPrompt, projectDescription),
		models.TierT1, nil, nil)
	if err != nil {
		s.logger.Warn("dynamic role call failed, using keyword fallback", "error", err)
		return keywordFallbackRoles(projectDescription)
	}

	roles, ok := parseRolesJSON(resp.Content)
	if !ok {
		s.logger.Warn("dynamic role response invalid, using keyword fallback")
		return keywordFallbackRoles(projectDescription)
	}
	return roles
}

// parseRolesJSON validates count and category constraints.
func parseRolesJSON(content string) ([]ProjectRole, bool) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	var roles []ProjectRole
	if err := json.Unmarshal([]byte(content[start:end+1]), &roles); err != nil {
		return nil, false
	}
	if len(roles) < 2 || len(roles) > 5 {
		return nil, false
	}
	for _, r := range roles {
		if r.Title == "" {
			return nil, false
		}
		if _, ok := mission.CategoryKeywords[r.Category]; !ok {
			return nil, false
		}
	}
	return roles, true
}

// keywordFallbackRoles derives roles from keyword routing: the routed
// category plus research, with canned titles.
func keywordFallbackRoles(description string) []ProjectRole {
	primary := mission.RouteByKeywords(description)
	roles := []ProjectRole{{
		Title:    mission.RoleTitles[primary],
		Category: primary,
		Reason:   "primary category by keyword match",
	}}
	if primary != mission.CategoryResearch {
		roles = append(roles, ProjectRole{
			Title:    mission.RoleTitles[mission.CategoryResearch],
			Category: mission.CategoryResearch,
			Reason:   "research support",
		})
	} else {
		roles = append(roles, ProjectRole{
			Title:    mission.RoleTitles[mission.CategoryStrategy],
			Category: mission.CategoryStrategy,
			Reason:   "strategy support",
		})
	}
	return roles
}
