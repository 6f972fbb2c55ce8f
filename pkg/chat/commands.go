package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/roster"
	"github.com/zerohq/agentcorp/pkg/store"
)

const helpText = `Commands:
!status - teams, active agents, active missions
!teams - teams with their agents
!roster - full roster + pending hiring proposals
!costs - today's model costs (tier breakdown)
!approve <stepId> - manually approve a step
!activate <teamId> / !deactivate <teamId> - toggle a team
!hire <id> / !reject <id> - decide a hiring proposal
!fire <displayName> - retire an agent
!newbiz <name> | <description> - create a business unit with a staffed project
!help - this list
Anything else becomes an urgent work request.`

// Handler serves the founder's command surface. Inbound messages from
// any other user are ignored by the caller.
type Handler struct {
	store  *store.Store
	roster *roster.Service
	logger *slog.Logger
}

// NewHandler creates a command Handler.
func NewHandler(s *store.Store, r *roster.Service, logger *slog.Logger) *Handler {
	return &Handler{store: s, roster: r, logger: logger.With("component", "chat")}
}

// Handle processes one founder message and returns the reply text.
// Non-command messages become urgent mission proposals.
func (h *Handler) Handle(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "!") {
		return h.freeFormProposal(ctx, text)
	}

	cmd, arg := text, ""
	if idx := strings.IndexByte(text, ' '); idx > 0 {
		cmd, arg = text[:idx], strings.TrimSpace(text[idx+1:])
	}

	switch strings.ToLower(cmd) {
	case "!help":
		return helpText
	case "!status":
		return h.status(ctx)
	case "!teams":
		return h.teams(ctx)
	case "!roster":
		return h.rosterReport(ctx)
	case "!costs":
		return h.costs(ctx)
	case "!approve":
		return h.approveStep(ctx, arg)
	case "!activate":
		return h.setTeamStatus(ctx, arg, models.TeamStatusActive)
	case "!deactivate":
		return h.setTeamStatus(ctx, arg, models.TeamStatusDormant)
	case "!hire":
		return h.decideHiring(ctx, arg, true)
	case "!reject":
		return h.decideHiring(ctx, arg, false)
	case "!fire":
		return h.fire(ctx, arg)
	case "!newbiz":
		return h.newBusiness(ctx, arg)
	default:
		return "Unknown command. " + helpText
	}
}

func (h *Handler) freeFormProposal(ctx context.Context, text string) string {
	if text == "" {
		return helpText
	}
	title := text
	if len(title) > 80 {
		title = title[:80]
	}
	p, err := h.store.CreateProposal(ctx, title, text, models.PriorityUrgent, "founder", text)
	if err != nil {
		h.logger.Error("failed to create proposal from message", "error", err)
		return "Could not queue that request: " + err.Error()
	}
	return fmt.Sprintf("Queued as urgent work request %s. The dispatcher will pick it up on the next tick.", p.ID)
}

func (h *Handler) status(ctx context.Context) string {
	teams, err := h.store.ListTeams(ctx)
	if err != nil {
		return "status query failed: " + err.Error()
	}
	agents, err := h.store.CountActiveAgents(ctx)
	if err != nil {
		return "status query failed: " + err.Error()
	}
	missions, err := h.store.CountActiveMissions(ctx)
	if err != nil {
		return "status query failed: " + err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active agents: %d | Active missions: %d\n", agents, missions)
	for _, t := range teams {
		fmt.Fprintf(&b, "- %s (%s)\n", t.Name, t.Status)
	}
	return b.String()
}

func (h *Handler) teams(ctx context.Context) string {
	teams, err := h.store.ListTeams(ctx)
	if err != nil {
		return "teams query failed: " + err.Error()
	}
	var b strings.Builder
	for _, t := range teams {
		fmt.Fprintf(&b, "%s (%s)\n", t.Name, t.Status)
		agents, err := h.store.AgentsByTeam(ctx, t.ID)
		if err != nil {
			fmt.Fprintf(&b, "  (agent query failed: %v)\n", err)
			continue
		}
		for _, a := range agents {
			fmt.Fprintf(&b, "  - %s, %s [%s]\n", a.DisplayName, a.Role, a.Status)
		}
	}
	if b.Len() == 0 {
		return "No teams yet."
	}
	return b.String()
}

func (h *Handler) rosterReport(ctx context.Context) string {
	var b strings.Builder
	b.WriteString(h.teams(ctx))

	pending, err := h.store.HiringProposalsByStatus(ctx, models.HiringStatusPending)
	if err != nil {
		return b.String() + "\n(hiring query failed: " + err.Error() + ")"
	}
	if len(pending) > 0 {
		b.WriteString("\nPending hiring proposals:\n")
		for _, p := range pending {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", p.ID, p.RoleTitle, p.Justification)
		}
	}
	return b.String()
}

func (h *Handler) costs(ctx context.Context) string {
	midnight := startOfToday()
	total, err := h.store.CostSince(ctx, midnight)
	if err != nil {
		return "cost query failed: " + err.Error()
	}
	tiers, err := h.store.CostByTierSince(ctx, midnight)
	if err != nil {
		return "cost query failed: " + err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Today's model spend: $%.4f\n", total)
	for _, tc := range tiers {
		fmt.Fprintf(&b, "- %s: %d calls, $%.4f\n", tc.Tier, tc.Calls, tc.Cost)
	}
	return b.String()
}

func (h *Handler) approveStep(ctx context.Context, stepID string) string {
	if stepID == "" {
		return "usage: !approve <stepId>"
	}
	if err := h.store.ApproveStep(ctx, stepID); err != nil {
		if errors.Is(err, store.ErrClaimLost) {
			return "Step is not in review."
		}
		return "approve failed: " + err.Error()
	}
	step, err := h.store.GetStep(ctx, stepID)
	if err == nil {
		if _, _, err := h.store.CheckMissionCompletion(ctx, step.MissionID); err != nil {
			h.logger.Warn("mission completion check failed after manual approve",
				"mission_id", step.MissionID, "error", err)
		}
	}
	return "Step approved."
}

func (h *Handler) setTeamStatus(ctx context.Context, teamID string, status models.TeamStatus) string {
	if teamID == "" {
		return "usage: !activate <teamId> / !deactivate <teamId>"
	}
	if err := h.store.SetTeamStatus(ctx, teamID, status); err != nil {
		return "team update failed: " + err.Error()
	}
	return fmt.Sprintf("Team %s is now %s.", teamID, status)
}

func (h *Handler) decideHiring(ctx context.Context, id string, approve bool) string {
	if id == "" {
		return "usage: !hire <id> / !reject <id>"
	}
	if approve {
		if err := h.store.ApproveHiringProposal(ctx, id); err != nil {
			return "hire failed: " + err.Error()
		}
		return "Hiring proposal approved. The dispatcher will complete the hire on its next tick."
	}
	if err := h.store.RejectHiringProposal(ctx, id); err != nil {
		return "reject failed: " + err.Error()
	}
	return "Hiring proposal rejected."
}

func (h *Handler) fire(ctx context.Context, displayName string) string {
	if displayName == "" {
		return "usage: !fire <displayName>"
	}
	agent, err := h.store.GetAgentByDisplayName(ctx, displayName)
	if err != nil {
		return "no such agent: " + displayName
	}
	if err := h.roster.RetireAgent(ctx, agent); err != nil {
		return "fire failed: " + err.Error()
	}
	return fmt.Sprintf("%s (%s) has been retired. Their name returns to the pool.", agent.DisplayName, agent.Role)
}

// newBusiness creates a team and a project for the new line of business,
// then proposes the roles the project needs. The dispatcher queues the
// project's discovery work on its next tick.
func (h *Handler) newBusiness(ctx context.Context, arg string) string {
	name, description := arg, arg
	if idx := strings.IndexByte(arg, '|'); idx > 0 {
		name = strings.TrimSpace(arg[:idx])
		description = strings.TrimSpace(arg[idx+1:])
	}
	if name == "" {
		return "usage: !newbiz <name> | <description>"
	}

	team, err := h.store.CreateTeam(ctx, name)
	if err != nil {
		return "newbiz failed: " + err.Error()
	}
	project, err := h.store.CreateProject(ctx, name, description)
	if err != nil {
		return "newbiz failed: " + err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Business unit %s created (team %s, project in %s phase).\n", name, team.ID, project.Phase)
	b.WriteString("Proposed roles (approve with !hire <id>):\n")
	for _, role := range h.roster.DetermineDynamicProjectRoles(ctx, description) {
		hp, err := h.store.CreateHiringProposal(ctx, role.Title, team.ID, role.Reason, nil)
		if err != nil {
			fmt.Fprintf(&b, "- %s: proposal failed: %v\n", role.Title, err)
			continue
		}
		if hp == nil {
			continue // already pending for this role
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", hp.ID, hp.RoleTitle, role.Reason)
	}
	return b.String()
}

func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
