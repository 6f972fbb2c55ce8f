package dispatch

import (
	"context"
	"log/slog"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/persona"
	"github.com/zerohq/agentcorp/pkg/policy"
	"github.com/zerohq/agentcorp/pkg/roster"
	"github.com/zerohq/agentcorp/pkg/skills"
	"github.com/zerohq/agentcorp/pkg/store"
	"github.com/zerohq/agentcorp/test/util"
)

// cannedClient answers every chat call with the same content.
type cannedClient struct{ content string }

func (c cannedClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: c.content}}},
		Usage:   openai.Usage{PromptTokens: 10, CompletionTokens: 10},
	}, nil
}

type harness struct {
	store      *store.Store
	dispatcher *Dispatcher
}

// newHarness wires a dispatcher over a fresh schema with canned LLM
// clients and a bootstrapped org (standing teams, name pool, chief of
// staff).
func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.Default()
	s := util.NewTestStore(t)
	emitter := events.NewEmitter(s, logger)

	registry, err := llm.NewRegistry(
		llm.TierConfig{Tier: models.TierT1, ModelName: "t1-model", APIKey: "k"},
		llm.TierConfig{Tier: models.TierT2, ModelName: "t2-model", APIKey: "k"},
		llm.TierConfig{Tier: models.TierT3, ModelName: "t3-model", APIKey: "k"})
	require.NoError(t, err)
	canned := cannedClient{content: "canned response"}
	router := llm.NewRouterWithClients(registry, s, logger, map[models.ModelTier]llm.ChatClient{
		models.TierT1: canned, models.TierT2: canned, models.TierT3: canned,
	})

	personas := persona.NewService(s, router, emitter, logger)
	tracker := skills.NewTracker(s, emitter, logger)
	rosterSvc := roster.NewService(s, router, personas, tracker, emitter, logger)
	require.NoError(t, rosterSvc.Bootstrap(ctx))

	policies := policy.NewCache(s, logger)
	d := New(s, policies, rosterSvc, nil, nil, emitter, logger)
	return &harness{store: s, dispatcher: d}
}

func (h *harness) hireAgent(t *testing.T, role, teamName string) *models.Agent {
	t.Helper()
	ctx := context.Background()
	team, err := h.store.GetTeamByName(ctx, teamName)
	require.NoError(t, err)
	agent, err := h.store.CreateAgentWithPoolName(ctx, store.CreateAgentParams{
		Role: role, AgentType: models.AgentTypeSubAgent, TeamID: &team.ID,
	})
	require.NoError(t, err)
	return agent
}

func TestProcessProposalsWithExistingAgent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	writer := h.hireAgent(t, "Content Creator", "team-execution")

	proposal, err := h.store.CreateProposal(ctx, "Launch post", "Write a blog post about the launch",
		models.PriorityNormal, "founder", "write a blog post about the launch")
	require.NoError(t, err)

	require.NoError(t, h.dispatcher.processProposals(ctx))

	got, err := h.store.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusAccepted, got.Status)

	pending, err := h.store.GetPendingSteps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, writer.ID, pending[0].AgentID)
	assert.Equal(t, 1, pending[0].StepOrder)
}

func TestProcessProposalsAutoHiresForGap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	before, err := h.store.CountActiveAgents(ctx)
	require.NoError(t, err)

	_, err = h.store.CreateProposal(ctx, "Launch campaign", "Plan a social campaign to promote the brand",
		models.PriorityNormal, "founder", "raw")
	require.NoError(t, err)

	require.NoError(t, h.dispatcher.processProposals(ctx))

	after, err := h.store.CountActiveAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after, "a marketing specialist should be auto-hired")

	pending, err := h.store.GetPendingSteps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	hired, err := h.store.GetAgent(ctx, pending[0].AgentID)
	require.NoError(t, err)
	assert.Equal(t, "Marketing Specialist", hired.Role)
}

func TestProcessProposalsDefersWhenPoolExhausted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.store.DB().ExecContext(ctx, `UPDATE name_pool SET assigned = TRUE`)
	require.NoError(t, err)

	proposal, err := h.store.CreateProposal(ctx, "Launch campaign", "Plan a social campaign to promote the brand",
		models.PriorityNormal, "founder", "raw")
	require.NoError(t, err)

	require.NoError(t, h.dispatcher.processProposals(ctx))

	got, err := h.store.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusDeferred, got.Status)

	hires, err := h.store.HiringProposalsByStatus(ctx, models.HiringStatusPending)
	require.NoError(t, err)
	require.Len(t, hires, 1)
	assert.Equal(t, "Marketing Specialist", hires[0].RoleTitle)
	require.NotNil(t, hires[0].TriggerProposalID)
	assert.Equal(t, proposal.ID, *hires[0].TriggerProposalID)
}

func TestProcessProposalsCreatesPhaseChain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	researcher := h.hireAgent(t, "Research Analyst", "team-research")
	writer := h.hireAgent(t, "Content Creator", "team-execution")

	description := `Research and announce the launch.
[PHASES]
PHASE 1: Research the market landscape | ROLE: research | TIER: t1
PHASE 2: Write the announcement post | ROLE: content | TIER: t2
[/PHASES]`
	_, err := h.store.CreateProposal(ctx, "Launch", description, models.PriorityNormal, "founder", "raw")
	require.NoError(t, err)

	require.NoError(t, h.dispatcher.processProposals(ctx))

	missions, err := h.store.GetPendingSteps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missions, 1, "only the first phase is immediately runnable")

	steps, err := h.store.StepsByMission(ctx, missions[0].MissionID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, researcher.ID, steps[0].AgentID)
	assert.Equal(t, models.TierT1, steps[0].ModelTier)
	assert.Nil(t, steps[0].ParentStepID)
	assert.Equal(t, writer.ID, steps[1].AgentID)
	assert.Equal(t, models.TierT2, steps[1].ModelTier)
	require.NotNil(t, steps[1].ParentStepID)
	assert.Equal(t, steps[0].ID, *steps[1].ParentStepID)
}

func TestScheduleReviews(t *testing.T) {
	ctx := context.Background()

	completeStep := func(t *testing.T, h *harness, author *models.Agent, description string) *models.MissionStep {
		t.Helper()
		team, err := h.store.GetTeamByName(ctx, "team-execution")
		require.NoError(t, err)
		proposal, err := h.store.CreateProposal(ctx, "t", description, models.PriorityNormal, "a", "raw")
		require.NoError(t, err)
		mission, err := h.store.AcceptProposal(ctx, proposal.ID, team.ID)
		require.NoError(t, err)
		st, err := h.store.CreateStep(ctx, mission.ID, description, author.ID, models.TierT1, 1, nil)
		require.NoError(t, err)
		_, err = h.store.ClaimStep(ctx, st.ID)
		require.NoError(t, err)
		require.NoError(t, h.store.CompleteStep(ctx, st.ID, "the deliverable"))
		return st
	}

	t.Run("assigns a domain expert who is not the author", func(t *testing.T) {
		h := newHarness(t)
		author := h.hireAgent(t, "Content Creator", "team-execution")
		expert := h.hireAgent(t, "Content Creator", "team-execution")
		st := completeStep(t, h, author, "Write a blog post about pricing")

		require.NoError(t, h.dispatcher.scheduleReviews(ctx))

		approvals, err := h.store.ApprovalsByStep(ctx, st.ID)
		require.NoError(t, err)
		require.Len(t, approvals, 1)
		assert.Equal(t, expert.ID, approvals[0].ReviewerID)
		assert.Equal(t, models.ApprovalStatusPending, approvals[0].Status)
	})

	t.Run("auto-approves when nobody can review", func(t *testing.T) {
		h := newHarness(t)
		// Retire the chief of staff stand-in reviewers by making the author
		// the only active agent.
		_, err := h.store.DB().ExecContext(ctx, `UPDATE agents SET status = 'retired'`)
		require.NoError(t, err)
		author := h.hireAgent(t, "Content Creator", "team-execution")
		st := completeStep(t, h, author, "Write a blog post about pricing")

		require.NoError(t, h.dispatcher.scheduleReviews(ctx))

		got, err := h.store.GetStep(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StepStatusCompleted, got.Status)

		done, mission, err := h.store.CheckMissionCompletion(ctx, st.MissionID)
		require.NoError(t, err)
		assert.True(t, done)
		assert.Equal(t, models.MissionStatusCompleted, mission.Status)
	})
}

func TestProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.hireAgent(t, "Research Analyst", "team-research")

	project, err := h.store.CreateProject(ctx, "Acme Pet Brand", "A subscription pet food business")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDiscovery, project.Phase)

	// First pass queues the discovery proposal.
	require.NoError(t, h.dispatcher.advanceProjects(ctx))
	got, err := h.store.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentProposalID)
	require.Nil(t, got.CurrentMissionID)

	proposal, err := h.store.GetProposal(ctx, *got.CurrentProposalID)
	require.NoError(t, err)
	assert.Contains(t, proposal.Title, "discovery phase")

	// The proposals stage accepts it; the next pass links the mission.
	require.NoError(t, h.dispatcher.processProposals(ctx))
	require.NoError(t, h.dispatcher.advanceProjects(ctx))
	got, err = h.store.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentMissionID)

	// An in-progress mission holds the phase.
	require.NoError(t, h.dispatcher.advanceProjects(ctx))
	held, err := h.store.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDiscovery, held.Phase)

	// Finish the mission's steps; the next pass advances the phase.
	steps, err := h.store.StepsByMission(ctx, *got.CurrentMissionID)
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	for _, st := range steps {
		_, err = h.store.ClaimStep(ctx, st.ID)
		require.NoError(t, err)
		require.NoError(t, h.store.CompleteStep(ctx, st.ID, "done"))
		require.NoError(t, h.store.ApproveStep(ctx, st.ID))
	}
	done, _, err := h.store.CheckMissionCompletion(ctx, *got.CurrentMissionID)
	require.NoError(t, err)
	require.True(t, done)

	require.NoError(t, h.dispatcher.advanceProjects(ctx))
	got, err = h.store.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhasePlanning, got.Phase)
	assert.Nil(t, got.CurrentMissionID)
	assert.Nil(t, got.CurrentProposalID)

	// The pass after that queues the planning work.
	require.NoError(t, h.dispatcher.advanceProjects(ctx))
	got, err = h.store.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentProposalID)
	planning, err := h.store.GetProposal(ctx, *got.CurrentProposalID)
	require.NoError(t, err)
	assert.Contains(t, planning.Title, "planning phase")
}
