package executor

import (
	"context"
	"log/slog"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/memory"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/persona"
	"github.com/zerohq/agentcorp/pkg/review"
	"github.com/zerohq/agentcorp/pkg/skills"
	"github.com/zerohq/agentcorp/pkg/store"
	"github.com/zerohq/agentcorp/pkg/tools"
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
	store  *store.Store
	worker *Worker
	team   *models.Team
}

// newHarness builds a worker whose model always answers modelContent.
func newHarness(t *testing.T, modelContent string) *harness {
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
	canned := cannedClient{content: modelContent}
	router := llm.NewRouterWithClients(registry, s, logger, map[models.ModelTier]llm.ChatClient{
		models.TierT1: canned, models.TierT2: canned, models.TierT3: canned,
	})

	memories := memory.NewService(s, logger)
	worker := New(Deps{
		Store:    s,
		Router:   router,
		Memories: memories,
		Resolver: tools.NewResolver(nil, nil, nil, logger),
		Personas: persona.NewService(s, router, emitter, logger),
		Skills:   skills.NewTracker(s, emitter, logger),
		Learner:  review.NewLearner(s, logger),
		Emitter:  emitter,
		Logger:   logger,
	})

	team, err := s.CreateTeam(ctx, "team-execution")
	require.NoError(t, err)
	return &harness{store: s, worker: worker, team: team}
}

func (h *harness) hire(t *testing.T, role string, agentType models.AgentType) *models.Agent {
	t.Helper()
	agent, err := h.store.InsertAgent(context.Background(), store.InsertAgentParams{
		DisplayName: role, Role: role, AgentType: agentType, TeamID: &h.team.ID,
	})
	require.NoError(t, err)
	return agent
}

func (h *harness) newStep(t *testing.T, author *models.Agent, description string) *models.MissionStep {
	t.Helper()
	ctx := context.Background()
	proposal, err := h.store.CreateProposal(ctx, "t", description, models.PriorityNormal, "a", "raw request")
	require.NoError(t, err)
	mission, err := h.store.AcceptProposal(ctx, proposal.ID, h.team.ID)
	require.NoError(t, err)
	st, err := h.store.CreateStep(ctx, mission.ID, description, author.ID, models.TierT1, 1, nil)
	require.NoError(t, err)
	return st
}

func TestExecuteNextStep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "Here is the finished report.")
	author := h.hire(t, "Research Analyst", models.AgentTypeSubAgent)
	st := h.newStep(t, author, "Research the competitor landscape")

	require.NoError(t, h.worker.executeNextStep(ctx))

	got, err := h.store.GetStep(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusInReview, got.Status)
	assert.Equal(t, "Here is the finished report.", got.Result)

	t.Run("execution is remembered", func(t *testing.T) {
		recent, err := h.store.RecentMemories(ctx, author.ID, 5)
		require.NoError(t, err)
		require.NotEmpty(t, recent)
		assert.Equal(t, models.MemoryTypeTask, recent[0].MemoryType)
		assert.Contains(t, recent[0].Summary, "Completed task:")
	})

	t.Run("one usage row for the call", func(t *testing.T) {
		rows, err := h.store.UsageRowsByStep(ctx, st.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Success)
	})

	t.Run("an empty queue is not an error", func(t *testing.T) {
		require.NoError(t, h.worker.executeNextStep(ctx))
	})
}

const approvingReview = `completeness: 5
accuracy: 4
quality: 5
depth: 4
domain specificity: 4
VERDICT: approve
Ship it.`

const rejectingReview = `completeness: 2
accuracy: 2
quality: 2
depth: 2
domain specificity: 2
VERDICT: reject
Too thin, add sources.`

// inReviewStep puts a step into review with a deliverable attached.
func (h *harness) inReviewStep(t *testing.T, author *models.Agent, description string) *models.MissionStep {
	t.Helper()
	ctx := context.Background()
	st := h.newStep(t, author, description)
	_, err := h.store.ClaimStep(ctx, st.ID)
	require.NoError(t, err)
	require.NoError(t, h.store.CompleteStep(ctx, st.ID, "the deliverable"))
	return st
}

func TestResolveNextReview(t *testing.T) {
	ctx := context.Background()

	t.Run("qa approval escalates to the team lead", func(t *testing.T) {
		h := newHarness(t, approvingReview)
		author := h.hire(t, "Research Analyst", models.AgentTypeSubAgent)
		qa := h.hire(t, "QA Specialist", models.AgentTypeSubAgent)
		lead := h.hire(t, "Team Lead", models.AgentTypeTeamLead)
		st := h.inReviewStep(t, author, "Research the market")
		_, err := h.store.CreateApproval(ctx, st.ID, qa.ID, models.ReviewTypeQA)
		require.NoError(t, err)

		require.NoError(t, h.worker.resolveNextReview(ctx))

		got, err := h.store.GetStep(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StepStatusInReview, got.Status, "qa approval alone does not finalize")

		approvals, err := h.store.ApprovalsByStep(ctx, st.ID)
		require.NoError(t, err)
		require.Len(t, approvals, 2)
		assert.Equal(t, models.ApprovalStatusApproved, approvals[0].Status)
		assert.Equal(t, lead.ID, approvals[1].ReviewerID)
		assert.Equal(t, models.ReviewTypeTeamLead, approvals[1].ReviewType)
		assert.Equal(t, models.ApprovalStatusPending, approvals[1].Status)
	})

	t.Run("team lead approval finalizes the step and mission", func(t *testing.T) {
		h := newHarness(t, approvingReview)
		author := h.hire(t, "Research Analyst", models.AgentTypeSubAgent)
		lead := h.hire(t, "Team Lead", models.AgentTypeTeamLead)
		st := h.inReviewStep(t, author, "Research the market")
		_, err := h.store.CreateApproval(ctx, st.ID, lead.ID, models.ReviewTypeTeamLead)
		require.NoError(t, err)

		require.NoError(t, h.worker.resolveNextReview(ctx))

		got, err := h.store.GetStep(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StepStatusCompleted, got.Status)

		mission, err := h.store.GetMission(ctx, st.MissionID)
		require.NoError(t, err)
		assert.Equal(t, models.MissionStatusCompleted, mission.Status)
	})

	t.Run("rejection sends the step back and records the lesson", func(t *testing.T) {
		h := newHarness(t, rejectingReview)
		author := h.hire(t, "Research Analyst", models.AgentTypeSubAgent)
		qa := h.hire(t, "QA Specialist", models.AgentTypeSubAgent)
		st := h.inReviewStep(t, author, "Research the market")
		_, err := h.store.CreateApproval(ctx, st.ID, qa.ID, models.ReviewTypeQA)
		require.NoError(t, err)

		require.NoError(t, h.worker.resolveNextReview(ctx))

		got, err := h.store.GetStep(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StepStatusPending, got.Status)
		assert.Empty(t, got.Result)

		n, err := h.store.CountRejections(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		lessons, err := h.store.TopLessons(ctx, author.ID, 5)
		require.NoError(t, err)
		require.Len(t, lessons, 1)
		assert.Contains(t, lessons[0].Lesson, "rejected in review")
	})

	t.Run("no pending approvals is not an error", func(t *testing.T) {
		h := newHarness(t, approvingReview)
		require.NoError(t, h.worker.resolveNextReview(ctx))
	})
}
