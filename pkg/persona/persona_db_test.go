package persona

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
	"github.com/zerohq/agentcorp/test/util"
)

// analysisClient answers every chat call with a skill-gap analysis.
type analysisClient struct{}

func (analysisClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	content := `{"skillGap": "source citation", "expertiseAddition": "You now cite primary sources for every claim."}`
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
		Usage:   openai.Usage{PromptTokens: 5, CompletionTokens: 5},
	}, nil
}

func newUpskillService(t *testing.T, s *store.Store) *Service {
	t.Helper()
	logger := slog.Default()
	registry, err := llm.NewRegistry(
		llm.TierConfig{Tier: models.TierT1, ModelName: "t1-model", APIKey: "k"},
		llm.TierConfig{Tier: models.TierT2, ModelName: "t2-model", APIKey: "k"},
		llm.TierConfig{Tier: models.TierT3, ModelName: "t3-model", APIKey: "k"})
	require.NoError(t, err)
	router := llm.NewRouterWithClients(registry, s, logger, map[models.ModelTier]llm.ChatClient{
		models.TierT1: analysisClient{}, models.TierT2: analysisClient{}, models.TierT3: analysisClient{},
	})
	return NewService(s, router, events.NewEmitter(s, logger), logger)
}

func TestMaybeUpskillFiresExactlyAtTheFifthRejection(t *testing.T) {
	ctx := context.Background()
	s := util.NewTestStore(t)
	svc := newUpskillService(t, s)

	team, err := s.CreateTeam(ctx, "team-research")
	require.NoError(t, err)
	agent, err := s.InsertAgent(ctx, store.InsertAgentParams{
		DisplayName: "Ada", Role: "Research Analyst",
		AgentType: models.AgentTypeSubAgent, TeamID: &team.ID,
	})
	require.NoError(t, err)
	reviewer, err := s.InsertAgent(ctx, store.InsertAgentParams{
		DisplayName: "Grace", Role: "QA Specialist",
		AgentType: models.AgentTypeSubAgent, TeamID: &team.ID,
	})
	require.NoError(t, err)

	_, err = s.SavePersona(ctx, &models.Persona{
		AgentID: agent.ID, Skills: "- market research",
		SystemPrompt: "You are Ada, a Research Analyst.",
	})
	require.NoError(t, err)

	proposal, err := s.CreateProposal(ctx, "Market report", "Write the market report",
		models.PriorityNormal, "founder", "raw")
	require.NoError(t, err)
	mission, err := s.AcceptProposal(ctx, proposal.ID, team.ID)
	require.NoError(t, err)
	step, err := s.CreateStep(ctx, mission.ID, "Write the market report", agent.ID, models.TierT1, 1, nil)
	require.NoError(t, err)

	reject := func(n int) {
		approval, err := s.CreateApproval(ctx, step.ID, reviewer.ID, models.ReviewTypeQA)
		require.NoError(t, err)
		_, err = s.SubmitReview(ctx, approval.ID, models.ApprovalStatusRejected,
			fmt.Sprintf("too thin, round %d", n))
		require.NoError(t, err)
	}

	upskilledEvents := func() int {
		n, err := s.CountEventsByTypeSince(ctx, events.TypeAgentUpskilled, mission.CreatedAt.Add(-time.Hour))
		require.NoError(t, err)
		return n
	}

	for n := 1; n <= UpskillRejectionCount-1; n++ {
		reject(n)
		fired, err := svc.MaybeUpskill(ctx, agent, step.ID)
		require.NoError(t, err)
		assert.False(t, fired, "must not fire at %d rejections", n)
	}
	versions, err := s.PersonaVersions(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Zero(t, upskilledEvents())

	// The fifth rejection triggers the one-time upgrade.
	reject(UpskillRejectionCount)
	fired, err := svc.MaybeUpskill(ctx, agent, step.ID)
	require.NoError(t, err)
	require.True(t, fired)

	versions, err = s.PersonaVersions(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	latest, err := s.LatestPersona(ctx, agent.ID)
	require.NoError(t, err)
	assert.Contains(t, latest.SystemPrompt, "## Learned Expertise")
	assert.Contains(t, latest.SystemPrompt, "You now cite primary sources for every claim.")
	assert.Contains(t, latest.Skills, "You now cite primary sources for every claim.")
	assert.Equal(t, 1, upskilledEvents())

	memories, err := s.RecentMemories(ctx, agent.ID, 5)
	require.NoError(t, err)
	require.NotEmpty(t, memories)
	assert.Equal(t, 9, memories[0].Importance)
	assert.Contains(t, memories[0].Summary, "source citation")

	// A sixth rejection does not fire again.
	reject(UpskillRejectionCount + 1)
	fired, err = svc.MaybeUpskill(ctx, agent, step.ID)
	require.NoError(t, err)
	assert.False(t, fired)
	versions, err = s.PersonaVersions(ctx, agent.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	assert.Equal(t, 1, upskilledEvents())
}
