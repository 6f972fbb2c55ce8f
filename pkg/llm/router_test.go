package llm_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
	"github.com/zerohq/agentcorp/test/util"
)

// fakeClient returns scripted outcomes, one per call.
type fakeClient struct {
	outcomes []error // nil means success
	content  string
	calls    int
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.outcomes) && f.outcomes[idx] != nil {
		return openai.ChatCompletionResponse{}, f.outcomes[idx]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
		Usage:   openai.Usage{PromptTokens: 100, CompletionTokens: 50},
	}, nil
}

func testRegistry(t *testing.T) *llm.Registry {
	t.Helper()
	mk := func(tier models.ModelTier, model string) llm.TierConfig {
		return llm.TierConfig{Tier: tier, ModelName: model, APIKey: "test-key", MaxTokens: 1024}
	}
	reg, err := llm.NewRegistry(
		mk(models.TierT1, "t1-model"),
		mk(models.TierT2, "t2-model"),
		mk(models.TierT3, "t3-model"))
	require.NoError(t, err)
	return reg
}

// seedStep creates the agent and step rows the usage foreign keys need.
func seedStep(t *testing.T, s *store.Store) (agentID, stepID string) {
	t.Helper()
	ctx := context.Background()
	team, err := s.CreateTeam(ctx, "team-research")
	require.NoError(t, err)
	agent, err := s.InsertAgent(ctx, store.InsertAgentParams{
		DisplayName: "Ada", Role: "Research Analyst",
		AgentType: models.AgentTypeSubAgent, TeamID: &team.ID,
	})
	require.NoError(t, err)
	proposal, err := s.CreateProposal(ctx, "t", "d", models.PriorityNormal, "a", "raw")
	require.NoError(t, err)
	mission, err := s.AcceptProposal(ctx, proposal.ID, team.ID)
	require.NoError(t, err)
	st, err := s.CreateStep(ctx, mission.ID, "analyze", agent.ID, models.TierT1, 1, nil)
	require.NoError(t, err)
	return agent.ID, st.ID
}

func newTestRouter(t *testing.T, s *store.Store, clients map[models.ModelTier]llm.ChatClient) *llm.Router {
	t.Helper()
	return llm.NewRouterWithClients(testRegistry(t), s, slog.Default(), clients)
}

func TestCallLLMLadder(t *testing.T) {
	ctx := context.Background()
	errDown := errors.New("upstream down")

	t.Run("t1 success records one row", func(t *testing.T) {
		s := util.NewTestStore(t)
		agentID, stepID := seedStep(t, s)
		router := newTestRouter(t, s, map[models.ModelTier]llm.ChatClient{
			models.TierT1: &fakeClient{content: "answer"},
		})

		resp, err := router.CallLLM(ctx, "sys", "user", models.TierT1, &agentID, &stepID)
		require.NoError(t, err)
		assert.Equal(t, "answer", resp.Content)
		assert.Equal(t, models.TierT1, resp.Tier)

		rows, err := s.UsageRowsByStep(ctx, stepID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Success)
		assert.Equal(t, "t1-model", rows[0].ModelName)
	})

	t.Run("t1 retries once after a failure", func(t *testing.T) {
		s := util.NewTestStore(t)
		agentID, stepID := seedStep(t, s)
		client := &fakeClient{outcomes: []error{errDown, nil}, content: "second try"}
		router := newTestRouter(t, s, map[models.ModelTier]llm.ChatClient{models.TierT1: client})

		resp, err := router.CallLLM(ctx, "sys", "user", models.TierT1, &agentID, &stepID)
		require.NoError(t, err)
		assert.Equal(t, "second try", resp.Content)
		assert.Equal(t, 2, client.calls)

		rows, err := s.UsageRowsByStep(ctx, stepID)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.False(t, rows[0].Success)
		assert.Contains(t, rows[0].ErrorMessage, "upstream down")
		assert.True(t, rows[1].Success)
	})

	t.Run("t2 falls back to t1", func(t *testing.T) {
		s := util.NewTestStore(t)
		agentID, stepID := seedStep(t, s)
		router := newTestRouter(t, s, map[models.ModelTier]llm.ChatClient{
			models.TierT2: &fakeClient{outcomes: []error{errDown}},
			models.TierT1: &fakeClient{content: "fallback answer"},
		})

		resp, err := router.CallLLM(ctx, "sys", "user", models.TierT2, &agentID, &stepID)
		require.NoError(t, err)
		assert.Equal(t, models.TierT1, resp.Tier, "response reports the tier that actually answered")

		rows, err := s.UsageRowsByStep(ctx, stepID)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, models.TierT2, rows[0].Tier)
		assert.False(t, rows[0].Success)
		assert.Equal(t, models.TierT1, rows[1].Tier)
		assert.JSONEq(t, `{"fallbackFrom": "t2"}`, string(rows[1].Metadata))
	})

	t.Run("t3 walks the full ladder", func(t *testing.T) {
		s := util.NewTestStore(t)
		agentID, stepID := seedStep(t, s)
		router := newTestRouter(t, s, map[models.ModelTier]llm.ChatClient{
			models.TierT3: &fakeClient{outcomes: []error{errDown}},
			models.TierT2: &fakeClient{outcomes: []error{errDown}},
			models.TierT1: &fakeClient{content: "bottom of the ladder"},
		})

		resp, err := router.CallLLM(ctx, "sys", "user", models.TierT3, &agentID, &stepID)
		require.NoError(t, err)
		assert.Equal(t, models.TierT1, resp.Tier)

		rows, err := s.UsageRowsByStep(ctx, stepID)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.JSONEq(t, `{"fallbackFrom": "t3"}`, string(rows[1].Metadata))
		assert.JSONEq(t, `{"fallbackFrom": "t3_via_t2"}`, string(rows[2].Metadata))
	})

	t.Run("exhausted ladder surfaces ErrAllTiersFailed", func(t *testing.T) {
		s := util.NewTestStore(t)
		agentID, stepID := seedStep(t, s)
		router := newTestRouter(t, s, map[models.ModelTier]llm.ChatClient{
			models.TierT3: &fakeClient{outcomes: []error{errDown}},
			models.TierT2: &fakeClient{outcomes: []error{errDown}},
			models.TierT1: &fakeClient{outcomes: []error{errDown}},
		})

		_, err := router.CallLLM(ctx, "sys", "user", models.TierT3, &agentID, &stepID)
		assert.ErrorIs(t, err, llm.ErrAllTiersFailed)

		rows, err := s.UsageRowsByStep(ctx, stepID)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("empty choices counts as a failure", func(t *testing.T) {
		s := util.NewTestStore(t)
		agentID, stepID := seedStep(t, s)
		router := newTestRouter(t, s, map[models.ModelTier]llm.ChatClient{
			models.TierT2: emptyChoicesClient{},
			models.TierT1: &fakeClient{content: "rescued"},
		})

		resp, err := router.CallLLM(ctx, "sys", "user", models.TierT2, &agentID, &stepID)
		require.NoError(t, err)
		assert.Equal(t, "rescued", resp.Content)

		rows, err := s.UsageRowsByStep(ctx, stepID)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "empty choices", rows[0].ErrorMessage)
	})
}

// emptyChoicesClient returns a well-formed response with no choices.
type emptyChoicesClient struct{}

func (emptyChoicesClient) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}
