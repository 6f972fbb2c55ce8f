package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
	"github.com/zerohq/agentcorp/test/util"
)

// fixture seeds a team, an agent, and an in-progress mission.
type fixture struct {
	store   *store.Store
	team    *models.Team
	agent   *models.Agent
	mission *models.Mission
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := util.NewTestStore(t)

	team, err := s.CreateTeam(ctx, "team-research")
	require.NoError(t, err)

	agent, err := s.InsertAgent(ctx, store.InsertAgentParams{
		DisplayName: "Ada",
		Role:        "Research Analyst",
		AgentType:   models.AgentTypeSubAgent,
		TeamID:      &team.ID,
	})
	require.NoError(t, err)

	proposal, err := s.CreateProposal(ctx, "Market scan", "Scan the market", models.PriorityNormal, "chief-of-staff", "scan the market please")
	require.NoError(t, err)
	mission, err := s.AcceptProposal(ctx, proposal.ID, team.ID)
	require.NoError(t, err)

	return &fixture{store: s, team: team, agent: agent, mission: mission}
}

func (f *fixture) step(t *testing.T, description string, order int, parent *string) *models.MissionStep {
	t.Helper()
	st, err := f.store.CreateStep(context.Background(), f.mission.ID, description, f.agent.ID, models.TierT1, order, parent)
	require.NoError(t, err)
	return st
}

func TestAcceptProposalIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	proposal, err := f.store.CreateProposal(ctx, "Second idea", "desc", models.PriorityNormal, "agent", "raw")
	require.NoError(t, err)

	first, err := f.store.AcceptProposal(ctx, proposal.ID, f.team.ID)
	require.NoError(t, err)

	second, err := f.store.AcceptProposal(ctx, proposal.ID, f.team.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "second accept must return the existing mission")

	got, err := f.store.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusAccepted, got.Status)
	assert.True(t, got.Processed)
}

func TestClaimStepExclusive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.step(t, "analyze the data", 1, nil)

	claimed, err := f.store.ClaimStep(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusInProgress, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)

	_, err = f.store.ClaimStep(ctx, st.ID)
	assert.ErrorIs(t, err, store.ErrClaimLost)
}

func TestGetPendingStepsGating(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.step(t, "phase one", 1, nil)
	f.step(t, "phase two", 2, &first.ID)

	t.Run("only the first phase is runnable", func(t *testing.T) {
		pending, err := f.store.GetPendingSteps(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, first.ID, pending[0].ID)
	})

	t.Run("in-flight predecessor still blocks", func(t *testing.T) {
		_, err := f.store.ClaimStep(ctx, first.ID)
		require.NoError(t, err)
		pending, err := f.store.GetPendingSteps(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("in-review predecessor still blocks", func(t *testing.T) {
		require.NoError(t, f.store.CompleteStep(ctx, first.ID, "findings"))
		pending, err := f.store.GetPendingSteps(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("approved predecessor unblocks the chain", func(t *testing.T) {
		require.NoError(t, f.store.ApproveStep(ctx, first.ID))
		pending, err := f.store.GetPendingSteps(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "phase two", pending[0].Description)
	})
}

func TestFailedPredecessorBlocksChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.step(t, "phase one", 1, nil)
	f.step(t, "phase two", 2, &first.ID)

	_, err := f.store.ClaimStep(ctx, first.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.FailStep(ctx, first.ID, "llm unavailable"))

	pending, err := f.store.GetPendingSteps(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "a failed predecessor must block later phases")
}

func TestSubmitReviewRejectionSendsStepBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.step(t, "draft the report", 1, nil)

	_, err := f.store.ClaimStep(ctx, st.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.CompleteStep(ctx, st.ID, "first draft"))

	approval, err := f.store.CreateApproval(ctx, st.ID, f.agent.ID, models.ReviewTypeQA)
	require.NoError(t, err)

	resolved, err := f.store.SubmitReview(ctx, approval.ID, models.ApprovalStatusRejected, "missing sources")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusRejected, resolved.Status)

	got, err := f.store.GetStep(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusPending, got.Status)
	assert.Empty(t, got.Result)
	assert.False(t, got.Processed)

	t.Run("resolution is single-shot", func(t *testing.T) {
		_, err := f.store.SubmitReview(ctx, approval.ID, models.ApprovalStatusApproved, "changed my mind")
		assert.ErrorIs(t, err, store.ErrClaimLost)
	})

	t.Run("rejection count and feedback accumulate", func(t *testing.T) {
		n, err := f.store.CountRejections(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		feedback, err := f.store.RejectionFeedback(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"missing sources"}, feedback)
	})
}

func TestStepsInReviewWithoutApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.step(t, "draft the report", 1, nil)

	_, err := f.store.ClaimStep(ctx, st.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.CompleteStep(ctx, st.ID, "draft"))

	unreviewed, err := f.store.StepsInReviewWithoutApproval(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unreviewed, 1)

	approval, err := f.store.CreateApproval(ctx, st.ID, f.agent.ID, models.ReviewTypeQA)
	require.NoError(t, err)

	unreviewed, err = f.store.StepsInReviewWithoutApproval(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unreviewed, "a pending approval hides the step from scheduling")

	// A resolved approval exposes the step again for the next review stage.
	_, err = f.store.SubmitReview(ctx, approval.ID, models.ApprovalStatusApproved, "good")
	require.NoError(t, err)
	unreviewed, err = f.store.StepsInReviewWithoutApproval(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unreviewed, 1)
}

func TestCheckMissionCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("all steps completed finalizes the mission", func(t *testing.T) {
		f := newFixture(t)
		st := f.step(t, "only phase", 1, nil)
		_, err := f.store.ClaimStep(ctx, st.ID)
		require.NoError(t, err)
		require.NoError(t, f.store.CompleteStep(ctx, st.ID, "done"))
		require.NoError(t, f.store.ApproveStep(ctx, st.ID))

		done, mission, err := f.store.CheckMissionCompletion(ctx, f.mission.ID)
		require.NoError(t, err)
		assert.True(t, done)
		assert.Equal(t, models.MissionStatusCompleted, mission.Status)
		require.NotNil(t, mission.CompletedAt)
	})

	t.Run("open steps keep the mission in progress", func(t *testing.T) {
		f := newFixture(t)
		f.step(t, "still pending", 1, nil)
		done, mission, err := f.store.CheckMissionCompletion(ctx, f.mission.ID)
		require.NoError(t, err)
		assert.False(t, done)
		assert.Equal(t, models.MissionStatusInProgress, mission.Status)
	})

	t.Run("any failed step fails the mission and failure is sticky", func(t *testing.T) {
		f := newFixture(t)
		bad := f.step(t, "phase one", 1, nil)
		good := f.step(t, "phase two", 2, nil)

		_, err := f.store.ClaimStep(ctx, bad.ID)
		require.NoError(t, err)
		require.NoError(t, f.store.FailStep(ctx, bad.ID, "boom"))
		_, err = f.store.ClaimStep(ctx, good.ID)
		require.NoError(t, err)
		require.NoError(t, f.store.CompleteStep(ctx, good.ID, "fine"))
		require.NoError(t, f.store.ApproveStep(ctx, good.ID))

		done, mission, err := f.store.CheckMissionCompletion(ctx, f.mission.ID)
		require.NoError(t, err)
		assert.True(t, done)
		assert.Equal(t, models.MissionStatusFailed, mission.Status)

		// Re-checking a finalized mission never re-opens it.
		done, mission, err = f.store.CheckMissionCompletion(ctx, f.mission.ID)
		require.NoError(t, err)
		assert.True(t, done)
		assert.Equal(t, models.MissionStatusFailed, mission.Status)
	})
}

func TestNamePool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SeedNamePool(ctx, "scientists", []string{"Grace", "Alan"}))

	t.Run("seeding is idempotent", func(t *testing.T) {
		require.NoError(t, f.store.SeedNamePool(ctx, "scientists", []string{"Grace", "Alan"}))
		n, err := f.store.UnassignedNameCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	var hired []*models.Agent
	t.Run("hires take unique names until the pool runs dry", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			a, err := f.store.CreateAgentWithPoolName(ctx, store.CreateAgentParams{
				Role:            "Research Analyst",
				AgentType:       models.AgentTypeSubAgent,
				TeamID:          &f.team.ID,
				PreferredSource: "scientists",
			})
			require.NoError(t, err)
			hired = append(hired, a)
		}
		assert.NotEqual(t, hired[0].DisplayName, hired[1].DisplayName)

		_, err := f.store.CreateAgentWithPoolName(ctx, store.CreateAgentParams{
			Role: "Research Analyst", AgentType: models.AgentTypeSubAgent,
		})
		assert.ErrorIs(t, err, store.ErrNamePoolExhausted)
	})

	t.Run("retiring releases the name", func(t *testing.T) {
		require.NoError(t, f.store.SetAgentStatus(ctx, hired[0].ID, models.AgentStatusRetired))
		n, err := f.store.UnassignedNameCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		a, err := f.store.CreateAgentWithPoolName(ctx, store.CreateAgentParams{
			Role: "Research Analyst", AgentType: models.AgentTypeSubAgent, PreferredSource: "scientists",
		})
		require.NoError(t, err)
		assert.Equal(t, hired[0].DisplayName, a.DisplayName)
	})
}

func TestReclaimStaleSteps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.step(t, "long-running work", 1, nil)
	_, err := f.store.ClaimStep(ctx, st.ID)
	require.NoError(t, err)

	// Backdate the claim so it looks abandoned.
	_, err = f.store.DB().ExecContext(ctx,
		`UPDATE mission_steps SET started_at = now() - interval '1 hour' WHERE id = $1`, st.ID)
	require.NoError(t, err)

	n, err := f.store.ReclaimStaleSteps(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetStep(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusPending, got.Status)
	assert.False(t, got.Processed)

	t.Run("fresh claims are untouched", func(t *testing.T) {
		_, err := f.store.ClaimStep(ctx, st.ID)
		require.NoError(t, err)
		n, err := f.store.ReclaimStaleSteps(ctx, 30*time.Minute)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestPolicyVersioning(t *testing.T) {
	ctx := context.Background()
	s := util.NewTestStore(t)

	_, err := s.ActivePolicy(ctx, models.PolicySpendingLimit)
	assert.ErrorIs(t, err, store.ErrNotFound)

	v1, err := s.InsertPolicyVersion(ctx, models.PolicySpendingLimit, json.RawMessage(`{"daily_limit_usd": 50}`))
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.True(t, v1.Active)

	v2, err := s.InsertPolicyVersion(ctx, models.PolicySpendingLimit, json.RawMessage(`{"daily_limit_usd": 75}`))
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	active, err := s.ActivePolicy(ctx, models.PolicySpendingLimit)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)
	assert.JSONEq(t, `{"daily_limit_usd": 75}`, string(active.Config))
}

func TestProposalQueueOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	normal, err := f.store.CreateProposal(ctx, "Normal idea", "d", models.PriorityNormal, "a", "raw")
	require.NoError(t, err)
	urgent, err := f.store.CreateProposal(ctx, "Urgent idea", "d", models.PriorityUrgent, "a", "raw")
	require.NoError(t, err)

	pending, err := f.store.GetPendingProposals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, urgent.ID, pending[0].ID, "urgent proposals jump the queue")
	assert.Equal(t, normal.ID, pending[1].ID)

	t.Run("defer and requeue round-trip", func(t *testing.T) {
		require.NoError(t, f.store.DeferProposal(ctx, normal.ID))
		pending, err := f.store.GetPendingProposals(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		require.NoError(t, f.store.RequeueProposal(ctx, normal.ID))
		pending, err = f.store.GetPendingProposals(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
	})
}

func TestDormantTeamStepsHeldBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.step(t, "write the report", 1, nil)

	pending, err := f.store.GetPendingSteps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, f.store.SetTeamStatus(ctx, f.team.ID, models.TeamStatusDormant))
	pending, err = f.store.GetPendingSteps(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "dormant teams' tasks are held back")

	require.NoError(t, f.store.SetTeamStatus(ctx, f.team.ID, models.TeamStatusActive))
	pending, err = f.store.GetPendingSteps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, st.ID, pending[0].ID)
}

func TestHiringProposalIdempotentWhilePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.store.CreateHiringProposal(ctx, "Data Engineer", f.team.ID, "pipeline work", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	dup, err := f.store.CreateHiringProposal(ctx, "Data Engineer", f.team.ID, "asked again", nil)
	require.NoError(t, err)
	assert.Nil(t, dup, "a second pending proposal for the same role and team writes nothing")

	pending, err := f.store.HiringProposalsByStatus(ctx, models.HiringStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	t.Run("resolved proposals free the slot", func(t *testing.T) {
		require.NoError(t, f.store.ApproveHiringProposal(ctx, first.ID))
		again, err := f.store.CreateHiringProposal(ctx, "Data Engineer", f.team.ID, "second opening", nil)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.NotEqual(t, first.ID, again.ID)
	})
}
