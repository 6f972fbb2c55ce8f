package mission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerohq/agentcorp/pkg/models"
)

func TestRouteByKeywords(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        Category
	}{
		{"no keywords defaults to research", "hello there", CategoryResearch},
		{"content request", "write a blog post about our launch", CategoryContent},
		{"engineering request", "build an api to automate the deploy", CategoryEngineering},
		{"marketing request", "plan a social campaign to promote the brand", CategoryMarketing},
		{"knowledge request", "organize and summarize the wiki archive", CategoryKnowledge},
		{"tie resolves to enumeration order", "research the strategy", CategoryResearch},
		{"case-insensitive", "WRITE A BLOG ARTICLE", CategoryContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RouteByKeywords(tt.description))
		})
	}
}

func agentWith(id, role string, agentType models.AgentType, status models.AgentStatus) *models.Agent {
	return &models.Agent{ID: id, DisplayName: id, Role: role, AgentType: agentType, Status: status}
}

func TestFindBestAgentAcrossTeams(t *testing.T) {
	writer := agentWith("a1", "Content Creator", models.AgentTypeSubAgent, models.AgentStatusActive)
	retired := agentWith("a2", "Content Creator", models.AgentTypeSubAgent, models.AgentStatusRetired)
	engineer := agentWith("a3", "Software Engineer", models.AgentTypeSubAgent, models.AgentStatusActive)
	agents := []*models.Agent{retired, writer, engineer}

	t.Run("matches by role keyword", func(t *testing.T) {
		got := FindBestAgentAcrossTeams(agents, CategoryContent, "")
		require.NotNil(t, got)
		assert.Equal(t, "a1", got.ID)
	})

	t.Run("skips retired agents", func(t *testing.T) {
		got := FindBestAgentAcrossTeams([]*models.Agent{retired}, CategoryContent, "")
		assert.Nil(t, got)
	})

	t.Run("exclusion skips the author", func(t *testing.T) {
		got := FindBestAgentAcrossTeams(agents, CategoryContent, "a1")
		assert.Nil(t, got)
	})

	t.Run("no match returns nil", func(t *testing.T) {
		got := FindBestAgentAcrossTeams(agents, CategoryMarketing, "")
		assert.Nil(t, got)
	})
}

func TestCanTeamHandle(t *testing.T) {
	lead := agentWith("lead", "Team Lead", models.AgentTypeTeamLead, models.AgentStatusActive)
	writer := agentWith("w", "Content Creator", models.AgentTypeSubAgent, models.AgentStatusActive)

	t.Run("specialist wins over lead", func(t *testing.T) {
		res := CanTeamHandle([]*models.Agent{lead, writer}, CategoryContent)
		assert.True(t, res.CanHandle)
		assert.Equal(t, "w", res.MatchedAgent.ID)
	})

	t.Run("lead is a generalist fallback", func(t *testing.T) {
		res := CanTeamHandle([]*models.Agent{lead, writer}, CategoryMarketing)
		assert.True(t, res.CanHandle)
		assert.Equal(t, "lead", res.MatchedAgent.ID)
	})

	t.Run("no specialist and no lead means no", func(t *testing.T) {
		res := CanTeamHandle([]*models.Agent{writer}, CategoryMarketing)
		assert.False(t, res.CanHandle)
		assert.Nil(t, res.MatchedAgent)
	})
}

func TestStandingTeamsCoverAllCategories(t *testing.T) {
	for _, c := range Categories {
		assert.NotEmpty(t, StandingTeams[c], "category %s has no standing team", c)
		assert.NotEmpty(t, RoleTitles[c], "category %s has no role title", c)
	}
}
