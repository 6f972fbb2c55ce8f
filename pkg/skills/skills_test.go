package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zerohq/agentcorp/pkg/models"
)

func TestProficiencyForUsage(t *testing.T) {
	tests := []struct {
		usage int
		want  int
	}{
		{0, 1},
		{4, 1},
		{5, 2},
		{11, 2},
		{12, 3},
		{22, 4},
		{35, 5},
		{52, 6},
		{73, 7},
		{100, 8},
		{135, 9},
		{180, 10},
		{500, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProficiencyForUsage(tt.usage), "usage %d", tt.usage)
	}
}

func TestInitialSkillsForRole(t *testing.T) {
	assert.Equal(t,
		[]string{"market research", "data analysis", "competitive analysis"},
		InitialSkillsForRole("Senior Research Analyst"))
	assert.Equal(t,
		[]string{"writing", "editing", "storytelling"},
		InitialSkillsForRole("content creator"))
	assert.Equal(t,
		[]string{"task execution", "communication", "problem solving"},
		InitialSkillsForRole("Chief Vibes Officer"))
}

func TestRenderSkills(t *testing.T) {
	t.Run("empty renders empty", func(t *testing.T) {
		assert.Empty(t, RenderSkills(nil))
	})

	t.Run("renders bars and counts", func(t *testing.T) {
		rows := []*models.AgentSkill{
			{SkillName: "writing", Proficiency: 3, UsageCount: 14},
		}
		out := RenderSkills(rows)
		assert.Contains(t, out, "## Your Skills")
		assert.Contains(t, out, "writing")
		assert.Contains(t, out, "███░░░░░░░")
		assert.Contains(t, out, "3/10")
		assert.Contains(t, out, "used 14 times")
	})
}
