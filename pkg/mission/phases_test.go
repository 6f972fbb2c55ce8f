package mission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerohq/agentcorp/pkg/models"
)

func TestParsePhases(t *testing.T) {
	t.Run("missing block yields nil", func(t *testing.T) {
		assert.Nil(t, ParsePhases("just a plain request"))
	})

	t.Run("parses ordered phases", func(t *testing.T) {
		text := `Launch prep.
[PHASES]
PHASE 1: Research the market | ROLE: research | TIER: t1
PHASE 2: Write the announcement | ROLE: content | TIER: t2
[/PHASES]`
		phases := ParsePhases(text)
		require.Len(t, phases, 2)
		assert.Equal(t, "Research the market", phases[0].Description)
		assert.Equal(t, "research", phases[0].Role)
		assert.Equal(t, models.TierT1, phases[0].Tier)
		assert.Equal(t, models.TierT2, phases[1].Tier)
	})

	t.Run("malformed lines are dropped", func(t *testing.T) {
		text := `[PHASES]
PHASE 1: Good line | ROLE: research | TIER: t1
this is not a phase line
PHASE 2: Missing tier | ROLE: content
[/PHASES]`
		phases := ParsePhases(text)
		require.Len(t, phases, 1)
		assert.Equal(t, "Good line", phases[0].Description)
	})

	t.Run("accepts spelled-out tier form", func(t *testing.T) {
		text := `[PHASES]
PHASE 1: Plan it | ROLE: strategy | TIER: tier3
[/PHASES]`
		phases := ParsePhases(text)
		require.Len(t, phases, 1)
		assert.Equal(t, models.TierT3, phases[0].Tier)
	})

	t.Run("unknown tier defaults to t1", func(t *testing.T) {
		text := `[PHASES]
PHASE 1: Plan it | ROLE: strategy | TIER: mega
[/PHASES]`
		phases := ParsePhases(text)
		require.Len(t, phases, 1)
		assert.Equal(t, models.TierT1, phases[0].Tier)
	})
}

func TestRenderPhasesRoundTrip(t *testing.T) {
	in := []Phase{
		{Description: "Research the landscape", Role: "research", Tier: models.TierT1},
		{Description: "Draft the strategy", Role: "strategy", Tier: models.TierT2},
		{Description: "Write the final report", Role: "content", Tier: models.TierT3},
	}
	out := ParsePhases(RenderPhases(in))
	assert.Equal(t, in, out)
}

func TestStripPhases(t *testing.T) {
	text := `Do the launch.
[PHASES]
PHASE 1: Research | ROLE: research | TIER: t1
[/PHASES]
Thanks.`
	stripped := StripPhases(text)
	assert.NotContains(t, stripped, "[PHASES]")
	assert.Contains(t, stripped, "Do the launch.")
	assert.Contains(t, stripped, "Thanks.")
}
