package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zerohq/agentcorp/pkg/models"
)

func TestSelectTier(t *testing.T) {
	tests := []struct {
		name        string
		isComplex   bool
		description string
		ctx         SelectContext
		want        models.ModelTier
	}{
		{
			name:        "plain task defaults to t1",
			description: "Summarize meeting notes",
			want:        models.TierT1,
		},
		{
			name:        "explicit complexity forces t2",
			isComplex:   true,
			description: "Summarize meeting notes",
			want:        models.TierT2,
		},
		{
			name:        "final step of a chain forces t2",
			description: "Summarize meeting notes",
			ctx:         SelectContext{IsFinalStep: true},
			want:        models.TierT2,
		},
		{
			name:        "t3 keyword routes to top tier",
			description: "Draft the product requirements for the mobile app",
			want:        models.TierT3,
		},
		{
			name:        "t3 keyword wins over t2 keyword",
			description: "Comprehensive business case for the expansion",
			want:        models.TierT3,
		},
		{
			name:        "t2 keyword routes to mid tier",
			description: "Deep competitive analysis of the market",
			want:        models.TierT2,
		},
		{
			name:        "keyword matching is case-insensitive",
			description: "EXECUTIVE REPORT on Q3",
			want:        models.TierT3,
		},
		{
			name:        "final-step position outranks t3 keywords",
			description: "Write the final deliverable",
			ctx:         SelectContext{IsFinalStep: true},
			want:        models.TierT2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectTier(tt.isComplex, tt.description, tt.ctx)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectTierIsDeterministic(t *testing.T) {
	desc := "Analyze the strategy for the product roadmap"
	first := SelectTier(false, desc, SelectContext{})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, SelectTier(false, desc, SelectContext{}))
	}
}
