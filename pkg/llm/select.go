package llm

import (
	"strings"

	"github.com/zerohq/agentcorp/pkg/models"
)

// t3Keywords marks high-stakes deliverables that route straight to the
// top tier.
var t3Keywords = []string{
	"product requirements",
	"product specification",
	"design document",
	"final deliverable",
	"executive report",
	"project plan",
	"product roadmap",
	"business case",
	"investment memo",
}

// t2Keywords marks complex-reasoning work that warrants the mid tier.
var t2Keywords = []string{
	"strategy",
	"strategic",
	"architecture",
	"analysis",
	"analyze",
	"evaluate",
	"comprehensive",
	"in-depth",
	"deep",
	"framework",
	"trade-off",
	"tradeoff",
}

// SelectContext carries the step-level signals that influence routing.
type SelectContext struct {
	IsFinalStep bool
}

// SelectTier routes a task to a model tier. Pure: equal inputs always
// produce equal outputs. Precedence: explicit complexity, final-step
// position, t3 keywords, t2 keywords, then the cheap default.
func SelectTier(isComplex bool, description string, ctx SelectContext) models.ModelTier {
	if isComplex {
		return models.TierT2
	}
	if ctx.IsFinalStep {
		return models.TierT2
	}
	lower := strings.ToLower(description)
	for _, kw := range t3Keywords {
		if strings.Contains(lower, kw) {
			return models.TierT3
		}
	}
	for _, kw := range t2Keywords {
		if strings.Contains(lower, kw) {
			return models.TierT2
		}
	}
	return models.TierT1
}
