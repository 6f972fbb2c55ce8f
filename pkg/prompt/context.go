// Package prompt composes the user-message side of an agent invocation:
// originating request, role mandates, task description, output template,
// and universal quality standards, in that order.
package prompt

import (
	"strings"

	"github.com/zerohq/agentcorp/pkg/models"
)

// doerDirective appears in every role mandate variant.
const doerDirective = "You are the doer, not the advisor. Produce the actual deliverable, not instructions for how to produce it."

// roleMandates maps a role-substring domain to its quality mandate block.
var roleMandates = []struct {
	roleContains string
	mandate      string
}{
	{"research", `ROLE MANDATES (Research):
- Every claim needs a source or a stated basis.
- Separate facts from your interpretation of them.
- Name what you could not find, not just what you found.
` + doerDirective},
	{"strateg", `ROLE MANDATES (Strategy):
- Recommendations must be decisions, with the rejected options named.
- Quantify impact wherever the data allows.
- State the riskiest assumption explicitly.
` + doerDirective},
	{"content", `ROLE MANDATES (Content):
- Write the full piece, ready to publish.
- One clear audience, one clear message.
- Cut every sentence that does not earn its place.
` + doerDirective},
	{"engineer", `ROLE MANDATES (Engineering):
- Deliver working artifacts: code, configs, commands.
- State assumptions about the environment.
- Include how to verify the result.
` + doerDirective},
	{"qa", `ROLE MANDATES (QA):
- Judge against the stated requirements, not taste.
- Every defect gets a severity and a reproduction.
- Pass/fail verdicts, never "looks fine".
` + doerDirective},
	{"marketing", `ROLE MANDATES (Marketing):
- Tie every idea to a measurable outcome.
- Know the channel and write for it.
- Deliver the asset, not a plan for the asset.
` + doerDirective},
	{"knowledge", `ROLE MANDATES (Knowledge):
- Structure for the reader who arrives cold.
- Prefer one canonical document over three partial ones.
- Date and source everything.
` + doerDirective},
}

// genericMandate covers roles matching no domain.
const genericMandate = `ROLE MANDATES:
YOU ARE the expert here. Bring the judgment of someone who has done this
work professionally for years.
` + doerDirective

// mandateForRole selects the mandate block for an agent role.
func mandateForRole(role string) string {
	lower := strings.ToLower(role)
	for _, entry := range roleMandates {
		if strings.Contains(lower, entry.roleContains) {
			return entry.mandate
		}
	}
	return genericMandate
}

// outputTemplates maps a template key to its keyword voters and fixed
// markdown structure.
var outputTemplates = []struct {
	name     string
	keywords []string
	template string
}{
	{"research", []string{"research", "analyze", "analysis", "market", "competitor"}, `OUTPUT TEMPLATE:
# <Title>
## Key Findings
## Evidence
## What's Missing
## Recommended Next Steps`},
	{"strategy", []string{"strategy", "plan", "roadmap", "decision"}, `OUTPUT TEMPLATE:
# <Title>
## Recommendation
## Options Considered
## Risks and Assumptions
## Success Metrics`},
	{"content", []string{"write", "blog", "article", "post", "copy"}, `OUTPUT TEMPLATE:
# <Headline>
<The full piece, publication-ready.>
## Distribution Notes`},
	{"engineering", []string{"build", "code", "implement", "api", "deploy"}, `OUTPUT TEMPLATE:
# <Title>
## Approach
## Implementation
## Verification
## Known Limitations`},
	{"requirements", []string{"requirements", "specification", "spec"}, `OUTPUT TEMPLATE:
# <Product/Feature Name>
## Problem
## Requirements (numbered)
## Out of Scope
## Acceptance Criteria`},
}

// defaultTemplate is used when no keyword votes.
const defaultTemplate = `OUTPUT TEMPLATE:
# <Title>
## Summary
## Detail
## What's Missing`

// templateFor scores the description against each template's keywords.
func templateFor(description string) string {
	lower := strings.ToLower(description)
	best := defaultTemplate
	bestScore := 0
	for _, entry := range outputTemplates {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best = entry.template
			bestScore = score
		}
	}
	return best
}

// qualityStandards closes every task context.
const qualityStandards = `UNIVERSAL QUALITY STANDARDS:
- Back every claim with evidence or mark it as opinion.
- No filler phrases ("in today's fast-paced world", "it's important to note").
- Quantify wherever numbers exist.
- End with an explicit "What's missing" note: what you could not cover and why.`

// BuildTaskContext composes the five ordered blocks of the task prompt.
// originatingRequest is the raw human message from the mission's source
// proposal; empty when the mission was machine-generated.
func BuildTaskContext(step *models.MissionStep, agentRole, originatingRequest string) string {
	var blocks []string
	if originatingRequest != "" {
		blocks = append(blocks, "ZERO'S ORIGINAL REQUEST:\n"+originatingRequest)
	}
	blocks = append(blocks,
		mandateForRole(agentRole),
		"TASK:\n"+step.Description,
		templateFor(step.Description),
		qualityStandards,
	)
	return strings.Join(blocks, "\n\n")
}
