package mission

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zerohq/agentcorp/pkg/models"
)

// Phase is one parsed line of a [PHASES] block.
type Phase struct {
	Description string
	Role        string
	Tier        models.ModelTier
}

var (
	phasesBlockRe = regexp.MustCompile(`(?s)\[PHASES\]\s*(.*?)\s*\[/PHASES\]`)
	phaseLineRe   = regexp.MustCompile(`(?i)^PHASE\s+\d+:\s*(.+?)\s*\|\s*ROLE:\s*(\S+)\s*\|\s*TIER:\s*(\S+)\s*$`)
)

// ParsePhases extracts the ordered phase list from a mission description.
// A missing block yields an empty list (single-step behavior); malformed
// lines are silently dropped.
func ParsePhases(text string) []Phase {
	m := phasesBlockRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	var out []Phase
	for _, line := range strings.Split(m[1], "\n") {
		lm := phaseLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if lm == nil {
			continue
		}
		out = append(out, Phase{
			Description: lm[1],
			Role:        strings.ToLower(lm[2]),
			Tier:        normalizeTier(lm[3]),
		})
	}
	return out
}

// RenderPhases renders a phase list back into the block form ParsePhases
// reads. ParsePhases(RenderPhases(list)) == list for well-formed lists.
func RenderPhases(phases []Phase) string {
	var b strings.Builder
	b.WriteString("[PHASES]\n")
	for i, p := range phases {
		fmt.Fprintf(&b, "PHASE %d: %s | ROLE: %s | TIER: %s\n", i+1, p.Description, p.Role, p.Tier)
	}
	b.WriteString("[/PHASES]")
	return b.String()
}

// normalizeTier accepts both the short form (t1) and the spelled form
// (tier1) seen in hand-written phase blocks.
func normalizeTier(raw string) models.ModelTier {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "t1", "tier1":
		return models.TierT1
	case "t2", "tier2":
		return models.TierT2
	case "t3", "tier3":
		return models.TierT3
	default:
		return models.TierT1
	}
}

// StripPhases removes the [PHASES] block from a description, leaving the
// surrounding prose for the mission title and memory entries.
func StripPhases(text string) string {
	return strings.TrimSpace(phasesBlockRe.ReplaceAllString(text, ""))
}
