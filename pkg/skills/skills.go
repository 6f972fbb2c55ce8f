// Package skills tracks per-agent skill growth. Skills are created at
// hire from a role-based initial set, exercised by keyword matches on
// completed task descriptions, and advance proficiency when usage counts
// cross fixed thresholds.
package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
)

// Thresholds is the monotonic usage-count ladder; reaching Thresholds[n]
// advances proficiency to n+1, capped at 10.
var Thresholds = []int{0, 5, 12, 22, 35, 52, 73, 100, 135, 180}

// MaxProficiency is the proficiency ceiling.
const MaxProficiency = 10

// initialSkills maps a case-insensitive role substring to the three
// skills an agent of that role starts with.
var initialSkills = []struct {
	roleContains string
	skills       []string
}{
	{"research", []string{"market research", "data analysis", "competitive analysis"}},
	{"strateg", []string{"strategic planning", "business analysis", "decision frameworks"}},
	{"content", []string{"writing", "editing", "storytelling"}},
	{"engineer", []string{"coding", "system design", "debugging"}},
	{"qa", []string{"testing", "quality review", "attention to detail"}},
	{"marketing", []string{"campaign planning", "audience analysis", "copywriting"}},
	{"knowledge", []string{"documentation", "information architecture", "summarization"}},
}

// defaultSkills is the fallback set for roles matching no entry.
var defaultSkills = []string{"task execution", "communication", "problem solving"}

// SkillKeywords maps each skill to the description keywords that count
// as exercising it.
var SkillKeywords = map[string][]string{
	"market research":          {"research", "market", "landscape", "survey"},
	"data analysis":            {"data", "analyze", "analysis", "metrics"},
	"competitive analysis":     {"competitor", "competitive", "benchmark"},
	"strategic planning":       {"strategy", "strategic", "roadmap", "plan"},
	"business analysis":        {"business case", "revenue", "pricing", "cost"},
	"decision frameworks":      {"decision", "trade-off", "tradeoff", "evaluate"},
	"writing":                  {"write", "blog", "article", "draft", "post"},
	"editing":                  {"edit", "revise", "proofread"},
	"storytelling":             {"story", "narrative", "script"},
	"coding":                   {"code", "implement", "build", "api", "develop"},
	"system design":            {"design", "architecture", "integrate"},
	"debugging":                {"debug", "bug", "fix", "error"},
	"testing":                  {"test", "verify", "validate"},
	"quality review":           {"review", "quality", "audit"},
	"attention to detail":      {"checklist", "detail", "thorough"},
	"campaign planning":        {"campaign", "launch", "promote"},
	"audience analysis":        {"audience", "segment", "persona"},
	"copywriting":              {"copy", "headline", "tagline", "ads"},
	"documentation":            {"document", "documentation", "wiki"},
	"information architecture": {"organize", "catalog", "taxonomy", "archive"},
	"summarization":            {"summarize", "summary", "digest"},
}

// InitialSkillsForRole returns the three starting skills for a role.
func InitialSkillsForRole(role string) []string {
	lower := strings.ToLower(role)
	for _, entry := range initialSkills {
		if strings.Contains(lower, entry.roleContains) {
			return entry.skills
		}
	}
	return defaultSkills
}

// Tracker applies skill growth rules against the store.
type Tracker struct {
	store   *store.Store
	emitter *events.Emitter
	logger  *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(s *store.Store, emitter *events.Emitter, logger *slog.Logger) *Tracker {
	return &Tracker{store: s, emitter: emitter, logger: logger.With("component", "skills")}
}

// InitializeAgentSkills creates the role's initial skill rows at
// proficiency 1.
func (t *Tracker) InitializeAgentSkills(ctx context.Context, agentID, role string) error {
	for _, name := range InitialSkillsForRole(role) {
		if err := t.store.InsertSkill(ctx, agentID, name, 1); err != nil {
			return fmt.Errorf("initializing skill %q: %w", name, err)
		}
	}
	return nil
}

// TrackSkillUsage scans a completed task description for skill keywords
// and increments each matched skill's usage, cross-training new skills at
// proficiency 1. Level-ups emit a skill_level_up event.
func (t *Tracker) TrackSkillUsage(ctx context.Context, agentID, description string) error {
	lower := strings.ToLower(description)
	for skill, keywords := range SkillKeywords {
		if !anyContains(lower, keywords) {
			continue
		}
		row, err := t.store.RecordSkillUse(ctx, agentID, skill)
		if err != nil {
			return fmt.Errorf("tracking skill %q: %w", skill, err)
		}
		next := ProficiencyForUsage(row.UsageCount)
		if next > row.Proficiency {
			if err := t.store.SetSkillProficiency(ctx, row.ID, next); err != nil {
				return fmt.Errorf("leveling up skill %q: %w", skill, err)
			}
			t.logger.Info("skill level up", "agent_id", agentID, "skill", skill, "proficiency", next)
			t.emitter.Emit(ctx, events.TypeSkillLevelUp,
				fmt.Sprintf("%s reached proficiency %d", skill, next),
				map[string]any{"agent_id": agentID, "skill": skill, "proficiency": next})
		}
	}
	return nil
}

func anyContains(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ProficiencyForUsage maps a usage count to the proficiency level the
// threshold ladder grants, capped at MaxProficiency.
func ProficiencyForUsage(usageCount int) int {
	level := 1
	for i, threshold := range Thresholds {
		if usageCount >= threshold {
			level = i + 1
		}
	}
	if level > MaxProficiency {
		level = MaxProficiency
	}
	return level
}

// RenderSkills formats an agent's skills as a markdown list with 10-cell
// proficiency bars and usage counts. Empty input renders empty.
func RenderSkills(rows []*models.AgentSkill) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Your Skills\n")
	for _, sk := range rows {
		bar := strings.Repeat("█", sk.Proficiency) + strings.Repeat("░", MaxProficiency-sk.Proficiency)
		fmt.Fprintf(&b, "- %s [%s] %d/%d (used %d times)\n",
			sk.SkillName, bar, sk.Proficiency, MaxProficiency, sk.UsageCount)
	}
	return b.String()
}
