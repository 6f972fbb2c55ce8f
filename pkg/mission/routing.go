// Package mission holds the pure routing logic the dispatcher uses to
// turn free-form work descriptions into role categories, standing-team
// assignments, and ordered phase lists.
package mission

import (
	"strings"

	"github.com/zerohq/agentcorp/pkg/models"
)

// Category is a role category in the compiled routing dictionary.
type Category string

// The seven role categories.
const (
	CategoryResearch    Category = "research"
	CategoryStrategy    Category = "strategy"
	CategoryContent     Category = "content"
	CategoryEngineering Category = "engineering"
	CategoryQA          Category = "qa"
	CategoryMarketing   Category = "marketing"
	CategoryKnowledge   Category = "knowledge"
)

// Categories enumerates the routing categories in scoring order. Ties in
// routeByKeywords resolve to the earliest entry.
var Categories = []Category{
	CategoryResearch,
	CategoryStrategy,
	CategoryContent,
	CategoryEngineering,
	CategoryQA,
	CategoryMarketing,
	CategoryKnowledge,
}

// CategoryKeywords maps each category to the keywords that vote for it.
// Matching is case-insensitive substring.
var CategoryKeywords = map[Category][]string{
	CategoryResearch: {
		"research", "analyze", "analysis", "investigate", "study",
		"market", "competitor", "competitive", "landscape", "trends", "data",
	},
	CategoryStrategy: {
		"strategy", "strategic", "plan", "roadmap", "business case",
		"positioning", "pricing", "go-to-market", "gtm", "decision",
	},
	CategoryContent: {
		"write", "blog", "article", "post", "content", "copy",
		"newsletter", "script", "draft", "edit",
	},
	CategoryEngineering: {
		"build", "code", "implement", "develop", "engineer", "api",
		"deploy", "prototype", "integrate", "automate", "bug",
	},
	CategoryQA: {
		"test", "qa", "quality", "review", "verify", "validate", "audit",
	},
	CategoryMarketing: {
		"marketing", "campaign", "social", "seo", "brand", "launch",
		"promote", "audience", "growth", "ads",
	},
	CategoryKnowledge: {
		"document", "documentation", "knowledge", "wiki", "organize",
		"summarize", "archive", "catalog",
	},
}

// RoleTitles maps each category to the canned role title used when a
// dynamic-role call falls back to keywords.
var RoleTitles = map[Category]string{
	CategoryResearch:    "Research Analyst",
	CategoryStrategy:    "Strategy Consultant",
	CategoryContent:     "Content Creator",
	CategoryEngineering: "Software Engineer",
	CategoryQA:          "QA Specialist",
	CategoryMarketing:   "Marketing Specialist",
	CategoryKnowledge:   "Knowledge Manager",
}

// StandingTeams maps each category to the team an auto-hired agent for
// that category lands on.
var StandingTeams = map[Category]string{
	CategoryResearch:    "team-research",
	CategoryStrategy:    "team-strategy",
	CategoryContent:     "team-execution",
	CategoryEngineering: "team-execution",
	CategoryQA:          "team-execution",
	CategoryMarketing:   "team-execution",
	CategoryKnowledge:   "team-research",
}

// RouteByKeywords maps a task description to the highest-scoring category.
// Score is the count of category keywords occurring in the description;
// ties resolve by enumeration order; zero everywhere defaults to research.
func RouteByKeywords(description string) Category {
	lower := strings.ToLower(description)
	best := CategoryResearch
	bestScore := 0
	for _, cat := range Categories {
		score := 0
		for _, kw := range CategoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best = cat
			bestScore = score
		}
	}
	return best
}

// MatchResult is the outcome of a team-capability check.
type MatchResult struct {
	CanHandle    bool
	MatchedAgent *models.Agent
	Category     Category
}

// roleMatches reports whether an agent's role text contains any keyword
// of the category.
func roleMatches(role string, category Category) bool {
	lower := strings.ToLower(role)
	for _, kw := range CategoryKeywords[category] {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// CanTeamHandle checks whether any of the given agents covers the
// category. Team leads are generalists: when no specialist matches, an
// active team lead matches instead.
func CanTeamHandle(agents []*models.Agent, category Category) MatchResult {
	var lead *models.Agent
	for _, a := range agents {
		if a.Status != models.AgentStatusActive {
			continue
		}
		if roleMatches(a.Role, category) {
			return MatchResult{CanHandle: true, MatchedAgent: a, Category: category}
		}
		if a.AgentType == models.AgentTypeTeamLead && lead == nil {
			lead = a
		}
	}
	if lead != nil {
		return MatchResult{CanHandle: true, MatchedAgent: lead, Category: category}
	}
	return MatchResult{Category: category}
}

// FindBestAgentAcrossTeams scans all active agents, any team, for a role
// matching the category. Used for initial routing and for domain-expert
// reviewer selection. Returns nil when no agent matches.
func FindBestAgentAcrossTeams(agents []*models.Agent, category Category, excludeAgentID string) *models.Agent {
	for _, a := range agents {
		if a.Status != models.AgentStatusActive || a.ID == excludeAgentID {
			continue
		}
		if roleMatches(a.Role, category) {
			return a
		}
	}
	return nil
}
