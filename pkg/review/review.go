// Package review implements the approval chain: reviewer selection,
// rubric-scored verdicts, and the rejection-driven learning path.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/zerohq/agentcorp/pkg/mission"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
)

// Criteria is the fixed five-criterion rubric, each scored 1-5.
var Criteria = []string{"completeness", "accuracy", "quality", "depth", "domain specificity"}

// defaultScore substitutes for any criterion the reviewer omitted.
const defaultScore = 3

// rejectBelowAverage forces a reject verdict regardless of the stated
// one when the rubric average falls below it.
const rejectBelowAverage = 3.0

// Verdict is a parsed review response.
type Verdict struct {
	Scores   map[string]int
	Average  float64
	Approved bool
	Feedback string
}

// SelectReviewer picks the reviewer for a step in review:
// a domain expert anywhere (excluding the author) as a team_lead review,
// else the team's QA, else the team lead, else nobody (auto-approve).
func SelectReviewer(allAgents, teamAgents []*models.Agent, category mission.Category, authorID string) (*models.Agent, models.ReviewType) {
	if expert := mission.FindBestAgentAcrossTeams(allAgents, category, authorID); expert != nil {
		return expert, models.ReviewTypeTeamLead
	}
	for _, a := range teamAgents {
		if a.Status == models.AgentStatusActive && a.ID != authorID &&
			strings.Contains(strings.ToLower(a.Role), "qa") {
			return a, models.ReviewTypeQA
		}
	}
	for _, a := range teamAgents {
		if a.Status == models.AgentStatusActive && a.ID != authorID &&
			a.AgentType == models.AgentTypeTeamLead {
			return a, models.ReviewTypeTeamLead
		}
	}
	return nil, ""
}

// BuildReviewPrompt renders the fixed rubric prompt for a deliverable.
func BuildReviewPrompt(taskDescription, result string) string {
	var b strings.Builder
	b.WriteString("You are reviewing a deliverable against its task. Score each criterion 1-5:\n")
	for _, c := range Criteria {
		fmt.Fprintf(&b, "- %s: <score>\n", c)
	}
	b.WriteString(`
Then give a verdict line "VERDICT: approve" or "VERDICT: reject",
followed by feedback the author can act on.

TASK:
`)
	b.WriteString(taskDescription)
	b.WriteString("\n\nDELIVERABLE:\n")
	b.WriteString(result)
	return b.String()
}

var scoreLineRe = regexp.MustCompile(`(?im)^[-*\s]*([a-z ]+?)\s*[:=]\s*([1-5])\b`)

// ParseVerdict extracts rubric scores and the verdict from a review
// response. Missing scores default to 3; an average below 3 forces
// reject regardless of the stated verdict.
func ParseVerdict(content string) Verdict {
	v := Verdict{Scores: make(map[string]int, len(Criteria))}

	for _, m := range scoreLineRe.FindAllStringSubmatch(content, -1) {
		name := strings.ToLower(strings.TrimSpace(m[1]))
		for _, c := range Criteria {
			if name == c {
				if score, err := strconv.Atoi(m[2]); err == nil {
					v.Scores[c] = score
				}
			}
		}
	}
	total := 0
	for _, c := range Criteria {
		if _, ok := v.Scores[c]; !ok {
			v.Scores[c] = defaultScore
		}
		total += v.Scores[c]
	}
	v.Average = float64(total) / float64(len(Criteria))

	lower := strings.ToLower(content)
	v.Approved = strings.Contains(lower, "verdict: approve") ||
		(!strings.Contains(lower, "verdict: reject") && strings.Contains(lower, "approve"))
	if v.Average < rejectBelowAverage {
		v.Approved = false
	}

	v.Feedback = extractFeedback(content)
	return v
}

// extractFeedback returns everything after the verdict line, or the full
// content when no verdict line exists.
func extractFeedback(content string) string {
	lower := strings.ToLower(content)
	idx := strings.Index(lower, "verdict:")
	if idx < 0 {
		return strings.TrimSpace(content)
	}
	rest := content[idx:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		return strings.TrimSpace(rest[nl+1:])
	}
	return ""
}

// Learner applies the rejection learning path: a high-importance quality
// lesson for the author, then the upskill check.
type Learner struct {
	store  *store.Store
	logger *slog.Logger
}

// NewLearner creates a Learner.
func NewLearner(s *store.Store, logger *slog.Logger) *Learner {
	return &Learner{store: s, logger: logger.With("component", "review")}
}

// RecordRejection writes the rejection lesson for the step's author.
func (l *Learner) RecordRejection(ctx context.Context, authorID, feedback string) error {
	lesson := "Work was rejected in review: " + feedback
	if _, err := l.store.InsertLesson(ctx, authorID, lesson, "quality", 8); err != nil {
		return fmt.Errorf("recording rejection lesson: %w", err)
	}
	return nil
}
