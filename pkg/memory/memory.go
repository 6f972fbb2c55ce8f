// Package memory assembles the fixed-shape experience bundle an agent
// receives with every task: recent entries, topic-matched entries, and
// distilled lessons. All writes are append-only.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/skills"
	"github.com/zerohq/agentcorp/pkg/store"
)

// Bundle sizes are fixed by contract.
const (
	recentLimit  = 10
	matchedLimit = 10
	lessonLimit  = 5
)

// Bundle is the fixed-shape retrieval result.
type Bundle struct {
	Recent       []*models.AgentMemory
	TopicMatched []*models.AgentMemory
	Lessons      []*models.Lesson
}

// Service wraps the store's memory tables with retrieval and prompt
// assembly.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// NewService creates a memory Service.
func NewService(s *store.Store, logger *slog.Logger) *Service {
	return &Service{store: s, logger: logger.With("component", "memory")}
}

// SaveMemory appends one memory entry.
func (s *Service) SaveMemory(ctx context.Context, m *models.AgentMemory) error {
	if _, err := s.store.InsertMemory(ctx, m); err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

// SaveLesson appends one lesson.
func (s *Service) SaveLesson(ctx context.Context, agentID, lesson, category string, importance int) error {
	if _, err := s.store.InsertLesson(ctx, agentID, lesson, category, importance); err != nil {
		return fmt.Errorf("saving lesson: %w", err)
	}
	return nil
}

// LogDecision appends one decision-log entry.
func (s *Service) LogDecision(ctx context.Context, agentID, decision, reasoning, context_ string) error {
	if _, err := s.store.LogDecision(ctx, agentID, decision, reasoning, context_); err != nil {
		return fmt.Errorf("logging decision: %w", err)
	}
	return nil
}

// SaveConversation appends one conversation turn.
func (s *Service) SaveConversation(ctx context.Context, agentID, conversationID, role, content string) error {
	if _, err := s.store.SaveConversationTurn(ctx, agentID, conversationID, role, content); err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// Retrieve returns the fixed bundle: the 10 most recent memories, up to
// 10 topic-matched memories deduplicated against them, and the top 5
// lessons.
func (s *Service) Retrieve(ctx context.Context, agentID string, tags []string) (*Bundle, error) {
	recent, err := s.store.RecentMemories(ctx, agentID, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieving recent memories: %w", err)
	}

	seen := make(map[string]bool, len(recent))
	for _, m := range recent {
		seen[m.ID] = true
	}

	var matched []*models.AgentMemory
	if len(tags) > 0 {
		// Over-fetch so dedup against Recent still fills the slot count.
		candidates, err := s.store.MemoriesByTags(ctx, agentID, tags, matchedLimit+recentLimit)
		if err != nil {
			return nil, fmt.Errorf("retrieving topic memories: %w", err)
		}
		for _, m := range candidates {
			if seen[m.ID] {
				continue
			}
			matched = append(matched, m)
			if len(matched) == matchedLimit {
				break
			}
		}
	}

	lessons, err := s.store.TopLessons(ctx, agentID, lessonLimit)
	if err != nil {
		return nil, fmt.Errorf("retrieving lessons: %w", err)
	}

	return &Bundle{Recent: recent, TopicMatched: matched, Lessons: lessons}, nil
}

// Render formats a bundle into the static markdown block embedded in
// agent prompts.
func (b *Bundle) Render() string {
	var sb strings.Builder
	sb.WriteString("## Recent Experiences\n")
	if len(b.Recent) == 0 {
		sb.WriteString("(none yet)\n")
	}
	for _, m := range b.Recent {
		writeMemoryLine(&sb, m)
	}

	sb.WriteString("\n## Relevant Past Work\n")
	if len(b.TopicMatched) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, m := range b.TopicMatched {
		writeMemoryLine(&sb, m)
	}

	sb.WriteString("\n## Lessons Learned\n")
	if len(b.Lessons) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, l := range b.Lessons {
		fmt.Fprintf(&sb, "- [%d/10] %s\n", l.Importance, l.Lesson)
	}
	return sb.String()
}

func writeMemoryLine(sb *strings.Builder, m *models.AgentMemory) {
	text := m.Summary
	if text == "" {
		text = m.Content
	}
	fmt.Fprintf(sb, "- (%s, %s) %s\n", m.MemoryType, m.CreatedAt.Format("2006-01-02"), text)
}

// toolPreamble documents the embedded tool markers an agent may emit.
const toolPreamble = `## Tools Available
You can use these tools by embedding markers in your response:
- [WEB_SEARCH:query] - search the web for current information
- [WEB_FETCH:url] - fetch and read a specific web page
- [SOCIAL_POST:text] - queue a post to the company social account
Use at most three fetches per response. Results will be provided back to you.`

// persistenceReminder closes every agent prompt.
const persistenceReminder = `Remember: you have persistent memory. Your experiences, lessons, and skills carry forward between tasks. Build on what you have learned.`

// BuildAgentPrompt composes the full system prompt for an agent: persona
// text, memory block, skills block (when any), tool preamble, and the
// persistence reminder, separated by horizontal rules.
func (s *Service) BuildAgentPrompt(ctx context.Context, agent *models.Agent, tags []string) (string, error) {
	var personaText string
	persona, err := s.store.LatestPersona(ctx, agent.ID)
	switch {
	case err == nil:
		personaText = persona.SystemPrompt
	case errors.Is(err, store.ErrNotFound):
		personaText = fmt.Sprintf("You are %s, a %s.", agent.DisplayName, agent.Role)
	default:
		return "", fmt.Errorf("loading persona: %w", err)
	}

	bundle, err := s.Retrieve(ctx, agent.ID, tags)
	if err != nil {
		return "", err
	}

	skillRows, err := s.store.SkillsByAgent(ctx, agent.ID)
	if err != nil {
		return "", fmt.Errorf("loading skills: %w", err)
	}

	parts := []string{personaText, bundle.Render()}
	if block := skills.RenderSkills(skillRows); block != "" {
		parts = append(parts, block)
	}
	parts = append(parts, toolPreamble, persistenceReminder)
	return strings.Join(parts, "\n\n---\n\n"), nil
}
