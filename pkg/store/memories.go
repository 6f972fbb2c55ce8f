package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/models"
)

const memoryColumns = `id, agent_id, memory_type, content, summary, topic_tags, importance, source_type, source_id, related_agent_ids, created_at`

func scanMemory(row interface{ Scan(...any) error }) (*models.AgentMemory, error) {
	var m models.AgentMemory
	var tags, related []byte
	err := row.Scan(&m.ID, &m.AgentID, &m.MemoryType, &m.Content, &m.Summary,
		&tags, &m.Importance, &m.SourceType, &m.SourceID, &related, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &m.TopicTags); err != nil {
		return nil, fmt.Errorf("decoding topic tags: %w", err)
	}
	if err := json.Unmarshal(related, &m.RelatedAgentIDs); err != nil {
		return nil, fmt.Errorf("decoding related agents: %w", err)
	}
	return &m, nil
}

// InsertMemory appends a memory row. Rows are never updated in place.
func (s *Store) InsertMemory(ctx context.Context, m *models.AgentMemory) (*models.AgentMemory, error) {
	if m.AgentID == "" || m.Content == "" {
		return nil, fmt.Errorf("%w: agent id and content are required", ErrValidation)
	}
	if m.Importance < 1 || m.Importance > 10 {
		m.Importance = 5
	}
	tags, err := json.Marshal(emptyIfNil(m.TopicTags))
	if err != nil {
		return nil, fmt.Errorf("encoding topic tags: %w", err)
	}
	related, err := json.Marshal(emptyIfNil(m.RelatedAgentIDs))
	if err != nil {
		return nil, fmt.Errorf("encoding related agents: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO agent_memories (id, agent_id, memory_type, content, summary, topic_tags, importance, source_type, source_id, related_agent_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+memoryColumns,
		newID(), m.AgentID, m.MemoryType, m.Content, m.Summary, tags, m.Importance,
		m.SourceType, m.SourceID, related)
	saved, err := scanMemory(row)
	if err != nil {
		return nil, fmt.Errorf("inserting memory: %w", err)
	}
	return saved, nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// RecentMemories returns the agent's newest memories, most recent first.
func (s *Store) RecentMemories(ctx context.Context, agentID string, limit int) ([]*models.AgentMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM agent_memories
		WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2`, agentID, limit)
}

// MemoriesByTags returns memories whose topic tags intersect the query
// tags, ordered by importance then recency.
func (s *Store) MemoriesByTags(ctx context.Context, agentID string, tags []string, limit int) ([]*models.AgentMemory, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encoding query tags: %w", err)
	}
	// jsonb array overlap via the ?| operator on a text-array cast is not
	// available for jsonb arrays directly; EXISTS over jsonb_array_elements
	// keeps it on the stock operators.
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM agent_memories m
		WHERE m.agent_id = $1
		  AND EXISTS (
			SELECT 1
			FROM jsonb_array_elements_text(m.topic_tags) tag
			WHERE tag = ANY (SELECT jsonb_array_elements_text($2::jsonb))
		  )
		ORDER BY m.importance DESC, m.created_at DESC
		LIMIT $3`, agentID, encoded, limit)
}

func (s *Store) queryMemories(ctx context.Context, query string, args ...any) ([]*models.AgentMemory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var out []*models.AgentMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const lessonColumns = `id, agent_id, lesson, category, importance, applied_count, created_at`

func scanLesson(row interface{ Scan(...any) error }) (*models.Lesson, error) {
	var l models.Lesson
	err := row.Scan(&l.ID, &l.AgentID, &l.Lesson, &l.Category, &l.Importance, &l.AppliedCount, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// InsertLesson appends a lesson row. Lesson text never changes after
// insert; only AppliedCount may increment.
func (s *Store) InsertLesson(ctx context.Context, agentID, lesson, category string, importance int) (*models.Lesson, error) {
	if agentID == "" || lesson == "" {
		return nil, fmt.Errorf("%w: agent id and lesson are required", ErrValidation)
	}
	if importance < 1 || importance > 10 {
		importance = 5
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO lessons_learned (id, agent_id, lesson, category, importance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+lessonColumns,
		newID(), agentID, lesson, category, importance)
	l, err := scanLesson(row)
	if err != nil {
		return nil, fmt.Errorf("inserting lesson: %w", err)
	}
	return l, nil
}

// TopLessons returns an agent's lessons ordered by importance then
// applied count.
func (s *Store) TopLessons(ctx context.Context, agentID string, limit int) ([]*models.Lesson, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lessonColumns+` FROM lessons_learned
		WHERE agent_id = $1
		ORDER BY importance DESC, applied_count DESC, created_at DESC
		LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying lessons: %w", err)
	}
	defer rows.Close()

	var out []*models.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lesson: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// IncrementLessonApplied bumps a lesson's applied count.
func (s *Store) IncrementLessonApplied(ctx context.Context, lessonID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE lessons_learned SET applied_count = applied_count + 1 WHERE id = $1`, lessonID)
	if err != nil {
		return fmt.Errorf("incrementing lesson applied count: %w", err)
	}
	return nil
}

// LogDecision appends a decision-log entry.
func (s *Store) LogDecision(ctx context.Context, agentID, decision, reasoning, context_ string) (*models.Decision, error) {
	if agentID == "" || decision == "" {
		return nil, fmt.Errorf("%w: agent id and decision are required", ErrValidation)
	}
	var d models.Decision
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO decision_log (id, agent_id, decision, reasoning, context)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, agent_id, decision, reasoning, context, created_at`,
		newID(), agentID, decision, reasoning, context_).
		Scan(&d.ID, &d.AgentID, &d.Decision, &d.Reasoning, &d.Context, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting decision: %w", err)
	}
	return &d, nil
}

// SaveConversationTurn appends one conversation-history entry.
func (s *Store) SaveConversationTurn(ctx context.Context, agentID, conversationID, role, content string) (*models.ConversationTurn, error) {
	if agentID == "" || conversationID == "" {
		return nil, fmt.Errorf("%w: agent id and conversation id are required", ErrValidation)
	}
	var t models.ConversationTurn
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversation_history (id, agent_id, conversation_id, role, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, agent_id, conversation_id, role, content, created_at`,
		newID(), agentID, conversationID, role, content).
		Scan(&t.ID, &t.AgentID, &t.ConversationID, &t.Role, &t.Content, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation turn: %w", err)
	}
	return &t, nil
}

// ConversationTurns lists a conversation's turns in order.
func (s *Store) ConversationTurns(ctx context.Context, conversationID string) ([]*models.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, conversation_id, role, content, created_at
		FROM conversation_history
		WHERE conversation_id = $1 ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	defer rows.Close()

	var out []*models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		if err := rows.Scan(&t.ID, &t.AgentID, &t.ConversationID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation turn: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
