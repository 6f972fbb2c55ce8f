package models

import "time"

// MemoryType classifies an agent memory entry.
type MemoryType string

// Memory type constants.
const (
	MemoryTypeTask         MemoryType = "task"
	MemoryTypeConversation MemoryType = "conversation"
	MemoryTypeObservation  MemoryType = "observation"
	MemoryTypeDecision     MemoryType = "decision"
	MemoryTypeLesson       MemoryType = "lesson"
)

// AgentMemory is one append-only experience entry for an agent.
// Rows are never updated in place.
type AgentMemory struct {
	ID              string     `json:"id"`
	AgentID         string     `json:"agent_id"`
	MemoryType      MemoryType `json:"memory_type"`
	Content         string     `json:"content"`
	Summary         string     `json:"summary"`
	TopicTags       []string   `json:"topic_tags"`
	Importance      int        `json:"importance"` // 1-10
	SourceType      string     `json:"source_type"`
	SourceID        string     `json:"source_id"`
	RelatedAgentIDs []string   `json:"related_agent_ids"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Lesson is distilled wisdom for an agent; used preferentially by
// retrieval. Text never changes after insert; AppliedCount may increment.
type Lesson struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	Lesson       string    `json:"lesson"`
	Category     string    `json:"category"`
	Importance   int       `json:"importance"`
	AppliedCount int       `json:"applied_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Decision is one append-only decision-log entry.
type Decision struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Decision  string    `json:"decision"`
	Reasoning string    `json:"reasoning"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationTurn is one append-only conversation-history entry, grouped
// by ConversationID.
type ConversationTurn struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agent_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// AgentSkill is a (skill, proficiency, usage) tuple per agent. Proficiency
// grows 1-10 as usage count crosses the advancement thresholds.
type AgentSkill struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	SkillName   string     `json:"skill_name"`
	Proficiency int        `json:"proficiency"` // 1-10
	UsageCount  int        `json:"usage_count"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
