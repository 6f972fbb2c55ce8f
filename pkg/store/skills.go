package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/models"
)

const skillColumns = `id, agent_id, skill_name, proficiency, usage_count, last_used, created_at, updated_at`

func scanSkill(row interface{ Scan(...any) error }) (*models.AgentSkill, error) {
	var sk models.AgentSkill
	var lastUsed sql.NullTime
	err := row.Scan(&sk.ID, &sk.AgentID, &sk.SkillName, &sk.Proficiency, &sk.UsageCount,
		&lastUsed, &sk.CreatedAt, &sk.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sk.LastUsed = nullTime(lastUsed)
	return &sk, nil
}

// InsertSkill creates a skill row for an agent at the given proficiency.
// No-op when the (agent, skill) row already exists.
func (s *Store) InsertSkill(ctx context.Context, agentID, skillName string, proficiency int) error {
	if proficiency < 1 {
		proficiency = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_skills (id, agent_id, skill_name, proficiency, usage_count)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (agent_id, skill_name) DO NOTHING`,
		newID(), agentID, skillName, proficiency)
	if err != nil {
		return fmt.Errorf("inserting skill: %w", err)
	}
	return nil
}

// RecordSkillUse increments usage, stamping last_used, creating the row
// at proficiency 1 when absent (cross-training). Returns the updated row.
func (s *Store) RecordSkillUse(ctx context.Context, agentID, skillName string) (*models.AgentSkill, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO agent_skills (id, agent_id, skill_name, proficiency, usage_count, last_used)
		VALUES ($1, $2, $3, 1, 1, now())
		ON CONFLICT (agent_id, skill_name) DO UPDATE
		SET usage_count = agent_skills.usage_count + 1, last_used = now(), updated_at = now()
		RETURNING `+skillColumns,
		newID(), agentID, skillName)
	sk, err := scanSkill(row)
	if err != nil {
		return nil, fmt.Errorf("recording skill use: %w", err)
	}
	return sk, nil
}

// SetSkillProficiency writes a new proficiency level.
func (s *Store) SetSkillProficiency(ctx context.Context, skillID string, proficiency int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_skills SET proficiency = $2, updated_at = now() WHERE id = $1`,
		skillID, proficiency)
	if err != nil {
		return fmt.Errorf("updating proficiency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SkillsByAgent lists an agent's skills, highest proficiency first.
func (s *Store) SkillsByAgent(ctx context.Context, agentID string) ([]*models.AgentSkill, error) {
	return s.querySkills(ctx, `
		SELECT `+skillColumns+` FROM agent_skills
		WHERE agent_id = $1 ORDER BY proficiency DESC, skill_name`, agentID)
}

// AllSkills lists every skill row (used by the state snapshot).
func (s *Store) AllSkills(ctx context.Context) ([]*models.AgentSkill, error) {
	return s.querySkills(ctx, `SELECT `+skillColumns+` FROM agent_skills ORDER BY agent_id, skill_name`)
}

func (s *Store) querySkills(ctx context.Context, query string, args ...any) ([]*models.AgentSkill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying skills: %w", err)
	}
	defer rows.Close()

	var out []*models.AgentSkill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning skill: %w", err)
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}
