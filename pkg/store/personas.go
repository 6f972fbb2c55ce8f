package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/models"
)

const personaColumns = `id, agent_id, identity, personality, skills, background, system_prompt, created_at`

func scanPersona(row interface{ Scan(...any) error }) (*models.Persona, error) {
	var p models.Persona
	err := row.Scan(&p.ID, &p.AgentID, &p.Identity, &p.Personality, &p.Skills,
		&p.Background, &p.SystemPrompt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePersona inserts a new persona version and repoints the agent at it
// in one transaction. Prior versions are never mutated.
func (s *Store) SavePersona(ctx context.Context, p *models.Persona) (*models.Persona, error) {
	if p.AgentID == "" || p.SystemPrompt == "" {
		return nil, fmt.Errorf("%w: agent id and system prompt are required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO agent_personas (id, agent_id, identity, personality, skills, background, system_prompt)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+personaColumns,
		newID(), p.AgentID, p.Identity, p.Personality, p.Skills, p.Background, p.SystemPrompt)
	saved, err := scanPersona(row)
	if err != nil {
		return nil, fmt.Errorf("inserting persona: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE agents SET persona_id = $2, updated_at = now() WHERE id = $1`,
		p.AgentID, saved.ID)
	if err != nil {
		return nil, fmt.Errorf("repointing agent persona: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing persona: %w", err)
	}
	return saved, nil
}

// GetPersona fetches a persona version by id.
func (s *Store) GetPersona(ctx context.Context, id string) (*models.Persona, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+personaColumns+` FROM agent_personas WHERE id = $1`, id)
	p, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying persona: %w", err)
	}
	return p, nil
}

// LatestPersona fetches an agent's newest persona version.
func (s *Store) LatestPersona(ctx context.Context, agentID string) (*models.Persona, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+personaColumns+` FROM agent_personas
		WHERE agent_id = $1 ORDER BY created_at DESC LIMIT 1`, agentID)
	p, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest persona: %w", err)
	}
	return p, nil
}

// PersonaVersions lists an agent's persona versions, oldest first.
func (s *Store) PersonaVersions(ctx context.Context, agentID string) ([]*models.Persona, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+personaColumns+` FROM agent_personas
		WHERE agent_id = $1 ORDER BY created_at`, agentID)
	if err != nil {
		return nil, fmt.Errorf("querying persona versions: %w", err)
	}
	defer rows.Close()

	var out []*models.Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning persona: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
