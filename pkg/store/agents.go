package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/models"
)

const teamColumns = `id, name, status, lead_agent_id, created_at, updated_at`

func scanTeam(row interface{ Scan(...any) error }) (*models.Team, error) {
	var t models.Team
	var lead sql.NullString
	err := row.Scan(&t.ID, &t.Name, &t.Status, &lead, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.LeadAgentID = nullStr(lead)
	return &t, nil
}

// CreateTeam inserts a team. ErrValidation when the name is empty.
func (s *Store) CreateTeam(ctx context.Context, name string) (*models.Team, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: team name is required", ErrValidation)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO teams (id, name, status) VALUES ($1, $2, 'active')
		RETURNING `+teamColumns, newID(), name)
	t, err := scanTeam(row)
	if err != nil {
		return nil, fmt.Errorf("inserting team: %w", err)
	}
	return t, nil
}

// GetTeam fetches a team by id.
func (s *Store) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
	t, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying team: %w", err)
	}
	return t, nil
}

// GetTeamByName fetches a team by exact name.
func (s *Store) GetTeamByName(ctx context.Context, name string) (*models.Team, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE name = $1`, name)
	t, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying team by name: %w", err)
	}
	return t, nil
}

// ListTeams returns all teams ordered by name.
func (s *Store) ListTeams(ctx context.Context) ([]*models.Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying teams: %w", err)
	}
	defer rows.Close()

	var out []*models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetTeamStatus toggles a team between active and dormant.
func (s *Store) SetTeamStatus(ctx context.Context, teamID string, status models.TeamStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE teams SET status = $2, updated_at = now() WHERE id = $1`, teamID, status)
	if err != nil {
		return fmt.Errorf("updating team status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const agentColumns = `id, display_name, role, agent_type, team_id, status, persona_id, created_at, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (*models.Agent, error) {
	var a models.Agent
	var teamID, personaID sql.NullString
	err := row.Scan(&a.ID, &a.DisplayName, &a.Role, &a.AgentType, &teamID, &a.Status, &personaID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.TeamID = nullStr(teamID)
	a.PersonaID = nullStr(personaID)
	return &a, nil
}

// InsertAgentParams carries the fields for a new agent row.
type InsertAgentParams struct {
	DisplayName string
	Role        string
	AgentType   models.AgentType
	TeamID      *string
}

// InsertAgent inserts an active agent row. Name-pool bookkeeping is the
// caller's job (see ClaimRandomName / ReleaseName).
func (s *Store) InsertAgent(ctx context.Context, p InsertAgentParams) (*models.Agent, error) {
	if p.DisplayName == "" || p.Role == "" {
		return nil, fmt.Errorf("%w: display name and role are required", ErrValidation)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO agents (id, display_name, role, agent_type, team_id, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING `+agentColumns,
		newID(), p.DisplayName, p.Role, p.AgentType, p.TeamID)
	a, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("inserting agent: %w", err)
	}
	return a, nil
}

// GetAgent fetches an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return a, nil
}

// GetAgentByDisplayName fetches a non-retired agent by display name.
func (s *Store) GetAgentByDisplayName(ctx context.Context, name string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+agentColumns+` FROM agents
		WHERE lower(display_name) = lower($1) AND status <> 'retired'
		LIMIT 1`, name)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent by name: %w", err)
	}
	return a, nil
}

// ListActiveAgents returns all active agents.
func (s *Store) ListActiveAgents(ctx context.Context) ([]*models.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE status = 'active' ORDER BY created_at`)
}

// ListAgents returns all non-retired agents.
func (s *Store) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE status <> 'retired' ORDER BY created_at`)
}

// AgentsByTeam returns a team's non-retired agents.
func (s *Store) AgentsByTeam(ctx context.Context, teamID string) ([]*models.Agent, error) {
	return s.queryAgents(ctx, `
		SELECT `+agentColumns+` FROM agents
		WHERE team_id = $1 AND status <> 'retired' ORDER BY created_at`, teamID)
}

func (s *Store) queryAgents(ctx context.Context, query string, args ...any) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var out []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountActiveAgents returns the number of active agents.
func (s *Store) CountActiveAgents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM agents WHERE status = 'active'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active agents: %w", err)
	}
	return n, nil
}

// SetAgentStatus transitions an agent's status. Retiring releases the
// agent's pool name in the same transaction so it can be reassigned.
func (s *Store) SetAgentStatus(ctx context.Context, agentID string, status models.AgentStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE agents SET status = $2, updated_at = now() WHERE id = $1`, agentID, status)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if status == models.AgentStatusRetired {
		_, err = tx.ExecContext(ctx, `
			UPDATE name_pool
			SET assigned = FALSE, assigned_to = NULL, assigned_at = NULL
			WHERE assigned_to = $1`, agentID)
		if err != nil {
			return fmt.Errorf("releasing pool name: %w", err)
		}
	}

	return tx.Commit()
}

// SetAgentPersona repoints the agent at a persona version.
func (s *Store) SetAgentPersona(ctx context.Context, agentID, personaID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET persona_id = $2, updated_at = now() WHERE id = $1`, agentID, personaID)
	if err != nil {
		return fmt.Errorf("updating agent persona: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedNamePool inserts pool names for a source, skipping ones already
// present. Safe to call at every startup.
func (s *Store) SeedNamePool(ctx context.Context, source string, names []string) error {
	for _, name := range names {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO name_pool (name, source) VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING`, name, source)
		if err != nil {
			return fmt.Errorf("seeding name pool: %w", err)
		}
	}
	return nil
}

// CreateAgentParams carries the fields for hiring a new agent.
type CreateAgentParams struct {
	Role            string
	AgentType       models.AgentType
	TeamID          *string
	PreferredSource string
}

// CreateAgentWithPoolName atomically claims a random unassigned pool name
// (preferring PreferredSource when any of its names remain), inserts the
// agent row, and marks the pool entry assigned to it. The transaction
// guarantees the pool invariant: on any failure the claim rolls back and
// the name stays free. Returns ErrNamePoolExhausted when no unassigned
// name exists.
func (s *Store) CreateAgentWithPoolName(ctx context.Context, p CreateAgentParams) (*models.Agent, error) {
	if p.Role == "" {
		return nil, fmt.Errorf("%w: role is required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	name, err := selectFreeName(ctx, tx, p.PreferredSource)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO agents (id, display_name, role, agent_type, team_id, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING `+agentColumns,
		newID(), name, p.Role, p.AgentType, p.TeamID)
	agent, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("inserting agent: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE name_pool
		SET assigned = TRUE, assigned_to = $2, assigned_at = now()
		WHERE name = $1`, name, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("marking name assigned: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing hire: %w", err)
	}
	return agent, nil
}

// selectFreeName picks and row-locks a random unassigned name within tx.
func selectFreeName(ctx context.Context, tx *sql.Tx, preferredSource string) (string, error) {
	pick := func(bySource bool) (string, error) {
		query := `
			SELECT name FROM name_pool
			WHERE assigned = FALSE`
		var args []any
		if bySource {
			query += ` AND source = $1`
			args = append(args, preferredSource)
		}
		query += `
			ORDER BY random() LIMIT 1
			FOR UPDATE SKIP LOCKED`
		var name string
		err := tx.QueryRowContext(ctx, query, args...).Scan(&name)
		return name, err
	}

	if preferredSource != "" {
		name, err := pick(true)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("selecting pool name: %w", err)
		}
	}

	name, err := pick(false)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNamePoolExhausted
	}
	if err != nil {
		return "", fmt.Errorf("selecting pool name: %w", err)
	}
	return name, nil
}

// ReleaseName returns a claimed name to the pool (insert-failure path).
func (s *Store) ReleaseName(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE name_pool
		SET assigned = FALSE, assigned_to = NULL, assigned_at = NULL
		WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("releasing name: %w", err)
	}
	return nil
}

// UnassignedNameCount returns how many pool names remain free.
func (s *Store) UnassignedNameCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM name_pool WHERE assigned = FALSE`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unassigned names: %w", err)
	}
	return n, nil
}
