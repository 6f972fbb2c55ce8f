package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/models"
)

const projectColumns = `id, name, description, phase, status, current_mission_id, current_proposal_id, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*models.Project, error) {
	var p models.Project
	var missionID, proposalID sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Phase, &p.Status,
		&missionID, &proposalID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CurrentMissionID = nullStr(missionID)
	p.CurrentProposalID = nullStr(proposalID)
	return &p, nil
}

// CreateProject starts a project in the discovery phase.
func (s *Store) CreateProject(ctx context.Context, name, description string) (*models.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrValidation)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, name, description, phase, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+projectColumns,
		newID(), name, description, models.PhaseDiscovery, models.ProjectStatusActive)
	p, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("inserting project: %w", err)
	}
	return p, nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying project: %w", err)
	}
	return p, nil
}

// ActiveProjects lists projects still in flight, oldest first.
func (s *Store) ActiveProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE status = $1 ORDER BY created_at`, models.ProjectStatusActive)
	if err != nil {
		return nil, fmt.Errorf("querying active projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetProjectMission records the mission currently driving the project's
// phase.
func (s *Store) SetProjectMission(ctx context.Context, projectID string, missionID *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET current_mission_id = $2, updated_at = now() WHERE id = $1`,
		projectID, missionID)
	if err != nil {
		return fmt.Errorf("updating project mission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProjectProposal records the proposal queued for the project's
// current phase.
func (s *Store) SetProjectProposal(ctx context.Context, projectID string, proposalID *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET current_proposal_id = $2, updated_at = now() WHERE id = $1`,
		projectID, proposalID)
	if err != nil {
		return fmt.Errorf("updating project proposal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceProject moves an active project to the next phase, marking it
// completed after the final phase. The attached mission and proposal are
// cleared either way, so the dispatcher queues the next phase's work on a
// later tick. Returns the updated project.
func (s *Store) AdvanceProject(ctx context.Context, projectID string) (*models.Project, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.ProjectStatusActive {
		return p, nil
	}

	next, last := nextPhase(p.Phase)
	status := models.ProjectStatusActive
	if last {
		status = models.ProjectStatusCompleted
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE projects
		SET phase = $2, status = $3, current_mission_id = NULL, current_proposal_id = NULL, updated_at = now()
		WHERE id = $1 AND status = 'active'
		RETURNING `+projectColumns,
		projectID, next, status)
	updated, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("advancing project: %w", err)
	}
	return updated, nil
}

func nextPhase(current models.ProjectPhase) (models.ProjectPhase, bool) {
	for i, ph := range models.ProjectPhases {
		if ph == current && i+1 < len(models.ProjectPhases) {
			return models.ProjectPhases[i+1], false
		}
	}
	return current, true
}
