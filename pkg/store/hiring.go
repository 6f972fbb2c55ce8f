package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/models"
)

const hiringColumns = `id, role_title, team_id, justification, status, announced, trigger_proposal_id, created_agent_id, created_at, updated_at`

func scanHiring(row interface{ Scan(...any) error }) (*models.HiringProposal, error) {
	var h models.HiringProposal
	var trigger, created sql.NullString
	err := row.Scan(&h.ID, &h.RoleTitle, &h.TeamID, &h.Justification, &h.Status,
		&h.Announced, &trigger, &created, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.TriggerProposalID = nullStr(trigger)
	h.CreatedAgentID = nullStr(created)
	return &h, nil
}

// CreateHiringProposal inserts a pending hiring proposal. Idempotent per
// (role, team): while one is pending, a second call returns (nil, nil)
// and writes nothing.
func (s *Store) CreateHiringProposal(ctx context.Context, roleTitle, teamID, justification string, triggerProposalID *string) (*models.HiringProposal, error) {
	if roleTitle == "" || teamID == "" {
		return nil, fmt.Errorf("%w: role title and team are required", ErrValidation)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO hiring_proposals (id, role_title, team_id, justification, status, trigger_proposal_id)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		ON CONFLICT (role_title, team_id) WHERE status = 'pending' DO NOTHING
		RETURNING `+hiringColumns,
		newID(), roleTitle, teamID, justification, triggerProposalID)
	h, err := scanHiring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // one already pending
	}
	if err != nil {
		return nil, fmt.Errorf("inserting hiring proposal: %w", err)
	}
	return h, nil
}

// GetHiringProposal fetches a hiring proposal by id.
func (s *Store) GetHiringProposal(ctx context.Context, id string) (*models.HiringProposal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+hiringColumns+` FROM hiring_proposals WHERE id = $1`, id)
	h, err := scanHiring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying hiring proposal: %w", err)
	}
	return h, nil
}

// ApproveHiringProposal transitions pending → approved.
func (s *Store) ApproveHiringProposal(ctx context.Context, id string) error {
	return s.setHiringStatus(ctx, id, models.HiringStatusPending, models.HiringStatusApproved)
}

// RejectHiringProposal transitions pending → rejected.
func (s *Store) RejectHiringProposal(ctx context.Context, id string) error {
	return s.setHiringStatus(ctx, id, models.HiringStatusPending, models.HiringStatusRejected)
}

// CompleteHiringProposal transitions approved → completed, recording the
// created agent.
func (s *Store) CompleteHiringProposal(ctx context.Context, id, agentID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hiring_proposals
		SET status = 'completed', created_agent_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'approved'`, id, agentID)
	if err != nil {
		return fmt.Errorf("completing hiring proposal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClaimLost
	}
	return nil
}

func (s *Store) setHiringStatus(ctx context.Context, id string, from, to models.HiringStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE hiring_proposals SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("updating hiring status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClaimLost
	}
	return nil
}

// HiringProposalsByStatus lists proposals in a given status, oldest first.
func (s *Store) HiringProposalsByStatus(ctx context.Context, status models.HiringStatus) ([]*models.HiringProposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+hiringColumns+` FROM hiring_proposals
		WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("querying hiring proposals: %w", err)
	}
	defer rows.Close()

	var out []*models.HiringProposal
	for rows.Next() {
		h, err := scanHiring(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning hiring proposal: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UnannouncedHiringProposals lists pending proposals not yet posted.
func (s *Store) UnannouncedHiringProposals(ctx context.Context) ([]*models.HiringProposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+hiringColumns+` FROM hiring_proposals
		WHERE status = 'pending' AND announced = FALSE ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying unannounced hiring proposals: %w", err)
	}
	defer rows.Close()

	var out []*models.HiringProposal
	for rows.Next() {
		h, err := scanHiring(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning hiring proposal: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// MarkHiringAnnounced flags a hiring proposal as posted.
func (s *Store) MarkHiringAnnounced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE hiring_proposals SET announced = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking hiring announced: %w", err)
	}
	return nil
}
