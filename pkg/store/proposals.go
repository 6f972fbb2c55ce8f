package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zerohq/agentcorp/pkg/models"
)

const proposalColumns = `id, title, description, priority, proposing_agent, raw_message, status, processed, created_at, updated_at`

func scanProposal(row interface{ Scan(...any) error }) (*models.MissionProposal, error) {
	var p models.MissionProposal
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Priority, &p.ProposingAgent,
		&p.RawMessage, &p.Status, &p.Processed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProposal inserts a pending, unprocessed mission proposal.
// Returns ErrValidation when the title is empty; no row is created.
func (s *Store) CreateProposal(ctx context.Context, title, description string, priority models.ProposalPriority, proposingAgent, rawMessage string) (*models.MissionProposal, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: proposal title is required", ErrValidation)
	}
	if priority != models.PriorityUrgent {
		priority = models.PriorityNormal
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO mission_proposals (id, title, description, priority, proposing_agent, raw_message, status, processed)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', FALSE)
		RETURNING `+proposalColumns,
		newID(), title, description, priority, proposingAgent, rawMessage)
	p, err := scanProposal(row)
	if err != nil {
		return nil, fmt.Errorf("inserting proposal: %w", err)
	}
	return p, nil
}

// GetProposal fetches a single proposal by id.
func (s *Store) GetProposal(ctx context.Context, id string) (*models.MissionProposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM mission_proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying proposal: %w", err)
	}
	return p, nil
}

// GetPendingProposals returns all pending, unprocessed proposals ordered
// urgent-first, then by creation time.
func (s *Store) GetPendingProposals(ctx context.Context) ([]*models.MissionProposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM mission_proposals
		WHERE status = 'pending' AND processed = FALSE
		ORDER BY CASE priority WHEN 'urgent' THEN 0 ELSE 1 END, created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying pending proposals: %w", err)
	}
	defer rows.Close()

	var out []*models.MissionProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AcceptProposal atomically marks the proposal accepted+processed and
// creates a mission for the team. Idempotent via the processed flag: if
// the proposal was already processed, the existing mission is returned and
// nothing is written.
func (s *Store) AcceptProposal(ctx context.Context, proposalID, teamID string) (*models.Mission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Conditional update carries the idempotence: zero rows means a prior
	// call already processed this proposal.
	var title string
	err = tx.QueryRowContext(ctx, `
		UPDATE mission_proposals
		SET status = 'accepted', processed = TRUE, updated_at = now()
		WHERE id = $1 AND processed = FALSE
		RETURNING title`, proposalID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return s.MissionByProposal(ctx, proposalID)
	}
	if err != nil {
		return nil, fmt.Errorf("accepting proposal: %w", err)
	}

	m := &models.Mission{}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO missions (id, proposal_id, team_id, title, status)
		VALUES ($1, $2, $3, $4, 'in_progress')
		RETURNING id, proposal_id, team_id, title, status, completed_at, created_at, updated_at`,
		newID(), proposalID, teamID, title).
		Scan(&m.ID, &m.ProposalID, &m.TeamID, &m.Title, &m.Status, &m.CompletedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating mission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing accept: %w", err)
	}
	return m, nil
}

// DeferProposal parks a pending proposal (used while hiring is in flight).
func (s *Store) DeferProposal(ctx context.Context, proposalID string) error {
	return s.setProposalStatus(ctx, proposalID, models.ProposalStatusPending, models.ProposalStatusDeferred)
}

// RequeueProposal returns a deferred proposal to the pending queue.
func (s *Store) RequeueProposal(ctx context.Context, proposalID string) error {
	return s.setProposalStatus(ctx, proposalID, models.ProposalStatusDeferred, models.ProposalStatusPending)
}

// RejectProposal marks a proposal rejected and processed.
func (s *Store) RejectProposal(ctx context.Context, proposalID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mission_proposals
		SET status = 'rejected', processed = TRUE, updated_at = now()
		WHERE id = $1`, proposalID)
	if err != nil {
		return fmt.Errorf("rejecting proposal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) setProposalStatus(ctx context.Context, proposalID string, from, to models.ProposalStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mission_proposals
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, proposalID, from, to)
	if err != nil {
		return fmt.Errorf("updating proposal status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClaimLost
	}
	return nil
}

const missionColumns = `id, proposal_id, team_id, title, status, completed_at, created_at, updated_at`

func scanMission(row interface{ Scan(...any) error }) (*models.Mission, error) {
	var m models.Mission
	var completed sql.NullTime
	err := row.Scan(&m.ID, &m.ProposalID, &m.TeamID, &m.Title, &m.Status, &completed, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.CompletedAt = nullTime(completed)
	return &m, nil
}

// GetMission fetches a mission by id.
func (s *Store) GetMission(ctx context.Context, id string) (*models.Mission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = $1`, id)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying mission: %w", err)
	}
	return m, nil
}

// MissionByProposal fetches the mission created from a proposal, or
// ErrNotFound while the proposal is still queued.
func (s *Store) MissionByProposal(ctx context.Context, proposalID string) (*models.Mission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE proposal_id = $1 ORDER BY created_at LIMIT 1`, proposalID)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying mission by proposal: %w", err)
	}
	return m, nil
}

// CountActiveMissions returns the number of in-progress missions.
func (s *Store) CountActiveMissions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM missions WHERE status = 'in_progress'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active missions: %w", err)
	}
	return n, nil
}

// CheckMissionCompletion finalizes a mission when every step is terminal:
// failed if any step failed, else completed. Failed is sticky — a mission
// already finalized is never re-opened. Returns true when the mission is
// (or already was) terminal.
func (s *Store) CheckMissionCompletion(ctx context.Context, missionID string) (bool, *models.Mission, error) {
	mission, err := s.GetMission(ctx, missionID)
	if err != nil {
		return false, nil, err
	}
	if mission.Status != models.MissionStatusInProgress {
		return true, mission, nil
	}

	var total, terminal, failed int
	err = s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status IN ('completed', 'failed')),
		       count(*) FILTER (WHERE status = 'failed')
		FROM mission_steps WHERE mission_id = $1`, missionID).
		Scan(&total, &terminal, &failed)
	if err != nil {
		return false, nil, fmt.Errorf("counting mission steps: %w", err)
	}
	if total == 0 || terminal < total {
		return false, mission, nil
	}

	status := models.MissionStatusCompleted
	if failed > 0 {
		status = models.MissionStatusFailed
	}
	completedAt := nowUTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE missions SET status = $2, completed_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'in_progress'`, missionID, status, completedAt)
	if err != nil {
		return false, nil, fmt.Errorf("finalizing mission: %w", err)
	}
	mission.Status = status
	mission.CompletedAt = &completedAt
	return true, mission, nil
}

// MissionsCompletedSince lists missions finalized after the cutoff.
func (s *Store) MissionsCompletedSince(ctx context.Context, cutoff time.Time) ([]*models.Mission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+missionColumns+` FROM missions
		WHERE completed_at >= $1 ORDER BY completed_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying completed missions: %w", err)
	}
	defer rows.Close()

	var out []*models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mission: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
