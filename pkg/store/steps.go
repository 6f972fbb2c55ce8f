package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zerohq/agentcorp/pkg/models"
)

const stepColumns = `id, mission_id, description, agent_id, model_tier, step_order, parent_step_id,
	status, result, error_message, announced, processed, started_at, created_at, updated_at`

func scanStep(row interface{ Scan(...any) error }) (*models.MissionStep, error) {
	var st models.MissionStep
	var parent sql.NullString
	var started sql.NullTime
	err := row.Scan(&st.ID, &st.MissionID, &st.Description, &st.AgentID, &st.ModelTier,
		&st.StepOrder, &parent, &st.Status, &st.Result, &st.ErrorMessage,
		&st.Announced, &st.Processed, &started, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	st.ParentStepID = nullStr(parent)
	st.StartedAt = nullTime(started)
	return &st, nil
}

// CreateStep inserts a pending step for a mission.
func (s *Store) CreateStep(ctx context.Context, missionID, description, agentID string, tier models.ModelTier, order int, parentStepID *string) (*models.MissionStep, error) {
	if description == "" {
		return nil, fmt.Errorf("%w: step description is required", ErrValidation)
	}
	if order < 1 {
		order = 1
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO mission_steps (id, mission_id, description, agent_id, model_tier, step_order, parent_step_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING `+stepColumns,
		newID(), missionID, description, agentID, tier, order, parentStepID)
	st, err := scanStep(row)
	if err != nil {
		return nil, fmt.Errorf("inserting step: %w", err)
	}
	return st, nil
}

// GetStep fetches a step by id.
func (s *Store) GetStep(ctx context.Context, id string) (*models.MissionStep, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM mission_steps WHERE id = $1`, id)
	st, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying step: %w", err)
	}
	return st, nil
}

// stepColumnsQualified is stepColumns prefixed for joins against
// missions and teams, whose column names collide.
const stepColumnsQualified = `ms.id, ms.mission_id, ms.description, ms.agent_id, ms.model_tier, ms.step_order, ms.parent_step_id,
	ms.status, ms.result, ms.error_message, ms.announced, ms.processed, ms.started_at, ms.created_at, ms.updated_at`

// GetPendingSteps returns pending steps whose predecessors (all siblings
// with a strictly lower step_order) are completed. This is the gating
// invariant for chained phases: a failed or in-flight predecessor blocks
// every later step of its mission. Steps of missions owned by a dormant
// team are held back until the team is reactivated.
func (s *Store) GetPendingSteps(ctx context.Context, limit int) ([]*models.MissionStep, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stepColumnsQualified+`
		FROM mission_steps ms
		JOIN missions m ON m.id = ms.mission_id
		JOIN teams t ON t.id = m.team_id
		WHERE ms.status = 'pending'
		  AND t.status <> 'dormant'
		  AND NOT EXISTS (
			SELECT 1 FROM mission_steps prior
			WHERE prior.mission_id = ms.mission_id
			  AND prior.step_order < ms.step_order
			  AND prior.status <> 'completed'
		  )
		ORDER BY ms.step_order, ms.created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending steps: %w", err)
	}
	defer rows.Close()

	var out []*models.MissionStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ClaimStep transitions a step pending → in_progress with a conditional
// update. Among concurrent callers exactly one succeeds; the rest get
// ErrClaimLost and must skip. Sets processed and started_at.
func (s *Store) ClaimStep(ctx context.Context, stepID string) (*models.MissionStep, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE mission_steps
		SET status = 'in_progress', processed = TRUE, started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+stepColumns, stepID)
	st, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimLost
	}
	if err != nil {
		return nil, fmt.Errorf("claiming step: %w", err)
	}
	return st, nil
}

// CompleteStep records the result and moves the step to in_review.
func (s *Store) CompleteStep(ctx context.Context, stepID, result string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mission_steps
		SET status = 'in_review', result = $2, error_message = '', updated_at = now()
		WHERE id = $1 AND status = 'in_progress'`, stepID, result)
	if err != nil {
		return fmt.Errorf("completing step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClaimLost
	}
	return nil
}

// FailStep marks the step failed with the error recorded.
func (s *Store) FailStep(ctx context.Context, stepID, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mission_steps
		SET status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1`, stepID, errorMessage)
	if err != nil {
		return fmt.Errorf("failing step: %w", err)
	}
	return nil
}

// ApproveStep marks an in-review step completed.
func (s *Store) ApproveStep(ctx context.Context, stepID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mission_steps
		SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'in_review'`, stepID)
	if err != nil {
		return fmt.Errorf("approving step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClaimLost
	}
	return nil
}

// SendBackForRevision returns a rejected step to pending with its result
// cleared so the author can retry.
func (s *Store) SendBackForRevision(ctx context.Context, stepID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mission_steps
		SET status = 'pending', result = '', processed = FALSE, updated_at = now()
		WHERE id = $1`, stepID)
	if err != nil {
		return fmt.Errorf("sending step back for revision: %w", err)
	}
	return nil
}

// StepsByMission lists a mission's steps in order.
func (s *Store) StepsByMission(ctx context.Context, missionID string) ([]*models.MissionStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stepColumns+` FROM mission_steps
		WHERE mission_id = $1 ORDER BY step_order, created_at`, missionID)
	if err != nil {
		return nil, fmt.Errorf("querying mission steps: %w", err)
	}
	defer rows.Close()

	var out []*models.MissionStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StepsInReviewWithoutApproval returns in-review steps that have no
// pending approval yet. The dispatcher schedules reviewers for these.
func (s *Store) StepsInReviewWithoutApproval(ctx context.Context, limit int) ([]*models.MissionStep, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stepColumns+`
		FROM mission_steps ms
		WHERE ms.status = 'in_review'
		  AND NOT EXISTS (
			SELECT 1 FROM approval_chain ac
			WHERE ac.step_id = ms.id AND ac.status = 'pending'
		  )
		ORDER BY ms.updated_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying unreviewed steps: %w", err)
	}
	defer rows.Close()

	var out []*models.MissionStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UnannouncedCompletedSteps returns completed steps not yet posted to the
// chat channel.
func (s *Store) UnannouncedCompletedSteps(ctx context.Context, limit int) ([]*models.MissionStep, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stepColumns+` FROM mission_steps
		WHERE status = 'completed' AND announced = FALSE
		ORDER BY updated_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying unannounced steps: %w", err)
	}
	defer rows.Close()

	var out []*models.MissionStep
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// MarkStepAnnounced flags a step as posted.
func (s *Store) MarkStepAnnounced(ctx context.Context, stepID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mission_steps SET announced = TRUE, updated_at = now() WHERE id = $1`, stepID)
	if err != nil {
		return fmt.Errorf("marking step announced: %w", err)
	}
	return nil
}

// ReclaimStaleSteps flips steps stuck in_progress longer than maxAge back
// to pending so a future executor can pick them up. Returns the number of
// steps reclaimed.
func (s *Store) ReclaimStaleSteps(ctx context.Context, maxAge time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mission_steps
		SET status = 'pending', processed = FALSE, updated_at = now()
		WHERE status = 'in_progress' AND started_at < $1`,
		nowUTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("reclaiming stale steps: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
