package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/models"
)

const approvalColumns = `id, step_id, reviewer_id, review_type, status, feedback, created_at, updated_at`

func scanApproval(row interface{ Scan(...any) error }) (*models.Approval, error) {
	var a models.Approval
	err := row.Scan(&a.ID, &a.StepID, &a.ReviewerID, &a.ReviewType, &a.Status, &a.Feedback, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateApproval inserts a pending approval row for a step.
func (s *Store) CreateApproval(ctx context.Context, stepID, reviewerID string, reviewType models.ReviewType) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO approval_chain (id, step_id, reviewer_id, review_type, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING `+approvalColumns,
		newID(), stepID, reviewerID, reviewType)
	a, err := scanApproval(row)
	if err != nil {
		return nil, fmt.Errorf("inserting approval: %w", err)
	}
	return a, nil
}

// GetApproval fetches an approval by id.
func (s *Store) GetApproval(ctx context.Context, id string) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approval_chain WHERE id = $1`, id)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying approval: %w", err)
	}
	return a, nil
}

// NextPendingApproval returns the oldest pending approval, or ErrNotFound.
func (s *Store) NextPendingApproval(ctx context.Context) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+approvalColumns+` FROM approval_chain
		WHERE status = 'pending' ORDER BY created_at LIMIT 1`)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending approval: %w", err)
	}
	return a, nil
}

// SubmitReview resolves a pending approval with a verdict. On rejection
// the step is sent back for revision in the same transaction: status
// pending, result cleared, processed reset.
func (s *Store) SubmitReview(ctx context.Context, approvalID string, verdict models.ApprovalStatus, feedback string) (*models.Approval, error) {
	if verdict != models.ApprovalStatusApproved && verdict != models.ApprovalStatusRejected {
		return nil, fmt.Errorf("%w: verdict must be approved or rejected", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		UPDATE approval_chain
		SET status = $2, feedback = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+approvalColumns, approvalID, verdict, feedback)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClaimLost
	}
	if err != nil {
		return nil, fmt.Errorf("resolving approval: %w", err)
	}

	if verdict == models.ApprovalStatusRejected {
		_, err = tx.ExecContext(ctx, `
			UPDATE mission_steps
			SET status = 'pending', result = '', processed = FALSE, updated_at = now()
			WHERE id = $1`, a.StepID)
		if err != nil {
			return nil, fmt.Errorf("sending step back for revision: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing review: %w", err)
	}
	return a, nil
}

// CountRejections returns how many rejected approvals exist for a step.
// Drives the upskill trigger (fires at exactly five).
func (s *Store) CountRejections(ctx context.Context, stepID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM approval_chain
		WHERE step_id = $1 AND status = 'rejected'`, stepID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting rejections: %w", err)
	}
	return n, nil
}

// RejectionFeedback returns the feedback texts of all rejected approvals
// for a step, oldest first.
func (s *Store) RejectionFeedback(ctx context.Context, stepID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feedback FROM approval_chain
		WHERE step_id = $1 AND status = 'rejected'
		ORDER BY created_at`, stepID)
	if err != nil {
		return nil, fmt.Errorf("querying rejection feedback: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ApprovalsByStep lists a step's approvals oldest first.
func (s *Store) ApprovalsByStep(ctx context.Context, stepID string) ([]*models.Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+approvalColumns+` FROM approval_chain
		WHERE step_id = $1 ORDER BY created_at`, stepID)
	if err != nil {
		return nil, fmt.Errorf("querying step approvals: %w", err)
	}
	defer rows.Close()

	var out []*models.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning approval: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
