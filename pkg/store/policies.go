package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zerohq/agentcorp/pkg/models"
)

// ActivePolicy returns the newest active policy row of a type, or
// ErrNotFound when none exists.
func (s *Store) ActivePolicy(ctx context.Context, policyType models.PolicyType) (*models.Policy, error) {
	var p models.Policy
	err := s.db.QueryRowContext(ctx, `
		SELECT id, policy_type, config, version, active, created_at
		FROM policies
		WHERE policy_type = $1 AND active = TRUE
		ORDER BY version DESC LIMIT 1`, policyType).
		Scan(&p.ID, &p.PolicyType, &p.Config, &p.Version, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying active policy: %w", err)
	}
	return &p, nil
}

// InsertPolicyVersion writes a new active version of a policy and
// deactivates prior versions in one transaction.
func (s *Store) InsertPolicyVersion(ctx context.Context, policyType models.PolicyType, config json.RawMessage) (*models.Policy, error) {
	if policyType == "" || len(config) == 0 {
		return nil, fmt.Errorf("%w: policy type and config are required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE policies SET active = FALSE WHERE policy_type = $1 AND active = TRUE`, policyType)
	if err != nil {
		return nil, fmt.Errorf("deactivating prior versions: %w", err)
	}

	var p models.Policy
	err = tx.QueryRowContext(ctx, `
		INSERT INTO policies (id, policy_type, config, version, active)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(max(version), 0) + 1 FROM policies WHERE policy_type = $2),
			TRUE)
		RETURNING id, policy_type, config, version, active, created_at`,
		newID(), policyType, []byte(config)).
		Scan(&p.ID, &p.PolicyType, &p.Config, &p.Version, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting policy version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing policy: %w", err)
	}
	return &p, nil
}

// InsertHealthCheck appends a component probe result.
func (s *Store) InsertHealthCheck(ctx context.Context, component string, status models.HealthState, latencyMs int64, details string) error {
	if component == "" {
		return fmt.Errorf("%w: component is required", ErrValidation)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_checks (id, component, status, latency_ms, details)
		VALUES ($1, $2, $3, $4, $5)`,
		newID(), component, status, latencyMs, details)
	if err != nil {
		return fmt.Errorf("inserting health check: %w", err)
	}
	return nil
}
