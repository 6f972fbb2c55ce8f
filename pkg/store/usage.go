package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zerohq/agentcorp/pkg/models"
)

// InsertUsage appends a model-usage row. Every LLM call writes exactly
// one, success or failure.
func (s *Store) InsertUsage(ctx context.Context, u *models.ModelUsage) error {
	if u.ModelName == "" || u.Tier == "" {
		return fmt.Errorf("%w: model name and tier are required", ErrValidation)
	}
	var meta any
	if len(u.Metadata) > 0 {
		meta = []byte(u.Metadata)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_usage (id, agent_id, step_id, model_name, tier, input_tokens, output_tokens,
			estimated_cost, latency_ms, success, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		newID(), u.AgentID, u.StepID, u.ModelName, u.Tier, u.InputTokens, u.OutputTokens,
		u.EstimatedCost, u.LatencyMs, u.Success, u.ErrorMessage, meta)
	if err != nil {
		return fmt.Errorf("inserting model usage: %w", err)
	}
	return nil
}

// CostSince returns the summed estimated cost of calls after the cutoff.
func (s *Store) CostSince(ctx context.Context, cutoff time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(sum(estimated_cost), 0) FROM model_usage WHERE created_at >= $1`,
		cutoff).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing model cost: %w", err)
	}
	return total, nil
}

// TierCost is the per-tier cost breakdown for a window.
type TierCost struct {
	Tier  models.ModelTier `json:"tier"`
	Calls int              `json:"calls"`
	Cost  float64          `json:"cost"`
}

// CostByTierSince returns a per-tier cost breakdown for calls after the
// cutoff.
func (s *Store) CostByTierSince(ctx context.Context, cutoff time.Time) ([]TierCost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tier, count(*), COALESCE(sum(estimated_cost), 0)
		FROM model_usage WHERE created_at >= $1
		GROUP BY tier ORDER BY tier`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying tier costs: %w", err)
	}
	defer rows.Close()

	var out []TierCost
	for rows.Next() {
		var tc TierCost
		if err := rows.Scan(&tc.Tier, &tc.Calls, &tc.Cost); err != nil {
			return nil, fmt.Errorf("scanning tier cost: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// UsageRowsByStep lists the usage rows for a step, oldest first.
func (s *Store) UsageRowsByStep(ctx context.Context, stepID string) ([]*models.ModelUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, step_id, model_name, tier, input_tokens, output_tokens,
			estimated_cost, latency_ms, success, error_message, metadata, created_at
		FROM model_usage WHERE step_id = $1 ORDER BY created_at`, stepID)
	if err != nil {
		return nil, fmt.Errorf("querying step usage: %w", err)
	}
	defer rows.Close()

	var out []*models.ModelUsage
	for rows.Next() {
		var u models.ModelUsage
		var meta []byte
		if err := rows.Scan(&u.ID, &u.AgentID, &u.StepID, &u.ModelName, &u.Tier, &u.InputTokens,
			&u.OutputTokens, &u.EstimatedCost, &u.LatencyMs, &u.Success, &u.ErrorMessage,
			&meta, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		u.Metadata = json.RawMessage(meta)
		out = append(out, &u)
	}
	return out, rows.Err()
}

// MonthlyUsageCount counts usage rows in the current calendar month,
// used as the bandwidth approximation in health checks.
func (s *Store) MonthlyUsageCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM model_usage
		WHERE created_at >= date_trunc('month', now())`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting monthly usage: %w", err)
	}
	return n, nil
}
