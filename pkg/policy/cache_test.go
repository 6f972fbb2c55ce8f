package policy_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/policy"
	"github.com/zerohq/agentcorp/pkg/store"
	"github.com/zerohq/agentcorp/test/util"
)

func TestCacheGet(t *testing.T) {
	ctx := context.Background()
	s := util.NewTestStore(t)
	cache := policy.NewCache(s, slog.Default()).WithTTL(time.Hour)

	t.Run("missing policy returns ErrNotFound", func(t *testing.T) {
		_, err := cache.Get(ctx, models.PolicySpendingLimit)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("cache serves stale reads inside the TTL", func(t *testing.T) {
		v1, err := s.InsertPolicyVersion(ctx, models.PolicyCostAlert, json.RawMessage(`{"daily_threshold_usd": 25}`))
		require.NoError(t, err)

		got, err := cache.Get(ctx, models.PolicyCostAlert)
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID)

		_, err = s.InsertPolicyVersion(ctx, models.PolicyCostAlert, json.RawMessage(`{"daily_threshold_usd": 99}`))
		require.NoError(t, err)

		got, err = cache.Get(ctx, models.PolicyCostAlert)
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.ID, "within the TTL the old row is served")
	})

	t.Run("ClearCache forces a refetch", func(t *testing.T) {
		cache.ClearCache()
		got, err := cache.Get(ctx, models.PolicyCostAlert)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
	})
}

func TestTypedGettersFallBackToDefaults(t *testing.T) {
	ctx := context.Background()
	s := util.NewTestStore(t)
	cache := policy.NewCache(s, slog.Default())

	t.Run("empty table yields compiled defaults", func(t *testing.T) {
		limit := cache.GetSpendingLimit(ctx)
		assert.Equal(t, 50.0, limit.DailyLimitUSD)
		assert.True(t, limit.RequireApproval)

		summary := cache.GetDailySummary(ctx)
		assert.Equal(t, 9, summary.Hour)
		assert.Equal(t, 30, summary.Minute)

		hours := cache.GetOperatingHours(ctx)
		assert.Equal(t, 24, hours.EndHour)
	})

	t.Run("stored row overrides the default", func(t *testing.T) {
		_, err := s.InsertPolicyVersion(ctx, models.PolicySpendingLimit,
			json.RawMessage(`{"daily_limit_usd": 120, "require_approval": false}`))
		require.NoError(t, err)
		cache.ClearCache()

		limit := cache.GetSpendingLimit(ctx)
		assert.Equal(t, 120.0, limit.DailyLimitUSD)
		assert.False(t, limit.RequireApproval)
	})

	t.Run("malformed config keeps the default", func(t *testing.T) {
		_, err := s.InsertPolicyVersion(ctx, models.PolicyCostAlert, json.RawMessage(`"not an object"`))
		require.NoError(t, err)
		cache.ClearCache()

		alert := cache.GetCostAlert(ctx)
		assert.Equal(t, 25.0, alert.DailyThresholdUSD)
	})
}
