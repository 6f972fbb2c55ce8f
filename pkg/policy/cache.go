// Package policy caches the versioned operational-rule rows consumed by
// spending, routing, and scheduling decisions. The cache is process-local
// with a short TTL; the newest active row per type wins.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
)

// DefaultTTL is how long a fetched policy row is served from memory.
const DefaultTTL = 60 * time.Second

type cacheEntry struct {
	policy    *models.Policy
	fetchedAt time.Time
}

// Cache is a TTL cache over policy rows keyed by type.
type Cache struct {
	store  *store.Store
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[models.PolicyType]cacheEntry
}

// NewCache creates a Cache with the default TTL.
func NewCache(s *store.Store, logger *slog.Logger) *Cache {
	return &Cache{
		store:   s,
		ttl:     DefaultTTL,
		logger:  logger.With("component", "policy"),
		entries: make(map[models.PolicyType]cacheEntry),
	}
}

// WithTTL overrides the TTL; used by tests.
func (c *Cache) WithTTL(ttl time.Duration) *Cache {
	c.ttl = ttl
	return c
}

// ClearCache drops every cached entry so the next read hits the store.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[models.PolicyType]cacheEntry)
}

// Get returns the newest active policy row of a type, from cache when
// fresh. Returns store.ErrNotFound when no row exists.
func (c *Cache) Get(ctx context.Context, policyType models.PolicyType) (*models.Policy, error) {
	c.mu.Lock()
	if entry, ok := c.entries[policyType]; ok && time.Since(entry.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return entry.policy, nil
	}
	c.mu.Unlock()

	p, err := c.store.ActivePolicy(ctx, policyType)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[policyType] = cacheEntry{policy: p, fetchedAt: time.Now()}
	c.mu.Unlock()
	return p, nil
}

// SpendingLimit is the spending_limit policy config.
type SpendingLimit struct {
	DailyLimitUSD   float64 `json:"daily_limit_usd"`
	RequireApproval bool    `json:"require_approval"`
	ApprovalOverUSD float64 `json:"approval_over_usd"`
}

// CostAlert is the cost_alert policy config.
type CostAlert struct {
	DailyThresholdUSD float64 `json:"daily_threshold_usd"`
}

// OperatingHours is the operating_hours policy config. Hours are 24h
// local to the configured timezone; Days uses three-letter day names.
type OperatingHours struct {
	StartHour int      `json:"start_hour"`
	EndHour   int      `json:"end_hour"`
	Days      []string `json:"days"`
}

// DailySummary is the daily_summary policy config.
type DailySummary struct {
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
	Channel string `json:"channel"`
}

// Compiled defaults used when no policy row exists.
var (
	defaultSpendingLimit = SpendingLimit{DailyLimitUSD: 50, RequireApproval: true, ApprovalOverUSD: 10}
	defaultCostAlert     = CostAlert{DailyThresholdUSD: 25}
	defaultHours         = OperatingHours{StartHour: 0, EndHour: 24, Days: []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}}
	defaultSummary       = DailySummary{Hour: 9, Minute: 30, Channel: "founder-updates"}
)

// GetSpendingLimit returns the spending-limit config or its default.
func (c *Cache) GetSpendingLimit(ctx context.Context) SpendingLimit {
	out := defaultSpendingLimit
	c.decode(ctx, models.PolicySpendingLimit, &out)
	return out
}

// GetCostAlert returns the cost-alert config or its default.
func (c *Cache) GetCostAlert(ctx context.Context) CostAlert {
	out := defaultCostAlert
	c.decode(ctx, models.PolicyCostAlert, &out)
	return out
}

// GetOperatingHours returns the operating-hours config or its default.
func (c *Cache) GetOperatingHours(ctx context.Context) OperatingHours {
	out := defaultHours
	c.decode(ctx, models.PolicyOperatingHours, &out)
	return out
}

// GetDailySummary returns the daily-summary config or its default.
func (c *Cache) GetDailySummary(ctx context.Context) DailySummary {
	out := defaultSummary
	c.decode(ctx, models.PolicyDailySummary, &out)
	return out
}

// decode fills target from the policy row of the given type, leaving the
// compiled default in place on any failure.
func (c *Cache) decode(ctx context.Context, policyType models.PolicyType, target any) {
	p, err := c.Get(ctx, policyType)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		c.logger.Warn("failed to load policy, using default", "policy_type", policyType, "error", err)
		return
	}
	if err := json.Unmarshal(p.Config, target); err != nil {
		c.logger.Warn("malformed policy config, using default",
			"policy_type", policyType, "error", fmt.Errorf("decoding config: %w", err))
	}
}
