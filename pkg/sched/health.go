package sched

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/store"
)

// Memory thresholds as a fraction of the configured process limit.
const (
	memoryWarnFraction = 0.8
	memoryFailFraction = 0.9
)

// monthlyUsageWarn approximates the bandwidth budget as usage-row count.
const monthlyUsageWarn = 50000

// KeyCheckFunc validates the model-provider API key via a cheap
// endpoint.
type KeyCheckFunc func(ctx context.Context) error

// HealthRunner executes the periodic component probes and records one
// health-check row per probe.
type HealthRunner struct {
	store         *store.Store
	keyCheck      KeyCheckFunc
	memoryLimitMB int
	logger        *slog.Logger
}

// NewHealthRunner creates a HealthRunner. keyCheck may be nil when no
// provider key is configured.
func NewHealthRunner(s *store.Store, keyCheck KeyCheckFunc, memoryLimitMB int, logger *slog.Logger) *HealthRunner {
	if memoryLimitMB <= 0 {
		memoryLimitMB = 512
	}
	return &HealthRunner{
		store:         s,
		keyCheck:      keyCheck,
		memoryLimitMB: memoryLimitMB,
		logger:        logger.With("component", "health"),
	}
}

// Run executes all probes. Individual probe failures are recorded as
// fail rows, not returned.
func (h *HealthRunner) Run(ctx context.Context) error {
	h.probe(ctx, "datastore", h.checkDatastore)
	h.probe(ctx, "model_provider", h.checkModelKey)
	h.probe(ctx, "process_memory", h.checkMemory)
	h.probe(ctx, "bandwidth", h.checkBandwidth)
	return nil
}

func (h *HealthRunner) probe(ctx context.Context, component string, fn func(context.Context) (models.HealthState, string)) {
	start := time.Now()
	status, details := fn(ctx)
	latency := time.Since(start).Milliseconds()
	if err := h.store.InsertHealthCheck(ctx, component, status, latency, details); err != nil {
		h.logger.Warn("failed to record health check", "component", component, "error", err)
	}
	if status != models.HealthPass {
		h.logger.Warn("health probe degraded", "component", component, "status", status, "details", details)
	}
}

func (h *HealthRunner) checkDatastore(ctx context.Context) (models.HealthState, string) {
	var one int
	if err := h.store.DB().QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return models.HealthFail, fmt.Sprintf("ping failed: %v", err)
	}
	return models.HealthPass, "ping ok"
}

func (h *HealthRunner) checkModelKey(ctx context.Context) (models.HealthState, string) {
	if h.keyCheck == nil {
		return models.HealthWarning, "no key check configured"
	}
	if err := h.keyCheck(ctx); err != nil {
		return models.HealthFail, fmt.Sprintf("key validation failed: %v", err)
	}
	return models.HealthPass, "key valid"
}

func (h *HealthRunner) checkMemory(context.Context) (models.HealthState, string) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	usedMB := float64(stats.HeapAlloc) / (1 << 20)
	fraction := usedMB / float64(h.memoryLimitMB)
	details := fmt.Sprintf("%.1f MB of %d MB", usedMB, h.memoryLimitMB)
	switch {
	case fraction >= memoryFailFraction:
		return models.HealthFail, details
	case fraction >= memoryWarnFraction:
		return models.HealthWarning, details
	default:
		return models.HealthPass, details
	}
}

func (h *HealthRunner) checkBandwidth(ctx context.Context) (models.HealthState, string) {
	n, err := h.store.MonthlyUsageCount(ctx)
	if err != nil {
		return models.HealthFail, fmt.Sprintf("usage query failed: %v", err)
	}
	details := fmt.Sprintf("%d usage rows this month", n)
	if n >= monthlyUsageWarn {
		return models.HealthWarning, details
	}
	return models.HealthPass, details
}
