// Package sched fires the wall-clock-triggered jobs on every dispatcher
// tick: standup, daily summary, backup, state push, health checks, and
// the cost alert. Jobs are guarded by last-run day strings so a window
// fires at most once per logical day.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zerohq/agentcorp/pkg/chat"
	"github.com/zerohq/agentcorp/pkg/docstore"
	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/memory"
	"github.com/zerohq/agentcorp/pkg/policy"
	"github.com/zerohq/agentcorp/pkg/store"
)

// windowSlack is the tolerance around a job's scheduled minute.
const windowSlack = 5 * time.Minute

// healthInterval spaces the periodic health probes.
const healthInterval = 10 * time.Minute

// Config holds the scheduler's fixed times.
type Config struct {
	Timezone       string
	StandupHour    int
	StandupMinute  int
	BackupHour     int
	StatePushHour  int
	AlertChannel   string
	SummaryChannel string
}

// DefaultConfig mirrors the production schedule.
func DefaultConfig() Config {
	return Config{
		Timezone:       "America/New_York",
		StandupHour:    9,
		StandupMinute:  0,
		BackupHour:     3,
		StatePushHour:  4,
		AlertChannel:   "alerts",
		SummaryChannel: "founder-updates",
	}
}

// Scheduler evaluates wall-clock jobs on every tick.
type Scheduler struct {
	cfg      Config
	loc      *time.Location
	store    *store.Store
	policies *policy.Cache
	router   *llm.Router
	memories *memory.Service
	adapter  chat.Adapter
	uploader docstore.Uploader
	emitter  *events.Emitter
	health   *HealthRunner
	logger   *slog.Logger

	lastRunDay map[string]string
	lastHealth time.Time
}

// New creates a Scheduler. adapter and uploader may be nil; jobs that
// need them log and skip.
func New(cfg Config, s *store.Store, policies *policy.Cache, router *llm.Router, memories *memory.Service, adapter chat.Adapter, uploader docstore.Uploader, emitter *events.Emitter, health *HealthRunner, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}
	return &Scheduler{
		cfg:        cfg,
		loc:        loc,
		store:      s,
		policies:   policies,
		router:     router,
		memories:   memories,
		adapter:    adapter,
		uploader:   uploader,
		emitter:    emitter,
		health:     health,
		logger:     logger.With("component", "sched"),
		lastRunDay: make(map[string]string),
	}, nil
}

// Tick evaluates every job against the current wall clock. Job failures
// are logged and emitted; the tick always completes.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	local := now.In(s.loc)

	if s.due("standup", local, s.cfg.StandupHour, s.cfg.StandupMinute) {
		s.runJob(ctx, "standup", s.runStandup)
	}
	summary := s.policies.GetDailySummary(ctx)
	if s.due("summary", local, summary.Hour, summary.Minute) {
		s.runJob(ctx, "summary", s.runDailySummary)
	}
	if s.due("backup", local, s.cfg.BackupHour, 0) {
		s.runJob(ctx, "backup", s.runBackup)
	}
	if s.due("statepush", local, s.cfg.StatePushHour, 0) {
		s.runJob(ctx, "statepush", s.runStatePush)
	}
	if now.Sub(s.lastHealth) >= healthInterval {
		s.lastHealth = now
		s.runJob(ctx, "health", s.runHealthChecks)
	}
	s.runJob(ctx, "costalert", func(ctx context.Context) error {
		return s.checkCostAlert(ctx, local)
	})
}

// due reports whether the job's window is open today and it has not run
// yet this logical day. A positive answer records the day immediately,
// which is the re-entry guard.
func (s *Scheduler) due(job string, local time.Time, hour, minute int) bool {
	target := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, s.loc)
	delta := local.Sub(target)
	if delta < -windowSlack || delta > windowSlack {
		return false
	}
	day := local.Format("2006-01-02")
	if s.lastRunDay[job] == day {
		return false
	}
	s.lastRunDay[job] = day
	return true
}

func (s *Scheduler) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.logger.Error("scheduled job failed", "job", name, "error", err)
		s.emitter.EmitError(ctx, events.TypeScheduleError,
			fmt.Sprintf("job %s failed: %v", name, err),
			map[string]any{"job": name})
	}
}
