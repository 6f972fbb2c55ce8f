package sched

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zerohq/agentcorp/pkg/docstore"
	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/models"
)

const standupPrompt = `Daily standup. In three short bullets:
1. What you accomplished recently (from your memory).
2. What you are focused on next.
3. Anything blocking you.`

// runStandup makes one tier-1 call per active agent and records the
// response as a conversation memory.
func (s *Scheduler) runStandup(ctx context.Context) error {
	agents, err := s.store.ListActiveAgents(ctx)
	if err != nil {
		return fmt.Errorf("loading agents for standup: %w", err)
	}
	for _, agent := range agents {
		systemPrompt, err := s.memories.BuildAgentPrompt(ctx, agent, []string{"standup"})
		if err != nil {
			s.logger.Warn("standup prompt build failed", "agent_id", agent.ID, "error", err)
			continue
		}
		resp, err := s.router.CallLLM(ctx, systemPrompt, standupPrompt, models.TierT1, &agent.ID, nil)
		if err != nil {
			s.logger.Warn("standup call failed", "agent_id", agent.ID, "error", err)
			continue
		}
		err = s.memories.SaveMemory(ctx, &models.AgentMemory{
			AgentID:    agent.ID,
			MemoryType: models.MemoryTypeConversation,
			Content:    resp.Content,
			Summary:    "Daily standup",
			TopicTags:  []string{"standup"},
			Importance: 3,
			SourceType: "standup",
		})
		if err != nil {
			s.logger.Warn("standup memory write failed", "agent_id", agent.ID, "error", err)
		}
	}
	return nil
}

// runDailySummary aggregates the last 24 hours and posts the report.
func (s *Scheduler) runDailySummary(ctx context.Context) error {
	cutoff := time.Now().Add(-24 * time.Hour)

	cost, err := s.store.CostSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("summary cost query: %w", err)
	}
	tiers, err := s.store.CostByTierSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("summary tier query: %w", err)
	}
	errorCount, err := s.store.CountEventsBySeveritySince(ctx, models.SeverityError, cutoff)
	if err != nil {
		return fmt.Errorf("summary error count: %w", err)
	}
	agents, err := s.store.CountActiveAgents(ctx)
	if err != nil {
		return fmt.Errorf("summary agent count: %w", err)
	}
	missions, err := s.store.MissionsCompletedSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("summary mission query: %w", err)
	}

	var b strings.Builder
	b.WriteString("📊 Daily Summary (last 24h)\n")
	fmt.Fprintf(&b, "Model spend: $%.4f\n", cost)
	for _, tc := range tiers {
		fmt.Fprintf(&b, "  %s: %d calls, $%.4f\n", tc.Tier, tc.Calls, tc.Cost)
	}
	fmt.Fprintf(&b, "Active agents: %d\n", agents)
	fmt.Fprintf(&b, "Missions finished: %d\n", len(missions))
	for _, m := range missions {
		fmt.Fprintf(&b, "  - %s (%s)\n", m.Title, m.Status)
	}
	fmt.Fprintf(&b, "Error events: %d\n", errorCount)

	if s.adapter == nil {
		s.logger.Info("daily summary built, no chat adapter configured")
		return nil
	}
	channel := s.policies.GetDailySummary(ctx).Channel
	if channel == "" {
		channel = s.cfg.SummaryChannel
	}
	if err := s.adapter.PostToChannel(ctx, channel, b.String()); err != nil {
		return fmt.Errorf("posting daily summary: %w", err)
	}
	return nil
}

// runBackup snapshots the core tables to the file-storage platform.
func (s *Scheduler) runBackup(ctx context.Context) error {
	if s.uploader == nil {
		s.logger.Info("backup skipped, no uploader configured")
		return nil
	}
	return docstore.Backup(ctx, s.store, s.uploader, time.Now().In(s.loc))
}

// runStatePush writes the source-controlled state snapshots.
func (s *Scheduler) runStatePush(ctx context.Context) error {
	if s.uploader == nil {
		s.logger.Info("state push skipped, no uploader configured")
		return nil
	}
	return docstore.PushState(ctx, s.store, s.uploader)
}

// runHealthChecks executes the component probes and records the results.
func (s *Scheduler) runHealthChecks(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	return s.health.Run(ctx)
}

// checkCostAlert fires at most one warning per local calendar day once
// today's spend crosses the policy threshold.
func (s *Scheduler) checkCostAlert(ctx context.Context, local time.Time) error {
	threshold := s.policies.GetCostAlert(ctx).DailyThresholdUSD
	if threshold <= 0 {
		return nil
	}
	day := local.Format("2006-01-02")
	if s.lastRunDay["costalert_sent"] == day {
		return nil
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	cost, err := s.store.CostSince(ctx, midnight)
	if err != nil {
		return fmt.Errorf("cost alert query: %w", err)
	}
	if cost < threshold {
		return nil
	}

	// The in-memory day string is only a fast path; the event row is the
	// durable guard, so a restart mid-day does not re-alert.
	sent, err := s.store.CountEventsByTypeSince(ctx, events.TypeCostAlert, midnight)
	if err != nil {
		return fmt.Errorf("cost alert dedupe query: %w", err)
	}
	if sent > 0 {
		s.lastRunDay["costalert_sent"] = day
		return nil
	}

	s.lastRunDay["costalert_sent"] = day
	s.emitter.EmitWarning(ctx, events.TypeCostAlert,
		fmt.Sprintf("daily model spend $%.2f crossed threshold $%.2f", cost, threshold),
		map[string]any{"cost": cost, "threshold": threshold, "day": day})

	if s.adapter != nil {
		text := fmt.Sprintf("⚠️ Cost alert: today's model spend is $%.2f (threshold $%.2f).", cost, threshold)
		if err := s.adapter.PostToChannel(ctx, s.cfg.AlertChannel, text); err != nil {
			s.logger.Warn("failed to post cost alert", "error", err)
		}
	}
	return nil
}
