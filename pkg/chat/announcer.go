package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zerohq/agentcorp/pkg/store"
)

// Announcer polls the store for completed steps and new hiring proposals
// that have not been posted outward yet. Posting is at-least-once; the
// announced flag makes re-posting after a crash the only duplication
// mode.
type Announcer struct {
	store   *store.Store
	adapter Adapter
	channel string
	logger  *slog.Logger
}

// NewAnnouncer creates an Announcer posting to the given channel.
func NewAnnouncer(s *store.Store, adapter Adapter, channel string, logger *slog.Logger) *Announcer {
	return &Announcer{
		store:   s,
		adapter: adapter,
		channel: channel,
		logger:  logger.With("component", "announcer"),
	}
}

// Tick posts pending announcements. Individual post failures leave the
// row unannounced for the next tick.
func (a *Announcer) Tick(ctx context.Context) {
	a.announceSteps(ctx)
	a.announceHiring(ctx)
}

func (a *Announcer) announceSteps(ctx context.Context) {
	steps, err := a.store.UnannouncedCompletedSteps(ctx, 5)
	if err != nil {
		a.logger.Error("failed to load unannounced steps", "error", err)
		return
	}
	for _, step := range steps {
		agentName := step.AgentID
		if agent, err := a.store.GetAgent(ctx, step.AgentID); err == nil {
			agentName = agent.DisplayName
		}
		preview := step.Result
		if len(preview) > 400 {
			preview = preview[:400] + "..."
		}
		text := fmt.Sprintf("✅ %s completed: %s\n\n%s", agentName, step.Description, preview)
		if err := a.adapter.PostToChannel(ctx, a.channel, text); err != nil {
			a.logger.Warn("failed to announce step", "step_id", step.ID, "error", err)
			continue
		}
		if err := a.store.MarkStepAnnounced(ctx, step.ID); err != nil {
			a.logger.Warn("failed to mark step announced", "step_id", step.ID, "error", err)
		}
	}
}

func (a *Announcer) announceHiring(ctx context.Context) {
	proposals, err := a.store.UnannouncedHiringProposals(ctx)
	if err != nil {
		a.logger.Error("failed to load unannounced hiring proposals", "error", err)
		return
	}
	for _, p := range proposals {
		text := fmt.Sprintf("📋 Hiring proposal %s: %s\nJustification: %s\nReply `!hire %s` or `!reject %s`.",
			p.ID, p.RoleTitle, p.Justification, p.ID, p.ID)
		if err := a.adapter.PostToChannel(ctx, a.channel, text); err != nil {
			a.logger.Warn("failed to announce hiring proposal", "id", p.ID, "error", err)
			continue
		}
		if err := a.store.MarkHiringAnnounced(ctx, p.ID); err != nil {
			a.logger.Warn("failed to mark hiring announced", "id", p.ID, "error", err)
		}
	}
}
