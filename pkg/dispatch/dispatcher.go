// Package dispatch runs the dispatcher process: a periodic tick that
// promotes proposals to missions and steps, completes approved hires,
// schedules reviews, advances projects, fires scheduled jobs, and serves
// the HTTP liveness probe.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zerohq/agentcorp/pkg/docstore"
	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/models"
	"github.com/zerohq/agentcorp/pkg/policy"
	"github.com/zerohq/agentcorp/pkg/review"
	"github.com/zerohq/agentcorp/pkg/roster"
	"github.com/zerohq/agentcorp/pkg/sched"
	"github.com/zerohq/agentcorp/pkg/store"
)

// Tick cadence and the stale-step threshold.
const (
	DefaultTickInterval = 10 * time.Second
	staleStepAge        = 30 * time.Minute
)

// Dispatcher is the periodic coordination loop.
type Dispatcher struct {
	store     *store.Store
	policies  *policy.Cache
	roster    *roster.Service
	scheduler *sched.Scheduler
	publisher docstore.Publisher
	emitter   *events.Emitter
	logger    *slog.Logger

	interval  time.Duration
	startedAt time.Time

	mu       sync.Mutex
	lastTick time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Dispatcher. publisher may be nil.
func New(s *store.Store, policies *policy.Cache, r *roster.Service, scheduler *sched.Scheduler, publisher docstore.Publisher, emitter *events.Emitter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     s,
		policies:  policies,
		roster:    r,
		scheduler: scheduler,
		publisher: publisher,
		emitter:   emitter,
		logger:    logger.With("component", "dispatcher"),
		interval:  DefaultTickInterval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the tick loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startedAt = time.Now()
	d.recordTick()
	d.wg.Add(1)
	go d.run(ctx)
	d.logger.Info("dispatcher started", "interval", d.interval)
}

// Stop signals the loop to finish its current iteration and waits.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick runs one dispatcher pass. Every stage catches its own errors,
// emits a dispatch_error event, and the tick continues.
func (d *Dispatcher) tick(ctx context.Context) {
	d.stage(ctx, "proposals", d.processProposals)
	d.stage(ctx, "hires", d.completeApprovedHires)
	d.stage(ctx, "reviews", d.scheduleReviews)
	d.stage(ctx, "projects", d.advanceProjects)
	d.stage(ctx, "reaper", d.reclaimStaleSteps)
	if d.scheduler != nil {
		d.scheduler.Tick(ctx, time.Now())
	}
	d.recordTick()
}

func (d *Dispatcher) stage(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		d.logger.Error("dispatch stage failed", "stage", name, "error", err)
		d.emitter.EmitError(ctx, events.TypeDispatchError,
			fmt.Sprintf("stage %s failed: %v", name, err),
			map[string]any{"stage": name})
	}
}

func (d *Dispatcher) recordTick() {
	d.mu.Lock()
	d.lastTick = time.Now()
	d.mu.Unlock()
}

// LastTick returns the time of the last completed tick.
func (d *Dispatcher) LastTick() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTick
}

// completeApprovedHires finishes approved hiring proposals: the agent is
// created, the proposal completed, and the triggering mission proposal
// requeued.
func (d *Dispatcher) completeApprovedHires(ctx context.Context) error {
	approved, err := d.store.HiringProposalsByStatus(ctx, models.HiringStatusApproved)
	if err != nil {
		return fmt.Errorf("loading approved hiring proposals: %w", err)
	}
	for _, h := range approved {
		agent, err := d.roster.CompleteHire(ctx, h)
		if err != nil {
			d.logger.Error("hire completion failed", "hiring_id", h.ID, "error", err)
			continue
		}
		d.logger.Info("hire completed", "hiring_id", h.ID, "agent_id", agent.ID, "name", agent.DisplayName)
	}
	return nil
}

// scheduleReviews assigns reviewers to in-review steps that have none.
// When no reviewer exists anywhere the step auto-approves.
func (d *Dispatcher) scheduleReviews(ctx context.Context) error {
	steps, err := d.store.StepsInReviewWithoutApproval(ctx, 10)
	if err != nil {
		return fmt.Errorf("loading unreviewed steps: %w", err)
	}
	if len(steps) == 0 {
		return nil
	}

	allAgents, err := d.store.ListActiveAgents(ctx)
	if err != nil {
		return fmt.Errorf("loading agents for review scheduling: %w", err)
	}

	for _, step := range steps {
		category := routeStep(step)
		teamAgents := allAgents
		if author, err := d.store.GetAgent(ctx, step.AgentID); err == nil && author.TeamID != nil {
			if ta, err := d.store.AgentsByTeam(ctx, *author.TeamID); err == nil {
				teamAgents = ta
			}
		}

		reviewer, reviewType := review.SelectReviewer(allAgents, teamAgents, category, step.AgentID)
		if reviewer == nil {
			d.logger.Info("no reviewer available, auto-approving", "step_id", step.ID)
			if err := d.approveAndFinalize(ctx, step); err != nil {
				d.logger.Error("auto-approve failed", "step_id", step.ID, "error", err)
			}
			continue
		}
		if _, err := d.store.CreateApproval(ctx, step.ID, reviewer.ID, reviewType); err != nil {
			d.logger.Error("failed to create approval", "step_id", step.ID, "error", err)
		}
	}
	return nil
}

// approveAndFinalize completes a step, publishes the deliverable, and
// checks mission completion.
func (d *Dispatcher) approveAndFinalize(ctx context.Context, step *models.MissionStep) error {
	if err := d.store.ApproveStep(ctx, step.ID); err != nil {
		return err
	}
	d.emitter.Emit(ctx, events.TypeStepCompleted, "step approved: "+step.Description,
		map[string]any{"step_id": step.ID, "mission_id": step.MissionID})
	d.publishDeliverable(ctx, step)

	done, mission, err := d.store.CheckMissionCompletion(ctx, step.MissionID)
	if err != nil {
		return fmt.Errorf("checking mission completion: %w", err)
	}
	if done && mission.Status == models.MissionStatusCompleted {
		d.emitter.Emit(ctx, events.TypeMissionCompleted, "mission completed: "+mission.Title,
			map[string]any{"mission_id": mission.ID})
	}
	return nil
}

// publishDeliverable pushes an approved result outward. External
// failures are logged, never returned — the datastore copy is the
// deliverable of record.
func (d *Dispatcher) publishDeliverable(ctx context.Context, step *models.MissionStep) {
	if d.publisher == nil || step.Result == "" {
		return
	}
	agentName := step.AgentID
	if agent, err := d.store.GetAgent(ctx, step.AgentID); err == nil {
		agentName = agent.DisplayName
	}
	mission, err := d.store.GetMission(ctx, step.MissionID)
	if err != nil {
		d.logger.Warn("publish skipped, mission lookup failed", "step_id", step.ID, "error", err)
		return
	}
	_, err = d.publisher.PublishDeliverable(ctx, docstore.Deliverable{
		Title:     mission.Title,
		Content:   step.Result,
		TeamID:    mission.TeamID,
		AgentName: agentName,
		MissionID: mission.ID,
		StepID:    step.ID,
	})
	if err != nil {
		d.logger.Warn("deliverable publish failed", "step_id", step.ID, "error", err)
	}
}

// phaseDirectives seed the work request for each project phase.
var phaseDirectives = map[models.ProjectPhase]string{
	models.PhaseDiscovery: "Research the market, audience, and competitors for this project.",
	models.PhasePlanning:  "Produce a concrete plan: scope, milestones, and owners.",
	models.PhaseExecution: "Produce the project's core deliverable.",
	models.PhaseReview:    "Review the work produced so far and list gaps and fixes.",
	models.PhaseLaunch:    "Prepare the launch announcement and rollout checklist.",
}

// advanceProjects drives each active project through its phases: queue a
// proposal for the current phase, link the mission once the proposals
// stage accepts it, advance the phase when that mission finishes.
func (d *Dispatcher) advanceProjects(ctx context.Context) error {
	projects, err := d.store.ActiveProjects(ctx)
	if err != nil {
		return fmt.Errorf("loading projects: %w", err)
	}
	for _, p := range projects {
		if err := d.advanceProject(ctx, p); err != nil {
			d.logger.Error("project advance failed", "project_id", p.ID, "error", err)
		}
	}
	return nil
}

func (d *Dispatcher) advanceProject(ctx context.Context, p *models.Project) error {
	switch {
	case p.CurrentMissionID == nil && p.CurrentProposalID == nil:
		return d.startProjectPhase(ctx, p)

	case p.CurrentMissionID == nil:
		mission, err := d.store.MissionByProposal(ctx, *p.CurrentProposalID)
		if errors.Is(err, store.ErrNotFound) {
			return nil // proposal still queued or deferred
		}
		if err != nil {
			return fmt.Errorf("looking up phase mission: %w", err)
		}
		return d.store.SetProjectMission(ctx, p.ID, &mission.ID)

	default:
		mission, err := d.store.GetMission(ctx, *p.CurrentMissionID)
		if err != nil {
			return fmt.Errorf("loading project mission: %w", err)
		}
		if mission.Status == models.MissionStatusInProgress {
			return nil
		}
		updated, err := d.store.AdvanceProject(ctx, p.ID)
		if err != nil {
			return err
		}
		d.logger.Info("project advanced", "project_id", p.ID, "phase", updated.Phase, "status", updated.Status)
		return nil
	}
}

// startProjectPhase queues the proposal for the project's current phase.
// The proposals stage turns it into a mission like any other request.
func (d *Dispatcher) startProjectPhase(ctx context.Context, p *models.Project) error {
	title := fmt.Sprintf("%s: %s phase", p.Name, p.Phase)
	description := fmt.Sprintf("%s\n\nProject: %s. %s", phaseDirectives[p.Phase], p.Name, p.Description)
	proposal, err := d.store.CreateProposal(ctx, title, description, models.PriorityNormal, "dispatcher", "")
	if err != nil {
		return fmt.Errorf("creating phase proposal: %w", err)
	}
	if err := d.store.SetProjectProposal(ctx, p.ID, &proposal.ID); err != nil {
		return fmt.Errorf("recording phase proposal: %w", err)
	}
	d.logger.Info("project phase queued", "project_id", p.ID, "phase", p.Phase, "proposal_id", proposal.ID)
	return nil
}

// reclaimStaleSteps returns steps stuck in_progress (executor crash,
// abandoned claim) to the pending queue.
func (d *Dispatcher) reclaimStaleSteps(ctx context.Context) error {
	n, err := d.store.ReclaimStaleSteps(ctx, staleStepAge)
	if err != nil {
		return err
	}
	if n > 0 {
		d.logger.Warn("reclaimed stale steps", "count", n)
	}
	return nil
}
