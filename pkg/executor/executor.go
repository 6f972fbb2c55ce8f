// Package executor runs the worker process: each tick it claims one
// ready step, runs it through the model pipeline, and resolves one
// pending review. Multiple executors can run concurrently; conditional
// updates in the datastore arbitrate every claim.
package executor

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zerohq/agentcorp/pkg/docstore"
	"github.com/zerohq/agentcorp/pkg/events"
	"github.com/zerohq/agentcorp/pkg/llm"
	"github.com/zerohq/agentcorp/pkg/memory"
	"github.com/zerohq/agentcorp/pkg/persona"
	"github.com/zerohq/agentcorp/pkg/review"
	"github.com/zerohq/agentcorp/pkg/skills"
	"github.com/zerohq/agentcorp/pkg/store"
	"github.com/zerohq/agentcorp/pkg/tools"
	"github.com/zerohq/agentcorp/pkg/version"
)

// DefaultTickInterval is the executor's work cadence.
const DefaultTickInterval = 10 * time.Second

// pendingBatch is how many ready steps one tick considers when racing
// other executors for a claim.
const pendingBatch = 5

// Worker is the step-execution and review-resolution loop.
type Worker struct {
	store     *store.Store
	router    *llm.Router
	memories  *memory.Service
	resolver  *tools.Resolver
	personas  *persona.Service
	skills    *skills.Tracker
	learner   *review.Learner
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

// Deps bundles the worker's collaborators.
type Deps struct {
	Store     *store.Store
	Router    *llm.Router
	Memories  *memory.Service
	Resolver  *tools.Resolver
	Personas  *persona.Service
	Skills    *skills.Tracker
	Learner   *review.Learner
	Publisher docstore.Publisher // may be nil
	Emitter   *events.Emitter
	Logger    *slog.Logger
}

// New creates a Worker.
func New(d Deps) *Worker {
	return &Worker{
		store:     d.Store,
		router:    d.Router,
		memories:  d.Memories,
		resolver:  d.Resolver,
		personas:  d.Personas,
		skills:    d.Skills,
		learner:   d.Learner,
		publisher: d.Publisher,
		emitter:   d.Emitter,
		logger:    d.Logger.With("component", "executor"),
		interval:  DefaultTickInterval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the work loop.
func (w *Worker) Start(ctx context.Context) {
	w.startedAt = time.Now()
	w.recordTick()
	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("executor started", "interval", w.interval)
}

// Stop signals the loop to finish its current iteration and waits.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.logger.Info("executor stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick does one unit of step work and one unit of review work. Errors
// are recorded and the loop continues.
func (w *Worker) tick(ctx context.Context) {
	if err := w.executeNextStep(ctx); err != nil {
		w.logger.Error("step execution failed", "error", err)
		w.emitter.EmitError(ctx, events.TypeExecutorError,
			"step execution failed: "+err.Error(), nil)
	}
	if err := w.resolveNextReview(ctx); err != nil {
		w.logger.Error("review resolution failed", "error", err)
		w.emitter.EmitError(ctx, events.TypeExecutorError,
			"review resolution failed: "+err.Error(), nil)
	}
	w.recordTick()
}

func (w *Worker) recordTick() {
	w.mu.Lock()
	w.lastTick = time.Now()
	w.mu.Unlock()
}

// LastTick returns the time of the last completed tick.
func (w *Worker) LastTick() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastTick
}

// stalledAfter is how long without a tick before the probe reports 503.
const stalledAfter = 120 * time.Second

// NewHTTPHandler builds the executor's liveness probe.
func NewHTTPHandler(w *Worker) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		sinceTick := time.Since(w.LastTick())
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)

		status := "ok"
		code := http.StatusOK
		if sinceTick > stalledAfter {
			status = "stalled"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":             status,
			"process":            "executor",
			"version":            version.Full(),
			"uptime":             time.Since(w.startedAt).String(),
			"lastTickSecondsAgo": int(sinceTick.Seconds()),
			"memoryMB":           stats.HeapAlloc / (1 << 20),
		})
	})
	return router
}
