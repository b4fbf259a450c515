package sniper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Coordinator phases, reported on the status surface.
const (
	PhaseRunning        = "running"
	PhaseAwaitingResume = "awaiting_resume"
)

// Coordinator aggregates per-target state on a fixed cadence and runs the
// pause/resume cycle. When any target pauses, every monitor is suspended via
// the shared PauseState and the coordinator waits for an operator resume
// signal; resume is all-or-nothing across the current target set.
type Coordinator struct {
	registry *Registry
	pause    *PauseState

	pollInterval      time.Duration
	autoResume        bool
	autoResumeTimeout time.Duration

	resumeCh chan struct{}

	// onPause fires when a pause cycle begins, onResume after every target
	// has been resumed.
	onPause  func(t *Target)
	onResume func(targets int, total int64)

	totalActions atomic.Int64
	awaiting     atomic.Bool
	lastCount    int
}

func NewCoordinator(registry *Registry, pause *PauseState, pollInterval time.Duration, autoResume bool, autoResumeTimeout time.Duration) *Coordinator {
	return &Coordinator{
		registry:          registry,
		pause:             pause,
		pollInterval:      pollInterval,
		autoResume:        autoResume,
		autoResumeTimeout: autoResumeTimeout,
		resumeCh:          make(chan struct{}, 1),
	}
}

// Resume delivers an operator resume signal. Non-blocking; a signal arriving
// while no target is paused is dropped during the next pause cycle, not
// carried over.
func (c *Coordinator) Resume() {
	select {
	case c.resumeCh <- struct{}{}:
	default:
	}
}

func (c *Coordinator) OnPause(fn func(t *Target)) { c.onPause = fn }
func (c *Coordinator) OnResume(fn func(targets int, total int64)) { c.onResume = fn }

func (c *Coordinator) TotalActions() int64 { return c.totalActions.Load() }

func (c *Coordinator) Phase() string {
	if c.awaiting.Load() {
		return PhaseAwaitingResume
	}
	return PhaseRunning
}

// Run drives the aggregation loop until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		c.tick(ctx)
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	targets := c.registry.Targets()

	var total int64
	var pausedBy *Target
	for _, t := range targets {
		total += t.ActionCount()
		if pausedBy == nil && t.Paused() {
			pausedBy = t
		}
	}
	c.totalActions.Store(total)

	if len(targets) != c.lastCount {
		slog.Info("target set changed", "targets", len(targets), "total_actions", total)
		c.lastCount = len(targets)
	}

	if pausedBy != nil {
		c.awaitResume(ctx, pausedBy)
	}
}

// awaitResume suspends all monitoring and blocks until the operator signals a
// resume, the optional auto-resume timer fires, or ctx is cancelled. No target
// scans again until every target has been resumed.
func (c *Coordinator) awaitResume(ctx context.Context, pausedBy *Target) {
	// A resume signal sent before this pause began must not satisfy it. The
	// drain happens before the gate engages: once Held is observable, a
	// resume signal is for this pause and must not be discarded.
	select {
	case <-c.resumeCh:
	default:
	}

	c.pause.Engage(pausedBy.ID)
	c.awaiting.Store(true)
	defer c.awaiting.Store(false)

	slog.Info("action taken, monitoring paused",
		"num", pausedBy.Num, "target", pausedBy.Name,
		"total_actions", c.totalActions.Load())
	slog.Info("press ENTER to resume all targets")
	if c.onPause != nil {
		c.onPause(pausedBy)
	}

	var autoCh <-chan time.Time
	if c.autoResume {
		timer := time.NewTimer(c.autoResumeTimeout)
		defer timer.Stop()
		autoCh = timer.C
	}

	select {
	case <-ctx.Done():
		c.pause.Release()
		return
	case <-c.resumeCh:
		slog.Info("operator resume received")
	case <-autoCh:
		slog.Info("auto-resume timeout reached, resuming", "timeout", c.autoResumeTimeout)
	}

	c.resumeAll()
}

// resumeAll clears pause and acting state on every current target before the
// gate lifts, so the first post-resume scans see a fully resumed set.
func (c *Coordinator) resumeAll() {
	targets := c.registry.Targets()
	for _, t := range targets {
		t.SetPaused(false)
		t.ClearActing()
	}
	c.pause.Release()

	var total int64
	for _, t := range targets {
		total += t.ActionCount()
	}
	c.totalActions.Store(total)
	slog.Info("all targets resumed", "targets", len(targets), "total_actions", total)
	if c.onResume != nil {
		c.onResume(len(targets), total)
	}
}
