package sniper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// page is the observable surface of one monitored tab. Implemented over a CDP
// page session in production and faked in tests.
type page interface {
	// Candidates enumerates actionable elements in rendered list order.
	Candidates(ctx context.Context) ([]Candidate, error)
	// Click performs a trusted click at page coordinates.
	Click(ctx context.Context, x, y float64) error
	// WatchMutations installs a structural-change observer on the result
	// list; notify must be safe to call from any goroutine.
	WatchMutations(ctx context.Context, notify func()) error
	// Screenshot captures the page for the action evidence trail.
	Screenshot(ctx context.Context) ([]byte, error)
	// Detach releases the observer and the session without closing the tab.
	Detach()
}

// Monitor drives scan-and-act for a single Target. Both triggers, the fixed
// period timer and the page's mutation notification, funnel into the same
// procedure, which is reentrancy-guarded by the Target's isActing flag.
type Monitor struct {
	target *Target
	page   page
	gate   *Gate
	pause  *PauseState

	scanInterval time.Duration
	now          func() time.Time

	// onAction fires after a successful action, while the target is paused.
	onAction func(t *Target, c Candidate)
	// onDead fires when the page itself fails; the registry removes the
	// target and no other target is affected.
	onDead func(t *Target, err error)

	notifyCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

func NewMonitor(target *Target, pg page, gate *Gate, pause *PauseState, scanInterval time.Duration) *Monitor {
	return &Monitor{
		target:       target,
		page:         pg,
		gate:         gate,
		pause:        pause,
		scanInterval: scanInterval,
		now:          time.Now,
		notifyCh:     make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

func (m *Monitor) OnAction(fn func(t *Target, c Candidate)) { m.onAction = fn }
func (m *Monitor) OnDead(fn func(t *Target, err error))     { m.onDead = fn }

func (m *Monitor) Target() *Target { return m.target }

// Start installs the mutation observer and begins the scan loop. An observer
// install failure is logged, not fatal: the timer trigger still covers the
// tab, just with higher latency.
func (m *Monitor) Start(ctx context.Context) {
	if err := m.page.WatchMutations(ctx, m.Notify); err != nil {
		slog.Warn("mutation observer install failed, timer-only monitoring",
			"target", m.target.Name, "error", err)
	}

	m.started.Store(true)
	go m.loop(ctx)
	slog.Info("monitoring started", "num", m.target.Num, "target", m.target.Name, "url", m.target.URL)
}

// Notify signals a structural change on the result list. Signals coalesce:
// at most one scan is queued at a time.
func (m *Monitor) Notify() {
	select {
	case m.notifyCh <- struct{}{}:
	default:
	}
}

// Stop flips the target off, releases the observer and detaches the session.
// Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.target.SetRunning(false)
		close(m.stopCh)
		if m.started.Load() {
			<-m.doneCh
		}
		m.page.Detach()
		slog.Info("monitoring stopped", "num", m.target.Num, "target", m.target.Name)
	})
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.target.SetRunning(false)
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
		case <-m.notifyCh:
		}
		m.ScanAndAct(ctx)
	}
}

// ScanAndAct performs one scan pass: enumerate candidates top to bottom,
// filter, and act on at most one. Pausing happens before the click so no
// second action can race in before the pause takes effect.
func (m *Monitor) ScanAndAct(ctx context.Context) {
	t := m.target
	if !t.Running() {
		return
	}
	if m.pause != nil && m.pause.Held() {
		return
	}
	if t.Paused() {
		return
	}
	if !m.gate.Allow(t.LastAction()) {
		return
	}
	if !t.TryBeginAct() {
		return
	}
	defer t.ClearActing()

	candidates, err := m.page.Candidates(ctx)
	if err != nil {
		m.reportDead(err)
		return
	}

	for _, c := range candidates {
		if t.IsProcessed(c.Key) {
			continue
		}
		switch Evaluate(c) {
		case SkipPermanently:
			t.MarkProcessed(c.Key)
			slog.Debug("candidate skipped", "target", t.Name, "key", c.Key, "row", c.RowText)
		case SkipForNow:
			continue
		case Act:
			t.MarkProcessed(c.Key)
			t.SetLastAction(m.now())
			t.SetPaused(true)

			if err := m.page.Click(ctx, c.X, c.Y); err != nil {
				slog.Error("action click failed", "target", t.Name, "key", c.Key, "error", err)
				m.reportDead(err)
				return
			}

			t.IncrementActions()
			slog.Info("action performed",
				"num", t.Num, "target", t.Name, "key", c.Key,
				"button", c.ButtonText, "actions", t.ActionCount())
			if m.onAction != nil {
				m.onAction(t, c)
			}
			return
		}
	}
}

func (m *Monitor) reportDead(err error) {
	// Only page-level failures kill the target; a cancelled context during
	// shutdown is not a target failure.
	if errors.Is(err, context.Canceled) {
		return
	}
	slog.Warn("target evaluation failed, removing", "num", m.target.Num, "target", m.target.Name, "error", err)
	m.target.SetRunning(false)
	if m.onDead != nil {
		// The hook removes this monitor through the registry, and Stop waits
		// for the scan loop to exit. reportDead runs on that loop, so the
		// hook must run off it or Stop would never return.
		go m.onDead(m.target, err)
	}
}
