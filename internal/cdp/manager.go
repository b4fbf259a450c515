package cdp

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State describes the connection to the browser. Owned exclusively by the
// Manager; every other component reacts to transitions instead of probing.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// PageInfo describes an open page target on the browser.
type PageInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

// Manager owns the browser-level CDP connection. It detects unexpected loss
// via the transport read loop, retries reconnection on a fixed interval
// forever (the operator is expected to restore the debugging link eventually),
// and notifies registered handlers on each transition so dependents can
// suspend and rebuild their state.
type Manager struct {
	cdpURL        string
	retryInterval time.Duration
	evalTimeout   time.Duration

	mu       sync.Mutex
	w        *wire
	state    State
	sessions []*PageSession
	closed   bool

	onDown func()
	onUp   func()

	done chan struct{}
}

func NewManager(cdpURL string, retryInterval, evalTimeout time.Duration) *Manager {
	return &Manager{
		cdpURL:        cdpURL,
		retryInterval: retryInterval,
		evalTimeout:   evalTimeout,
		done:          make(chan struct{}),
	}
}

// OnTransition registers the single pair of transition handlers. Must be
// called before Connect; down fires when the link drops, up fires after every
// successful reconnect (not after the initial Connect).
func (m *Manager) OnTransition(down, up func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDown = down
	m.onUp = up
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect performs a single connection attempt. A failure here is the
// caller's fatal-at-startup condition; automatic retry only covers links
// that were established once and then lost.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) error {
	if m.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}
	if m.w != nil {
		return nil
	}

	slog.Info("cdp connect start", "cdp_url", m.cdpURL)
	w := newWire(m.cdpURL, m.handleDown)
	if err := w.connect(ctx); err != nil {
		return newError(CodeCDPUnavailable, "connect to browser failed", err)
	}

	m.w = w
	m.state = StateConnected
	slog.Info("cdp connect ok", "cdp_url", m.cdpURL)
	return nil
}

// handleDown runs once per wire when its read loop exits.
func (m *Manager) handleDown(cause error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.w = nil
	sessions := m.sessions
	m.sessions = nil
	down := m.onDown
	m.mu.Unlock()

	slog.Warn("cdp connection lost", "error", cause)
	for _, s := range sessions {
		s.Invalidate()
	}
	if down != nil {
		down()
	}

	go m.retryLoop()
}

// retryLoop attempts reconnection every retryInterval until it succeeds or
// the manager is closed. It never gives up on its own.
func (m *Manager) retryLoop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	m.mu.Unlock()

	ticker := time.NewTicker(m.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.retryInterval)
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			cancel()
			return
		}
		err := m.connectLocked(ctx)
		up := m.onUp
		m.mu.Unlock()
		cancel()

		if err != nil {
			slog.Info("cdp reconnect attempt failed", "error", err)
			continue
		}

		slog.Info("cdp reconnected", "cdp_url", m.cdpURL)
		if up != nil {
			up()
		}
		return
	}
}

// ListPages enumerates currently open page targets.
func (m *Manager) ListPages(ctx context.Context) ([]PageInfo, error) {
	m.mu.Lock()
	w := m.w
	m.mu.Unlock()
	if w == nil {
		return nil, newError(CodeCDPUnavailable, "not connected", nil)
	}

	targets, err := w.listTargets(ctx)
	if err != nil {
		return nil, newError(CodeCDPUnavailable, "failed to list targets", err)
	}

	pages := make([]PageInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		pages = append(pages, PageInfo{TargetID: string(t.TargetID), URL: t.URL, Title: t.Title})
	}
	return pages, nil
}

// AttachPage attaches a flat session to the given page target and issues a
// PageSession reference. The Manager keeps ownership: issued sessions are
// invalidated in bulk when the connection drops.
func (m *Manager) AttachPage(ctx context.Context, targetID string) (*PageSession, error) {
	m.mu.Lock()
	w := m.w
	m.mu.Unlock()
	if w == nil {
		return nil, newError(CodeCDPUnavailable, "not connected", nil)
	}

	sessionID, err := w.attachToTarget(ctx, targetID)
	if err != nil {
		return nil, newError(CodeCDPUnavailable, "attach to target failed", err)
	}

	session := &PageSession{
		wire:        w,
		targetID:    targetID,
		evalTimeout: m.evalTimeout,
		sessionID:   sessionID,
	}

	m.mu.Lock()
	if m.w != w {
		// Connection dropped while attaching.
		m.mu.Unlock()
		session.Invalidate()
		return nil, newError(CodeCDPUnavailable, "connection lost during attach", nil)
	}
	m.sessions = append(m.sessions, session)
	m.mu.Unlock()

	slog.Debug("cdp session attached", "target_id", targetID, "session_id", sessionID)
	return session, nil
}

// ReleaseSession detaches a single session and forgets it.
func (m *Manager) ReleaseSession(s *PageSession) {
	if s == nil {
		return
	}
	s.Detach()
	m.mu.Lock()
	for i, held := range m.sessions {
		if held == s {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
}

// Close releases all sessions and the browser connection without closing the
// browser process; the authenticated session stays usable manually.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	w := m.w
	m.w = nil
	sessions := m.sessions
	m.sessions = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	for _, s := range sessions {
		if w != nil {
			s.Detach()
		} else {
			s.Invalidate()
		}
	}
	if w != nil {
		w.close()
	}
	slog.Info("cdp connection released")
	return nil
}
