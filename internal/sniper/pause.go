package sniper

import (
	"sync"
	"sync/atomic"
)

// PauseState is the process-wide pause gate. Monitors check Held at the top
// of every scan; the coordinator engages it when any target pauses and
// releases it only after every target has been resumed, so resume is
// all-or-nothing from the perspective of subsequent scans.
type PauseState struct {
	held atomic.Bool

	mu           sync.Mutex
	pausedTarget string
	waiting      bool
}

func (p *PauseState) Held() bool { return p.held.Load() }

// Engage suspends all monitoring and records which target triggered it.
func (p *PauseState) Engage(targetID string) {
	p.mu.Lock()
	p.pausedTarget = targetID
	p.waiting = true
	p.mu.Unlock()
	p.held.Store(true)
}

// Release lifts the gate after every target has been resumed.
func (p *PauseState) Release() {
	p.held.Store(false)
	p.mu.Lock()
	p.pausedTarget = ""
	p.waiting = false
	p.mu.Unlock()
}

func (p *PauseState) Waiting() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting, p.pausedTarget
}
