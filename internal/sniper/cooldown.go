package sniper

import "time"

// Gate is the per-target cooldown: it suppresses any action within the
// minimum interval of the previous action on that target.
type Gate struct {
	interval time.Duration
	now      func() time.Time
}

func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval, now: time.Now}
}

// Allow reports whether enough time has passed since the last action.
// A zero last-action time always passes.
func (g *Gate) Allow(last time.Time) bool {
	if last.IsZero() {
		return true
	}
	return g.now().Sub(last) >= g.interval
}

func (g *Gate) Interval() time.Duration { return g.interval }
