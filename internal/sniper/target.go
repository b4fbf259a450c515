package sniper

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Target represents one monitored live search tab. The page session behind it
// is owned by the connection manager; the Target only holds per-tab monitoring
// state.
type Target struct {
	ID   string
	Name string
	URL  string
	Num  int // discovery-order number, display only

	running  atomic.Bool
	paused   atomic.Bool
	isActing atomic.Bool

	actionCount atomic.Int64

	mu             sync.Mutex
	lastActionTime time.Time
	processed      map[string]struct{}
}

func NewTarget(num int, targetID, url string) *Target {
	t := &Target{
		ID:        targetID,
		Name:      DisplayName(url),
		URL:       url,
		Num:       num,
		processed: map[string]struct{}{},
	}
	t.running.Store(true)
	return t
}

func (t *Target) Running() bool       { return t.running.Load() }
func (t *Target) SetRunning(v bool)   { t.running.Store(v) }
func (t *Target) Paused() bool        { return t.paused.Load() }
func (t *Target) SetPaused(v bool)    { t.paused.Store(v) }
func (t *Target) ActionCount() int64  { return t.actionCount.Load() }
func (t *Target) IncrementActions()   { t.actionCount.Add(1) }
func (t *Target) ClearActing()        { t.isActing.Store(false) }

// TryBeginAct claims the scan-and-act mutual exclusion flag. A caller that
// fails to claim it must treat the whole invocation as a no-op.
func (t *Target) TryBeginAct() bool { return t.isActing.CompareAndSwap(false, true) }

func (t *Target) LastAction() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActionTime
}

func (t *Target) SetLastAction(ts time.Time) {
	t.mu.Lock()
	t.lastActionTime = ts
	t.mu.Unlock()
}

// MarkProcessed records a candidate key so it is never evaluated again.
func (t *Target) MarkProcessed(key string) {
	t.mu.Lock()
	t.processed[key] = struct{}{}
	t.mu.Unlock()
}

func (t *Target) IsProcessed(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.processed[key]
	return ok
}

// TargetStatus is the externally visible snapshot of a Target.
type TargetStatus struct {
	Num     int    `json:"num"`
	ID      string `json:"target_id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Paused  bool   `json:"paused"`
	Actions int64  `json:"actions"`
}

func (t *Target) Status() TargetStatus {
	return TargetStatus{
		Num:     t.Num,
		ID:      t.ID,
		Name:    t.Name,
		URL:     t.URL,
		Paused:  t.Paused(),
		Actions: t.ActionCount(),
	}
}

// DisplayName derives a short label from a live search URL: the league and
// search id segments, e.g. ".../trade/search/Standard/abc123/live" becomes
// "Standard/abc123".
func DisplayName(url string) string {
	parts := strings.Split(strings.Trim(url, "/"), "/")
	for i, p := range parts {
		if p == "search" && i+2 < len(parts) {
			return parts[i+1] + "/" + parts[i+2]
		}
	}
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return url
}
