package sniper

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	baseDomainMarker = "pathofexile.com/trade"
	liveMarker       = "/live"
)

// MatchesLiveSearch is the fixed target predicate: a page qualifies iff its
// address carries both the base-domain marker and the live-path marker.
func MatchesLiveSearch(url string) bool {
	u := strings.ToLower(url)
	return strings.Contains(u, baseDomainMarker) && strings.Contains(u, liveMarker)
}

// pageInfo is the subset of browser target metadata discovery needs.
type pageInfo struct {
	TargetID string
	URL      string
}

// pageLister enumerates currently open browser pages.
type pageLister interface {
	listPages(ctx context.Context) ([]pageInfo, error)
}

// monitorFactory attaches a page session and builds a running monitor for a
// freshly discovered target. Supplied by the service.
type monitorFactory func(ctx context.Context, info pageInfo, target *Target) (*Monitor, error)

// Registry maintains the live set of monitored targets, keyed by target
// identity with an explicit removal pass per discovery cycle. Discovery order
// is preserved solely for display numbering.
type Registry struct {
	lister  pageLister
	spawn   monitorFactory
	nextNum int

	mu       sync.Mutex
	targets  map[string]*Target
	monitors map[string]*Monitor
	order    []string
}

func NewRegistry(lister pageLister, spawn monitorFactory) *Registry {
	return &Registry{
		lister:   lister,
		spawn:    spawn,
		nextNum:  1,
		targets:  make(map[string]*Target),
		monitors: make(map[string]*Monitor),
	}
}

// Discover runs one discovery cycle: enumerate open pages, add monitors for
// new matching pages, remove targets whose page has closed. Enumeration
// failure is non-fatal; the cycle is skipped and retried on the next cadence.
func (r *Registry) Discover(ctx context.Context) (added, removed int) {
	pages, err := r.lister.listPages(ctx)
	if err != nil {
		slog.Warn("page discovery failed, retrying next cycle", "error", err)
		return 0, 0
	}

	matching := make(map[string]pageInfo)
	for _, p := range pages {
		if MatchesLiveSearch(p.URL) {
			matching[p.TargetID] = p
		}
	}

	// Removal pass first: targets whose page closed.
	r.mu.Lock()
	var stale []*Monitor
	for id := range r.targets {
		if _, ok := matching[id]; !ok {
			stale = append(stale, r.monitors[id])
			r.dropLocked(id)
			removed++
		}
	}
	known := make(map[string]bool, len(r.targets))
	for id := range r.targets {
		known[id] = true
	}
	r.mu.Unlock()

	for _, m := range stale {
		if m != nil {
			m.Stop()
		}
	}

	// Addition pass: matching pages not yet registered.
	for id, info := range matching {
		if known[id] {
			continue
		}
		r.mu.Lock()
		num := r.nextNum
		r.mu.Unlock()

		target := NewTarget(num, info.TargetID, info.URL)
		monitor, err := r.spawn(ctx, info, target)
		if err != nil {
			slog.Warn("failed to attach target", "url", info.URL, "error", err)
			continue
		}

		// The display number is claimed only once the attach succeeded, so
		// failed attempts leave no gaps in operator-visible numbering.
		r.mu.Lock()
		r.nextNum++
		r.targets[id] = target
		r.monitors[id] = monitor
		r.order = append(r.order, id)
		r.mu.Unlock()
		added++
	}

	if added > 0 || removed > 0 {
		slog.Info("discovery cycle", "added", added, "removed", removed, "targets", r.Count())
	}
	return added, removed
}

func (r *Registry) dropLocked(id string) {
	delete(r.targets, id)
	delete(r.monitors, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Remove drops a single target, e.g. after a per-target evaluation error.
// No other target is affected.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	monitor := r.monitors[id]
	r.dropLocked(id)
	r.mu.Unlock()
	if monitor != nil {
		monitor.Stop()
	}
}

// Clear stops every monitor and empties the registry. Used on disconnect and
// shutdown; previous targets are never reused after a reconnect.
func (r *Registry) Clear() {
	r.mu.Lock()
	monitors := make([]*Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		monitors = append(monitors, m)
	}
	r.targets = make(map[string]*Target)
	r.monitors = make(map[string]*Monitor)
	r.order = nil
	r.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}

// Targets returns the live targets in discovery order.
func (r *Registry) Targets() []*Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Target, 0, len(r.order))
	for _, id := range r.order {
		if t, ok := r.targets[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}
