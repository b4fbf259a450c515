package sniper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLister struct {
	mu    sync.Mutex
	pages []pageInfo
	err   error
}

func (l *fakeLister) listPages(ctx context.Context) ([]pageInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	out := make([]pageInfo, len(l.pages))
	copy(out, l.pages)
	return out, nil
}

func (l *fakeLister) setPages(pages []pageInfo) {
	l.mu.Lock()
	l.pages = pages
	l.mu.Unlock()
}

func livePageInfo(id, league, search string) pageInfo {
	return pageInfo{TargetID: id, URL: "https://www.pathofexile.com/trade/search/" + league + "/" + search + "/live"}
}

func testSpawn(pages map[string]*fakePage) monitorFactory {
	return func(ctx context.Context, info pageInfo, target *Target) (*Monitor, error) {
		pg := &fakePage{}
		if pages != nil {
			pages[info.TargetID] = pg
		}
		return NewMonitor(target, pg, NewGate(0), &PauseState{}, time.Hour), nil
	}
}

func TestMatchesLiveSearch(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.pathofexile.com/trade/search/Standard/abc123/live", true},
		{"https://WWW.PATHOFEXILE.COM/TRADE/search/Standard/abc123/LIVE", true},
		{"https://www.pathofexile.com/trade/search/Standard/abc123", false},
		{"https://www.pathofexile.com/forum/live", false},
		{"https://example.com/trade/live", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := MatchesLiveSearch(tt.url); got != tt.want {
			t.Fatalf("MatchesLiveSearch(%q) = %v; want %v", tt.url, got, tt.want)
		}
	}
}

func TestDiscoverAddsMatchingPages(t *testing.T) {
	lister := &fakeLister{pages: []pageInfo{
		livePageInfo("TAB1", "Standard", "aaa"),
		livePageInfo("TAB2", "Standard", "bbb"),
		{TargetID: "TAB3", URL: "https://www.google.com"},
	}}
	r := NewRegistry(lister, testSpawn(nil))

	added, removed := r.Discover(context.Background())
	if added != 2 || removed != 0 {
		t.Fatalf("Discover() = %d added, %d removed; want 2, 0", added, removed)
	}
	if r.Count() != 2 {
		t.Fatalf("Count() = %d; want 2", r.Count())
	}

	// A second identical cycle converges to no changes.
	added, removed = r.Discover(context.Background())
	if added != 0 || removed != 0 {
		t.Fatalf("second Discover() = %d added, %d removed; want 0, 0", added, removed)
	}
}

func TestDiscoverPicksUpLaterPages(t *testing.T) {
	lister := &fakeLister{pages: []pageInfo{livePageInfo("TAB1", "Standard", "aaa")}}
	r := NewRegistry(lister, testSpawn(nil))

	r.Discover(context.Background())
	if r.Count() != 1 {
		t.Fatalf("Count() = %d; want 1", r.Count())
	}

	lister.setPages([]pageInfo{
		livePageInfo("TAB1", "Standard", "aaa"),
		livePageInfo("TAB2", "Standard", "bbb"),
	})
	added, _ := r.Discover(context.Background())
	if added != 1 || r.Count() != 2 {
		t.Fatalf("added = %d, Count() = %d; want 1, 2", added, r.Count())
	}

	// New target gets the next number, existing numbering is stable.
	targets := r.Targets()
	if targets[0].Num != 1 || targets[1].Num != 2 {
		t.Fatalf("target numbering = %d, %d; want 1, 2", targets[0].Num, targets[1].Num)
	}
}

func TestDiscoverRemovesClosedPages(t *testing.T) {
	pages := make(map[string]*fakePage)
	lister := &fakeLister{pages: []pageInfo{
		livePageInfo("TAB1", "Standard", "aaa"),
		livePageInfo("TAB2", "Standard", "bbb"),
	}}
	r := NewRegistry(lister, testSpawn(pages))
	r.Discover(context.Background())

	lister.setPages([]pageInfo{livePageInfo("TAB2", "Standard", "bbb")})
	added, removed := r.Discover(context.Background())
	if added != 0 || removed != 1 {
		t.Fatalf("Discover() = %d added, %d removed; want 0, 1", added, removed)
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d; want 1", r.Count())
	}
	if !pages["TAB1"].detached {
		t.Fatal("removed target's page was not detached")
	}
}

func TestDiscoverEnumerationFailureIsNonFatal(t *testing.T) {
	lister := &fakeLister{pages: []pageInfo{livePageInfo("TAB1", "Standard", "aaa")}}
	r := NewRegistry(lister, testSpawn(nil))
	r.Discover(context.Background())

	lister.mu.Lock()
	lister.err = errors.New("browser busy")
	lister.mu.Unlock()

	added, removed := r.Discover(context.Background())
	if added != 0 || removed != 0 {
		t.Fatalf("failed cycle changed the set: %d added, %d removed", added, removed)
	}
	if r.Count() != 1 {
		t.Fatal("failed enumeration must keep existing targets")
	}
}

func TestFailingTargetIsRemovedAndDetached(t *testing.T) {
	pages := make(map[string]*fakePage)
	lister := &fakeLister{pages: []pageInfo{livePageInfo("TAB1", "Standard", "aaa")}}

	// Wired the way the service wires it: the dead-target hook removes the
	// target through the registry, which stops the monitor.
	var r *Registry
	spawn := func(ctx context.Context, info pageInfo, target *Target) (*Monitor, error) {
		pg := &fakePage{candidatesErr: errors.New("evaluation failed")}
		pages[info.TargetID] = pg
		m := NewMonitor(target, pg, NewGate(0), &PauseState{}, time.Hour)
		m.OnDead(func(dead *Target, err error) { r.Remove(dead.ID) })
		m.Start(ctx)
		return m, nil
	}
	r = NewRegistry(lister, spawn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Discover(ctx)
	if r.Count() != 1 {
		t.Fatalf("Count() = %d; want 1", r.Count())
	}

	pages["TAB1"].notify()

	waitFor(t, "failing target removal", func() bool {
		return r.Count() == 0 && pages["TAB1"].isDetached()
	})
}

func TestFailedAttachDoesNotBurnDisplayNumber(t *testing.T) {
	lister := &fakeLister{pages: []pageInfo{
		livePageInfo("BAD", "Standard", "aaa"),
		livePageInfo("TAB1", "Standard", "bbb"),
	}}
	failing := map[string]bool{"BAD": true}
	spawn := func(ctx context.Context, info pageInfo, target *Target) (*Monitor, error) {
		if failing[info.TargetID] {
			return nil, errors.New("attach refused")
		}
		return NewMonitor(target, &fakePage{}, NewGate(0), &PauseState{}, time.Hour), nil
	}
	r := NewRegistry(lister, spawn)

	added, _ := r.Discover(context.Background())
	if added != 1 {
		t.Fatalf("added = %d; want 1", added)
	}
	if got := r.Targets()[0].Num; got != 1 {
		t.Fatalf("first successful target numbered %d; want 1", got)
	}

	// The previously failing page attaches on a later cycle and takes the
	// next number without a gap.
	delete(failing, "BAD")
	r.Discover(context.Background())
	for _, target := range r.Targets() {
		if target.ID == "BAD" && target.Num != 2 {
			t.Fatalf("retried target numbered %d; want 2", target.Num)
		}
	}
	if r.Count() != 2 {
		t.Fatalf("Count() = %d; want 2", r.Count())
	}
}

func TestRemoveDropsOnlyOneTarget(t *testing.T) {
	pages := make(map[string]*fakePage)
	lister := &fakeLister{pages: []pageInfo{
		livePageInfo("TAB1", "Standard", "aaa"),
		livePageInfo("TAB2", "Standard", "bbb"),
	}}
	r := NewRegistry(lister, testSpawn(pages))
	r.Discover(context.Background())

	r.Remove("TAB1")
	if r.Count() != 1 {
		t.Fatalf("Count() = %d; want 1", r.Count())
	}
	if !pages["TAB1"].detached {
		t.Fatal("removed page not detached")
	}
	if pages["TAB2"].detached {
		t.Fatal("unrelated page was detached")
	}
}

func TestClearStopsEverything(t *testing.T) {
	pages := make(map[string]*fakePage)
	lister := &fakeLister{pages: []pageInfo{
		livePageInfo("TAB1", "Standard", "aaa"),
		livePageInfo("TAB2", "Standard", "bbb"),
	}}
	r := NewRegistry(lister, testSpawn(pages))
	r.Discover(context.Background())

	r.Clear()
	if r.Count() != 0 {
		t.Fatalf("Count() = %d after Clear(); want 0", r.Count())
	}
	for id, pg := range pages {
		if !pg.detached {
			t.Fatalf("page %s not detached after Clear()", id)
		}
	}
}
