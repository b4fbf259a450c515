package sniper

import "testing"

func TestDisplayName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.pathofexile.com/trade/search/Standard/abc123/live", "Standard/abc123"},
		{"https://www.pathofexile.com/trade/search/Hardcore%20Settlers/xyz789/live", "Hardcore%20Settlers/xyz789"},
		{"https://example.com/something", "something"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.url); got != tt.want {
			t.Fatalf("DisplayName(%q) = %q; want %q", tt.url, got, tt.want)
		}
	}
}

func TestTryBeginActMutualExclusion(t *testing.T) {
	target := NewTarget(1, "TAB1", "https://www.pathofexile.com/trade/search/Standard/abc123/live")

	if !target.TryBeginAct() {
		t.Fatal("first TryBeginAct() = false; want true")
	}
	if target.TryBeginAct() {
		t.Fatal("second TryBeginAct() = true while acting; want false")
	}
	target.ClearActing()
	if !target.TryBeginAct() {
		t.Fatal("TryBeginAct() after ClearActing() = false; want true")
	}
}

func TestMarkProcessedIsSticky(t *testing.T) {
	target := NewTarget(1, "TAB1", "https://www.pathofexile.com/trade/search/Standard/abc123/live")

	if target.IsProcessed("row-1") {
		t.Fatal("IsProcessed() = true before marking")
	}
	target.MarkProcessed("row-1")
	if !target.IsProcessed("row-1") {
		t.Fatal("IsProcessed() = false after marking")
	}
	target.MarkProcessed("row-1")
	if !target.IsProcessed("row-1") {
		t.Fatal("repeat marking must stay processed")
	}
}

func TestStatusSnapshot(t *testing.T) {
	target := NewTarget(3, "TAB3", "https://www.pathofexile.com/trade/search/Standard/abc123/live")
	target.IncrementActions()
	target.IncrementActions()
	target.SetPaused(true)

	st := target.Status()
	if st.Num != 3 || st.ID != "TAB3" || st.Name != "Standard/abc123" {
		t.Fatalf("Status() identity = %+v", st)
	}
	if !st.Paused || st.Actions != 2 {
		t.Fatalf("Status() state = %+v; want paused with 2 actions", st)
	}
}
