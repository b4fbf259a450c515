package sniper

import "strings"

// Candidate describes one actionable element of a live search result list.
// Candidates arrive in rendered top-to-bottom order; Key is a stable row
// identity used to mark rows processed across repeated scans.
type Candidate struct {
	Key        string  `json:"key"`
	ButtonText string  `json:"button_text"`
	RowText    string  `json:"row_text"`
	Disabled   bool    `json:"disabled"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// Decision is the Action Filter verdict for a single candidate.
type Decision int

const (
	// Act means the candidate is eligible and should be clicked now.
	Act Decision = iota
	// SkipPermanently means the candidate is never re-evaluated again.
	SkipPermanently
	// SkipForNow means the candidate is left unmarked and re-evaluated on a
	// later scan (e.g. a row that has not finished rendering).
	SkipForNow
)

func (d Decision) String() string {
	switch d {
	case Act:
		return "act"
	case SkipPermanently:
		return "skip-permanently"
	default:
		return "skip-for-now"
	}
}

// staleMarkers are row-context substrings indicating the underlying listing
// is no longer available. Matching is case-insensitive.
var staleMarkers = []string{
	"gone",
	"sold",
	"unavailable",
	"expired",
	"outdated",
	"no longer",
}

// Evaluate is the pure Action Filter: given a candidate's text and context,
// decide whether to act on it, drop it for good, or look again later.
//
// Disabled buttons are skipped permanently, same as expired listings. A
// disabled-but-not-expired row might arguably deserve a retry after a UI
// refresh, but the observed behavior treats both the same.
func Evaluate(c Candidate) Decision {
	if c.X == 0 && c.Y == 0 {
		// Row exists in the DOM but has no layout yet.
		return SkipForNow
	}
	if c.Disabled {
		return SkipPermanently
	}
	haystack := strings.ToLower(c.RowText + " " + c.ButtonText)
	for _, marker := range staleMarkers {
		if strings.Contains(haystack, marker) {
			return SkipPermanently
		}
	}
	return Act
}
