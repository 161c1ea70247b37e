// Package window splits a requested date range into bounded fetch windows.
//
// The planner is a pure function of the range and configuration: it performs
// no I/O and holds no state, which keeps the coverage properties trivially
// testable.
package window

import (
	"fmt"
	"time"
)

// Window is a half-open date sub-range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the window length in whole days.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

func (w Window) String() string {
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}

// Order selects traversal order for a plan.
//
// Oldest-first preserves a contiguous synced prefix, which makes resuming an
// interrupted backfill well-defined. Newest-first minimizes staleness of the
// most useful data when a daily sync is interrupted.
type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

// Plan splits [start, end) into windows of at most windowDays days, covering
// the range exactly once with no gaps and no overlaps. The final (most recent)
// boundary window may be shorter.
//
// Windows are returned in traversal order: chronological for OldestFirst,
// reverse-chronological for NewestFirst. Reversal only changes iteration
// order; the boundaries are identical either way.
func Plan(start, end time.Time, windowDays int, order Order) ([]Window, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("window: window_days must be positive, got %d", windowDays)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("window: invalid range %s..%s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	step := time.Duration(windowDays) * 24 * time.Hour

	var out []Window
	for cur := start; cur.Before(end); {
		next := cur.Add(step)
		if next.After(end) {
			next = end
		}
		out = append(out, Window{Start: cur, End: next})
		cur = next
	}

	if order == NewestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}
