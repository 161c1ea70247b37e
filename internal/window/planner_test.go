package window

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TestPlan_SplitsAndClamps verifies window sizing, full coverage, and the
// short final window.
func TestPlan_SplitsAndClamps(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		windowDays int
		wantDays   []int
	}{
		{
			name:  "exact_multiple",
			start: day(2025, 1, 1), end: day(2025, 1, 29),
			windowDays: 14,
			wantDays:   []int{14, 14},
		},
		{
			name:  "remainder_clamped",
			start: day(2025, 1, 1), end: day(2025, 2, 10), // 40 days
			windowDays: 14,
			wantDays:   []int{14, 14, 12},
		},
		{
			name:  "range_smaller_than_window",
			start: day(2025, 3, 1), end: day(2025, 3, 4),
			windowDays: 30,
			wantDays:   []int{3},
		},
		{
			name:  "single_day",
			start: day(2025, 3, 1), end: day(2025, 3, 2),
			windowDays: 1,
			wantDays:   []int{1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Plan(tc.start, tc.end, tc.windowDays, OldestFirst)
			if err != nil {
				t.Fatalf("Plan() err=%v", err)
			}
			if len(got) != len(tc.wantDays) {
				t.Fatalf("Plan() len=%d, want %d (%v)", len(got), len(tc.wantDays), got)
			}

			// Contiguous coverage: first window starts at start, each window
			// begins where the previous ended, last window ends at end.
			if !got[0].Start.Equal(tc.start) {
				t.Fatalf("first window starts %s, want %s", got[0].Start, tc.start)
			}
			for i, w := range got {
				if wd := int(w.End.Sub(w.Start).Hours() / 24); wd != tc.wantDays[i] {
					t.Fatalf("window[%d]=%s spans %d days, want %d", i, w, wd, tc.wantDays[i])
				}
				if i > 0 && !w.Start.Equal(got[i-1].End) {
					t.Fatalf("gap between window[%d] and window[%d]: %s vs %s", i-1, i, got[i-1].End, w.Start)
				}
			}
			if !got[len(got)-1].End.Equal(tc.end) {
				t.Fatalf("last window ends %s, want %s", got[len(got)-1].End, tc.end)
			}
		})
	}
}

// TestPlan_Order verifies NewestFirst reverses processing order but keeps the
// same window boundaries.
func TestPlan_Order(t *testing.T) {
	start, end := day(2025, 1, 1), day(2025, 2, 10)

	oldest, err := Plan(start, end, 14, OldestFirst)
	if err != nil {
		t.Fatalf("Plan(OldestFirst) err=%v", err)
	}
	newest, err := Plan(start, end, 14, NewestFirst)
	if err != nil {
		t.Fatalf("Plan(NewestFirst) err=%v", err)
	}

	if len(oldest) != len(newest) {
		t.Fatalf("window counts differ: %d vs %d", len(oldest), len(newest))
	}
	for i := range oldest {
		j := len(newest) - 1 - i
		if !oldest[i].Start.Equal(newest[j].Start) || !oldest[i].End.Equal(newest[j].End) {
			t.Fatalf("window boundaries differ: oldest[%d]=%s newest[%d]=%s", i, oldest[i], j, newest[j])
		}
	}
	if !oldest[0].Start.Equal(start) {
		t.Fatalf("oldest-first should begin at range start")
	}
	if !newest[0].End.Equal(end) {
		t.Fatalf("newest-first should begin with the window touching range end")
	}
}

// TestPlan_Errors verifies invalid inputs are rejected rather than producing
// zero or runaway window lists.
func TestPlan_Errors(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		windowDays int
	}{
		{name: "zero_window", start: day(2025, 1, 1), end: day(2025, 1, 2), windowDays: 0},
		{name: "negative_window", start: day(2025, 1, 1), end: day(2025, 1, 2), windowDays: -3},
		{name: "start_equals_end", start: day(2025, 1, 1), end: day(2025, 1, 1), windowDays: 7},
		{name: "start_after_end", start: day(2025, 2, 1), end: day(2025, 1, 1), windowDays: 7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Plan(tc.start, tc.end, tc.windowDays, OldestFirst); err == nil {
				t.Fatalf("Plan() err=nil, want error")
			}
		})
	}
}

func TestWindowString(t *testing.T) {
	w := Window{Start: day(2025, 1, 1), End: day(2025, 1, 15)}
	want := "2025-01-01..2025-01-15"
	if got := w.String(); got != want {
		t.Fatalf("String()=%q, want %q", got, want)
	}
}
