package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"datasync/internal/source"
	"datasync/internal/storage"
	_ "datasync/internal/storage/sqlite"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	store, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("storage.New() err=%v", err)
	}
	t.Cleanup(store.Close)

	led := New(store, nil)
	if err := led.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() err=%v", err)
	}
	return led
}

func TestRunLifecycle(t *testing.T) {
	led := openLedger(t)
	ctx := context.Background()

	started := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	led.now = func() time.Time { return started }

	runID, err := led.BeginRun(ctx, source.Shopify, "daily",
		time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BeginRun() err=%v", err)
	}
	if runID == "" {
		t.Fatalf("BeginRun() returned empty run id")
	}

	runs, err := led.RecentRuns(ctx, 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentRuns()=%v,%v want 1 row", runs, err)
	}
	if runs[0].Status != StatusRunning {
		t.Fatalf("fresh run status=%s, want running", runs[0].Status)
	}

	led.now = func() time.Time { return started.Add(90 * time.Second) }
	led.FinalizeRun(ctx, runID, RunResult{
		Status:           StatusPartial,
		WindowsProcessed: 3,
		WindowsFailed:    1,
		Saved:            120,
		Updated:          4,
		Rejected:         2,
		WindowErrors:     []WindowError{{Window: "2025-06-13..2025-06-14", Error: "rate_limited: slow down"}},
		Duration:         90 * time.Second,
	})

	runs, err = led.RecentRuns(ctx, 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentRuns()=%v,%v", runs, err)
	}
	got := runs[0]
	if got.Status != StatusPartial || got.WindowsProcessed != 3 || got.WindowsFailed != 1 {
		t.Fatalf("finalized run=%+v", got)
	}
	if got.Saved != 120 || got.Updated != 4 || got.Rejected != 2 {
		t.Fatalf("record counts=%d/%d/%d", got.Saved, got.Updated, got.Rejected)
	}
	if got.Duration != 90*time.Second {
		t.Fatalf("duration=%s, want 90s", got.Duration)
	}

	// A second finalize is a no-op: the update is guarded on status=running.
	led.FinalizeRun(ctx, runID, RunResult{Status: StatusFailed})
	runs, _ = led.RecentRuns(ctx, 10)
	if runs[0].Status != StatusPartial {
		t.Fatalf("duplicate finalize overwrote status: %s", runs[0].Status)
	}
}

func TestRecentRuns_NewestFirstAndLimited(t *testing.T) {
	led := openLedger(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		started := base.Add(time.Duration(i) * time.Hour)
		led.now = func() time.Time { return started }
		id, err := led.BeginRun(ctx, source.GA4, "daily", time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("BeginRun() err=%v", err)
		}
		ids = append(ids, id)
	}

	runs, err := led.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns() err=%v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs=%d, want 2 (limit)", len(runs))
	}
	if runs[0].RunID != ids[2] || runs[1].RunID != ids[1] {
		t.Fatalf("order=%s,%s want newest first", runs[0].RunID, runs[1].RunID)
	}
}

func TestRecentRuns_SubsecondStartsOrderCorrectly(t *testing.T) {
	led := openLedger(t)
	ctx := context.Background()

	// Fan-out starts runs within the same wall-clock second; ordering must not
	// depend on whether the timestamp happens to have a zero fraction.
	whole := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	led.now = func() time.Time { return whole }
	first, err := led.BeginRun(ctx, source.Shopify, "daily", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("BeginRun() err=%v", err)
	}
	led.now = func() time.Time { return whole.Add(500 * time.Millisecond) }
	second, err := led.BeginRun(ctx, source.Klaviyo, "daily", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("BeginRun() err=%v", err)
	}

	runs, err := led.RecentRuns(ctx, 10)
	if err != nil || len(runs) != 2 {
		t.Fatalf("RecentRuns()=%v,%v want 2", runs, err)
	}
	if runs[0].RunID != second || runs[1].RunID != first {
		t.Fatalf("order=%s,%s want the later (fractional) start first", runs[0].RunID, runs[1].RunID)
	}
}

func TestRecordValidationFailures_TruncatesAndPrunes(t *testing.T) {
	led := openLedger(t)
	ctx := context.Background()

	oldTime := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	led.now = func() time.Time { return oldTime }
	led.RecordValidationFailures(ctx, "run-1", source.Klaviyo, []Failure{
		{Entity: "email_campaigns", NaturalKey: "c1", Field: "send_time", Reason: "missing required field",
			Payload: strings.Repeat("x", 5000)},
	})

	recent := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	led.now = func() time.Time { return recent }
	led.RecordValidationFailures(ctx, "run-2", source.Klaviyo, []Failure{
		{Entity: "email_flows", NaturalKey: "f1", Reason: "negative metric"},
	})

	rows, err := led.store.SelectRows(ctx, failuresSpec.Table, []string{"natural_key", "payload_excerpt"}, nil, "created_at", 0)
	if err != nil || len(rows) != 2 {
		t.Fatalf("failures=%v,%v want 2", rows, err)
	}
	if got := len(asString(rows[0][1])); got != payloadExcerptMax {
		t.Fatalf("payload excerpt len=%d, want %d", got, payloadExcerptMax)
	}

	n, err := led.PruneValidationFailures(ctx, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || n != 1 {
		t.Fatalf("PruneValidationFailures()=%d,%v want 1", n, err)
	}
	rows, _ = led.store.SelectRows(ctx, failuresSpec.Table, []string{"natural_key"}, nil, "", 0)
	if len(rows) != 1 || asString(rows[0][0]) != "f1" {
		t.Fatalf("surviving failures=%v, want only f1", rows)
	}
}

func TestPruneRuns(t *testing.T) {
	led := openLedger(t)
	ctx := context.Background()

	led.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := led.BeginRun(ctx, source.Shopify, "daily", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("BeginRun() err=%v", err)
	}
	led.now = func() time.Time { return time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC) }
	if _, err := led.BeginRun(ctx, source.Shopify, "daily", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("BeginRun() err=%v", err)
	}

	n, err := led.PruneRuns(ctx, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || n != 1 {
		t.Fatalf("PruneRuns()=%d,%v want 1", n, err)
	}
}

func TestUpdateSourceStatus_UpsertsPerSource(t *testing.T) {
	led := openLedger(t)
	ctx := context.Background()
	led.now = func() time.Time { return time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC) }

	led.UpdateSourceStatus(ctx, source.Shopify, "r1", StatusSuccess, 0)
	led.UpdateSourceStatus(ctx, source.GoogleAds, "r2", StatusFailed, 6)
	// Second run for the same source replaces the row.
	led.UpdateSourceStatus(ctx, source.Shopify, "r3", StatusPartial, 1)

	statuses, err := led.SourceStatuses(ctx)
	if err != nil {
		t.Fatalf("SourceStatuses() err=%v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses=%d, want 2", len(statuses))
	}

	byName := map[string]SourceStatus{}
	for _, s := range statuses {
		byName[s.Source] = s
	}
	shop := byName["shopify"]
	if shop.LastRunID != "r3" || shop.LastStatus != StatusPartial || shop.HealthScore != 80 || !shop.Healthy {
		t.Fatalf("shopify status=%+v", shop)
	}
	ads := byName["google_ads"]
	if ads.HealthScore != 0 || ads.Healthy {
		t.Fatalf("google_ads status=%+v, want unhealthy 0", ads)
	}
}

func TestHealthScore(t *testing.T) {
	tests := []struct {
		status      string
		errors      int
		wantScore   int
		wantHealthy bool
	}{
		{StatusSuccess, 0, 100, true},
		{StatusPartial, 2, 80, true},
		{StatusFailed, 0, 100, true},
		{StatusFailed, 1, 80, true},
		{StatusFailed, 2, 60, true},
		{StatusFailed, 3, 30, false},
		{StatusFailed, 4, 30, false},
		{StatusFailed, 5, 0, false},
		{StatusFailed, 9, 0, false},
	}
	for _, tc := range tests {
		score, healthy := healthScore(tc.status, tc.errors)
		if score != tc.wantScore || healthy != tc.wantHealthy {
			t.Errorf("healthScore(%s, %d)=%d,%v want %d,%v",
				tc.status, tc.errors, score, healthy, tc.wantScore, tc.wantHealthy)
		}
	}
}
