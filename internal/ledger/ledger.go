// Package ledger records run metadata alongside the synced data: one row per
// sync run, one row per rejected record, and a rolling per-source health
// status. It shares the storage backend with the canonical tables so a single
// query can join "what was synced" with "how the sync went".
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"datasync/internal/canonical"
	"datasync/internal/source"
	"datasync/internal/storage"
)

// Run statuses. A run starts as running and is finalized exactly once.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Logger is the minimal logging dependency (satisfied by *log.Logger).
type Logger interface {
	Printf(format string, v ...any)
}

// payloadExcerptMax caps stored reject payloads. Full payloads can be huge
// (product descriptions); 1 KiB is enough to see what went wrong.
const payloadExcerptMax = 1024

var runsSpec = canonical.EntitySpec{
	Table: "sync_runs",
	Columns: []canonical.Column{
		{Name: "run_id", Type: "text"},
		{Name: "source", Type: "text"},
		{Name: "sync_type", Type: "text"},
		{Name: "status", Type: "text"},
		{Name: "range_start", Type: "timestamp", Nullable: true},
		{Name: "range_end", Type: "timestamp", Nullable: true},
		{Name: "windows_processed", Type: "int"},
		{Name: "windows_failed", Type: "int"},
		{Name: "records_saved", Type: "bigint"},
		{Name: "records_updated", Type: "bigint"},
		{Name: "records_rejected", Type: "bigint"},
		{Name: "error_message", Type: "longtext", Nullable: true},
		{Name: "window_errors", Type: "longtext", Nullable: true},
		{Name: "started_at", Type: "timestamp"},
		{Name: "finished_at", Type: "timestamp", Nullable: true},
		{Name: "duration_seconds", Type: "double"},
	},
	NaturalKey: []string{"run_id"},
}

var failuresSpec = canonical.EntitySpec{
	Table: "validation_failures",
	Columns: []canonical.Column{
		{Name: "id", Type: "text"},
		{Name: "sync_run_id", Type: "text"},
		{Name: "source", Type: "text"},
		{Name: "entity", Type: "text"},
		{Name: "natural_key", Type: "text"},
		{Name: "field", Type: "text", Nullable: true},
		{Name: "reason", Type: "text"},
		{Name: "payload_excerpt", Type: "longtext", Nullable: true},
		{Name: "created_at", Type: "timestamp"},
	},
	NaturalKey: []string{"id"},
}

var statusSpec = canonical.EntitySpec{
	Table: "source_status",
	Columns: []canonical.Column{
		{Name: "source", Type: "text"},
		{Name: "last_run_id", Type: "text", Nullable: true},
		{Name: "last_status", Type: "text"},
		{Name: "error_count", Type: "int"},
		{Name: "health_score", Type: "int"},
		{Name: "healthy", Type: "bool"},
		{Name: "last_synced_at", Type: "timestamp"},
	},
	NaturalKey: []string{"source"},
}

// Ledger writes run metadata through a storage.Store.
type Ledger struct {
	store storage.Store
	log   Logger
	now   func() time.Time // test seam
}

// New constructs a Ledger. log may be nil.
func New(store storage.Store, log Logger) *Ledger {
	return &Ledger{store: store, log: log, now: time.Now}
}

// EnsureSchema creates the ledger tables if missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	return l.store.EnsureTables(ctx, []canonical.EntitySpec{runsSpec, failuresSpec, statusSpec})
}

// BeginRun inserts a sync_runs row in status "running" and returns its id.
// A run row exists from the very start, so a crash mid-run leaves a visible
// "running" row rather than nothing.
func (l *Ledger) BeginRun(ctx context.Context, src source.Source, syncType string, rangeStart, rangeEnd time.Time) (string, error) {
	runID := uuid.NewString()
	row := []any{
		runID,
		string(src),
		syncType,
		StatusRunning,
		nilIfZero(rangeStart),
		nilIfZero(rangeEnd),
		0, 0,
		int64(0), int64(0), int64(0),
		nil,
		nil,
		l.now().UTC(),
		nil,
		float64(0),
	}
	if _, err := l.store.InsertRows(ctx, runsSpec.Table, runsSpec.ColumnNames(), [][]any{row}); err != nil {
		return "", err
	}
	return runID, nil
}

// WindowError is one failed window, persisted as JSON on the run row.
type WindowError struct {
	Window string `json:"window"`
	Error  string `json:"error"`
}

// RunResult is the final accounting for a run.
type RunResult struct {
	Status           string
	WindowsProcessed int
	WindowsFailed    int
	Saved            int64
	Updated          int64
	Rejected         int64
	ErrorMessage     string
	WindowErrors     []WindowError
	Duration         time.Duration
}

// FinalizeRun closes a run row exactly once: the update is guarded on
// status="running", so a duplicate finalize matches zero rows. Failures are
// logged, not returned; losing a ledger update must not fail a sync that
// already persisted its data.
func (l *Ledger) FinalizeRun(ctx context.Context, runID string, res RunResult) {
	var detail any
	if len(res.WindowErrors) > 0 {
		if buf, err := json.Marshal(res.WindowErrors); err == nil {
			detail = string(buf)
		}
	}

	var errMsg any
	if res.ErrorMessage != "" {
		errMsg = truncate(res.ErrorMessage, payloadExcerptMax)
	}

	set := []storage.Assign{
		{Column: "status", Value: res.Status},
		{Column: "windows_processed", Value: res.WindowsProcessed},
		{Column: "windows_failed", Value: res.WindowsFailed},
		{Column: "records_saved", Value: res.Saved},
		{Column: "records_updated", Value: res.Updated},
		{Column: "records_rejected", Value: res.Rejected},
		{Column: "error_message", Value: errMsg},
		{Column: "window_errors", Value: detail},
		{Column: "finished_at", Value: l.now().UTC()},
		{Column: "duration_seconds", Value: res.Duration.Seconds()},
	}
	where := []storage.Assign{
		{Column: "run_id", Value: runID},
		{Column: "status", Value: StatusRunning},
	}

	n, err := l.store.UpdateRow(ctx, runsSpec.Table, set, where)
	if err != nil {
		l.logf("stage=ledger op=finalize run_id=%s err=%v", runID, err)
		return
	}
	if n == 0 {
		l.logf("stage=ledger op=finalize run_id=%s err=already_finalized", runID)
	}
}

// Failure is one rejected record.
type Failure struct {
	Entity     string
	NaturalKey string
	Field      string
	Reason     string
	Payload    string
}

// RecordValidationFailures appends reject rows for a run. Errors are logged,
// not returned, for the same reason as FinalizeRun.
func (l *Ledger) RecordValidationFailures(ctx context.Context, runID string, src source.Source, failures []Failure) {
	if len(failures) == 0 {
		return
	}

	now := l.now().UTC()
	rows := make([][]any, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []any{
			uuid.NewString(),
			runID,
			string(src),
			f.Entity,
			f.NaturalKey,
			f.Field,
			f.Reason,
			truncate(f.Payload, payloadExcerptMax),
			now,
		})
	}

	if _, err := l.store.InsertRows(ctx, failuresSpec.Table, failuresSpec.ColumnNames(), rows); err != nil {
		l.logf("stage=ledger op=record_failures run_id=%s count=%d err=%v", runID, len(rows), err)
	}
}

// UpdateSourceStatus upserts the per-source health row after a run. Errors are
// logged, not returned.
func (l *Ledger) UpdateSourceStatus(ctx context.Context, src source.Source, runID, status string, errorCount int) {
	score, healthy := healthScore(status, errorCount)
	row := []any{
		string(src),
		runID,
		status,
		errorCount,
		score,
		healthy,
		l.now().UTC(),
	}
	if _, err := l.store.Upsert(ctx, statusSpec, [][]any{row}); err != nil {
		l.logf("stage=ledger op=source_status source=%s err=%v", src, err)
	}
}

// healthScore maps a run outcome to a 0-100 score and a healthy flag.
// Failed runs degrade with the error count: a couple of failed windows is a
// warning, five or more means the source is effectively down.
func healthScore(status string, errorCount int) (int, bool) {
	switch status {
	case StatusSuccess:
		return 100, true
	case StatusPartial:
		return 80, true
	}
	switch {
	case errorCount >= 5:
		return 0, false
	case errorCount >= 3:
		return 30, false
	default:
		score := 100 - 20*errorCount
		return score, score >= 50
	}
}

// SourceStatus is one row of the per-source health table.
type SourceStatus struct {
	Source       string
	LastRunID    string
	LastStatus   string
	ErrorCount   int
	HealthScore  int
	Healthy      bool
	LastSyncedAt time.Time
}

// SourceStatuses returns the health rows, ordered by source name.
func (l *Ledger) SourceStatuses(ctx context.Context) ([]SourceStatus, error) {
	rows, err := l.store.SelectRows(ctx, statusSpec.Table, statusSpec.ColumnNames(), nil, "source", 0)
	if err != nil {
		return nil, err
	}

	out := make([]SourceStatus, 0, len(rows))
	for _, r := range rows {
		out = append(out, SourceStatus{
			Source:       asString(r[0]),
			LastRunID:    asString(r[1]),
			LastStatus:   asString(r[2]),
			ErrorCount:   int(asInt64(r[3])),
			HealthScore:  int(asInt64(r[4])),
			Healthy:      asBool(r[5]),
			LastSyncedAt: asTime(r[6]),
		})
	}
	return out, nil
}

// RunSummary is a condensed sync_runs row for status listings.
type RunSummary struct {
	RunID            string
	Source           string
	SyncType         string
	Status           string
	WindowsProcessed int
	WindowsFailed    int
	Saved            int64
	Updated          int64
	Rejected         int64
	StartedAt        time.Time
	Duration         time.Duration
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	cols := []string{
		"run_id", "source", "sync_type", "status",
		"windows_processed", "windows_failed",
		"records_saved", "records_updated", "records_rejected",
		"started_at", "duration_seconds",
	}
	rows, err := l.store.SelectRows(ctx, runsSpec.Table, cols, nil, "started_at DESC", limit)
	if err != nil {
		return nil, err
	}

	out := make([]RunSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, RunSummary{
			RunID:            asString(r[0]),
			Source:           asString(r[1]),
			SyncType:         asString(r[2]),
			Status:           asString(r[3]),
			WindowsProcessed: int(asInt64(r[4])),
			WindowsFailed:    int(asInt64(r[5])),
			Saved:            asInt64(r[6]),
			Updated:          asInt64(r[7]),
			Rejected:         asInt64(r[8]),
			StartedAt:        asTime(r[9]),
			Duration:         time.Duration(asFloat(r[10]) * float64(time.Second)),
		})
	}
	return out, nil
}

// PruneRuns deletes sync_runs rows started before cutoff. Explicit retention
// hook; nothing calls it automatically.
func (l *Ledger) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	return l.store.DeleteBefore(ctx, runsSpec.Table, "started_at", cutoff)
}

// PruneValidationFailures deletes reject rows created before cutoff.
func (l *Ledger) PruneValidationFailures(ctx context.Context, cutoff time.Time) (int64, error) {
	return l.store.DeleteBefore(ctx, failuresSpec.Table, "created_at", cutoff)
}

func (l *Ledger) logf(format string, v ...any) {
	if l.log != nil {
		l.log.Printf(format, v...)
	}
}

func nilIfZero(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// ---- scan helpers: backends return driver-dependent value shapes ----

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return ""
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	default:
		return false
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}
