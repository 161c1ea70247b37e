// Package engine orchestrates sync runs: it plans time windows, drives the
// source connector window by window, pushes normalized rows through the
// validation gate into the canonical store, and accounts for everything in the
// run ledger.
//
// Failure model: a window failure never aborts the run. The window's error is
// recorded, the loop moves on, and the run finishes as "partial" (some windows
// failed) or "failed" (all of them did). Cancellation is the exception: once
// the context is done, remaining windows are not attempted.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datasync/internal/connector"
	"datasync/internal/ledger"
	"datasync/internal/metrics"
	"datasync/internal/normalize"
	"datasync/internal/source"
	"datasync/internal/storage"
	"datasync/internal/validate"
	"datasync/internal/window"
)

// Logger is the minimal logging dependency (satisfied by *log.Logger).
type Logger interface {
	Printf(format string, v ...any)
}

// RunLedger is the slice of the ledger the engine needs; *ledger.Ledger
// satisfies it, tests use a fake.
type RunLedger interface {
	BeginRun(ctx context.Context, src source.Source, syncType string, rangeStart, rangeEnd time.Time) (string, error)
	FinalizeRun(ctx context.Context, runID string, res ledger.RunResult)
	RecordValidationFailures(ctx context.Context, runID string, src source.Source, failures []ledger.Failure)
	UpdateSourceStatus(ctx context.Context, src source.Source, runID, status string, errorCount int)
}

// Runner executes sync runs. All fields except Sleep and Now are required.
type Runner struct {
	Store  storage.Store
	Ledger RunLedger

	// Connector resolves the connector for a source at run time, so RunAll
	// skips sources with no configured connector instead of failing them.
	Connector func(src source.Source) (connector.Connector, error)

	Log Logger

	// Overrides are per-source adjustments from the config file, applied to
	// the source defaults before the run's own options.
	Overrides map[source.Source]RunOptions

	// Sleep and Now are test seams; nil means real time.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// RunOptions selects the range and shape of one run.
type RunOptions struct {
	// Days syncs the trailing N days (daily mode). Mutually exclusive with
	// Months; if both are zero, Days defaults to 1.
	Days int

	// Months syncs a backfill of the trailing N months, oldest window first.
	Months int

	// WindowDays overrides the source's default window size.
	WindowDays int

	// Pacing overrides the source's default inter-window delay.
	Pacing time.Duration

	// HistoryDays overrides how far back the source's history is assumed to
	// reach; backfill ranges are clamped to it.
	HistoryDays int

	// OldestFirst forces backfill ordering for a Days-based run. Months-based
	// runs are always oldest first.
	OldestFirst bool
}

// WindowError is one failed window in a report.
type WindowError struct {
	Window string `json:"window"`
	Error  string `json:"error"`
}

// Report is the consumer-facing result of one source run.
type Report struct {
	Source           string        `json:"source"`
	Status           string        `json:"status"`
	Success          bool          `json:"success"`
	WindowsProcessed int           `json:"windows_processed"`
	WindowsFailed    int           `json:"windows_failed"`
	TotalRecords     int64         `json:"total_records"`
	Saved            int64         `json:"saved"`
	Updated          int64         `json:"updated"`
	Rejected         int64         `json:"rejected"`
	DurationSeconds  float64       `json:"duration_seconds"`
	Errors           []WindowError `json:"errors"`
}

// RunSource executes one run for src and always returns a report, even when
// planning fails — the ledger row and the report exist for every attempt.
func (r *Runner) RunSource(ctx context.Context, src source.Source, opts RunOptions) *Report {
	started := r.now()
	rep := &Report{Source: string(src), Errors: []WindowError{}}

	finish := func(runID string) *Report {
		dur := r.now().Sub(started)
		rep.DurationSeconds = dur.Seconds()
		rep.Success = rep.Status == ledger.StatusSuccess
		if runID != "" {
			r.Ledger.FinalizeRun(ctx, runID, ledger.RunResult{
				Status:           rep.Status,
				WindowsProcessed: rep.WindowsProcessed,
				WindowsFailed:    rep.WindowsFailed,
				Saved:            rep.Saved,
				Updated:          rep.Updated,
				Rejected:         rep.Rejected,
				ErrorMessage:     firstError(rep.Errors),
				WindowErrors:     toLedgerErrors(rep.Errors),
				Duration:         dur,
			})
			r.Ledger.UpdateSourceStatus(ctx, src, runID, rep.Status, rep.WindowsFailed)
		}
		labels := metrics.Labels{"source": string(src), "status": rep.Status}
		metrics.IncCounter("sync_runs_total", 1, labels)
		metrics.ObserveHistogram("sync_run_duration_seconds", dur.Seconds(), labels)
		r.logf("stage=sync source=%s status=%s windows=%d failed=%d saved=%d updated=%d rejected=%d duration=%s",
			src, rep.Status, rep.WindowsProcessed, rep.WindowsFailed, rep.Saved, rep.Updated, rep.Rejected, dur.Round(time.Millisecond))
		return rep
	}

	cfg, err := source.Defaults(src)
	if err != nil {
		rep.Status = ledger.StatusFailed
		rep.Errors = append(rep.Errors, WindowError{Error: err.Error()})
		return finish("")
	}
	if o, ok := r.Overrides[src]; ok {
		applyOverrides(&cfg, o)
	}
	applyOverrides(&cfg, opts)

	syncType := "daily"
	if opts.Months > 0 {
		syncType = "backfill"
	}
	if cfg.Mode == source.ModeSnapshot {
		syncType = "snapshot"
	}

	start, end, order, err := planRange(cfg, opts, r.now())

	// The run row is created before planning so even an unplannable run
	// leaves a ledger trace.
	runID, lerr := r.Ledger.BeginRun(ctx, src, syncType, start, end)
	if lerr != nil {
		rep.Status = ledger.StatusFailed
		rep.Errors = append(rep.Errors, WindowError{Error: fmt.Sprintf("ledger: %v", lerr)})
		return finish("")
	}

	if err != nil {
		rep.Status = ledger.StatusFailed
		rep.Errors = append(rep.Errors, WindowError{Error: err.Error()})
		return finish(runID)
	}

	conn, err := r.Connector(src)
	if err != nil {
		rep.Status = ledger.StatusFailed
		rep.Errors = append(rep.Errors, WindowError{Error: err.Error()})
		return finish(runID)
	}

	nrm, err := normalize.ForSource(src)
	if err != nil {
		rep.Status = ledger.StatusFailed
		rep.Errors = append(rep.Errors, WindowError{Error: err.Error()})
		return finish(runID)
	}

	if err := r.Store.EnsureTables(ctx, normalize.Entities(src)); err != nil {
		rep.Status = ledger.StatusFailed
		rep.Errors = append(rep.Errors, WindowError{Error: fmt.Sprintf("schema: %v", err)})
		return finish(runID)
	}

	if cfg.Mode == source.ModeSnapshot {
		r.runSnapshot(ctx, src, conn, nrm, cfg, runID, rep)
		return finish(runID)
	}

	windows, err := window.Plan(start, end, cfg.MaxWindowDays, order)
	if err != nil {
		rep.Status = ledger.StatusFailed
		rep.Errors = append(rep.Errors, WindowError{Error: err.Error()})
		return finish(runID)
	}

	for i, w := range windows {
		if cerr := ctx.Err(); cerr != nil {
			// Remaining windows are not attempted; each still counts failed
			// so the accounting covers the whole planned range.
			for _, rest := range windows[i:] {
				rep.WindowsFailed++
				rep.Errors = append(rep.Errors, WindowError{Window: rest.String(), Error: cerr.Error()})
			}
			break
		}

		wstart := r.now()
		err := r.runWindow(ctx, src, conn, nrm, cfg, runID, w, rep)
		status := ledger.StatusSuccess
		if err != nil {
			status = ledger.StatusFailed
			rep.WindowsFailed++
			rep.Errors = append(rep.Errors, WindowError{Window: w.String(), Error: err.Error()})
			r.logf("stage=sync source=%s window=%s err=%v", src, w, err)
		} else {
			rep.WindowsProcessed++
		}

		labels := metrics.Labels{"source": string(src), "status": status}
		metrics.IncCounter("sync_windows_total", 1, labels)
		metrics.ObserveHistogram("sync_window_duration_seconds", r.now().Sub(wstart).Seconds(), labels)

		if i < len(windows)-1 {
			if serr := r.sleep(ctx, cfg.Pacing); serr != nil {
				continue // next iteration hits the ctx.Err() branch
			}
		}
	}

	rep.Status = deriveStatus(rep.WindowsProcessed, rep.WindowsFailed)
	return finish(runID)
}

// runWindow fetches one window, retrying once on a rate-limit signal, then
// normalizes, validates, and upserts.
func (r *Runner) runWindow(ctx context.Context, src source.Source, conn connector.Connector, nrm normalize.Func, cfg source.Config, runID string, w window.Window, rep *Report) error {
	payload, err := conn.Fetch(ctx, w.Start, w.End)
	if connector.IsRateLimited(err) {
		r.logf("stage=sync source=%s window=%s rate_limited retry=1", src, w)
		if serr := r.sleep(ctx, cfg.Pacing); serr != nil {
			return serr
		}
		payload, err = conn.Fetch(ctx, w.Start, w.End)
	}
	if err != nil {
		return err
	}
	return r.persist(ctx, src, nrm, runID, payload, rep)
}

// runSnapshot handles snapshot-mode sources: one fetch of current state,
// stamped with today's date by the normalizer. windows_processed is 1 or 0.
func (r *Runner) runSnapshot(ctx context.Context, src source.Source, conn connector.Connector, nrm normalize.Func, cfg source.Config, runID string, rep *Report) {
	now := r.now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	payload, err := conn.Fetch(ctx, day, now)
	if connector.IsRateLimited(err) {
		r.logf("stage=sync source=%s snapshot rate_limited retry=1", src)
		if serr := r.sleep(ctx, cfg.Pacing); serr == nil {
			payload, err = conn.Fetch(ctx, day, now)
		}
	}
	if err == nil {
		err = r.persist(ctx, src, nrm, runID, payload, rep)
	}

	status := ledger.StatusSuccess
	if err != nil {
		status = ledger.StatusFailed
		rep.WindowsFailed = 1
		rep.Errors = append(rep.Errors, WindowError{Window: day.Format("2006-01-02"), Error: err.Error()})
	} else {
		rep.WindowsProcessed = 1
	}
	metrics.IncCounter("sync_windows_total", 1, metrics.Labels{"source": string(src), "status": status})
	rep.Status = status
}

// persist normalizes a payload and writes it entity by entity: validate,
// record rejects, upsert the survivors.
func (r *Runner) persist(ctx context.Context, src source.Source, nrm normalize.Func, runID string, payload connector.Payload, rep *Report) error {
	now := r.now().UTC()

	for _, batch := range nrm(payload, now) {
		if len(batch.Rows) == 0 {
			continue
		}

		keyIdx := batch.Spec.KeyIndices()
		accepted := make([][]any, 0, len(batch.Rows))
		var failures []ledger.Failure

		for _, row := range batch.Rows {
			rej := validate.Check(batch.Spec, batch.Rules, row, now)
			if rej == nil {
				accepted = append(accepted, row)
				continue
			}

			keyVals := make([]any, len(keyIdx))
			for i, ki := range keyIdx {
				keyVals[i] = row[ki]
			}
			failures = append(failures, ledger.Failure{
				Entity:     batch.Spec.Table,
				NaturalKey: storage.KeyString(keyVals),
				Field:      rej.Field,
				Reason:     rej.Reason,
				Payload:    fmt.Sprintf("%v", row),
			})
		}

		if len(failures) > 0 {
			rep.Rejected += int64(len(failures))
			rep.TotalRecords += int64(len(failures))
			metrics.IncCounter("sync_records_total", float64(len(failures)), metrics.Labels{"source": string(src), "kind": "rejected"})
			r.Ledger.RecordValidationFailures(ctx, runID, src, failures)
		}

		if len(accepted) == 0 {
			continue
		}
		stats, err := r.Store.Upsert(ctx, batch.Spec, accepted)
		rep.Saved += stats.Saved
		rep.Updated += stats.Updated
		rep.TotalRecords += stats.Saved + stats.Updated
		metrics.IncCounter("sync_records_total", float64(stats.Saved), metrics.Labels{"source": string(src), "kind": "saved"})
		metrics.IncCounter("sync_records_total", float64(stats.Updated), metrics.Labels{"source": string(src), "kind": "updated"})
		if err != nil {
			return fmt.Errorf("upsert %s: %w", batch.Spec.Table, err)
		}
	}
	return nil
}

// applyOverrides folds run options into the source config.
func applyOverrides(cfg *source.Config, opts RunOptions) {
	if opts.WindowDays > 0 {
		cfg.MaxWindowDays = opts.WindowDays
	}
	if opts.Pacing > 0 {
		cfg.Pacing = opts.Pacing
	}
	if opts.HistoryDays > 0 {
		cfg.MaxHistoryDays = opts.HistoryDays
	}
}

// planRange turns run options into a [start, end) range and window order.
//
// Edge cases:
//   - FetchLagDays pulls end back from now (Search Console data lags ~3 days).
//   - MaxHistoryDays clamps start so a "-months 24" backfill on a source with
//     16 months of API history does not generate windows the API cannot serve.
func planRange(cfg source.Config, opts RunOptions, now time.Time) (start, end time.Time, order window.Order, err error) {
	if opts.Days > 0 && opts.Months > 0 {
		return start, end, order, fmt.Errorf("engine: days and months are mutually exclusive")
	}

	end = now.UTC()
	if cfg.FetchLagDays > 0 {
		end = end.AddDate(0, 0, -cfg.FetchLagDays)
	}

	switch {
	case opts.Months > 0:
		start = end.AddDate(0, -opts.Months, 0)
		order = window.OldestFirst
	default:
		days := opts.Days
		if days <= 0 {
			days = 1
		}
		start = end.AddDate(0, 0, -days)
		order = window.NewestFirst
		if opts.OldestFirst {
			order = window.OldestFirst
		}
	}

	if cfg.MaxHistoryDays > 0 {
		oldest := end.AddDate(0, 0, -cfg.MaxHistoryDays)
		if start.Before(oldest) {
			start = oldest
		}
	}

	if !start.Before(end) {
		return start, end, order, fmt.Errorf("engine: empty range after clamping (start=%s end=%s)",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, order, nil
}

func deriveStatus(processed, failed int) string {
	switch {
	case failed == 0:
		return ledger.StatusSuccess
	case processed == 0:
		return ledger.StatusFailed
	default:
		return ledger.StatusPartial
	}
}

func firstError(errs []WindowError) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].Error
}

func toLedgerErrors(errs []WindowError) []ledger.WindowError {
	out := make([]ledger.WindowError, 0, len(errs))
	for _, e := range errs {
		out = append(out, ledger.WindowError{Window: e.Window, Error: e.Error})
	}
	return out
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logf(format string, v ...any) {
	if r.Log != nil {
		r.Log.Printf(format, v...)
	}
}

// AggregateReport is the result of a fan-out run across sources.
type AggregateReport struct {
	Success         bool               `json:"success"`
	SourcesSynced   int                `json:"sources_synced"`
	TotalSources    int                `json:"total_sources"`
	DurationSeconds float64            `json:"duration_seconds"`
	Results         map[string]*Report `json:"results"`
}

// RunAll syncs every listed source concurrently, one goroutine per source.
// Source failures do not cancel siblings; the aggregate is successful only
// when every source run fully succeeded.
func (r *Runner) RunAll(ctx context.Context, sources []source.Source, opts RunOptions) *AggregateReport {
	started := r.now()

	agg := &AggregateReport{
		TotalSources: len(sources),
		Results:      make(map[string]*Report, len(sources)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			rep := r.RunSource(ctx, src, opts)
			mu.Lock()
			agg.Results[string(src)] = rep
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	for _, rep := range agg.Results {
		if rep.Success {
			agg.SourcesSynced++
		}
	}
	agg.Success = agg.SourcesSynced == agg.TotalSources
	agg.DurationSeconds = r.now().Sub(started).Seconds()
	return agg
}
