package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datasync/internal/config"
	"datasync/internal/engine"
	"datasync/internal/ledger"
	"datasync/internal/metrics"
	"datasync/internal/metrics/datadog"
	"datasync/internal/source"
	"datasync/internal/storage"

	// register all storage backends with the factory.
	// config specifies which to use but we build in support for all of them.
	_ "datasync/internal/storage/all"
)

// Exit codes: 0 success, 1 failed (or bad invocation), 2 partial — a cron
// wrapper can tell "retry everything" from "retry the failed windows".
const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

// main is the entry point for the sync binary. It loads the config, optionally
// initializes a metrics backend, and runs one source (or all of them).
// The exit path goes through run() so deferred cleanup (store close, final
// metrics flush) executes before the process exits.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath           string
		sourceFlg         string
		days              int
		months            int
		windowDays        int
		delaySeconds      int
		oldestFirst       bool
		metricsBackendFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/sync.json", "sync config JSON path")
	flag.StringVar(&sourceFlg, "source", "", "source to sync (empty = all configured sources)")
	flag.IntVar(&days, "days", 0, "sync the trailing N days (default 1)")
	flag.IntVar(&months, "months", 0, "backfill the trailing N months, oldest window first")
	flag.IntVar(&windowDays, "window-days", 0, "override the source's window size in days")
	flag.IntVar(&delaySeconds, "delay", 0, "override the inter-window delay in seconds")
	flag.BoolVar(&oldestFirst, "oldest-first", false, "process windows oldest first even for a -days run")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none; empty = config)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailed
	}

	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: %v", cfgPath)
		return exitFailed
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		return exitOK
	}

	// Decide metrics backend: flag → config → disabled.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = cfg.Metrics.Backend
	}
	switch backendName {
	case "datadog":
		// Buffers metrics and submits periodically, plus one final submit at
		// shutdown — long backfills show up as a time series, not one spike.
		flushEvery := time.Duration(cfg.Metrics.FlushSeconds) * time.Second
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    cfg.Metrics.Job,
			Tags:       datadog.ParseTagsCSV(cfg.Metrics.Tags),
			FlushEvery: flushEvery,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		log.Printf("storage: %v", err)
		return exitFailed
	}
	defer store.Close()

	led := ledger.New(store, log.Default())
	if err := led.EnsureSchema(ctx); err != nil {
		log.Printf("ledger schema: %v", err)
		return exitFailed
	}

	overrides := make(map[source.Source]engine.RunOptions, len(cfg.Sources))
	for name, o := range cfg.Sources {
		src, err := source.Parse(name)
		if err != nil {
			continue // Validate already reported it
		}
		overrides[src] = engine.RunOptions{
			WindowDays:  o.WindowDays,
			Pacing:      o.Pacing(),
			HistoryDays: o.HistoryDays,
		}
	}

	runner := &engine.Runner{
		Store:     store,
		Ledger:    led,
		Connector: cfg.Connector,
		Log:       log.Default(),
		Overrides: overrides,
	}

	opts := engine.RunOptions{
		Days:        days,
		Months:      months,
		WindowDays:  windowDays,
		Pacing:      time.Duration(delaySeconds) * time.Second,
		OldestFirst: oldestFirst,
	}

	if sourceFlg != "" {
		src, err := source.Parse(sourceFlg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailed
		}
		rep := runner.RunSource(ctx, src, opts)
		writeJSON(rep)
		switch rep.Status {
		case ledger.StatusSuccess:
			return exitOK
		case ledger.StatusPartial:
			return exitPartial
		default:
			return exitFailed
		}
	}

	agg := runner.RunAll(ctx, cfg.ConfiguredSources(), opts)
	writeJSON(agg)
	if agg.Success {
		return exitOK
	}
	if agg.SourcesSynced > 0 {
		return exitPartial
	}
	return exitFailed
}

func writeJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encode report: %v", err)
	}
}
