package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"datasync/internal/config"
	"datasync/internal/ledger"
	"datasync/internal/storage"

	_ "datasync/internal/storage/all"
)

// syncstatus prints per-source health and recent runs from the ledger.
// Default output is a table for humans; -json emits the raw rows for scripts.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath  string
		limit    int
		asJSON   bool
		showRuns bool
	)

	flag.StringVar(&cfgPath, "config", "configs/sync.json", "sync config JSON path")
	flag.IntVar(&limit, "limit", 20, "number of recent runs to show")
	flag.BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	flag.BoolVar(&showRuns, "runs", false, "also list recent runs")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx := context.Background()
	store, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		log.Printf("storage: %v", err)
		return 1
	}
	defer store.Close()

	led := ledger.New(store, log.Default())
	if err := led.EnsureSchema(ctx); err != nil {
		log.Printf("ledger schema: %v", err)
		return 1
	}

	statuses, err := led.SourceStatuses(ctx)
	if err != nil {
		log.Printf("source statuses: %v", err)
		return 1
	}

	var runs []ledger.RunSummary
	if showRuns {
		runs, err = led.RecentRuns(ctx, limit)
		if err != nil {
			log.Printf("recent runs: %v", err)
			return 1
		}
	}

	if asJSON {
		out := map[string]any{"sources": statuses}
		if showRuns {
			out["runs"] = runs
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Printf("encode: %v", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tHEALTH\tERRORS\tLAST SYNC")
	for _, s := range statuses {
		healthy := "healthy"
		if !s.Healthy {
			healthy = "UNHEALTHY"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d (%s)\t%d\t%s\n",
			s.Source, s.LastStatus, s.HealthScore, healthy, s.ErrorCount,
			s.LastSyncedAt.Format(time.RFC3339))
	}
	tw.Flush()

	if showRuns {
		fmt.Println()
		tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tSOURCE\tTYPE\tSTATUS\tWINDOWS\tFAILED\tSAVED\tUPDATED\tREJECTED\tDURATION")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Source, r.SyncType, r.Status,
				r.WindowsProcessed, r.WindowsFailed, r.Saved, r.Updated, r.Rejected,
				r.Duration.Round(time.Millisecond))
		}
		tw.Flush()
	}
	return 0
}
