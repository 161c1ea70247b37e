package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"datasync/internal/config"
	"datasync/internal/ledger"
	"datasync/internal/normalize"
	"datasync/internal/source"
	"datasync/internal/storage"

	_ "datasync/internal/storage/all"
)

// retention prunes old ledger rows and snapshot data. Nothing in the sync
// path calls this automatically — retention only happens when an operator (or
// their cron job) runs this binary. A value of 0 for any flag skips that
// category entirely.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath       string
		runsDays      int
		failuresDays  int
		snapshotsDays int
	)

	flag.StringVar(&cfgPath, "config", "configs/sync.json", "sync config JSON path")
	flag.IntVar(&runsDays, "runs-days", 90, "delete sync runs older than N days (0 = keep all)")
	flag.IntVar(&failuresDays, "failures-days", 30, "delete validation failures older than N days (0 = keep all)")
	flag.IntVar(&snapshotsDays, "snapshots-days", 180, "delete feed snapshots older than N days (0 = keep all)")
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

	now := time.Now().UTC()
	failed := false

	if runsDays > 0 {
		cutoff := now.AddDate(0, 0, -runsDays)
		n, err := led.PruneRuns(ctx, cutoff)
		if err != nil {
			log.Printf("stage=retention table=sync_runs err=%v", err)
			failed = true
		} else {
			log.Printf("stage=retention table=sync_runs cutoff=%s deleted=%d", cutoff.Format("2006-01-02"), n)
		}
	}

	if failuresDays > 0 {
		cutoff := now.AddDate(0, 0, -failuresDays)
		n, err := led.PruneValidationFailures(ctx, cutoff)
		if err != nil {
			log.Printf("stage=retention table=validation_failures err=%v", err)
			failed = true
		} else {
			log.Printf("stage=retention table=validation_failures cutoff=%s deleted=%d", cutoff.Format("2006-01-02"), n)
		}
	}

	if snapshotsDays > 0 {
		cutoff := now.AddDate(0, 0, -snapshotsDays)
		specs := normalize.Entities(source.MerchantCenter)
		if err := store.EnsureTables(ctx, specs); err != nil {
			log.Printf("stage=retention err=%v", err)
			return 1
		}
		for _, spec := range specs {
			n, err := store.DeleteBefore(ctx, spec.Table, "snapshot_date", cutoff)
			if err != nil {
				log.Printf("stage=retention table=%s err=%v", spec.Table, err)
				failed = true
				continue
			}
			log.Printf("stage=retention table=%s cutoff=%s deleted=%d", spec.Table, cutoff.Format("2006-01-02"), n)
		}
	}

	if failed {
		return 1
	}
	return 0
}
