// Package storage defines the backend-agnostic canonical store used by the
// sync engine and the run ledger, plus the factory registry the backends
// register themselves with.
//
// IMPORTANT: the Store interface is intentionally minimal and focused on the
// operations the sync engine needs. Each backend implements the semantics in
// its own idiomatic way (Postgres ON CONFLICT ... DO UPDATE, SQLite upsert in
// a transaction, SQL Server MERGE).
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datasync/internal/canonical"
)

// Config is the minimal configuration needed to open a Store.
type Config struct {
	Kind string
	DSN  string
}

// UpsertStats reports how an upsert batch split between fresh inserts and
// replacements of existing natural keys.
type UpsertStats struct {
	Saved   int64 // rows inserted for the first time
	Updated int64 // rows whose natural key already existed
}

// Add accumulates another batch's stats.
func (s *UpsertStats) Add(o UpsertStats) {
	s.Saved += o.Saved
	s.Updated += o.Updated
}

// Store is the backend-agnostic persistence interface.
//
// Concurrency: upserts for different sources may run in parallel; writes for
// the same natural key serialize inside the backend (conflict-target
// granularity), so callers need no additional locking.
type Store interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureTables creates the given tables if they do not exist, including
	// the UNIQUE natural-key constraint. Idempotent; safe on every startup.
	EnsureTables(ctx context.Context, specs []canonical.EntitySpec) error

	// Upsert inserts rows keyed by the spec's natural key, replacing all
	// non-key columns when the key already exists (last write wins by arrival
	// order). Rows must align with spec.Columns. Re-applying an unchanged row
	// counts as an update, not a duplicate.
	//
	// On error the returned stats count only rows that remain durably
	// persisted: a backend that applies the batch in chunks reports the chunks
	// already committed, a transactional backend that rolls back reports zero.
	Upsert(ctx context.Context, spec canonical.EntitySpec, rows [][]any) (UpsertStats, error)

	// InsertRows appends rows without conflict handling (ledger-style
	// append-only tables).
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// UpdateRow updates columns on rows matching all of where. Returns the
	// number of rows affected.
	UpdateRow(ctx context.Context, table string, set []Assign, where []Assign) (int64, error)

	// SelectRows returns column values for rows matching all of where,
	// ordered by orderBy (may be ""), at most limit rows (0 = no limit).
	SelectRows(ctx context.Context, table string, columns []string, where []Assign, orderBy string, limit int) ([][]any, error)

	// DeleteBefore removes rows whose tsColumn is strictly older than cutoff.
	// This backs the explicit retention hook; nothing calls it automatically.
	DeleteBefore(ctx context.Context, table, tsColumn string, cutoff time.Time) (int64, error)
}

// Assign is one column/value pair for UpdateRow and SelectRows. A slice keeps
// SQL generation deterministic where a map would not be.
type Assign struct {
	Column string
	Value  any
}

// ---- backend factories (mirrors the connector registry) ----

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	regMu     sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
// Call from an init() function in the backend package.
//
// Panics on empty kind, nil factory, or duplicate registration — fail fast
// rather than allow ambiguous backend selection.
func Register(kind string, f factory) {
	regMu.Lock()
	defer regMu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	regMu.RLock()
	f := factories[cfg.Kind]
	regMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
