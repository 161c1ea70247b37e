// Package connector defines the uniform fetch contract the sync engine uses
// to talk to external APIs, the error taxonomy those APIs can signal, and a
// factory registry so backends self-register the way storage backends do.
//
// The engine treats connectors as opaque capabilities: it never inspects
// source-native records beyond handing them to the source's normalizer.
package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datasync/internal/source"
)

// Record is one source-native record as returned by an external API.
type Record map[string]any

// Payload groups a fetch's records by the source's entity kind (for example
// "orders", "products" for an e-commerce source). Kinds the normalizer does
// not recognize are ignored.
type Payload map[string][]Record

// Total returns the number of records across all kinds.
func (p Payload) Total() int {
	n := 0
	for _, recs := range p {
		n += len(recs)
	}
	return n
}

// Connector fetches source-native records for a half-open time range
// [start, end). Snapshot-only sources ignore the range and return current
// state.
//
// Implementations signal rate limiting, transient failures, and auth failures
// via the typed errors in this package; any other error is treated as
// transient by the engine.
type Connector interface {
	Fetch(ctx context.Context, start, end time.Time) (Payload, error)
}

// Config selects and configures a connector backend.
type Config struct {
	// Kind names a registered backend (e.g. "replay").
	Kind string `json:"kind"`

	// Source the connector serves. Set by the loader, not the config file.
	Source source.Source `json:"-"`

	// Options are backend-specific settings (paths, accounts, properties).
	Options map[string]string `json:"options,omitempty"`
}

// ---- factory registry (mirrors the storage backend registry) ----

type factory func(cfg Config) (Connector, error)

var (
	regMu     sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a connector backend under a kind. Call from an init()
// function in the backend's package.
//
// Panics on empty kind, nil factory, or duplicate registration; ambiguous
// backend selection should fail fast at startup.
func Register(kind string, f factory) {
	regMu.Lock()
	defer regMu.Unlock()

	if kind == "" {
		panic("connector: Register called with empty kind")
	}
	if f == nil {
		panic("connector: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("connector: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Connector using the registered backend factory.
func New(cfg Config) (Connector, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("connector: missing kind for source %s", cfg.Source)
	}

	regMu.RLock()
	f := factories[cfg.Kind]
	regMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("connector: unsupported kind=%q", cfg.Kind)
	}
	return f(cfg)
}
