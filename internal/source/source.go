// Package source enumerates the external data sources the sync engine knows
// about and carries their per-source operating defaults.
//
// Defaults differ by an order of magnitude across sources (16 months of
// queryable history for Search Console vs. current-snapshot-only for Merchant
// Center), so they are modeled as an explicit configuration record per source
// rather than scattered constants.
package source

import (
	"fmt"
	"sort"
	"time"
)

// Source identifies one external API.
type Source string

const (
	Shopify        Source = "shopify"
	GoogleAds      Source = "google_ads"
	Klaviyo        Source = "klaviyo"
	MerchantCenter Source = "merchant_center"
	SearchConsole  Source = "search_console"
	GA4            Source = "ga4"
)

// Mode selects how the orchestrator drives a source.
//
//   - ModeWindowed: the requested range is split into bounded windows and each
//     window is fetched independently.
//   - ModeSnapshot: the source exposes no historical query capability; history
//     is accumulated from repeated current-state fetches keyed by snapshot date.
type Mode string

const (
	ModeWindowed Mode = "windowed"
	ModeSnapshot Mode = "snapshot"
)

// Config is the per-source operating record.
type Config struct {
	// Mode selects windowed backfill vs. daily snapshot accumulation.
	Mode Mode

	// MaxWindowDays bounds a single fetch window. Ignored for ModeSnapshot.
	MaxWindowDays int

	// Pacing is the delay applied between windows (and before a rate-limit
	// retry) to stay under the source's published request limits.
	Pacing time.Duration

	// MaxHistoryDays is how far back the API can be queried at all. Requested
	// ranges are clamped to this depth. Zero means no history (snapshot only).
	MaxHistoryDays int

	// FetchLagDays shifts the range end into the past for sources whose data
	// is only final after a delay (Search Console reports lag 2-3 days).
	FetchLagDays int

	// Type is the reporting category used by the source status table.
	Type string
}

var defaults = map[Source]Config{
	Shopify: {
		Mode:           ModeWindowed,
		MaxWindowDays:  365, // no meaningful per-call cap; full-history syncs use one window
		Pacing:         500 * time.Millisecond,
		MaxHistoryDays: 730,
		Type:           "ecommerce",
	},
	GoogleAds: {
		Mode:           ModeWindowed,
		MaxWindowDays:  30,
		Pacing:         time.Second,
		MaxHistoryDays: 365,
		Type:           "advertising",
	},
	Klaviyo: {
		Mode:           ModeWindowed,
		MaxWindowDays:  30,
		Pacing:         time.Second,
		MaxHistoryDays: 365,
		Type:           "email",
	},
	MerchantCenter: {
		Mode:   ModeSnapshot,
		Pacing: time.Second,
		Type:   "feed",
	},
	SearchConsole: {
		Mode:           ModeWindowed,
		MaxWindowDays:  14,
		Pacing:         2 * time.Second,
		MaxHistoryDays: 480, // API exposes ~16 months
		FetchLagDays:   3,
		Type:           "seo",
	},
	GA4: {
		Mode:           ModeWindowed,
		MaxWindowDays:  30,
		Pacing:         time.Second,
		MaxHistoryDays: 365,
		Type:           "analytics",
	},
}

// Defaults returns the operating record for a known source.
func Defaults(s Source) (Config, error) {
	c, ok := defaults[s]
	if !ok {
		return Config{}, fmt.Errorf("source: unknown source %q", s)
	}
	return c, nil
}

// Parse converts a user-supplied name into a Source.
func Parse(name string) (Source, error) {
	s := Source(name)
	if _, ok := defaults[s]; !ok {
		return "", fmt.Errorf("source: unknown source %q", name)
	}
	return s, nil
}

// All returns every known source in stable (alphabetical) order.
func All() []Source {
	out := make([]Source, 0, len(defaults))
	for s := range defaults {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
