// Package normalize turns raw connector payloads into rows aligned with the
// canonical entity specs. One file per source; this file carries the shared
// field-extraction helpers and the source → normalizer lookup.
//
// Normalizers are forgiving about shape: connectors deliver decoded JSON, so
// numbers may arrive as json.Number, float64, or strings depending on the
// source. Missing or malformed fields become zero values or nil; the
// validation gate decides what is actually acceptable.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"datasync/internal/canonical"
	"datasync/internal/connector"
	"datasync/internal/source"
	"datasync/internal/validate"
)

// EntityBatch is the normalized output for one entity: the spec describing the
// table, the validation rules to gate rows with, and the rows themselves in
// spec column order.
type EntityBatch struct {
	Spec  canonical.EntitySpec
	Rules validate.Rules
	Rows  [][]any
}

// Func converts one fetched payload into entity batches. syncedAt is stamped
// into every row and doubles as the snapshot date for snapshot-mode sources.
type Func func(p connector.Payload, syncedAt time.Time) []EntityBatch

type entity struct {
	spec  canonical.EntitySpec
	rules validate.Rules
}

var bySource = map[source.Source]struct {
	entities []entity
	fn       Func
}{
	source.Shopify:        {shopifyEntities, shopifyRows},
	source.GoogleAds:      {googleAdsEntities, googleAdsRows},
	source.Klaviyo:        {klaviyoEntities, klaviyoRows},
	source.MerchantCenter: {merchantCenterEntities, merchantCenterRows},
	source.SearchConsole:  {searchConsoleEntities, searchConsoleRows},
	source.GA4:            {ga4Entities, ga4Rows},
}

// ForSource returns the normalizer for s.
func ForSource(s source.Source) (Func, error) {
	e, ok := bySource[s]
	if !ok {
		return nil, fmt.Errorf("normalize: no normalizer for source %s", s)
	}
	return e.fn, nil
}

// Entities returns the entity specs s writes to, for schema setup.
func Entities(s source.Source) []canonical.EntitySpec {
	var out []canonical.EntitySpec
	for _, e := range bySource[s].entities {
		out = append(out, e.spec)
	}
	return out
}

// AllEntities returns every entity spec across all sources, for schema setup
// and retention.
func AllEntities() []canonical.EntitySpec {
	var out []canonical.EntitySpec
	for _, s := range source.All() {
		out = append(out, Entities(s)...)
	}
	return out
}

// ---- field extraction ----

func getString(rec connector.Record, key string) string {
	switch t := rec[key].(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		// IDs decoded without UseNumber land here; render without exponent.
		return decimal.NewFromFloat(t).String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func getInt64(rec connector.Record, key string) int64 {
	switch t := rec[key].(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	}
	return 0
}

func getFloat(rec connector.Record, key string) float64 {
	switch t := rec[key].(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	}
	return 0
}

// getDecimal parses money fields without going through float64, so amounts
// like "19.99" survive exactly.
func getDecimal(rec connector.Record, key string) decimal.Decimal {
	switch t := rec[key].(type) {
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(t); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(t)
	}
	return decimal.Zero
}

// getTime returns the parsed timestamp or nil, so nullable timestamp columns
// get SQL NULL rather than the zero time.
func getTime(rec connector.Record, key string) any {
	s, _ := rec[key].(string)
	if s == "" {
		return nil
	}
	ts, err := connector.ParseTime(s)
	if err != nil {
		return nil
	}
	return ts
}

// mustTime is getTime for required columns: the zero time flows through and
// the validation gate rejects the row.
func mustTime(rec connector.Record, key string) time.Time {
	if ts, ok := getTime(rec, key).(time.Time); ok {
		return ts
	}
	return time.Time{}
}

// dateOnly truncates to midnight UTC for date-typed columns.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mustDate parses a date field for required date columns.
func mustDate(rec connector.Record, key string) time.Time {
	ts := mustTime(rec, key)
	if ts.IsZero() {
		return ts
	}
	return dateOnly(ts)
}

// col is shorthand for building entity specs.
func col(name, typ string) canonical.Column {
	return canonical.Column{Name: name, Type: typ}
}

func nullable(name, typ string) canonical.Column {
	return canonical.Column{Name: name, Type: typ, Nullable: true}
}
