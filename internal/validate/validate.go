// Package validate is the gate between normalized rows and the canonical
// store. A row that fails any rule is rejected whole and recorded; it never
// reaches an upsert.
package validate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"datasync/internal/canonical"
)

// Rules declares, per entity, which columns are checked and how. Column names
// refer to the entity spec; a name listed here but absent from the spec is a
// programming error and is reported as a rejection so it cannot pass silently.
type Rules struct {
	// Required columns must be present and non-empty (non-blank string,
	// non-zero time). Natural-key columns belong here.
	Required []string

	// NonNegative numeric columns reject values below zero. Zero is valid:
	// a campaign with no spend is data, not an error.
	NonNegative []string

	// Dates columns must fall within a sane range: on or after year 2000 and
	// no more than two days in the future (tolerates timezone skew on
	// same-day syncs without admitting garbage years).
	Dates []string

	// Currency columns must hold a well-formed ISO 4217 code.
	Currency []string
}

// Rejection explains why a row was turned away.
type Rejection struct {
	Field  string
	Reason string
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s: %s", r.Field, r.Reason)
}

// earliestSaneDate bounds dates from below. None of the synced sources
// existed before 2000; anything earlier is a parsing artifact.
var earliestSaneDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const futureSlack = 48 * time.Hour

// Check applies rules to one row (aligned with spec.Columns) and returns the
// first rejection, or nil if the row is acceptable. First-failure semantics
// keep the ledger rows small; the operator fixes one cause at a time anyway.
func Check(spec canonical.EntitySpec, rules Rules, row []any, now time.Time) *Rejection {
	idx := make(map[string]int, len(spec.Columns))
	for i, c := range spec.Columns {
		idx[c.Name] = i
	}

	at := func(name string) (any, *Rejection) {
		i, ok := idx[name]
		if !ok {
			return nil, &Rejection{Field: name, Reason: "rule references unknown column"}
		}
		if i >= len(row) {
			return nil, &Rejection{Field: name, Reason: "row shorter than entity spec"}
		}
		return row[i], nil
	}

	for _, name := range rules.Required {
		v, rej := at(name)
		if rej != nil {
			return rej
		}
		if isEmpty(v) {
			return &Rejection{Field: name, Reason: "required value missing"}
		}
	}

	for _, name := range rules.NonNegative {
		v, rej := at(name)
		if rej != nil {
			return rej
		}
		neg, ok := isNegative(v)
		if !ok {
			return &Rejection{Field: name, Reason: fmt.Sprintf("not numeric: %T", v)}
		}
		if neg {
			return &Rejection{Field: name, Reason: fmt.Sprintf("negative value %v", v)}
		}
	}

	for _, name := range rules.Dates {
		v, rej := at(name)
		if rej != nil {
			return rej
		}
		ts, ok := asTime(v)
		if !ok {
			if isEmpty(v) {
				continue // optional dates are allowed to be absent
			}
			return &Rejection{Field: name, Reason: fmt.Sprintf("not a date: %v", v)}
		}
		if ts.Before(earliestSaneDate) {
			return &Rejection{Field: name, Reason: fmt.Sprintf("date %s before 2000-01-01", ts.Format("2006-01-02"))}
		}
		if ts.After(now.Add(futureSlack)) {
			return &Rejection{Field: name, Reason: fmt.Sprintf("date %s too far in the future", ts.Format("2006-01-02"))}
		}
	}

	for _, name := range rules.Currency {
		v, rej := at(name)
		if rej != nil {
			return rej
		}
		code, _ := v.(string)
		if code == "" {
			continue // currency is optional; amount rules catch missing money
		}
		if _, err := currency.ParseISO(code); err != nil {
			return &Rejection{Field: name, Reason: fmt.Sprintf("invalid currency code %q", code)}
		}
	}

	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case time.Time:
		return t.IsZero()
	default:
		return false
	}
}

func isNegative(v any) (neg, ok bool) {
	switch t := v.(type) {
	case nil:
		return false, true // absent metrics are handled by Required, not here
	case int:
		return t < 0, true
	case int64:
		return t < 0, true
	case float64:
		return t < 0, true
	case decimal.Decimal:
		return t.IsNegative(), true
	default:
		return false, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		if t == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
