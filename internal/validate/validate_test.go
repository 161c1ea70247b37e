package validate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"datasync/internal/canonical"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var orderSpec = canonical.EntitySpec{
	Table: "orders",
	Columns: []canonical.Column{
		{Name: "order_id", Type: "text"},
		{Name: "created_at", Type: "timestamp"},
		{Name: "total", Type: "decimal"},
		{Name: "currency", Type: "text", Nullable: true},
	},
	NaturalKey: []string{"order_id"},
}

var orderRules = Rules{
	Required:    []string{"order_id", "created_at"},
	NonNegative: []string{"total"},
	Dates:       []string{"created_at"},
	Currency:    []string{"currency"},
}

func TestCheck(t *testing.T) {
	ok := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		row       []any
		wantField string // "" means accepted
	}{
		{
			name: "valid_row",
			row:  []any{"1001", ok, decimal.NewFromFloat(19.99), "AUD"},
		},
		{
			name: "zero_amount_is_valid",
			row:  []any{"1002", ok, decimal.Zero, "USD"},
		},
		{
			name: "empty_currency_is_valid",
			row:  []any{"1003", ok, decimal.NewFromInt(5), ""},
		},
		{
			name:      "missing_id",
			row:       []any{"", ok, decimal.NewFromInt(5), "AUD"},
			wantField: "order_id",
		},
		{
			name:      "nil_id",
			row:       []any{nil, ok, decimal.NewFromInt(5), "AUD"},
			wantField: "order_id",
		},
		{
			name:      "zero_time_required",
			row:       []any{"1004", time.Time{}, decimal.NewFromInt(5), "AUD"},
			wantField: "created_at",
		},
		{
			name:      "negative_amount",
			row:       []any{"1005", ok, decimal.NewFromFloat(-0.01), "AUD"},
			wantField: "total",
		},
		{
			name:      "prehistoric_date",
			row:       []any{"1006", time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), decimal.Zero, "AUD"},
			wantField: "created_at",
		},
		{
			name:      "far_future_date",
			row:       []any{"1007", testNow.Add(72 * time.Hour), decimal.Zero, "AUD"},
			wantField: "created_at",
		},
		{
			name: "near_future_tolerated",
			row:  []any{"1008", testNow.Add(24 * time.Hour), decimal.Zero, "AUD"},
		},
		{
			name:      "bogus_currency",
			row:       []any{"1009", ok, decimal.Zero, "DOLLARS"},
			wantField: "currency",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rej := Check(orderSpec, orderRules, tc.row, testNow)
			if tc.wantField == "" {
				if rej != nil {
					t.Fatalf("Check() rejected valid row: %v", rej)
				}
				return
			}
			if rej == nil {
				t.Fatalf("Check() accepted row, want rejection on %s", tc.wantField)
			}
			if rej.Field != tc.wantField {
				t.Fatalf("Check() rejected on %s (%s), want %s", rej.Field, rej.Reason, tc.wantField)
			}
		})
	}
}

// TestCheck_NumericShapes verifies the gate handles every numeric type the
// normalizers emit.
func TestCheck_NumericShapes(t *testing.T) {
	spec := canonical.EntitySpec{
		Table: "m",
		Columns: []canonical.Column{
			{Name: "id", Type: "text"},
			{Name: "v", Type: "double"},
		},
		NaturalKey: []string{"id"},
	}
	rules := Rules{NonNegative: []string{"v"}}

	for _, tc := range []struct {
		name   string
		v      any
		reject bool
	}{
		{name: "int64_ok", v: int64(3)},
		{name: "int64_neg", v: int64(-3), reject: true},
		{name: "float_ok", v: 1.5},
		{name: "float_neg", v: -1.5, reject: true},
		{name: "decimal_neg", v: decimal.NewFromInt(-1), reject: true},
		{name: "nil_ok", v: nil},
		{name: "string_not_numeric", v: "12", reject: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rej := Check(spec, rules, []any{"x", tc.v}, testNow)
			if got := rej != nil; got != tc.reject {
				t.Fatalf("Check(v=%v) rejected=%v (%v), want %v", tc.v, got, rej, tc.reject)
			}
		})
	}
}

// TestCheck_RuleReferencingUnknownColumn verifies misconfigured rules fail the
// row rather than passing silently.
func TestCheck_RuleReferencingUnknownColumn(t *testing.T) {
	spec := canonical.EntitySpec{
		Table:      "m",
		Columns:    []canonical.Column{{Name: "id", Type: "text"}},
		NaturalKey: []string{"id"},
	}
	rej := Check(spec, Rules{Required: []string{"missing"}}, []any{"x"}, testNow)
	if rej == nil || rej.Field != "missing" {
		t.Fatalf("Check()=%v, want rejection on unknown column", rej)
	}
}

// TestCheck_OptionalDateAbsent verifies empty optional dates pass the date rule.
func TestCheck_OptionalDateAbsent(t *testing.T) {
	spec := canonical.EntitySpec{
		Table: "m",
		Columns: []canonical.Column{
			{Name: "id", Type: "text"},
			{Name: "sent", Type: "timestamp", Nullable: true},
		},
		NaturalKey: []string{"id"},
	}
	rules := Rules{Required: []string{"id"}, Dates: []string{"sent"}}

	if rej := Check(spec, rules, []any{"x", nil}, testNow); rej != nil {
		t.Fatalf("nil optional date rejected: %v", rej)
	}
	if rej := Check(spec, rules, []any{"x", "not-a-date"}, testNow); rej == nil {
		t.Fatalf("garbage date accepted")
	}
}
