package connector

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("429 too many requests")

	if got := ClassOf(RateLimited(base)); got != "rate_limited" {
		t.Fatalf("ClassOf(rate limited)=%s", got)
	}
	if got := ClassOf(AuthFailed(base)); got != "auth_error" {
		t.Fatalf("ClassOf(auth)=%s", got)
	}
	if got := ClassOf(Transient(base)); got != "transient_error" {
		t.Fatalf("ClassOf(transient)=%s", got)
	}
	// Unclassified errors default to transient.
	if got := ClassOf(errors.New("dial tcp: timeout")); got != "transient_error" {
		t.Fatalf("ClassOf(plain)=%s", got)
	}

	if !IsRateLimited(RateLimited(base)) || IsRateLimited(Transient(base)) {
		t.Fatalf("IsRateLimited misclassifies")
	}
	if !IsAuth(AuthFailed(base)) || IsAuth(base) {
		t.Fatalf("IsAuth misclassifies")
	}

	// Classification survives wrapping.
	wrapped := errorsJoin("fetch window", RateLimited(base))
	if !IsRateLimited(wrapped) {
		t.Fatalf("wrapped rate-limit error lost its class")
	}

	if got := RateLimited(base).Error(); got != "rate_limited: 429 too many requests" {
		t.Fatalf("Error()=%q", got)
	}
	if !errors.Is(RateLimited(base), base) {
		t.Fatalf("Unwrap broken")
	}
}

func errorsJoin(msg string, err error) error {
	return &wrapErr{msg: msg, err: err}
}

type wrapErr struct {
	msg string
	err error
}

func (w *wrapErr) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrapErr) Unwrap() error { return w.err }

func TestRegister_Panics(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func()
	}{
		{name: "empty_kind", fn: func() { Register("", func(Config) (Connector, error) { return nil, nil }) }},
		{name: "nil_factory", fn: func() { Register("x", nil) }},
		{name: "duplicate", fn: func() { Register("replay", func(Config) (Connector, error) { return nil, nil }) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("Register did not panic")
				}
			}()
			tc.fn()
		})
	}
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(Config{Kind: "nope"}); err == nil {
		t.Fatalf("New(nope) err=nil")
	}
	if _, err := New(Config{}); err == nil {
		t.Fatalf("New(empty kind) err=nil")
	}
}

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestReplay_FiltersByDate(t *testing.T) {
	path := writeFixture(t, `{
		"orders": [
			{"id": 1, "created_at": "2025-06-09T23:59:59Z"},
			{"id": 2, "created_at": "2025-06-10T00:00:00Z"},
			{"id": 3, "created_at": "2025-06-11T00:00:00Z"}
		],
		"products": [
			{"id": 55, "title": "no date, always returned"}
		]
	}`)

	conn, err := New(Config{Kind: "replay", Options: map[string]string{"path": path}})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	start := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	p, err := conn.Fetch(context.Background(), start, end)
	if err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}

	if len(p["orders"]) != 1 {
		t.Fatalf("orders=%d, want 1 (half-open range)", len(p["orders"]))
	}
	if id, ok := p["orders"][0]["id"].(json.Number); !ok || id.String() != "2" {
		t.Fatalf("wrong order survived: %v", p["orders"][0])
	}
	// Catalog records without a date field ride along on every fetch.
	if len(p["products"]) != 1 {
		t.Fatalf("products=%d, want 1", len(p["products"]))
	}
	if p.Total() != 2 {
		t.Fatalf("Total()=%d, want 2", p.Total())
	}
}

func TestReplay_BareArrayUsesConfiguredKind(t *testing.T) {
	path := writeFixture(t, `[{"query": "taps", "date": "2025-06-10"}]`)

	conn, err := New(Config{Kind: "replay", Options: map[string]string{"path": path, "kind": "queries"}})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	p, err := conn.Fetch(context.Background(),
		time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Fetch() err=%v", err)
	}
	if len(p["queries"]) != 1 {
		t.Fatalf("queries=%d, want 1", len(p["queries"]))
	}
}

func TestReplay_Errors(t *testing.T) {
	if _, err := New(Config{Kind: "replay"}); err == nil {
		t.Fatalf("missing path accepted")
	}

	conn, err := New(Config{Kind: "replay", Options: map[string]string{"path": "/nonexistent/f.json"}})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	_, err = conn.Fetch(context.Background(), time.Time{}, time.Now())
	if err == nil || ClassOf(err) != "transient_error" {
		t.Fatalf("missing file err=%v, want transient", err)
	}

	bad := writeFixture(t, `"just a string"`)
	conn, _ = New(Config{Kind: "replay", Options: map[string]string{"path": bad}})
	if _, err := conn.Fetch(context.Background(), time.Time{}, time.Now()); err == nil {
		t.Fatalf("unsupported fixture root accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := conn.Fetch(ctx, time.Time{}, time.Now()); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx err=%v", err)
	}
}

func TestParseTime(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want time.Time
	}{
		{"2025-06-10", time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)},
		{"2025-06-10T03:15:00Z", time.Date(2025, 6, 10, 3, 15, 0, 0, time.UTC)},
		{"2025-06-10T03:15:00.25Z", time.Date(2025, 6, 10, 3, 15, 0, 250000000, time.UTC)},
		{"2025-06-10T13:15:00+10:00", time.Date(2025, 6, 10, 3, 15, 0, 0, time.UTC)},
	} {
		got, err := ParseTime(tc.in)
		if err != nil {
			t.Fatalf("ParseTime(%q) err=%v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("ParseTime(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseTime("10/06/2025"); err == nil {
		t.Fatalf("ParseTime accepted non-ISO date")
	}
}
