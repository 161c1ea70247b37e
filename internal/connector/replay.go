package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

func init() {
	Register("replay", newReplay)
}

// replay serves fetches from a JSON fixture file instead of a live API.
//
// It exists so the CLI and integration-style tests can exercise the full
// plan→fetch→normalize→validate→upsert path without external credentials.
//
// Fixture layout: either an object mapping entity kind to an array of records
//
//	{"orders": [...], "products": [...]}
//
// or a bare array, which is exposed under the kind named by options["kind"]
// (default "records").
//
// Records carrying a recognizable date field are filtered into the requested
// [start, end) range; records without one (catalog-style entities) are
// returned on every fetch, matching how full-catalog API endpoints behave.
type replay struct {
	path      string
	kind      string
	dateField string
}

func newReplay(cfg Config) (Connector, error) {
	path := cfg.Options["path"]
	if path == "" {
		return nil, fmt.Errorf("connector: replay requires options.path")
	}
	kind := cfg.Options["kind"]
	if kind == "" {
		kind = "records"
	}
	return &replay{
		path:      path,
		kind:      kind,
		dateField: cfg.Options["date_field"],
	}, nil
}

func (r *replay) Fetch(ctx context.Context, start, end time.Time) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, Transient(fmt.Errorf("replay: %w", err))
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber() // keep metric fields as json.Number; normalizers parse them

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, Transient(fmt.Errorf("replay: decode %s: %w", r.path, err))
	}

	out := Payload{}
	switch v := root.(type) {
	case map[string]any:
		for kind, raw := range v {
			arr, ok := raw.([]any)
			if !ok {
				continue
			}
			out[kind] = r.filter(arr, start, end)
		}
	case []any:
		out[r.kind] = r.filter(v, start, end)
	default:
		return nil, Transient(fmt.Errorf("replay: %s: unsupported fixture root", r.path))
	}
	return out, nil
}

func (r *replay) filter(arr []any, start, end time.Time) []Record {
	out := make([]Record, 0, len(arr))
	for _, e := range arr {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		rec := Record(obj)
		ts, ok := recordTime(rec, r.dateField)
		if ok && (ts.Before(start) || !ts.Before(end)) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// recordTime finds the record's timestamp using the configured field first,
// then the conventional names the sources use.
func recordTime(rec Record, preferred string) (time.Time, bool) {
	fields := []string{"date", "created_at", "send_time", "snapshot_date"}
	if preferred != "" {
		fields = append([]string{preferred}, fields...)
	}
	for _, f := range fields {
		raw, ok := rec[f]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if ts, err := ParseTime(s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseTime parses the timestamp shapes the sources emit: RFC3339 (with or
// without sub-seconds) and bare dates.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}
