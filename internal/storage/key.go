package storage

import (
	"fmt"
	"strings"
	"time"
)

// KeyString renders a natural-key tuple as a stable string form, e.g.
// "8429529" or "tapware|2025-06-01". Used for ledger rows and log lines;
// backends never rely on it for conflict detection.
func KeyString(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = keyPart(v)
	}
	return strings.Join(parts, "|")
}

func keyPart(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case time.Time:
		return t.UTC().Format("2006-01-02")
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
