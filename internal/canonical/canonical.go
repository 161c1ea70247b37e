// Package canonical defines the shared table/row types that the normalizers,
// the validation gate, the storage backends, and the engine all exchange.
//
// The types live here so backend packages can import them without circular
// deps against the engine.
package canonical

// EntitySpec describes one canonical table.
//
// The natural key is the externally-stable identifier tuple that defines
// upsert identity; the storage layer enforces it with a UNIQUE constraint and
// uses it as the conflict target.
type EntitySpec struct {
	Table      string
	Columns    []Column
	NaturalKey []string // column names; must be a subset of Columns
}

// Column declares a single column with a portable type keyword. Backends map
// the keyword to their native DDL type.
//
// Supported types: "text", "longtext", "date", "timestamp", "bigint", "int",
// "double", "decimal", "bool".
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// ColumnNames returns the column names in declaration order.
func (s EntitySpec) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// KeyIndices returns the positions of the natural-key columns within Columns.
// Missing key columns map to -1; specs are validated at registration time so
// that should not occur in practice.
func (s EntitySpec) KeyIndices() []int {
	idx := make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		idx[c.Name] = i
	}
	out := make([]int, len(s.NaturalKey))
	for i, k := range s.NaturalKey {
		if j, ok := idx[k]; ok {
			out[i] = j
		} else {
			out[i] = -1
		}
	}
	return out
}

// NonKeyColumns returns the names of columns outside the natural key. These
// are the columns an upsert overwrites on conflict.
func (s EntitySpec) NonKeyColumns() []string {
	key := make(map[string]bool, len(s.NaturalKey))
	for _, k := range s.NaturalKey {
		key[k] = true
	}
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if !key[c.Name] {
			out = append(out, c.Name)
		}
	}
	return out
}
