package postgres

import (
	"fmt"
	"strings"

	"datasync/internal/canonical"
)

// pgIdent quotes an identifier for Postgres. Names come from entity specs, not
// user input, but quoting keeps reserved words (e.g. "date") safe.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgType maps the portable column type keywords to Postgres types.
func pgType(portable string) (string, error) {
	switch portable {
	case "text", "longtext":
		return "TEXT", nil
	case "date":
		return "DATE", nil
	case "timestamp":
		return "TIMESTAMPTZ", nil
	case "bigint":
		return "BIGINT", nil
	case "int":
		return "INTEGER", nil
	case "double":
		return "DOUBLE PRECISION", nil
	case "decimal":
		return "NUMERIC(18,6)", nil
	case "bool":
		return "BOOLEAN", nil
	default:
		return "", fmt.Errorf("postgres: unsupported column type %q", portable)
	}
}

// buildCreateSQL renders the CREATE TABLE IF NOT EXISTS statement for a spec,
// including the UNIQUE constraint over the natural key that ON CONFLICT
// targets.
func buildCreateSQL(spec canonical.EntitySpec) (string, error) {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(pgIdent(spec.Table))
	b.WriteString(" (")

	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		typ, err := pgType(c.Type)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", spec.Table, c.Name, err)
		}
		b.WriteString(pgIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(typ)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}

	if len(spec.NaturalKey) > 0 {
		b.WriteString(", CONSTRAINT ")
		b.WriteString(pgIdent("uq_" + spec.Table + "_key"))
		b.WriteString(" UNIQUE (")
		for i, c := range spec.NaturalKey {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(")")
	}

	b.WriteString(")")
	return b.String(), nil
}
