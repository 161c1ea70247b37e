// Package sqlite implements the canonical store on SQLite via the pure-Go
// modernc.org driver. Intended for local runs and tests; an in-memory DSN
// (":memory:") gives a fully functional store with zero setup.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"datasync/internal/canonical"
	"datasync/internal/storage"
)

func init() {
	storage.Register("sqlite", New)
}

// Repo implements storage.Store for SQLite.
//
// SQLite has no equivalent of the Postgres xmax trick, so Upsert runs each
// chunk in a transaction and probes key existence per row before applying
// INSERT ... ON CONFLICT DO UPDATE. Row volumes here are modest (local
// and test usage), so per-row statements are acceptable.
type Repo struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// The driver is not safe for concurrent writers on one file; a single
	// connection serializes everything and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

// Close closes the database handle.
func (r *Repo) Close() { r.db.Close() }

// EnsureTables creates the tables if missing.
func (r *Repo) EnsureTables(ctx context.Context, specs []canonical.EntitySpec) error {
	for _, s := range specs {
		ddl, err := buildCreateSQL(s)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: create table %s: %w", s.Table, err)
		}
	}
	return nil
}

// Upsert applies rows one at a time inside a transaction, probing for key
// existence first so saved/updated counts are exact.
func (r *Repo) Upsert(ctx context.Context, spec canonical.EntitySpec, rows [][]any) (storage.UpsertStats, error) {
	var stats storage.UpsertStats
	if len(rows) == 0 {
		return stats, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("sqlite: upsert %s: begin: %w", spec.Table, err)
	}
	defer tx.Rollback()

	probeSQL := buildKeyProbeSQL(spec.Table, spec.NaturalKey)
	upsertSQL := buildUpsertSQL(spec.Table, spec.ColumnNames(), spec.NaturalKey, spec.NonKeyColumns())

	probe, err := tx.PrepareContext(ctx, probeSQL)
	if err != nil {
		return stats, fmt.Errorf("sqlite: upsert %s: prepare probe: %w", spec.Table, err)
	}
	defer probe.Close()

	upsert, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return stats, fmt.Errorf("sqlite: upsert %s: prepare upsert: %w", spec.Table, err)
	}
	defer upsert.Close()

	keyIdx := spec.KeyIndices()
	for _, row := range rows {
		keyVals := make([]any, len(keyIdx))
		for i, ki := range keyIdx {
			keyVals[i] = bindValue(row[ki])
		}

		var exists bool
		if err := probe.QueryRowContext(ctx, keyVals...).Scan(&exists); err != nil {
			// The rollback undoes every row in the batch, so no partial counts.
			return storage.UpsertStats{}, fmt.Errorf("sqlite: upsert %s: probe: %w", spec.Table, err)
		}

		args := make([]any, len(row))
		for i, v := range row {
			args[i] = bindValue(v)
		}
		if _, err := upsert.ExecContext(ctx, args...); err != nil {
			return storage.UpsertStats{}, fmt.Errorf("sqlite: upsert %s: %w", spec.Table, err)
		}

		if exists {
			stats.Updated++
		} else {
			stats.Saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.UpsertStats{}, fmt.Errorf("sqlite: upsert %s: commit: %w", spec.Table, err)
	}
	return stats, nil
}

func buildKeyProbeSQL(table string, key []string) string {
	var b strings.Builder
	b.WriteString("SELECT EXISTS (SELECT 1 FROM ")
	b.WriteString(ident(table))
	b.WriteString(" WHERE ")
	for i, c := range key {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(ident(c))
		b.WriteString(" = ?")
	}
	b.WriteString(")")
	return b.String()
}

func buildUpsertSQL(table string, columns, conflictCols, updateCols []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ident(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(") ON CONFLICT (")
	for i, c := range conflictCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(")")

	if len(updateCols) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}

	b.WriteString(" DO UPDATE SET ")
	for i, c := range updateCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
		b.WriteString(" = excluded.")
		b.WriteString(ident(c))
	}
	return b.String()
}

// InsertRows appends rows without conflict handling.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert %s: begin: %w", table, err)
	}
	defer tx.Rollback()

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ident(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(")")

	stmt, err := tx.PrepareContext(ctx, b.String())
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert %s: prepare: %w", table, err)
	}
	defer stmt.Close()

	var total int64
	for _, row := range rows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = bindValue(v)
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return total, fmt.Errorf("sqlite: insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: insert %s: commit: %w", table, err)
	}
	return total, nil
}

// UpdateRow updates set columns on rows matching all of where.
func (r *Repo) UpdateRow(ctx context.Context, table string, set []storage.Assign, where []storage.Assign) (int64, error) {
	if len(set) == 0 {
		return 0, fmt.Errorf("sqlite: UpdateRow %s: empty set", table)
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(ident(table))
	b.WriteString(" SET ")

	args := make([]any, 0, len(set)+len(where))
	for i, a := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(a.Column))
		b.WriteString(" = ?")
		args = append(args, bindValue(a.Value))
	}
	for i, a := range where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(ident(a.Column))
		b.WriteString(" = ?")
		args = append(args, bindValue(a.Value))
	}

	res, err := r.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: update %s: %w", table, err)
	}
	return res.RowsAffected()
}

// SelectRows returns matching rows as generic value slices.
func (r *Repo) SelectRows(ctx context.Context, table string, columns []string, where []storage.Assign, orderBy string, limit int) ([][]any, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(ident(table))

	args := make([]any, 0, len(where))
	for i, a := range where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(ident(a.Column))
		b.WriteString(" = ?")
		args = append(args, bindValue(a.Value))
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}

	qrows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select %s: %w", table, err)
	}
	defer qrows.Close()

	var out [][]any
	for qrows.Next() {
		vals := make([]any, len(columns))
		dests := make([]any, len(columns))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := qrows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("sqlite: select %s: scan: %w", table, err)
		}
		out = append(out, vals)
	}
	if err := qrows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: select %s: rows: %w", table, err)
	}
	return out, nil
}

// DeleteBefore removes rows strictly older than cutoff. Timestamps are stored
// as RFC 3339 text, which compares correctly as strings.
func (r *Repo) DeleteBefore(ctx context.Context, table, tsColumn string, cutoff time.Time) (int64, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s < ?", ident(table), ident(tsColumn))
	res, err := r.db.ExecContext(ctx, sql, bindValue(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

// timeText is a fixed-width RFC 3339 layout. RFC3339Nano drops trailing zero
// fractions, which breaks lexicographic ordering within a second
// ("...00Z" sorts after "...00.5Z"); a constant 9-digit fraction keeps string
// order identical to time order.
const timeText = "2006-01-02T15:04:05.000000000Z07:00"

// bindValue converts Go values into shapes the driver stores portably.
// time.Time becomes fixed-width RFC 3339 UTC text so ordering and range
// comparisons work lexicographically.
func bindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(timeText)
	default:
		return v
	}
}

func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// buildCreateSQL renders CREATE TABLE IF NOT EXISTS for a spec. All temporal
// columns are TEXT (RFC 3339 / ISO dates); SQLite's type affinity makes the
// rest straightforward.
func buildCreateSQL(spec canonical.EntitySpec) (string, error) {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(ident(spec.Table))
	b.WriteString(" (")

	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		typ, err := sqliteType(c.Type)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", spec.Table, c.Name, err)
		}
		b.WriteString(ident(c.Name))
		b.WriteString(" ")
		b.WriteString(typ)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}

	if len(spec.NaturalKey) > 0 {
		b.WriteString(", UNIQUE (")
		for i, c := range spec.NaturalKey {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ident(c))
		}
		b.WriteString(")")
	}

	b.WriteString(")")
	return b.String(), nil
}

func sqliteType(portable string) (string, error) {
	switch portable {
	case "text", "longtext", "date", "timestamp":
		return "TEXT", nil
	case "bigint", "int":
		return "INTEGER", nil
	case "double", "decimal":
		return "REAL", nil
	case "bool":
		return "INTEGER", nil
	default:
		return "", fmt.Errorf("sqlite: unsupported column type %q", portable)
	}
}
