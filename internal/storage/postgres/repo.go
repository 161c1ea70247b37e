package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"datasync/internal/canonical"
	"datasync/internal/storage"
)

// Repo implements storage.Store for Postgres.
//
// Upsert counting uses the RETURNING (xmax = 0) trick: xmax is zero for a row
// version created by INSERT and non-zero when ON CONFLICT took the UPDATE
// path. That gives exact saved/updated counts in a single round trip per
// chunk, without a pre-read.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New opens a pgx pool against cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() { r.pool.Close() }

// EnsureTables creates tables with their natural-key UNIQUE constraints.
// Idempotent via CREATE TABLE IF NOT EXISTS.
func (r *Repo) EnsureTables(ctx context.Context, specs []canonical.EntitySpec) error {
	for _, s := range specs {
		ddl, err := buildCreateSQL(s)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", s.Table, err)
		}
	}
	return nil
}

// maxParamsPerStmt keeps each statement well under the wire-protocol limit of
// 65535 bind parameters.
const maxParamsPerStmt = 16000

// Upsert performs chunked INSERT ... ON CONFLICT ... DO UPDATE and counts
// inserts vs. updates from the RETURNING clause.
func (r *Repo) Upsert(ctx context.Context, spec canonical.EntitySpec, rows [][]any) (storage.UpsertStats, error) {
	var stats storage.UpsertStats
	if len(rows) == 0 {
		return stats, nil
	}

	cols := spec.ColumnNames()
	chunk := maxParamsPerStmt / len(cols)
	if chunk < 1 {
		chunk = 1
	}

	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		part := rows[start:end]

		sql, args := buildUpsertSQL(spec.Table, cols, part, spec.NaturalKey, spec.NonKeyColumns())
		qrows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return stats, fmt.Errorf("postgres: upsert %s: %w", spec.Table, err)
		}

		for qrows.Next() {
			var inserted bool
			if err := qrows.Scan(&inserted); err != nil {
				qrows.Close()
				return stats, fmt.Errorf("postgres: upsert %s: scan: %w", spec.Table, err)
			}
			if inserted {
				stats.Saved++
			} else {
				stats.Updated++
			}
		}
		if err := qrows.Err(); err != nil {
			qrows.Close()
			return stats, fmt.Errorf("postgres: upsert %s: rows: %w", spec.Table, err)
		}
		qrows.Close()
	}
	return stats, nil
}

// buildUpsertSQL constructs one INSERT ... ON CONFLICT DO UPDATE statement.
//
// Why this exists:
//   - It is pure and deterministic, so ON CONFLICT targets, the EXCLUDED set
//     list, and placeholder numbering are unit-testable without a database.
//
// When updateCols is empty (a pure-key table) the statement falls back to
// DO NOTHING and reports every row via RETURNING as inserted-or-skipped;
// callers do not define such tables today.
func buildUpsertSQL(table string, columns []string, rows [][]any, conflictCols, updateCols []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(" ON CONFLICT (")
	for i, c := range conflictCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(")")

	if len(updateCols) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		for i, c := range updateCols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
			b.WriteString(" = EXCLUDED.")
			b.WriteString(pgIdent(c))
		}
	}

	b.WriteString(" RETURNING (xmax = 0)")
	return b.String(), args
}

// InsertRows performs a plain chunked bulk INSERT.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	chunk := maxParamsPerStmt / len(columns)
	if chunk < 1 {
		chunk = 1
	}

	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}

		sql, args := buildInsertSQL(table, columns, rows[start:end])
		cmd, err := r.pool.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("postgres: insert %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// UpdateRow updates set columns on rows matching all of where.
func (r *Repo) UpdateRow(ctx context.Context, table string, set []storage.Assign, where []storage.Assign) (int64, error) {
	if len(set) == 0 {
		return 0, fmt.Errorf("postgres: UpdateRow %s: empty set", table)
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(pgIdent(table))
	b.WriteString(" SET ")

	args := make([]any, 0, len(set)+len(where))
	p := 1
	for i, a := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(a.Column))
		fmt.Fprintf(&b, " = $%d", p)
		args = append(args, a.Value)
		p++
	}

	for i, a := range where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(pgIdent(a.Column))
		fmt.Fprintf(&b, " = $%d", p)
		args = append(args, a.Value)
		p++
	}

	cmd, err := r.pool.Exec(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: update %s: %w", table, err)
	}
	return cmd.RowsAffected(), nil
}

// SelectRows returns matching rows as generic value slices.
func (r *Repo) SelectRows(ctx context.Context, table string, columns []string, where []storage.Assign, orderBy string, limit int) ([][]any, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(" FROM ")
	b.WriteString(pgIdent(table))

	args := make([]any, 0, len(where))
	p := 1
	for i, a := range where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(pgIdent(a.Column))
		fmt.Fprintf(&b, " = $%d", p)
		args = append(args, a.Value)
		p++
	}

	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}

	qrows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: select %s: %w", table, err)
	}
	defer qrows.Close()

	var out [][]any
	for qrows.Next() {
		// pgx requires pointer destinations for a dynamic column list:
		// allocate the values slice and scan into parallel pointers.
		vals := make([]any, len(columns))
		dests := make([]any, len(columns))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := qrows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("postgres: select %s: scan: %w", table, err)
		}
		out = append(out, vals)
	}
	if err := qrows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: select %s: rows: %w", table, err)
	}
	return out, nil
}

// DeleteBefore removes rows strictly older than cutoff.
func (r *Repo) DeleteBefore(ctx context.Context, table, tsColumn string, cutoff time.Time) (int64, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s < $1", pgIdent(table), pgIdent(tsColumn))
	cmd, err := r.pool.Exec(ctx, sql, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete from %s: %w", table, err)
	}
	return cmd.RowsAffected(), nil
}
