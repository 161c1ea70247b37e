package normalize

import (
	"time"

	"datasync/internal/canonical"
	"datasync/internal/connector"
	"datasync/internal/validate"
)

// Payload kinds: "queries" and "pages" — one metric row per (dimension, date).

var searchMetricRules = validate.Rules{
	NonNegative: []string{"clicks", "impressions", "ctr", "position"},
	Dates:       []string{"date"},
}

var searchConsoleEntities = []entity{
	{
		spec: canonical.EntitySpec{
			Table: "search_queries",
			Columns: []canonical.Column{
				col("query", "text"),
				col("date", "date"),
				col("clicks", "bigint"),
				col("impressions", "bigint"),
				col("ctr", "double"),
				col("position", "double"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"query", "date"},
		},
		rules: validate.Rules{
			Required:    []string{"query", "date"},
			NonNegative: searchMetricRules.NonNegative,
			Dates:       searchMetricRules.Dates,
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "search_pages",
			Columns: []canonical.Column{
				col("page", "text"),
				col("date", "date"),
				col("clicks", "bigint"),
				col("impressions", "bigint"),
				col("ctr", "double"),
				col("position", "double"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"page", "date"},
		},
		rules: validate.Rules{
			Required:    []string{"page", "date"},
			NonNegative: searchMetricRules.NonNegative,
			Dates:       searchMetricRules.Dates,
		},
	},
}

func searchConsoleRows(p connector.Payload, syncedAt time.Time) []EntityBatch {
	queries := EntityBatch{Spec: searchConsoleEntities[0].spec, Rules: searchConsoleEntities[0].rules}
	pages := EntityBatch{Spec: searchConsoleEntities[1].spec, Rules: searchConsoleEntities[1].rules}

	for _, rec := range p["queries"] {
		queries.Rows = append(queries.Rows, []any{
			getString(rec, "query"),
			mustDate(rec, "date"),
			getInt64(rec, "clicks"),
			getInt64(rec, "impressions"),
			getFloat(rec, "ctr"),
			getFloat(rec, "position"),
			syncedAt,
		})
	}

	for _, rec := range p["pages"] {
		pages.Rows = append(pages.Rows, []any{
			getString(rec, "page"),
			mustDate(rec, "date"),
			getInt64(rec, "clicks"),
			getInt64(rec, "impressions"),
			getFloat(rec, "ctr"),
			getFloat(rec, "position"),
			syncedAt,
		})
	}

	return []EntityBatch{queries, pages}
}
