package normalize

import (
	"time"

	"datasync/internal/canonical"
	"datasync/internal/connector"
	"datasync/internal/validate"
)

// Payload kind: "daily" — one aggregate e-commerce row per date.

var ga4Entities = []entity{
	{
		spec: canonical.EntitySpec{
			Table: "web_daily_ecommerce",
			Columns: []canonical.Column{
				col("date", "date"),
				col("sessions", "bigint"),
				col("users", "bigint"),
				col("transactions", "bigint"),
				col("revenue", "decimal"),
				col("conversion_rate", "double"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"date"},
		},
		rules: validate.Rules{
			Required:    []string{"date"},
			NonNegative: []string{"sessions", "users", "transactions", "revenue", "conversion_rate"},
			Dates:       []string{"date"},
		},
	},
}

func ga4Rows(p connector.Payload, syncedAt time.Time) []EntityBatch {
	daily := EntityBatch{Spec: ga4Entities[0].spec, Rules: ga4Entities[0].rules}

	for _, rec := range p["daily"] {
		daily.Rows = append(daily.Rows, []any{
			mustDate(rec, "date"),
			getInt64(rec, "sessions"),
			getInt64(rec, "users"),
			getInt64(rec, "transactions"),
			getDecimal(rec, "revenue"),
			getFloat(rec, "conversion_rate"),
			syncedAt,
		})
	}

	return []EntityBatch{daily}
}
