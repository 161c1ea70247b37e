package normalize

import (
	"time"

	"datasync/internal/canonical"
	"datasync/internal/connector"
	"datasync/internal/validate"
)

// Merchant Center is a snapshot source: the API only reports current state, so
// every sync stamps rows with the run's snapshot date. Re-running on the same
// day updates that day's snapshot in place; the next day inserts fresh rows.
//
// Payload kinds: "product_statuses" (with embedded item_issues),
// "account_statuses".

var merchantCenterEntities = []entity{
	{
		spec: canonical.EntitySpec{
			Table: "feed_product_statuses",
			Columns: []canonical.Column{
				col("product_id", "text"),
				col("snapshot_date", "date"),
				nullable("title", "text"),
				nullable("destination", "text"),
				nullable("status", "text"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"product_id", "snapshot_date"},
		},
		rules: validate.Rules{
			Required: []string{"product_id", "snapshot_date"},
			Dates:    []string{"snapshot_date"},
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "feed_disapprovals",
			Columns: []canonical.Column{
				col("product_id", "text"),
				col("issue_code", "text"),
				col("snapshot_date", "date"),
				nullable("severity", "text"),
				nullable("description", "longtext"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"product_id", "issue_code", "snapshot_date"},
		},
		rules: validate.Rules{
			Required: []string{"product_id", "issue_code", "snapshot_date"},
			Dates:    []string{"snapshot_date"},
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "feed_account_statuses",
			Columns: []canonical.Column{
				col("account_id", "text"),
				col("snapshot_date", "date"),
				nullable("status", "text"),
				col("issue_count", "int"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"account_id", "snapshot_date"},
		},
		rules: validate.Rules{
			Required:    []string{"account_id", "snapshot_date"},
			NonNegative: []string{"issue_count"},
			Dates:       []string{"snapshot_date"},
		},
	},
}

func merchantCenterRows(p connector.Payload, syncedAt time.Time) []EntityBatch {
	snapshot := dateOnly(syncedAt)

	statuses := EntityBatch{Spec: merchantCenterEntities[0].spec, Rules: merchantCenterEntities[0].rules}
	issues := EntityBatch{Spec: merchantCenterEntities[1].spec, Rules: merchantCenterEntities[1].rules}
	accounts := EntityBatch{Spec: merchantCenterEntities[2].spec, Rules: merchantCenterEntities[2].rules}

	for _, rec := range p["product_statuses"] {
		productID := getString(rec, "product_id")
		statuses.Rows = append(statuses.Rows, []any{
			productID,
			snapshot,
			getString(rec, "title"),
			getString(rec, "destination"),
			getString(rec, "status"),
			syncedAt,
		})

		rawIssues, _ := rec["item_issues"].([]any)
		for _, ri := range rawIssues {
			obj, ok := ri.(map[string]any)
			if !ok {
				continue
			}
			ir := connector.Record(obj)
			issues.Rows = append(issues.Rows, []any{
				productID,
				getString(ir, "code"),
				snapshot,
				getString(ir, "severity"),
				getString(ir, "description"),
				syncedAt,
			})
		}
	}

	for _, rec := range p["account_statuses"] {
		accounts.Rows = append(accounts.Rows, []any{
			getString(rec, "account_id"),
			snapshot,
			getString(rec, "status"),
			getInt64(rec, "issue_count"),
			syncedAt,
		})
	}

	return []EntityBatch{statuses, issues, accounts}
}
