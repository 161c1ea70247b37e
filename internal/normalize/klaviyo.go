package normalize

import (
	"time"

	"datasync/internal/canonical"
	"datasync/internal/connector"
	"datasync/internal/validate"
)

// Payload kinds: "campaigns", "flows", "flow_messages". Campaign and flow
// records carry lifetime stats, so each sync replaces the prior totals.

var klaviyoEntities = []entity{
	{
		spec: canonical.EntitySpec{
			Table: "email_campaigns",
			Columns: []canonical.Column{
				col("campaign_id", "text"),
				nullable("name", "text"),
				nullable("subject", "text"),
				nullable("status", "text"),
				nullable("send_time", "timestamp"),
				col("recipients", "bigint"),
				col("opens", "bigint"),
				col("clicks", "bigint"),
				col("revenue", "decimal"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"campaign_id"},
		},
		rules: validate.Rules{
			Required:    []string{"campaign_id"},
			NonNegative: []string{"recipients", "opens", "clicks", "revenue"},
			Dates:       []string{"send_time"},
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "email_flows",
			Columns: []canonical.Column{
				col("flow_id", "text"),
				nullable("name", "text"),
				nullable("status", "text"),
				nullable("trigger_type", "text"),
				nullable("created_at", "timestamp"),
				nullable("updated_at", "timestamp"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"flow_id"},
		},
		rules: validate.Rules{
			Required: []string{"flow_id"},
			Dates:    []string{"created_at"},
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "email_flow_messages",
			Columns: []canonical.Column{
				col("flow_id", "text"),
				col("message_id", "text"),
				nullable("name", "text"),
				nullable("channel", "text"),
				col("opens", "bigint"),
				col("clicks", "bigint"),
				col("revenue", "decimal"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"flow_id", "message_id"},
		},
		rules: validate.Rules{
			Required:    []string{"flow_id", "message_id"},
			NonNegative: []string{"opens", "clicks", "revenue"},
		},
	},
}

func klaviyoRows(p connector.Payload, syncedAt time.Time) []EntityBatch {
	campaigns := EntityBatch{Spec: klaviyoEntities[0].spec, Rules: klaviyoEntities[0].rules}
	flows := EntityBatch{Spec: klaviyoEntities[1].spec, Rules: klaviyoEntities[1].rules}
	messages := EntityBatch{Spec: klaviyoEntities[2].spec, Rules: klaviyoEntities[2].rules}

	for _, rec := range p["campaigns"] {
		campaigns.Rows = append(campaigns.Rows, []any{
			getString(rec, "id"),
			getString(rec, "name"),
			getString(rec, "subject"),
			getString(rec, "status"),
			getTime(rec, "send_time"),
			getInt64(rec, "recipients"),
			getInt64(rec, "opens"),
			getInt64(rec, "clicks"),
			getDecimal(rec, "revenue"),
			syncedAt,
		})
	}

	for _, rec := range p["flows"] {
		flows.Rows = append(flows.Rows, []any{
			getString(rec, "id"),
			getString(rec, "name"),
			getString(rec, "status"),
			getString(rec, "trigger_type"),
			getTime(rec, "created_at"),
			getTime(rec, "updated_at"),
			syncedAt,
		})
	}

	for _, rec := range p["flow_messages"] {
		messages.Rows = append(messages.Rows, []any{
			getString(rec, "flow_id"),
			getString(rec, "id"),
			getString(rec, "name"),
			getString(rec, "channel"),
			getInt64(rec, "opens"),
			getInt64(rec, "clicks"),
			getDecimal(rec, "revenue"),
			syncedAt,
		})
	}

	return []EntityBatch{campaigns, flows, messages}
}
