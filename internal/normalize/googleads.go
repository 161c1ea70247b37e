package normalize

import (
	"time"

	"datasync/internal/canonical"
	"datasync/internal/connector"
	"datasync/internal/validate"
)

// Payload kinds: "campaigns", "ad_groups", "search_terms" — each one metric
// row per (entity, date).

var adMetricRules = validate.Rules{
	NonNegative: []string{"impressions", "clicks", "cost"},
	Dates:       []string{"date"},
}

var googleAdsEntities = []entity{
	{
		spec: canonical.EntitySpec{
			Table: "ad_campaigns",
			Columns: []canonical.Column{
				col("campaign_id", "text"),
				col("date", "date"),
				nullable("campaign_name", "text"),
				nullable("status", "text"),
				col("impressions", "bigint"),
				col("clicks", "bigint"),
				col("cost", "decimal"),
				col("conversions", "double"),
				col("conversion_value", "decimal"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"campaign_id", "date"},
		},
		rules: validate.Rules{
			Required:    []string{"campaign_id", "date"},
			NonNegative: []string{"impressions", "clicks", "cost", "conversions", "conversion_value"},
			Dates:       adMetricRules.Dates,
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "ad_groups",
			Columns: []canonical.Column{
				col("ad_group_id", "text"),
				col("campaign_id", "text"),
				col("date", "date"),
				nullable("ad_group_name", "text"),
				col("impressions", "bigint"),
				col("clicks", "bigint"),
				col("cost", "decimal"),
				col("conversions", "double"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"ad_group_id", "date"},
		},
		rules: validate.Rules{
			Required:    []string{"ad_group_id", "campaign_id", "date"},
			NonNegative: []string{"impressions", "clicks", "cost", "conversions"},
			Dates:       adMetricRules.Dates,
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "ad_search_terms",
			Columns: []canonical.Column{
				col("search_term", "text"),
				col("campaign_id", "text"),
				col("ad_group_id", "text"),
				col("date", "date"),
				col("impressions", "bigint"),
				col("clicks", "bigint"),
				col("cost", "decimal"),
				col("conversions", "double"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"search_term", "campaign_id", "ad_group_id", "date"},
		},
		rules: validate.Rules{
			Required:    []string{"search_term", "campaign_id", "ad_group_id", "date"},
			NonNegative: adMetricRules.NonNegative,
			Dates:       adMetricRules.Dates,
		},
	},
}

func googleAdsRows(p connector.Payload, syncedAt time.Time) []EntityBatch {
	campaigns := EntityBatch{Spec: googleAdsEntities[0].spec, Rules: googleAdsEntities[0].rules}
	groups := EntityBatch{Spec: googleAdsEntities[1].spec, Rules: googleAdsEntities[1].rules}
	terms := EntityBatch{Spec: googleAdsEntities[2].spec, Rules: googleAdsEntities[2].rules}

	for _, rec := range p["campaigns"] {
		campaigns.Rows = append(campaigns.Rows, []any{
			getString(rec, "campaign_id"),
			mustDate(rec, "date"),
			getString(rec, "campaign_name"),
			getString(rec, "status"),
			getInt64(rec, "impressions"),
			getInt64(rec, "clicks"),
			getDecimal(rec, "cost"),
			getFloat(rec, "conversions"),
			getDecimal(rec, "conversion_value"),
			syncedAt,
		})
	}

	for _, rec := range p["ad_groups"] {
		groups.Rows = append(groups.Rows, []any{
			getString(rec, "ad_group_id"),
			getString(rec, "campaign_id"),
			mustDate(rec, "date"),
			getString(rec, "ad_group_name"),
			getInt64(rec, "impressions"),
			getInt64(rec, "clicks"),
			getDecimal(rec, "cost"),
			getFloat(rec, "conversions"),
			syncedAt,
		})
	}

	for _, rec := range p["search_terms"] {
		terms.Rows = append(terms.Rows, []any{
			getString(rec, "search_term"),
			getString(rec, "campaign_id"),
			getString(rec, "ad_group_id"),
			mustDate(rec, "date"),
			getInt64(rec, "impressions"),
			getInt64(rec, "clicks"),
			getDecimal(rec, "cost"),
			getFloat(rec, "conversions"),
			syncedAt,
		})
	}

	return []EntityBatch{campaigns, groups, terms}
}
