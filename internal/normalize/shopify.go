package normalize

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"datasync/internal/canonical"
	"datasync/internal/connector"
	"datasync/internal/validate"
)

// Payload kinds: "orders" (with embedded line_items and customer), "products",
// "customers", "refunds". Line items are flattened out of orders into their
// own entity.

var shopifyEntities = []entity{
	{
		spec: canonical.EntitySpec{
			Table: "shopify_orders",
			Columns: []canonical.Column{
				col("order_id", "text"),
				nullable("order_number", "text"),
				col("created_at", "timestamp"),
				nullable("updated_at", "timestamp"),
				nullable("financial_status", "text"),
				nullable("fulfillment_status", "text"),
				nullable("currency", "text"),
				col("total_price", "decimal"),
				nullable("subtotal_price", "decimal"),
				nullable("total_discounts", "decimal"),
				nullable("total_tax", "decimal"),
				nullable("customer_id", "text"),
				nullable("email", "text"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"order_id"},
		},
		rules: validate.Rules{
			Required:    []string{"order_id", "created_at"},
			NonNegative: []string{"total_price"},
			Dates:       []string{"created_at"},
			Currency:    []string{"currency"},
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "shopify_order_items",
			Columns: []canonical.Column{
				col("order_id", "text"),
				col("line_item_id", "text"),
				nullable("product_id", "text"),
				nullable("variant_id", "text"),
				nullable("sku", "text"),
				nullable("title", "text"),
				col("quantity", "int"),
				col("price", "decimal"),
				nullable("total_discount", "decimal"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"order_id", "line_item_id"},
		},
		rules: validate.Rules{
			Required:    []string{"order_id", "line_item_id"},
			NonNegative: []string{"quantity", "price"},
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "shopify_products",
			Columns: []canonical.Column{
				col("product_id", "text"),
				nullable("title", "text"),
				nullable("body_text", "longtext"),
				nullable("vendor", "text"),
				nullable("product_type", "text"),
				nullable("status", "text"),
				nullable("created_at", "timestamp"),
				nullable("updated_at", "timestamp"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"product_id"},
		},
		rules: validate.Rules{
			Required: []string{"product_id"},
			Dates:    []string{"created_at"},
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "shopify_customers",
			Columns: []canonical.Column{
				col("customer_id", "text"),
				nullable("email", "text"),
				nullable("first_name", "text"),
				nullable("last_name", "text"),
				col("orders_count", "int"),
				col("total_spent", "decimal"),
				nullable("created_at", "timestamp"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"customer_id"},
		},
		rules: validate.Rules{
			Required:    []string{"customer_id"},
			NonNegative: []string{"orders_count", "total_spent"},
			Dates:       []string{"created_at"},
		},
	},
	{
		spec: canonical.EntitySpec{
			Table: "shopify_refunds",
			Columns: []canonical.Column{
				col("refund_id", "text"),
				col("order_id", "text"),
				col("created_at", "timestamp"),
				col("amount", "decimal"),
				nullable("currency", "text"),
				nullable("note", "longtext"),
				col("synced_at", "timestamp"),
			},
			NaturalKey: []string{"refund_id"},
		},
		rules: validate.Rules{
			Required:    []string{"refund_id", "order_id", "created_at"},
			NonNegative: []string{"amount"},
			Dates:       []string{"created_at"},
			Currency:    []string{"currency"},
		},
	},
}

func shopifyRows(p connector.Payload, syncedAt time.Time) []EntityBatch {
	orders := EntityBatch{Spec: shopifyEntities[0].spec, Rules: shopifyEntities[0].rules}
	items := EntityBatch{Spec: shopifyEntities[1].spec, Rules: shopifyEntities[1].rules}
	products := EntityBatch{Spec: shopifyEntities[2].spec, Rules: shopifyEntities[2].rules}
	customers := EntityBatch{Spec: shopifyEntities[3].spec, Rules: shopifyEntities[3].rules}
	refunds := EntityBatch{Spec: shopifyEntities[4].spec, Rules: shopifyEntities[4].rules}

	for _, rec := range p["orders"] {
		orderID := getString(rec, "id")

		var customerID, email string
		if cust, ok := rec["customer"].(map[string]any); ok {
			customerID = getString(connector.Record(cust), "id")
			email = getString(connector.Record(cust), "email")
		}
		if email == "" {
			email = getString(rec, "email")
		}

		orders.Rows = append(orders.Rows, []any{
			orderID,
			getString(rec, "order_number"),
			mustTime(rec, "created_at"),
			getTime(rec, "updated_at"),
			getString(rec, "financial_status"),
			getString(rec, "fulfillment_status"),
			getString(rec, "currency"),
			getDecimal(rec, "total_price"),
			getDecimal(rec, "subtotal_price"),
			getDecimal(rec, "total_discounts"),
			getDecimal(rec, "total_tax"),
			customerID,
			email,
			syncedAt,
		})

		lineItems, _ := rec["line_items"].([]any)
		for _, li := range lineItems {
			item, ok := li.(map[string]any)
			if !ok {
				continue
			}
			ir := connector.Record(item)
			items.Rows = append(items.Rows, []any{
				orderID,
				getString(ir, "id"),
				getString(ir, "product_id"),
				getString(ir, "variant_id"),
				getString(ir, "sku"),
				getString(ir, "title"),
				getInt64(ir, "quantity"),
				getDecimal(ir, "price"),
				getDecimal(ir, "total_discount"),
				syncedAt,
			})
		}
	}

	for _, rec := range p["products"] {
		products.Rows = append(products.Rows, []any{
			getString(rec, "id"),
			getString(rec, "title"),
			htmlToText(getString(rec, "body_html")),
			getString(rec, "vendor"),
			getString(rec, "product_type"),
			getString(rec, "status"),
			getTime(rec, "created_at"),
			getTime(rec, "updated_at"),
			syncedAt,
		})
	}

	for _, rec := range p["customers"] {
		customers.Rows = append(customers.Rows, []any{
			getString(rec, "id"),
			getString(rec, "email"),
			getString(rec, "first_name"),
			getString(rec, "last_name"),
			getInt64(rec, "orders_count"),
			getDecimal(rec, "total_spent"),
			getTime(rec, "created_at"),
			syncedAt,
		})
	}

	for _, rec := range p["refunds"] {
		refunds.Rows = append(refunds.Rows, []any{
			getString(rec, "id"),
			getString(rec, "order_id"),
			mustTime(rec, "created_at"),
			getDecimal(rec, "amount"),
			getString(rec, "currency"),
			getString(rec, "note"),
			syncedAt,
		})
	}

	return []EntityBatch{orders, items, products, customers, refunds}
}

// htmlToText strips product description markup down to searchable plain text.
// On unparseable input it falls back to the raw string rather than dropping
// the description.
func htmlToText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
