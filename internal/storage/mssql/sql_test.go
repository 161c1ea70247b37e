package mssql

import (
	"strings"
	"testing"

	"datasync/internal/canonical"
)

var testSpec = canonical.EntitySpec{
	Table: "search_queries",
	Columns: []canonical.Column{
		{Name: "query", Type: "text"},
		{Name: "date", Type: "date"},
		{Name: "clicks", Type: "bigint"},
		{Name: "synced_at", Type: "timestamp"},
	},
	NaturalKey: []string{"query", "date"},
}

func TestBuildMergeSQL(t *testing.T) {
	sql := buildMergeSQL(testSpec.Table, testSpec.ColumnNames(), testSpec.NaturalKey, testSpec.NonKeyColumns())

	wantFragments := []string{
		"MERGE INTO [search_queries] AS t USING (SELECT @p1 AS [query], @p2 AS [date], @p3 AS [clicks], @p4 AS [synced_at]) AS s",
		"ON t.[query] = s.[query] AND t.[date] = s.[date]",
		"WHEN MATCHED THEN UPDATE SET t.[clicks] = s.[clicks], t.[synced_at] = s.[synced_at]",
		"WHEN NOT MATCHED THEN INSERT ([query], [date], [clicks], [synced_at]) VALUES (s.[query], s.[date], s.[clicks], s.[synced_at])",
		"OUTPUT $action;",
	}
	for _, f := range wantFragments {
		if !strings.Contains(sql, f) {
			t.Fatalf("merge missing %q:\n%s", f, sql)
		}
	}
}

func TestBuildMergeSQL_KeyOnly(t *testing.T) {
	sql := buildMergeSQL("t", []string{"a"}, []string{"a"}, nil)
	if strings.Contains(sql, "WHEN MATCHED") {
		t.Fatalf("key-only merge should not emit an UPDATE clause:\n%s", sql)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	sql, err := buildCreateSQL(testSpec)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	wantFragments := []string{
		"IF OBJECT_ID(N'search_queries', N'U') IS NULL CREATE TABLE [search_queries]",
		// key text columns stay indexable
		"[query] NVARCHAR(400) NOT NULL",
		"[date] DATE NOT NULL",
		"[clicks] BIGINT NOT NULL",
		"[synced_at] DATETIMEOFFSET NOT NULL",
		"CONSTRAINT [uq_search_queries_key] UNIQUE ([query], [date])",
	}
	for _, f := range wantFragments {
		if !strings.Contains(sql, f) {
			t.Fatalf("ddl missing %q:\n%s", f, sql)
		}
	}
}

func TestBuildCreateSQL_NonKeyTextIsMax(t *testing.T) {
	spec := canonical.EntitySpec{
		Table: "x",
		Columns: []canonical.Column{
			{Name: "id", Type: "text"},
			{Name: "title", Type: "text", Nullable: true},
			{Name: "body", Type: "longtext", Nullable: true},
		},
		NaturalKey: []string{"id"},
	}
	sql, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(sql, "[title] NVARCHAR(MAX)") {
		t.Fatalf("non-key text should be NVARCHAR(MAX):\n%s", sql)
	}
	if !strings.Contains(sql, "[body] NVARCHAR(MAX)") {
		t.Fatalf("longtext should be NVARCHAR(MAX):\n%s", sql)
	}
	if !strings.Contains(sql, "[id] NVARCHAR(400) NOT NULL") {
		t.Fatalf("key text should be NVARCHAR(400):\n%s", sql)
	}
}

func TestMsIdent(t *testing.T) {
	if got := msIdent("date"); got != "[date]" {
		t.Fatalf("msIdent(date)=%s", got)
	}
	if got := msIdent("we]ird"); got != "[we]]ird]" {
		t.Fatalf("msIdent escaping broken: %s", got)
	}
}
