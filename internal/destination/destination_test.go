package destination

import (
	"strings"
	"testing"

	"github.com/siemhub/orchestrator/internal/domain"
)

func TestTypeForDialect(t *testing.T) {
	cases := []struct {
		dialect string
		esType  string
		want    string
	}{
		{DialectPostgres, "keyword", "text"},
		{DialectPostgres, "long", "bigint"},
		{DialectPostgres, "half_float", "double precision"},
		{DialectPostgres, "date", "timestamptz"},
		{DialectPostgres, "nested", "jsonb"},
		{DialectPostgres, "geo_point", "jsonb"},
		{DialectMySQL, "keyword", "TEXT"},
		{DialectMySQL, "long", "BIGINT"},
		{DialectMySQL, "boolean", "TINYINT(1)"},
		{DialectMySQL, "date", "DATETIME"},
		{DialectMySQL, "geo_point", "JSON"},
	}
	for _, tc := range cases {
		if got := TypeForDialect(tc.dialect, tc.esType); got != tc.want {
			t.Errorf("TypeForDialect(%s, %s) = %q, want %q", tc.dialect, tc.esType, got, tc.want)
		}
	}
}

func TestValidSQLType(t *testing.T) {
	if !ValidSQLType(DialectPostgres, "bigint") {
		t.Error("bigint should be valid for postgres")
	}
	if !ValidSQLType(DialectPostgres, "Double Precision") {
		t.Error("type check should be case-insensitive")
	}
	if ValidSQLType(DialectPostgres, "bytea") {
		t.Error("bytea is not an emittable type")
	}
	if !ValidSQLType(DialectMySQL, "tinyint(1)") {
		t.Error("tinyint(1) should be valid for mysql")
	}
	if ValidSQLType(DialectMySQL, "bigint; DROP TABLE users") {
		t.Error("injection-shaped type must be rejected")
	}
}

func TestPgCreateTableSQL(t *testing.T) {
	cols := domain.ColumnMappingList{
		{OrigName: "message", ColumnName: "message", SQLType: "text"},
		{OrigName: "bytes", ColumnName: "bytes", SQLType: "bigint"},
	}
	sql := pgCreateTableSQL("es_sync_logs", cols)

	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "es_sync_logs"`,
		`id bigserial PRIMARY KEY`,
		`doc_id text NOT NULL UNIQUE`,
		`"message" text`,
		`"bytes" bigint`,
		`data jsonb`,
		`synced_at timestamptz NOT NULL DEFAULT now()`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("create table missing %q:\n%s", want, sql)
		}
	}
}

func TestPgUpsertSQL(t *testing.T) {
	cols := domain.ColumnMappingList{
		{OrigName: "message", ColumnName: "message", SQLType: "text"},
		{OrigName: "src.ip", ColumnName: "src__ip", SQLType: "text"},
	}
	sql := pgUpsertSQL("es_sync_logs", cols)

	want := `INSERT INTO "es_sync_logs" (doc_id, "message", "src__ip", data, synced_at) ` +
		`VALUES ($1, $2, $3, $4, $5) ` +
		`ON CONFLICT (doc_id) DO UPDATE SET "message" = EXCLUDED."message", "src__ip" = EXCLUDED."src__ip", data = EXCLUDED.data, synced_at = EXCLUDED.synced_at`
	if sql != want {
		t.Errorf("upsert sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestPgQuoteIdent(t *testing.T) {
	if got := pgQuoteIdent(`evil"name`); got != `"evil""name"` {
		t.Errorf("quote escaping failed: %s", got)
	}
}

func TestMysqlCreateTableSQL(t *testing.T) {
	cols := domain.ColumnMappingList{
		{OrigName: "level", ColumnName: "level", SQLType: "INT"},
	}
	sql := mysqlCreateTableSQL("es_sync_logs", cols)

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS `es_sync_logs`",
		"`id` BIGINT AUTO_INCREMENT PRIMARY KEY",
		"`doc_id` VARCHAR(512) NOT NULL",
		"`level` INT",
		"`data` JSON",
		"UNIQUE KEY `uq_doc_id` (`doc_id`)",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("create table missing %q:\n%s", want, sql)
		}
	}
}

func TestMysqlUpsertSQL(t *testing.T) {
	cols := domain.ColumnMappingList{
		{OrigName: "level", ColumnName: "level", SQLType: "INT"},
	}
	sql := mysqlUpsertSQL("es_sync_logs", cols)

	want := "INSERT INTO `es_sync_logs` (`doc_id`, `level`, `data`, `synced_at`) " +
		"VALUES (?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE `level` = VALUES(`level`), `data` = VALUES(`data`), `synced_at` = VALUES(`synced_at`)"
	if sql != want {
		t.Errorf("upsert sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
}

func TestOpenRejectsNonRelational(t *testing.T) {
	es := &domain.Integration{
		Name:   "prod-es",
		Kind:   domain.IntegrationElasticsearch,
		Config: domain.JSONMap{"host": "es:9200"},
	}
	if _, err := Open(es); !domain.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	empty := &domain.Integration{Name: "bare", Kind: domain.IntegrationPostgres, Config: domain.JSONMap{}}
	if _, err := Open(empty); !domain.IsValidation(err) {
		t.Errorf("expected validation error for missing config, got %v", err)
	}
}
