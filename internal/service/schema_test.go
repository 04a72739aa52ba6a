package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/siemhub/orchestrator/internal/destination"
	"github.com/siemhub/orchestrator/internal/domain"
	"github.com/siemhub/orchestrator/internal/logger"
	"github.com/siemhub/orchestrator/internal/source/elastic"
)

var (
	errForbidden = errors.New("403 forbidden")
	errRefused   = errors.New("connection refused")
)

func testSchemaService() *SchemaService {
	return NewSchemaService(logger.NewDefault(), 50)
}

func TestInferFromMapping(t *testing.T) {
	src := &stubSource{
		mapping: map[string]string{
			"message":    "text",
			"bytes":      "long",
			"@timestamp": "date",
			"labels":     "object",
		},
	}

	cols, err := testSchemaService().Infer(context.Background(), src, "logs-fw", destination.DialectPostgres)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}

	byOrig := map[string]domain.ColumnMapping{}
	for _, c := range cols {
		byOrig[c.OrigName] = c
	}

	if c := byOrig["@timestamp"]; c.ColumnName != "_timestamp" || c.SQLType != "timestamptz" {
		t.Errorf("@timestamp mapped wrong: %+v", c)
	}
	if c := byOrig["bytes"]; c.SQLType != "bigint" {
		t.Errorf("bytes mapped wrong: %+v", c)
	}
	if c := byOrig["labels"]; c.SQLType != "jsonb" {
		t.Errorf("labels mapped wrong: %+v", c)
	}

	// Mapping order is deterministic (sorted by field name).
	again, err := testSchemaService().Infer(context.Background(), src, "logs-fw", destination.DialectPostgres)
	if err != nil {
		t.Fatalf("second infer: %v", err)
	}
	for i := range cols {
		if cols[i] != again[i] {
			t.Fatalf("inference not deterministic at %d: %+v vs %+v", i, cols[i], again[i])
		}
	}
}

func TestInferFromSampleFallback(t *testing.T) {
	src := &stubSource{
		docs: []elastic.Document{
			{ID: "1", Source: map[string]interface{}{
				"a": "hello",
				"b": float64(12),
				"c": true,
				"d": map[string]interface{}{"x": float64(1)},
			}},
			{ID: "2", Source: map[string]interface{}{
				"a": "world",
				"e": "2025-06-01T00:00:00Z",
			}},
		},
	}

	cols, err := testSchemaService().Infer(context.Background(), src, "logs-fw", destination.DialectPostgres)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}

	want := map[string]string{
		"a": "text",
		"b": "bigint",
		"c": "boolean",
		"d": "jsonb",
		"e": "timestamptz",
	}
	got := map[string]string{}
	for _, c := range cols {
		got[c.OrigName] = c.SQLType
	}
	for field, sqlType := range want {
		if got[field] != sqlType {
			t.Errorf("field %s: got %q, want %q", field, got[field], sqlType)
		}
	}
}

func TestInferMappingErrorFallsBackToSample(t *testing.T) {
	src := &stubSource{
		mappingErr: domain.Connectionf("elasticsearch mapping", errForbidden),
		docs: []elastic.Document{
			{ID: "1", Source: map[string]interface{}{"a": "hello"}},
		},
	}

	cols, err := testSchemaService().Infer(context.Background(), src, "logs-fw", destination.DialectPostgres)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if len(cols) != 1 || cols[0].OrigName != "a" || cols[0].SQLType != "text" {
		t.Errorf("sampled column wrong: %+v", cols)
	}
}

func TestInferMappingAndSampleBothFail(t *testing.T) {
	mappingErr := domain.Connectionf("elasticsearch mapping", errForbidden)
	src := &stubSource{
		mappingErr: mappingErr,
		searchErr:  domain.Connectionf("elasticsearch search", errRefused),
	}

	_, err := testSchemaService().Infer(context.Background(), src, "logs-fw", destination.DialectPostgres)
	if !domain.IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if !errors.Is(err, mappingErr) {
		t.Errorf("expected the mapping error to surface, got %v", err)
	}
}

func TestInferEmptyIndex(t *testing.T) {
	src := &stubSource{}
	_, err := testSchemaService().Infer(context.Background(), src, "empty", destination.DialectPostgres)
	if !domain.IsSchema(err) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestSanitizeColumn(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"message", "message"},
		{"source.ip", "source__ip"},
		{"user.name.first", "user__name__first"},
		{"@timestamp", "_timestamp"},
		{"Bytes-Sent", "bytes_sent"},
		{"42field", "_42field"},
		{"weird field!", "weird_field_"},
	}
	for _, tc := range cases {
		if got := sanitizeColumn(tc.in, destination.DialectPostgres); got != tc.want {
			t.Errorf("sanitizeColumn(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	if got := sanitizeColumn(string(long), destination.DialectPostgres); len(got) != 63 {
		t.Errorf("postgres truncation: got len %d", len(got))
	}
	if got := sanitizeColumn(string(long), destination.DialectMySQL); len(got) != 64 {
		t.Errorf("mysql truncation: got len %d", len(got))
	}
}

func TestInferCollisionSuffixes(t *testing.T) {
	// "a!b" and "a?b" sanitize to the same name, as do "a.b" and "a__b".
	src := &stubSource{
		mapping: map[string]string{
			"id":    "keyword",
			"a!b":   "keyword",
			"a?b":   "keyword",
			"a.b":   "keyword",
			"a__b":  "keyword",
			"level": "integer",
		},
	}

	cols, err := testSchemaService().Infer(context.Background(), src, "logs", destination.DialectPostgres)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if err := cols.Validate(); err != nil {
		t.Fatalf("collision resolution left duplicates: %v", err)
	}

	names := map[string]string{}
	for _, c := range cols {
		names[c.OrigName] = c.ColumnName
	}
	// "id" collides with the system primary key column.
	if names["id"] != "id_2" {
		t.Errorf("system column collision: got %q", names["id"])
	}
	// Sorted field order makes suffix assignment stable: a!b before a?b.
	if names["a!b"] != "a_b" || names["a?b"] != "a_b_2" {
		t.Errorf("collision suffixes wrong: %+v", names)
	}
	if names["a.b"] != "a__b" || names["a__b"] != "a__b_2" {
		t.Errorf("dot-path collision wrong: %+v", names)
	}
}

func TestInferCollisionAtIdentifierLimit(t *testing.T) {
	// Both fields sanitize to the same 63-char name; the suffixed one must
	// still fit the identifier limit.
	long := strings.Repeat("a", 80)
	src := &stubSource{
		mapping: map[string]string{
			long + "!": "keyword",
			long + "?": "keyword",
		},
	}

	cols, err := testSchemaService().Infer(context.Background(), src, "logs", destination.DialectPostgres)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if err := cols.Validate(); err != nil {
		t.Fatalf("collision resolution left duplicates: %v", err)
	}

	max := destination.MaxIdentifierLen(destination.DialectPostgres)
	for _, c := range cols {
		if len(c.ColumnName) > max {
			t.Errorf("column %q exceeds the identifier limit", c.ColumnName)
		}
	}
	want := strings.Repeat("a", max-2) + "_2"
	if cols[1].ColumnName != want {
		t.Errorf("suffixed column: got %q, want %q", cols[1].ColumnName, want)
	}
}

func TestMaterializeIdempotent(t *testing.T) {
	dest := newFakeDestination()
	svc := testSchemaService()
	cols := domain.ColumnMappingList{
		{OrigName: "message", ColumnName: "message", SQLType: "text", ESType: "text"},
	}

	if err := svc.Materialize(context.Background(), dest, "es_sync_logs", cols); err != nil {
		t.Fatalf("first materialize: %v", err)
	}
	if err := svc.Materialize(context.Background(), dest, "es_sync_logs", cols); err != nil {
		t.Fatalf("second materialize: %v", err)
	}
	if got := len(dest.columns("es_sync_logs")); got != 1 {
		t.Errorf("expected 1 column after re-materialize, got %d", got)
	}

	// A grown mapping adds the new column and keeps the old one.
	grown := append(cols, domain.ColumnMapping{
		OrigName: "level", ColumnName: "level", SQLType: "integer", ESType: "integer",
	})
	if err := svc.Materialize(context.Background(), dest, "es_sync_logs", grown); err != nil {
		t.Fatalf("grown materialize: %v", err)
	}
	if got := len(dest.columns("es_sync_logs")); got != 2 {
		t.Errorf("expected 2 columns after growth, got %d", got)
	}
}

func TestMaterializeRejectsBadTypeBeforeDDL(t *testing.T) {
	dest := newFakeDestination()
	svc := testSchemaService()
	cols := domain.ColumnMappingList{
		{OrigName: "ok", ColumnName: "ok", SQLType: "text"},
		{OrigName: "bad", ColumnName: "bad", SQLType: "blob"},
	}

	err := svc.Materialize(context.Background(), dest, "es_sync_logs", cols)
	if !domain.IsSchema(err) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if dest.ensureCalls != 0 {
		t.Error("DDL must not run when validation fails")
	}
}
