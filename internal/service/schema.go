package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/siemhub/orchestrator/internal/destination"
	"github.com/siemhub/orchestrator/internal/domain"
	"github.com/siemhub/orchestrator/internal/logger"
	"github.com/siemhub/orchestrator/internal/source/elastic"
)

// Source is the document-source contract the sync engine consumes. It is
// satisfied by elastic.Client.
type Source interface {
	Search(ctx context.Context, index string, query map[string]interface{}, size, from int) ([]elastic.Document, error)
	Sample(ctx context.Context, index string, size int) ([]elastic.Document, error)
	FieldMapping(ctx context.Context, index string) (map[string]string, error)
	Ping(ctx context.Context) error
}

// SchemaService infers destination column mappings from a source index and
// materializes them as destination tables.
type SchemaService struct {
	logger     *logger.Logger
	sampleSize int
}

func NewSchemaService(log *logger.Logger, sampleSize int) *SchemaService {
	if sampleSize <= 0 {
		sampleSize = 50
	}
	return &SchemaService{
		logger:     log,
		sampleSize: sampleSize,
	}
}

func (s *SchemaService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Infer derives a column mapping for an index: from the index mapping when
// one is available, otherwise from the types observed in a document sample.
// Column names are sanitized for the dialect; fields are ordered by name so
// repeated inference yields the same mapping.
func (s *SchemaService) Infer(ctx context.Context, src Source, index, dialect string) (domain.ColumnMappingList, error) {
	fieldTypes, mappingErr := src.FieldMapping(ctx, index)
	if mappingErr != nil {
		s.log(ctx).WithError(mappingErr).WithField("index", index).
			Warn("Mapping fetch failed, falling back to document sampling")
		fieldTypes = nil
	}
	if len(fieldTypes) == 0 {
		sampled, err := s.inferFromSample(ctx, src, index)
		if err != nil {
			if mappingErr != nil {
				return nil, mappingErr
			}
			return nil, err
		}
		fieldTypes = sampled
	}
	if len(fieldTypes) == 0 {
		return nil, domain.Schemaf("index %q has no mapping and no sample documents to infer from", index)
	}

	fields := make([]string, 0, len(fieldTypes))
	for f := range fieldTypes {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	cols := make(domain.ColumnMappingList, 0, len(fields))
	// System columns own their names; source fields that collide get suffixed.
	taken := map[string]bool{"id": true, "doc_id": true, "data": true, "synced_at": true}
	maxLen := destination.MaxIdentifierLen(dialect)
	for _, field := range fields {
		esType := fieldTypes[field]
		name := uniqueColumnName(sanitizeColumn(field, dialect), taken, maxLen)
		cols = append(cols, domain.ColumnMapping{
			OrigName:   field,
			ColumnName: name,
			SQLType:    destination.TypeForDialect(dialect, esType),
			ESType:     esType,
		})
	}

	s.log(ctx).WithFields(logger.Fields{
		"index":   index,
		"dialect": dialect,
		"columns": len(cols),
	}).Info("Inferred column mapping")

	return cols, nil
}

// inferFromSample derives field types from sampled documents. Only top-level
// fields are considered; conflicting observations degrade to object so the
// value survives in the JSON column type.
func (s *SchemaService) inferFromSample(ctx context.Context, src Source, index string) (map[string]string, error) {
	docs, err := src.Sample(ctx, index, s.sampleSize)
	if err != nil {
		return nil, err
	}

	fieldTypes := map[string]string{}
	for _, doc := range docs {
		for field, value := range doc.Source {
			if value == nil {
				continue
			}
			observed := esTypeOf(value)
			if prev, ok := fieldTypes[field]; ok && prev != observed {
				fieldTypes[field] = "object"
				continue
			}
			fieldTypes[field] = observed
		}
	}
	return fieldTypes, nil
}

// esTypeOf maps a decoded JSON value to a source field type. JSON numbers
// decode to float64; integral values are treated as long.
func esTypeOf(value interface{}) string {
	switch v := value.(type) {
	case bool:
		return "boolean"
	case float64:
		if v == float64(int64(v)) {
			return "long"
		}
		return "double"
	case string:
		if _, err := time.Parse(time.RFC3339, v); err == nil {
			return "date"
		}
		return "text"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "nested"
	default:
		return "object"
	}
}

// Materialize creates or extends the destination table for the mapping. The
// mapping is validated in full before any DDL runs, so a bad column never
// leaves a half-created table.
func (s *SchemaService) Materialize(ctx context.Context, dest destination.Destination, table string, cols domain.ColumnMappingList) error {
	if err := cols.Validate(); err != nil {
		return err
	}
	for _, c := range cols {
		if !destination.ValidSQLType(dest.Dialect(), c.SQLType) {
			return domain.Schemaf("column %q: type %q is not supported by %s destinations",
				c.ColumnName, c.SQLType, dest.Dialect())
		}
		if len(c.ColumnName) > destination.MaxIdentifierLen(dest.Dialect()) {
			return domain.Schemaf("column %q exceeds the %s identifier length limit",
				c.ColumnName, dest.Dialect())
		}
	}

	if err := dest.EnsureTable(ctx, table, cols); err != nil {
		return err
	}

	s.log(ctx).WithFields(logger.Fields{
		"table":   table,
		"columns": len(cols),
	}).Info("Materialized destination table")
	return nil
}

// PreviewDocuments returns a small sample of raw documents from an index.
func (s *SchemaService) PreviewDocuments(ctx context.Context, src Source, index string, size int) ([]elastic.Document, error) {
	if size <= 0 || size > s.sampleSize {
		size = s.sampleSize
	}
	return src.Sample(ctx, index, size)
}

// sanitizeColumn converts a source field name into a destination column
// identifier: dot paths become double underscores, anything outside
// [a-z0-9_] becomes an underscore, a leading digit gets a prefix, and the
// result is truncated to the dialect's identifier limit.
func sanitizeColumn(field, dialect string) string {
	name := strings.ToLower(field)
	name = strings.ReplaceAll(name, ".", "__")

	var b strings.Builder
	for _, r := range name {
		if r == '_' || unicode.IsDigit(r) || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	name = b.String()

	if name == "" {
		name = "_"
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}

	max := destination.MaxIdentifierLen(dialect)
	if len(name) > max {
		name = name[:max]
	}
	return name
}

// uniqueColumnName resolves collisions deterministically: the first claimant
// keeps the name, later ones get _2, _3, and so on. The base is shortened
// when needed so suffixed names stay within the identifier limit.
func uniqueColumnName(name string, taken map[string]bool, maxLen int) string {
	if !taken[name] {
		taken[name] = true
		return name
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		base := name
		if len(base)+len(suffix) > maxLen {
			base = base[:maxLen-len(suffix)]
		}
		candidate := base + suffix
		if !taken[candidate] {
			taken[candidate] = true
			return candidate
		}
	}
}
