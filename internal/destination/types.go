package destination

import "strings"

// Dialect names accepted by the factory and the type tables.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Source field type to destination column type, per dialect. Unknown and
// container types land in the JSON column type so no field is ever dropped.
var pgTypeMap = map[string]string{
	"text":         "text",
	"keyword":      "text",
	"string":       "text",
	"ip":           "text",
	"integer":      "integer",
	"int":          "integer",
	"long":         "bigint",
	"short":        "smallint",
	"byte":         "smallint",
	"float":        "real",
	"half_float":   "double precision",
	"scaled_float": "double precision",
	"double":       "double precision",
	"boolean":      "boolean",
	"date":         "timestamptz",
	"object":       "jsonb",
	"nested":       "jsonb",
}

var mysqlTypeMap = map[string]string{
	"text":         "TEXT",
	"keyword":      "TEXT",
	"string":       "TEXT",
	"ip":           "TEXT",
	"integer":      "INT",
	"int":          "INT",
	"long":         "BIGINT",
	"short":        "SMALLINT",
	"byte":         "SMALLINT",
	"float":        "DOUBLE",
	"half_float":   "DOUBLE",
	"scaled_float": "DOUBLE",
	"double":       "DOUBLE",
	"boolean":      "TINYINT(1)",
	"date":         "DATETIME",
	"object":       "JSON",
	"nested":       "JSON",
}

// TypeForDialect maps a source field type to the destination column type for
// the given dialect. Unrecognized source types map to the dialect's JSON type.
func TypeForDialect(dialect, esType string) string {
	switch dialect {
	case DialectMySQL:
		if t, ok := mysqlTypeMap[strings.ToLower(esType)]; ok {
			return t
		}
		return "JSON"
	default:
		if t, ok := pgTypeMap[strings.ToLower(esType)]; ok {
			return t
		}
		return "jsonb"
	}
}

// ValidSQLType reports whether a user-supplied column type is one the dialect
// materializer is prepared to emit. Checked before any DDL runs.
func ValidSQLType(dialect, sqlType string) bool {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	var table map[string]string
	switch dialect {
	case DialectMySQL:
		table = mysqlTypeMap
	default:
		table = pgTypeMap
	}
	for _, v := range table {
		if strings.ToLower(v) == t {
			return true
		}
	}
	return false
}

// MaxIdentifierLen is the dialect's identifier length limit, applied when
// sanitizing column and table names.
func MaxIdentifierLen(dialect string) int {
	if dialect == DialectMySQL {
		return 64
	}
	return 63
}
