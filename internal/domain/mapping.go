package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// ColumnMapping describes how one source document field maps to a destination
// column: the original field name (dot paths address nested fields), the
// sanitized column name, the SQL type for the destination dialect, and the
// source field type it was inferred from.
type ColumnMapping struct {
	OrigName   string `json:"orig_name"`
	ColumnName string `json:"column_name"`
	SQLType    string `json:"sql_type"`
	ESType     string `json:"es_type,omitempty"`
}

// ColumnMappingList is an ordered column mapping stored as JSON in the
// database. Column names are unique within a list.
type ColumnMappingList []ColumnMapping

// Value implements the driver.Valuer interface for database serialization.
func (l ColumnMappingList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *ColumnMappingList) Scan(value interface{}) error {
	if value == nil {
		*l = ColumnMappingList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan ColumnMappingList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// ColumnNames returns the destination column names in mapping order.
func (l ColumnMappingList) ColumnNames() []string {
	names := make([]string, 0, len(l))
	for _, c := range l {
		names = append(names, c.ColumnName)
	}
	return names
}

// Validate checks that every entry carries a column name and SQL type, and
// that column names are unique within the mapping.
func (l ColumnMappingList) Validate() error {
	seen := make(map[string]bool, len(l))
	for _, c := range l {
		if c.ColumnName == "" {
			return Schemaf("column mapping for field %q is missing a column name", c.OrigName)
		}
		if c.SQLType == "" {
			return Schemaf("column %q is missing a SQL type", c.ColumnName)
		}
		if seen[c.ColumnName] {
			return Schemaf("duplicate column name %q in mapping", c.ColumnName)
		}
		seen[c.ColumnName] = true
	}
	return nil
}
