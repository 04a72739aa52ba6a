package destination

import (
	"context"

	"github.com/siemhub/orchestrator/internal/domain"
)

// Row is one document prepared for insertion: the source document id used as
// the upsert key, mapped column values keyed by column name, and the raw
// document serialized for the fallback JSON column.
type Row struct {
	DocID  string
	Values map[string]interface{}
	Raw    []byte
}

// Destination is a relational sync target. Implementations exist per dialect;
// all DDL is idempotent and all row writes are upserts keyed on the document
// id, so re-running a window never duplicates rows.
type Destination interface {
	// Dialect returns the dialect name, postgres or mysql.
	Dialect() string
	// Ping verifies the destination is reachable.
	Ping(ctx context.Context) error
	// ListTables returns the user-visible table names in the destination
	// database.
	ListTables(ctx context.Context) ([]string, error)
	// TableExists reports whether the named table exists.
	TableExists(ctx context.Context, table string) (bool, error)
	// EnsureTable creates the table with the mapped columns plus the system
	// columns if it does not exist, and adds any mapped columns missing from
	// an existing table. It never drops or retypes existing columns.
	EnsureTable(ctx context.Context, table string, cols domain.ColumnMappingList) error
	// UpsertRows writes a batch in one transaction, inserting new documents
	// and overwriting rows whose document id already exists. Returns the
	// number of rows written.
	UpsertRows(ctx context.Context, table string, cols domain.ColumnMappingList, rows []Row) (int, error)
	// Close releases the connection pool.
	Close() error
}

// Open connects to the relational integration and returns the
// dialect-specific destination.
func Open(it *domain.Integration) (Destination, error) {
	if !it.IsRelational() {
		return nil, domain.Validationf("integration %q is %s, not a relational destination", it.Name, it.Kind)
	}
	connStr := it.ConnString()
	if connStr == "" {
		return nil, domain.Validationf("integration %q has no usable connection configuration", it.Name)
	}
	switch it.Kind {
	case domain.IntegrationMySQL:
		return openMySQL(connStr)
	default:
		return openPostgres(connStr)
	}
}
