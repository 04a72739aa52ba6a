package destination

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/siemhub/orchestrator/internal/domain"
)

// postgresDest writes sync batches into a PostgreSQL database.
type postgresDest struct {
	db *sql.DB
}

func openPostgres(connStr string) (Destination, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, domain.Connectionf("postgres open", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &postgresDest{db: db}, nil
}

func (d *postgresDest) Dialect() string { return DialectPostgres }

func (d *postgresDest) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return domain.Connectionf("postgres ping", err)
	}
	return nil
}

func (d *postgresDest) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return nil, domain.Connectionf("postgres list tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (d *postgresDest) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM information_schema.tables
		   WHERE table_schema = 'public' AND table_name = $1
		 )`, table).Scan(&exists)
	if err != nil {
		return false, domain.Connectionf("postgres table check", err)
	}
	return exists, nil
}

func (d *postgresDest) EnsureTable(ctx context.Context, table string, cols domain.ColumnMappingList) error {
	if err := cols.Validate(); err != nil {
		return err
	}
	for _, c := range cols {
		if !ValidSQLType(DialectPostgres, c.SQLType) {
			return domain.Schemaf("column %q: type %q is not supported by postgres destinations", c.ColumnName, c.SQLType)
		}
	}

	if _, err := d.db.ExecContext(ctx, pgCreateTableSQL(table, cols)); err != nil {
		return domain.Connectionf("postgres create table", err)
	}
	// ADD COLUMN IF NOT EXISTS covers mappings that grew after the table was
	// first materialized.
	for _, c := range cols {
		if _, err := d.db.ExecContext(ctx, pgAddColumnSQL(table, c)); err != nil {
			return domain.Connectionf("postgres add column", err)
		}
	}
	return nil
}

func (d *postgresDest) UpsertRows(ctx context.Context, table string, cols domain.ColumnMappingList, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.Connectionf("postgres begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pgUpsertSQL(table, cols))
	if err != nil {
		return 0, domain.Connectionf("postgres prepare upsert", err)
	}
	defer stmt.Close()

	written := 0
	now := time.Now().UTC()
	for _, row := range rows {
		args := make([]interface{}, 0, len(cols)+3)
		args = append(args, row.DocID)
		for _, c := range cols {
			args = append(args, row.Values[c.ColumnName])
		}
		args = append(args, row.Raw, now)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, domain.Connectionf("postgres upsert", err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.Connectionf("postgres commit", err)
	}
	return written, nil
}

func (d *postgresDest) Close() error {
	return d.db.Close()
}

func pgQuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// pgCreateTableSQL builds the idempotent CREATE TABLE statement: system
// columns first, then the mapped columns in mapping order.
func pgCreateTableSQL(table string, cols domain.ColumnMappingList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", pgQuoteIdent(table))
	b.WriteString("  id bigserial PRIMARY KEY,\n")
	b.WriteString("  doc_id text NOT NULL UNIQUE,\n")
	for _, c := range cols {
		fmt.Fprintf(&b, "  %s %s,\n", pgQuoteIdent(c.ColumnName), c.SQLType)
	}
	b.WriteString("  data jsonb,\n")
	b.WriteString("  synced_at timestamptz NOT NULL DEFAULT now()\n")
	b.WriteString(")")
	return b.String()
}

func pgAddColumnSQL(table string, c domain.ColumnMapping) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		pgQuoteIdent(table), pgQuoteIdent(c.ColumnName), c.SQLType)
}

// pgUpsertSQL builds a one-row insert keyed on doc_id. Placeholder order is
// doc_id, mapped columns in mapping order, data, synced_at.
func pgUpsertSQL(table string, cols domain.ColumnMappingList) string {
	columns := []string{"doc_id"}
	for _, c := range cols {
		columns = append(columns, pgQuoteIdent(c.ColumnName))
	}
	columns = append(columns, "data", "synced_at")

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	updates := make([]string, 0, len(columns)-1)
	for _, col := range columns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (doc_id) DO UPDATE SET %s",
		pgQuoteIdent(table),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
}
