package destination

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/siemhub/orchestrator/internal/domain"
)

// mysqlDest writes sync batches into a MySQL database.
type mysqlDest struct {
	db *sql.DB
}

func openMySQL(dsn string) (Destination, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, domain.Connectionf("mysql open", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &mysqlDest{db: db}, nil
}

func (d *mysqlDest) Dialect() string { return DialectMySQL }

func (d *mysqlDest) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return domain.Connectionf("mysql ping", err)
	}
	return nil
}

func (d *mysqlDest) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = DATABASE() ORDER BY table_name`)
	if err != nil {
		return nil, domain.Connectionf("mysql list tables", err)
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

func (d *mysqlDest) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables
		 WHERE table_schema = DATABASE() AND table_name = ?`, table).Scan(&count)
	if err != nil {
		return false, domain.Connectionf("mysql table check", err)
	}
	return count > 0, nil
}

func (d *mysqlDest) EnsureTable(ctx context.Context, table string, cols domain.ColumnMappingList) error {
	if err := cols.Validate(); err != nil {
		return err
	}
	for _, c := range cols {
		if !ValidSQLType(DialectMySQL, c.SQLType) {
			return domain.Schemaf("column %q: type %q is not supported by mysql destinations", c.ColumnName, c.SQLType)
		}
	}

	if _, err := d.db.ExecContext(ctx, mysqlCreateTableSQL(table, cols)); err != nil {
		return domain.Connectionf("mysql create table", err)
	}

	// MySQL lacks ADD COLUMN IF NOT EXISTS, so diff against the catalog.
	existing, err := d.columnNames(ctx, table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if existing[c.ColumnName] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			mysqlQuoteIdent(table), mysqlQuoteIdent(c.ColumnName), c.SQLType)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return domain.Connectionf("mysql add column", err)
		}
	}
	return nil
}

func (d *mysqlDest) columnNames(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = DATABASE() AND table_name = ?`, table)
	if err != nil {
		return nil, domain.Connectionf("mysql list columns", err)
	}
	defer rows.Close()

	names := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

func (d *mysqlDest) UpsertRows(ctx context.Context, table string, cols domain.ColumnMappingList, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.Connectionf("mysql begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, mysqlUpsertSQL(table, cols))
	if err != nil {
		return 0, domain.Connectionf("mysql prepare upsert", err)
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
			return 0, domain.Connectionf("mysql upsert", err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.Connectionf("mysql commit", err)
	}
	return written, nil
}

func (d *mysqlDest) Close() error {
	return d.db.Close()
}

func mysqlQuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func mysqlCreateTableSQL(table string, cols domain.ColumnMappingList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", mysqlQuoteIdent(table))
	b.WriteString("  `id` BIGINT AUTO_INCREMENT PRIMARY KEY,\n")
	b.WriteString("  `doc_id` VARCHAR(512) NOT NULL,\n")
	for _, c := range cols {
		fmt.Fprintf(&b, "  %s %s,\n", mysqlQuoteIdent(c.ColumnName), c.SQLType)
	}
	b.WriteString("  `data` JSON,\n")
	b.WriteString("  `synced_at` DATETIME NOT NULL,\n")
	b.WriteString("  UNIQUE KEY `uq_doc_id` (`doc_id`)\n")
	b.WriteString(")")
	return b.String()
}

// mysqlUpsertSQL builds a one-row insert keyed on the doc_id unique index.
// Placeholder order is doc_id, mapped columns in mapping order, data,
// synced_at.
func mysqlUpsertSQL(table string, cols domain.ColumnMappingList) string {
	columns := []string{"`doc_id`"}
	for _, c := range cols {
		columns = append(columns, mysqlQuoteIdent(c.ColumnName))
	}
	columns = append(columns, "`data`", "`synced_at`")

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}

	updates := make([]string, 0, len(columns)-1)
	for _, col := range columns[1:] {
		updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", col, col))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		mysqlQuoteIdent(table),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
}
