// internal/output/postgresql.go
package output

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresWriter writes result rows to a PostgreSQL table.
type PostgresWriter struct {
	db    *sql.DB
	table string
}

// NewPostgresWriter creates a new PostgreSQL writer. The DSN is a libpq
// connection string or postgres:// URL.
func NewPostgresWriter(dsn, table string) (*PostgresWriter, error) {
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}
	if table == "" {
		return nil, fmt.Errorf("PostgreSQL table name is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	w := &PostgresWriter{db: db, table: table}
	if err := w.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *PostgresWriter) createTable() error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id BIGSERIAL PRIMARY KEY,
		target TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		duration_ms BIGINT NOT NULL,
		error TEXT,
		error_kind VARCHAR(64),
		data JSONB,
		harvested_at TIMESTAMPTZ NOT NULL
	)`, w.table)
	if _, err := w.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", w.table, err)
	}
	return nil
}

// Write inserts rows inside a single transaction.
func (w *PostgresWriter) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %q (target, success, duration_ms, error, error_kind, data, harvested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, w.table)
	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		data := sql.NullString{String: row.Data, Valid: row.Data != ""}
		if _, err := stmt.Exec(row.Target, row.Success, row.DurationMS, row.Error, row.ErrorKind, data, row.HarvestedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row for %s: %w", row.Target, err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection.
func (w *PostgresWriter) Close() error {
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}
