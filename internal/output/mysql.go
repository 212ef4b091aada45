// internal/output/mysql.go
package output

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLWriter writes result rows to a MySQL table.
type MySQLWriter struct {
	db    *sql.DB
	table string
}

// NewMySQLWriter creates a new MySQL writer. The DSN follows the
// go-sql-driver format, e.g. user:pass@tcp(host:3306)/dbname?parseTime=true.
func NewMySQLWriter(dsn, table string) (*MySQLWriter, error) {
	if dsn == "" {
		return nil, fmt.Errorf("MySQL DSN is required")
	}
	if table == "" {
		return nil, fmt.Errorf("MySQL table name is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	w := &MySQLWriter{db: db, table: table}
	if err := w.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *MySQLWriter) createTable() error {
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"id BIGINT AUTO_INCREMENT PRIMARY KEY, "+
		"target VARCHAR(2048) NOT NULL, "+
		"success BOOLEAN NOT NULL, "+
		"duration_ms BIGINT NOT NULL, "+
		"error TEXT, "+
		"error_kind VARCHAR(64), "+
		"data LONGTEXT, "+
		"harvested_at TIMESTAMP NOT NULL"+
		")", w.table)
	if _, err := w.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", w.table, err)
	}
	return nil
}

// Write inserts rows inside a single transaction.
func (w *MySQLWriter) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := fmt.Sprintf("INSERT INTO `%s` (target, success, duration_ms, error, error_kind, data, harvested_at) VALUES (?, ?, ?, ?, ?, ?, ?)", w.table)
	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(row.Target, row.Success, row.DurationMS, row.Error, row.ErrorKind, row.Data, row.HarvestedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row for %s: %w", row.Target, err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection.
func (w *MySQLWriter) Close() error {
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}
