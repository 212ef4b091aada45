// internal/output/sqlite.go
package output

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteWriter writes result rows to a SQLite database.
type SQLiteWriter struct {
	db    *sql.DB
	table string
}

// NewSQLiteWriter creates a new SQLite writer, creating the database file
// and table as needed.
func NewSQLiteWriter(path, table string) (*SQLiteWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("SQLite database path is required")
	}
	if table == "" {
		return nil, fmt.Errorf("SQLite table name is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	w := &SQLiteWriter{db: db, table: table}
	if err := w.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) createTable() error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		success INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT,
		error_kind TEXT,
		data TEXT,
		harvested_at TIMESTAMP NOT NULL
	)`, w.table)
	if _, err := w.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", w.table, err)
	}
	return nil
}

// Write inserts rows inside a single transaction.
func (w *SQLiteWriter) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %q (target, success, duration_ms, error, error_kind, data, harvested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, w.table)
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
func (w *SQLiteWriter) Close() error {
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}
