// internal/output/manager.go
package output

import (
	"fmt"

	"github.com/domharvest/domharvest/internal/config"
	"github.com/domharvest/domharvest/internal/harvester"
)

// Manager fans result rows out to every configured sink.
type Manager struct {
	writers []Writer
}

// NewManager builds a writer for each output configuration. On any failure
// writers opened so far are closed.
func NewManager(configs []config.OutputConfig) (*Manager, error) {
	m := &Manager{}
	for i, cfg := range configs {
		writer, err := newWriter(cfg)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("output %d (%s): %w", i, cfg.Type, err)
		}
		m.writers = append(m.writers, writer)
	}
	return m, nil
}

func newWriter(cfg config.OutputConfig) (Writer, error) {
	switch cfg.Type {
	case "json":
		return NewJSONWriter(cfg.File)
	case "csv":
		return NewCSVWriter(cfg.File)
	case "excel":
		return NewExcelWriter(cfg.File, cfg.Sheet)
	case "sqlite":
		return NewSQLiteWriter(cfg.File, cfg.Table)
	case "mysql":
		return NewMySQLWriter(cfg.DSN, cfg.Table)
	case "postgres":
		return NewPostgresWriter(cfg.DSN, cfg.Table)
	case "mongodb":
		return NewMongoDBWriter(cfg.DSN, cfg.Database, cfg.Collection)
	default:
		return nil, fmt.Errorf("unsupported output type: %s", cfg.Type)
	}
}

// WriteResults converts batch results to rows and writes them to every sink.
// All sinks are attempted; the first error is returned.
func (m *Manager) WriteResults(results []harvester.BatchResult) error {
	rows, err := RowsFromResults(results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	var firstErr error
	for _, w := range m.writers {
		if err := w.Write(rows); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every writer, returning the first error.
func (m *Manager) Close() error {
	var firstErr error
	for _, w := range m.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.writers = nil
	return firstErr
}
