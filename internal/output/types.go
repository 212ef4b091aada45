// Package output persists batch harvest results to files and databases.
package output

import (
	"encoding/json"
	"time"

	"github.com/domharvest/domharvest/internal/harvester"
)

// Writer persists a slice of result rows. Implementations are not safe for
// concurrent use; the manager serializes writes.
type Writer interface {
	Write(rows []Row) error
	Close() error
}

// Row is one harvest outcome flattened for storage. Data holds the extracted
// records as a JSON array.
type Row struct {
	Target      string    `json:"target"`
	Success     bool      `json:"success"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Data        string    `json:"data,omitempty"`
	HarvestedAt time.Time `json:"harvested_at"`
}

// columns is the fixed storage schema shared by the tabular writers.
var columns = []string{"target", "success", "duration_ms", "error", "error_kind", "data", "harvested_at"}

// RowsFromResults converts batch results into storage rows.
func RowsFromResults(results []harvester.BatchResult) ([]Row, error) {
	now := time.Now().UTC()
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		row := Row{
			Target:      r.Target,
			Success:     r.Success,
			DurationMS:  r.Duration.Milliseconds(),
			Error:       r.Error,
			ErrorKind:   r.ErrorKind,
			HarvestedAt: now,
		}
		if r.Data != nil {
			encoded, err := json.Marshal(r.Data)
			if err != nil {
				return nil, err
			}
			row.Data = string(encoded)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
