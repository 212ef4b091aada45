// internal/output/csv.go
package output

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSVWriter writes result rows in CSV format with a fixed header.
type CSVWriter struct {
	filename    string
	file        *os.File
	writer      *csv.Writer
	wroteHeader bool
}

// NewCSVWriter creates a new CSV writer.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	return &CSVWriter{
		filename: filename,
		file:     file,
		writer:   csv.NewWriter(file),
	}, nil
}

// Write writes rows to the CSV file, emitting the header on first call.
func (w *CSVWriter) Write(rows []Row) error {
	if !w.wroteHeader {
		if err := w.writer.Write(columns); err != nil {
			return err
		}
		w.wroteHeader = true
	}

	for _, row := range rows {
		record := []string{
			row.Target,
			strconv.FormatBool(row.Success),
			strconv.FormatInt(row.DurationMS, 10),
			row.Error,
			row.ErrorKind,
			row.Data,
			row.HarvestedAt.Format(time.RFC3339),
		}
		if err := w.writer.Write(record); err != nil {
			return err
		}
	}

	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the CSV writer.
func (w *CSVWriter) Close() error {
	if w.file == nil {
		return nil
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		w.file = nil
		return err
	}
	err := w.file.Close()
	w.file = nil
	return err
}
