// internal/output/json.go
package output

import (
	"encoding/json"
	"os"
)

// JSONWriter writes result rows as a pretty-printed JSON array.
type JSONWriter struct {
	filename string
	file     *os.File
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	return &JSONWriter{
		filename: filename,
		file:     file,
	}, nil
}

// Write writes rows to the JSON file.
func (w *JSONWriter) Write(rows []Row) error {
	encoder := json.NewEncoder(w.file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}

// Close closes the JSON writer.
func (w *JSONWriter) Close() error {
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
