// internal/output/excel.go
package output

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// excelMaxCellLength is the Excel limit on characters in a single cell.
const excelMaxCellLength = 32767

// ExcelWriter writes result rows to an .xlsx workbook.
type ExcelWriter struct {
	filename string
	sheet    string
	file     *excelize.File
	row      int
}

// NewExcelWriter creates a new Excel writer. Sheet defaults to "Results".
func NewExcelWriter(filename, sheet string) (*ExcelWriter, error) {
	if filename == "" {
		return nil, fmt.Errorf("Excel file path is required")
	}
	if sheet == "" {
		sheet = "Results"
	}

	file := excelize.NewFile()
	index, err := file.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	file.SetActiveSheet(index)
	if sheet != "Sheet1" {
		file.DeleteSheet("Sheet1")
	}

	w := &ExcelWriter{filename: filename, sheet: sheet, file: file, row: 1}
	if err := w.writeHeader(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *ExcelWriter) writeHeader() error {
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, col); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

// Write appends rows to the sheet.
func (w *ExcelWriter) Write(rows []Row) error {
	for _, row := range rows {
		values := []interface{}{
			row.Target,
			row.Success,
			row.DurationMS,
			truncateCell(row.Error),
			row.ErrorKind,
			truncateCell(row.Data),
			row.HarvestedAt.Format(time.RFC3339),
		}
		for i, v := range values {
			cell, err := excelize.CoordinatesToCellName(i+1, w.row)
			if err != nil {
				return err
			}
			if err := w.file.SetCellValue(w.sheet, cell, v); err != nil {
				return err
			}
		}
		w.row++
	}
	return nil
}

// Close saves the workbook to disk.
func (w *ExcelWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.SaveAs(w.filename)
	if cErr := w.file.Close(); err == nil {
		err = cErr
	}
	w.file = nil
	return err
}

func truncateCell(s string) string {
	if len(s) > excelMaxCellLength {
		return s[:excelMaxCellLength]
	}
	return s
}
