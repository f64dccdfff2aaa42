// Package sheet reads and writes the catalog metadata workbook. Sheet names
// double as schema types on import; exports append one row per dataset in the
// fixed column layout the curators maintain by hand.
package sheet

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

// Workbook wraps an open spreadsheet file.
type Workbook struct {
	path string
	f    *excelize.File
}

// Open loads the workbook at path, creating an empty one if the file does not
// exist yet.
func Open(path string) (*Workbook, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f := excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("creating workbook %s: %w", path, err)
		}
		return &Workbook{path: path, f: f}, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	return &Workbook{path: path, f: f}, nil
}

// Path returns the workbook file path.
func (w *Workbook) Path() string { return w.path }

// SheetNames lists the worksheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	return w.f.GetSheetList()
}

// FindHeaderRow returns the 1-based index of the first row containing target
// in any cell, or 1 when no cell matches, assuming headers sit in row one.
func (w *Workbook) FindHeaderRow(sheetName, target string) (int, error) {
	rows, err := w.f.GetRows(sheetName)
	if err != nil {
		return 0, fmt.Errorf("reading sheet %s: %w", sheetName, err)
	}
	for i, row := range rows {
		for _, cell := range row {
			if cell == target {
				return i + 1, nil
			}
		}
	}
	return 1, nil
}

// Rows extracts the data rows below headerRow as maps keyed by the header
// cells. Fully empty rows are skipped; trailing unheadered cells are dropped.
func (w *Workbook) Rows(sheetName string, headerRow int) ([]map[string]any, error) {
	rows, err := w.f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheetName, err)
	}
	if headerRow < 1 || headerRow > len(rows) {
		return nil, nil
	}
	headers := rows[headerRow-1]

	var out []map[string]any
	for _, row := range rows[headerRow:] {
		if empty(row) {
			continue
		}
		record := make(map[string]any, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			if i < len(row) {
				record[header] = row[i]
			} else {
				record[header] = ""
			}
		}
		out = append(out, record)
	}
	return out, nil
}

func empty(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// nextFreeRow finds the row after the last one holding any value.
func (w *Workbook) nextFreeRow(sheetName string) (int, error) {
	rows, err := w.f.GetRows(sheetName)
	if err != nil {
		return 0, fmt.Errorf("reading sheet %s: %w", sheetName, err)
	}
	last := 0
	for i, row := range rows {
		if !empty(row) {
			last = i + 1
		}
	}
	return last + 1, nil
}

func (w *Workbook) setCell(sheetName string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return w.f.SetCellValue(sheetName, cell, value)
}

// Save writes the workbook back to its file.
func (w *Workbook) Save() error {
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", w.path, err)
	}
	return nil
}

// Close releases the underlying file without saving.
func (w *Workbook) Close() error {
	return w.f.Close()
}
