package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetWriter writes tabular data to a workbook.
type SheetWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []any) error
	Save(w io.Writer) error
	Close() error
}

// ExcelizeWriter implements SheetWriter using excelize library.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

// NewExcelizeWriter creates a new Excel writer.
func NewExcelizeWriter() SheetWriter {
	return &ExcelizeWriter{file: excelize.NewFile()}
}

var errNoSheet = errors.New("no active sheet")

// AddSheet adds a new sheet with the given name.
func (w *ExcelizeWriter) AddSheet(name string) error {
	// Excel limits sheet names to 31 chars
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers to current sheet.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.currentSheet == "" {
		return errNoSheet
	}

	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = col
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}

	w.currentRow++
	return nil
}

// WriteRow writes a data row to current sheet.
func (w *ExcelizeWriter) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return errNoSheet
	}
	if err := w.writeRow(row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *ExcelizeWriter) writeRow(row []any) error {
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	return w.file.SetSheetRow(w.currentSheet, cell, &row)
}

// Save writes the workbook to wr.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// Close releases resources.
func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
