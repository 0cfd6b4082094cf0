// Package export serializes a materialized result set into a spreadsheet.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"tin-report/internal/dbexec"
	"tin-report/internal/filter"

	"github.com/xuri/excelize/v2"
)

// ErrNoRows signals the distinguished "no matching data" condition.
// No spreadsheet is produced for it; callers surface it as not-found.
var ErrNoRows = errors.New("result set has no rows")

// DefaultSheetName is used when no sheet name is configured.
const DefaultSheetName = "Report"

// Exporter writes a TabularResult as a single-sheet XLSX document.
type Exporter struct {
	SheetName string
}

// Export serializes columns as a header row followed by one row per data
// row, entirely in memory. Output is deterministic: the same result yields
// byte-identical documents (no wall-clock timestamps in the body).
func (e *Exporter) Export(result *dbexec.TabularResult) ([]byte, error) {
	if result == nil || result.Empty() {
		return nil, ErrNoRows
	}

	sheet := e.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet %q: %w", sheet, err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("failed to drop default sheet: %w", err)
		}
	}

	header := make([]any, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col
	}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return nil, err
	}
	for i, row := range result.Rows {
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize spreadsheet: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", rowNum, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	return nil
}

// Filename derives a stable artifact name from the identifying filter
// values, so repeated identical requests produce identically named files.
func Filename(f filter.FilterSet) string {
	return fmt.Sprintf("%s_%s.xlsx", strings.Join(f.TINs, "-"), f.EndDateString())
}
