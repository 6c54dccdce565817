// Package export renders persisted result sets back to spreadsheet form.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"scorebook/api/internal/store"
)

var header = []string{
	"Exam", "Exam Set", "Roll No", "Name",
	"Paper Marks", "Total Marks", "Percentage", "Grade", "Rank",
	"Physics", "Chemistry", "Maths", "Biology",
}

// ResultsXLSX writes one batch scope's results as an xlsx workbook, derived
// metrics included.
func ResultsXLSX(results []store.Result) ([]byte, error) {
	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	sheet := file.GetSheetName(0)

	for col, label := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := file.SetCellValue(sheet, cell, label); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for i, result := range results {
		values := []any{
			result.Exam, result.ExamSet, intOrBlank(result.RollNo), result.Name,
			result.PaperMarks, result.TotalMarks, result.Percentage, result.Grade, intOrBlank(result.Rank),
			floatOrBlank(result.Physics), floatOrBlank(result.Chemistry),
			floatOrBlank(result.Maths), floatOrBlank(result.Biology),
		}
		for col, value := range values {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("row cell: %w", err)
			}
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func intOrBlank(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatOrBlank(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
