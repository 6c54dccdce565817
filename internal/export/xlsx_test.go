package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"scorebook/api/internal/ingest"
	"scorebook/api/internal/store"
)

func TestResultsXLSX(t *testing.T) {
	rollNo := 101
	rank := 2
	physics := 40.5
	results := []store.Result{
		{
			ID: 1,
			Record: ingest.Record{
				Exam: "Mock Test 3", ExamSet: "A", RollNo: &rollNo, Name: "Asha",
				TotalMarks: 172, PaperMarks: 200, Percentage: 86, Grade: "A",
				Rank: &rank, Physics: &physics,
			},
		},
		{
			ID: 2,
			Record: ingest.Record{
				Exam: "Mock Test 3", ExamSet: "A", Name: "Bilal",
				TotalMarks: 0, PaperMarks: 0, Percentage: 0, Grade: "F",
			},
		},
	}

	payload, err := ResultsXLSX(results)
	if err != nil {
		t.Fatalf("ResultsXLSX failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}

	if rows[0][0] != "Exam" || rows[0][3] != "Name" || rows[0][8] != "Rank" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][2] != "101" || rows[1][3] != "Asha" || rows[1][7] != "A" {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if rows[1][9] != "40.5" {
		t.Errorf("expected physics 40.5, got %q", rows[1][9])
	}

	// Nil roll number and subjects stay blank rather than writing zeros.
	second := rows[2]
	if len(second) > 2 && second[2] != "" {
		t.Errorf("expected blank roll number, got %q", second[2])
	}
}
