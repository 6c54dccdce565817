package ingest

import (
	"errors"
	"testing"
)

func namedColumns() ColumnMap {
	return ColumnMap{
		FieldExam:        0,
		FieldExamSet:     1,
		FieldRollNo:      2,
		FieldName:        3,
		FieldCorrect:     4,
		FieldIncorrect:   5,
		FieldUnattempted: 6,
		FieldTotalMarks:  7,
		FieldPhysics:     8,
	}
}

func testBatch() BatchContext {
	return BatchContext{
		SchoolID:     7,
		AcademicYear: "2024",
		Program:      "JEE",
		ExamName:     "Mock1",
		ExamFormat:   "online",
		ClassName:    "11",
	}
}

func TestNormalizeRowDerivesPaperMarksAndGrade(t *testing.T) {
	row := []string{"Mock1", "A", "5", "Asha", "40", "10", "0", "160", "38"}

	record, err := NormalizeRow(row, namedColumns(), testBatch(), WholeClass, 2)
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}

	if record.PaperMarks != 200 {
		t.Errorf("expected paper_marks 200, got %d", record.PaperMarks)
	}
	if record.Percentage != 80.0 {
		t.Errorf("expected percentage 80.0, got %v", record.Percentage)
	}
	if record.Grade != "A" {
		t.Errorf("expected grade A, got %s", record.Grade)
	}
	if record.RollNo == nil || *record.RollNo != 5 {
		t.Errorf("expected roll_no 5, got %v", record.RollNo)
	}
	if record.Name != "Asha" {
		t.Errorf("expected name Asha, got %q", record.Name)
	}
	if record.Physics == nil || *record.Physics != 38.0 {
		t.Errorf("expected physics 38.0, got %v", record.Physics)
	}
	if record.Chemistry != nil {
		t.Errorf("expected chemistry null for unmapped subject, got %v", *record.Chemistry)
	}
	if record.Maths != nil || record.Biology != nil {
		t.Error("expected unmapped subjects to stay null")
	}
	if record.Rank != nil {
		t.Errorf("expected rank null for named-header profile, got %v", *record.Rank)
	}
	if record.SchoolID != 7 || record.AcademicYear != "2024" || record.ClassName != "11" {
		t.Errorf("batch context not attached verbatim: %+v", record)
	}
}

func TestNormalizeRowAbsentCellsContributeZero(t *testing.T) {
	// Correct/incorrect/unattempted columns all empty.
	row := []string{"Mock1", "A", "5", "Asha", "", "", "", "160"}

	record, err := NormalizeRow(row, namedColumns(), testBatch(), WholeClass, 2)
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if record.PaperMarks != 0 {
		t.Errorf("expected paper_marks 0, got %d", record.PaperMarks)
	}
	if record.Percentage != 0 {
		t.Errorf("expected percentage 0 when paper_marks is 0, got %v", record.Percentage)
	}
	if record.Grade != "F" {
		t.Errorf("expected grade F when paper_marks is 0, got %s", record.Grade)
	}
}

func TestNormalizeRowShortRowReadsAsAbsent(t *testing.T) {
	record, err := NormalizeRow([]string{"Mock1"}, namedColumns(), testBatch(), WholeClass, 3)
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if record.PaperMarks != 0 || record.TotalMarks != 0 {
		t.Errorf("expected zeros for cells beyond row length, got %+v", record)
	}
	if record.RollNo != nil {
		t.Errorf("expected nil roll_no, got %v", *record.RollNo)
	}
}

func TestNormalizeRowRejectsNonNumericRequiredCell(t *testing.T) {
	row := []string{"Mock1", "A", "5", "Asha", "40", "10", "0", "absent"}

	_, err := NormalizeRow(row, namedColumns(), testBatch(), WholeClass, 9)
	var parseErr *RowParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected RowParseError, got %v", err)
	}
	if parseErr.Row != 9 {
		t.Errorf("expected row 9 in error, got %d", parseErr.Row)
	}
	if parseErr.Column != "total_marks" {
		t.Errorf("expected column total_marks, got %s", parseErr.Column)
	}
	if parseErr.Value != "absent" {
		t.Errorf("expected offending value in error, got %q", parseErr.Value)
	}
}

func TestNormalizeRowRejectsNonNumericSubject(t *testing.T) {
	row := []string{"Mock1", "A", "5", "Asha", "40", "10", "0", "160", "n/a"}

	_, err := NormalizeRow(row, namedColumns(), testBatch(), WholeClass, 4)
	var parseErr *RowParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected RowParseError for non-numeric subject, got %v", err)
	}
}

func TestNormalizeRowAcceptsIntegralDecimals(t *testing.T) {
	row := []string{"Mock1", "A", "5", "Asha", "40.0", "10", "0", "160.0"}

	record, err := NormalizeRow(row, namedColumns(), testBatch(), WholeClass, 2)
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if record.TotalMarks != 160 || record.PaperMarks != 200 {
		t.Errorf("expected 160/200, got %d/%d", record.TotalMarks, record.PaperMarks)
	}
}

func TestNormalizeRowReadsSuppliedRankForLegacyProfile(t *testing.T) {
	row := make([]string, 39)
	row[0] = "UNIT-3"
	row[2] = "12"
	row[3] = "Ravi"
	row[4] = "120"
	row[6] = "4"
	row[7] = "30"
	row[8] = "5"
	row[9] = "5"
	row[14] = "31.5"

	cols := ResolveColumns(nil, Legacy)
	record, err := NormalizeRow(row, cols, BatchContext{SchoolID: 3}, Legacy, 3)
	if err != nil {
		t.Fatalf("NormalizeRow failed: %v", err)
	}
	if record.Rank == nil || *record.Rank != 4 {
		t.Errorf("expected supplied rank 4, got %v", record.Rank)
	}
	if record.PaperMarks != 160 {
		t.Errorf("expected paper_marks 160, got %d", record.PaperMarks)
	}
	if record.Physics == nil || *record.Physics != 31.5 {
		t.Errorf("expected physics 31.5, got %v", record.Physics)
	}
}

func TestGradeBoundariesMapToHigherGrade(t *testing.T) {
	cases := []struct {
		percentage float64
		want       string
	}{
		{100, "A+"}, {90, "A+"},
		{89.99, "A"}, {80, "A"},
		{79.99, "B+"}, {70, "B+"},
		{69.99, "B"}, {60, "B"},
		{59.99, "C"}, {50, "C"},
		{49.99, "D"}, {35, "D"},
		{34.99, "F"}, {0, "F"},
	}
	for _, tc := range cases {
		if got := GradeFor(tc.percentage); got != tc.want {
			t.Errorf("GradeFor(%v) = %s, want %s", tc.percentage, got, tc.want)
		}
	}
}

func TestDedupeLastOneWinsInFileOrder(t *testing.T) {
	five := 5
	nine := 9

	first := Record{SchoolID: 1, ExamName: "Mock1", ClassName: "11", RollNo: &five, TotalMarks: 100}
	second := Record{SchoolID: 1, ExamName: "Mock1", ClassName: "11", RollNo: &nine, TotalMarks: 80}
	override := Record{SchoolID: 1, ExamName: "Mock1", ClassName: "11", RollNo: &five, TotalMarks: 120}

	out := Dedupe([]Record{first, second, override}, WholeClass)
	if len(out) != 2 {
		t.Fatalf("expected 2 records after dedupe, got %d", len(out))
	}
	if out[0].TotalMarks != 120 {
		t.Errorf("expected later duplicate to win, got total_marks %d", out[0].TotalMarks)
	}
	if out[1].TotalMarks != 80 {
		t.Errorf("expected distinct record preserved, got total_marks %d", out[1].TotalMarks)
	}
}

func TestDedupeTreatsNilRollNoAsEqual(t *testing.T) {
	five := 5

	noRoll := Record{SchoolID: 1, ExamName: "Mock1", ClassName: "11", TotalMarks: 60}
	withRoll := Record{SchoolID: 1, ExamName: "Mock1", ClassName: "11", RollNo: &five, TotalMarks: 100}
	noRollAgain := Record{SchoolID: 1, ExamName: "Mock1", ClassName: "11", TotalMarks: 75}

	// Two records without a roll number share the same conflict key, the
	// same way the store's unique index compares their NULLs as equal.
	out := Dedupe([]Record{noRoll, withRoll, noRollAgain}, WholeClass)
	if len(out) != 2 {
		t.Fatalf("expected 2 records after dedupe, got %d", len(out))
	}
	if out[0].TotalMarks != 75 {
		t.Errorf("expected the later nil-roll record to win, got total_marks %d", out[0].TotalMarks)
	}
}
