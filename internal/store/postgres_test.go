package store

import (
	"strings"
	"testing"

	"scorebook/api/internal/ingest"
)

func TestUpsertQueryShape(t *testing.T) {
	query := upsertQuery("results", resultColumns("results"), ingest.WholeClass.ConflictKey)

	sql := query(2)
	if !strings.HasPrefix(sql, "INSERT INTO results (") {
		t.Errorf("unexpected prefix: %s", sql)
	}
	if !strings.Contains(sql, "ON CONFLICT (school_id, exam_name, class_name, roll_no) DO UPDATE SET") {
		t.Errorf("missing conflict clause: %s", sql)
	}
	if !strings.Contains(sql, `"grade" = EXCLUDED."grade"`) {
		t.Errorf("missing non-key update: %s", sql)
	}
	if strings.Contains(sql, `"school_id" = EXCLUDED."school_id"`) {
		t.Errorf("conflict-key column must not be updated: %s", sql)
	}

	// 18 columns per row, two rows.
	if !strings.Contains(sql, "($1, ") || !strings.Contains(sql, "$36)") {
		t.Errorf("unexpected placeholder numbering: %s", sql)
	}
	if strings.Contains(sql, "$37") {
		t.Errorf("too many placeholders: %s", sql)
	}
}

func TestUpsertQueryLegacyTable(t *testing.T) {
	query := upsertQuery("student_results", resultColumns("student_results"), ingest.Legacy.ConflictKey)

	sql := query(1)
	if !strings.Contains(sql, "INSERT INTO student_results (") {
		t.Errorf("unexpected table: %s", sql)
	}
	if !strings.Contains(sql, "ON CONFLICT (school_id, exam, roll_no) DO UPDATE SET") {
		t.Errorf("missing legacy conflict clause: %s", sql)
	}
	if !strings.Contains(sql, `"rank" = EXCLUDED."rank"`) {
		t.Errorf("legacy rows must carry the file-supplied rank: %s", sql)
	}
}

func TestResultColumnsMatchProfiles(t *testing.T) {
	named := resultColumns(ingest.WholeClass.Table)
	if len(named) != 18 {
		t.Errorf("expected 18 named-header columns, got %d", len(named))
	}
	for _, column := range named {
		if column == "rank" {
			t.Error("named-header rows must not write rank; the procedure owns it")
		}
	}

	legacy := resultColumns(ingest.Legacy.Table)
	found := false
	for _, column := range legacy {
		if column == "rank" {
			found = true
		}
	}
	if !found {
		t.Error("legacy rows carry the rank column")
	}

	// Every profile column must have a value mapping. Pointer columns map
	// to a typed nil, which is still a non-nil interface here.
	for _, table := range []string{ingest.WholeClass.Table, ingest.Legacy.Table} {
		for _, column := range resultColumns(table) {
			if resultValue(ingest.Record{}, column) == nil {
				t.Errorf("no value mapping for column %q", column)
			}
		}
	}
}

func TestResultValueMapsRecordFields(t *testing.T) {
	rollNo := 101
	physics := 40.5
	record := ingest.Record{
		SchoolID:   7,
		ExamName:   "Mock Test 3",
		ClassName:  "12A",
		RollNo:     &rollNo,
		Name:       "Asha",
		TotalMarks: 172,
		PaperMarks: 200,
		Percentage: 86,
		Grade:      "A",
		Physics:    &physics,
	}

	if v := resultValue(record, "school_id"); v != 7 {
		t.Errorf("school_id: got %v", v)
	}
	if v := resultValue(record, "grade"); v != "A" {
		t.Errorf("grade: got %v", v)
	}
	if v := resultValue(record, "roll_no"); v != &rollNo {
		t.Errorf("roll_no: got %v", v)
	}
	if v := resultValue(record, "chemistry"); v != (*float64)(nil) {
		t.Errorf("absent subject must map to nil, got %v", v)
	}
}
