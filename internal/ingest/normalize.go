package ingest

import (
	"strconv"
	"strings"
)

// BatchContext carries the row-invariant fields of one upload. They are
// validated before any row processing and attached verbatim to every record.
type BatchContext struct {
	SchoolID     int
	AcademicYear string
	Program      string
	ExamName     string
	ExamFormat   string
	ClassName    string
}

// Record is the canonical result row produced by normalization. It is built
// once per source row and never mutated afterwards; corrections arrive as a
// re-upload that overwrites through the profile's conflict key.
type Record struct {
	SchoolID     int
	AcademicYear string
	Program      string
	ExamName     string
	ExamFormat   string
	ClassName    string

	Exam    string
	ExamSet string
	RollNo  *int
	Name    string

	TotalMarks int
	PaperMarks int
	Percentage float64
	Grade      string
	Rank       *int

	Physics   *float64
	Chemistry *float64
	Maths     *float64
	Biology   *float64
}

// NormalizeRow derives one Record from a raw row. Pure: no I/O, no shared
// state. rowNum is the 1-based spreadsheet row used in parse errors.
//
// Absent cells contribute 0 to the scored metrics and null to subjects; a
// present non-numeric cell aborts the batch with a RowParseError instead of
// propagating a silent sentinel.
func NormalizeRow(row []string, cols ColumnMap, batch BatchContext, profile Profile, rowNum int) (Record, error) {
	correct, err := intCell(row, cols, FieldCorrect, rowNum)
	if err != nil {
		return Record{}, err
	}
	incorrect, err := intCell(row, cols, FieldIncorrect, rowNum)
	if err != nil {
		return Record{}, err
	}
	unattempted, err := intCell(row, cols, FieldUnattempted, rowNum)
	if err != nil {
		return Record{}, err
	}
	totalMarks, err := intCell(row, cols, FieldTotalMarks, rowNum)
	if err != nil {
		return Record{}, err
	}

	// Four marks per question, attempted or not.
	paperMarks := (correct + incorrect + unattempted) * 4
	percentage := 0.0
	if paperMarks > 0 {
		percentage = float64(totalMarks) / float64(paperMarks) * 100
	}

	record := Record{
		SchoolID:     batch.SchoolID,
		AcademicYear: batch.AcademicYear,
		Program:      batch.Program,
		ExamName:     batch.ExamName,
		ExamFormat:   batch.ExamFormat,
		ClassName:    batch.ClassName,
		Exam:         textCell(row, cols, FieldExam),
		ExamSet:      textCell(row, cols, FieldExamSet),
		Name:         textCell(row, cols, FieldName),
		TotalMarks:   totalMarks,
		PaperMarks:   paperMarks,
		Percentage:   percentage,
		Grade:        GradeFor(percentage),
	}

	record.RollNo, err = optionalIntCell(row, cols, FieldRollNo, rowNum)
	if err != nil {
		return Record{}, err
	}
	if profile.RankFromFile {
		record.Rank, err = optionalIntCell(row, cols, FieldRank, rowNum)
		if err != nil {
			return Record{}, err
		}
	}

	subjects := map[Field]**float64{
		FieldPhysics:   &record.Physics,
		FieldChemistry: &record.Chemistry,
		FieldMaths:     &record.Maths,
		FieldBiology:   &record.Biology,
	}
	for field, target := range subjects {
		score, err := floatCell(row, cols, field, rowNum)
		if err != nil {
			return Record{}, err
		}
		*target = score
	}

	return record, nil
}

// GradeFor maps a percentage to its letter grade. Inclusive lower bounds,
// evaluated top-down, first match wins.
func GradeFor(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B+"
	case percentage >= 60:
		return "B"
	case percentage >= 50:
		return "C"
	case percentage >= 35:
		return "D"
	default:
		return "F"
	}
}

// Dedupe collapses records sharing a conflict-key tuple to the last
// occurrence in file order, so the batch submitted to the store holds one
// record per key. Output keeps the file order of first appearance.
func Dedupe(records []Record, profile Profile) []Record {
	index := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, record := range records {
		key := conflictKeyOf(record, profile)
		if at, seen := index[key]; seen {
			out[at] = record
			continue
		}
		index[key] = len(out)
		out = append(out, record)
	}
	return out
}

func conflictKeyOf(record Record, profile Profile) string {
	parts := make([]string, 0, len(profile.ConflictKey))
	for _, column := range profile.ConflictKey {
		parts = append(parts, keyPart(record, column))
	}
	return strings.Join(parts, "\x1f")
}

func keyPart(record Record, column string) string {
	switch column {
	case "school_id":
		return strconv.Itoa(record.SchoolID)
	case "exam_name":
		return record.ExamName
	case "class_name":
		return record.ClassName
	case "exam":
		return record.Exam
	case "roll_no":
		if record.RollNo == nil {
			return ""
		}
		return strconv.Itoa(*record.RollNo)
	default:
		return ""
	}
}

func cellAt(row []string, cols ColumnMap, field Field) (string, bool) {
	idx, ok := cols[field]
	if !ok || idx >= len(row) {
		return "", false
	}
	value := strings.TrimSpace(row[idx])
	if value == "" {
		return "", false
	}
	return value, true
}

func textCell(row []string, cols ColumnMap, field Field) string {
	value, _ := cellAt(row, cols, field)
	return value
}

func intCell(row []string, cols ColumnMap, field Field, rowNum int) (int, error) {
	value, ok := cellAt(row, cols, field)
	if !ok {
		return 0, nil
	}
	parsed, err := parseIntLoose(value)
	if err != nil {
		return 0, &RowParseError{Row: rowNum, Column: string(field), Value: value}
	}
	return parsed, nil
}

func optionalIntCell(row []string, cols ColumnMap, field Field, rowNum int) (*int, error) {
	value, ok := cellAt(row, cols, field)
	if !ok {
		return nil, nil
	}
	parsed, err := parseIntLoose(value)
	if err != nil {
		return nil, &RowParseError{Row: rowNum, Column: string(field), Value: value}
	}
	return &parsed, nil
}

func floatCell(row []string, cols ColumnMap, field Field, rowNum int) (*float64, error) {
	value, ok := cellAt(row, cols, field)
	if !ok {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, &RowParseError{Row: rowNum, Column: string(field), Value: value}
	}
	return &parsed, nil
}

// parseIntLoose accepts integral cells that spreadsheets render with a
// decimal point ("160" and "160.0" both count as 160).
func parseIntLoose(value string) (int, error) {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if parsed != float64(int(parsed)) {
		return 0, strconv.ErrSyntax
	}
	return int(parsed), nil
}
