package store

import "scorebook/api/internal/ingest"

type School struct {
	ID   int
	Name string
}

// BatchScope identifies one upload's slice of the results table. It
// parameterizes rank recomputation, listing, and export.
type BatchScope struct {
	SchoolID     int
	ClassName    string
	ExamName     string
	Program      string
	ExamFormat   string
	AcademicYear string
}

// Result is a persisted result row. Rank may have been filled in by the
// recomputation procedure after the row was upserted.
type Result struct {
	ID int
	ingest.Record
}
