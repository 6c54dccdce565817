package ingest

// Field identifies one canonical attribute of a result row.
type Field string

const (
	FieldExam        Field = "exam"
	FieldExamSet     Field = "examset"
	FieldRollNo      Field = "roll_no"
	FieldName        Field = "name"
	FieldCorrect     Field = "correct"
	FieldIncorrect   Field = "incorrect"
	FieldUnattempted Field = "unattempted"
	FieldTotalMarks  Field = "total_marks"
	FieldRank        Field = "rank"
	FieldPhysics     Field = "physics"
	FieldChemistry   Field = "chemistry"
	FieldMaths       Field = "maths"
	FieldBiology     Field = "biology"
)

// Subjects lists the subject-score fields in persisted column order.
var Subjects = []Field{FieldPhysics, FieldChemistry, FieldMaths, FieldBiology}

// LayoutMode selects how the profile locates columns. The two modes are
// distinct contracts chosen by the caller, never auto-detected.
type LayoutMode string

const (
	// LayoutNamedHeader scans the header row's labels for each field.
	LayoutNamedHeader LayoutMode = "named_header"
	// LayoutPositional reads fixed column offsets of a rigid unlabeled
	// export. A malformed file yields wrong values, not an error; that is
	// the accepted contract of this mode.
	LayoutPositional LayoutMode = "positional"
)

// Profile is one versioned ingestion contract: where columns live, which
// table receives the batch, and which attribute tuple decides
// insert-vs-replace on upsert.
type Profile struct {
	Name   string
	Layout LayoutMode

	// HeaderRows is the number of leading rows consumed before data starts.
	HeaderRows int

	// Labels maps canonical fields to the header text scanned for in
	// named-header mode. Matching trims whitespace and ignores case.
	Labels map[Field]string

	// Positions maps canonical fields to fixed offsets in positional mode.
	Positions map[Field]int

	// RankFromFile marks profiles whose source carries a precomputed rank
	// column. Rank stays null otherwise and is filled by recomputation.
	RankFromFile bool

	Table       string
	ConflictKey []string

	// ScopedRank selects the rank procedure parameterized by the batch
	// identity; otherwise the global procedure is invoked.
	ScopedRank bool

	// RequireBatchScope demands the full batch-context field set
	// (year/program/exam/format/class) in addition to the school.
	RequireBatchScope bool
}

// WholeClass is the named-header contract for whole-class result exports.
var WholeClass = Profile{
	Name:       "wholeclass",
	Layout:     LayoutNamedHeader,
	HeaderRows: 1,
	Labels: map[Field]string{
		FieldExam:        "Exam",
		FieldExamSet:     "Exam Set",
		FieldRollNo:      "Roll No",
		FieldName:        "Name",
		FieldCorrect:     "Correct Answers",
		FieldIncorrect:   "Incorrect Answers",
		FieldUnattempted: "Not attempted",
		FieldTotalMarks:  "Total Marks",
		FieldPhysics:     "Physics",
		FieldChemistry:   "Chemistry",
		FieldMaths:       "Maths",
		FieldBiology:     "Biology",
	},
	Table:             "results",
	ConflictKey:       []string{"school_id", "exam_name", "class_name", "roll_no"},
	ScopedRank:        true,
	RequireBatchScope: true,
}

// Legacy is the positional contract for the fixed-instrument export: two
// filler rows, then data at hard-coded offsets including a supplied rank.
var Legacy = Profile{
	Name:       "legacy",
	Layout:     LayoutPositional,
	HeaderRows: 2,
	Positions: map[Field]int{
		FieldExam:        0,
		FieldExamSet:     1,
		FieldRollNo:      2,
		FieldName:        3,
		FieldTotalMarks:  4,
		FieldRank:        6,
		FieldCorrect:     7,
		FieldIncorrect:   8,
		FieldUnattempted: 9,
		FieldPhysics:     14,
		FieldChemistry:   22,
		FieldMaths:       30,
		FieldBiology:     38,
	},
	RankFromFile: true,
	Table:        "student_results",
	ConflictKey:  []string{"school_id", "exam", "roll_no"},
}

var profiles = map[string]Profile{
	WholeClass.Name: WholeClass,
	Legacy.Name:     Legacy,
}

// ProfileByName returns the named ingestion profile.
func ProfileByName(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}
