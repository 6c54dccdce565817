package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"scorebook/api/internal/ingest"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const uniqueViolation = "23505"

// EnsureSchoolByName looks a school up by exact name and creates it when
// absent. Two callers racing on the same new name both reach the insert; the
// loser hits the unique constraint and falls back to re-reading the winner's
// row, so exactly one school row exists either way.
func (s *PostgresStore) EnsureSchoolByName(ctx context.Context, name string) (School, bool, error) {
	const findSchool = `SELECT id, name FROM schools WHERE name = $1`
	var school School
	err := s.db.QueryRowContext(ctx, findSchool, name).Scan(&school.ID, &school.Name)
	if err == nil {
		return school, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return School{}, false, fmt.Errorf("lookup school: %w", err)
	}

	const insertSchool = `INSERT INTO schools (name) VALUES ($1) RETURNING id, name`
	err = s.db.QueryRowContext(ctx, insertSchool, name).Scan(&school.ID, &school.Name)
	if err == nil {
		return school, true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		// Lost the create race; the row exists now.
		if err := s.db.QueryRowContext(ctx, findSchool, name).Scan(&school.ID, &school.Name); err != nil {
			return School{}, false, fmt.Errorf("re-read school after conflict: %w", err)
		}
		return school, false, nil
	}
	return School{}, false, fmt.Errorf("insert school: %w", err)
}

func (s *PostgresStore) GetSchool(ctx context.Context, id int) (School, error) {
	var school School
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM schools WHERE id = $1`, id).Scan(&school.ID, &school.Name)
	if err != nil {
		return School{}, err
	}
	return school, nil
}

func (s *PostgresStore) ListSchools(ctx context.Context) ([]School, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM schools ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	defer rows.Close()

	items := make([]School, 0)
	for rows.Next() {
		var item School
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan school: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schools: %w", err)
	}
	return items, nil
}

// resultColumns is the persisted column set per target table, in insert
// order. The named-header table never takes rank from the batch; the rank
// procedure owns that column. The legacy table carries the supplied rank.
func resultColumns(table string) []string {
	switch table {
	case "student_results":
		return []string{
			"school_id", "exam", "examset", "roll_no", "name",
			"total_marks", "paper_marks", "percentage", "grade", "rank",
			"physics", "chemistry", "maths", "biology",
		}
	default:
		return []string{
			"school_id", "academic_year", "program", "exam_name", "exam_format", "class_name",
			"exam", "examset", "roll_no", "name",
			"total_marks", "paper_marks", "percentage", "grade",
			"physics", "chemistry", "maths", "biology",
		}
	}
}

func resultValue(record ingest.Record, column string) any {
	switch column {
	case "school_id":
		return record.SchoolID
	case "academic_year":
		return record.AcademicYear
	case "program":
		return record.Program
	case "exam_name":
		return record.ExamName
	case "exam_format":
		return record.ExamFormat
	case "class_name":
		return record.ClassName
	case "exam":
		return record.Exam
	case "examset":
		return record.ExamSet
	case "roll_no":
		return record.RollNo
	case "name":
		return record.Name
	case "total_marks":
		return record.TotalMarks
	case "paper_marks":
		return record.PaperMarks
	case "percentage":
		return record.Percentage
	case "grade":
		return record.Grade
	case "rank":
		return record.Rank
	case "physics":
		return record.Physics
	case "chemistry":
		return record.Chemistry
	case "maths":
		return record.Maths
	case "biology":
		return record.Biology
	default:
		return nil
	}
}

// upsertChunkSize keeps each statement well under the postgres bind
// parameter limit (65535) at 18 columns per row.
const upsertChunkSize = 500

// UpsertResults writes the batch in one transaction: a key tuple that
// already exists has its non-key columns replaced, a novel tuple inserts.
// Either the whole batch becomes visible or none of it does.
func (s *PostgresStore) UpsertResults(ctx context.Context, profile ingest.Profile, records []ingest.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	columns := resultColumns(profile.Table)
	query := upsertQuery(profile.Table, columns, profile.ConflictKey)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert tx: %w", err)
	}

	written := 0
	for start := 0; start < len(records); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		args := make([]any, 0, len(chunk)*len(columns))
		for _, record := range chunk {
			for _, column := range columns {
				args = append(args, resultValue(record, column))
			}
		}

		result, err := tx.ExecContext(ctx, query(len(chunk)), args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert %s: %w", profile.Table, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert %s rows affected: %w", profile.Table, err)
		}
		written += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert tx: %w", err)
	}
	return written, nil
}

// upsertQuery builds the INSERT ... ON CONFLICT statement for a given row
// count. Column and key names come from the compiled-in profiles, never from
// request input.
func upsertQuery(table string, columns, conflictKey []string) func(rowCount int) string {
	keyed := make(map[string]bool, len(conflictKey))
	for _, column := range conflictKey {
		keyed[column] = true
	}
	var updates []string
	for _, column := range columns {
		if keyed[column] {
			continue
		}
		updates = append(updates, fmt.Sprintf("%q = EXCLUDED.%q", column, column))
	}

	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = fmt.Sprintf("%q", column)
	}

	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(quoted, ", "))
	suffix := fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictKey, ", "), strings.Join(updates, ", "))

	return func(rowCount int) string {
		var b strings.Builder
		b.WriteString(prefix)
		arg := 1
		for row := 0; row < rowCount; row++ {
			if row > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(")
			for col := range columns {
				if col > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "$%d", arg)
				arg++
			}
			b.WriteString(")")
		}
		b.WriteString(suffix)
		return b.String()
	}
}

// RecalculateRanks invokes the server-side rank procedure for a committed
// batch. The named-header contract scopes the procedure to the batch
// identity; the legacy contract uses the original global procedure.
func (s *PostgresStore) RecalculateRanks(ctx context.Context, profile ingest.Profile, scope BatchScope) error {
	if profile.ScopedRank {
		_, err := s.db.ExecContext(ctx, `SELECT recalculate_rank($1, $2, $3, $4, $5, $6)`,
			scope.SchoolID, scope.ClassName, scope.ExamName, scope.Program, scope.ExamFormat, scope.AcademicYear)
		if err != nil {
			return fmt.Errorf("recalculate_rank: %w", err)
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `SELECT assign_student_ranks()`); err != nil {
		return fmt.Errorf("assign_student_ranks: %w", err)
	}
	return nil
}

// ListResults reads the named-header results slice identified by scope.
// Zero-valued scope fields other than SchoolID are not filtered on.
func (s *PostgresStore) ListResults(ctx context.Context, scope BatchScope) ([]Result, error) {
	where := []string{"school_id = $1"}
	args := []any{scope.SchoolID}
	argN := 2

	filters := []struct {
		column string
		value  string
	}{
		{"class_name", scope.ClassName},
		{"exam_name", scope.ExamName},
		{"program", scope.Program},
		{"exam_format", scope.ExamFormat},
		{"academic_year", scope.AcademicYear},
	}
	for _, filter := range filters {
		if filter.value == "" {
			continue
		}
		where = append(where, fmt.Sprintf("%s = $%d", filter.column, argN))
		args = append(args, filter.value)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT id, school_id, academic_year, program, exam_name, exam_format, class_name,
			exam, examset, roll_no, name, total_marks, paper_marks, percentage, grade, rank,
			physics, chemistry, maths, biology
		FROM results
		WHERE %s
		ORDER BY rank NULLS LAST, roll_no NULLS LAST, id`, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	items := make([]Result, 0)
	for rows.Next() {
		var item Result
		var rollNo, rank sql.NullInt64
		var physics, chemistry, maths, biology sql.NullFloat64
		err := rows.Scan(
			&item.ID, &item.SchoolID, &item.AcademicYear, &item.Program, &item.ExamName,
			&item.ExamFormat, &item.ClassName, &item.Exam, &item.ExamSet, &rollNo,
			&item.Name, &item.TotalMarks, &item.PaperMarks, &item.Percentage, &item.Grade,
			&rank, &physics, &chemistry, &maths, &biology,
		)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		item.RollNo = nullableInt(rollNo)
		item.Rank = nullableInt(rank)
		item.Physics = nullableFloat(physics)
		item.Chemistry = nullableFloat(chemistry)
		item.Maths = nullableFloat(maths)
		item.Biology = nullableFloat(biology)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return items, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	value := int(v.Int64)
	return &value
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}
