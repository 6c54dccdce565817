package search

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the results table's generated fts column,
// ranked by ts_rank.
func (p *PgFTS) Search(q Query) ([]ResultRecord, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "r.fts @@ plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	if q.SchoolID != 0 {
		where += fmt.Sprintf(" AND r.school_id = $%d", argN)
		args = append(args, q.SchoolID)
		argN++
	}
	if q.ClassName != "" {
		where += fmt.Sprintf(" AND r.class_name = $%d", argN)
		args = append(args, q.ClassName)
		argN++
	}
	if q.ExamName != "" {
		where += fmt.Sprintf(" AND r.exam_name = $%d", argN)
		args = append(args, q.ExamName)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT r.id, r.name, r.school_id, r.class_name, r.exam_name, r.grade, r.rank, r.roll_no,
			COUNT(*) OVER () AS total
		FROM results r
		WHERE %s
		ORDER BY ts_rank(r.fts, plainto_tsquery('simple', $1)) DESC, r.id
		LIMIT $%d OFFSET $%d`, where, argN, argN+1)
	args = append(args, limit, offset)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []ResultRecord
	total := 0
	for rows.Next() {
		var record ResultRecord
		var id int64
		var name sql.NullString
		var rank, rollNo sql.NullInt64
		if err := rows.Scan(&id, &name, &record.SchoolID, &record.ClassName, &record.ExamName, &record.Grade, &rank, &rollNo, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		record.ID = strconv.FormatInt(id, 10)
		record.Name = name.String
		if rank.Valid {
			value := int(rank.Int64)
			record.Rank = &value
		}
		if rollNo.Valid {
			value := int(rollNo.Int64)
			record.RollNo = &value
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}
