package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scorebook/api/internal/config"
	"scorebook/api/internal/dimension"
	"scorebook/api/internal/export"
	"scorebook/api/internal/ingest"
	"scorebook/api/internal/search"
	"scorebook/api/internal/store"
)

type dataStore interface {
	EnsureSchoolByName(ctx context.Context, name string) (store.School, bool, error)
	ListSchools(ctx context.Context) ([]store.School, error)
	UpsertResults(ctx context.Context, profile ingest.Profile, records []ingest.Record) (int, error)
	RecalculateRanks(ctx context.Context, profile ingest.Profile, scope store.BatchScope) error
	ListResults(ctx context.Context, scope store.BatchScope) ([]store.Result, error)
	Ping(ctx context.Context) error
}

// UploadInput is one batch: the spreadsheet stream plus the row-invariant
// batch-context fields supplied alongside it.
type UploadInput struct {
	File    io.Reader
	Profile string

	// Either a school name to resolve or a pre-resolved id.
	SchoolName string
	SchoolID   int

	AcademicYear string
	Program      string
	ExamName     string
	ExamFormat   string
	ClassName    string
}

// UploadSummary reports what persisted and whether the derived rank step
// completed. RanksRecomputed false with a nil error is the partial-success
// state: the rows are durable, only the recomputation needs retrying.
type UploadSummary struct {
	Status          string `json:"status"`
	Inserted        int    `json:"inserted_or_updated"`
	SchoolID        int    `json:"school_id"`
	RanksRecomputed bool   `json:"ranks_recomputed"`
	RankError       string `json:"rank_error,omitempty"`
}

type Service struct {
	cfg     config.Config
	store   dataStore
	schools *dimension.Resolver
	search  *search.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, schools *dimension.Resolver, searchService *search.Service) *Service {
	return &Service{
		cfg:     cfg,
		store:   dataStore,
		schools: schools,
		search:  searchService,
	}
}

// storeCtx attaches the configured deadline to a store call so a stalled
// database cannot hang the request.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// IngestUpload runs one batch through the full pipeline: validate context,
// decode, resolve columns, normalize, dedupe, resolve the school, upsert,
// recompute ranks. Caller-input errors surface before any store access.
func (s *Service) IngestUpload(ctx context.Context, input UploadInput) (UploadSummary, error) {
	profileName := input.Profile
	if profileName == "" {
		profileName = ingest.WholeClass.Name
	}
	profile, ok := ingest.ProfileByName(profileName)
	if !ok {
		return UploadSummary{}, domainError(http.StatusBadRequest, "UNKNOWN_PROFILE",
			fmt.Sprintf("unknown ingestion profile %q", profileName), nil)
	}

	if input.File == nil {
		return UploadSummary{}, ingest.ErrNoFile
	}
	if err := validateBatchContext(input, profile); err != nil {
		return UploadSummary{}, err
	}

	rows, err := ingest.ReadRows(input.File)
	if err != nil {
		return UploadSummary{}, err
	}
	if len(rows) <= profile.HeaderRows {
		return UploadSummary{}, ingest.ErrEmptyInput
	}

	var header []string
	if profile.Layout == ingest.LayoutNamedHeader {
		header = rows[0]
	}
	cols := ingest.ResolveColumns(header, profile)

	batch := ingest.BatchContext{
		SchoolID:     input.SchoolID,
		AcademicYear: input.AcademicYear,
		Program:      input.Program,
		ExamName:     input.ExamName,
		ExamFormat:   input.ExamFormat,
		ClassName:    input.ClassName,
	}

	records := make([]ingest.Record, 0, len(rows)-profile.HeaderRows)
	for i, row := range rows[profile.HeaderRows:] {
		// 1-based spreadsheet row number, past the header rows.
		record, err := ingest.NormalizeRow(row, cols, batch, profile, profile.HeaderRows+i+1)
		if err != nil {
			return UploadSummary{}, err
		}
		records = append(records, record)
	}
	records = ingest.Dedupe(records, profile)

	// Store access starts here: a batch rejected above never touches it.
	schoolID := input.SchoolID
	if schoolID == 0 {
		resolveCtx, cancel := s.storeCtx(ctx)
		schoolID, err = s.schools.Resolve(resolveCtx, input.SchoolName)
		cancel()
		if err != nil {
			return UploadSummary{}, domainError(http.StatusServiceUnavailable, "DIMENSION_ERROR",
				"school resolution failed", err.Error())
		}
		for i := range records {
			records[i].SchoolID = schoolID
		}
	}

	upsertCtx, cancel := s.storeCtx(ctx)
	written, err := s.store.UpsertResults(upsertCtx, profile, records)
	cancel()
	if err != nil {
		return UploadSummary{}, domainError(http.StatusServiceUnavailable, "UPSERT_ERROR",
			"bulk write failed, no rows committed", err.Error())
	}

	summary := UploadSummary{
		Status:          "Success",
		Inserted:        written,
		SchoolID:        schoolID,
		RanksRecomputed: true,
	}

	scope := store.BatchScope{
		SchoolID:     schoolID,
		ClassName:    input.ClassName,
		ExamName:     input.ExamName,
		Program:      input.Program,
		ExamFormat:   input.ExamFormat,
		AcademicYear: input.AcademicYear,
	}
	rankCtx, cancel := s.storeCtx(ctx)
	err = s.store.RecalculateRanks(rankCtx, profile, scope)
	cancel()
	if err != nil {
		// Rows are durable; only the derived step failed. Report the
		// partial state instead of conflating it with an upsert failure.
		summary.RanksRecomputed = false
		summary.RankError = err.Error()
	}

	if s.search != nil && profile.ScopedRank {
		s.search.IndexBatch(searchRecords(records))
	}

	return summary, nil
}

func validateBatchContext(input UploadInput, profile ingest.Profile) error {
	if input.SchoolID == 0 && strings.TrimSpace(input.SchoolName) == "" {
		return &ingest.MissingFieldError{Field: "school"}
	}
	if !profile.RequireBatchScope {
		return nil
	}
	fields := []struct {
		name  string
		value string
	}{
		{"academicYear", input.AcademicYear},
		{"program", input.Program},
		{"examName", input.ExamName},
		{"examFormat", input.ExamFormat},
		{"className", input.ClassName},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			return &ingest.MissingFieldError{Field: field.name}
		}
	}
	return nil
}

// Recalculate re-invokes the rank procedure alone, for retrying after a
// partial success without re-ingesting the batch.
func (s *Service) Recalculate(ctx context.Context, profileName string, scope store.BatchScope) error {
	if profileName == "" {
		profileName = ingest.WholeClass.Name
	}
	profile, ok := ingest.ProfileByName(profileName)
	if !ok {
		return domainError(http.StatusBadRequest, "UNKNOWN_PROFILE",
			fmt.Sprintf("unknown ingestion profile %q", profileName), nil)
	}
	rankCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.RecalculateRanks(rankCtx, profile, scope); err != nil {
		return domainError(http.StatusServiceUnavailable, "RANK_ERROR",
			"rank recomputation failed", err.Error())
	}
	return nil
}

// EnsureSchool is the standalone get-or-create endpoint's backend. The
// created flag distinguishes "School found" from "New school added".
func (s *Service) EnsureSchool(ctx context.Context, name string) (store.School, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.School{}, false, &ingest.MissingFieldError{Field: "schoolName"}
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	school, created, err := s.store.EnsureSchoolByName(storeCtx, name)
	if err != nil {
		return store.School{}, false, domainError(http.StatusServiceUnavailable, "DIMENSION_ERROR",
			"school resolution failed", err.Error())
	}
	return school, created, nil
}

func (s *Service) Schools(ctx context.Context) ([]store.School, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.ListSchools(storeCtx)
}

func (s *Service) Results(ctx context.Context, scope store.BatchScope) ([]store.Result, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.ListResults(storeCtx, scope)
}

// ExportResults renders a batch scope back to xlsx.
func (s *Service) ExportResults(ctx context.Context, scope store.BatchScope) ([]byte, error) {
	results, err := s.Results(ctx, scope)
	if err != nil {
		return nil, err
	}
	return export.ResultsXLSX(results)
}

// SearchResults finds students by name. Safe to call with search disabled.
func (s *Service) SearchResults(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.ResultRecord{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func searchRecords(records []ingest.Record) []search.ResultRecord {
	out := make([]search.ResultRecord, 0, len(records))
	for _, record := range records {
		out = append(out, search.ResultRecord{
			ID:        resultDocID(record),
			Name:      record.Name,
			SchoolID:  record.SchoolID,
			ClassName: record.ClassName,
			ExamName:  record.ExamName,
			Grade:     record.Grade,
			Rank:      record.Rank,
			RollNo:    record.RollNo,
		})
	}
	return out
}

// resultDocID derives a stable index id from the conflict key so
// re-uploading a batch overwrites its own index entries.
func resultDocID(record ingest.Record) string {
	rollNo := ""
	if record.RollNo != nil {
		rollNo = strconv.Itoa(*record.RollNo)
	}
	key := fmt.Sprintf("%d|%s|%s|%s", record.SchoolID, record.ExamName, record.ClassName, rollNo)
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
