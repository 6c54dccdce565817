package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scorebook/api/internal/ingest"
	"scorebook/api/internal/search"
	"scorebook/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/results/upload" {
		s.handleUpload(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/results/recalculate" {
		s.handleRecalculate(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/results" {
		scope, err := scopeFromQuery(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		results, err := s.service.Results(r.Context(), scope)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": resultsPayload(results)})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/results/search" {
		q := search.Query{
			Text:      strings.TrimSpace(r.URL.Query().Get("q")),
			ClassName: strings.TrimSpace(r.URL.Query().Get("className")),
			ExamName:  strings.TrimSpace(r.URL.Query().Get("examName")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("schoolId")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "schoolId must be an integer", nil)
				return
			}
			q.SchoolID = parsed
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			q.Limit = parsed
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			q.Offset = parsed
		}
		writeJSON(w, http.StatusOK, s.service.SearchResults(q))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/results/export" {
		scope, err := scopeFromQuery(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload, err := s.service.ExportResults(r.Context(), scope)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="results.xlsx"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/schools" {
		schools, err := s.service.Schools(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"schools": schoolsPayload(schools)})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/schools" {
		var body struct {
			SchoolName string `json:"schoolName"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		school, created, err := s.service.EnsureSchool(r.Context(), body.SchoolName)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		status := http.StatusOK
		message := "School found"
		if created {
			status = http.StatusCreated
			message = "New school added"
		}
		writeJSON(w, status, map[string]any{
			"message": message,
			"school":  map[string]any{"id": school.ID, "name": school.Name},
		})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		// A request that is not multipart at all carries no file; a
		// multipart body that fails to parse is malformed input.
		if errors.Is(err, http.ErrNotMultipart) {
			writeError(w, http.StatusBadRequest, "NO_FILE", "No file uploaded", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "malformed multipart body", nil)
		return
	}
	// Multipart temp files are removed on every exit path, success or not.
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	input := UploadInput{
		Profile:      strings.TrimSpace(r.FormValue("profile")),
		SchoolName:   strings.TrimSpace(r.FormValue("school")),
		AcademicYear: strings.TrimSpace(r.FormValue("academicYear")),
		Program:      strings.TrimSpace(r.FormValue("program")),
		ExamName:     strings.TrimSpace(r.FormValue("examName")),
		ExamFormat:   strings.TrimSpace(r.FormValue("examFormat")),
		ClassName:    strings.TrimSpace(r.FormValue("className")),
	}
	if raw := strings.TrimSpace(r.FormValue("schoolId")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "schoolId must be an integer", nil)
			return
		}
		input.SchoolID = parsed
	}

	file, _, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		input.File = file
	}

	summary, err := s.service.IngestUpload(r.Context(), input)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Profile      string `json:"profile"`
		SchoolID     int    `json:"schoolId"`
		ClassName    string `json:"className"`
		ExamName     string `json:"examName"`
		Program      string `json:"program"`
		ExamFormat   string `json:"examFormat"`
		AcademicYear string `json:"academicYear"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	scope := store.BatchScope{
		SchoolID:     body.SchoolID,
		ClassName:    body.ClassName,
		ExamName:     body.ExamName,
		Program:      body.Program,
		ExamFormat:   body.ExamFormat,
		AcademicYear: body.AcademicYear,
	}
	if err := s.service.Recalculate(r.Context(), body.Profile, scope); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ranks_recomputed": true})
}

func scopeFromQuery(r *http.Request) (store.BatchScope, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("schoolId"))
	if raw == "" {
		return store.BatchScope{}, &ingest.MissingFieldError{Field: "schoolId"}
	}
	schoolID, err := strconv.Atoi(raw)
	if err != nil {
		return store.BatchScope{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"schoolId must be an integer", nil)
	}
	return store.BatchScope{
		SchoolID:     schoolID,
		ClassName:    strings.TrimSpace(r.URL.Query().Get("className")),
		ExamName:     strings.TrimSpace(r.URL.Query().Get("examName")),
		Program:      strings.TrimSpace(r.URL.Query().Get("program")),
		ExamFormat:   strings.TrimSpace(r.URL.Query().Get("examFormat")),
		AcademicYear: strings.TrimSpace(r.URL.Query().Get("academicYear")),
	}, nil
}

func schoolsPayload(schools []store.School) []map[string]any {
	payload := make([]map[string]any, 0, len(schools))
	for _, school := range schools {
		payload = append(payload, map[string]any{"id": school.ID, "name": school.Name})
	}
	return payload
}

func resultsPayload(results []store.Result) []map[string]any {
	payload := make([]map[string]any, 0, len(results))
	for _, result := range results {
		payload = append(payload, map[string]any{
			"id":            result.ID,
			"school_id":     result.SchoolID,
			"academic_year": result.AcademicYear,
			"program":       result.Program,
			"exam_name":     result.ExamName,
			"exam_format":   result.ExamFormat,
			"class_name":    result.ClassName,
			"exam":          result.Exam,
			"examset":       result.ExamSet,
			"roll_no":       result.RollNo,
			"name":          result.Name,
			"total_marks":   result.TotalMarks,
			"paper_marks":   result.PaperMarks,
			"percentage":    result.Percentage,
			"grade":         result.Grade,
			"rank":          result.Rank,
			"physics":       result.Physics,
			"chemistry":     result.Chemistry,
			"maths":         result.Maths,
			"biology":       result.Biology,
		})
	}
	return payload
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// mapError translates engine errors into the HTTP error taxonomy. Each kind
// keeps a distinct machine-readable code so callers can tell caller-input
// problems, infrastructure failures, and partial successes apart.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, ingest.ErrNoFile) {
		return http.StatusBadRequest, "NO_FILE", "No file uploaded", nil
	}
	if errors.Is(err, ingest.ErrEmptyInput) {
		return http.StatusBadRequest, "EMPTY_INPUT", "No data found in the file", nil
	}
	var missingField *ingest.MissingFieldError
	if errors.As(err, &missingField) {
		return http.StatusBadRequest, "MISSING_FIELD", missingField.Error(),
			map[string]any{"field": missingField.Field}
	}
	var formatErr *ingest.FormatError
	if errors.As(err, &formatErr) {
		return http.StatusUnprocessableEntity, "FORMAT_ERROR", formatErr.Error(), nil
	}
	var rowErr *ingest.RowParseError
	if errors.As(err, &rowErr) {
		return http.StatusUnprocessableEntity, "ROW_PARSE_ERROR", rowErr.Error(),
			map[string]any{"row": rowErr.Row, "column": rowErr.Column, "value": rowErr.Value}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
