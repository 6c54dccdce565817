package ingest

import (
	"errors"
	"fmt"
)

// ErrNoFile is returned when the caller submitted no spreadsheet at all.
var ErrNoFile = errors.New("no file uploaded")

// ErrEmptyInput is returned when the spreadsheet parses but contains zero
// data rows after the profile's header rows are consumed.
var ErrEmptyInput = errors.New("no data found in the file")

// MissingFieldError reports a required batch-context form field that was
// absent from the request. It is raised before any file parsing happens.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// FormatError wraps a failure to decode the uploaded bytes as tabular data
// (corrupt archive, no sheets).
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unreadable spreadsheet: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// RowParseError reports a cell that is present but not numeric. The whole
// batch is aborted; Row is 1-based in spreadsheet coordinates so the caller
// can locate the offending cell in the source file.
type RowParseError struct {
	Row    int
	Column string
	Value  string
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("row %d: column %q: %q is not a number", e.Row, e.Column, e.Value)
}
