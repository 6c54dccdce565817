package ingest

import (
	"errors"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadRows decodes the uploaded spreadsheet into the first sheet's rows in
// file order. Only decoding happens here; header handling and row semantics
// belong to the profile.
func ReadRows(r io.Reader) ([][]string, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	defer func() {
		_ = file.Close()
	}()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Err: errors.New("workbook has no sheets")}
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	return rows, nil
}
