// Package spreadsheet reads uploaded CSV and Excel workbooks into intake rows.
//
// The first row is the header. Each later row becomes a map from header text
// to trimmed cell value; rows with no non-empty cell are skipped.
package spreadsheet

import (
	"errors"
	"io"
	"strings"

	"github.com/alanyang/call-dispatch/internal/domain/intake"
	portsource "github.com/alanyang/call-dispatch/internal/port/source"
)

// Open picks a reader for the file by extension. CSV is the fallback for
// unknown extensions; ValidateFile has already rejected disallowed ones.
func Open(name string, r io.Reader) (portsource.RecordSource, error) {
	switch (intake.File{Name: name}).Ext() {
	case ".xlsx", ".xls":
		return NewWorkbook(r)
	default:
		return NewCSV(r)
	}
}

// ReadAll drains src. Parse failures are reported as intake.FileError so the
// caller answers with the same shape as any other bad upload.
func ReadAll(src portsource.RecordSource) ([]intake.Row, error) {
	rows := []intake.Row{}
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, parseError(err)
		}
		rows = append(rows, row)
	}
}

func parseError(err error) error {
	return &intake.FileError{Errors: []string{"Error parsing file: " + err.Error()}}
}

// rowFrom maps cells onto headers. Cells past the last header are dropped.
// Values are kept as written; the validator measures and trims them.
func rowFrom(headers, cells []string) (intake.Row, bool) {
	row := intake.Row{}
	filled := false
	for i, cell := range cells {
		if i >= len(headers) || headers[i] == "" {
			continue
		}
		row[headers[i]] = cell
		if strings.TrimSpace(cell) != "" {
			filled = true
		}
	}
	return row, filled
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

// Read opens the upload by name and returns every data row.
func Read(name string, r io.Reader) ([]intake.Row, error) {
	src, err := Open(name, r)
	if err != nil {
		return nil, err
	}
	return ReadAll(src)
}
