package spreadsheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/alanyang/call-dispatch/internal/domain/intake"
)

// Workbook reads the first sheet of an Excel workbook. Legacy binary .xls
// files fail to open and surface as a parse error.
type Workbook struct {
	rows    [][]string
	headers []string
	pos     int
}

func NewWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, parseError(err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, parseError(fmt.Errorf("no worksheet found in the file"))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, parseError(fmt.Errorf("reading sheet %q: %w", sheet, err))
	}
	if len(rows) == 0 {
		return &Workbook{}, nil
	}
	return &Workbook{rows: rows[1:], headers: trimAll(rows[0])}, nil
}

func (w *Workbook) Next() (intake.Row, error) {
	for w.pos < len(w.rows) {
		cells := w.rows[w.pos]
		w.pos++
		if row, ok := rowFrom(w.headers, cells); ok {
			return row, nil
		}
	}
	return nil, io.EOF
}
