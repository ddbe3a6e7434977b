package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/alanyang/call-dispatch/internal/domain/intake"
)

// CSV streams rows from a comma-separated file.
type CSV struct {
	r       *csv.Reader
	headers []string
}

func NewCSV(r io.Reader) (*CSV, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return &CSV{r: cr}, nil
	}
	if err != nil {
		return nil, parseError(fmt.Errorf("reading header: %w", err))
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	return &CSV{r: cr, headers: trimAll(header)}, nil
}

func (c *CSV) Next() (intake.Row, error) {
	if c.headers == nil {
		return nil, io.EOF
	}
	for {
		cells, err := c.r.Read()
		if err != nil {
			return nil, err
		}
		if row, ok := rowFrom(c.headers, cells); ok {
			return row, nil
		}
	}
}
