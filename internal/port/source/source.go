package source

import "github.com/alanyang/call-dispatch/internal/domain/intake"

// RecordSource yields the data rows of one upload, header already consumed.
// Next returns io.EOF after the last row. A source is read once.
type RecordSource interface {
	Next() (intake.Row, error)
}
