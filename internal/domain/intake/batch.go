package intake

import (
	"fmt"
	"sort"
)

type FailedRecord struct {
	RowNumber int      `json:"rowNumber"`
	Data      Row      `json:"data"`
	Errors    []string `json:"errors"`
}

type BatchResult struct {
	IsValid       bool           `json:"isValid"`
	Errors        []string       `json:"errors"`
	Warnings      []string       `json:"warnings"`
	ValidRecords  []Record       `json:"validRecords"`
	FailedRecords []FailedRecord `json:"failedRecords"`
}

// BatchError is returned when at least one row of an upload is invalid.
// Uploads are all-or-nothing, so it carries every failed row.
type BatchError struct {
	FailedRecords []FailedRecord
	Warnings      []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d records failed validation", len(e.FailedRecords))
}

func (e *BatchError) Unwrap() error { return ErrValidation }

// RowNumber maps a zero-based data row index to the row number shown in the
// uploaded file.
func RowNumber(index int) int {
	return index + headerRows + 1
}

// ValidateBatch validates every row with one PhoneSet scoped to this call.
// An empty batch fails with ErrNoRecords before any row is looked at.
func ValidateBatch(rows []Row, limits Limits) (BatchResult, error) {
	if len(rows) == 0 {
		return BatchResult{IsValid: false, Errors: []string{"No tasks found in file"}}, ErrNoRecords
	}
	if limits.MaxRecords > 0 && len(rows) > limits.MaxRecords {
		return BatchResult{IsValid: false}, fmt.Errorf("%w: %d rows, maximum is %d", ErrTooManyRecords, len(rows), limits.MaxRecords)
	}

	seen := NewPhoneSet()
	res := BatchResult{
		Errors:        []string{},
		Warnings:      []string{},
		ValidRecords:  make([]Record, 0, len(rows)),
		FailedRecords: []FailedRecord{},
	}

	for i, row := range rows {
		r := ValidateRecord(row, seen, limits)
		if r.Valid {
			rec := r.Sanitized
			rec.RowNumber = RowNumber(i)
			rec.Data = row
			res.ValidRecords = append(res.ValidRecords, rec)
			continue
		}
		res.FailedRecords = append(res.FailedRecords, FailedRecord{
			RowNumber: RowNumber(i),
			Data:      row,
			Errors:    r.Errors,
		})
	}

	res.settle()
	return res, nil
}

// RejectPhones fails every valid record whose phone is in taken. It is used
// for phones that already belong to the tenant's open tasks.
func (b *BatchResult) RejectPhones(taken []string, reason string) {
	if len(taken) == 0 {
		return
	}
	set := make(map[string]struct{}, len(taken))
	for _, p := range taken {
		set[p] = struct{}{}
	}

	kept := b.ValidRecords[:0]
	for _, rec := range b.ValidRecords {
		if _, ok := set[rec.Phone]; ok {
			b.FailedRecords = append(b.FailedRecords, FailedRecord{
				RowNumber: rec.RowNumber,
				Data:      rec.Data,
				Errors:    []string{reason},
			})
			continue
		}
		kept = append(kept, rec)
	}
	b.ValidRecords = kept
	sort.SliceStable(b.FailedRecords, func(i, j int) bool {
		return b.FailedRecords[i].RowNumber < b.FailedRecords[j].RowNumber
	})
	b.settle()
}

// Err returns a *BatchError when the batch is not usable.
func (b *BatchResult) Err() error {
	if b.IsValid {
		return nil
	}
	return &BatchError{FailedRecords: b.FailedRecords, Warnings: b.Warnings}
}

// Phones returns the sanitized phone of every valid record in row order.
func (b *BatchResult) Phones() []string {
	out := make([]string, len(b.ValidRecords))
	for i, rec := range b.ValidRecords {
		out[i] = rec.Phone
	}
	return out
}

func (b *BatchResult) settle() {
	b.IsValid = len(b.FailedRecords) == 0
	if b.IsValid {
		b.Errors = []string{}
	} else {
		b.Errors = []string{ErrValidation.Error()}
	}
}
