// Package intake validates uploaded call records before any of them reach
// the store. Everything here is pure: no I/O, no clocks.
package intake

import "errors"

// Column headers expected on row 1 of an upload.
const (
	FieldFirstName = "FirstName"
	FieldPhone     = "Phone"
	FieldNotes     = "Notes"
)

// headerRows is the number of rows above the first data row.
const headerRows = 1

var (
	ErrInvalidFile    = errors.New("invalid file")
	ErrNoRecords      = errors.New("no records found")
	ErrTooManyRecords = errors.New("too many records")
	ErrValidation     = errors.New("some records failed validation")
)

// Row is one raw spreadsheet row keyed by header name.
type Row map[string]string

// Record is a sanitized, valid row ready for persistence.
type Record struct {
	FirstName string `json:"firstName"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes"`
	RowNumber int    `json:"-"`
	Data      Row    `json:"-"`
}

type Limits struct {
	MaxFileSizeBytes    int64
	AllowedExtensions   []string
	AllowedContentTypes []string
	NameMinLength       int
	NameMaxLength       int
	PhoneMinLength      int
	PhoneMaxLength      int
	NotesMaxLength      int
	MaxRecords          int
}

func DefaultLimits() Limits {
	return Limits{
		MaxFileSizeBytes:  10 * 1024 * 1024,
		AllowedExtensions: []string{".csv", ".xlsx", ".xls"},
		AllowedContentTypes: []string{
			"text/csv",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		},
		NameMinLength:  2,
		NameMaxLength:  50,
		PhoneMinLength: 10,
		PhoneMaxLength: 15,
		NotesMaxLength: 500,
		MaxRecords:     1000,
	}
}

// PhoneSet accumulates the phone numbers seen so far in one batch.
// A PhoneSet must not outlive the batch it was created for.
type PhoneSet struct {
	seen map[string]struct{}
}

func NewPhoneSet() *PhoneSet {
	return &PhoneSet{seen: make(map[string]struct{})}
}

func (s *PhoneSet) Has(phone string) bool {
	_, ok := s.seen[phone]
	return ok
}

// Add records phone and reports whether it was new.
func (s *PhoneSet) Add(phone string) bool {
	if s.Has(phone) {
		return false
	}
	s.seen[phone] = struct{}{}
	return true
}

func (s *PhoneSet) Len() int { return len(s.seen) }
