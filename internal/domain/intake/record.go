package intake

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	namePattern  = regexp.MustCompile(`^[a-zA-Z\s\-']+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
)

type RecordResult struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors"`
	Sanitized Record   `json:"sanitized"`
}

// NormalizePhone strips every whitespace rune from a phone cell.
func NormalizePhone(raw string) string {
	return strings.Join(strings.Fields(raw), "")
}

// ValidateRecord checks one row. Every rule runs; violations are collected
// rather than short-circuited. seen is updated with the row's phone only when
// that phone has not been seen before, so every later duplicate is flagged.
func ValidateRecord(row Row, seen *PhoneSet, limits Limits) RecordResult {
	var errs []string

	name := strings.TrimSpace(row[FieldFirstName])
	if name == "" {
		errs = append(errs, FieldFirstName+" is required")
	} else {
		n := utf8.RuneCountInString(name)
		if n < limits.NameMinLength {
			errs = append(errs, fmt.Sprintf("%s must be at least %d characters", FieldFirstName, limits.NameMinLength))
		}
		if n > limits.NameMaxLength {
			errs = append(errs, fmt.Sprintf("%s must not exceed %d characters", FieldFirstName, limits.NameMaxLength))
		}
		if !namePattern.MatchString(name) {
			errs = append(errs, FieldFirstName+" contains invalid characters")
		}
	}

	phone := NormalizePhone(row[FieldPhone])
	if phone == "" {
		errs = append(errs, FieldPhone+" is required")
	} else {
		n := utf8.RuneCountInString(phone)
		if n < limits.PhoneMinLength {
			errs = append(errs, fmt.Sprintf("Phone number must be at least %d digits", limits.PhoneMinLength))
		}
		if n > limits.PhoneMaxLength {
			errs = append(errs, fmt.Sprintf("Phone number must not exceed %d digits", limits.PhoneMaxLength))
		}
		if !phonePattern.MatchString(phone) {
			errs = append(errs, "Phone number contains invalid characters")
		}
		if !seen.Add(phone) {
			errs = append(errs, "Duplicate phone number found")
		}
	}

	// The limit applies to the cell as written; only the stored value is trimmed.
	notes := strings.TrimSpace(row[FieldNotes])
	if utf8.RuneCountInString(row[FieldNotes]) > limits.NotesMaxLength {
		errs = append(errs, fmt.Sprintf("%s must not exceed %d characters", FieldNotes, limits.NotesMaxLength))
	}

	return RecordResult{
		Valid:  len(errs) == 0,
		Errors: errs,
		Sanitized: Record{
			FirstName: name,
			Phone:     phone,
			Notes:     notes,
		},
	}
}
