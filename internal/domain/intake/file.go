package intake

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// File describes an uploaded file before its rows are read.
type File struct {
	Name        string
	Size        int64
	ContentType string
}

// Ext returns the lower-cased extension including the dot.
func (f File) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// FileError lists every reason an upload was rejected before parsing.
type FileError struct {
	Errors []string
}

func (e *FileError) Error() string {
	return "invalid file: " + strings.Join(e.Errors, "; ")
}

func (e *FileError) Unwrap() error { return ErrInvalidFile }

// ValidateFile checks size, extension, content type and emptiness. An empty
// ContentType is accepted; clients that send none are judged by extension.
func ValidateFile(f File, limits Limits) error {
	var errs []string

	if f.Name == "" {
		return &FileError{Errors: []string{"No file uploaded"}}
	}
	if limits.MaxFileSizeBytes > 0 && f.Size > limits.MaxFileSizeBytes {
		errs = append(errs, fmt.Sprintf("File size exceeds maximum limit of %dMB", limits.MaxFileSizeBytes/1024/1024))
	}
	if !slices.Contains(limits.AllowedExtensions, f.Ext()) {
		errs = append(errs, "Invalid file extension. Allowed types: "+describeExtensions(limits.AllowedExtensions))
	}
	if ct := baseContentType(f.ContentType); ct != "" && len(limits.AllowedContentTypes) > 0 &&
		!slices.Contains(limits.AllowedContentTypes, ct) {
		errs = append(errs, "Invalid file type. Allowed types: "+describeExtensions(limits.AllowedExtensions))
	}
	if f.Size == 0 {
		errs = append(errs, "File is empty")
	}

	if len(errs) > 0 {
		return &FileError{Errors: errs}
	}
	return nil
}

func baseContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func describeExtensions(exts []string) string {
	names := make([]string, len(exts))
	for i, e := range exts {
		names[i] = strings.ToUpper(strings.TrimPrefix(e, "."))
	}
	return strings.Join(names, ", ")
}
