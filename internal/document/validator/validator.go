// Package validator provides input validation for document submissions. It
// enforces required fields, the file mime-type allow-list, and the maximum
// file size, returning per-field error details. Validation is pure: no
// submission reaches Drive or the database without passing here first.
package validator

import (
	"fmt"
	"strings"

	"github.com/tranhaiminh/docvault/internal/document"
)

// MaxFileSize is the server-side upload ceiling. The web client advertises a
// looser 50 MiB bound; the server enforces the stricter one.
const MaxFileSize = 10 * 1024 * 1024

// allowedFileTypes is the fixed mime-type allow-list: PDF, the common Office
// formats, and common image formats.
var allowedFileTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// AllowedFileTypes returns the mime-type allow-list for error reporting.
func AllowedFileTypes() []string {
	types := make([]string, 0, len(allowedFileTypes))
	for t := range allowedFileTypes {
		types = append(types, t)
	}
	return types
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateSubmission checks that a submission carries every required field,
// an allowed file type, and a file no larger than MaxFileSize. It returns a
// ValidationError listing every offending field, or nil.
func ValidateSubmission(req *document.SubmissionRequest) error {
	errs := make(map[string]string)

	if strings.TrimSpace(req.Title) == "" {
		errs["title"] = "title is required"
	}
	if strings.TrimSpace(req.Description) == "" {
		errs["description"] = "description is required"
	}
	if strings.TrimSpace(req.DocumentType) == "" {
		errs["document_type"] = "document type is required"
	}
	if strings.TrimSpace(req.Priority) == "" {
		errs["priority"] = "priority is required"
	}

	if req.File == nil {
		errs["file"] = "file is required"
	} else {
		if strings.TrimSpace(req.File.Name) == "" {
			errs["file"] = "file name is required"
		} else if req.File.Content == "" {
			errs["file"] = "file content is required"
		} else if !allowedFileTypes[req.File.Type] {
			errs["file_type"] = fmt.Sprintf("file type %q is not allowed", req.File.Type)
		} else if req.File.Size > MaxFileSize {
			errs["file_size"] = fmt.Sprintf("file size %d exceeds the %d byte limit", req.File.Size, MaxFileSize)
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
