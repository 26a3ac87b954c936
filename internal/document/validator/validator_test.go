package validator

import (
	"errors"
	"testing"

	"github.com/tranhaiminh/docvault/internal/document"
)

func validSubmission() *document.SubmissionRequest {
	return &document.SubmissionRequest{
		Title:        "Quarterly report",
		Description:  "Q3 financials",
		DocumentType: "report",
		Priority:     "medium",
		File: &document.FilePayload{
			Name:    "report.pdf",
			Type:    "application/pdf",
			Size:    2048,
			Content: "JVBERi0xLjQ=",
		},
	}
}

func TestValidateSubmissionAccepts(t *testing.T) {
	if err := ValidateSubmission(validSubmission()); err != nil {
		t.Fatalf("expected valid submission to pass, got %v", err)
	}
}

func TestValidateSubmissionRejects(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*document.SubmissionRequest)
		wantField string
	}{
		{
			name:      "missing title",
			mutate:    func(r *document.SubmissionRequest) { r.Title = "" },
			wantField: "title",
		},
		{
			name:      "whitespace title",
			mutate:    func(r *document.SubmissionRequest) { r.Title = "   " },
			wantField: "title",
		},
		{
			name:      "missing description",
			mutate:    func(r *document.SubmissionRequest) { r.Description = "" },
			wantField: "description",
		},
		{
			name:      "missing document type",
			mutate:    func(r *document.SubmissionRequest) { r.DocumentType = "" },
			wantField: "document_type",
		},
		{
			name:      "missing priority",
			mutate:    func(r *document.SubmissionRequest) { r.Priority = "" },
			wantField: "priority",
		},
		{
			name:      "no file",
			mutate:    func(r *document.SubmissionRequest) { r.File = nil },
			wantField: "file",
		},
		{
			name:      "file without name",
			mutate:    func(r *document.SubmissionRequest) { r.File.Name = "" },
			wantField: "file",
		},
		{
			name:      "file without content",
			mutate:    func(r *document.SubmissionRequest) { r.File.Content = "" },
			wantField: "file",
		},
		{
			name:      "disallowed file type",
			mutate:    func(r *document.SubmissionRequest) { r.File.Type = "application/x-sh" },
			wantField: "file_type",
		},
		{
			name:      "oversized file",
			mutate:    func(r *document.SubmissionRequest) { r.File.Size = 11_000_000 },
			wantField: "file_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSubmission()
			tt.mutate(req)
			err := ValidateSubmission(req)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if _, ok := verr.Fields[tt.wantField]; !ok {
				t.Errorf("expected field %q in error details, got %v", tt.wantField, verr.Fields)
			}
		})
	}
}

func TestValidateSubmissionSizeBoundary(t *testing.T) {
	req := validSubmission()
	req.File.Size = MaxFileSize
	if err := ValidateSubmission(req); err != nil {
		t.Fatalf("file exactly at the limit should pass, got %v", err)
	}
	req.File.Size = MaxFileSize + 1
	if err := ValidateSubmission(req); err == nil {
		t.Fatal("file one byte over the limit should fail")
	}
}

func TestValidateSubmissionCollectsAllFields(t *testing.T) {
	err := ValidateSubmission(&document.SubmissionRequest{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	for _, field := range []string{"title", "description", "document_type", "priority", "file"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("expected field %q reported, got %v", field, verr.Fields)
		}
	}
}
