// Package document defines the domain types shared by the ingestion pipeline:
// upload submissions, the persisted document record, Drive object references,
// AI analysis results, and the lifecycle events published after mutations.
package document

import (
	"encoding/base64"
	"time"
)

// Document status values. Status only moves forward: a record is created as
// pending and becomes completed once the enrichment stage has been attempted,
// whether or not enrichment itself succeeded.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Enrichment processing outcomes recorded on the document itself.
const (
	ProcessingSucceeded = "succeeded"
	ProcessingFailed    = "failed"
)

// FilePayload is the inline file attached to an upload submission.
// Content carries the raw bytes base64-encoded, as sent by the client.
type FilePayload struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	Content string `json:"content"`
}

// Bytes decodes the base64 file content.
func (f *FilePayload) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Content)
}

// SubmissionRequest is the JSON body accepted by the upload endpoint.
// DocumentType, Tags and Priority are optional and defaulted by the handler.
type SubmissionRequest struct {
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	File         *FilePayload `json:"file"`
	DocumentType string       `json:"document_type"`
	Tags         []string     `json:"tags"`
	Priority     string       `json:"priority"`
	CreatedBy    string       `json:"-"`
}

// StoredObjectRef identifies a file stored in Drive after a successful upload.
type StoredObjectRef struct {
	ID      string `json:"id"`
	ViewURL string `json:"view_url"`
	Size    int64  `json:"size"`
}

// ObjectMetadata is the Drive-side metadata for a stored file.
type ObjectMetadata struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	ViewURL  string `json:"view_url"`
	Size     int64  `json:"size"`
}

// Analysis is the structured result extracted from the model's response to
// an analysis prompt.
type Analysis struct {
	Category      string   `json:"category"`
	Priority      string   `json:"priority"`
	SuggestedTags []string `json:"suggestedTags"`
	Summary       string   `json:"summary"`
	Keywords      []string `json:"keywords"`
}

// Record is the persisted document entity, the system of record. ID and
// DriveID are immutable once set. The AI* and Processing* fields stay null
// until the enrichment stage writes them in a single update.
type Record struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	DocumentType         string    `json:"document_type"`
	Priority             string    `json:"priority"`
	Tags                 []string  `json:"tags"`
	Status               string    `json:"status"`
	FileURL              string    `json:"file_url"`
	FileName             string    `json:"file_name"`
	FileSize             int64     `json:"file_size"`
	FileType             string    `json:"file_type"`
	DriveID              string    `json:"drive_id"`
	DriveURL             string    `json:"drive_url"`
	AISummary            *string   `json:"ai_summary"`
	AIKeywords           []string  `json:"ai_keywords"`
	AICategory           *string   `json:"ai_category"`
	AIPrioritySuggestion *string   `json:"ai_priority_suggestion"`
	ProcessingStatus     *string   `json:"processing_status"`
	ProcessingError      *string   `json:"processing_error"`
	CreatedBy            string    `json:"created_by"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ListFilter selects and orders document records for listing.
type ListFilter struct {
	Search       string
	DocumentType string
	Priority     string
	Status       string
	CreatedBy    string
	SortBy       string
	SortOrder    string
	Limit        int
	Offset       int
}

// DeleteResult reports the outcome of a document deletion. The record delete
// is authoritative; DriveDeleteResult is informational only and is nil when
// the record carried no Drive file.
type DeleteResult struct {
	DriveDeleteResult *string `json:"driveDeleteResult"`
}

// Drive deletion outcomes reported by DeleteResult.
const (
	DriveDeleted      = "deleted"
	DriveDeleteFailed = "failed"
)

// Lifecycle event actions.
const (
	ActionIngested = "ingested"
	ActionEnriched = "enriched"
	ActionDeleted  = "deleted"
)

// Event is the lifecycle notification published to Kafka after a document
// mutation commits.
type Event struct {
	DocumentID string    `json:"document_id"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}
