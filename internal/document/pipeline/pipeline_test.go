package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tranhaiminh/docvault/internal/document"
	"github.com/tranhaiminh/docvault/pkg/config"
	apperrors "github.com/tranhaiminh/docvault/pkg/errors"
)

// fakeObjectStore implements ObjectStore with scriptable failures and call
// counters.
type fakeObjectStore struct {
	uploadErr  error
	exportErr  error
	deleteErr  error
	exportText string

	uploads     int
	exports     int
	deletes     int
	deletedIDs  []string
	uploadedRef *document.StoredObjectRef
}

func (f *fakeObjectStore) Upload(ctx context.Context, name, mimeType string, content []byte) (*document.StoredObjectRef, error) {
	f.uploads++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploadedRef = &document.StoredObjectRef{ID: "drive-123", ViewURL: "https://drive.example/drive-123", Size: int64(len(content))}
	return f.uploadedRef, nil
}

func (f *fakeObjectStore) ExportText(ctx context.Context, id string) (string, error) {
	f.exports++
	if f.exportErr != nil {
		return "", f.exportErr
	}
	return f.exportText, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, id string) error {
	f.deletes++
	f.deletedIDs = append(f.deletedIDs, id)
	return f.deleteErr
}

func (f *fakeObjectStore) GetMetadata(ctx context.Context, id string) (*document.ObjectMetadata, error) {
	return &document.ObjectMetadata{ID: id}, nil
}

// fakeAnalyzer implements Analyzer.
type fakeAnalyzer struct {
	analysis *document.Analysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) (*document.Analysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

// fakeRepo implements Repository backed by a map.
type fakeRepo struct {
	insertErr error
	enrichErr error
	getErr    error
	deleteErr error

	inserts       int
	enrichApplied int
	markedFailed  int
	completed     int
	deletes       int

	records map[string]*document.Record
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*document.Record)}
}

func (f *fakeRepo) Insert(ctx context.Context, rec *document.Record) error {
	f.inserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	rec.ID = "doc-1"
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeRepo) ApplyEnrichment(ctx context.Context, id string, analysis *document.Analysis) error {
	f.enrichApplied++
	if f.enrichErr != nil {
		return f.enrichErr
	}
	rec := f.records[id]
	rec.Status = document.StatusCompleted
	rec.AISummary = &analysis.Summary
	status := document.ProcessingSucceeded
	rec.ProcessingStatus = &status
	return nil
}

func (f *fakeRepo) MarkEnrichmentFailed(ctx context.Context, id, reason string) error {
	f.markedFailed++
	rec := f.records[id]
	rec.Status = document.StatusCompleted
	status := document.ProcessingFailed
	rec.ProcessingStatus = &status
	rec.ProcessingError = &reason
	return nil
}

func (f *fakeRepo) Complete(ctx context.Context, id string) error {
	f.completed++
	f.records[id].Status = document.StatusCompleted
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (*document.Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, apperrors.ErrDocumentNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id string) error {
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.records[id]; !ok {
		return apperrors.ErrDocumentNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRepo) List(ctx context.Context, filter document.ListFilter) ([]document.Record, int, error) {
	out := make([]document.Record, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, *rec)
	}
	return out, len(out), nil
}

// fakePublisher records published lifecycle events.
type fakePublisher struct {
	events []document.Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, ev document.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func testSubmission() *document.SubmissionRequest {
	return &document.SubmissionRequest{
		Title:        "Contract draft",
		Description:  "Supplier agreement",
		DocumentType: "contract",
		Priority:     "high",
		Tags:         []string{"legal"},
		File: &document.FilePayload{
			Name:    "contract.pdf",
			Type:    "application/pdf",
			Size:    1024,
			Content: "JVBERi0xLjQgdGVzdA==",
		},
		CreatedBy: "user-7",
	}
}

func testOptions() Options {
	return Options{
		Enrichment: config.EnrichmentConfig{
			Enabled:      true,
			Timeout:      5 * time.Second,
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
		},
		DriveTimeout: time.Second,
	}
}

func TestIngestSuccessEnriched(t *testing.T) {
	store := &fakeObjectStore{exportText: "contract between parties"}
	analyzer := &fakeAnalyzer{analysis: &document.Analysis{
		Category: "contract",
		Priority: "high",
		Summary:  "A supplier agreement.",
		Keywords: []string{"supplier", "agreement"},
	}}
	repo := newFakeRepo()
	pub := &fakePublisher{}
	opts := testOptions()
	opts.Events = pub

	p := New(store, analyzer, repo, opts)
	rec, err := p.Ingest(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec.Status != document.StatusCompleted {
		t.Errorf("status = %q, want %q", rec.Status, document.StatusCompleted)
	}
	if rec.ProcessingStatus == nil || *rec.ProcessingStatus != document.ProcessingSucceeded {
		t.Errorf("processing status = %v, want succeeded", rec.ProcessingStatus)
	}
	if rec.AISummary == nil || *rec.AISummary != "A supplier agreement." {
		t.Errorf("ai summary = %v, want analysis summary", rec.AISummary)
	}
	// Enrichment suggests, never overwrites what the user submitted.
	if rec.DocumentType != "contract" || rec.Priority != "high" {
		t.Errorf("user fields changed: type=%q priority=%q", rec.DocumentType, rec.Priority)
	}
	if rec.AICategory == nil || *rec.AICategory != "contract" {
		t.Errorf("ai category = %v, want contract", rec.AICategory)
	}
	if store.uploads != 1 || store.exports != 1 || analyzer.calls != 1 {
		t.Errorf("calls: uploads=%d exports=%d analyze=%d, want 1 each", store.uploads, store.exports, analyzer.calls)
	}
	if repo.enrichApplied != 1 || repo.markedFailed != 0 {
		t.Errorf("repo: applied=%d markedFailed=%d", repo.enrichApplied, repo.markedFailed)
	}
	if len(pub.events) != 2 || pub.events[0].Action != document.ActionIngested || pub.events[1].Action != document.ActionEnriched {
		t.Errorf("events = %+v, want ingested then enriched", pub.events)
	}
}

func TestIngestInvalidInputNoExternalCalls(t *testing.T) {
	store := &fakeObjectStore{}
	repo := newFakeRepo()
	p := New(store, &fakeAnalyzer{}, repo, testOptions())

	req := testSubmission()
	req.Title = ""
	_, err := p.Ingest(context.Background(), req)
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if store.uploads != 0 || repo.inserts != 0 {
		t.Errorf("external calls made on invalid input: uploads=%d inserts=%d", store.uploads, repo.inserts)
	}
}

func TestIngestBadBase64Rejected(t *testing.T) {
	store := &fakeObjectStore{}
	p := New(store, &fakeAnalyzer{}, newFakeRepo(), testOptions())

	req := testSubmission()
	req.File.Content = "!!!not-base64!!!"
	_, err := p.Ingest(context.Background(), req)
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if store.uploads != 0 {
		t.Errorf("uploads = %d, want 0", store.uploads)
	}
}

func TestIngestUploadFailureLeavesNoRecord(t *testing.T) {
	store := &fakeObjectStore{uploadErr: errors.New("drive unavailable")}
	repo := newFakeRepo()
	p := New(store, &fakeAnalyzer{}, repo, testOptions())

	_, err := p.Ingest(context.Background(), testSubmission())
	if !errors.Is(err, apperrors.ErrStorageFailed) {
		t.Fatalf("err = %v, want ErrStorageFailed", err)
	}
	if repo.inserts != 0 {
		t.Errorf("inserts = %d, want 0", repo.inserts)
	}
}

func TestIngestInsertFailureRollsBackUpload(t *testing.T) {
	store := &fakeObjectStore{}
	repo := newFakeRepo()
	repo.insertErr = errors.New("db down")
	p := New(store, &fakeAnalyzer{}, repo, testOptions())

	_, err := p.Ingest(context.Background(), testSubmission())
	if !errors.Is(err, apperrors.ErrPersistenceFailed) {
		t.Fatalf("err = %v, want ErrPersistenceFailed", err)
	}
	if store.deletes != 1 || len(store.deletedIDs) != 1 || store.deletedIDs[0] != "drive-123" {
		t.Errorf("rollback delete: deletes=%d ids=%v, want one delete of drive-123", store.deletes, store.deletedIDs)
	}
}

func TestIngestEnrichmentFailureDegrades(t *testing.T) {
	store := &fakeObjectStore{exportText: "some text"}
	analyzer := &fakeAnalyzer{err: errors.New("model overloaded")}
	repo := newFakeRepo()
	p := New(store, analyzer, repo, testOptions())

	rec, err := p.Ingest(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Ingest should absorb enrichment failure, got %v", err)
	}
	if rec.Status != document.StatusCompleted {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if rec.ProcessingStatus == nil || *rec.ProcessingStatus != document.ProcessingFailed {
		t.Errorf("processing status = %v, want failed", rec.ProcessingStatus)
	}
	if rec.ProcessingError == nil || *rec.ProcessingError == "" {
		t.Error("processing error should carry the failure reason")
	}
	if rec.AISummary != nil {
		t.Error("degraded record must not carry AI fields")
	}
	if repo.markedFailed != 1 {
		t.Errorf("markedFailed = %d, want 1", repo.markedFailed)
	}
}

func TestIngestExportFailureRetriesThenDegrades(t *testing.T) {
	store := &fakeObjectStore{exportErr: errors.New("export timeout")}
	analyzer := &fakeAnalyzer{}
	repo := newFakeRepo()
	opts := testOptions()
	opts.Enrichment.MaxAttempts = 3
	p := New(store, analyzer, repo, opts)

	rec, err := p.Ingest(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if store.exports != 3 {
		t.Errorf("exports = %d, want 3 attempts", store.exports)
	}
	if analyzer.calls != 0 {
		t.Errorf("analyzer called %d times after export failed, want 0", analyzer.calls)
	}
	if rec.ProcessingStatus == nil || *rec.ProcessingStatus != document.ProcessingFailed {
		t.Errorf("processing status = %v, want failed", rec.ProcessingStatus)
	}
}

func TestIngestEnrichmentDisabledCompletes(t *testing.T) {
	store := &fakeObjectStore{}
	repo := newFakeRepo()
	opts := testOptions()
	opts.Enrichment.Enabled = false
	p := New(store, nil, repo, opts)

	rec, err := p.Ingest(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec.Status != document.StatusCompleted {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if rec.ProcessingStatus != nil {
		t.Errorf("processing status = %v, want nil when enrichment skipped", rec.ProcessingStatus)
	}
	if store.exports != 0 {
		t.Errorf("exports = %d, want 0", store.exports)
	}
	if repo.completed != 1 {
		t.Errorf("completed = %d, want 1", repo.completed)
	}
}

func TestIngestCancelledMidEnrichmentLeavesPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The export stage blocks until the request is cancelled, so the
	// cancellation lands mid-enrichment, after the record was persisted.
	slow := &slowExportStore{
		fakeObjectStore: &fakeObjectStore{exportText: "text"},
		delay:           time.Second,
	}
	repo := newFakeRepo()
	p := New(slow, &fakeAnalyzer{}, repo, testOptions())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	rec, err := p.Ingest(ctx, testSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec.Status != document.StatusPending {
		t.Errorf("status = %q, want pending after cancellation", rec.Status)
	}
	if repo.markedFailed != 0 {
		t.Errorf("markedFailed = %d, want 0 on cancellation", repo.markedFailed)
	}
}

type slowExportStore struct {
	*fakeObjectStore
	delay time.Duration
}

func (s *slowExportStore) ExportText(ctx context.Context, id string) (string, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return s.fakeObjectStore.ExportText(ctx, id)
}

func TestDeleteRemovesDriveFileAndRecord(t *testing.T) {
	store := &fakeObjectStore{exportText: "t"}
	repo := newFakeRepo()
	pub := &fakePublisher{}
	opts := testOptions()
	opts.Enrichment.Enabled = false
	opts.Events = pub
	p := New(store, nil, repo, opts)

	rec, err := p.Ingest(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	res, err := p.Delete(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.DriveDeleteResult == nil || *res.DriveDeleteResult != document.DriveDeleted {
		t.Errorf("driveDeleteResult = %v, want deleted", res.DriveDeleteResult)
	}
	if repo.deletes != 1 {
		t.Errorf("record deletes = %d, want 1", repo.deletes)
	}
	last := pub.events[len(pub.events)-1]
	if last.Action != document.ActionDeleted {
		t.Errorf("last event = %q, want deleted", last.Action)
	}
}

func TestDeleteDriveFailureStillDeletesRecord(t *testing.T) {
	store := &fakeObjectStore{}
	repo := newFakeRepo()
	opts := testOptions()
	opts.Enrichment.Enabled = false
	p := New(store, nil, repo, opts)

	rec, err := p.Ingest(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	store.deleteErr = errors.New("drive 500")

	res, err := p.Delete(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Delete should succeed despite drive failure, got %v", err)
	}
	if res.DriveDeleteResult == nil || *res.DriveDeleteResult != document.DriveDeleteFailed {
		t.Errorf("driveDeleteResult = %v, want failed", res.DriveDeleteResult)
	}
	if _, err := p.Get(context.Background(), rec.ID); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("record should be gone, got err=%v", err)
	}
}

func TestDeleteUnknownDocument(t *testing.T) {
	p := New(&fakeObjectStore{}, nil, newFakeRepo(), testOptions())
	_, err := p.Delete(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestDeleteIsNotIdempotent(t *testing.T) {
	store := &fakeObjectStore{}
	repo := newFakeRepo()
	opts := testOptions()
	opts.Enrichment.Enabled = false
	p := New(store, nil, repo, opts)

	rec, _ := p.Ingest(context.Background(), testSubmission())
	if _, err := p.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if _, err := p.Delete(context.Background(), rec.ID); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Fatalf("second delete err = %v, want ErrDocumentNotFound", err)
	}
}

func TestReprocessReEnriches(t *testing.T) {
	store := &fakeObjectStore{exportText: "text"}
	analyzer := &fakeAnalyzer{err: errors.New("model down")}
	repo := newFakeRepo()
	p := New(store, analyzer, repo, testOptions())

	rec, err := p.Ingest(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec.ProcessingStatus == nil || *rec.ProcessingStatus != document.ProcessingFailed {
		t.Fatalf("setup: expected degraded record, got %v", rec.ProcessingStatus)
	}

	analyzer.err = nil
	analyzer.analysis = &document.Analysis{Category: "report", Priority: "low", Summary: "s", Keywords: []string{"k"}}
	outcome, err := p.Reprocess(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if outcome != "enriched" {
		t.Errorf("outcome = %q, want enriched", outcome)
	}
	got, _ := p.Get(context.Background(), rec.ID)
	if got.ProcessingStatus == nil || *got.ProcessingStatus != document.ProcessingSucceeded {
		t.Errorf("processing status = %v, want succeeded after reprocess", got.ProcessingStatus)
	}
}

func TestPublishFailureDoesNotFailIngest(t *testing.T) {
	store := &fakeObjectStore{}
	repo := newFakeRepo()
	opts := testOptions()
	opts.Enrichment.Enabled = false
	opts.Events = &fakePublisher{err: errors.New("broker down")}
	p := New(store, nil, repo, opts)

	if _, err := p.Ingest(context.Background(), testSubmission()); err != nil {
		t.Fatalf("Ingest should absorb publish failure, got %v", err)
	}
}
