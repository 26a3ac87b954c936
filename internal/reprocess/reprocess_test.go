package reprocess

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tranhaiminh/docvault/internal/document"
	"github.com/tranhaiminh/docvault/internal/document/pipeline"
	"github.com/tranhaiminh/docvault/pkg/config"
	apperrors "github.com/tranhaiminh/docvault/pkg/errors"
)

type fakeSource struct {
	ids []string
	err error
}

func (f *fakeSource) ListEnrichmentCandidates(ctx context.Context, limit int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.ids) {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

type memRepo struct {
	records map[string]*document.Record
}

func (m *memRepo) Insert(ctx context.Context, rec *document.Record) error { return nil }

func (m *memRepo) ApplyEnrichment(ctx context.Context, id string, analysis *document.Analysis) error {
	rec := m.records[id]
	rec.Status = document.StatusCompleted
	status := document.ProcessingSucceeded
	rec.ProcessingStatus = &status
	return nil
}

func (m *memRepo) MarkEnrichmentFailed(ctx context.Context, id, reason string) error {
	rec := m.records[id]
	rec.Status = document.StatusCompleted
	status := document.ProcessingFailed
	rec.ProcessingStatus = &status
	rec.ProcessingError = &reason
	return nil
}

func (m *memRepo) Complete(ctx context.Context, id string) error {
	m.records[id].Status = document.StatusCompleted
	return nil
}

func (m *memRepo) Get(ctx context.Context, id string) (*document.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, apperrors.ErrDocumentNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRepo) Delete(ctx context.Context, id string) error { return nil }

func (m *memRepo) List(ctx context.Context, filter document.ListFilter) ([]document.Record, int, error) {
	return nil, 0, nil
}

type memStore struct{}

func (memStore) Upload(ctx context.Context, name, mimeType string, content []byte) (*document.StoredObjectRef, error) {
	return &document.StoredObjectRef{ID: "d"}, nil
}
func (memStore) ExportText(ctx context.Context, id string) (string, error) { return "text", nil }
func (memStore) Delete(ctx context.Context, id string) error               { return nil }
func (memStore) GetMetadata(ctx context.Context, id string) (*document.ObjectMetadata, error) {
	return nil, nil
}

type okAnalyzer struct{}

func (okAnalyzer) Analyze(ctx context.Context, text string) (*document.Analysis, error) {
	return &document.Analysis{Category: "report", Priority: "low", Summary: "s", Keywords: []string{"k"}}, nil
}

func degradedRecord(id string) *document.Record {
	status := document.ProcessingFailed
	reason := "model overloaded"
	return &document.Record{
		ID:               id,
		Status:           document.StatusCompleted,
		DriveID:          "drive-" + id,
		ProcessingStatus: &status,
		ProcessingError:  &reason,
	}
}

func newTestPipeline(repo *memRepo) *pipeline.Pipeline {
	return pipeline.New(memStore{}, okAnalyzer{}, repo, pipeline.Options{
		Enrichment: config.EnrichmentConfig{
			Enabled:      true,
			Timeout:      time.Second,
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
		},
		DriveTimeout: time.Second,
	})
}

func TestRunEnrichesCandidates(t *testing.T) {
	repo := &memRepo{records: map[string]*document.Record{
		"a": degradedRecord("a"),
		"b": degradedRecord("b"),
	}}
	source := &fakeSource{ids: []string{"a", "b"}}
	r := New(source, newTestPipeline(repo), 2)

	stats, err := r.Run(context.Background(), 50)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Candidates != 2 || stats.Enriched != 2 {
		t.Errorf("stats = %+v, want 2 candidates, 2 enriched", stats)
	}
	for id, rec := range repo.records {
		if rec.ProcessingStatus == nil || *rec.ProcessingStatus != document.ProcessingSucceeded {
			t.Errorf("record %s processing status = %v, want succeeded", id, rec.ProcessingStatus)
		}
	}
}

func TestRunCountsMissingDocumentsAsFailed(t *testing.T) {
	repo := &memRepo{records: map[string]*document.Record{
		"a": degradedRecord("a"),
	}}
	source := &fakeSource{ids: []string{"a", "gone"}}
	r := New(source, newTestPipeline(repo), 1)

	stats, err := r.Run(context.Background(), 50)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Enriched != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 enriched, 1 failed", stats)
	}
}

func TestRunRespectsLimit(t *testing.T) {
	repo := &memRepo{records: map[string]*document.Record{
		"a": degradedRecord("a"),
		"b": degradedRecord("b"),
		"c": degradedRecord("c"),
	}}
	source := &fakeSource{ids: []string{"a", "b", "c"}}
	r := New(source, newTestPipeline(repo), 1)

	stats, err := r.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Candidates != 2 {
		t.Errorf("candidates = %d, want 2", stats.Candidates)
	}
}

func TestRunSourceError(t *testing.T) {
	source := &fakeSource{err: errors.New("db down")}
	r := New(source, newTestPipeline(&memRepo{records: map[string]*document.Record{}}), 1)
	if _, err := r.Run(context.Background(), 10); err == nil {
		t.Fatal("expected source error to propagate")
	}
}

func TestRunNoCandidates(t *testing.T) {
	source := &fakeSource{}
	r := New(source, newTestPipeline(&memRepo{records: map[string]*document.Record{}}), 4)
	stats, err := r.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Candidates != 0 {
		t.Errorf("candidates = %d, want 0", stats.Candidates)
	}
}
