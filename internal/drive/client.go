// Package drive wraps the Google Drive v3 API as the binary object store for
// uploaded documents: create, plain-text export, metadata fetch, and delete,
// authenticated with a service account.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tranhaiminh/docvault/internal/document"
	"github.com/tranhaiminh/docvault/pkg/config"
	"github.com/tranhaiminh/docvault/pkg/logger"
)

// Client is a thin Drive wrapper implementing the pipeline's ObjectStore.
type Client struct {
	svc      *drive.Service
	folderID string
	logger   *slog.Logger
}

// NewClient creates a Drive client from service-account credentials. Files
// are created inside the configured folder.
func NewClient(ctx context.Context, cfg config.DriveConfig) (*Client, error) {
	opts := []option.ClientOption{
		option.WithScopes(drive.DriveFileScope, drive.DriveReadonlyScope),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &Client{
		svc:      svc,
		folderID: cfg.FolderID,
		logger:   logger.WithComponent("drive"),
	}, nil
}

// Upload stores the file in the configured Drive folder and returns its
// store-assigned reference.
func (c *Client) Upload(ctx context.Context, name, mimeType string, content []byte) (*document.StoredObjectRef, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: mimeType,
	}
	if c.folderID != "" {
		meta.Parents = []string{c.folderID}
	}
	f, err := c.svc.Files.Create(meta).
		Media(bytes.NewReader(content), googleapi.ContentType(mimeType)).
		Fields("id", "name", "mimeType", "webViewLink", "size").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("uploading file %q to drive: %w", name, err)
	}
	if f.Id == "" {
		return nil, fmt.Errorf("drive returned no file id for %q", name)
	}
	c.logger.Debug("file uploaded", "drive_id", f.Id, "name", name, "size", f.Size)
	return &document.StoredObjectRef{
		ID:      f.Id,
		ViewURL: f.WebViewLink,
		Size:    f.Size,
	}, nil
}

// ExportText downloads the file's content converted to plain text.
func (c *Client) ExportText(ctx context.Context, id string) (string, error) {
	resp, err := c.svc.Files.Export(id, "text/plain").Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("exporting text for drive file %s: %w", id, err)
	}
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading exported text for drive file %s: %w", id, err)
	}
	return string(text), nil
}

// Delete removes the file from Drive.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.svc.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("deleting drive file %s: %w", id, err)
	}
	return nil
}

// GetMetadata fetches the file's Drive-side metadata.
func (c *Client) GetMetadata(ctx context.Context, id string) (*document.ObjectMetadata, error) {
	f, err := c.svc.Files.Get(id).
		Fields("id", "name", "mimeType", "webViewLink", "size").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for drive file %s: %w", id, err)
	}
	return &document.ObjectMetadata{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		ViewURL:  f.WebViewLink,
		Size:     f.Size,
	}, nil
}

// Ping verifies Drive reachability for health checks with a minimal
// about-query.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.svc.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive ping failed: %w", err)
	}
	return nil
}
