package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// ReportArchive stores, lists and fetches reconciliation reports. Paths are
// relative to the archive root.
type ReportArchive interface {
	Archive(ctx context.Context, report ReconciliationReport) (path string, err error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	// Get returns ErrNotFound when no report is stored at path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}
