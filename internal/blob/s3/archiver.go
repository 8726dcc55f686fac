package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// blobIndex is the read side the archiver needs.
type blobIndex interface {
	domain.BlobReader
	Exists(ctx context.Context, path string) (bool, error)
}

// ReportArchive implements domain.ReportArchive by writing each
// reconciliation report as an indented JSON object.
type ReportArchive struct {
	writer domain.BlobWriter
	index  blobIndex
	prefix string
}

// NewReportArchive creates a ReportArchive. prefix is prepended to every key.
func NewReportArchive(writer domain.BlobWriter, index blobIndex, prefix string) *ReportArchive {
	return &ReportArchive{writer: writer, index: index, prefix: prefix}
}

// NewClientReportArchive wires a ReportArchive to a Client.
func NewClientReportArchive(c *Client, partSize int64) *ReportArchive {
	return NewReportArchive(NewWriter(c, partSize), NewReader(c), c.Prefix())
}

// Archive uploads the report and returns its key. A report for a queue item
// that was already archived the same day is written next to the first one
// instead of replacing it.
func (a *ReportArchive) Archive(ctx context.Context, report domain.ReconciliationReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal report %s: %w", report.QueueID, err)
	}

	path := a.prefix + report.ObjectKey()
	exists, err := a.index.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if exists {
		path = rerunKey(path, report)
	}

	if err := a.writer.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive report %s: %w", report.QueueID, err)
	}
	return path, nil
}

// List returns archived reports under prefix, relative to the archive root.
func (a *ReportArchive) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	infos, err := a.index.List(ctx, a.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		infos[i].Path = strings.TrimPrefix(infos[i].Path, a.prefix)
		if infos[i].ContentType == "" {
			infos[i].ContentType = "application/json"
		}
	}
	return infos, nil
}

// Get opens the report at path, relative to the archive root.
func (a *ReportArchive) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" || !strings.HasSuffix(path, ".json") {
		return nil, fmt.Errorf("s3blob: report %q: %w", path, domain.ErrNotFound)
	}
	return a.index.Get(ctx, a.prefix+path)
}

func rerunKey(path string, r domain.ReconciliationReport) string {
	return fmt.Sprintf("%s-%d.json", strings.TrimSuffix(path, ".json"), r.GeneratedAt.UnixNano())
}

var _ domain.ReportArchive = (*ReportArchive)(nil)
