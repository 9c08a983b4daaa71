package files

import (
	"context"
	"io"
	"time"
)

// Storage roots the local archive tree.
type Storage struct {
	BasePath string
	now      func() time.Time
}

// StoragePaths holds the two disjoint roots of the archive tree
type StoragePaths struct {
	Snapshots string
	Static    string
}

// ArchivedFile describes the outcome of archiving one attachment URL
type ArchivedFile struct {
	URL       string
	LocalPath string
	SizeBytes int64
	Checksum  string
	Skipped   bool
}

// Fetcher opens a remote attachment for streaming.
type Fetcher interface {
	OpenAttachment(ctx context.Context, rawURL string) (io.ReadCloser, error)
}
