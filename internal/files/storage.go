package files

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	snapshotDirName = "json"
	staticDirName   = "static"
)

// ErrNoFileName is returned for attachment URLs whose path has no final segment.
var ErrNoFileName = errors.New("attachment URL has no file name")

// NewStorage creates a Storage rooted at basePath. Directories are created
// lazily on first write.
func NewStorage(basePath string) *Storage {
	return &Storage{
		BasePath: basePath,
		now:      time.Now,
	}
}

// GetStoragePaths returns the snapshot and attachment roots
func (fs *Storage) GetStoragePaths() StoragePaths {
	return StoragePaths{
		Snapshots: filepath.Join(fs.BasePath, snapshotDirName),
		Static:    filepath.Join(fs.BasePath, staticDirName),
	}
}

// AttachmentPath mirrors the URL's host and path under the static root:
// static/<host>/<dir>/<file>. The path is used as written in the URL, so
// percent-escapes (including %2F) stay inside a single file name. Hosts are
// lowercased and query strings are ignored.
func (fs *Storage) AttachmentPath(rawURL string) (dir, file string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid attachment URL %q: %w", rawURL, err)
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("invalid attachment URL %q: missing host", rawURL)
	}

	p := u.EscapedPath()
	if p == "" || p[len(p)-1] == '/' {
		return "", "", fmt.Errorf("%w: %s", ErrNoFileName, rawURL)
	}

	// path.Clean on a rooted path cannot climb above it, so ".." segments
	// stay inside the host directory.
	p = path.Clean("/" + p)
	host := strings.ToLower(u.Hostname())
	dir = filepath.Join(fs.GetStoragePaths().Static, host, filepath.FromSlash(path.Dir(p)))
	return dir, filepath.Join(dir, path.Base(p)), nil
}

// FileExists checks if a file exists at the given path
func (fs *Storage) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// FormatTimestamp renders t as YYYY-MM-DD-THHMMSS in local time.
// The month is zero-based (January is 00) so names line up with archives
// produced by earlier releases of this tool.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d-%02d-%02d-T%02d%02d%02d",
		t.Year(), int(t.Month())-1, t.Day(), t.Hour(), t.Minute(), t.Second())
}

// SnapshotPath returns the base snapshot file name for a channel at t.
func (fs *Storage) SnapshotPath(channelID string, t time.Time) string {
	return filepath.Join(fs.GetStoragePaths().Snapshots, fmt.Sprintf("pins-%s-%s.json", channelID, FormatTimestamp(t)))
}
