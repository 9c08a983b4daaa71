package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Downloader archives attachments into the static tree
type Downloader struct {
	storage *Storage
	fetcher Fetcher
	logger  *log.Logger
}

// NewDownloader creates a new attachment downloader
func NewDownloader(storage *Storage, fetcher Fetcher, logger *log.Logger) *Downloader {
	return &Downloader{
		storage: storage,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Archive downloads rawURL to its mirrored local path. If something already
// exists at that path nothing is fetched or written; presence alone counts,
// content is not compared. Returns only once the file is fully on disk.
func (d *Downloader) Archive(ctx context.Context, rawURL string) (ArchivedFile, error) {
	d.logger.Debug("downloading attachment", "url", rawURL)

	dir, localPath, err := d.storage.AttachmentPath(rawURL)
	if err != nil {
		return ArchivedFile{}, err
	}
	result := ArchivedFile{URL: rawURL, LocalPath: localPath}

	if d.storage.FileExists(localPath) {
		d.logger.Debug("attachment already exists, skipping", "path", localPath)
		result.Skipped = true
		return result, nil
	}

	d.logger.Debug("creating directory for attachment", "dir", dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ArchivedFile{}, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	body, err := d.fetcher.OpenAttachment(ctx, rawURL)
	if err != nil {
		return ArchivedFile{}, err
	}
	defer body.Close()

	d.logger.Debug("saving attachment", "path", localPath)
	size, checksum, err := writeFile(localPath, body)
	if err != nil {
		return ArchivedFile{}, err
	}
	result.SizeBytes = size
	result.Checksum = checksum

	return result, nil
}

// writeFile streams r to a temporary sibling and renames it into place, so an
// interrupted run never leaves a truncated file at the final path. The
// returned checksum is the hex SHA-256 of the bytes written.
func writeFile(dest string, r io.Reader) (int64, string, error) {
	tmpFile := dest + ".tmp"
	out, err := os.Create(tmpFile)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, hash), r)
	if err != nil {
		out.Close()
		os.Remove(tmpFile)
		return 0, "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpFile)
		return 0, "", fmt.Errorf("failed to flush file: %w", err)
	}

	if err := os.Rename(tmpFile, dest); err != nil {
		os.Remove(tmpFile)
		return 0, "", fmt.Errorf("failed to move file to final location: %w", err)
	}

	return n, hex.EncodeToString(hash.Sum(nil)), nil
}
