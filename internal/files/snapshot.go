package files

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// maxSnapshotSuffix bounds the search for a free name when several snapshots
// of one channel land in the same second.
const maxSnapshotSuffix = 1000

// WriteSnapshot stores the pin list exactly as received under
// json/pins-<channel>-<timestamp>.json and returns the path written.
// Existing snapshots are never overwritten; a same-second collision gets a
// numeric suffix.
func (fs *Storage) WriteSnapshot(raw json.RawMessage, channelID string) (string, error) {
	dir := fs.GetStoragePaths().Snapshots
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("failed to encode pins: %w", err)
	}

	base := fs.SnapshotPath(channelID, fs.now())
	for i := 0; i < maxSnapshotSuffix; i++ {
		target := base
		if i > 0 {
			target = fmt.Sprintf("%s-%d.json", strings.TrimSuffix(base, ".json"), i)
		}

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create snapshot file: %w", err)
		}

		if _, err := out.Write(buf.Bytes()); err != nil {
			out.Close()
			os.Remove(target)
			return "", fmt.Errorf("failed to write snapshot file: %w", err)
		}
		if err := out.Close(); err != nil {
			os.Remove(target)
			return "", fmt.Errorf("failed to close snapshot file: %w", err)
		}
		return target, nil
	}

	return "", fmt.Errorf("no free snapshot name for %s after %d attempts", base, maxSnapshotSuffix)
}
