package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/poster_downloader/internal/logctx"
)

const (
	posterTempMarker = ".jpg-"
	tempExt          = ".tmp"
)

// isPosterTemp matches the .<id>.jpg-*.tmp names of interrupted poster writes.
func isPosterTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tempExt) && strings.Contains(name, posterTempMarker)
}

// DeleteStaleTempFiles removes the hidden .<id>.jpg-*.tmp files that
// interrupted poster writes leave in dir once they are older than
// keepDuration. It returns how many files were deleted. A missing dir is not
// an error.
func DeleteStaleTempFiles(ctx context.Context, dir string, keepDuration time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	deleted := 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isPosterTemp(name) {
			continue
		}

		filePath := filepath.Join(dir, name)

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // already deleted
			}

			logger.Error("Failed to stat file", "file", filePath, "err", err)

			return deleted, err
		}

		if now.Sub(info.ModTime()) <= keepDuration {
			continue
		}

		if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Error("Failed to delete stale temp file", "file", filePath, "err", err)

			return deleted, err
		}

		deleted++

		logger.Info("Deleted stale temp file", "file", filePath)
	}

	return deleted, nil
}
