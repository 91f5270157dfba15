package logctx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

const (
	logDirPerm  = 0o755
	logFilePerm = 0o644
)

// OpenFailureLog opens path for appending, creating it and its parent
// directory when missing. The caller owns the returned file.
func OpenFailureLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), logDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}

	return f, nil
}

// NewLogger builds the process logger: JSON records at level go to console,
// and ERROR records are also appended to failureLog when it is not nil.
func NewLogger(console io.Writer, level slog.Leveler, failureLog io.Writer) *slog.Logger {
	handlers := []slog.Handler{
		slog.NewJSONHandler(console, &slog.HandlerOptions{Level: level}),
	}

	if failureLog != nil {
		handlers = append(handlers, slog.NewJSONHandler(failureLog, &slog.HandlerOptions{Level: slog.LevelError}))
	}

	return slog.New(NewContextHandler(slogmulti.Fanout(handlers...)))
}
