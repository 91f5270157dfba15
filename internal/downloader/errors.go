package downloader

import (
	"errors"
	"fmt"
)

var errInvalidRecordID = errors.New("record id must be a plain file name")

// WriteError reports that a fetched payload could not be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered while processing a task.
type PanicError struct {
	RecordID string
	Value    any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic while processing record %s: %v", e.RecordID, e.Value)
}
