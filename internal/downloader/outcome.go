package downloader

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/poster_downloader/internal/fetcher"
)

// Task is one poster to download.
type Task struct {
	RecordID  string
	SourceURL string
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// FailureKind classifies why a task failed.
type FailureKind string

const (
	KindBadStatus  FailureKind = "bad_status"
	KindNetwork    FailureKind = "network"
	KindTimeout    FailureKind = "timeout"
	KindExhausted  FailureKind = "exhausted"
	KindInvalidURL FailureKind = "invalid_url"
	KindWriteError FailureKind = "write_error"
	KindCanceled   FailureKind = "canceled"
	KindUnexpected FailureKind = "unexpected"
)

// Outcome is the terminal result of one task.
type Outcome struct {
	RecordID  string
	SourceURL string
	Status    Status

	// Path is set on success.
	Path string

	// Kind and Err are set on failure.
	Kind FailureKind
	Err  error

	// Attempts is 0 when the fetch never started.
	Attempts int
	Bytes    int
	Duration time.Duration
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Report aggregates the outcomes of one batch. Outcomes are not ordered by
// completion.
type Report struct {
	BatchID    string
	Outcomes   []Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *Report) Succeeded() int {
	n := 0

	for _, o := range r.Outcomes {
		if o.Succeeded() {
			n++
		}
	}

	return n
}

func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// ByKind counts the failed outcomes per failure kind.
func (r *Report) ByKind() map[FailureKind]int {
	counts := make(map[FailureKind]int)

	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			counts[o.Kind]++
		}
	}

	return counts
}

// Bytes is the total size of the persisted payloads.
func (r *Report) Bytes() int64 {
	var total int64

	for _, o := range r.Outcomes {
		total += int64(o.Bytes)
	}

	return total
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Classify maps an error produced while processing a task to its failure kind.
func Classify(err error) FailureKind {
	var (
		exhausted  *fetcher.ExhaustedError
		badStatus  *fetcher.BadStatusError
		invalidURL *fetcher.InvalidURLError
		timeout    *fetcher.TimeoutError
		network    *fetcher.NetworkError
		writeErr   *WriteError
	)

	switch {
	case errors.As(err, &exhausted):
		return KindExhausted
	case errors.As(err, &badStatus):
		return KindBadStatus
	case errors.As(err, &invalidURL):
		return KindInvalidURL
	case errors.As(err, &writeErr):
		return KindWriteError
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &network):
		return KindNetwork
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnexpected
	}
}
