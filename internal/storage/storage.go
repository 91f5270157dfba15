package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no outcome is stored for the requested record.
var ErrNotFound = errors.New("storage: outcome not found")

// OutcomeRecord is the audit row kept for every processed task.
type OutcomeRecord struct {
	BatchID   string
	RecordID  string
	SourceURL string
	Status    string
	Kind      string
	Detail    string
	Path      string
	Attempts  int
	Bytes     int
	UpdatedAt time.Time
}

// OutcomeWriteRepository persists outcomes.
type OutcomeWriteRepository interface {
	SaveOutcome(ctx context.Context, rec OutcomeRecord) error
}

// OutcomeReadRepository queries persisted outcomes.
type OutcomeReadRepository interface {
	GetBatchOutcomes(ctx context.Context, batchID string) ([]OutcomeRecord, error)
	GetLatestOutcome(ctx context.Context, recordID string) (OutcomeRecord, error)
	CountByStatus(ctx context.Context, batchID string) (map[string]int, error)
}

// OutcomeRepository is the full outcome store.
type OutcomeRepository interface {
	OutcomeWriteRepository
	OutcomeReadRepository
}
