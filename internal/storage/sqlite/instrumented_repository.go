package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/poster_downloader/internal/storage"
	"github.com/italolelis/poster_downloader/internal/telemetry"
)

// InstrumentedOutcomeRepository wraps OutcomeRepository with telemetry.
type InstrumentedOutcomeRepository struct {
	repo      *OutcomeRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedOutcomeRepository creates a new instrumented outcome repository.
func NewInstrumentedOutcomeRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedOutcomeRepository {
	return &InstrumentedOutcomeRepository{
		repo:      NewOutcomeRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedOutcomeRepository) SaveOutcome(ctx context.Context, rec storage.OutcomeRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_outcome", func(ctx context.Context) error {
		return r.repo.SaveOutcome(ctx, rec)
	})
}

func (r *InstrumentedOutcomeRepository) GetBatchOutcomes(ctx context.Context, batchID string) ([]storage.OutcomeRecord, error) {
	var result []storage.OutcomeRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_batch_outcomes", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetBatchOutcomes(ctx, batchID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedOutcomeRepository) GetLatestOutcome(ctx context.Context, recordID string) (storage.OutcomeRecord, error) {
	var result storage.OutcomeRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_latest_outcome", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetLatestOutcome(ctx, recordID)

		return err
	})

	return result, err
}

func (r *InstrumentedOutcomeRepository) CountByStatus(ctx context.Context, batchID string) (map[string]int, error) {
	var result map[string]int

	err := r.telemetry.InstrumentDBOperation(ctx, "count_by_status", func(ctx context.Context) error {
		var err error
		result, err = r.repo.CountByStatus(ctx, batchID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
