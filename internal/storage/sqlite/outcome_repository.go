package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/italolelis/poster_downloader/internal/storage"
)

type OutcomeRepository struct {
	db *sql.DB
}

func NewOutcomeRepository(dbConn *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: dbConn}
}

// SaveOutcome upserts the outcome of a record within its batch.
func (r *OutcomeRepository) SaveOutcome(ctx context.Context, rec storage.OutcomeRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outcomes (batch_id, record_id, source_url, status, kind, detail, path, attempts, bytes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id, record_id) DO UPDATE SET
			source_url = excluded.source_url,
			status = excluded.status,
			kind = excluded.kind,
			detail = excluded.detail,
			path = excluded.path,
			attempts = excluded.attempts,
			bytes = excluded.bytes,
			updated_at = excluded.updated_at
	`, rec.BatchID, rec.RecordID, rec.SourceURL, rec.Status, rec.Kind, rec.Detail, rec.Path, rec.Attempts, rec.Bytes,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano))

	return err
}

func (r *OutcomeRepository) GetBatchOutcomes(ctx context.Context, batchID string) ([]storage.OutcomeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT batch_id, record_id, source_url, status, kind, detail, path, attempts, bytes, updated_at
		FROM outcomes
		WHERE batch_id = ?
		ORDER BY record_id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []storage.OutcomeRecord

	for rows.Next() {
		rec, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}

		outcomes = append(outcomes, rec)
	}

	return outcomes, rows.Err()
}

// GetLatestOutcome returns the most recent outcome of recordID across batches.
func (r *OutcomeRepository) GetLatestOutcome(ctx context.Context, recordID string) (storage.OutcomeRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT batch_id, record_id, source_url, status, kind, detail, path, attempts, bytes, updated_at
		FROM outcomes
		WHERE record_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT 1`, recordID)

	rec, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.OutcomeRecord{}, storage.ErrNotFound
	}

	return rec, err
}

func (r *OutcomeRepository) CountByStatus(ctx context.Context, batchID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outcomes WHERE batch_id = ? GROUP BY status`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			status string
			count  int
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}

		counts[status] = count
	}

	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(s scanner) (storage.OutcomeRecord, error) {
	var (
		rec                          storage.OutcomeRecord
		sourceURL, kind, detail, pth sql.NullString
		updatedAt                    string
	)

	if err := s.Scan(&rec.BatchID, &rec.RecordID, &sourceURL, &rec.Status, &kind, &detail, &pth, &rec.Attempts, &rec.Bytes, &updatedAt); err != nil {
		return storage.OutcomeRecord{}, err
	}

	rec.SourceURL = sourceURL.String
	rec.Kind = kind.String
	rec.Detail = detail.String
	rec.Path = pth.String

	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}

	return rec, nil
}
