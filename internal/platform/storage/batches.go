package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrBatchNotFound is returned when a batch id does not exist.
var ErrBatchNotFound = errors.New("batch not found")

// BatchRepository tracks import batches. Progress writes are additive
// row-scoped increments keyed by batch id, so concurrent uploads never step
// on each other's counters.
type BatchRepository struct {
	db  *DB
	log *slog.Logger
}

// NewBatchRepository creates a BatchRepository.
func NewBatchRepository(db *DB, log *slog.Logger) *BatchRepository {
	if log == nil {
		log = slog.Default()
	}
	return &BatchRepository{db: db, log: log}
}

// Create inserts a new batch in the processing state and returns its id.
// fileSizeBytes and totalRecords may be nil when unknown.
func (r *BatchRepository) Create(ctx context.Context, sourceName, sourceType, fileFormat string, fileSizeBytes *int64, totalRecords *int) (uuid.UUID, error) {
	ctx, cancel := r.db.queryCtx(ctx)
	defer cancel()

	batchID := uuid.New()
	sql := `
		INSERT INTO import_batches (
			batch_id, source_name, source_type, file_format,
			file_size_bytes, total_records, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.pool.Exec(ctx, sql,
		batchID, sourceName, sourceType, fileFormat,
		fileSizeBytes, totalRecords, BatchProcessing, time.Now().UTC(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert batch: %w", err)
	}

	r.log.Info("created batch",
		"batch_id", batchID,
		"source_name", sourceName,
		"source_type", sourceType,
		"file_format", fileFormat,
	)
	return batchID, nil
}

// UpdateProgress adds the given deltas to the batch's running counters. The
// increments are atomic at the row level; counters never move backwards.
func (r *BatchRepository) UpdateProgress(ctx context.Context, batchID uuid.UUID, processed, newRecords, duplicate, failed int) error {
	ctx, cancel := r.db.queryCtx(ctx)
	defer cancel()

	sql := `
		UPDATE import_batches
		SET processed_records = processed_records + $2,
		    new_records = new_records + $3,
		    duplicate_records = duplicate_records + $4,
		    failed_records = failed_records + $5
		WHERE batch_id = $1
	`
	tag, err := r.db.pool.Exec(ctx, sql, batchID, processed, newRecords, duplicate, failed)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// Complete marks the batch completed with its final processed total. This is
// a terminal write.
func (r *BatchRepository) Complete(ctx context.Context, batchID uuid.UUID, totalProcessed int) error {
	ctx, cancel := r.db.queryCtx(ctx)
	defer cancel()

	sql := `
		UPDATE import_batches
		SET status = $2, completed_at = $3, processed_records = $4
		WHERE batch_id = $1
	`
	tag, err := r.db.pool.Exec(ctx, sql, batchID, BatchCompleted, time.Now().UTC(), totalProcessed)
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}

	r.log.Info("batch completed", "batch_id", batchID, "processed_records", totalProcessed)
	return nil
}

// Fail marks the batch failed with a human-readable reason. This is a
// terminal write.
func (r *BatchRepository) Fail(ctx context.Context, batchID uuid.UUID, reason string) error {
	ctx, cancel := r.db.queryCtx(ctx)
	defer cancel()

	sql := `
		UPDATE import_batches
		SET status = $2, completed_at = $3, error = $4
		WHERE batch_id = $1
	`
	tag, err := r.db.pool.Exec(ctx, sql, batchID, BatchFailed, time.Now().UTC(), reason)
	if err != nil {
		return fmt.Errorf("fail batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}

	r.log.Error("batch failed", "batch_id", batchID, "reason", reason)
	return nil
}

// Get fetches one batch by id.
func (r *BatchRepository) Get(ctx context.Context, batchID uuid.UUID) (*Batch, error) {
	ctx, cancel := r.db.queryCtx(ctx)
	defer cancel()

	sql := `
		SELECT batch_id, source_name, source_type, file_format, file_size_bytes,
		       status, total_records, processed_records, new_records,
		       duplicate_records, failed_records, started_at, completed_at, error
		FROM import_batches
		WHERE batch_id = $1
	`
	var b Batch
	err := r.db.pool.QueryRow(ctx, sql, batchID).Scan(
		&b.BatchID, &b.SourceName, &b.SourceType, &b.FileFormat, &b.FileSizeBytes,
		&b.Status, &b.TotalRecords, &b.ProcessedRecords, &b.NewRecords,
		&b.DuplicateRecords, &b.FailedRecords, &b.StartedAt, &b.CompletedAt, &b.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// SetTotalRecords records the total once it has been counted. Nil until
// then; never overwritten with a smaller value by callers.
func (r *BatchRepository) SetTotalRecords(ctx context.Context, batchID uuid.UUID, total int) error {
	ctx, cancel := r.db.queryCtx(ctx)
	defer cancel()

	sql := `UPDATE import_batches SET total_records = $2 WHERE batch_id = $1`
	tag, err := r.db.pool.Exec(ctx, sql, batchID, total)
	if err != nil {
		return fmt.Errorf("set total records: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// GetStatistics aggregates processing counts across all batches.
func (r *BatchRepository) GetStatistics(ctx context.Context) (*Statistics, error) {
	ctx, cancel := r.db.queryCtx(ctx)
	defer cancel()

	sql := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COALESCE(SUM(total_records), 0),
			COALESCE(SUM(processed_records), 0),
			COALESCE(SUM(new_records), 0),
			COALESCE(SUM(duplicate_records), 0)
		FROM import_batches
	`
	var s Statistics
	err := r.db.pool.QueryRow(ctx, sql).Scan(
		&s.TotalBatches, &s.Completed, &s.Failed, &s.InProgress,
		&s.TotalRecords, &s.ProcessedRecords, &s.NewRecords, &s.DuplicateRecords,
	)
	if err != nil {
		return nil, fmt.Errorf("get statistics: %w", err)
	}
	return &s, nil
}
