package storage

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of an import batch. A batch moves from
// processing to exactly one terminal state and never back.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Batch is one upload's lifecycle record. The running counters are only ever
// incremented while the batch is processing; total and completion fields are
// nullable until known. The JSON shape is what the status endpoint serves.
type Batch struct {
	BatchID          uuid.UUID   `db:"batch_id" json:"batch_id"`
	SourceName       string      `db:"source_name" json:"source_name"`
	SourceType       string      `db:"source_type" json:"source_type"`
	FileFormat       string      `db:"file_format" json:"file_format"`
	FileSizeBytes    *int64      `db:"file_size_bytes" json:"file_size_bytes"`
	Status           BatchStatus `db:"status" json:"status"`
	TotalRecords     *int        `db:"total_records" json:"total_records"`
	ProcessedRecords int         `db:"processed_records" json:"processed_records"`
	NewRecords       int         `db:"new_records" json:"new_records"`
	DuplicateRecords int         `db:"duplicate_records" json:"duplicate_records"`
	FailedRecords    int         `db:"failed_records" json:"failed_records"`
	StartedAt        time.Time   `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time  `db:"completed_at" json:"completed_at"`
	Error            *string     `db:"error" json:"error,omitempty"`
}

// Statistics aggregates batch processing across the whole store.
type Statistics struct {
	TotalBatches     int   `json:"total_batches"`
	Completed        int   `json:"completed"`
	Failed           int   `json:"failed"`
	InProgress       int   `json:"in_progress"`
	TotalRecords     int64 `json:"total_records"`
	ProcessedRecords int64 `json:"processed_records"`
	NewRecords       int64 `json:"new_records"`
	DuplicateRecords int64 `json:"duplicate_records"`
}
