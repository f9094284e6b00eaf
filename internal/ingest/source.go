// Package ingest implements the chunked streaming pipeline that turns
// uploaded parcel, transfer-return and entity files into messages on the
// deduplication queue while tracking per-batch progress.
package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/parcelworks/landgrid/internal/schema"
)

// Row is one raw row or feature pulled from a source. Number is the 1-based
// position within the whole stream; it is never reset at chunk boundaries.
// A non-nil Err marks a row that could be counted but not used (bad geometry,
// ragged CSV line) without stopping the stream.
type Row struct {
	Number int64
	Fields map[string]string
	Err    error
}

// Source yields rows from one uploaded file. Next returns io.EOF when the
// stream is exhausted; any other error is fatal to the stream. Sources are
// not safe for concurrent use.
type Source interface {
	// Columns lists the column names observed in the source, used for the
	// one-shot schema validation before streaming begins.
	Columns() []string
	Next() (Row, error)
	Close() error
}

// Publisher delivers one message to a named queue. It reports success or
// failure and never returns an error for a failed delivery; retry policy is
// the implementation's concern.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) bool
}

// Tracker accumulates progress against a batch and finalizes it. All count
// updates are additive; Complete and Fail are terminal and called at most
// once per batch.
type Tracker interface {
	UpdateProgress(ctx context.Context, batchID uuid.UUID, processed, newRecords, duplicate, failed int) error
	Complete(ctx context.Context, batchID uuid.UUID, totalProcessed int) error
	Fail(ctx context.Context, batchID uuid.UUID, reason string) error
}

// Message is the envelope published for every successfully transformed row.
// The shape is a stable contract with the deduplication consumer.
type Message struct {
	BatchID         string            `json:"batch_id"`
	SourceType      schema.SourceType `json:"source_type"`
	SourceFile      string            `json:"source_file"`
	SourceRowNumber int64             `json:"source_row_number"`
	RawData         schema.Record     `json:"raw_data"`
}
