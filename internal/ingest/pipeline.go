package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/parcelworks/landgrid/internal/schema"
)

// DefaultChunkSize is how many rows are processed between progress updates
// when the caller does not say otherwise.
const DefaultChunkSize = 1000

// Pipeline drives one upload through schema validation, chunked streaming,
// per-row transformation and publication, and batch finalization.
//
// Row-level problems (one bad row, one failed publish) are counted and the
// stream continues; only errors that prevent reading further rows or
// recording progress are fatal. A Pipeline is stateless across runs and safe
// to share between concurrent uploads.
type Pipeline struct {
	tracker   Tracker
	publisher Publisher
	queue     string
	chunkSize int
	log       *slog.Logger
}

// NewPipeline wires a pipeline to its collaborators. chunkSize <= 0 selects
// DefaultChunkSize.
func NewPipeline(tracker Tracker, publisher Publisher, queue string, chunkSize int, log *slog.Logger) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		tracker:   tracker,
		publisher: publisher,
		queue:     queue,
		chunkSize: chunkSize,
		log:       log,
	}
}

// Run processes src to exhaustion on behalf of batchID. On any fatal error
// the batch is marked failed with a human-readable reason and the error is
// returned to the caller; row-level failures never surface here.
func (p *Pipeline) Run(ctx context.Context, src Source, st schema.SourceType, batchID uuid.UUID, sourceName string) error {
	defer src.Close()

	log := p.log.With("batch_id", batchID, "source_type", st, "source_file", sourceName)
	log.Info("starting stream processing", "chunk_size", p.chunkSize)

	matched, total, err := schema.ValidateColumns(src.Columns(), st)
	if err != nil {
		log.Error("schema validation failed", "error", err)
		p.failBatch(ctx, batchID, err.Error(), log)
		return err
	}
	log.Info("schema validated", "matched_fields", matched, "model_fields", total)

	var totalProcessed, totalFailed int64
	chunkNum := 0
	for {
		processed, failed, done, err := p.processChunk(ctx, src, st, batchID, sourceName, log)
		if err != nil {
			reason := fmt.Sprintf("stream processing error: %v", err)
			p.failBatch(ctx, batchID, reason, log)
			return err
		}

		if processed > 0 {
			chunkNum++
			if uerr := p.tracker.UpdateProgress(ctx, batchID, processed, processed-failed, 0, failed); uerr != nil {
				reason := fmt.Sprintf("progress update error: %v", uerr)
				p.failBatch(ctx, batchID, reason, log)
				return uerr
			}
			totalProcessed += int64(processed)
			totalFailed += int64(failed)
			log.Debug("chunk complete",
				"chunk", chunkNum,
				"succeeded", processed-failed,
				"processed", processed,
			)
		}

		if done {
			break
		}
	}

	if err := p.tracker.Complete(ctx, batchID, int(totalProcessed)); err != nil {
		reason := fmt.Sprintf("batch completion error: %v", err)
		p.failBatch(ctx, batchID, reason, log)
		return err
	}

	log.Info("stream processing complete",
		"processed", totalProcessed,
		"failed", totalFailed,
		"chunks", chunkNum,
	)
	return nil
}

// processChunk pulls up to chunkSize rows, transforming and publishing each.
// done is true once the source is exhausted. The returned error is stream
// fatal; per-row failures are only counted.
func (p *Pipeline) processChunk(ctx context.Context, src Source, st schema.SourceType, batchID uuid.UUID, sourceName string, log *slog.Logger) (processed, failed int, done bool, err error) {
	for processed < p.chunkSize {
		if cerr := ctx.Err(); cerr != nil {
			return processed, failed, false, cerr
		}

		row, rerr := src.Next()
		if rerr == io.EOF {
			return processed, failed, true, nil
		}
		if rerr != nil {
			return processed, failed, false, rerr
		}

		processed++
		if row.Err != nil {
			log.Warn("skipping row", "row", row.Number, "error", row.Err)
			failed++
			continue
		}

		rec, berr := schema.BuildRecord(st, row.Fields)
		if berr != nil {
			log.Warn("row failed validation", "row", row.Number, "error", berr)
			failed++
			continue
		}

		body, merr := json.Marshal(Message{
			BatchID:         batchID.String(),
			SourceType:      st,
			SourceFile:      sourceName,
			SourceRowNumber: row.Number,
			RawData:         rec,
		})
		if merr != nil {
			log.Warn("row failed serialization", "row", row.Number, "error", merr)
			failed++
			continue
		}

		if !p.publisher.Publish(ctx, p.queue, body) {
			log.Error("publish failed", "row", row.Number, "queue", p.queue)
			failed++
		}
	}
	return processed, failed, false, nil
}

// failBatch records a terminal failure, best effort. The triggering error is
// what the caller surfaces; a failure to write the failure is only logged.
func (p *Pipeline) failBatch(ctx context.Context, batchID uuid.UUID, reason string, log *slog.Logger) {
	if err := p.tracker.Fail(ctx, batchID, reason); err != nil {
		log.Error("could not mark batch failed", "reason", reason, "error", err)
	}
}
